// Package events publishes domain events for other hotel systems.
//
// Every event is an Envelope with a Meta block and a JSON payload. The event
// type doubles as the routing key on the topic exchange:
//
//   - reservation.created.v1: a booking was confirmed in a conversation
//   - message.outbound.v1: a reply addressed to the channel manager
//
// AMQPPublisher talks to RabbitMQ. Noop is used when no broker is configured
// and Memory records events for tests.
package events
