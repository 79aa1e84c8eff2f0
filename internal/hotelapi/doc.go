// Package hotelapi implements the collaborators the dialogue engine consumes.
//
// Remote services are plain JSON over HTTP POST:
//
//   - availability: AvailabilityRequest -> {available, options, proposalText, price}
//   - booking: {hotelId, conversationId, slots} -> {reservationId, status, createdAt}
//   - extractor: {text, known} -> {need, question, slots}
//
// When a URL is not configured the gateway uses StaticAvailability (a room
// type rate table) and LocalBooking (reservations written to the store with
// RES-XXXXXXXX codes), and runs without a model extractor.
package hotelapi
