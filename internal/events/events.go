// ABOUTME: Domain event envelope and publisher interface
// ABOUTME: Events are JSON envelopes with meta (id, type, producer, time) and a data payload

package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	TypeReservationCreated = "reservation.created.v1"
	TypeMessageOutbound    = "message.outbound.v1"
)

// Producer is stamped on every envelope
const Producer = "begaia-gateway"

// Meta describes an event
type Meta struct {
	// CorrelationID links events caused by the same inbound message
	CorrelationID string    `json:"correlation_id,omitempty"`
	ID            string    `json:"id"`
	Producer      string    `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	// Type is the event name and version, also used as the routing key
	Type string `json:"type"`
}

// Envelope wraps an event payload
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope creates an envelope with a fresh id
func NewEnvelope(eventType, correlationID string, data any) Envelope {
	return Envelope{
		Meta: Meta{
			CorrelationID: correlationID,
			ID:            uuid.NewString(),
			Producer:      Producer,
			Time:          time.Now().UTC(),
			Type:          eventType,
		},
		Data: data,
	}
}

// Publisher publishes envelopes under a routing key
type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

// ReservationCreated is the payload of reservation.created.v1
type ReservationCreated struct {
	HotelID        string `json:"hotelId"`
	ReservationID  string `json:"reservationId"`
	ConversationID string `json:"conversationId"`
	GuestID        string `json:"guestId,omitempty"`
	Channel        string `json:"channel"`
	Status         string `json:"status"`
	RoomType       string `json:"roomType"`
	CheckIn        string `json:"checkIn"`
	CheckOut       string `json:"checkOut"`
	NumGuests      string `json:"numGuests"`
	GuestName      string `json:"guestName"`
}

// MessageOutbound is the payload of message.outbound.v1, relayed to the channel manager
type MessageOutbound struct {
	HotelID        string `json:"hotelId"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Recipient      string `json:"recipient,omitempty"`
	Text           string `json:"text"`
	Attachment     string `json:"attachment,omitempty"`
}

// Noop discards every event
type Noop struct{}

func (Noop) Publish(ctx context.Context, key string, msg Envelope) error { return nil }
func (Noop) Close() error                                                { return nil }

// Memory keeps published events in memory. Used by tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	events []Published
}

// Published is one event recorded by Memory
type Published struct {
	Key      string
	Envelope Envelope
}

func (m *Memory) Publish(ctx context.Context, key string, msg Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Published{Key: key, Envelope: msg})
	return nil
}

func (m *Memory) Close() error { return nil }

// Events returns a copy of everything published so far
func (m *Memory) Events() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Published, len(m.events))
	copy(out, m.events)
	return out
}
