// ABOUTME: Normalized inbound event accepted by the ingestion entry point
// ABOUTME: Validation and the per-channel mapping onto identity signals

package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marcelomst/begaia-gateway/internal/identity"
	"github.com/marcelomst/begaia-gateway/internal/store"
)

// ErrInvalidEvent is returned for malformed inbound payloads
var ErrInvalidEvent = errors.New("invalid event")

// Event is one inbound guest message, normalized from a channel payload
type Event struct {
	HotelID string `json:"hotelId"`
	// ConversationID is optional; when empty it is derived from hotel, channel and guest
	ConversationID string        `json:"conversationId,omitempty"`
	Channel        store.Channel `json:"channel"`
	// From is the sender address on the channel
	From        string    `json:"from"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	SourceMsgID string    `json:"sourceMsgId,omitempty"`

	// Optional identity hints and reply metadata
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Doc       string `json:"doc,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Validate reports the first problem with the event, wrapping ErrInvalidEvent
func (e *Event) Validate() error {
	switch {
	case strings.TrimSpace(e.HotelID) == "":
		return fmt.Errorf("%w: hotelId is required", ErrInvalidEvent)
	case !e.Channel.Valid():
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidEvent, e.Channel)
	case strings.TrimSpace(e.From) == "":
		return fmt.Errorf("%w: from is required", ErrInvalidEvent)
	case strings.TrimSpace(e.Content) == "":
		return fmt.Errorf("%w: content is required", ErrInvalidEvent)
	}
	return nil
}

// identityInput maps the sender address onto the identifier its channel carries
func (e *Event) identityInput() identity.Input {
	in := identity.Input{
		RawID:     e.From,
		Email:     e.Email,
		PhoneE164: e.Phone,
		Doc:       e.Doc,
		Name:      e.Name,
		Source:    e.Source,
	}
	if in.Source == "" {
		in.Source = string(e.Channel)
	}
	switch e.Channel {
	case store.ChannelWeb:
		in.WebID = e.From
	case store.ChannelWhatsApp:
		in.WhatsAppID = e.From
	case store.ChannelEmail:
		if in.Email == "" {
			in.Email = e.From
		}
	}
	return in
}

// guardConversation is the conversation part of the idempotency ticket.
// Guests are not resolved yet when the guard runs, so the sender stands in.
func (e *Event) guardConversation() string {
	if e.ConversationID != "" {
		return e.ConversationID
	}
	return string(e.Channel) + ":" + strings.TrimSpace(e.From)
}

var conversationNamespace = uuid.MustParse("6f1c1b1e-4c4a-4f8e-9a55-2b0f6d3c9e71")

// ConversationID derives the deterministic conversation id of a (hotel, channel, guest) triple
func ConversationID(hotelID string, ch store.Channel, guestID string) string {
	return uuid.NewSHA1(conversationNamespace, []byte(hotelID+"|"+string(ch)+"|"+guestID)).String()
}
