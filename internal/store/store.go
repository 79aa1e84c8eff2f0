// ABOUTME: Store interface and document types for begaia-gateway persistence
// ABOUTME: Defines messages, conversations, dialogue state, guests, reservations and guard tickets

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested document does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateGuest is returned when creating a guest whose canonical id is taken
var ErrDuplicateGuest = errors.New("guest already exists")

// ErrVersionConflict is returned when a conversation state write loses a compare-and-swap
var ErrVersionConflict = errors.New("conversation state version conflict")

// Channel identifies the transport a conversation happens on
type Channel string

const (
	ChannelWeb            Channel = "web"
	ChannelWhatsApp       Channel = "whatsapp"
	ChannelEmail          Channel = "email"
	ChannelChannelManager Channel = "channelManager"
)

// Valid reports whether c is one of the known channels
func (c Channel) Valid() bool {
	switch c {
	case ChannelWeb, ChannelWhatsApp, ChannelEmail, ChannelChannelManager:
		return true
	}
	return false
}

// Message role, direction and status values
const (
	RoleUser = "user"
	RoleAI   = "ai"

	DirectionIn  = "in"
	DirectionOut = "out"

	StatusSent     = "sent"
	StatusPending  = "pending"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// ChannelMessage is one inbound or outbound turn. Messages are never deleted.
type ChannelMessage struct {
	MessageID        string         `json:"messageId"`
	HotelID          string         `json:"hotelId"`
	Channel          Channel        `json:"channel"`
	ConversationID   string         `json:"conversationId"`
	Sender           string         `json:"sender"`
	GuestID          string         `json:"guestId,omitempty"`
	Content          string         `json:"content"`
	Role             string         `json:"role"`
	Direction        string         `json:"direction"`
	Status           string         `json:"status"`
	Suggestion       string         `json:"suggestion,omitempty"`
	ApprovedResponse string         `json:"approvedResponse,omitempty"`
	RespondedBy      string         `json:"respondedBy,omitempty"`
	DetectedLanguage string         `json:"detectedLanguage,omitempty"`
	Rich             map[string]any `json:"rich,omitempty"`
	SourceMsgID      string         `json:"sourceMsgId,omitempty"`
	DeliveryError    string         `json:"deliveryError,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// Conversation status values
const (
	ConversationActive = "active"
	ConversationClosed = "closed"
)

// Conversation groups the messages of one (hotel, channel, guest) triple
type Conversation struct {
	ConversationID string    `json:"conversationId"`
	HotelID        string    `json:"hotelId"`
	Channel        Channel   `json:"channel"`
	GuestID        string    `json:"guestId"`
	Status         string    `json:"status"`
	StartedAt      time.Time `json:"startedAt"`
	LastUpdatedAt  time.Time `json:"lastUpdatedAt"`
	Subject        string    `json:"subject,omitempty"`
	Lang           string    `json:"lang,omitempty"`
	// Recipient is the channel address replies go to (jid, email address, OTA thread)
	Recipient string `json:"recipient,omitempty"`
}

// Sales stages of the reservation dialogue
const (
	StageQualify = "qualify"
	StageQuote   = "quote"
	StageClose   = "close"
)

// ReservationSlots is the reservation draft collected across turns.
// Dates are ISO yyyy-mm-dd; an empty string means the slot is unknown.
type ReservationSlots struct {
	GuestName string `json:"guestName,omitempty"`
	RoomType  string `json:"roomType,omitempty"`
	CheckIn   string `json:"checkIn,omitempty"`
	CheckOut  string `json:"checkOut,omitempty"`
	NumGuests string `json:"numGuests,omitempty"`
	Locale    string `json:"locale,omitempty"`
}

// ToolCall records the inputs and a one-line summary of a collaborator call
type ToolCall struct {
	Name     string            `json:"name"`
	Input    map[string]string `json:"input"`
	Output   string            `json:"output"`
	CalledAt time.Time         `json:"calledAt"`
}

// Proposal is the last availability offer sent to the guest
type Proposal struct {
	Text      string    `json:"text"`
	Available bool      `json:"available"`
	Options   []string  `json:"options,omitempty"`
	ToolCall  *ToolCall `json:"toolCall,omitempty"`
}

// ReservationRef points at the reservation created from a conversation
type ReservationRef struct {
	ReservationID string    `json:"reservationId"`
	Status        string    `json:"status"`
	Channel       Channel   `json:"channel"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ConversationState is the dialogue engine's working memory, one per conversation.
// Version is bumped on every successful SaveState.
type ConversationState struct {
	HotelID          string           `json:"hotelId"`
	ConversationID   string           `json:"conversationId"`
	ReservationSlots ReservationSlots `json:"reservationSlots"`
	SalesStage       string           `json:"salesStage"`
	LastAsked        string           `json:"lastAsked,omitempty"`
	LastProposal     *Proposal        `json:"lastProposal,omitempty"`
	LastReservation  *ReservationRef  `json:"lastReservation,omitempty"`
	Version          int64            `json:"version"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// StateKey returns the {hotelId}:{conversationId} key of a conversation state
func StateKey(hotelID, conversationID string) string {
	return hotelID + ":" + conversationID
}

// Guest modes
const (
	ModeAutomatic  = "automatic"
	ModeSupervised = "supervised"
)

// Identifier types
const (
	IdentEmail    = "email"
	IdentWhatsApp = "whatsappId"
	IdentPhone    = "phoneE164"
	IdentDoc      = "doc"
	IdentWebID    = "web_id"

	keyKindAlias   = "alias"
	keyKindHistory = "history"
)

// Identifiers holds the primary identifier slots of a guest
type Identifiers struct {
	Email      string `json:"email,omitempty"`
	WhatsAppID string `json:"whatsappId,omitempty"`
	PhoneE164  string `json:"phoneE164,omitempty"`
	Doc        string `json:"doc,omitempty"`
	WebID      string `json:"web_id,omitempty"`
}

// Get returns the identifier of the given type
func (i Identifiers) Get(kind string) string {
	switch kind {
	case IdentEmail:
		return i.Email
	case IdentWhatsApp:
		return i.WhatsAppID
	case IdentPhone:
		return i.PhoneE164
	case IdentDoc:
		return i.Doc
	case IdentWebID:
		return i.WebID
	}
	return ""
}

// Set assigns the identifier of the given type
func (i *Identifiers) Set(kind, value string) {
	switch kind {
	case IdentEmail:
		i.Email = value
	case IdentWhatsApp:
		i.WhatsAppID = value
	case IdentPhone:
		i.PhoneE164 = value
	case IdentDoc:
		i.Doc = value
	case IdentWebID:
		i.WebID = value
	}
}

// IdentifierKinds lists identifier types in lookup order
var IdentifierKinds = []string{IdentEmail, IdentWhatsApp, IdentPhone, IdentDoc, IdentWebID}

// IdentifierRecord is one entry of a guest's identifier history
type IdentifierRecord struct {
	Type     string    `json:"type"`
	Value    string    `json:"value"`
	Source   string    `json:"source"`
	Verified bool      `json:"verified"`
	SeenAt   time.Time `json:"seenAt"`
}

// Guest is the canonical per-hotel identity. Aliases, identifiers and history only grow.
type Guest struct {
	HotelID            string             `json:"hotelId"`
	GuestID            string             `json:"guestId"`
	Aliases            []string           `json:"aliases,omitempty"`
	Identifiers        Identifiers        `json:"identifiers"`
	IdentifiersHistory []IdentifierRecord `json:"identifiersHistory,omitempty"`
	Mode               string             `json:"mode,omitempty"`
	Name               string             `json:"name,omitempty"`
	Tags               []string           `json:"tags,omitempty"`

	// Legacy top-level fields written by older importers
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// lookupKeys returns every (kind, value) pair a guest can be found by
func (g *Guest) lookupKeys() [][2]string {
	var keys [][2]string
	for _, a := range g.Aliases {
		keys = append(keys, [2]string{keyKindAlias, a})
	}
	for _, kind := range IdentifierKinds {
		if v := g.Identifiers.Get(kind); v != "" {
			keys = append(keys, [2]string{kind, v})
		}
	}
	if g.Email != "" {
		keys = append(keys, [2]string{IdentEmail, g.Email})
	}
	if g.Phone != "" {
		keys = append(keys, [2]string{IdentPhone, g.Phone})
	}
	for _, h := range g.IdentifiersHistory {
		keys = append(keys, [2]string{keyKindHistory, h.Value})
	}
	return keys
}

// Lookup kinds accepted by FindGuest besides the identifier types
const (
	LookupAlias   = keyKindAlias
	LookupHistory = keyKindHistory
)

// Reservation is the durable booking created on confirmation
type Reservation struct {
	HotelID        string           `json:"hotelId"`
	ReservationID  string           `json:"reservationId"`
	ConversationID string           `json:"conversationId,omitempty"`
	GuestID        string           `json:"guestId,omitempty"`
	Channel        Channel          `json:"channel,omitempty"`
	Status         string           `json:"status"`
	Slots          ReservationSlots `json:"slots"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// ReservationKey returns the {hotelId}:{reservationId} key of a reservation
func ReservationKey(hotelID, reservationID string) string {
	return hotelID + ":" + reservationID
}

// MessageGuard is an idempotency claim ticket for one external event id
type MessageGuard struct {
	HotelID        string
	ConversationID string
	Direction      string
	SourceMsgID    string
	ClaimedAt      time.Time
	ExpiresAt      time.Time
}

// Key returns the unique guard key
func (g *MessageGuard) Key() string {
	return g.HotelID + ":" + g.ConversationID + ":" + g.Direction + ":" + g.SourceMsgID
}

// Store defines the document collections used by the gateway
type Store interface {
	// Messages (audit trail, never deleted)
	SaveMessage(ctx context.Context, msg *ChannelMessage) error
	GetMessage(ctx context.Context, messageID string) (*ChannelMessage, error)
	UpdateMessage(ctx context.Context, msg *ChannelMessage) error
	ListMessages(ctx context.Context, hotelID, conversationID string, limit int) ([]*ChannelMessage, error)
	ListPendingMessages(ctx context.Context, hotelID string, limit int) ([]*ChannelMessage, error)

	// Conversations
	GetConversation(ctx context.Context, hotelID, conversationID string) (*Conversation, error)
	UpsertConversation(ctx context.Context, conv *Conversation) error

	// Conversation state
	GetState(ctx context.Context, hotelID, conversationID string) (*ConversationState, error)
	SaveState(ctx context.Context, state *ConversationState) error

	// Guests
	GetGuest(ctx context.Context, hotelID, guestID string) (*Guest, error)
	FindGuest(ctx context.Context, hotelID, kind, value string) (*Guest, error)
	CreateGuest(ctx context.Context, guest *Guest) error
	UpdateGuest(ctx context.Context, guest *Guest) error

	// Reservations
	SaveReservation(ctx context.Context, res *Reservation) error
	GetReservation(ctx context.Context, hotelID, reservationID string) (*Reservation, error)

	// Idempotency guards
	ClaimGuard(ctx context.Context, guard *MessageGuard) (bool, error)
	PurgeExpiredGuards(ctx context.Context, now time.Time) (int64, error)

	// Close releases any resources held by the store
	Close() error
}
