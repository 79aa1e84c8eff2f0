// ABOUTME: Ingestion entry point sequencing guard, identity, dialogue and delivery for one event
// ABOUTME: Always acknowledges the caller; only malformed events are rejected

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marcelomst/begaia-gateway/internal/conversation"
	"github.com/marcelomst/begaia-gateway/internal/delivery"
	"github.com/marcelomst/begaia-gateway/internal/dialogue"
	"github.com/marcelomst/begaia-gateway/internal/events"
	"github.com/marcelomst/begaia-gateway/internal/guard"
	"github.com/marcelomst/begaia-gateway/internal/identity"
	"github.com/marcelomst/begaia-gateway/internal/store"
)

// Result is the acknowledgement returned to the event source
type Result struct {
	OK             bool   `json:"ok"`
	Deduped        bool   `json:"deduped"`
	ConversationID string `json:"conversationId,omitempty"`
	GuestID        string `json:"guestId,omitempty"`
}

// Claimer is the idempotency guard
type Claimer interface {
	Claim(ctx context.Context, t guard.Ticket, ttl time.Duration) (bool, error)
}

// Resolver maps identity signals onto a canonical guest
type Resolver interface {
	Resolve(ctx context.Context, hotelID string, in identity.Input) (*store.Guest, error)
}

// Dialogue computes the reply to a turn
type Dialogue interface {
	Handle(ctx context.Context, turn dialogue.Turn) (*dialogue.Reply, error)
}

// Replier delivers a reply on the conversation's channel
type Replier interface {
	SendReply(ctx context.Context, t delivery.Target, o delivery.Outbound) error
}

// Emitter pushes messages to live viewers
type Emitter interface {
	Emit(msg *store.ChannelMessage)
}

// TranscriptStore is what the service needs from storage
type TranscriptStore interface {
	GetConversation(ctx context.Context, hotelID, conversationID string) (*store.Conversation, error)
	UpsertConversation(ctx context.Context, conv *store.Conversation) error
	SaveMessage(ctx context.Context, msg *store.ChannelMessage) error
}

// Deps are the collaborators of a Service
type Deps struct {
	Store         TranscriptStore
	Guard         Claimer
	Identity      Resolver
	Dialogue      Dialogue
	Replier       Replier
	Emitter       Emitter
	Events        events.Publisher
	DefaultLocale string
	DefaultMode   string
}

// Service handles inbound events
type Service struct {
	Deps
	locks  *keyedMutex
	now    func() time.Time
	logger *slog.Logger
}

// New creates an ingestion service
func New(deps Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if deps.DefaultLocale == "" {
		deps.DefaultLocale = dialogue.LocaleES
	}
	if deps.DefaultMode == "" {
		deps.DefaultMode = store.ModeAutomatic
	}
	return &Service{
		Deps:   deps,
		locks:  newKeyedMutex(),
		now:    time.Now,
		logger: logger.With("component", "ingest"),
	}
}

// Handle processes one inbound event. Collaborator failures degrade to a
// fallback reply or a logged skip; the returned error is always ErrInvalidEvent.
func (s *Service) Handle(ctx context.Context, ev Event) (*Result, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	ev.From = strings.TrimSpace(ev.From)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now().UTC()
	}

	if err := s.checkConversationOwner(ctx, ev); err != nil {
		return nil, err
	}

	log := s.logger.With("hotel_id", ev.HotelID, "channel", ev.Channel, "source_msg_id", ev.SourceMsgID)

	applied, err := s.Guard.Claim(ctx, guard.Ticket{
		HotelID:        ev.HotelID,
		ConversationID: ev.guardConversation(),
		Direction:      store.DirectionIn,
		SourceMsgID:    ev.SourceMsgID,
	}, 0)
	if err != nil {
		log.Error("idempotency guard unavailable, processing anyway", "error", err)
		applied = true
	}
	if !applied {
		log.Debug("duplicate event acknowledged")
		return &Result{OK: true, Deduped: true, ConversationID: ev.ConversationID}, nil
	}

	guest := s.resolveGuest(ctx, ev, log)

	convID := ev.ConversationID
	switch {
	case convID != "":
	case ev.Channel == store.ChannelWeb:
		// Web guests may share an identity; the conversation follows the browser session
		convID = ConversationID(ev.HotelID, ev.Channel, "session:"+ev.From)
	default:
		convID = ConversationID(ev.HotelID, ev.Channel, guest.GuestID)
	}
	log = log.With("conversation_id", convID, "guest_id", guest.GuestID)

	unlock := s.locks.Lock(ev.HotelID + ":" + convID)
	defer unlock()

	conv := s.touchConversation(ctx, ev, convID, guest, log)

	inbound := &store.ChannelMessage{
		MessageID:        uuid.NewString(),
		HotelID:          ev.HotelID,
		Channel:          ev.Channel,
		ConversationID:   convID,
		Sender:           ev.From,
		GuestID:          guest.GuestID,
		Content:          ev.Content,
		Role:             store.RoleUser,
		Direction:        store.DirectionIn,
		Status:           store.StatusSent,
		DetectedLanguage: dialogue.DetectLanguage(ev.Content),
		SourceMsgID:      ev.SourceMsgID,
		Timestamp:        ev.Timestamp,
	}
	if err := s.Store.SaveMessage(ctx, inbound); err != nil {
		log.Error("saving inbound message failed", "error", err)
	}
	s.emit(inbound)

	reply, err := s.Dialogue.Handle(ctx, dialogue.Turn{
		HotelID:        ev.HotelID,
		ConversationID: convID,
		Channel:        ev.Channel,
		GuestID:        guest.GuestID,
		Text:           ev.Content,
		Lang:           conv.Lang,
	})
	if err != nil {
		log.Error("dialogue turn failed, sending fallback", "error", err)
		locale := conv.Lang
		if locale == "" {
			locale = s.DefaultLocale
		}
		reply = &dialogue.Reply{Text: dialogue.FallbackText(locale), Locale: locale, Intent: dialogue.IntentFallback}
	}

	target := conversation.Target(conv, reply.Locale, ev.SourceMsgID)
	if s.mode(guest) == store.ModeSupervised {
		s.holdForReview(ctx, target, reply, log)
	} else {
		s.deliver(ctx, target, reply, log)
	}

	if reply.Reservation != nil {
		s.publishReservation(ctx, reply.Reservation, ev.SourceMsgID, log)
	}

	return &Result{OK: true, ConversationID: convID, GuestID: guest.GuestID}, nil
}

// resolveGuest never fails: a broken identity backend degrades to a guest keyed by the sender
func (s *Service) resolveGuest(ctx context.Context, ev Event, log *slog.Logger) *store.Guest {
	guest, err := s.Identity.Resolve(ctx, ev.HotelID, ev.identityInput())
	if err != nil || guest == nil || guest.GuestID == "" {
		log.Error("identity resolution failed, using sender as guest id", "error", err)
		return &store.Guest{HotelID: ev.HotelID, GuestID: ev.From}
	}
	return guest
}

// checkConversationOwner rejects events that name an existing conversation of
// another channel, or a web conversation opened by another browser session
func (s *Service) checkConversationOwner(ctx context.Context, ev Event) error {
	if ev.ConversationID == "" {
		return nil
	}
	conv, err := s.Store.GetConversation(ctx, ev.HotelID, ev.ConversationID)
	if err != nil {
		// Unknown ids start a new conversation; lookup failures are logged by touchConversation
		return nil
	}
	if conv.Channel != ev.Channel {
		return fmt.Errorf("%w: conversation %s belongs to channel %s", ErrInvalidEvent, ev.ConversationID, conv.Channel)
	}
	if ev.Channel == store.ChannelWeb && conv.Recipient != "" && conv.Recipient != ev.From {
		return fmt.Errorf("%w: conversation %s belongs to another session", ErrInvalidEvent, ev.ConversationID)
	}
	return nil
}

func (s *Service) touchConversation(ctx context.Context, ev Event, convID string, guest *store.Guest, log *slog.Logger) *store.Conversation {
	now := s.now().UTC()
	conv, err := s.Store.GetConversation(ctx, ev.HotelID, convID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("loading conversation failed", "error", err)
		}
		conv = &store.Conversation{
			ConversationID: convID,
			HotelID:        ev.HotelID,
			Channel:        ev.Channel,
			GuestID:        guest.GuestID,
			Status:         store.ConversationActive,
			StartedAt:      now,
		}
	}

	conv.LastUpdatedAt = now
	if conv.Status == store.ConversationClosed {
		conv.Status = store.ConversationActive
	}
	if lang := dialogue.DetectLanguage(ev.Content); lang != "" {
		conv.Lang = lang
	}
	if ev.Subject != "" {
		conv.Subject = ev.Subject
	}
	switch {
	case ev.Recipient != "":
		conv.Recipient = ev.Recipient
	case conv.Recipient == "":
		conv.Recipient = ev.From
	}

	if err := s.Store.UpsertConversation(ctx, conv); err != nil {
		log.Error("saving conversation failed", "error", err)
	}
	return conv
}

func (s *Service) mode(guest *store.Guest) string {
	if guest.Mode != "" {
		return guest.Mode
	}
	return s.DefaultMode
}

// holdForReview stores the reply as a pending draft for staff instead of sending it
func (s *Service) holdForReview(ctx context.Context, t delivery.Target, reply *dialogue.Reply, log *slog.Logger) {
	draft := &store.ChannelMessage{
		MessageID:        uuid.NewString(),
		HotelID:          t.HotelID,
		Channel:          t.Channel,
		ConversationID:   t.ConversationID,
		Sender:           "assistant",
		GuestID:          t.GuestID,
		Role:             store.RoleAI,
		Direction:        store.DirectionOut,
		Status:           store.StatusPending,
		Suggestion:       reply.Text,
		DetectedLanguage: reply.Locale,
		Rich:             reply.Rich,
		SourceMsgID:      t.CorrelationID,
		Timestamp:        s.now().UTC(),
	}
	if err := s.Store.SaveMessage(ctx, draft); err != nil {
		log.Error("saving pending draft failed", "error", err)
		return
	}
	s.emit(draft)
	log.Info("reply held for staff review", "message_id", draft.MessageID)
}

func (s *Service) deliver(ctx context.Context, t delivery.Target, reply *dialogue.Reply, log *slog.Logger) {
	out := delivery.Outbound{Text: reply.Text, Rich: reply.Rich, RespondedBy: store.RoleAI}
	if res := reply.Reservation; res != nil {
		locale := reply.Locale
		out.Attachment = func() (*delivery.Attachment, error) {
			summary, err := dialogue.RenderSummary(res, locale)
			if err != nil {
				return nil, err
			}
			return &delivery.Attachment{
				Filename: dialogue.SummaryFilename(res.ReservationID),
				MIME:     "text/plain; charset=utf-8",
				Data:     []byte(summary),
			}, nil
		}
	}

	if err := s.Replier.SendReply(ctx, t, out); err != nil {
		if errors.Is(err, delivery.ErrTransportNotReady) {
			log.Warn("reply not delivered, transport not ready", "error", err)
			return
		}
		log.Error("reply delivery failed", "error", err)
	}
}

func (s *Service) publishReservation(ctx context.Context, res *store.Reservation, correlationID string, log *slog.Logger) {
	env := events.NewEnvelope(events.TypeReservationCreated, correlationID, events.ReservationCreated{
		HotelID:        res.HotelID,
		ReservationID:  res.ReservationID,
		ConversationID: res.ConversationID,
		GuestID:        res.GuestID,
		Channel:        string(res.Channel),
		Status:         res.Status,
		RoomType:       res.Slots.RoomType,
		CheckIn:        res.Slots.CheckIn,
		CheckOut:       res.Slots.CheckOut,
		NumGuests:      res.Slots.NumGuests,
		GuestName:      res.Slots.GuestName,
	})
	if err := s.Events.Publish(ctx, res.HotelID+"."+res.ReservationID, env); err != nil {
		log.Error("publishing reservation event failed", "reservation_id", res.ReservationID, "error", err)
	}
}

func (s *Service) emit(msg *store.ChannelMessage) {
	if s.Emitter != nil {
		s.Emitter.Emit(msg)
	}
}
