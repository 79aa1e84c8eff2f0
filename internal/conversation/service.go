// ABOUTME: Staff review service for supervised conversations
// ABOUTME: Lists pending drafts, releases or rejects them and switches guest modes

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marcelomst/begaia-gateway/internal/delivery"
	"github.com/marcelomst/begaia-gateway/internal/store"
)

// ErrNotPending is returned when reviewing a message that is not awaiting review
var ErrNotPending = errors.New("message is not pending review")

// ErrInvalidMode is returned for an unknown guest mode
var ErrInvalidMode = errors.New("invalid guest mode")

// ReviewStore defines what the service needs from storage
type ReviewStore interface {
	GetMessage(ctx context.Context, messageID string) (*store.ChannelMessage, error)
	UpdateMessage(ctx context.Context, msg *store.ChannelMessage) error
	ListMessages(ctx context.Context, hotelID, conversationID string, limit int) ([]*store.ChannelMessage, error)
	ListPendingMessages(ctx context.Context, hotelID string, limit int) ([]*store.ChannelMessage, error)
	GetConversation(ctx context.Context, hotelID, conversationID string) (*store.Conversation, error)
	GetGuest(ctx context.Context, hotelID, guestID string) (*store.Guest, error)
	UpdateGuest(ctx context.Context, guest *store.Guest) error
}

// Replier delivers a reply to a guest
type Replier interface {
	SendReply(ctx context.Context, t delivery.Target, o delivery.Outbound) error
}

// Emitter pushes a message to live viewers
type Emitter interface {
	Emit(msg *store.ChannelMessage)
}

// Service handles the staff side of supervised mode
type Service struct {
	store   ReviewStore
	replier Replier
	emitter Emitter
	logger  *slog.Logger
}

// New creates a review service
func New(st ReviewStore, replier Replier, emitter Emitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		replier: replier,
		emitter: emitter,
		logger:  logger.With("component", "conversation"),
	}
}

// Target builds the delivery target of a conversation
func Target(conv *store.Conversation, locale, correlationID string) delivery.Target {
	if locale == "" {
		locale = conv.Lang
	}
	return delivery.Target{
		HotelID:        conv.HotelID,
		ConversationID: conv.ConversationID,
		Channel:        conv.Channel,
		GuestID:        conv.GuestID,
		Recipient:      conv.Recipient,
		Subject:        conv.Subject,
		Locale:         locale,
		CorrelationID:  correlationID,
	}
}

// ListPending returns the drafts awaiting review for a hotel
func (s *Service) ListPending(ctx context.Context, hotelID string, limit int) ([]*store.ChannelMessage, error) {
	return s.store.ListPendingMessages(ctx, hotelID, limit)
}

// History returns the transcript of a conversation
func (s *Service) History(ctx context.Context, hotelID, conversationID string, limit int) ([]*store.ChannelMessage, error) {
	return s.store.ListMessages(ctx, hotelID, conversationID, limit)
}

// Approve sends a pending draft, optionally edited, to the guest.
// The message is marked sent, or failed when delivery fails.
func (s *Service) Approve(ctx context.Context, messageID, approvedResponse, respondedBy string) (*store.ChannelMessage, error) {
	msg, err := s.pending(ctx, messageID)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(approvedResponse)
	if text == "" {
		text = msg.Suggestion
	}

	conv, err := s.store.GetConversation(ctx, msg.HotelID, msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	err = s.replier.SendReply(ctx, Target(conv, msg.DetectedLanguage, msg.SourceMsgID), delivery.Outbound{
		Text:        text,
		Rich:        msg.Rich,
		Existing:    msg,
		RespondedBy: respondedBy,
	})
	s.logger.Info("draft approved", "hotel_id", msg.HotelID, "message_id", messageID,
		"responded_by", respondedBy, "edited", text != msg.Suggestion, "error", err)
	return msg, err
}

// Reject discards a pending draft
func (s *Service) Reject(ctx context.Context, messageID, respondedBy string) (*store.ChannelMessage, error) {
	msg, err := s.pending(ctx, messageID)
	if err != nil {
		return nil, err
	}

	msg.Status = store.StatusRejected
	msg.RespondedBy = respondedBy
	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("updating message: %w", err)
	}
	if s.emitter != nil {
		s.emitter.Emit(msg)
	}

	s.logger.Info("draft rejected", "hotel_id", msg.HotelID, "message_id", messageID, "responded_by", respondedBy)
	return msg, nil
}

// SetGuestMode switches a guest between automatic and supervised replies
func (s *Service) SetGuestMode(ctx context.Context, hotelID, guestID, mode string) (*store.Guest, error) {
	if mode != store.ModeAutomatic && mode != store.ModeSupervised {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	guest, err := s.store.GetGuest(ctx, hotelID, guestID)
	if err != nil {
		return nil, fmt.Errorf("loading guest: %w", err)
	}
	if guest.Mode == mode {
		return guest, nil
	}
	guest.Mode = mode
	guest.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateGuest(ctx, guest); err != nil {
		return nil, fmt.Errorf("updating guest: %w", err)
	}
	s.logger.Info("guest mode changed", "hotel_id", hotelID, "guest_id", guestID, "mode", mode)
	return guest, nil
}

func (s *Service) pending(ctx context.Context, messageID string) (*store.ChannelMessage, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("loading message: %w", err)
	}
	if !reviewable(msg) {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, messageID, msg.Status)
	}
	return msg, nil
}

// reviewable reports whether staff may still act on a message: a pending
// draft, or a held draft whose approved release failed to deliver
func reviewable(msg *store.ChannelMessage) bool {
	switch msg.Status {
	case store.StatusPending:
		return true
	case store.StatusFailed:
		return msg.Suggestion != ""
	default:
		return false
	}
}
