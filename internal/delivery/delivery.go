// ABOUTME: Channel delivery adapter routing replies to per-channel transports
// ABOUTME: Every delivery attempt is recorded as an outbound ChannelMessage

package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marcelomst/begaia-gateway/internal/store"
)

// ErrUnknownChannel is returned when no transport is configured for a channel
var ErrUnknownChannel = errors.New("no transport for channel")

// Target identifies where a reply goes
type Target struct {
	HotelID        string
	ConversationID string
	Channel        store.Channel
	GuestID        string
	// Recipient is the channel address: a jid, an email address or a channel-manager id
	Recipient string
	Subject   string
	Locale    string
	// CorrelationID is the source event id the reply answers
	CorrelationID string
}

// Attachment is an optional document sent with a reply
type Attachment struct {
	Filename string
	MIME     string
	Data     []byte
}

// Outbound is the reply to deliver
type Outbound struct {
	Text string
	Rich map[string]any
	// Attachment is generated lazily; its failure never blocks the text
	Attachment func() (*Attachment, error)
	// Existing is a stored pending message being released after staff review
	Existing    *store.ChannelMessage
	RespondedBy string
}

// Transport sends one message on one channel
type Transport interface {
	Send(ctx context.Context, t Target, msg *store.ChannelMessage, att *Attachment) error
}

// AuditStore is what the adapter needs for the transcript
type AuditStore interface {
	SaveMessage(ctx context.Context, msg *store.ChannelMessage) error
	UpdateMessage(ctx context.Context, msg *store.ChannelMessage) error
}

// Adapter resolves the transport for a channel from a fixed table
type Adapter struct {
	store      AuditStore
	transports map[store.Channel]Transport
	now        func() time.Time
	logger     *slog.Logger
}

// NewAdapter creates an adapter over the given transports
func NewAdapter(st AuditStore, transports map[store.Channel]Transport, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	table := make(map[store.Channel]Transport, len(transports))
	for ch, tr := range transports {
		if tr != nil {
			table[ch] = tr
		}
	}
	return &Adapter{
		store:      st,
		transports: table,
		now:        time.Now,
		logger:     logger.With("component", "delivery"),
	}
}

// Supports reports whether a transport is configured for the channel
func (a *Adapter) Supports(ch store.Channel) bool {
	_, ok := a.transports[ch]
	return ok
}

// SendReply delivers a reply and records it. The audit record is written
// whatever the transport outcome; the transport error is returned.
func (a *Adapter) SendReply(ctx context.Context, t Target, o Outbound) error {
	msg := a.message(t, o)

	var sendErr error
	tr, ok := a.transports[t.Channel]
	if !ok {
		sendErr = fmt.Errorf("%w: %s", ErrUnknownChannel, t.Channel)
	} else {
		sendErr = tr.Send(ctx, t, msg, a.attachment(t, o))
	}

	if sendErr != nil {
		msg.Status = store.StatusFailed
		msg.DeliveryError = sendErr.Error()
		a.logger.Error("delivery failed", "hotel_id", t.HotelID, "conversation_id", t.ConversationID,
			"channel", t.Channel, "message_id", msg.MessageID, "error", sendErr)
	}

	auditErr := a.record(ctx, msg, o.Existing != nil)
	if auditErr != nil {
		a.logger.Error("recording delivery failed", "message_id", msg.MessageID, "error", auditErr)
	}

	if sendErr == nil {
		a.logger.Debug("reply delivered", "hotel_id", t.HotelID, "conversation_id", t.ConversationID,
			"channel", t.Channel, "message_id", msg.MessageID)
	}
	return errors.Join(sendErr, auditErr)
}

func (a *Adapter) message(t Target, o Outbound) *store.ChannelMessage {
	if o.Existing != nil {
		msg := o.Existing
		msg.Content = o.Text
		msg.ApprovedResponse = o.Text
		msg.RespondedBy = o.RespondedBy
		msg.Status = store.StatusSent
		msg.DeliveryError = ""
		return msg
	}
	return &store.ChannelMessage{
		MessageID:        uuid.NewString(),
		HotelID:          t.HotelID,
		Channel:          t.Channel,
		ConversationID:   t.ConversationID,
		Sender:           "assistant",
		GuestID:          t.GuestID,
		Content:          o.Text,
		Role:             store.RoleAI,
		Direction:        store.DirectionOut,
		Status:           store.StatusSent,
		RespondedBy:      o.RespondedBy,
		DetectedLanguage: t.Locale,
		Rich:             o.Rich,
		Timestamp:        a.now().UTC(),
	}
}

func (a *Adapter) attachment(t Target, o Outbound) *Attachment {
	if o.Attachment == nil {
		return nil
	}
	att, err := o.Attachment()
	if err != nil {
		a.logger.Warn("attachment generation failed", "hotel_id", t.HotelID,
			"conversation_id", t.ConversationID, "error", err)
		return nil
	}
	return att
}

func (a *Adapter) record(ctx context.Context, msg *store.ChannelMessage, existing bool) error {
	// The transcript write must survive a cancelled request
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if existing {
		if err := a.store.UpdateMessage(ctx, msg); err != nil {
			return fmt.Errorf("updating message %s: %w", msg.MessageID, err)
		}
		return nil
	}
	if err := a.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("saving message %s: %w", msg.MessageID, err)
	}
	return nil
}
