// ABOUTME: Channel-manager transport relaying replies as message.outbound.v1 events
// ABOUTME: The channel manager owns the final hop to OTA inboxes

package delivery

import (
	"context"
	"fmt"

	"github.com/marcelomst/begaia-gateway/internal/events"
	"github.com/marcelomst/begaia-gateway/internal/store"
)

// ChannelManager publishes replies for the channel manager to deliver
type ChannelManager struct {
	publisher events.Publisher
}

// NewChannelManager creates the relay transport
func NewChannelManager(publisher events.Publisher) *ChannelManager {
	return &ChannelManager{publisher: publisher}
}

func (c *ChannelManager) Send(ctx context.Context, t Target, msg *store.ChannelMessage, att *Attachment) error {
	payload := events.MessageOutbound{
		HotelID:        t.HotelID,
		ConversationID: t.ConversationID,
		MessageID:      msg.MessageID,
		Recipient:      t.Recipient,
		Text:           msg.Content,
	}
	if att != nil {
		payload.Attachment = att.Filename
	}
	env := events.NewEnvelope(events.TypeMessageOutbound, t.CorrelationID, payload)
	if err := c.publisher.Publish(ctx, events.TypeMessageOutbound, env); err != nil {
		return fmt.Errorf("relaying to channel manager: %w", err)
	}
	return nil
}
