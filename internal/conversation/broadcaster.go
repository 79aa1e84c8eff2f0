// ABOUTME: In-memory fan-out of conversation messages to live web viewers
// ABOUTME: Guests follow one conversation key; staff follow the whole hotel key

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/marcelomst/begaia-gateway/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber
	subscriberBufferSize = 64
)

// ConversationKey is the stream key a guest's web page subscribes to
func ConversationKey(conversationID string) string {
	return "conv:" + conversationID
}

// HotelKey is the stream key the staff dashboard subscribes to
func HotelKey(hotelID string) string {
	return "hotel:" + hotelID
}

// EventBroadcaster provides in-memory pub/sub for persisted ChannelMessages.
// Publishing never blocks: a subscriber whose buffer is full misses the message
// and catches up from the transcript.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *store.ChannelMessage // key -> subID -> ch
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan *store.ChannelMessage),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for messages on the given key.
// The subscription is removed when ctx is cancelled.
func (b *EventBroadcaster) Subscribe(ctx context.Context, key string) (<-chan *store.ChannelMessage, string) {
	subID := uuid.New().String()
	ch := make(chan *store.ChannelMessage, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[string]chan *store.ChannelMessage)
	}
	b.subscribers[key][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "key", key, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(key, subID)
	}()

	return ch, subID
}

// Emit publishes a message to its hotel stream. Web messages that are not
// pending staff drafts also go to their conversation stream; other channels
// have their own transport and never reach a guest-facing stream.
func (b *EventBroadcaster) Emit(msg *store.ChannelMessage) {
	b.Publish(HotelKey(msg.HotelID), msg, "")
	if msg.Channel != store.ChannelWeb || msg.Status == store.StatusPending {
		return
	}
	b.Publish(ConversationKey(msg.ConversationID), msg, "")
}

// Publish sends a message to all subscribers of key except excludeSubID
func (b *EventBroadcaster) Publish(key string, msg *store.ChannelMessage, excludeSubID string) {
	// Sends are non-blocking, so holding the read lock keeps Unsubscribe from
	// closing a channel mid-send
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers[key] {
		if excludeSubID != "" && id == excludeSubID {
			continue
		}
		select {
		case ch <- msg:
		default:
			b.logger.Debug("dropped message for slow subscriber", "key", key, "message_id", msg.MessageID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel
func (b *EventBroadcaster) Unsubscribe(key, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[key]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, key)
	}

	b.logger.Debug("subscriber removed", "key", key, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}

	b.logger.Debug("broadcaster closed")
}
