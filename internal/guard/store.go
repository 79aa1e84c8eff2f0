// ABOUTME: Claimer backed by the document store's message_guards collection
// ABOUTME: Includes a purge loop that drops expired tickets

package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/marcelomst/begaia-gateway/internal/store"
)

// StoreClaimer claims tickets through store.Store.ClaimGuard
type StoreClaimer struct {
	store  store.Store
	logger *slog.Logger
}

// NewStoreClaimer creates a claimer over the given store
func NewStoreClaimer(s store.Store, logger *slog.Logger) *StoreClaimer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreClaimer{store: s, logger: logger.With("component", "guard.store")}
}

// Claim implements Claimer
func (c *StoreClaimer) Claim(ctx context.Context, t Ticket, now time.Time, ttl time.Duration) (bool, error) {
	return c.store.ClaimGuard(ctx, &store.MessageGuard{
		HotelID:        t.HotelID,
		ConversationID: t.ConversationID,
		Direction:      t.Direction,
		SourceMsgID:    t.SourceMsgID,
		ClaimedAt:      now,
		ExpiresAt:      now.Add(ttl),
	})
}

// RunPurger deletes expired tickets every interval until ctx is cancelled
func (c *StoreClaimer) RunPurger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := c.store.PurgeExpiredGuards(ctx, now)
			if err != nil {
				c.logger.Warn("purging expired guards failed", "error", err)
				continue
			}
			if n > 0 {
				c.logger.Debug("purged expired guards", "count", n)
			}
		}
	}
}
