// ABOUTME: Idempotency guard that claims at-most-one processing right per external event id
// ABOUTME: Delegates the conditional insert to a pluggable Claimer backend

package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTTL is how long a claim blocks reprocessing of the same event id
const DefaultTTL = 7 * 24 * time.Hour

// ErrExpiryUnsupported is returned by a backend that cannot bind the expiry as a parameter
var ErrExpiryUnsupported = errors.New("backend cannot bind expiry parameter")

// Ticket identifies one external event in one direction of one conversation
type Ticket struct {
	HotelID        string
	ConversationID string
	Direction      string
	SourceMsgID    string
}

// Key returns the unique ticket key
func (t Ticket) Key() string {
	return t.HotelID + ":" + t.ConversationID + ":" + t.Direction + ":" + t.SourceMsgID
}

// Claimer atomically inserts a ticket only if it is absent or expired.
// It returns true when the caller holds the claim.
type Claimer interface {
	Claim(ctx context.Context, t Ticket, now time.Time, ttl time.Duration) (bool, error)
}

// LiteralClaimer is implemented by backends that can retry a claim with the
// expiry written into the statement instead of bound as a parameter.
// It must keep the same insert-if-absent semantics as Claim.
type LiteralClaimer interface {
	ClaimLiteral(ctx context.Context, t Ticket, now time.Time, ttl time.Duration) (bool, error)
}

// Guard answers "have I already claimed this external event id"
type Guard struct {
	claimer Claimer
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a guard over the given backend. A zero ttl means DefaultTTL.
func New(claimer Claimer, ttl time.Duration, logger *slog.Logger) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		claimer: claimer,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger.With("component", "guard"),
	}
}

// Claim reports whether the caller is the first claimant of the event.
// An empty SourceMsgID is never deduplicated. ttl <= 0 uses the guard default.
func (g *Guard) Claim(ctx context.Context, t Ticket, ttl time.Duration) (bool, error) {
	if t.SourceMsgID == "" {
		return true, nil
	}
	if ttl <= 0 {
		ttl = g.ttl
	}
	now := g.now()

	applied, err := g.claimer.Claim(ctx, t, now, ttl)
	if errors.Is(err, ErrExpiryUnsupported) {
		lc, ok := g.claimer.(LiteralClaimer)
		if !ok {
			return false, fmt.Errorf("claiming %s: %w", t.Key(), err)
		}
		g.logger.Debug("falling back to literal expiry", "key", t.Key())
		applied, err = lc.ClaimLiteral(ctx, t, now, ttl)
	}
	if err != nil {
		return false, fmt.Errorf("claiming %s: %w", t.Key(), err)
	}

	if !applied {
		g.logger.Debug("duplicate event", "hotel_id", t.HotelID, "conversation_id", t.ConversationID,
			"direction", t.Direction, "source_msg_id", t.SourceMsgID)
	}
	return applied, nil
}
