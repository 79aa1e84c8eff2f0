// ABOUTME: Claimer backed by Redis SET NX with a millisecond expiry
// ABOUTME: Falls back to a Lua script with the expiry written as a literal on servers that reject SET options

package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyGuard prefixes every guard key in Redis
const KeyGuard = "begaia:guard:"

// RedisClaimer claims tickets with SET key value NX PX ttl
type RedisClaimer struct {
	client redis.UniversalClient
	logger *slog.Logger

	mu      sync.Mutex
	scripts map[int64]*redis.Script // literal-expiry scripts by ttl in ms
}

// NewRedisClaimer creates a claimer over the given client
func NewRedisClaimer(client redis.UniversalClient, logger *slog.Logger) *RedisClaimer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisClaimer{
		client:  client,
		logger:  logger.With("component", "guard.redis"),
		scripts: make(map[int64]*redis.Script),
	}
}

// Claim implements Claimer. Servers that reject SET with NX/PX options
// yield ErrExpiryUnsupported so the guard can use ClaimLiteral.
func (c *RedisClaimer) Claim(ctx context.Context, t Ticket, now time.Time, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, KeyGuard+t.Key(), now.UnixMilli(), ttl).Result()
	if err != nil {
		if isSyntaxError(err) {
			return false, fmt.Errorf("%w: %v", ErrExpiryUnsupported, err)
		}
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// ClaimLiteral implements LiteralClaimer. SETNX and PEXPIRE run inside one
// script so the expiry is only set by the claimant.
func (c *RedisClaimer) ClaimLiteral(ctx context.Context, t Ticket, now time.Time, ttl time.Duration) (bool, error) {
	n, err := c.literalScript(ttl).Run(ctx, c.client, []string{KeyGuard + t.Key()}, now.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("redis literal claim: %w", err)
	}
	return n == 1, nil
}

func (c *RedisClaimer) literalScript(ttl time.Duration) *redis.Script {
	ms := ttl.Milliseconds()
	if ms <= 0 {
		ms = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.scripts[ms]; ok {
		return s
	}
	s := redis.NewScript(fmt.Sprintf(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 1 then
	redis.call('PEXPIRE', KEYS[1], %d)
	return 1
end
return 0`, ms))
	c.scripts[ms] = s
	return s
}

func isSyntaxError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "syntax error")
}
