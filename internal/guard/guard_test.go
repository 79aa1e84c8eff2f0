// ABOUTME: Tests for the idempotency guard and its backends
// ABOUTME: Covers at-most-once claims, expiry, literal fallback and concurrent redelivery

package guard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelomst/begaia-gateway/internal/store"
)

func ticket(id string) Ticket {
	return Ticket{HotelID: "hotel-1", ConversationID: "conv-1", Direction: "in", SourceMsgID: id}
}

// backends returns every Claimer implementation under test
func backends(t *testing.T) map[string]Claimer {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mem := NewMemoryClaimer(100)
	t.Cleanup(mem.Close)

	return map[string]Claimer{
		"store":  NewStoreClaimer(store.NewMockStore(), nil),
		"memory": mem,
		"redis":  NewRedisClaimer(client, nil),
	}
}

func TestGuard_EmptySourceIDAlwaysApplies(t *testing.T) {
	g := New(NewMemoryClaimer(10), 0, nil)

	for i := 0; i < 3; i++ {
		applied, err := g.Claim(context.Background(), ticket(""), 0)
		require.NoError(t, err)
		assert.True(t, applied)
	}
}

func TestGuard_DuplicateDeliveries(t *testing.T) {
	for name, claimer := range backends(t) {
		t.Run(name, func(t *testing.T) {
			g := New(claimer, time.Hour, nil)
			ctx := context.Background()

			applied, err := g.Claim(ctx, ticket("wamid.1"), 0)
			require.NoError(t, err)
			assert.True(t, applied, "first delivery must apply")

			for i := 0; i < 4; i++ {
				applied, err = g.Claim(ctx, ticket("wamid.1"), 0)
				require.NoError(t, err)
				assert.False(t, applied, "redelivery %d must be a duplicate", i)
			}

			applied, err = g.Claim(ctx, ticket("wamid.2"), 0)
			require.NoError(t, err)
			assert.True(t, applied, "a different event id is independent")

			out := ticket("wamid.1")
			out.Direction = "out"
			applied, err = g.Claim(ctx, out, 0)
			require.NoError(t, err)
			assert.True(t, applied, "direction is part of the key")
		})
	}
}

func TestGuard_ConcurrentDeliveriesApplyOnce(t *testing.T) {
	for name, claimer := range backends(t) {
		t.Run(name, func(t *testing.T) {
			g := New(claimer, time.Hour, nil)

			const n = 20
			var applied atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := g.Claim(context.Background(), ticket("evt-concurrent"), 0)
					assert.NoError(t, err)
					if ok {
						applied.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), applied.Load())
		})
	}
}

func TestGuard_ReclaimAfterExpiry(t *testing.T) {
	mem := NewMemoryClaimer(10)
	defer mem.Close()

	g := New(mem, time.Minute, nil)
	base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }

	applied, err := g.Claim(context.Background(), ticket("evt"), 0)
	require.NoError(t, err)
	assert.True(t, applied)

	g.now = func() time.Time { return base.Add(30 * time.Second) }
	applied, err = g.Claim(context.Background(), ticket("evt"), 0)
	require.NoError(t, err)
	assert.False(t, applied)

	g.now = func() time.Time { return base.Add(2 * time.Minute) }
	applied, err = g.Claim(context.Background(), ticket("evt"), 0)
	require.NoError(t, err)
	assert.True(t, applied, "expired ticket may be reprocessed")
}

func TestRedisClaimer_ExpiresWithServerTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	g := New(NewRedisClaimer(client, nil), time.Minute, nil)
	ctx := context.Background()

	applied, err := g.Claim(ctx, ticket("evt"), 0)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, mr.Exists(KeyGuard+ticket("evt").Key()))

	mr.FastForward(2 * time.Minute)

	applied, err = g.Claim(ctx, ticket("evt"), 0)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestRedisClaimer_LiteralExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisClaimer(client, nil)
	ctx := context.Background()
	now := time.Now()

	ok, err := c.ClaimLiteral(ctx, ticket("evt"), now, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ClaimLiteral(ctx, ticket("evt"), now, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "literal path keeps insert-if-absent semantics")

	// Same guarantee across both paths
	ok, err = c.Claim(ctx, ticket("evt"), now, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, mr.TTL(KeyGuard+ticket("evt").Key()) > 0, "literal path sets an expiry")
}

// literalOnly rejects bound expiries, like an old server, and counts fallback claims
type literalOnly struct {
	inner    *MemoryClaimer
	literals int
}

func (l *literalOnly) Claim(ctx context.Context, t Ticket, now time.Time, ttl time.Duration) (bool, error) {
	return false, ErrExpiryUnsupported
}

func (l *literalOnly) ClaimLiteral(ctx context.Context, t Ticket, now time.Time, ttl time.Duration) (bool, error) {
	l.literals++
	return l.inner.Claim(ctx, t, now, ttl)
}

func TestGuard_FallsBackToLiteralExpiry(t *testing.T) {
	mem := NewMemoryClaimer(10)
	defer mem.Close()
	backend := &literalOnly{inner: mem}
	g := New(backend, time.Hour, nil)

	applied, err := g.Claim(context.Background(), ticket("evt"), 0)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = g.Claim(context.Background(), ticket("evt"), 0)
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Equal(t, 2, backend.literals)
}

type unsupportedOnly struct{}

func (unsupportedOnly) Claim(ctx context.Context, t Ticket, now time.Time, ttl time.Duration) (bool, error) {
	return false, ErrExpiryUnsupported
}

func TestGuard_NoLiteralFallbackAvailable(t *testing.T) {
	g := New(unsupportedOnly{}, time.Hour, nil)

	_, err := g.Claim(context.Background(), ticket("evt"), 0)
	assert.ErrorIs(t, err, ErrExpiryUnsupported)
}

func TestGuard_BackendErrorIsReturned(t *testing.T) {
	ms := store.NewMockStore()
	ms.ClaimGuardErr = errors.New("disk full")
	g := New(NewStoreClaimer(ms, nil), time.Hour, nil)

	applied, err := g.Claim(context.Background(), ticket("evt"), 0)
	assert.Error(t, err)
	assert.False(t, applied)
}

func TestMemoryClaimer_EvictsOldest(t *testing.T) {
	mem := NewMemoryClaimer(2)
	defer mem.Close()
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"a", "b", "c"} {
		ok, err := mem.Claim(ctx, ticket(id), now, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 2, mem.Len())

	// "a" was evicted, so it can be claimed again
	ok, err := mem.Claim(ctx, ticket("a"), now, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryClaimer_RemoveExpired(t *testing.T) {
	mem := NewMemoryClaimer(10)
	defer mem.Close()
	now := time.Now()

	_, _ = mem.Claim(context.Background(), ticket("old"), now.Add(-time.Hour), time.Minute)
	_, _ = mem.Claim(context.Background(), ticket("live"), now, time.Hour)

	mem.removeExpired(now)
	assert.Equal(t, 1, mem.Len())
}

func TestMemoryClaimer_CloseIsIdempotent(t *testing.T) {
	mem := NewMemoryClaimer(10)
	mem.Close()
	mem.Close()
}
