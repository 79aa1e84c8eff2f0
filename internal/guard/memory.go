// ABOUTME: Thread-safe in-process TTL cache used as a guard backend
// ABOUTME: Size-limited with oldest-first eviction for single-instance deployments

package guard

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry stores the expiry and list element for a claimed key.
type memoryEntry struct {
	expiresAt time.Time
	element   *list.Element
}

// MemoryClaimer keeps claims in memory. Claims do not survive a restart
// and are not shared between instances.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction.
type MemoryClaimer struct {
	mu      sync.Mutex
	seen    map[string]*memoryEntry
	order   *list.List // keys in claim order (oldest at front)
	maxSize int
	done    chan struct{}
	closed  bool
}

// NewMemoryClaimer creates an in-memory claimer holding at most maxSize keys.
// A background goroutine periodically removes expired entries.
func NewMemoryClaimer(maxSize int) *MemoryClaimer {
	if maxSize <= 0 {
		maxSize = 100000
	}
	c := &MemoryClaimer{
		seen:    make(map[string]*memoryEntry),
		order:   list.New(),
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Claim implements Claimer. Checking and marking happen under one lock.
func (c *MemoryClaimer) Claim(ctx context.Context, t Ticket, now time.Time, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := t.Key()
	if entry, ok := c.seen[key]; ok {
		if entry.expiresAt.After(now) {
			return false, nil
		}
		entry.expiresAt = now.Add(ttl)
		c.order.MoveToBack(entry.element)
		return true, nil
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &memoryEntry{expiresAt: now.Add(ttl), element: elem}
	return true, nil
}

// Len returns the number of tracked keys
func (c *MemoryClaimer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *MemoryClaimer) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *MemoryClaimer) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			c.removeExpired(now)
		case <-c.done:
			return
		}
	}
}

func (c *MemoryClaimer) removeExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.seen {
		if !entry.expiresAt.After(now) {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *MemoryClaimer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
