// ABOUTME: WhatsApp transport with bounded readiness wait and incremental backoff
// ABOUTME: Raises NotReadyError and keeps readiness-wait counters when the bridge stays down

package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/marcelomst/begaia-gateway/internal/store"
	"github.com/marcelomst/begaia-gateway/internal/whatsapp"
)

// ErrTransportNotReady matches every NotReadyError
var ErrTransportNotReady = errors.New("transport not ready")

// NotReadyError reports a transport that did not become ready in time. Callers may retry.
type NotReadyError struct {
	Channel  store.Channel
	Attempts int
	Waited   time.Duration
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s transport not ready after %d attempts (%s)", e.Channel, e.Attempts, e.Waited)
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrTransportNotReady
}

// Bridge is the messaging-app transport
type Bridge interface {
	IsReady() bool
	SendText(ctx context.Context, jid, text string) error
	SendDocument(ctx context.Context, jid string, data []byte, filename, mime string) error
}

// ReadinessStats are the readiness-wait counters
type ReadinessStats struct {
	Ready     bool  `json:"ready"`
	Attempts  int64 `json:"attempts"`
	Waits     int64 `json:"waits"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
	WaitedMS  int64 `json:"waitedMs"`
}

const pollInterval = 100 * time.Millisecond

// WhatsApp delivers through the bridge
type WhatsApp struct {
	bridge  Bridge
	timeout time.Duration
	backoff []time.Duration
	poll    time.Duration
	logger  *slog.Logger

	attempts  atomic.Int64
	waits     atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	waitedMS  atomic.Int64
}

// NewWhatsApp creates the transport. timeout bounds the first wait; each backoff
// step is one more wait before giving up.
func NewWhatsApp(bridge Bridge, timeout time.Duration, backoff []time.Duration, logger *slog.Logger) *WhatsApp {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsApp{
		bridge:  bridge,
		timeout: timeout,
		backoff: backoff,
		poll:    min(pollInterval, max(timeout, time.Millisecond)),
		logger:  logger.With("component", "delivery.whatsapp"),
	}
}

// Send waits for the bridge, sends the text and then the optional document
func (w *WhatsApp) Send(ctx context.Context, t Target, msg *store.ChannelMessage, att *Attachment) error {
	if t.Recipient == "" {
		return errors.New("whatsapp recipient is empty")
	}
	if err := w.AwaitReady(ctx); err != nil {
		return err
	}

	jid := whatsapp.JID(t.Recipient)
	if err := w.bridge.SendText(ctx, jid, msg.Content); err != nil {
		return fmt.Errorf("sending whatsapp text: %w", err)
	}

	if att != nil {
		if err := w.bridge.SendDocument(ctx, jid, att.Data, att.Filename, att.MIME); err != nil {
			w.logger.Warn("sending whatsapp document failed", "conversation_id", t.ConversationID,
				"filename", att.Filename, "error", err)
		}
	}
	return nil
}

// AwaitReady returns once the bridge is ready, or a NotReadyError
func (w *WhatsApp) AwaitReady(ctx context.Context) error {
	if w.bridge.IsReady() {
		return nil
	}

	start := time.Now()
	w.waits.Add(1)
	defer func() { w.waitedMS.Add(time.Since(start).Milliseconds()) }()

	attempts := 1
	w.attempts.Add(1)
	ready, err := w.waitFor(ctx, w.timeout)
	for i := 0; !ready && err == nil && i < len(w.backoff); i++ {
		w.logger.Warn("whatsapp bridge not ready, backing off", "attempt", attempts, "delay", w.backoff[i])
		attempts++
		w.attempts.Add(1)
		ready, err = w.waitFor(ctx, w.backoff[i])
	}
	if err != nil {
		w.failures.Add(1)
		return err
	}
	if ready {
		w.successes.Add(1)
		return nil
	}

	w.failures.Add(1)
	return &NotReadyError{Channel: store.ChannelWhatsApp, Attempts: attempts, Waited: time.Since(start)}
}

// waitFor polls readiness for up to d
func (w *WhatsApp) waitFor(ctx context.Context, d time.Duration) (bool, error) {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return w.bridge.IsReady(), nil
		case <-ticker.C:
			if w.bridge.IsReady() {
				return true, nil
			}
		}
	}
}

// Stats returns the readiness counters
func (w *WhatsApp) Stats() ReadinessStats {
	return ReadinessStats{
		Ready:     w.bridge.IsReady(),
		Attempts:  w.attempts.Load(),
		Waits:     w.waits.Load(),
		Successes: w.successes.Load(),
		Failures:  w.failures.Load(),
		WaitedMS:  w.waitedMS.Load(),
	}
}
