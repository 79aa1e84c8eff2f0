// ABOUTME: Web transport pushing replies onto the conversation's live stream
// ABOUTME: Fire-and-forget; a disconnected viewer reads the transcript later

package delivery

import (
	"context"

	"github.com/marcelomst/begaia-gateway/internal/store"
)

// Emitter pushes a message to the viewers of its conversation
type Emitter interface {
	Emit(msg *store.ChannelMessage)
}

// Web delivers to connected web viewers
type Web struct {
	emitter Emitter
}

// NewWeb creates the web transport
func NewWeb(emitter Emitter) *Web {
	return &Web{emitter: emitter}
}

func (w *Web) Send(ctx context.Context, t Target, msg *store.ChannelMessage, att *Attachment) error {
	w.emitter.Emit(msg)
	return nil
}
