// ABOUTME: Websocket live streams of transcript messages for guests and staff
// ABOUTME: Bridges EventBroadcaster subscriptions onto gorilla/websocket connections

package gateway

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/marcelomst/begaia-gateway/internal/conversation"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

func (g *Gateway) upgrader() *websocket.Upgrader {
	allowed := g.config.Channels.Web.AllowedOrigins
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || origin == "" || slices.Contains(allowed, origin)
		},
	}
}

// StreamEvent is one frame pushed to a stream
type StreamEvent struct {
	Type    string `json:"type"`
	Message any    `json:"message,omitempty"`
}

// streamTokenTTL bounds how long a web page may keep reconnecting with one token
const streamTokenTTL = 24 * time.Hour

// handleConversationStream handles GET /ws/conversations/{conversationId}?access_token=...
// The token must be a stream grant for this conversation; only web messages are pushed here.
func (g *Gateway) handleConversationStream(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["conversationId"]
	token := r.URL.Query().Get("access_token")
	if token == "" {
		sendJSONError(w, http.StatusUnauthorized, "missing stream token")
		return
	}
	if _, err := g.streams.Verify(token, convID); err != nil {
		g.logger.Debug("stream token rejected", "conversation_id", convID, "error", err)
		sendJSONError(w, http.StatusUnauthorized, "invalid stream token")
		return
	}
	g.serveStream(w, r, conversation.ConversationKey(convID))
}

// handleHotelStream handles GET /ws/hotels/{hotelId}; staff see pending drafts too
func (g *Gateway) handleHotelStream(w http.ResponseWriter, r *http.Request) {
	g.serveStream(w, r, conversation.HotelKey(mux.Vars(r)["hotelId"]))
}

func (g *Gateway) serveStream(w http.ResponseWriter, r *http.Request, key string) {
	conn, err := g.upgrader().Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "key", key, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	msgs, _ := g.eventBroadcaster.Subscribe(ctx, key)
	g.logger.Debug("stream opened", "key", key)

	// The read loop only services control frames and notices the close
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	if err := g.writeFrame(conn, StreamEvent{Type: "ready"}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(streamWriteWait))
				return
			}
			if err := g.writeFrame(conn, StreamEvent{Type: "message", Message: msg}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) writeFrame(conn *websocket.Conn, ev StreamEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(ev)
}
