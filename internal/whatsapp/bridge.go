// ABOUTME: WhatsApp bridge client speaking JSON frames over a websocket
// ABOUTME: Tracks transport readiness from status frames and reconnects with backoff

package whatsapp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned when sending without an open bridge connection
var ErrNotConnected = errors.New("whatsapp bridge not connected")

const (
	writeTimeout = 10 * time.Second
	jidSuffix    = "@s.whatsapp.net"
)

// Inbound is a message received from the bridge
type Inbound struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	PN        string `json:"pn"`
	Content   string `json:"content"`
	PushName  string `json:"pushName"`
	Timestamp int64  `json:"timestamp"`
	IsGroup   bool   `json:"isGroup"`
}

// From returns the best sender id: the phone-number jid when the bridge knows it
func (m Inbound) From() string {
	if m.PN != "" {
		return m.PN
	}
	return m.Sender
}

// Handler receives inbound bridge messages
type Handler func(ctx context.Context, msg Inbound)

type frame struct {
	Type     string `json:"type"`
	Token    string `json:"token,omitempty"`
	To       string `json:"to,omitempty"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	Filename string `json:"filename,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
}

// Client maintains the bridge connection
type Client struct {
	url       string
	token     string
	handler   Handler
	reconnect []time.Duration
	dialer    *websocket.Dialer
	logger    *slog.Logger

	ready atomic.Bool

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a bridge client. Run must be called to connect.
func NewClient(url, token string, handler Handler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		url = "ws://localhost:3001"
	}
	return &Client{
		url:       url,
		token:     token,
		handler:   handler,
		reconnect: []time.Duration{time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second},
		dialer:    websocket.DefaultDialer,
		logger:    logger.With("component", "whatsapp"),
	}
}

// IsReady reports whether the bridge said it is connected to WhatsApp
func (c *Client) IsReady() bool {
	return c.ready.Load()
}

// Run connects and reads frames until ctx is done, reconnecting on failure
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := c.session(ctx)
		c.ready.Store(false)
		if ctx.Err() != nil {
			return nil
		}

		delay := c.reconnect[min(attempt, len(c.reconnect)-1)]
		c.logger.Warn("bridge connection lost", "error", err, "retry_in", delay)
		attempt++

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("dialing bridge: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	if c.token != "" {
		if err := c.write(frame{Type: "auth", Token: c.token}); err != nil {
			return err
		}
	}

	// Unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.logger.Info("bridge connected", "url", c.url)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading bridge frame: %w", err)
		}
		c.handleFrame(ctx, raw)
	}
}

func (c *Client) handleFrame(ctx context.Context, raw []byte) {
	var head struct {
		Type   string `json:"type"`
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		c.logger.Debug("ignoring malformed bridge frame", "error", err)
		return
	}

	switch head.Type {
	case "status":
		connected := head.Status == "connected"
		c.ready.Store(connected)
		c.logger.Info("whatsapp status", "status", head.Status)
	case "message":
		var msg Inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Debug("ignoring malformed message frame", "error", err)
			return
		}
		if msg.IsGroup || c.handler == nil {
			return
		}
		// Handlers send replies through this client; never block the read loop on them
		go c.handler(ctx, msg)
	case "qr":
		c.logger.Warn("scan the QR code in the bridge terminal to link WhatsApp")
	case "error":
		c.logger.Error("bridge error", "error", head.Error)
	}
}

// SendText sends a text message to a jid
func (c *Client) SendText(ctx context.Context, jid, text string) error {
	return c.write(frame{Type: "send", To: jid, Text: text})
}

// SendDocument sends a file to a jid
func (c *Client) SendDocument(ctx context.Context, jid string, data []byte, filename, mime string) error {
	return c.write(frame{
		Type:     "send_document",
		To:       jid,
		Data:     base64.StdEncoding.EncodeToString(data),
		Filename: filename,
		Mimetype: mime,
	})
}

func (c *Client) write(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("writing %s frame: %w", f.Type, err)
	}
	return nil
}

// JID turns a phone number or jid into a user jid
func JID(id string) string {
	if strings.Contains(id, "@") {
		return id
	}
	var b strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String() + jidSuffix
}

// PhoneFromJID returns the E.164 phone of a user jid, or "" for other jids
func PhoneFromJID(jid string) string {
	user, ok := strings.CutSuffix(jid, jidSuffix)
	if !ok || user == "" {
		return ""
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return "+" + user
}
