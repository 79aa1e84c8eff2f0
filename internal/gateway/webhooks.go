// ABOUTME: Channel webhooks decoding provider payloads into ingestion events
// ABOUTME: Malformed payloads get 400; everything else is acknowledged with {ok, deduped}

package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/marcelomst/begaia-gateway/internal/ingest"
	"github.com/marcelomst/begaia-gateway/internal/store"
	"github.com/marcelomst/begaia-gateway/internal/whatsapp"
)

// WebWebhookRequest is posted by the web chat widget
type WebWebhookRequest struct {
	HotelID        string `json:"hotelId"`
	ConversationID string `json:"conversationId,omitempty"`
	SessionID      string `json:"sessionId"`
	MessageID      string `json:"messageId,omitempty"`
	Text           string `json:"text"`
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

// WebWebhookResponse adds the token the widget uses to open its conversation stream
type WebWebhookResponse struct {
	ingest.Result
	StreamToken string `json:"streamToken,omitempty"`
}

// WhatsAppWebhookRequest is posted by a bridge running in webhook mode
type WhatsAppWebhookRequest struct {
	HotelID string `json:"hotelId,omitempty"`
	whatsapp.Inbound
}

// EmailWebhookRequest is posted by the inbound mail relay
type EmailWebhookRequest struct {
	HotelID   string `json:"hotelId"`
	MessageID string `json:"messageId,omitempty"`
	From      string `json:"from"`
	FromName  string `json:"fromName,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Text      string `json:"text"`
}

// ChannelManagerWebhookRequest is posted by the OTA channel manager
type ChannelManagerWebhookRequest struct {
	HotelID  string `json:"hotelId"`
	ThreadID string `json:"threadId"`
	Source   string `json:"source,omitempty"`
	Guest    struct {
		ID    string `json:"id"`
		Name  string `json:"name,omitempty"`
		Email string `json:"email,omitempty"`
		Phone string `json:"phone,omitempty"`
		Doc   string `json:"doc,omitempty"`
	} `json:"guest"`
	Message struct {
		ID     string    `json:"id"`
		Text   string    `json:"text"`
		SentAt time.Time `json:"sentAt"`
	} `json:"message"`
}

func (g *Gateway) handleWebWebhook(w http.ResponseWriter, r *http.Request) {
	var req WebWebhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, ok := g.runIngest(w, r, ingest.Event{
		HotelID:        req.HotelID,
		ConversationID: req.ConversationID,
		Channel:        store.ChannelWeb,
		From:           req.SessionID,
		Content:        req.Text,
		SourceMsgID:    req.MessageID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
	})
	if !ok {
		return
	}

	resp := WebWebhookResponse{Result: *res}
	if res.ConversationID != "" {
		token, err := g.streams.Generate(req.HotelID, res.ConversationID, streamTokenTTL)
		if err != nil {
			g.logger.Error("signing stream token", "conversation_id", res.ConversationID, "error", err)
		}
		resp.StreamToken = token
	}
	respondJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	var req WhatsAppWebhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.IsGroup {
		respondJSON(w, http.StatusOK, ingest.Result{OK: true})
		return
	}

	hotelID := req.HotelID
	if hotelID == "" {
		hotelID = g.config.Hotel.ID
	}
	ev := ingest.Event{
		HotelID:     hotelID,
		Channel:     store.ChannelWhatsApp,
		From:        req.From(),
		Content:     req.Content,
		SourceMsgID: req.ID,
		Name:        req.PushName,
		Phone:       whatsapp.PhoneFromJID(req.From()),
	}
	if req.Timestamp > 0 {
		ev.Timestamp = time.Unix(req.Timestamp, 0).UTC()
	}
	g.ingestEvent(w, r, ev)
}

func (g *Gateway) handleEmailWebhook(w http.ResponseWriter, r *http.Request) {
	var req EmailWebhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	g.ingestEvent(w, r, ingest.Event{
		HotelID:     req.HotelID,
		Channel:     store.ChannelEmail,
		From:        req.From,
		Content:     stripQuotedReply(req.Text),
		SourceMsgID: req.MessageID,
		Name:        req.FromName,
		Subject:     req.Subject,
	})
}

func (g *Gateway) handleChannelManagerWebhook(w http.ResponseWriter, r *http.Request) {
	var req ChannelManagerWebhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	g.ingestEvent(w, r, ingest.Event{
		HotelID:     req.HotelID,
		Channel:     store.ChannelChannelManager,
		From:        req.Guest.ID,
		Content:     req.Message.Text,
		Timestamp:   req.Message.SentAt,
		SourceMsgID: req.Message.ID,
		Name:        req.Guest.Name,
		Email:       req.Guest.Email,
		Phone:       req.Guest.Phone,
		Doc:         req.Guest.Doc,
		Recipient:   req.ThreadID,
		Source:      req.Source,
	})
}

func (g *Gateway) ingestEvent(w http.ResponseWriter, r *http.Request, ev ingest.Event) {
	if res, ok := g.runIngest(w, r, ev); ok {
		respondJSON(w, http.StatusOK, res)
	}
}

// runIngest hands ev to ingestion. It writes the 400 itself and returns false for invalid events.
func (g *Gateway) runIngest(w http.ResponseWriter, r *http.Request, ev ingest.Event) (*ingest.Result, bool) {
	res, err := g.ingest.Handle(r.Context(), ev)
	if errors.Is(err, ingest.ErrInvalidEvent) {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err != nil {
		// Anything but validation is acknowledged to stop retries
		g.logger.Error("ingesting event", "channel", ev.Channel, "error", err)
		return &ingest.Result{OK: true}, true
	}
	return res, true
}

// stripQuotedReply drops the quoted history mail clients append to replies
func stripQuotedReply(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") || isReplyHeader(trimmed) {
			return strings.TrimSpace(strings.Join(lines[:i], "\n"))
		}
	}
	return strings.TrimSpace(text)
}

func isReplyHeader(line string) bool {
	for _, prefix := range []string{"On ", "El ", "Em "} {
		if strings.HasPrefix(line, prefix) && strings.HasSuffix(line, ":") &&
			(strings.Contains(line, "wrote") || strings.Contains(line, "escribió") || strings.Contains(line, "escreveu")) {
			return true
		}
	}
	return false
}
