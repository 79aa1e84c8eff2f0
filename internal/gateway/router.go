// ABOUTME: HTTP routing for webhooks, staff API, live streams and health checks
// ABOUTME: Uses gorilla/mux with request logging and JSON response helpers

package gateway

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/marcelomst/begaia-gateway/internal/auth"
	"github.com/marcelomst/begaia-gateway/internal/delivery"
)

// maxBodyBytes bounds webhook and API request bodies
const maxBodyBytes = 1 << 20

// Handler returns the gateway's HTTP handler
func (g *Gateway) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(g.loggingMiddleware)

	r.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", g.handleReady).Methods(http.MethodGet)

	hooks := r.PathPrefix("/webhooks").Subrouter()
	hooks.HandleFunc("/web", g.handleWebWebhook).Methods(http.MethodPost)
	hooks.HandleFunc("/whatsapp", g.handleWhatsAppWebhook).Methods(http.MethodPost)
	hooks.HandleFunc("/email", g.handleEmailWebhook).Methods(http.MethodPost)
	hooks.HandleFunc("/channel-manager", g.handleChannelManagerWebhook).Methods(http.MethodPost)

	// Web guests present the stream token returned by the web webhook
	r.HandleFunc("/ws/conversations/{conversationId}", g.handleConversationStream).Methods(http.MethodGet)

	if g.verifier == nil {
		return r
	}

	requireAuth := auth.HTTPAuthMiddleware(g.verifier)
	requireHotel := auth.RequireHotel(func(r *http.Request) string { return mux.Vars(r)["hotelId"] })

	staffWS := r.PathPrefix("/ws/hotels/{hotelId}").Subrouter()
	staffWS.Use(requireAuth, requireHotel)
	staffWS.HandleFunc("", g.handleHotelStream).Methods(http.MethodGet)

	hotels := r.PathPrefix("/api/hotels/{hotelId}").Subrouter()
	hotels.Use(requireAuth, requireHotel)
	hotels.HandleFunc("/messages/pending", g.handleListPending).Methods(http.MethodGet)
	hotels.HandleFunc("/conversations/{conversationId}/messages", g.handleConversationMessages).Methods(http.MethodGet)
	hotels.HandleFunc("/conversations/{conversationId}/state", g.handleConversationState).Methods(http.MethodGet)
	hotels.HandleFunc("/guests/{guestId}/mode", g.handleSetGuestMode).Methods(http.MethodPut)

	// Message routes check the hotel after loading the message
	messages := r.PathPrefix("/api/messages/{messageId}").Subrouter()
	messages.Use(requireAuth)
	messages.HandleFunc("/approve", g.handleApprove).Methods(http.MethodPost)
	messages.HandleFunc("/reject", g.handleReject).Methods(http.MethodPost)

	return r
}

// loggingMiddleware logs each request with method, path, status and duration
func (g *Gateway) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		g.logger.Debug("http request", "method", r.Method, "path", r.URL.Path,
			"status", rw.statusCode, "duration", time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the logging middleware
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// sendJSONError writes a JSON error response
func sendJSONError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ReadyResponse is the JSON body of GET /health/ready
type ReadyResponse struct {
	Status   string                   `json:"status"`
	Uptime   string                   `json:"uptime"`
	Channels map[string]bool          `json:"channels"`
	WhatsApp *WhatsAppReadinessReport `json:"whatsapp,omitempty"`
}

// WhatsAppReadinessReport carries bridge state and readiness-wait metrics
type WhatsAppReadinessReport struct {
	Connected bool                    `json:"connected"`
	Waits     delivery.ReadinessStats `json:"waits"`
}

// handleReady reports channel readiness. It returns 503 while an enabled
// WhatsApp bridge is disconnected.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{
		Status: "ready",
		Uptime: time.Since(g.startedAt).Round(time.Second).String(),
		Channels: map[string]bool{
			"web":            true,
			"channelManager": true,
			"email":          g.config.Channels.Email.Enabled,
			"whatsapp":       g.whatsappClient != nil,
		},
	}

	status := http.StatusOK
	if g.whatsappClient != nil {
		connected := g.whatsappClient.IsReady()
		resp.WhatsApp = &WhatsAppReadinessReport{Connected: connected, Waits: g.whatsappTransport.Stats()}
		if !connected {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, status, resp)
}
