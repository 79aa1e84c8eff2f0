// ABOUTME: Staff API handlers for supervised review, transcripts, dialogue state and guest modes
// ABOUTME: Routes are mounted behind JWT auth; hotel access is checked per request

package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/marcelomst/begaia-gateway/internal/auth"
	"github.com/marcelomst/begaia-gateway/internal/conversation"
	"github.com/marcelomst/begaia-gateway/internal/delivery"
	"github.com/marcelomst/begaia-gateway/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ApproveRequest is the JSON body of POST /api/messages/{messageId}/approve
type ApproveRequest struct {
	// ApprovedResponse replaces the suggestion when set
	ApprovedResponse string `json:"approvedResponse,omitempty"`
	RespondedBy      string `json:"respondedBy,omitempty"`
}

// RejectRequest is the JSON body of POST /api/messages/{messageId}/reject
type RejectRequest struct {
	RespondedBy string `json:"respondedBy,omitempty"`
}

// SetModeRequest is the JSON body of PUT /api/hotels/{hotelId}/guests/{guestId}/mode
type SetModeRequest struct {
	Mode string `json:"mode"`
}

// MessagesResponse wraps a list of transcript messages
type MessagesResponse struct {
	Messages []*store.ChannelMessage `json:"messages"`
}

func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

// handleListPending handles GET /api/hotels/{hotelId}/messages/pending
func (g *Gateway) handleListPending(w http.ResponseWriter, r *http.Request) {
	msgs, err := g.review.ListPending(r.Context(), mux.Vars(r)["hotelId"], listLimit(r))
	if err != nil {
		g.logger.Error("listing pending messages", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to list pending messages")
		return
	}
	respondJSON(w, http.StatusOK, MessagesResponse{Messages: nonNil(msgs)})
}

// handleConversationMessages handles GET /api/hotels/{hotelId}/conversations/{conversationId}/messages
func (g *Gateway) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	msgs, err := g.review.History(r.Context(), vars["hotelId"], vars["conversationId"], listLimit(r))
	if err != nil {
		g.logger.Error("listing conversation messages", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	respondJSON(w, http.StatusOK, MessagesResponse{Messages: nonNil(msgs)})
}

// handleConversationState handles GET /api/hotels/{hotelId}/conversations/{conversationId}/state
func (g *Gateway) handleConversationState(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	state, err := g.engine.State(r.Context(), vars["hotelId"], vars["conversationId"])
	if errors.Is(err, store.ErrNotFound) {
		sendJSONError(w, http.StatusNotFound, "conversation state not found")
		return
	}
	if err != nil {
		g.logger.Error("loading conversation state", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to load state")
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// handleSetGuestMode handles PUT /api/hotels/{hotelId}/guests/{guestId}/mode
func (g *Gateway) handleSetGuestMode(w http.ResponseWriter, r *http.Request) {
	var req SetModeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	vars := mux.Vars(r)
	guest, err := g.review.SetGuestMode(r.Context(), vars["hotelId"], vars["guestId"], req.Mode)
	switch {
	case errors.Is(err, conversation.ErrInvalidMode):
		sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		sendJSONError(w, http.StatusNotFound, "guest not found")
	case err != nil:
		g.logger.Error("setting guest mode", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to set guest mode")
	default:
		respondJSON(w, http.StatusOK, guest)
	}
}

// authorizeMessage loads a message and checks the caller may act for its hotel.
// It writes the error response and returns nil when the request must stop.
func (g *Gateway) authorizeMessage(w http.ResponseWriter, r *http.Request) *store.ChannelMessage {
	msg, err := g.store.GetMessage(r.Context(), mux.Vars(r)["messageId"])
	if errors.Is(err, store.ErrNotFound) {
		sendJSONError(w, http.StatusNotFound, "message not found")
		return nil
	}
	if err != nil {
		g.logger.Error("loading message", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to load message")
		return nil
	}
	staff := auth.FromContext(r.Context())
	if staff == nil || !staff.CanAccess(msg.HotelID) {
		// Same answer as a missing message so ids of other hotels cannot be discovered
		sendJSONError(w, http.StatusNotFound, "message not found")
		return nil
	}
	return msg
}

func respondedBy(r *http.Request, given string) string {
	if given != "" {
		return given
	}
	if staff := auth.FromContext(r.Context()); staff != nil {
		return staff.StaffID
	}
	return ""
}

// handleApprove handles POST /api/messages/{messageId}/approve
func (g *Gateway) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg := g.authorizeMessage(w, r)
	if msg == nil {
		return
	}

	sent, err := g.review.Approve(r.Context(), msg.MessageID, req.ApprovedResponse, respondedBy(r, req.RespondedBy))
	switch {
	case errors.Is(err, conversation.ErrNotPending):
		sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, delivery.ErrTransportNotReady):
		sendJSONError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil && sent != nil:
		sendJSONError(w, http.StatusBadGateway, err.Error())
	case err != nil:
		g.logger.Error("approving message", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to approve message")
	default:
		respondJSON(w, http.StatusOK, sent)
	}
}

// handleReject handles POST /api/messages/{messageId}/reject
func (g *Gateway) handleReject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	msg := g.authorizeMessage(w, r)
	if msg == nil {
		return
	}

	rejected, err := g.review.Reject(r.Context(), msg.MessageID, respondedBy(r, req.RespondedBy))
	switch {
	case errors.Is(err, conversation.ErrNotPending):
		sendJSONError(w, http.StatusConflict, err.Error())
	case err != nil:
		g.logger.Error("rejecting message", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to reject message")
	default:
		respondJSON(w, http.StatusOK, rejected)
	}
}

func nonNil(msgs []*store.ChannelMessage) []*store.ChannelMessage {
	if msgs == nil {
		return []*store.ChannelMessage{}
	}
	return msgs
}
