// ABOUTME: End-to-end tests of the gateway HTTP surface over a temp SQLite store
// ABOUTME: Covers webhooks, live streams, staff API auth and supervised review

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelomst/begaia-gateway/internal/auth"
	"github.com/marcelomst/begaia-gateway/internal/config"
	"github.com/marcelomst/begaia-gateway/internal/ingest"
	"github.com/marcelomst/begaia-gateway/internal/store"
)

const testSecret = "gateway-test-secret-0123456789abcdef"

type testGateway struct {
	gw  *Gateway
	srv *httptest.Server
}

func newTestGateway(t *testing.T, mutate func(*config.Config)) *testGateway {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	yaml := fmt.Sprintf(`server:
  http_addr: "127.0.0.1:0"
database:
  path: %q
guard:
  backend: memory
hotel:
  id: hotel999
collaborators:
  static_rates:
    double: "120 USD"
    suite: "300 USD"
auth:
  jwt_secret: %q
`, filepath.Join(dir, "gateway.db"), testSecret)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}

	gw, err := New(cfg, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		srv.Close()
		gw.closeOptionalComponents()
		_ = gw.store.Close()
	})
	return &testGateway{gw: gw, srv: srv}
}

func (tg *testGateway) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, tg.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (tg *testGateway) postWeb(t *testing.T, conversationID, messageID, text string) WebWebhookResponse {
	t.Helper()
	resp := tg.do(t, http.MethodPost, "/webhooks/web", "", WebWebhookRequest{
		HotelID:        "hotel999",
		ConversationID: conversationID,
		SessionID:      "visitor-" + conversationID,
		MessageID:      messageID,
		Text:           text,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[WebWebhookResponse](t, resp)
}

func (tg *testGateway) guestStreamPath(t *testing.T, conversationID string) string {
	t.Helper()
	token, err := tg.gw.streams.Generate("hotel999", conversationID, time.Hour)
	require.NoError(t, err)
	return "/ws/conversations/" + conversationID + "?access_token=" + token
}

func staffToken(t *testing.T, hotelID string) string {
	t.Helper()
	v, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	token, err := v.Generate(auth.StaffContext{StaffID: "maria", HotelID: hotelID, Role: auth.RoleStaff}, time.Hour)
	require.NoError(t, err)
	return token
}

func dialStream(t *testing.T, tg *testGateway, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(tg.srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ready := readFrame(t, conn)
	require.Equal(t, "ready", ready.Type)
	return conn
}

type frame struct {
	Type    string                `json:"type"`
	Message *store.ChannelMessage `json:"message"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHealth(t *testing.T) {
	tg := newTestGateway(t, nil)

	resp := tg.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = tg.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ready := decode[ReadyResponse](t, resp)
	assert.Equal(t, "ready", ready.Status)
	assert.False(t, ready.Channels["whatsapp"])
	assert.Nil(t, ready.WhatsApp)
}

func TestWebWebhook_ConversationStream(t *testing.T) {
	tg := newTestGateway(t, nil)

	res := tg.postWeb(t, "web-1", "m1", "Hola")
	assert.True(t, res.OK)
	assert.Equal(t, "web-1", res.ConversationID)
	require.NotEmpty(t, res.StreamToken)

	conn := dialStream(t, tg, "/ws/conversations/web-1?access_token="+res.StreamToken)
	tg.postWeb(t, "web-1", "m2", "Marcelo Martinez")

	in := readFrame(t, conn)
	require.NotNil(t, in.Message)
	assert.Equal(t, store.DirectionIn, in.Message.Direction)
	assert.Equal(t, "Marcelo Martinez", in.Message.Content)

	out := readFrame(t, conn)
	require.NotNil(t, out.Message)
	assert.Equal(t, store.DirectionOut, out.Message.Direction)
	assert.Equal(t, 1, strings.Count(out.Message.Content, "?"), "one question per reply: %q", out.Message.Content)
}

func TestConversationStream_RequiresStreamToken(t *testing.T) {
	tg := newTestGateway(t, nil)
	res := tg.postWeb(t, "web-5", "m1", "Hola")
	base := "ws" + strings.TrimPrefix(tg.srv.URL, "http")

	tests := []struct {
		name string
		path string
	}{
		{"no token", "/ws/conversations/web-5"},
		{"token for another conversation", "/ws/conversations/web-6?access_token=" + res.StreamToken},
		{"staff token", "/ws/conversations/web-5?access_token=" + staffToken(t, "hotel999")},
		{"garbage", "/ws/conversations/web-5?access_token=not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(base+tt.path, nil)
			if conn != nil {
				conn.Close()
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestConversationStream_WebSessionBinding(t *testing.T) {
	tg := newTestGateway(t, nil)
	tg.postWeb(t, "web-7", "m1", "Hola")

	resp := tg.do(t, http.MethodPost, "/webhooks/web", "", WebWebhookRequest{
		HotelID: "hotel999", ConversationID: "web-7", SessionID: "someone-else", MessageID: "x1", Text: "ver mi reserva",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "another session cannot obtain a stream token")

	wa := tg.do(t, http.MethodPost, "/webhooks/whatsapp", "", map[string]any{
		"id": "wamid-7", "sender": "59899111333@s.whatsapp.net", "content": "Hola", "timestamp": 1727800000,
	})
	require.Equal(t, http.StatusOK, wa.StatusCode)
	waConv := decode[ingest.Result](t, wa).ConversationID
	require.NotEmpty(t, waConv)

	resp = tg.do(t, http.MethodPost, "/webhooks/web", "", WebWebhookRequest{
		HotelID: "hotel999", ConversationID: waConv, SessionID: "visitor-x", MessageID: "x2", Text: "hola",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "a WhatsApp transcript cannot be opened from the web")
}

func TestWebWebhook_ReservationFlow(t *testing.T) {
	tg := newTestGateway(t, nil)
	token := staffToken(t, "hotel999")

	for i, text := range []string{"Marcelo Martinez", "double", "02/10/2025", "04/10/2025", "2", "CONFIRMAR"} {
		tg.postWeb(t, "web-2", "turn-"+string(rune('a'+i)), text)
	}

	resp := tg.do(t, http.MethodGet, "/api/hotels/hotel999/conversations/web-2/state", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[store.ConversationState](t, resp)
	assert.Equal(t, store.StageClose, state.SalesStage)
	require.NotNil(t, state.LastReservation)
	assert.Equal(t, "2025-10-02", state.ReservationSlots.CheckIn)

	resp = tg.do(t, http.MethodGet, "/api/hotels/hotel999/conversations/web-2/messages?limit=100", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[MessagesResponse](t, resp)
	assert.Len(t, history.Messages, 12)
}

func TestWebhooks_Validation(t *testing.T) {
	tg := newTestGateway(t, nil)

	req, err := http.NewRequest(http.MethodPost, tg.srv.URL+"/webhooks/web", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = tg.do(t, http.MethodPost, "/webhooks/web", "", WebWebhookRequest{HotelID: "hotel999", Text: "hola"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing session id")

	resp = tg.do(t, http.MethodPost, "/webhooks/channel-manager", "", map[string]any{"hotelId": "hotel999"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing guest and message")
}

func TestWebhooks_DuplicateAcknowledged(t *testing.T) {
	tg := newTestGateway(t, nil)

	first := tg.postWeb(t, "web-3", "dup-1", "Hola")
	assert.False(t, first.Deduped)
	second := tg.postWeb(t, "web-3", "dup-1", "Hola")
	assert.True(t, second.OK)
	assert.True(t, second.Deduped)
}

func TestWebhooks_OtherChannelsAcknowledge(t *testing.T) {
	tg := newTestGateway(t, nil)

	// Email is not enabled; the reply fails delivery but the event is still acknowledged
	resp := tg.do(t, http.MethodPost, "/webhooks/email", "", EmailWebhookRequest{
		HotelID: "hotel999", MessageID: "<abc@mail>", From: "Ana@Example.com", Subject: "Reserva",
		Text: "Hola, quiero reservar una habitación\n\nOn Mon, Ana wrote:\n> old text",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[ingest.Result](t, resp)
	assert.Equal(t, "ana@example.com", res.GuestID)

	cm := ChannelManagerWebhookRequest{HotelID: "hotel999", ThreadID: "thread-9", Source: "ota"}
	cm.Guest.ID = "ota-guest-1"
	cm.Message.ID = "ota-msg-1"
	cm.Message.Text = "Hello, do you have a suite available?"
	resp = tg.do(t, http.MethodPost, "/webhooks/channel-manager", "", cm)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = tg.do(t, http.MethodPost, "/webhooks/whatsapp", "", map[string]any{
		"id": "wamid-1", "sender": "59899111222@s.whatsapp.net", "content": "Hola", "timestamp": 1727800000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = decode[ingest.Result](t, resp)
	assert.Equal(t, "59899111222@s.whatsapp.net", res.GuestID)

	resp = tg.do(t, http.MethodPost, "/webhooks/whatsapp", "", map[string]any{
		"id": "wamid-2", "sender": "123@g.us", "content": "group chatter", "isGroup": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[ingest.Result](t, resp).ConversationID, "group messages are ignored")
}

func TestStaffAPI_Auth(t *testing.T) {
	tg := newTestGateway(t, nil)

	resp := tg.do(t, http.MethodGet, "/api/hotels/hotel999/messages/pending", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = tg.do(t, http.MethodGet, "/api/hotels/hotel999/messages/pending", staffToken(t, "hotel1"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = tg.do(t, http.MethodGet, "/api/hotels/hotel999/messages/pending", staffToken(t, "hotel999"), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStaffAPI_DisabledWithoutSecret(t *testing.T) {
	tg := newTestGateway(t, func(c *config.Config) { c.Auth.JWTSecret = "" })

	resp := tg.do(t, http.MethodGet, "/api/hotels/hotel999/messages/pending", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStaffAPI_SupervisedReview(t *testing.T) {
	tg := newTestGateway(t, func(c *config.Config) { c.Hotel.DefaultMode = store.ModeSupervised })
	token := staffToken(t, "hotel999")

	staff := dialStream(t, tg, "/ws/hotels/hotel999?access_token="+token)
	guest := dialStream(t, tg, tg.guestStreamPath(t, "web-4"))

	tg.postWeb(t, "web-4", "m1", "Marcelo Martinez")

	assert.Equal(t, store.DirectionIn, readFrame(t, staff).Message.Direction)
	draft := readFrame(t, staff).Message
	require.NotNil(t, draft)
	assert.Equal(t, store.StatusPending, draft.Status)
	assert.Equal(t, store.DirectionIn, readFrame(t, guest).Message.Direction, "guest sees only the inbound turn")

	resp := tg.do(t, http.MethodGet, "/api/hotels/hotel999/messages/pending", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decode[MessagesResponse](t, resp)
	require.Len(t, pending.Messages, 1)
	assert.Equal(t, draft.MessageID, pending.Messages[0].MessageID)

	resp = tg.do(t, http.MethodPost, "/api/messages/"+draft.MessageID+"/approve", staffToken(t, "hotel1"), ApproveRequest{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "other hotels cannot see the draft")

	resp = tg.do(t, http.MethodPost, "/api/messages/"+draft.MessageID+"/approve", token,
		ApproveRequest{ApprovedResponse: "¡Hola Marcelo! ¿Qué tipo de habitación preferís?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sent := decode[store.ChannelMessage](t, resp)
	assert.Equal(t, store.StatusSent, sent.Status)
	assert.Equal(t, "maria", sent.RespondedBy)

	released := readFrame(t, guest).Message
	require.NotNil(t, released)
	assert.Equal(t, "¡Hola Marcelo! ¿Qué tipo de habitación preferís?", released.Content)

	resp = tg.do(t, http.MethodPost, "/api/messages/"+draft.MessageID+"/approve", token, ApproveRequest{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = tg.do(t, http.MethodPost, "/api/messages/missing/reject", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStaffAPI_GuestMode(t *testing.T) {
	tg := newTestGateway(t, nil)
	token := staffToken(t, "hotel999")

	res := tg.postWeb(t, "web-5", "m1", "Hola")

	resp := tg.do(t, http.MethodPut, "/api/hotels/hotel999/guests/"+res.GuestID+"/mode", token, SetModeRequest{Mode: "manual"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = tg.do(t, http.MethodPut, "/api/hotels/hotel999/guests/nobody/mode", token, SetModeRequest{Mode: store.ModeSupervised})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = tg.do(t, http.MethodPut, "/api/hotels/hotel999/guests/"+res.GuestID+"/mode", token, SetModeRequest{Mode: store.ModeSupervised})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, store.ModeSupervised, decode[store.Guest](t, resp).Mode)

	tg.postWeb(t, "web-5", "m2", "Marcelo Martinez")
	resp = tg.do(t, http.MethodGet, "/api/hotels/hotel999/messages/pending", token, nil)
	assert.Len(t, decode[MessagesResponse](t, resp).Messages, 1)
}

func TestStripQuotedReply(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hola\n> quoted", "Hola"},
		{"Quiero una suite\n\nEl lun, Hotel escribió:\n> texto", "Quiero una suite"},
		{"  plain text  ", "plain text"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripQuotedReply(tt.in))
	}
}
