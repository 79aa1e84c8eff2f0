// ABOUTME: Tests for the delivery adapter and its transports
// ABOUTME: Covers audit records, readiness waits, attachments and event relay

package delivery

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelomst/begaia-gateway/internal/events"
	"github.com/marcelomst/begaia-gateway/internal/store"
)

type recordingEmitter struct {
	mu   sync.Mutex
	msgs []*store.ChannelMessage
}

func (r *recordingEmitter) Emit(msg *store.ChannelMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

type failingTransport struct{ err error }

func (f failingTransport) Send(ctx context.Context, t Target, msg *store.ChannelMessage, att *Attachment) error {
	return f.err
}

type captureTransport struct {
	att *Attachment
	msg *store.ChannelMessage
}

func (c *captureTransport) Send(ctx context.Context, t Target, msg *store.ChannelMessage, att *Attachment) error {
	c.msg = msg
	c.att = att
	return nil
}

func webTarget() Target {
	return Target{HotelID: "h1", ConversationID: "c1", Channel: store.ChannelWeb, GuestID: "g1", Locale: "es"}
}

func TestAdapter_WebDeliveryIsAudited(t *testing.T) {
	st := store.NewMockStore()
	emitter := &recordingEmitter{}
	a := NewAdapter(st, map[store.Channel]Transport{store.ChannelWeb: NewWeb(emitter)}, nil)

	err := a.SendReply(context.Background(), webTarget(), Outbound{Text: "¿Me indicás tu nombre?"})
	require.NoError(t, err)

	require.Len(t, emitter.msgs, 1)
	msgs, err := st.ListMessages(context.Background(), "h1", "c1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.RoleAI, msgs[0].Role)
	assert.Equal(t, store.DirectionOut, msgs[0].Direction)
	assert.Equal(t, store.StatusSent, msgs[0].Status)
	assert.Equal(t, emitter.msgs[0].MessageID, msgs[0].MessageID)
}

func TestAdapter_FailuresStillAudited(t *testing.T) {
	st := store.NewMockStore()
	boom := errors.New("smtp down")
	a := NewAdapter(st, map[store.Channel]Transport{store.ChannelEmail: failingTransport{err: boom}}, nil)

	target := webTarget()
	target.Channel = store.ChannelEmail
	err := a.SendReply(context.Background(), target, Outbound{Text: "hola"})
	assert.ErrorIs(t, err, boom)

	target.Channel = store.ChannelWhatsApp
	err = a.SendReply(context.Background(), target, Outbound{Text: "hola"})
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.False(t, a.Supports(store.ChannelWhatsApp))

	msgs, err := st.ListMessages(context.Background(), "h1", "c1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, store.StatusFailed, m.Status)
		assert.NotEmpty(t, m.DeliveryError)
	}
}

func TestAdapter_FailuresAuditedInSQLite(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "delivery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	boom := errors.New("viewer gone")
	a := NewAdapter(st, map[store.Channel]Transport{store.ChannelWeb: failingTransport{err: boom}}, nil)

	err = a.SendReply(ctx, webTarget(), Outbound{Text: "hola"})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, store.ErrNotFound)

	draft := &store.ChannelMessage{
		MessageID: "draft-1", HotelID: "h1", ConversationID: "c1", Channel: store.ChannelWeb,
		Role: store.RoleAI, Direction: store.DirectionOut, Status: store.StatusPending, Suggestion: "borrador",
	}
	require.NoError(t, st.SaveMessage(ctx, draft))
	err = a.SendReply(ctx, webTarget(), Outbound{Text: "borrador", Existing: draft, RespondedBy: "staff-1"})
	assert.ErrorIs(t, err, boom)

	msgs, err := st.ListMessages(ctx, "h1", "c1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "every delivery attempt leaves an audit record")
	for _, m := range msgs {
		assert.Equal(t, store.StatusFailed, m.Status)
		assert.Contains(t, m.DeliveryError, "viewer gone")
	}

	pending, err := st.ListPendingMessages(ctx, "h1", 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "a failed release no longer looks pending")
}

func TestAdapter_AttachmentFailureDoesNotBlockText(t *testing.T) {
	st := store.NewMockStore()
	tr := &captureTransport{}
	a := NewAdapter(st, map[store.Channel]Transport{store.ChannelWeb: tr}, nil)

	err := a.SendReply(context.Background(), webTarget(), Outbound{
		Text:       "Reserva confirmada",
		Attachment: func() (*Attachment, error) { return nil, errors.New("render failed") },
	})
	require.NoError(t, err)
	require.NotNil(t, tr.msg)
	assert.Equal(t, "Reserva confirmada", tr.msg.Content)
	assert.Nil(t, tr.att)
}

func TestAdapter_ReleasesPendingMessage(t *testing.T) {
	st := store.NewMockStore()
	ctx := context.Background()
	pending := &store.ChannelMessage{
		MessageID: "m1", HotelID: "h1", ConversationID: "c1", Channel: store.ChannelWeb,
		Role: store.RoleAI, Direction: store.DirectionOut, Status: store.StatusPending, Suggestion: "draft",
	}
	require.NoError(t, st.SaveMessage(ctx, pending))

	a := NewAdapter(st, map[store.Channel]Transport{store.ChannelWeb: NewWeb(&recordingEmitter{})}, nil)
	require.NoError(t, a.SendReply(ctx, webTarget(), Outbound{Text: "edited", Existing: pending, RespondedBy: "staff-1"}))

	got, err := st.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusSent, got.Status)
	assert.Equal(t, "edited", got.ApprovedResponse)
	assert.Equal(t, "draft", got.Suggestion)
	assert.Equal(t, "staff-1", got.RespondedBy)
}

type fakeBridge struct {
	ready    atomic.Bool
	mu       sync.Mutex
	texts    []string
	docs     []string
	docErr   error
	becomeAt time.Time
}

func (f *fakeBridge) IsReady() bool {
	if !f.becomeAt.IsZero() && time.Now().After(f.becomeAt) {
		return true
	}
	return f.ready.Load()
}

func (f *fakeBridge) SendText(ctx context.Context, jid, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, jid+"|"+text)
	return nil
}

func (f *fakeBridge) SendDocument(ctx context.Context, jid string, data []byte, filename, mime string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docErr != nil {
		return f.docErr
	}
	f.docs = append(f.docs, filename)
	return nil
}

func waTarget() Target {
	return Target{HotelID: "h1", ConversationID: "c1", Channel: store.ChannelWhatsApp, Recipient: "+59899111222"}
}

func TestWhatsApp_ReadySendsTextAndDocument(t *testing.T) {
	bridge := &fakeBridge{}
	bridge.ready.Store(true)
	wa := NewWhatsApp(bridge, 50*time.Millisecond, nil, nil)

	err := wa.Send(context.Background(), waTarget(), &store.ChannelMessage{Content: "hola"},
		&Attachment{Filename: "reserva-RES-1.txt", MIME: "text/plain", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, []string{"59899111222@s.whatsapp.net|hola"}, bridge.texts)
	assert.Equal(t, []string{"reserva-RES-1.txt"}, bridge.docs)
	assert.Equal(t, int64(0), wa.Stats().Waits)
}

func TestWhatsApp_DocumentFailureSwallowed(t *testing.T) {
	bridge := &fakeBridge{docErr: errors.New("too large")}
	bridge.ready.Store(true)
	wa := NewWhatsApp(bridge, 50*time.Millisecond, nil, nil)

	err := wa.Send(context.Background(), waTarget(), &store.ChannelMessage{Content: "hola"},
		&Attachment{Filename: "reserva-RES-1.txt", Data: []byte("x")})
	require.NoError(t, err)
	assert.Len(t, bridge.texts, 1)
}

func TestWhatsApp_BecomesReadyDuringBackoff(t *testing.T) {
	bridge := &fakeBridge{becomeAt: time.Now().Add(60 * time.Millisecond)}
	wa := NewWhatsApp(bridge, 20*time.Millisecond, []time.Duration{20 * time.Millisecond, 50 * time.Millisecond, 100 * time.Millisecond}, nil)

	require.NoError(t, wa.AwaitReady(context.Background()))
	stats := wa.Stats()
	assert.Equal(t, int64(1), stats.Waits)
	assert.Equal(t, int64(1), stats.Successes)
	assert.Equal(t, int64(0), stats.Failures)
	assert.GreaterOrEqual(t, stats.Attempts, int64(2))
}

func TestWhatsApp_NotReadyError(t *testing.T) {
	bridge := &fakeBridge{}
	wa := NewWhatsApp(bridge, 10*time.Millisecond, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, nil)

	err := wa.Send(context.Background(), waTarget(), &store.ChannelMessage{Content: "hola"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportNotReady)

	var nre *NotReadyError
	require.ErrorAs(t, err, &nre)
	assert.Equal(t, 3, nre.Attempts)
	assert.GreaterOrEqual(t, nre.Waited, 40*time.Millisecond)
	assert.Empty(t, bridge.texts)

	stats := wa.Stats()
	assert.Equal(t, int64(3), stats.Attempts)
	assert.Equal(t, int64(1), stats.Failures)
	assert.False(t, stats.Ready)
}

func TestWhatsApp_ContextCancelled(t *testing.T) {
	wa := NewWhatsApp(&fakeBridge{}, time.Second, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, wa.AwaitReady(ctx), context.Canceled)
}

type fakeMailer struct{ mails []Mail }

func (f *fakeMailer) Send(ctx context.Context, m Mail) error {
	f.mails = append(f.mails, m)
	return nil
}

func TestEmail_Send(t *testing.T) {
	mailer := &fakeMailer{}
	e := NewEmail(mailer)

	target := Target{Channel: store.ChannelEmail, Recipient: "ana@example.com", Subject: "Consulta", Locale: "es"}
	require.NoError(t, e.Send(context.Background(), target, &store.ChannelMessage{Content: "hola"}, nil))
	require.Len(t, mailer.mails, 1)
	assert.Equal(t, "Re: Consulta", mailer.mails[0].Subject)

	target.Subject = ""
	target.Locale = "en"
	require.NoError(t, e.Send(context.Background(), target, &store.ChannelMessage{Content: "hi"}, nil))
	assert.Equal(t, "Your booking enquiry", mailer.mails[1].Subject)

	target.Recipient = ""
	assert.Error(t, e.Send(context.Background(), target, &store.ChannelMessage{Content: "hi"}, nil))
}

func TestSMTPMailer_Build(t *testing.T) {
	m := NewSMTPMailer("smtp.example.com", 587, "", "", "reservas@hotel.com")
	body, err := m.build(Mail{
		To:         "ana@example.com",
		Subject:    "Re: Reserva",
		Text:       "Tu reserva **RES-1** está confirmada.",
		Attachment: &Attachment{Filename: "reserva-RES-1.txt", MIME: "text/plain", Data: []byte("Reserva: RES-1")},
	})
	require.NoError(t, err)

	s := string(body)
	assert.Contains(t, s, "From: reservas@hotel.com")
	assert.Contains(t, s, "To: ana@example.com")
	assert.Contains(t, s, "multipart/alternative")
	assert.Contains(t, s, "text/html")
	assert.Contains(t, s, `filename=reserva-RES-1.txt`)
	assert.True(t, strings.Contains(s, "multipart/mixed; boundary="))
}

func TestChannelManager_RelaysEvent(t *testing.T) {
	pub := &events.Memory{}
	cm := NewChannelManager(pub)

	target := Target{HotelID: "h1", ConversationID: "c1", Channel: store.ChannelChannelManager, Recipient: "ota-123", CorrelationID: "src-1"}
	require.NoError(t, cm.Send(context.Background(), target, &store.ChannelMessage{MessageID: "m1", Content: "hola"}, nil))

	got := pub.Events()
	require.Len(t, got, 1)
	assert.Equal(t, events.TypeMessageOutbound, got[0].Key)
	assert.Equal(t, "src-1", got[0].Envelope.Meta.CorrelationID)
	payload := got[0].Envelope.Data.(events.MessageOutbound)
	assert.Equal(t, "ota-123", payload.Recipient)
	assert.Equal(t, "hola", payload.Text)
}
