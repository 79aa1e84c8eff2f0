// ABOUTME: Tests for the staff review service
// ABOUTME: Runs approve/reject against a real delivery adapter with the web transport

package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelomst/begaia-gateway/internal/delivery"
	"github.com/marcelomst/begaia-gateway/internal/store"
)

type reviewFixture struct {
	svc         *Service
	store       *store.MockStore
	broadcaster *EventBroadcaster
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	st := store.NewMockStore()
	b := NewEventBroadcaster(nil)
	t.Cleanup(b.Close)
	adapter := delivery.NewAdapter(st, map[store.Channel]delivery.Transport{
		store.ChannelWeb: delivery.NewWeb(b),
	}, nil)

	ctx := context.Background()
	require.NoError(t, st.UpsertConversation(ctx, &store.Conversation{
		ConversationID: "c1", HotelID: "h1", Channel: store.ChannelWeb, GuestID: "g1",
		Status: store.ConversationActive, StartedAt: time.Now(), LastUpdatedAt: time.Now(), Lang: "es",
	}))
	require.NoError(t, st.SaveMessage(ctx, &store.ChannelMessage{
		MessageID: "draft-1", HotelID: "h1", ConversationID: "c1", Channel: store.ChannelWeb, GuestID: "g1",
		Role: store.RoleAI, Direction: store.DirectionOut, Status: store.StatusPending,
		Suggestion: "¿Me indicás la fecha de entrada?", Timestamp: time.Now(),
	}))

	return &reviewFixture{svc: New(st, adapter, b, nil), store: st, broadcaster: b}
}

func TestService_ApproveSendsSuggestion(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	guestStream, _ := f.broadcaster.Subscribe(t.Context(), ConversationKey("c1"))

	pending, err := f.svc.ListPending(ctx, "h1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	msg, err := f.svc.Approve(ctx, "draft-1", "", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusSent, msg.Status)
	assert.Equal(t, "¿Me indicás la fecha de entrada?", msg.ApprovedResponse)

	select {
	case m := <-guestStream:
		assert.Equal(t, "draft-1", m.MessageID)
	case <-time.After(time.Second):
		t.Fatal("approved reply never reached the guest stream")
	}

	pending, err = f.svc.ListPending(ctx, "h1", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.svc.Approve(ctx, "draft-1", "", "staff-1")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestService_ApproveWithEdit(t *testing.T) {
	f := newReviewFixture(t)

	msg, err := f.svc.Approve(context.Background(), "draft-1", "  ¿Para qué fecha llegás?  ", "staff-2")
	require.NoError(t, err)

	stored, err := f.store.GetMessage(context.Background(), msg.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "¿Para qué fecha llegás?", stored.Content)
	assert.Equal(t, "¿Me indicás la fecha de entrada?", stored.Suggestion)
	assert.Equal(t, "staff-2", stored.RespondedBy)
}

func TestService_Reject(t *testing.T) {
	f := newReviewFixture(t)

	msg, err := f.svc.Reject(context.Background(), "draft-1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusRejected, msg.Status)

	history, err := f.svc.History(context.Background(), "h1", "c1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.StatusRejected, history[0].Status)

	_, err = f.svc.Reject(context.Background(), "missing", "staff-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_SetGuestMode(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateGuest(ctx, &store.Guest{HotelID: "h1", GuestID: "g1", Mode: store.ModeAutomatic, CreatedAt: time.Now()}))

	guest, err := f.svc.SetGuestMode(ctx, "h1", "g1", store.ModeSupervised)
	require.NoError(t, err)
	assert.Equal(t, store.ModeSupervised, guest.Mode)

	stored, err := f.store.GetGuest(ctx, "h1", "g1")
	require.NoError(t, err)
	assert.Equal(t, store.ModeSupervised, stored.Mode)

	_, err = f.svc.SetGuestMode(ctx, "h1", "g1", "manual")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

// flakyTransport fails its first send and delivers afterwards
type flakyTransport struct {
	calls atomic.Int32
}

func (f *flakyTransport) Send(ctx context.Context, t delivery.Target, msg *store.ChannelMessage, att *delivery.Attachment) error {
	if f.calls.Add(1) == 1 {
		return errors.New("viewer disconnected")
	}
	return nil
}

func TestService_FailedReleaseIsRecordedAndRetryable(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "review.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	require.NoError(t, st.UpsertConversation(ctx, &store.Conversation{
		ConversationID: "c1", HotelID: "h1", Channel: store.ChannelWeb, GuestID: "g1",
		Status: store.ConversationActive, StartedAt: time.Now(), LastUpdatedAt: time.Now(), Lang: "es",
	}))
	require.NoError(t, st.SaveMessage(ctx, &store.ChannelMessage{
		MessageID: "draft-1", HotelID: "h1", ConversationID: "c1", Channel: store.ChannelWeb, GuestID: "g1",
		Role: store.RoleAI, Direction: store.DirectionOut, Status: store.StatusPending,
		Suggestion: "¿Me indicás la fecha de entrada?", Timestamp: time.Now(),
	}))

	adapter := delivery.NewAdapter(st, map[store.Channel]delivery.Transport{store.ChannelWeb: &flakyTransport{}}, nil)
	svc := New(st, adapter, nil, nil)

	_, err = svc.Approve(ctx, "draft-1", "", "staff-1")
	require.Error(t, err)

	stored, err := st.GetMessage(ctx, "draft-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, stored.Status)
	assert.Contains(t, stored.DeliveryError, "viewer disconnected")

	msg, err := svc.Approve(ctx, "draft-1", "", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusSent, msg.Status)

	stored, err = st.GetMessage(ctx, "draft-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusSent, stored.Status)
	assert.Empty(t, stored.DeliveryError)
}
