// ABOUTME: Tests for the hotel collaborator clients and the local fallbacks
// ABOUTME: Remote services are faked with httptest servers

package hotelapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelomst/begaia-gateway/internal/dialogue"
	"github.com/marcelomst/begaia-gateway/internal/store"
)

func jsonServer(t *testing.T, status int, body string, capture *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAvailabilityClient(t *testing.T) {
	var got map[string]any
	srv := jsonServer(t, http.StatusOK, `{"available":true,"price":"240 USD","proposalText":"Double room, 2 nights"}`, &got)

	c := NewAvailabilityClient(srv.URL, time.Second, nil)
	res, err := c.AskAvailability(context.Background(), dialogue.AvailabilityRequest{
		HotelID: "hotel999", RoomType: "double", CheckIn: "2025-10-01", CheckOut: "2025-10-03", NumGuests: "2",
	})
	require.NoError(t, err)

	assert.True(t, res.Available)
	assert.Equal(t, "240 USD", res.Price)
	assert.Equal(t, "Double room, 2 nights", res.ProposalText)
	assert.Equal(t, "hotel999", got["hotelId"])
	assert.Equal(t, "2025-10-03", got["checkOut"])
}

func TestAvailabilityClient_StatusError(t *testing.T) {
	srv := jsonServer(t, http.StatusBadGateway, `pms offline`, nil)

	_, err := NewAvailabilityClient(srv.URL, time.Second, nil).AskAvailability(context.Background(), dialogue.AvailabilityRequest{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, "pms offline", se.Body)
}

func TestAvailabilityClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	_, err := NewAvailabilityClient(srv.URL, 50*time.Millisecond, nil).AskAvailability(context.Background(), dialogue.AvailabilityRequest{})
	require.Error(t, err)
}

func TestBookingClient(t *testing.T) {
	var got map[string]any
	srv := jsonServer(t, http.StatusCreated, `{"reservationId":"RES-ABCD1234","status":"confirmed","createdAt":"2025-09-01T10:00:00Z"}`, &got)

	res, err := NewBookingClient(srv.URL, time.Second, nil).ConfirmAndCreate(context.Background(), "hotel999", "conv-1",
		store.ReservationSlots{GuestName: "Ana Pérez", RoomType: "double"})
	require.NoError(t, err)

	assert.Equal(t, "RES-ABCD1234", res.ReservationID)
	assert.Equal(t, "confirmed", res.Status)
	assert.Equal(t, "conv-1", got["conversationId"])
	slots := got["slots"].(map[string]any)
	assert.Equal(t, "Ana Pérez", slots["guestName"])
}

func TestBookingClient_MissingID(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"status":"confirmed"}`, nil)

	_, err := NewBookingClient(srv.URL, time.Second, nil).ConfirmAndCreate(context.Background(), "h", "c", store.ReservationSlots{})
	require.Error(t, err)
}

func TestExtractorClient(t *testing.T) {
	t.Run("slots", func(t *testing.T) {
		var got map[string]any
		srv := jsonServer(t, http.StatusOK, `{"need":"none","slots":{"guestName":"Ana","numGuests":"2"}}`, &got)

		res, err := NewExtractorClient(srv.URL, time.Second, nil).Extract(context.Background(), "Ana, two people",
			store.ReservationSlots{RoomType: "double"})
		require.NoError(t, err)

		assert.Equal(t, "none", res.Need)
		assert.Equal(t, "Ana", res.Slots.GuestName)
		assert.Equal(t, "2", res.Slots.NumGuests)
		assert.Equal(t, "Ana, two people", got["text"])
	})

	t.Run("partial alias", func(t *testing.T) {
		srv := jsonServer(t, http.StatusOK, `{"need":"question","question":"dates?","partial":{"roomType":"suite"}}`, nil)

		res, err := NewExtractorClient(srv.URL, time.Second, nil).Extract(context.Background(), "a suite", store.ReservationSlots{})
		require.NoError(t, err)

		assert.Equal(t, "question", res.Need)
		assert.Equal(t, "suite", res.Slots.RoomType)
	})

	t.Run("bad json", func(t *testing.T) {
		srv := jsonServer(t, http.StatusOK, `{"need":`, nil)

		_, err := NewExtractorClient(srv.URL, time.Second, nil).Extract(context.Background(), "x", store.ReservationSlots{})
		require.Error(t, err)
	})
}

func TestStaticAvailability(t *testing.T) {
	ctx := context.Background()

	open := NewStaticAvailability(nil)
	res, err := open.AskAvailability(ctx, dialogue.AvailabilityRequest{RoomType: "suite"})
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Empty(t, res.Price)

	rated := NewStaticAvailability(map[string]string{"double": "120 USD", "suite": "300 USD"})

	res, err = rated.AskAvailability(ctx, dialogue.AvailabilityRequest{RoomType: "double"})
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Equal(t, "120 USD", res.Price)

	res, err = rated.AskAvailability(ctx, dialogue.AvailabilityRequest{RoomType: "penthouse"})
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, []string{"double", "suite"}, res.Options)
}

func TestLocalBooking(t *testing.T) {
	ctx := context.Background()
	st := store.NewMockStore()
	b := NewLocalBooking(st)
	b.now = func() time.Time { return time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC) }

	slots := store.ReservationSlots{GuestName: "Ana Pérez", RoomType: "double", CheckIn: "2025-10-01", CheckOut: "2025-10-03", NumGuests: "2"}
	res, err := b.ConfirmAndCreate(ctx, "hotel999", "conv-1", slots)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^RES-[0-9A-F]{8}$`), res.ReservationID)
	assert.Equal(t, "confirmed", res.Status)

	saved, err := st.GetReservation(ctx, "hotel999", res.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", saved.ConversationID)
	assert.Equal(t, slots, saved.Slots)
	assert.Equal(t, b.now(), saved.CreatedAt)
}

type failingReservations struct{}

func (failingReservations) SaveReservation(context.Context, *store.Reservation) error { return nil }
func (failingReservations) GetReservation(context.Context, string, string) (*store.Reservation, error) {
	return nil, errors.New("disk gone")
}

func TestLocalBooking_StoreError(t *testing.T) {
	_, err := NewLocalBooking(failingReservations{}).ConfirmAndCreate(context.Background(), "h", "c", store.ReservationSlots{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestNewReservationCode_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		code := NewReservationCode()
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}
