// ABOUTME: In-process availability and booking for single-hotel or demo deployments
// ABOUTME: Static rates per room type and store-backed reservations with generated codes

package hotelapi

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marcelomst/begaia-gateway/internal/dialogue"
	"github.com/marcelomst/begaia-gateway/internal/store"
)

// StaticAvailability answers from a fixed room-type rate table.
// With an empty table every room type is available without a price.
type StaticAvailability struct {
	rates map[string]string
}

// NewStaticAvailability creates a static availability source
func NewStaticAvailability(rates map[string]string) *StaticAvailability {
	normalized := make(map[string]string, len(rates))
	for room, rate := range rates {
		normalized[dialogue.NormalizeRoomType(room)] = rate
	}
	return &StaticAvailability{rates: normalized}
}

func (s *StaticAvailability) AskAvailability(ctx context.Context, req dialogue.AvailabilityRequest) (*dialogue.AvailabilityResult, error) {
	if len(s.rates) == 0 {
		return &dialogue.AvailabilityResult{Available: true}, nil
	}
	rate, ok := s.rates[dialogue.NormalizeRoomType(req.RoomType)]
	if !ok {
		return &dialogue.AvailabilityResult{Available: false, Options: s.roomTypes()}, nil
	}
	return &dialogue.AvailabilityResult{Available: true, Price: rate}, nil
}

func (s *StaticAvailability) roomTypes() []string {
	return slices.Sorted(maps.Keys(s.rates))
}

// ReservationStore is what LocalBooking needs from storage
type ReservationStore interface {
	SaveReservation(ctx context.Context, res *store.Reservation) error
	GetReservation(ctx context.Context, hotelID, reservationID string) (*store.Reservation, error)
}

// LocalBooking writes reservations straight into the store
type LocalBooking struct {
	store ReservationStore
	now   func() time.Time
}

// NewLocalBooking creates a store-backed booking service
func NewLocalBooking(st ReservationStore) *LocalBooking {
	return &LocalBooking{store: st, now: time.Now}
}

const codeAttempts = 5

func (l *LocalBooking) ConfirmAndCreate(ctx context.Context, hotelID, conversationID string, slots store.ReservationSlots) (*dialogue.BookingResult, error) {
	for range codeAttempts {
		code := NewReservationCode()
		_, err := l.store.GetReservation(ctx, hotelID, code)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("checking reservation code: %w", err)
		}

		res := &store.Reservation{
			HotelID:        hotelID,
			ReservationID:  code,
			ConversationID: conversationID,
			Status:         "confirmed",
			Slots:          slots,
			CreatedAt:      l.now().UTC(),
		}
		if err := l.store.SaveReservation(ctx, res); err != nil {
			return nil, fmt.Errorf("saving reservation: %w", err)
		}
		return &dialogue.BookingResult{ReservationID: code, Status: res.Status, CreatedAt: res.CreatedAt}, nil
	}
	return nil, errors.New("could not allocate a free reservation code")
}

// NewReservationCode returns a code like RES-1A2B3C4D
func NewReservationCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "RES-" + strings.ToUpper(id[:8])
}
