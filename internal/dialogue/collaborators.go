// ABOUTME: Interfaces of the external services the dialogue engine consumes
// ABOUTME: Availability, booking creation and optional model-based slot extraction

package dialogue

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelomst/begaia-gateway/internal/store"
)

// AvailabilityRequest asks whether a room can be sold for the given stay
type AvailabilityRequest struct {
	HotelID   string `json:"hotelId"`
	RoomType  string `json:"roomType"`
	CheckIn   string `json:"checkIn"`
	CheckOut  string `json:"checkOut"`
	NumGuests string `json:"numGuests"`
}

// AvailabilityResult is the availability service answer
type AvailabilityResult struct {
	Available    bool     `json:"available"`
	Options      []string `json:"options,omitempty"`
	ProposalText string   `json:"proposalText,omitempty"`
	Price        string   `json:"price,omitempty"`
}

// Availability checks room availability
type Availability interface {
	AskAvailability(ctx context.Context, req AvailabilityRequest) (*AvailabilityResult, error)
}

// BookingResult is the booking service answer
type BookingResult struct {
	ReservationID string    `json:"reservationId"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Booking creates reservations
type Booking interface {
	ConfirmAndCreate(ctx context.Context, hotelID, conversationID string, slots store.ReservationSlots) (*BookingResult, error)
}

// Extraction is the answer of a model-based extractor.
// Need is "question" when the model would ask something, "none" otherwise.
type Extraction struct {
	Need     string                 `json:"need"`
	Question string                 `json:"question,omitempty"`
	Slots    store.ReservationSlots `json:"slots"`
}

// Extractor pulls slot values out of free text given the known slots
type Extractor interface {
	Extract(ctx context.Context, text string, known store.ReservationSlots) (*Extraction, error)
}

// ServiceError wraps a failed collaborator call
type ServiceError struct {
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s service failed: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
