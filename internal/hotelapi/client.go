// ABOUTME: JSON-over-HTTP clients for the hotel's availability, booking and extraction services
// ABOUTME: Each call is bounded by the configured timeout and reports non-2xx answers as StatusError

package hotelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcelomst/begaia-gateway/internal/dialogue"
	"github.com/marcelomst/begaia-gateway/internal/store"
)

// StatusError is a non-2xx answer from a collaborator
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.URL, e.Code, e.Body)
}

const maxErrorBody = 512

type jsonClient struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

func newJSONClient(url string, timeout time.Duration, logger *slog.Logger, component string) jsonClient {
	if logger == nil {
		logger = slog.Default()
	}
	return jsonClient{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("component", component),
	}
}

func (c jsonClient) post(ctx context.Context, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("collaborator call", "url", c.url, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{URL: c.url, Code: resp.StatusCode, Body: string(snippet)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// AvailabilityClient asks a remote availability endpoint
type AvailabilityClient struct {
	c jsonClient
}

// NewAvailabilityClient creates an availability client
func NewAvailabilityClient(url string, timeout time.Duration, logger *slog.Logger) *AvailabilityClient {
	return &AvailabilityClient{c: newJSONClient(url, timeout, logger, "hotelapi.availability")}
}

func (a *AvailabilityClient) AskAvailability(ctx context.Context, req dialogue.AvailabilityRequest) (*dialogue.AvailabilityResult, error) {
	var res dialogue.AvailabilityResult
	if err := a.c.post(ctx, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// BookingClient creates reservations through a remote endpoint
type BookingClient struct {
	c jsonClient
}

// NewBookingClient creates a booking client
func NewBookingClient(url string, timeout time.Duration, logger *slog.Logger) *BookingClient {
	return &BookingClient{c: newJSONClient(url, timeout, logger, "hotelapi.booking")}
}

type bookingRequest struct {
	HotelID        string                 `json:"hotelId"`
	ConversationID string                 `json:"conversationId"`
	Slots          store.ReservationSlots `json:"slots"`
}

func (b *BookingClient) ConfirmAndCreate(ctx context.Context, hotelID, conversationID string, slots store.ReservationSlots) (*dialogue.BookingResult, error) {
	var res dialogue.BookingResult
	err := b.c.post(ctx, bookingRequest{HotelID: hotelID, ConversationID: conversationID, Slots: slots}, &res)
	if err != nil {
		return nil, err
	}
	if res.ReservationID == "" {
		return nil, fmt.Errorf("booking service returned no reservation id")
	}
	return &res, nil
}

// ExtractorClient asks a model-backed endpoint for slot values
type ExtractorClient struct {
	c jsonClient
}

// NewExtractorClient creates an extraction client
func NewExtractorClient(url string, timeout time.Duration, logger *slog.Logger) *ExtractorClient {
	return &ExtractorClient{c: newJSONClient(url, timeout, logger, "hotelapi.extractor")}
}

type extractRequest struct {
	Text  string                 `json:"text"`
	Known store.ReservationSlots `json:"known"`
}

func (e *ExtractorClient) Extract(ctx context.Context, text string, known store.ReservationSlots) (*dialogue.Extraction, error) {
	var res struct {
		dialogue.Extraction
		// Partial is accepted as an alias of slots
		Partial *store.ReservationSlots `json:"partial,omitempty"`
	}
	if err := e.c.post(ctx, extractRequest{Text: text, Known: known}, &res); err != nil {
		return nil, err
	}
	out := res.Extraction
	if res.Partial != nil {
		out.Slots = dialogue.MergeSlots(*res.Partial, out.Slots)
	}
	return &out, nil
}
