// ABOUTME: Slot-filling reservation dialogue engine (qualify, quote, close)
// ABOUTME: Computes one reply per guest turn and persists the conversation state

package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strings"
	"time"

	"github.com/marcelomst/begaia-gateway/internal/store"
)

// Reply intents
const (
	IntentAsk         = "ask"
	IntentQuote       = "quote"
	IntentUnavailable = "unavailable"
	IntentConfirm     = "confirm"
	IntentSnapshot    = "snapshot"
	IntentVerify      = "verify"
	IntentFallback    = "fallback"
)

var (
	confirmPattern = regexp.MustCompile(`(?i)\bconfirm(ar|o|a)?\b`)

	checkBookingPattern = regexp.MustCompile(`(?i)(\b(ver|consultar|verificar|revisar|check|see|view|verify|look up|status of|estado de)\s+(la\s+|mi\s+|my\s+|minha\s+|a\s+|the\s+)?(reserva|booking|reservation)\b|\bbooking status\b|^\s*(mi|my|minha)\s+(reserva|booking|reservation)\s*\??\s*$)`)

	reservationCodePattern = regexp.MustCompile(`\b[A-Za-z]{2,5}-[A-Za-z0-9]{4,12}\b`)
	bareCodePattern        = regexp.MustCompile(`^[A-Za-z0-9\-]{4,24}$`)
)

// Turn is one inbound guest message as seen by the engine
type Turn struct {
	HotelID        string
	ConversationID string
	Channel        store.Channel
	GuestID        string
	Text           string
	// Lang is the conversation language, used when the locale slot is empty
	Lang string
}

// Reply is the engine's answer to a turn. Delivery is left to the caller.
type Reply struct {
	Text   string
	Locale string
	Stage  string
	Intent string
	// Asked is the slot the reply asks for, if any
	Asked string
	Rich  map[string]any
	// Reservation is set when this turn created a booking
	Reservation *store.Reservation
}

// Deps are the collaborators of an Engine. Extractor is optional.
type Deps struct {
	Store         store.Store
	Availability  Availability
	Booking       Booking
	Extractor     Extractor
	DefaultLocale string
}

// Engine drives the reservation dialogue
type Engine struct {
	store         store.Store
	availability  Availability
	booking       Booking
	extractor     Extractor
	defaultLocale string
	now           func() time.Time
	logger        *slog.Logger
}

// NewEngine creates a dialogue engine
func NewEngine(deps Deps, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	locale := deps.DefaultLocale
	if !ValidLocale(locale) {
		locale = LocaleES
	}
	return &Engine{
		store:         deps.Store,
		availability:  deps.Availability,
		booking:       deps.Booking,
		extractor:     deps.Extractor,
		defaultLocale: locale,
		now:           time.Now,
		logger:        logger.With("component", "dialogue"),
	}
}

// Handle runs one turn: it loads the state, computes the reply and saves the state.
// Collaborator failures produce a fallback reply rather than an error; errors
// are returned only for state store failures, including store.ErrVersionConflict.
func (e *Engine) Handle(ctx context.Context, turn Turn) (*Reply, error) {
	state, err := e.loadState(ctx, turn.HotelID, turn.ConversationID)
	if err != nil {
		return nil, err
	}

	locale := e.locale(state, turn)
	cat := catalogFor(locale)
	text := strings.TrimSpace(turn.Text)

	var reply *Reply
	code := findReservationCode(text, state.LastAsked)
	switch {
	case code != "" && (state.LastAsked == askReservationCode || checkBookingPattern.MatchString(text)):
		reply, err = e.verify(ctx, turn, state, cat, code)
	case checkBookingPattern.MatchString(text) && !confirmPattern.MatchString(text):
		reply, err = e.snapshot(ctx, turn, state, cat, locale)
	default:
		reply = e.advance(ctx, turn, state, cat, locale, text)
	}
	if err != nil {
		return nil, err
	}
	reply.Locale = locale
	reply.Stage = state.SalesStage
	if reply.Intent != IntentAsk && !(reply.Intent == IntentVerify && reply.Asked == askReservationCode) {
		state.LastAsked = ""
	}

	if reply.Reservation != nil {
		if err := e.store.SaveReservation(ctx, reply.Reservation); err != nil {
			e.logger.Error("mirroring reservation failed", "hotel_id", turn.HotelID,
				"reservation_id", reply.Reservation.ReservationID, "error", err)
		}
	}

	if err := e.store.SaveState(ctx, state); err != nil {
		return nil, fmt.Errorf("saving conversation state: %w", err)
	}

	e.logger.Debug("turn handled", "hotel_id", turn.HotelID, "conversation_id", turn.ConversationID,
		"intent", reply.Intent, "stage", state.SalesStage, "slots", describeSlots(state.ReservationSlots))
	return reply, nil
}

// State returns the stored state of a conversation, or a fresh qualify state
func (e *Engine) State(ctx context.Context, hotelID, conversationID string) (*store.ConversationState, error) {
	return e.loadState(ctx, hotelID, conversationID)
}

func (e *Engine) loadState(ctx context.Context, hotelID, conversationID string) (*store.ConversationState, error) {
	state, err := e.store.GetState(ctx, hotelID, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return &store.ConversationState{
			HotelID:        hotelID,
			ConversationID: conversationID,
			SalesStage:     store.StageQualify,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation state: %w", err)
	}
	if state.SalesStage == "" {
		state.SalesStage = store.StageQualify
	}
	return state, nil
}

// locale picks the stated locale, then the conversation language, then detection, then the default
func (e *Engine) locale(state *store.ConversationState, turn Turn) string {
	for _, l := range []string{state.ReservationSlots.Locale, turn.Lang, DetectLanguage(turn.Text)} {
		if ValidLocale(l) {
			return l
		}
	}
	return e.defaultLocale
}

// advance merges the turn's slots and moves the state machine forward
func (e *Engine) advance(ctx context.Context, turn Turn, state *store.ConversationState, cat catalog, locale, text string) *Reply {
	extracted := ExtractRules(text, state.ReservationSlots, state.LastAsked)
	if e.extractor != nil {
		ex, err := e.extractor.Extract(ctx, text, state.ReservationSlots)
		if err != nil {
			return e.fail(turn, cat, &ServiceError{Service: "extractor", Err: err})
		}
		// Rule matches win over model output for the same field
		extracted = MergeSlots(normalizeExtraction(ex.Slots), extracted)
	}

	before := state.ReservationSlots
	slots := MergeSlots(before, extracted)
	if slots.Locale == "" {
		slots.Locale = locale
	}
	state.ReservationSlots = slots
	changed := slots != before

	if confirmPattern.MatchString(text) {
		return e.confirm(ctx, turn, state, cat, locale, before)
	}

	if slot := missingSlot(slots); slot != "" {
		return e.ask(state, cat, slot)
	}

	if !changed {
		switch {
		case state.SalesStage == store.StageClose && state.LastReservation != nil:
			return &Reply{
				Text:   fmt.Sprintf(cat.snapConfirmed, state.LastReservation.ReservationID, cat.details(slots)),
				Intent: IntentSnapshot,
				Rich:   reservationRich(state.LastReservation),
			}
		case state.SalesStage == store.StageQuote && state.LastProposal != nil:
			return &Reply{Text: state.LastProposal.Text, Intent: IntentQuote, Rich: proposalRich(state.LastProposal)}
		}
	}

	return e.quote(ctx, turn, state, cat, locale)
}

// ask emits exactly one clarifying question
func (e *Engine) ask(state *store.ConversationState, cat catalog, slot string) *Reply {
	text := cat.question(slot)
	if slot == SlotCheckOut && state.ReservationSlots.CheckOut != "" {
		text = cat.badRange + " " + text
	}
	state.SalesStage = store.StageQualify
	state.LastAsked = slot
	return &Reply{Text: text, Intent: IntentAsk, Asked: slot}
}

// quote asks the availability service and records the proposal with its tool call trace
func (e *Engine) quote(ctx context.Context, turn Turn, state *store.ConversationState, cat catalog, locale string) *Reply {
	slots := state.ReservationSlots
	res, err := e.availability.AskAvailability(ctx, AvailabilityRequest{
		HotelID:   turn.HotelID,
		RoomType:  slots.RoomType,
		CheckIn:   slots.CheckIn,
		CheckOut:  slots.CheckOut,
		NumGuests: slots.NumGuests,
	})
	if err != nil {
		return e.fail(turn, cat, &ServiceError{Service: "availability", Err: err})
	}

	summary := fmt.Sprintf("available=%t options=%d", res.Available, len(res.Options))
	if res.Price != "" {
		summary += " price=" + res.Price
	}
	proposal := &store.Proposal{
		Available: res.Available,
		Options:   res.Options,
		ToolCall: &store.ToolCall{
			Name:     "askAvailability",
			Input:    slotsInput(turn.HotelID, slots),
			Output:   summary,
			CalledAt: e.now().UTC(),
		},
	}

	reply := &Reply{}
	if res.Available {
		proposal.Text = cat.proposal(slots, res, confirmKeyword(locale))
		state.SalesStage = store.StageQuote
		reply.Intent = IntentQuote
	} else {
		proposal.Text = fmt.Sprintf(cat.unavailable, slots.RoomType, cat.date(slots.CheckIn), cat.date(slots.CheckOut))
		state.SalesStage = store.StageQualify
		reply.Intent = IntentUnavailable
	}
	state.LastProposal = proposal
	reply.Text = proposal.Text
	reply.Rich = proposalRich(proposal)
	if res.Price != "" {
		reply.Rich["price"] = res.Price
	}
	return reply
}

// confirm books the reservation quoted in an earlier turn. The decision uses the
// slots persisted before this turn; a confirmation that also changes a slot is
// re-quoted, and nothing is booked without a matching available proposal.
func (e *Engine) confirm(ctx context.Context, turn Turn, state *store.ConversationState, cat catalog, locale string, before store.ReservationSlots) *Reply {
	// A locale filled in this turn is not a slot change
	before.Locale = state.ReservationSlots.Locale

	if state.SalesStage == store.StageClose && state.LastReservation != nil {
		state.ReservationSlots = before
		return &Reply{
			Text:   fmt.Sprintf(cat.snapConfirmed, state.LastReservation.ReservationID, cat.details(before)),
			Intent: IntentSnapshot,
			Rich:   reservationRich(state.LastReservation),
		}
	}

	if state.ReservationSlots != before {
		if slot := missingSlot(state.ReservationSlots); slot != "" {
			return e.ask(state, cat, slot)
		}
		return e.quote(ctx, turn, state, cat, locale)
	}

	slots := before
	if slot := missingSlot(slots); slot != "" {
		return e.ask(state, cat, slot)
	}

	p := state.LastProposal
	quoted := p != nil && p.ToolCall != nil && maps.Equal(p.ToolCall.Input, slotsInput(turn.HotelID, slots))
	if quoted && !p.Available {
		state.SalesStage = store.StageQualify
		return &Reply{Text: cat.cannotConfirm, Intent: IntentUnavailable}
	}
	if !quoted || state.SalesStage != store.StageQuote {
		return e.quote(ctx, turn, state, cat, locale)
	}

	res, err := e.booking.ConfirmAndCreate(ctx, turn.HotelID, turn.ConversationID, slots)
	if err != nil {
		return e.fail(turn, cat, &ServiceError{Service: "booking", Err: err})
	}

	status := res.Status
	if status == "" {
		status = "confirmed"
	}
	createdAt := res.CreatedAt
	if createdAt.IsZero() {
		createdAt = e.now().UTC()
	}

	ref := &store.ReservationRef{
		ReservationID: res.ReservationID,
		Status:        status,
		Channel:       turn.Channel,
		CreatedAt:     createdAt,
	}
	state.LastReservation = ref
	state.SalesStage = store.StageClose

	e.logger.Info("reservation created", "hotel_id", turn.HotelID, "conversation_id", turn.ConversationID,
		"reservation_id", res.ReservationID)

	return &Reply{
		Text:   fmt.Sprintf(cat.confirmed, slots.GuestName, res.ReservationID),
		Intent: IntentConfirm,
		Rich:   reservationRich(ref),
		Reservation: &store.Reservation{
			HotelID:        turn.HotelID,
			ReservationID:  res.ReservationID,
			ConversationID: turn.ConversationID,
			GuestID:        turn.GuestID,
			Channel:        turn.Channel,
			Status:         status,
			Slots:          slots,
			CreatedAt:      createdAt,
		},
	}
}

// snapshot renders the confirmed booking, the draft, or asks for a code
func (e *Engine) snapshot(ctx context.Context, turn Turn, state *store.ConversationState, cat catalog, locale string) (*Reply, error) {
	slots := state.ReservationSlots

	if ref := state.LastReservation; ref != nil {
		details := slots
		res, err := e.store.GetReservation(ctx, turn.HotelID, ref.ReservationID)
		switch {
		case err == nil:
			details = res.Slots
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("loading reservation: %w", err)
		}
		return &Reply{
			Text:   fmt.Sprintf(cat.snapConfirmed, ref.ReservationID, cat.details(details)),
			Intent: IntentSnapshot,
			Rich:   reservationRich(ref),
		}, nil
	}

	if hasDraft(slots) {
		text := fmt.Sprintf(cat.snapDraft, cat.details(slots))
		if slots.RoomType != "" && slots.CheckIn != "" && slots.CheckOut != "" {
			text += " " + fmt.Sprintf(cat.snapDraftHint, confirmKeyword(locale))
		}
		return &Reply{
			Text:   text,
			Intent: IntentSnapshot,
			Rich:   map[string]any{"type": "snapshot", "status": "draft"},
		}, nil
	}

	state.LastAsked = askReservationCode
	return &Reply{Text: cat.askCode, Intent: IntentVerify, Asked: askReservationCode}, nil
}

// verify looks an existing booking up by its code
func (e *Engine) verify(ctx context.Context, turn Turn, state *store.ConversationState, cat catalog, code string) (*Reply, error) {
	res, err := e.store.GetReservation(ctx, turn.HotelID, code)
	if errors.Is(err, store.ErrNotFound) {
		return &Reply{Text: fmt.Sprintf(cat.codeNotFound, code), Intent: IntentVerify}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading reservation: %w", err)
	}
	rich := map[string]any{
		"type":          "reservation",
		"reservationId": res.ReservationID,
		"status":        res.Status,
	}
	if !ownsReservation(turn, res) {
		e.logger.Info("reservation code checked by another guest", "hotel_id", turn.HotelID,
			"conversation_id", turn.ConversationID, "reservation_id", res.ReservationID)
		return &Reply{Text: fmt.Sprintf(cat.codeStatus, res.ReservationID, res.Status), Intent: IntentVerify, Rich: rich}, nil
	}
	return &Reply{
		Text:   fmt.Sprintf(cat.snapConfirmed, res.ReservationID, cat.details(res.Slots)),
		Intent: IntentVerify,
		Rich:   rich,
	}, nil
}

// ownsReservation reports whether the booking was made by this guest or in this conversation.
// Anyone else holding the code only learns its status.
func ownsReservation(turn Turn, res *store.Reservation) bool {
	if res.ConversationID != "" && res.ConversationID == turn.ConversationID {
		return true
	}
	return res.GuestID != "" && res.GuestID == turn.GuestID
}

// fail logs a collaborator failure and returns the generic fallback without touching the stage
func (e *Engine) fail(turn Turn, cat catalog, err *ServiceError) *Reply {
	e.logger.Error("collaborator call failed", "hotel_id", turn.HotelID, "conversation_id", turn.ConversationID,
		"service", err.Service, "error", err.Err)
	return &Reply{Text: cat.fallback, Intent: IntentFallback, Rich: map[string]any{"type": "error", "service": err.Service}}
}

func hasDraft(s store.ReservationSlots) bool {
	for _, name := range slotOrder {
		if getSlot(s, name) != "" {
			return true
		}
	}
	return false
}

func confirmKeyword(locale string) string {
	if k, ok := ConfirmKeyword[locale]; ok {
		return k
	}
	return ConfirmKeyword[LocaleES]
}

// findReservationCode returns a booking code in text; a bare token counts while a code was asked for
func findReservationCode(text, lastAsked string) string {
	if m := reservationCodePattern.FindString(text); m != "" {
		return strings.ToUpper(m)
	}
	if lastAsked == askReservationCode && bareCodePattern.MatchString(text) && strings.ContainsAny(text, "0123456789") {
		return strings.ToUpper(text)
	}
	return ""
}

func proposalRich(p *store.Proposal) map[string]any {
	return map[string]any{
		"type":      "quote",
		"available": p.Available,
		"options":   p.Options,
	}
}

func reservationRich(ref *store.ReservationRef) map[string]any {
	return map[string]any{
		"type":          "reservation",
		"reservationId": ref.ReservationID,
		"status":        ref.Status,
	}
}
