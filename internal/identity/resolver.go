// ABOUTME: Deterministic guest identity resolution across channels
// ABOUTME: Looks guests up by id, alias, identifier and history, then append-merges new signals

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marcelomst/begaia-gateway/internal/store"
)

// SourcePMS marks identifiers coming from the property management system; they are recorded as verified
const SourcePMS = "pms"

// Input carries the raw identity signals of one event
type Input struct {
	RawID      string
	Email      string
	WhatsAppID string
	PhoneE164  string
	Doc        string
	WebID      string
	Name       string
	Source     string
}

// normalized returns the input with every identifier normalized
func (in Input) normalized() Input {
	return Input{
		RawID:      strings.TrimSpace(in.RawID),
		Email:      NormalizeEmail(in.Email),
		WhatsAppID: NormalizeWhatsApp(in.WhatsAppID),
		PhoneE164:  NormalizePhone(in.PhoneE164),
		Doc:        NormalizeDoc(in.Doc),
		WebID:      NormalizeWebID(in.WebID),
		Name:       strings.TrimSpace(in.Name),
		Source:     in.Source,
	}
}

// identifiers returns the populated identifiers as a store.Identifiers
func (in Input) identifiers() store.Identifiers {
	return store.Identifiers{
		Email:      in.Email,
		WhatsAppID: in.WhatsAppID,
		PhoneE164:  in.PhoneE164,
		Doc:        in.Doc,
		WebID:      in.WebID,
	}
}

// values returns every supplied value, raw id first, without duplicates
func (in Input) values() []string {
	var out []string
	ids := in.identifiers()
	for _, v := range append([]string{in.RawID}, identifierValues(ids)...) {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func identifierValues(ids store.Identifiers) []string {
	out := make([]string, 0, len(store.IdentifierKinds))
	for _, kind := range store.IdentifierKinds {
		out = append(out, ids.Get(kind))
	}
	return out
}

// Resolver maps identity signals onto canonical per-hotel guests
type Resolver struct {
	store       store.Store
	defaultMode string
	now         func() time.Time
	logger      *slog.Logger
}

// NewResolver creates a resolver. defaultMode is the mode given to new guests.
func NewResolver(s store.Store, defaultMode string, logger *slog.Logger) *Resolver {
	if defaultMode == "" {
		defaultMode = store.ModeAutomatic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:       s,
		defaultMode: defaultMode,
		now:         time.Now,
		logger:      logger.With("component", "identity"),
	}
}

// Resolve returns the canonical guest for the given signals, creating or
// enriching it as needed. It never fails for lack of identifiers.
func (r *Resolver) Resolve(ctx context.Context, hotelID string, raw Input) (*store.Guest, error) {
	in := raw.normalized()

	guest, err := r.lookup(ctx, hotelID, in)
	if err != nil {
		return nil, err
	}
	if guest != nil {
		return r.merge(ctx, guest, in)
	}

	guest = r.newGuest(hotelID, in)
	err = r.store.CreateGuest(ctx, guest)
	if errors.Is(err, store.ErrDuplicateGuest) {
		// Lost a race with a concurrent first contact; enrich the winner instead
		existing, getErr := r.store.GetGuest(ctx, hotelID, guest.GuestID)
		if getErr != nil {
			return nil, fmt.Errorf("loading guest after duplicate create: %w", getErr)
		}
		return r.merge(ctx, existing, in)
	}
	if err != nil {
		return nil, fmt.Errorf("creating guest: %w", err)
	}

	r.logger.Info("created guest", "hotel_id", hotelID, "guest_id", guest.GuestID, "source", in.Source)
	return guest, nil
}

// lookup tries exact id, alias, primary identifiers and history, in that order
func (r *Resolver) lookup(ctx context.Context, hotelID string, in Input) (*store.Guest, error) {
	values := in.values()

	for _, v := range values {
		g, err := r.store.GetGuest(ctx, hotelID, v)
		if found, err := hit(g, err); found || err != nil {
			return g, err
		}
	}

	for _, v := range values {
		g, err := r.store.FindGuest(ctx, hotelID, store.LookupAlias, v)
		if found, err := hit(g, err); found || err != nil {
			return g, err
		}
	}

	ids := in.identifiers()
	for _, kind := range store.IdentifierKinds {
		v := ids.Get(kind)
		if v == "" {
			continue
		}
		g, err := r.store.FindGuest(ctx, hotelID, kind, v)
		if found, err := hit(g, err); found || err != nil {
			return g, err
		}
	}

	for _, v := range identifierValues(ids) {
		if v == "" {
			continue
		}
		g, err := r.store.FindGuest(ctx, hotelID, store.LookupHistory, v)
		if found, err := hit(g, err); found || err != nil {
			return g, err
		}
	}

	return nil, nil
}

func hit(g *store.Guest, err error) (bool, error) {
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up guest: %w", err)
	}
	return g != nil, nil
}

// canonicalID picks the first of email, whatsapp id, phone and raw id
func canonicalID(in Input) string {
	for _, v := range []string{in.Email, in.WhatsAppID, in.PhoneE164, in.RawID} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (r *Resolver) newGuest(hotelID string, in Input) *store.Guest {
	now := r.now().UTC()
	id := canonicalID(in)
	if id == "" {
		id = "anon-" + uuid.New().String()
		r.logger.Warn("no identifiers on event, created anonymous guest", "hotel_id", hotelID, "guest_id", id)
	}

	g := &store.Guest{
		HotelID:     hotelID,
		GuestID:     id,
		Identifiers: in.identifiers(),
		Mode:        r.defaultMode,
		Name:        in.Name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, v := range in.values() {
		if v != id {
			g.Aliases = append(g.Aliases, v)
		}
	}
	g.IdentifiersHistory = historyEntries(nil, in, now)
	return g
}

// merge unions aliases, fills empty identifier slots and appends history.
// Populated identifier slots are never overwritten.
func (r *Resolver) merge(ctx context.Context, g *store.Guest, in Input) (*store.Guest, error) {
	now := r.now().UTC()
	changed := false

	for _, v := range in.values() {
		if v != g.GuestID && !slices.Contains(g.Aliases, v) {
			g.Aliases = append(g.Aliases, v)
			changed = true
		}
	}

	ids := in.identifiers()
	for _, kind := range store.IdentifierKinds {
		v := ids.Get(kind)
		if v != "" && g.Identifiers.Get(kind) == "" {
			g.Identifiers.Set(kind, v)
			changed = true
		}
	}

	if added := historyEntries(g.IdentifiersHistory, in, now); len(added) > 0 {
		g.IdentifiersHistory = append(g.IdentifiersHistory, added...)
		changed = true
	}

	if in.Name != "" && g.Name == "" {
		g.Name = in.Name
		changed = true
	}

	if !changed {
		return g, nil
	}

	g.UpdatedAt = now
	if err := r.store.UpdateGuest(ctx, g); err != nil {
		return nil, fmt.Errorf("updating guest: %w", err)
	}
	r.logger.Debug("merged guest identifiers", "hotel_id", g.HotelID, "guest_id", g.GuestID, "source", in.Source)
	return g, nil
}

// historyEntries returns records for identifiers not yet present in existing
func historyEntries(existing []store.IdentifierRecord, in Input, now time.Time) []store.IdentifierRecord {
	var out []store.IdentifierRecord
	ids := in.identifiers()
	for _, kind := range store.IdentifierKinds {
		v := ids.Get(kind)
		if v == "" {
			continue
		}
		seen := slices.ContainsFunc(existing, func(rec store.IdentifierRecord) bool {
			return rec.Type == kind && rec.Value == v
		})
		if seen {
			continue
		}
		out = append(out, store.IdentifierRecord{
			Type:     kind,
			Value:    v,
			Source:   in.Source,
			Verified: in.Source == SourcePMS,
			SeenAt:   now,
		})
	}
	return out
}
