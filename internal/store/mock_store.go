// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
// Documents are copied on the way in and out so callers never share memory with it.
type MockStore struct {
	mu            sync.RWMutex
	messages      map[string]*ChannelMessage    // keyed by message ID
	conversations map[string]*Conversation      // keyed by hotelID:conversationID
	states        map[string]*ConversationState // keyed by StateKey
	guests        map[string]*Guest             // keyed by hotelID:guestID
	reservations  map[string]*Reservation       // keyed by ReservationKey
	guards        map[string]*MessageGuard      // keyed by guard key

	// Errors injected by tests, returned by the matching method when set
	SaveStateErr   error
	ClaimGuardErr  error
	SaveMessageErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		messages:      make(map[string]*ChannelMessage),
		conversations: make(map[string]*Conversation),
		states:        make(map[string]*ConversationState),
		guests:        make(map[string]*Guest),
		reservations:  make(map[string]*Reservation),
		guards:        make(map[string]*MessageGuard),
	}
}

// SaveMessage stores a message.
func (m *MockStore) SaveMessage(ctx context.Context, msg *ChannelMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveMessageErr != nil {
		return m.SaveMessageErr
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	c := copyMessage(msg)
	m.messages[c.MessageID] = c
	return nil
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(ctx context.Context, messageID string) (*ChannelMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(msg), nil
}

// UpdateMessage replaces a stored message.
func (m *MockStore) UpdateMessage(ctx context.Context, msg *ChannelMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.messages[msg.MessageID]; !ok {
		return ErrNotFound
	}
	m.messages[msg.MessageID] = copyMessage(msg)
	return nil
}

// ListMessages returns a conversation's messages in chronological order.
func (m *MockStore) ListMessages(ctx context.Context, hotelID, conversationID string, limit int) ([]*ChannelMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*ChannelMessage
	for _, msg := range m.messages {
		if msg.HotelID == hotelID && msg.ConversationID == conversationID {
			result = append(result, copyMessage(msg))
		}
	}
	sortMessages(result)
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

// ListPendingMessages returns pending messages of a hotel, oldest first.
func (m *MockStore) ListPendingMessages(ctx context.Context, hotelID string, limit int) ([]*ChannelMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var result []*ChannelMessage
	for _, msg := range m.messages {
		if msg.HotelID == hotelID && msg.Status == StatusPending {
			result = append(result, copyMessage(msg))
		}
	}
	sortMessages(result)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetConversation retrieves a conversation.
func (m *MockStore) GetConversation(ctx context.Context, hotelID, conversationID string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[hotelID+":"+conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// UpsertConversation stores a conversation.
func (m *MockStore) UpsertConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *conv
	m.conversations[conv.HotelID+":"+conv.ConversationID] = &c
	return nil
}

// GetState retrieves a conversation state.
func (m *MockStore) GetState(ctx context.Context, hotelID, conversationID string) (*ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[StateKey(hotelID, conversationID)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyState(st), nil
}

// SaveState stores a conversation state with the same version check as SQLiteStore.
func (m *MockStore) SaveState(ctx context.Context, state *ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveStateErr != nil {
		return m.SaveStateErr
	}

	key := StateKey(state.HotelID, state.ConversationID)
	var current int64
	if existing, ok := m.states[key]; ok {
		current = existing.Version
	}
	if current != state.Version {
		return ErrVersionConflict
	}

	state.Version++
	state.UpdatedAt = time.Now().UTC()
	m.states[key] = copyState(state)
	return nil
}

// GetGuest retrieves a guest by canonical id.
func (m *MockStore) GetGuest(ctx context.Context, hotelID, guestID string) (*Guest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.guests[hotelID+":"+guestID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGuest(g), nil
}

// FindGuest looks a guest up by lookup kind and value; the oldest match wins.
func (m *MockStore) FindGuest(ctx context.Context, hotelID, kind, value string) (*Guest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *Guest
	for _, g := range m.guests {
		if g.HotelID != hotelID {
			continue
		}
		for _, k := range g.lookupKeys() {
			if k[0] == kind && k[1] == value {
				if found == nil || g.CreatedAt.Before(found.CreatedAt) {
					found = g
				}
				break
			}
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return copyGuest(found), nil
}

// CreateGuest stores a new guest.
func (m *MockStore) CreateGuest(ctx context.Context, guest *Guest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := guest.HotelID + ":" + guest.GuestID
	if _, ok := m.guests[key]; ok {
		return ErrDuplicateGuest
	}
	m.guests[key] = copyGuest(guest)
	return nil
}

// UpdateGuest replaces a stored guest.
func (m *MockStore) UpdateGuest(ctx context.Context, guest *Guest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := guest.HotelID + ":" + guest.GuestID
	if _, ok := m.guests[key]; !ok {
		return ErrNotFound
	}
	m.guests[key] = copyGuest(guest)
	return nil
}

// SaveReservation stores a reservation.
func (m *MockStore) SaveReservation(ctx context.Context, res *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *res
	m.reservations[ReservationKey(res.HotelID, res.ReservationID)] = &r
	return nil
}

// GetReservation retrieves a reservation.
func (m *MockStore) GetReservation(ctx context.Context, hotelID, reservationID string) (*Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reservations[ReservationKey(hotelID, reservationID)]
	if !ok {
		return nil, ErrNotFound
	}
	result := *r
	return &result, nil
}

// ClaimGuard claims a guard ticket if absent or expired.
func (m *MockStore) ClaimGuard(ctx context.Context, guard *MessageGuard) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ClaimGuardErr != nil {
		return false, m.ClaimGuardErr
	}
	if guard.ClaimedAt.IsZero() {
		return false, errors.New("guard claimed_at is required")
	}

	key := guard.Key()
	if existing, ok := m.guards[key]; ok && existing.ExpiresAt.After(guard.ClaimedAt) {
		return false, nil
	}
	g := *guard
	m.guards[key] = &g
	return true, nil
}

// PurgeExpiredGuards deletes expired guard tickets.
func (m *MockStore) PurgeExpiredGuards(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, g := range m.guards {
		if !g.ExpiresAt.After(now) {
			delete(m.guards, key)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

func sortMessages(msgs []*ChannelMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

func copyMessage(msg *ChannelMessage) *ChannelMessage {
	c := *msg
	if msg.Rich != nil {
		c.Rich = make(map[string]any, len(msg.Rich))
		for k, v := range msg.Rich {
			c.Rich[k] = v
		}
	}
	return &c
}

func copyState(st *ConversationState) *ConversationState {
	c := *st
	if st.LastProposal != nil {
		p := *st.LastProposal
		p.Options = append([]string(nil), st.LastProposal.Options...)
		if st.LastProposal.ToolCall != nil {
			tc := *st.LastProposal.ToolCall
			tc.Input = make(map[string]string, len(st.LastProposal.ToolCall.Input))
			for k, v := range st.LastProposal.ToolCall.Input {
				tc.Input[k] = v
			}
			p.ToolCall = &tc
		}
		c.LastProposal = &p
	}
	if st.LastReservation != nil {
		r := *st.LastReservation
		c.LastReservation = &r
	}
	return &c
}

func copyGuest(g *Guest) *Guest {
	c := *g
	c.Aliases = append([]string(nil), g.Aliases...)
	c.IdentifiersHistory = append([]IdentifierRecord(nil), g.IdentifiersHistory...)
	c.Tags = append([]string(nil), g.Tags...)
	return &c
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
