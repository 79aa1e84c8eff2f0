// ABOUTME: SQLite persistence for per-conversation dialogue state
// ABOUTME: Whole-document writes guarded by a version compare-and-swap

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetState retrieves the dialogue state of a conversation.
// Returns ErrNotFound if the conversation has no state yet.
func (s *SQLiteStore) GetState(ctx context.Context, hotelID, conversationID string) (*ConversationState, error) {
	var doc string
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT version, doc FROM conv_state WHERE state_key = ?
	`, StateKey(hotelID, conversationID)).Scan(&version, &doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation state: %w", err)
	}

	var state ConversationState
	if err := decodeDoc(doc, &state); err != nil {
		return nil, err
	}
	state.Version = version
	return &state, nil
}

// SaveState writes the whole state document. A state read with Version n is only
// written if the stored version is still n; a new state must have Version 0.
// On success state.Version is advanced, on a lost race ErrVersionConflict is returned.
func (s *SQLiteStore) SaveState(ctx context.Context, state *ConversationState) error {
	expected := state.Version
	state.Version = expected + 1
	state.UpdatedAt = time.Now().UTC()

	doc, err := encodeDoc(state)
	if err != nil {
		state.Version = expected
		return err
	}

	key := StateKey(state.HotelID, state.ConversationID)
	if expected == 0 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO conv_state (state_key, hotel_id, conversation_id, version, updated_at, doc)
			VALUES (?, ?, ?, ?, ?, ?)
		`, key, state.HotelID, state.ConversationID, state.Version, unixNano(state.UpdatedAt), doc)
		if err != nil {
			state.Version = expected
			if isConstraintViolation(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("inserting conversation state: %w", err)
		}
		return nil
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE conv_state SET version = ?, updated_at = ?, doc = ?
		WHERE state_key = ? AND version = ?
	`, state.Version, unixNano(state.UpdatedAt), doc, key, expected)
	if err != nil {
		state.Version = expected
		return fmt.Errorf("updating conversation state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		state.Version = expected
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		state.Version = expected
		return ErrVersionConflict
	}

	s.logger.Debug("saved conversation state", "key", key, "version", state.Version, "stage", state.SalesStage)
	return nil
}
