// ABOUTME: SQLite persistence for channel messages and conversations
// ABOUTME: Messages form the append-only transcript; conversations track per-guest threads

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveMessage inserts a message into the transcript
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *ChannelMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	doc, err := encodeDoc(msg)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, hotel_id, conversation_id, direction, status, ts, guest_id, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.MessageID, msg.HotelID, msg.ConversationID, msg.Direction, msg.Status,
		unixNano(msg.Timestamp), nullString(msg.GuestID), doc)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.MessageID, "conversation_id", msg.ConversationID, "status", msg.Status)
	return nil
}

// GetMessage retrieves a message by id.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (*ChannelMessage, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM messages WHERE message_id = ?`, messageID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}

	var msg ChannelMessage
	if err := decodeDoc(doc, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateMessage rewrites a stored message (supervised approvals, delivery outcome).
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, msg *ChannelMessage) error {
	doc, err := encodeDoc(msg)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET status = ?, doc = ? WHERE message_id = ?
	`, msg.Status, doc, msg.MessageID)
	if err != nil {
		return fmt.Errorf("updating message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated message", "id", msg.MessageID, "status", msg.Status)
	return nil
}

// ListMessages returns the most recent `limit` messages of a conversation in
// chronological order. If limit is 0 or negative, all messages are returned.
func (s *SQLiteStore) ListMessages(ctx context.Context, hotelID, conversationID string, limit int) ([]*ChannelMessage, error) {
	var query string
	var args []any

	if limit > 0 {
		query = `
			SELECT doc FROM (
				SELECT doc, ts FROM messages
				WHERE hotel_id = ? AND conversation_id = ?
				ORDER BY ts DESC
				LIMIT ?
			)
			ORDER BY ts ASC
		`
		args = []any{hotelID, conversationID, limit}
	} else {
		query = `
			SELECT doc FROM messages
			WHERE hotel_id = ? AND conversation_id = ?
			ORDER BY ts ASC
		`
		args = []any{hotelID, conversationID}
	}

	return s.queryMessages(ctx, query, args...)
}

// ListPendingMessages returns supervised drafts awaiting staff review, oldest first.
// If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListPendingMessages(ctx context.Context, hotelID string, limit int) ([]*ChannelMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryMessages(ctx, `
		SELECT doc FROM messages
		WHERE hotel_id = ? AND status = ?
		ORDER BY ts ASC
		LIMIT ?
	`, hotelID, StatusPending, limit)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*ChannelMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*ChannelMessage
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		var msg ChannelMessage
		if err := decodeDoc(doc, &msg); err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// GetConversation retrieves a conversation.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, hotelID, conversationID string) (*Conversation, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM conversations WHERE hotel_id = ? AND conversation_id = ?
	`, hotelID, conversationID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	var conv Conversation
	if err := decodeDoc(doc, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpsertConversation writes the whole conversation document
func (s *SQLiteStore) UpsertConversation(ctx context.Context, conv *Conversation) error {
	doc, err := encodeDoc(conv)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (hotel_id, conversation_id, updated_at, doc)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hotel_id, conversation_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			doc = excluded.doc
	`, conv.HotelID, conv.ConversationID, unixNano(conv.LastUpdatedAt), doc)
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}
	return nil
}
