// ABOUTME: SQLite persistence for reservations and idempotency guard tickets
// ABOUTME: Guards are claimed with an insert-if-absent-or-expired upsert

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveReservation writes a reservation keyed by {hotelId}:{reservationId}
func (s *SQLiteStore) SaveReservation(ctx context.Context, res *Reservation) error {
	doc, err := encodeDoc(res)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reservations (res_key, hotel_id, reservation_id, conversation_id, created_at, doc)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(res_key) DO UPDATE SET doc = excluded.doc
	`, ReservationKey(res.HotelID, res.ReservationID), res.HotelID, res.ReservationID,
		nullString(res.ConversationID), unixNano(res.CreatedAt), doc)
	if err != nil {
		return fmt.Errorf("saving reservation: %w", err)
	}

	s.logger.Debug("saved reservation", "hotel_id", res.HotelID, "reservation_id", res.ReservationID)
	return nil
}

// GetReservation retrieves a reservation.
// Returns ErrNotFound if the reservation doesn't exist.
func (s *SQLiteStore) GetReservation(ctx context.Context, hotelID, reservationID string) (*Reservation, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM reservations WHERE res_key = ?
	`, ReservationKey(hotelID, reservationID)).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying reservation: %w", err)
	}

	var res Reservation
	if err := decodeDoc(doc, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ClaimGuard inserts the guard ticket unless an unexpired ticket with the same key
// exists. Returns true if this call holds the claim.
func (s *SQLiteStore) ClaimGuard(ctx context.Context, guard *MessageGuard) (bool, error) {
	claimedAt := unixNano(guard.ClaimedAt)

	// The upsert only rewrites an expired row, so a live ticket yields zero changes
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO message_guards (guard_key, hotel_id, conversation_id, direction, source_msg_id, claimed_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guard_key) DO UPDATE SET
			claimed_at = excluded.claimed_at,
			expires_at = excluded.expires_at
		WHERE message_guards.expires_at <= excluded.claimed_at
	`, guard.Key(), guard.HotelID, guard.ConversationID, guard.Direction, guard.SourceMsgID,
		claimedAt, unixNano(guard.ExpiresAt))
	if err != nil {
		return false, fmt.Errorf("claiming guard: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// PurgeExpiredGuards deletes tickets that expired before now
func (s *SQLiteStore) PurgeExpiredGuards(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM message_guards WHERE expires_at <= ?`, unixNano(now))
	if err != nil {
		return 0, fmt.Errorf("purging guards: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		s.logger.Debug("purged expired guards", "count", n)
	}
	return n, nil
}
