// ABOUTME: SQLite persistence for canonical guest profiles
// ABOUTME: A guest_keys side table indexes aliases, identifiers and identifier history

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetGuest retrieves a guest by canonical id.
// Returns ErrNotFound if the guest doesn't exist.
func (s *SQLiteStore) GetGuest(ctx context.Context, hotelID, guestID string) (*Guest, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM guests WHERE hotel_id = ? AND guest_id = ?
	`, hotelID, guestID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying guest: %w", err)
	}

	var g Guest
	if err := decodeDoc(doc, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// FindGuest looks a guest up by alias, identifier type or identifier history.
// kind is one of the Ident* constants, LookupAlias or LookupHistory.
// The oldest matching guest wins. Returns ErrNotFound if nothing matches.
func (s *SQLiteStore) FindGuest(ctx context.Context, hotelID, kind, value string) (*Guest, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT g.doc
		FROM guest_keys k
		JOIN guests g ON g.hotel_id = k.hotel_id AND g.guest_id = k.guest_id
		WHERE k.hotel_id = ? AND k.kind = ? AND k.value = ?
		ORDER BY g.created_at ASC
		LIMIT 1
	`, hotelID, kind, value).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying guest by %s: %w", kind, err)
	}

	var g Guest
	if err := decodeDoc(doc, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateGuest inserts a new guest and indexes its lookup keys.
// Returns ErrDuplicateGuest if the canonical id is already taken.
func (s *SQLiteStore) CreateGuest(ctx context.Context, guest *Guest) error {
	doc, err := encodeDoc(guest)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO guests (hotel_id, guest_id, created_at, doc) VALUES (?, ?, ?, ?)
	`, guest.HotelID, guest.GuestID, unixNano(guest.CreatedAt), doc)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateGuest
		}
		return fmt.Errorf("inserting guest: %w", err)
	}

	if err := writeGuestKeys(ctx, tx, guest); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing guest: %w", err)
	}

	s.logger.Debug("created guest", "hotel_id", guest.HotelID, "guest_id", guest.GuestID)
	return nil
}

// UpdateGuest rewrites a guest document and re-indexes its lookup keys.
// Returns ErrNotFound if the guest doesn't exist.
func (s *SQLiteStore) UpdateGuest(ctx context.Context, guest *Guest) error {
	doc, err := encodeDoc(guest)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE guests SET doc = ? WHERE hotel_id = ? AND guest_id = ?
	`, doc, guest.HotelID, guest.GuestID)
	if err != nil {
		return fmt.Errorf("updating guest: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM guest_keys WHERE hotel_id = ? AND guest_id = ?
	`, guest.HotelID, guest.GuestID); err != nil {
		return fmt.Errorf("clearing guest keys: %w", err)
	}
	if err := writeGuestKeys(ctx, tx, guest); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing guest: %w", err)
	}

	s.logger.Debug("updated guest", "hotel_id", guest.HotelID, "guest_id", guest.GuestID)
	return nil
}

func writeGuestKeys(ctx context.Context, tx *sql.Tx, guest *Guest) error {
	for _, k := range guest.lookupKeys() {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO guest_keys (hotel_id, kind, value, guest_id) VALUES (?, ?, ?, ?)
		`, guest.HotelID, k[0], k[1], guest.GuestID)
		if err != nil {
			return fmt.Errorf("indexing guest %s: %w", k[0], err)
		}
	}
	return nil
}
