// Package store provides persistent storage for the gateway using SQLite.
//
// # Collections
//
// Every record is kept as a JSON document next to the columns it is queried by:
//
//   - messages: inbound and outbound turns, never deleted (audit trail)
//   - conversations: one row per (hotel, conversation)
//   - conv_state: dialogue working memory keyed by {hotelId}:{conversationId}
//   - guests: canonical guest profiles, indexed by the guest_keys side table
//   - reservations: bookings keyed by {hotelId}:{reservationId}
//   - message_guards: idempotency tickets with an expiry
//
// # Concurrency
//
// ConversationState carries a Version. SaveState only succeeds when the stored
// version equals the one the caller loaded, and returns ErrVersionConflict
// otherwise. ClaimGuard inserts a ticket only when none exists or the existing
// one has expired, so a given event id is claimed at most once per TTL.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite with WAL mode and a busy timeout:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Columns added after the first release are applied by idempotent migrations
// that check pragma_table_info before altering a table.
//
// # Errors
//
//   - ErrNotFound: requested document does not exist
//   - ErrDuplicateGuest: canonical guest id already taken
//   - ErrVersionConflict: stale conversation state write
//
// # Testing
//
// Use NewMockStore() for unit tests that do not need SQL. It applies the same
// version and guard semantics as SQLiteStore.
package store
