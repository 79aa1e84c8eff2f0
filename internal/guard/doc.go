// Package guard provides the idempotency guard for inbound and outbound events.
//
// A claim is an atomic conditional insert of a Ticket keyed by
// (hotelId, conversationId, direction, sourceMsgId) with an expiry. The first
// caller gets applied=true and must process the event; every later caller
// within the TTL gets applied=false and must acknowledge without reprocessing.
// After the TTL the same id may be processed again.
//
// Backends: StoreClaimer (SQLite message_guards), RedisClaimer (SET NX PX,
// with a literal-expiry Lua fallback) and MemoryClaimer (single process).
package guard
