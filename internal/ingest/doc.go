// Package ingest is the entry point for inbound guest messages.
//
// Every channel webhook decodes its payload into an Event and calls
// Service.Handle, which runs:
//
//  1. Validate (ErrInvalidEvent is the only error returned)
//  2. Idempotency guard claim on (hotel, conversation, "in", sourceMsgId)
//  3. Guest identity resolution
//  4. Conversation upsert (deterministic id from hotel, channel and guest)
//  5. Inbound transcript write and live push
//  6. Dialogue turn under a per-conversation lock
//  7. Delivery, or a pending draft when the guest is supervised
//  8. reservation.created.v1 when the turn booked a room
//
// Duplicates are acknowledged with Deduped=true. Collaborator failures are
// logged and degrade to a fallback reply; the caller is always acknowledged.
package ingest
