// Package identity resolves guest identity signals into canonical per-hotel guests.
//
// Resolution is deterministic: exact guest id, then alias, then primary
// identifiers (including legacy top-level email and phone), then identifier
// history. On a hit aliases are unioned, empty identifier slots are filled and
// history grows; nothing is ever removed. On a miss the canonical id is the
// first of normalized email, whatsapp id, normalized phone and raw id.
package identity
