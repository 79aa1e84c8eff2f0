// Package dialogue implements the reservation conversation for one guest turn.
//
// # Stages
//
// A conversation moves through three sales stages:
//
//	qualify -> quote -> close
//
// In qualify the engine collects the reservation slots (guest name, check-in,
// check-out, room type and party size) and asks for exactly one missing slot
// per reply. Once every slot is present and the dates form a valid range it
// asks the availability service and moves to quote, telling the guest to
// reply with the confirmation keyword (CONFIRMAR, or CONFIRM in English).
// Confirmation books through the booking service and moves to close.
//
// # Extraction
//
// Slots are extracted by rules first. An optional Extractor (for example a
// language model behind HTTP) may fill fields the rules missed; rule matches
// always win. Values present in a turn overwrite stored ones, so a guest can
// correct a date at any time.
//
// # Failures
//
// Collaborator failures produce a localized fallback reply and leave the
// sales stage unchanged. Handle only returns an error when the state store
// fails, including store.ErrVersionConflict on a concurrent write.
package dialogue
