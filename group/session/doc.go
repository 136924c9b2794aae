// Package session defines the group-order session document.
//
// The session package implements:
//   - The Session, Participant and CartItem types persisted by every store
//   - The lifecycle state machine (active, locked, ordered, completed, cancelled)
//   - Boundary validation of cart snapshots
//   - The error kinds shared by stores, services and transports
//   - The real-time event types published on a session's channel
//
// A Session is a single document keyed by its short code. All mutations are
// applied to a private copy (see Clone) and persisted as a whole, so stores can
// implement compare-and-swap on the document Version.
//
// Invariants enforced by Validate:
//   - Code is non-empty and unique (uniqueness is the store's responsibility)
//   - HostID matches exactly one participant
//   - FinalOrderRef is set if and only if Status is completed
//   - Participant user IDs are unique within a session
package session
