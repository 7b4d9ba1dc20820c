package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the ledger client
// return these (optionally wrapped) so services can translate them into
// coded domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: row does not exist, or exists under a different owner
// - ErrConflict: a unique value (e.g. certificate digest) is already taken
// - ErrConstraint: referential integrity failure (e.g. parent row missing)
// - ErrInvalidState: entity in wrong lifecycle state for the operation
// - ErrDenied: ownership guard rejected the actor at the storage boundary
// - ErrDuplicateKey: the ledger already holds a record for the digest
// - ErrUnavailable: store or ledger temporarily unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrConstraint   = errors.New("constraint violation")
	ErrInvalidState = errors.New("invalid state")
	ErrDenied       = errors.New("access denied")
	ErrDuplicateKey = errors.New("duplicate ledger key")
	ErrUnavailable  = errors.New("unavailable")
)
