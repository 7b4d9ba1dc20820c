package storage

import (
	"context"
	"fmt"

	"iris/pkg/platform/sentinel"
	"iris/pkg/requestcontext"

	id "iris/pkg/domain"
)

// The ownership guard is the single predicate applied at the storage
// boundary. Row-level checks are not repeated per call site; every store
// method funnels through Actor and CheckOwner.

// Actor extracts the acting principal from the context. An anonymous context
// is rejected here: the only anonymous path in the system (certificate
// verification) never touches the entity store.
func Actor(ctx context.Context) (id.PrincipalID, error) {
	actor := requestcontext.Principal(ctx)
	if actor.IsNil() {
		return id.PrincipalID{}, fmt.Errorf("no principal in context: %w", sentinel.ErrDenied)
	}
	return actor, nil
}

// CheckOwner enforces that the actor owns the row. The privileged backend
// identity bypasses ownership; it acts for retention, anchoring confirmation
// and audit writes.
func CheckOwner(actor id.PrincipalID, owner id.PrincipalID) error {
	if actor.IsSystem() || actor == owner {
		return nil
	}
	return fmt.Errorf("row owned by another principal: %w", sentinel.ErrDenied)
}

// RequireSystem rejects any non-privileged actor. Audit reads/writes and
// principal purges go through this.
func RequireSystem(ctx context.Context) error {
	if !requestcontext.IsSystemActor(ctx) {
		return fmt.Errorf("privileged backend identity required: %w", sentinel.ErrDenied)
	}
	return nil
}
