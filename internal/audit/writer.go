package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"iris/pkg/requestcontext"
)

// Writer is the single entry point for audit appends. It runs the store
// write under the privileged backend identity (end-user identities can never
// write audit rows directly), stamps the record from request context, and
// hands a copy to the mirror channel when one is wired.
//
// The append itself shares the caller's context, so inside a store
// transaction the record commits atomically with the operation it describes:
// success is never logged before the underlying commit.
type Writer struct {
	store  Store
	logger *slog.Logger
	mirror chan<- Record
}

// Option configures a Writer.
type Option func(*Writer)

// WithMirror wires a channel drained by the Kafka mirror worker. Mirroring
// is best-effort: a full channel drops the copy, never the source of truth.
func WithMirror(mirror chan<- Record) Option {
	return func(w *Writer) { w.mirror = mirror }
}

func NewWriter(store Store, logger *slog.Logger, opts ...Option) *Writer {
	w := &Writer{store: store, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Record appends one audit record for the action. The actor is taken from
// the request context; system-initiated actions record a nil actor.
func (w *Writer) Record(ctx context.Context, action Action, targetType, targetID string, metadata map[string]any) error {
	record := &Record{
		ID:         uuid.New(),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   metadata,
		CreatedAt:  requestcontext.Now(ctx),
	}
	if actor := requestcontext.Principal(ctx); !actor.IsNil() && !actor.IsSystem() {
		record.ActorID = &actor
	}
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		if record.Metadata == nil {
			record.Metadata = make(map[string]any, 2)
		}
		record.Metadata["client_ip"] = ip
		if ua := requestcontext.UserAgent(ctx); ua != "" {
			record.Metadata["user_agent"] = ua
		}
	}

	if err := w.store.Append(requestcontext.WithSystemActor(ctx), record); err != nil {
		return err
	}

	if w.mirror != nil {
		select {
		case w.mirror <- *record:
		default:
			w.logger.Warn("audit mirror channel full, dropping copy",
				"action", string(action), "record_id", record.ID.String())
		}
	}
	return nil
}

// Denied records an access-isolation rejection. The underlying operation was
// not performed, but the rejection itself is part of the non-repudiable trail.
func (w *Writer) Denied(ctx context.Context, targetType, targetID, reason string) {
	if err := w.Record(ctx, ActionAccessDenied, targetType, targetID, map[string]any{
		"reason": reason,
	}); err != nil {
		w.logger.Error("failed to audit access denial",
			"target_type", targetType, "target_id", targetID, "error", err)
	}
}
