package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "iris/pkg/domain"
)

// Action names a state-changing operation. Every mutating call across the
// entity store and the anchor protocol appends exactly one record, including
// failures and access-isolation rejections.
type Action string

const (
	ActionDocumentUploaded  Action = "document_uploaded"
	ActionDocumentStatus    Action = "document_status_changed"
	ActionDocumentDeleted   Action = "document_deleted"
	ActionPagesExtracted    Action = "pages_extracted"
	ActionAnalysisCreated   Action = "analysis_created"
	ActionDossierCreated    Action = "dossier_created"
	ActionAnchorSubmitted   Action = "anchor_submitted"
	ActionAnchorConfirmed   Action = "anchor_confirmed"
	ActionAnchorFailed      Action = "anchor_failed"
	ActionAnchorDuplicate   Action = "anchor_duplicate"
	ActionCertificateIssued Action = "certificate_issued"
	ActionProfileUpdated    Action = "profile_updated"
	ActionAccessDenied      Action = "access_denied"
	ActionPrincipalPurged   Action = "principal_purged"
)

// Record is one immutable audit row. ActorID is nil for system-initiated
// actions (retention sweeps, anchor confirmation workers). Seq is assigned
// by the store and totally orders records within a store instance.
type Record struct {
	ID         uuid.UUID
	Seq        int64
	ActorID    *id.PrincipalID
	Action     Action
	TargetType string
	TargetID   string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// Store persists audit records. Append is the only write; nothing updates or
// deletes individual rows. PurgeActor exists solely for the retention policy
// removing an entire principal's data.
type Store interface {
	Append(ctx context.Context, record *Record) error
	ListByActor(ctx context.Context, actorID id.PrincipalID) ([]Record, error)
	ListAll(ctx context.Context) ([]Record, error)
	PurgeActor(ctx context.Context, actorID id.PrincipalID) error
}
