package storage

import (
	"context"

	"iris/internal/domain"
	id "iris/pkg/domain"
)

// Stores are interface-driven so the services stay testable and the memory
// and postgres implementations are interchangeable. Every method derives the
// acting principal from the request context and applies the ownership guard
// at this boundary; a bug in calling code cannot read or mutate another
// principal's rows.

// Tx provides a transactional boundary spanning entity and audit writes.
// The postgres implementation opens a SQL transaction and threads it through
// the context; the memory implementation serializes on a coarse lock.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ProfileStore interface {
	SaveProfile(ctx context.Context, profile domain.Profile) error
	FindProfile(ctx context.Context, principalID id.PrincipalID) (domain.Profile, error)
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, doc domain.Document) error
	FindDocument(ctx context.Context, docID id.DocumentID) (domain.Document, error)
	ListDocuments(ctx context.Context) ([]domain.Document, error)
	// TransitionDocument advances the lifecycle status; the monotonicity of
	// uploaded -> processing -> done|failed is validated under the store lock.
	TransitionDocument(ctx context.Context, docID id.DocumentID, next domain.DocumentStatus) error
	// DeleteDocumentCascade removes the document and every dependent row
	// (texts, analyses, dossiers, certificates) atomically.
	DeleteDocumentCascade(ctx context.Context, docID id.DocumentID) error
}

type TextStore interface {
	SavePages(ctx context.Context, docID id.DocumentID, pages []domain.ExtractedText) error
	ListPages(ctx context.Context, docID id.DocumentID) ([]domain.ExtractedText, error)
}

type AnalysisStore interface {
	CreateAnalysis(ctx context.Context, analysis domain.Analysis) error
	ListAnalyses(ctx context.Context, docID id.DocumentID) ([]domain.Analysis, error)
}

type DossierStore interface {
	CreateDossier(ctx context.Context, dossier domain.Dossier) error
	FindDossier(ctx context.Context, dossierID id.DossierID) (domain.Dossier, error)
	ListDossiers(ctx context.Context) ([]domain.Dossier, error)
}

type CertificateStore interface {
	// CreateCertificate inserts the certificate; a digest already present
	// anywhere in the system fails with sentinel.ErrConflict, enforced
	// atomically with the insert.
	CreateCertificate(ctx context.Context, cert domain.Certificate) error
	FindCertificateByDossier(ctx context.Context, dossierID id.DossierID) (domain.Certificate, error)
	// FindCertificateByDigest looks up across all owners; it backs the
	// anchor protocol's adopt-the-winner path and requires the privileged
	// backend identity.
	FindCertificateByDigest(ctx context.Context, digest id.Digest) (domain.Certificate, error)
}

type RetentionStore interface {
	// PurgePrincipal removes everything a principal owns, including the
	// audit trail. Privileged backend identity only.
	PurgePrincipal(ctx context.Context, principalID id.PrincipalID) error
}

// Store aggregates the per-entity interfaces; both implementations satisfy it.
type Store interface {
	Tx
	ProfileStore
	DocumentStore
	TextStore
	AnalysisStore
	DossierStore
	CertificateStore
	RetentionStore
}
