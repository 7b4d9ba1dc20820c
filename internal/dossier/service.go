// Package dossier turns the bundle collaborator's output into a stored
// dossier: immutable bundle bytes plus the content digest that becomes the
// dossier's identity.
package dossier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"iris/internal/audit"
	"iris/internal/domain"
	"iris/internal/storage"
	"iris/internal/storage/blob"
	"iris/pkg/platform/sentinel"

	dErrors "iris/pkg/domain-errors"
	id "iris/pkg/domain"
)

// Service persists dossiers. The collaborator's precomputed digest is trusted
// as the canonical identity at creation; the anchor protocol recomputes it
// before any ledger submission.
type Service struct {
	store   storage.Store
	blobs   blob.Store
	auditor *audit.Writer
	logger  *slog.Logger
}

func NewService(store storage.Store, blobs blob.Store, auditor *audit.Writer, logger *slog.Logger) *Service {
	return &Service{store: store, blobs: blobs, auditor: auditor, logger: logger}
}

// Generate creates a dossier for the document from the rendered bundle.
// digestHex is the collaborator's precomputed digest; when empty it is
// computed here. Malformed or zero digests fail fast before anything is
// stored.
func (s *Service) Generate(ctx context.Context, docID id.DocumentID, bundle []byte, digestHex string) (domain.Dossier, error) {
	if len(bundle) == 0 {
		return domain.Dossier{}, dErrors.New(dErrors.CodeBadRequest, "empty bundle")
	}

	var digest id.Digest
	if digestHex == "" {
		digest = id.ComputeDigest(bundle)
	} else {
		parsed, err := id.ParseDigest(digestHex)
		if err != nil {
			return domain.Dossier{}, dErrors.Wrap(err, dErrors.CodeInvalidDigest, "malformed digest")
		}
		digest = parsed
	}
	if digest.IsZero() {
		return domain.Dossier{}, dErrors.New(dErrors.CodeInvalidDigest, "zero digest")
	}

	doc, err := s.store.FindDocument(ctx, docID)
	if err != nil {
		return domain.Dossier{}, s.translate(ctx, err, "document", docID.String())
	}

	dossier := domain.Dossier{
		ID:         id.NewDossierID(),
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		Digest:     digest,
	}
	locator, err := s.blobs.Put(ctx, "bundles/"+dossier.ID.String(), bundle)
	if err != nil {
		return domain.Dossier{}, dErrors.Wrap(err, dErrors.CodeInternal, "store bundle")
	}
	dossier.BundleLocator = locator

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateDossier(ctx, dossier); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.ActionDossierCreated, "dossier", dossier.ID.String(), map[string]any{
			"document_id": doc.ID.String(),
			"digest":      digest.String(),
		})
	})
	if err != nil {
		if cleanupErr := s.blobs.Delete(ctx, locator); cleanupErr != nil {
			s.logger.Warn("failed to remove orphaned bundle blob",
				"locator", locator, "error", cleanupErr)
		}
		return domain.Dossier{}, s.translate(ctx, err, "dossier", dossier.ID.String())
	}
	return s.reload(ctx, dossier.ID)
}

func (s *Service) Get(ctx context.Context, dossierID id.DossierID) (domain.Dossier, error) {
	dossier, err := s.store.FindDossier(ctx, dossierID)
	if err != nil {
		return domain.Dossier{}, s.translate(ctx, err, "dossier", dossierID.String())
	}
	return dossier, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Dossier, error) {
	dossiers, err := s.store.ListDossiers(ctx)
	if err != nil {
		return nil, s.translate(ctx, err, "dossier", "")
	}
	return dossiers, nil
}

// Certificate returns the stored certificate for an owned dossier.
func (s *Service) Certificate(ctx context.Context, dossierID id.DossierID) (domain.Certificate, error) {
	cert, err := s.store.FindCertificateByDossier(ctx, dossierID)
	if err != nil {
		return domain.Certificate{}, s.translate(ctx, err, "dossier", dossierID.String())
	}
	return cert, nil
}

func (s *Service) reload(ctx context.Context, dossierID id.DossierID) (domain.Dossier, error) {
	dossier, err := s.store.FindDossier(ctx, dossierID)
	if err != nil {
		return domain.Dossier{}, s.translate(ctx, err, "dossier", dossierID.String())
	}
	return dossier, nil
}

func (s *Service) translate(ctx context.Context, err error, targetType, targetID string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("%s not found", targetType))
	case errors.Is(err, sentinel.ErrDenied):
		s.auditor.Denied(ctx, targetType, targetID, "owner mismatch")
		return dErrors.Wrap(err, dErrors.CodeAccessDenied, "access denied")
	case errors.Is(err, sentinel.ErrConstraint):
		return dErrors.Wrap(err, dErrors.CodeConstraintViolation, "referential constraint failed")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "conflicting state")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "storage failure")
	}
}
