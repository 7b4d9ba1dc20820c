// Package document owns the document lifecycle: upload registration, status
// transitions, extracted text and analysis attachment, and cascade deletion.
package document

import (
	"context"
	"encoding/json"
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

// MaxUploadBytes bounds a single document upload.
const MaxUploadBytes = 32 << 20

// Page is one extracted page supplied by the extraction collaborator.
type Page struct {
	Page int
	Text string
}

// AnalysisInput carries the opaque collaborator payloads. At least one part
// must be present; the core never inspects field semantics.
type AnalysisInput struct {
	Risk        json.RawMessage
	Compliance  json.RawMessage
	CrossVerify json.RawMessage
}

// Service coordinates the entity store, the blob store, and the audit trail
// for document operations. Every mutation commits atomically with its audit
// record.
type Service struct {
	store   storage.Store
	blobs   blob.Store
	auditor *audit.Writer
	logger  *slog.Logger
}

func NewService(store storage.Store, blobs blob.Store, auditor *audit.Writer, logger *slog.Logger) *Service {
	return &Service{store: store, blobs: blobs, auditor: auditor, logger: logger}
}

// Upload registers an uploaded file: content digest, blob write, document
// row, and audit record.
func (s *Service) Upload(ctx context.Context, filename string, content []byte) (domain.Document, error) {
	if filename == "" {
		return domain.Document{}, dErrors.New(dErrors.CodeBadRequest, "filename is required")
	}
	if len(content) == 0 {
		return domain.Document{}, dErrors.New(dErrors.CodeBadRequest, "empty upload")
	}
	if len(content) > MaxUploadBytes {
		return domain.Document{}, dErrors.Newf(dErrors.CodeBadRequest,
			"upload exceeds %d bytes", MaxUploadBytes)
	}

	actor, err := storage.Actor(ctx)
	if err != nil {
		return domain.Document{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "authentication required")
	}

	doc := domain.Document{
		ID:       id.NewDocumentID(),
		OwnerID:  actor,
		Filename: filename,
		Digest:   id.ComputeDigest(content),
		Status:   domain.StatusUploaded,
	}
	locator, err := s.blobs.Put(ctx, "documents/"+doc.ID.String(), content)
	if err != nil {
		return domain.Document{}, dErrors.Wrap(err, dErrors.CodeInternal, "store document content")
	}
	doc.StorageLocator = locator

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateDocument(ctx, doc); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.ActionDocumentUploaded, "document", doc.ID.String(), map[string]any{
			"filename": doc.Filename,
			"digest":   doc.Digest.String(),
			"size":     len(content),
		})
	})
	if err != nil {
		if cleanupErr := s.blobs.Delete(ctx, locator); cleanupErr != nil {
			s.logger.Warn("failed to remove orphaned upload blob",
				"locator", locator, "error", cleanupErr)
		}
		return domain.Document{}, s.translate(ctx, err, "document", doc.ID.String())
	}
	return s.reload(ctx, doc.ID)
}

func (s *Service) Get(ctx context.Context, docID id.DocumentID) (domain.Document, error) {
	doc, err := s.store.FindDocument(ctx, docID)
	if err != nil {
		return domain.Document{}, s.translate(ctx, err, "document", docID.String())
	}
	return doc, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Document, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, s.translate(ctx, err, "document", "")
	}
	return docs, nil
}

// Content returns the stored bytes of an owned document.
func (s *Service) Content(ctx context.Context, docID id.DocumentID) ([]byte, error) {
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	content, err := s.blobs.Load(ctx, doc.StorageLocator)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load document content")
	}
	return content, nil
}

// Transition advances the lifecycle status. The store validates monotonicity
// under its own lock; out-of-order moves surface as conflicts.
func (s *Service) Transition(ctx context.Context, docID id.DocumentID, next domain.DocumentStatus) (domain.Document, error) {
	if !next.Valid() {
		return domain.Document{}, dErrors.Newf(dErrors.CodeBadRequest, "unknown status %q", next)
	}

	doc, err := s.store.FindDocument(ctx, docID)
	if err != nil {
		return domain.Document{}, s.translate(ctx, err, "document", docID.String())
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.TransitionDocument(ctx, docID, next); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.ActionDocumentStatus, "document", docID.String(), map[string]any{
			"from": string(doc.Status),
			"to":   string(next),
		})
	})
	if err != nil {
		return domain.Document{}, s.translate(ctx, err, "document", docID.String())
	}
	return s.reload(ctx, docID)
}

// Delete removes the document and its entire subtree atomically, then the
// content blob best-effort.
func (s *Service) Delete(ctx context.Context, docID id.DocumentID) error {
	doc, err := s.store.FindDocument(ctx, docID)
	if err != nil {
		return s.translate(ctx, err, "document", docID.String())
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteDocumentCascade(ctx, docID); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.ActionDocumentDeleted, "document", docID.String(), map[string]any{
			"filename": doc.Filename,
			"digest":   doc.Digest.String(),
		})
	})
	if err != nil {
		return s.translate(ctx, err, "document", docID.String())
	}

	if err := s.blobs.Delete(ctx, doc.StorageLocator); err != nil {
		s.logger.Warn("failed to remove document blob after delete",
			"locator", doc.StorageLocator, "error", err)
	}
	return nil
}

// AttachPages stores the extraction collaborator's per-page text. Pages are
// upserts keyed by (document, page); a re-extraction replaces earlier text.
func (s *Service) AttachPages(ctx context.Context, docID id.DocumentID, pages []Page) error {
	if len(pages) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "no pages supplied")
	}
	for _, page := range pages {
		if page.Page < 1 {
			return dErrors.Newf(dErrors.CodeBadRequest, "invalid page number %d", page.Page)
		}
	}

	rows := make([]domain.ExtractedText, 0, len(pages))
	for _, page := range pages {
		rows = append(rows, domain.ExtractedText{
			DocumentID: docID,
			Page:       page.Page,
			Text:       page.Text,
		})
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SavePages(ctx, docID, rows); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.ActionPagesExtracted, "document", docID.String(), map[string]any{
			"pages": len(rows),
		})
	})
	if err != nil {
		return s.translate(ctx, err, "document", docID.String())
	}
	return nil
}

func (s *Service) ListPages(ctx context.Context, docID id.DocumentID) ([]domain.ExtractedText, error) {
	pages, err := s.store.ListPages(ctx, docID)
	if err != nil {
		return nil, s.translate(ctx, err, "document", docID.String())
	}
	return pages, nil
}

// AttachAnalysis persists one collaborator result set against the document.
// Cross-verification payloads may reference further document ids inside the
// opaque JSON; only the primary document relation is modelled here.
func (s *Service) AttachAnalysis(ctx context.Context, docID id.DocumentID, input AnalysisInput) (domain.Analysis, error) {
	if len(input.Risk) == 0 && len(input.Compliance) == 0 && len(input.CrossVerify) == 0 {
		return domain.Analysis{}, dErrors.New(dErrors.CodeBadRequest, "empty analysis payload")
	}
	for name, payload := range map[string]json.RawMessage{
		"risk": input.Risk, "compliance": input.Compliance, "crossverify": input.CrossVerify,
	} {
		if len(payload) > 0 && !json.Valid(payload) {
			return domain.Analysis{}, dErrors.Newf(dErrors.CodeBadRequest, "%s payload is not valid JSON", name)
		}
	}

	analysis := domain.Analysis{
		ID:          id.NewAnalysisID(),
		DocumentID:  docID,
		Risk:        input.Risk,
		Compliance:  input.Compliance,
		CrossVerify: input.CrossVerify,
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateAnalysis(ctx, analysis); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.ActionAnalysisCreated, "analysis", analysis.ID.String(), map[string]any{
			"document_id": docID.String(),
		})
	})
	if err != nil {
		return domain.Analysis{}, s.translate(ctx, err, "document", docID.String())
	}

	analyses, err := s.store.ListAnalyses(ctx, docID)
	if err != nil {
		return domain.Analysis{}, s.translate(ctx, err, "document", docID.String())
	}
	for _, stored := range analyses {
		if stored.ID == analysis.ID {
			return stored, nil
		}
	}
	return analysis, nil
}

func (s *Service) ListAnalyses(ctx context.Context, docID id.DocumentID) ([]domain.Analysis, error) {
	analyses, err := s.store.ListAnalyses(ctx, docID)
	if err != nil {
		return nil, s.translate(ctx, err, "document", docID.String())
	}
	return analyses, nil
}

func (s *Service) reload(ctx context.Context, docID id.DocumentID) (domain.Document, error) {
	doc, err := s.store.FindDocument(ctx, docID)
	if err != nil {
		return domain.Document{}, s.translate(ctx, err, "document", docID.String())
	}
	return doc, nil
}

// translate maps storage sentinels onto the caller-facing taxonomy and
// audits ownership rejections.
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
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeConflict, "illegal lifecycle transition")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "storage failure")
	}
}
