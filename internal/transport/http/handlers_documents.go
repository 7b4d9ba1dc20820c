package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"iris/internal/document"
	"iris/internal/domain"
	"iris/internal/platform/metrics"

	dErrors "iris/pkg/domain-errors"
	id "iris/pkg/domain"
)

// DocumentService defines the document operations the transport needs.
type DocumentService interface {
	Upload(ctx context.Context, filename string, content []byte) (domain.Document, error)
	Get(ctx context.Context, docID id.DocumentID) (domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
	Content(ctx context.Context, docID id.DocumentID) ([]byte, error)
	Transition(ctx context.Context, docID id.DocumentID, next domain.DocumentStatus) (domain.Document, error)
	Delete(ctx context.Context, docID id.DocumentID) error
	AttachPages(ctx context.Context, docID id.DocumentID, pages []document.Page) error
	ListPages(ctx context.Context, docID id.DocumentID) ([]domain.ExtractedText, error)
	AttachAnalysis(ctx context.Context, docID id.DocumentID, input document.AnalysisInput) (domain.Analysis, error)
	ListAnalyses(ctx context.Context, docID id.DocumentID) ([]domain.Analysis, error)
}

// DocumentHandler serves the document lifecycle endpoints.
type DocumentHandler struct {
	documents DocumentService
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewDocumentHandler(documents DocumentService, m *metrics.Metrics, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{documents: documents, metrics: m, logger: logger}
}

// Register mounts the document routes on an authenticated router.
func (h *DocumentHandler) Register(r chi.Router) {
	r.Post("/documents", h.upload)
	r.Get("/documents", h.list)
	r.Get("/documents/{documentID}", h.get)
	r.Get("/documents/{documentID}/content", h.content)
	r.Delete("/documents/{documentID}", h.delete)
	r.Post("/documents/{documentID}/status", h.transition)
	r.Put("/documents/{documentID}/pages", h.attachPages)
	r.Get("/documents/{documentID}/pages", h.listPages)
	r.Post("/documents/{documentID}/analyses", h.attachAnalysis)
	r.Get("/documents/{documentID}/analyses", h.listAnalyses)
}

func (h *DocumentHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, document.MaxUploadBytes)
	if err := r.ParseMultipartForm(document.MaxUploadBytes); err != nil {
		writeError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodeBadRequest, "expected multipart upload"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodeBadRequest, "missing file field"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodeBadRequest, "read upload"))
		return
	}

	doc, err := h.documents.Upload(r.Context(), header.Filename, content)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.metrics.IncrementDocumentsCreated()
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (h *DocumentHandler) list(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDocumentResponse(doc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *DocumentHandler) get(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.documents.Get(r.Context(), docID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *DocumentHandler) content(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	content, err := h.documents.Content(r.Context(), docID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (h *DocumentHandler) delete(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if err := h.documents.Delete(r.Context(), docID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.metrics.IncrementDocumentsDeleted()
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) transition(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	doc, err := h.documents.Transition(r.Context(), docID, domain.DocumentStatus(req.Status))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *DocumentHandler) attachPages(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req struct {
		Pages []pageResponse `json:"pages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	pages := make([]document.Page, 0, len(req.Pages))
	for _, p := range req.Pages {
		pages = append(pages, document.Page{Page: p.Page, Text: p.Text})
	}
	if err := h.documents.AttachPages(r.Context(), docID, pages); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) listPages(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	pages, err := h.documents.ListPages(r.Context(), docID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]pageResponse, 0, len(pages))
	for _, page := range pages {
		out = append(out, pageResponse{Page: page.Page, Text: page.Text})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *DocumentHandler) attachAnalysis(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req struct {
		Risk        json.RawMessage `json:"risk"`
		Compliance  json.RawMessage `json:"compliance"`
		CrossVerify json.RawMessage `json:"crossverify"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	analysis, err := h.documents.AttachAnalysis(r.Context(), docID, document.AnalysisInput{
		Risk:        req.Risk,
		Compliance:  req.Compliance,
		CrossVerify: req.CrossVerify,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAnalysisResponse(analysis))
}

func (h *DocumentHandler) listAnalyses(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	analyses, err := h.documents.ListAnalyses(r.Context(), docID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]analysisResponse, 0, len(analyses))
	for _, analysis := range analyses {
		out = append(out, toAnalysisResponse(analysis))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *DocumentHandler) documentID(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid document id"))
		return id.DocumentID{}, false
	}
	return docID, true
}
