package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"iris/internal/anchor"
	"iris/internal/domain"

	dErrors "iris/pkg/domain-errors"
	id "iris/pkg/domain"
)

// DossierService defines the dossier operations the transport needs.
type DossierService interface {
	Generate(ctx context.Context, docID id.DocumentID, bundle []byte, digestHex string) (domain.Dossier, error)
	Get(ctx context.Context, dossierID id.DossierID) (domain.Dossier, error)
	List(ctx context.Context) ([]domain.Dossier, error)
	Certificate(ctx context.Context, dossierID id.DossierID) (domain.Certificate, error)
}

// AnchorService defines the anchoring operations the transport needs.
type AnchorService interface {
	Anchor(ctx context.Context, dossierID id.DossierID) (*anchor.Outcome, error)
	Reconcile(ctx context.Context, dossierID id.DossierID) (*anchor.Outcome, error)
}

// DossierHandler serves dossier generation and anchoring.
type DossierHandler struct {
	dossiers DossierService
	anchors  AnchorService
	logger   *slog.Logger
}

func NewDossierHandler(dossiers DossierService, anchors AnchorService, logger *slog.Logger) *DossierHandler {
	return &DossierHandler{dossiers: dossiers, anchors: anchors, logger: logger}
}

// Register mounts the dossier routes on an authenticated router.
func (h *DossierHandler) Register(r chi.Router) {
	r.Post("/documents/{documentID}/dossiers", h.generate)
	r.Get("/dossiers", h.list)
	r.Get("/dossiers/{dossierID}", h.get)
	r.Get("/dossiers/{dossierID}/certificate", h.certificate)
	r.Post("/dossiers/{dossierID}/anchor", h.anchor)
	r.Post("/dossiers/{dossierID}/reconcile", h.reconcile)
}

func (h *DossierHandler) generate(w http.ResponseWriter, r *http.Request) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid document id"))
		return
	}
	var req struct {
		Bundle json.RawMessage `json:"bundle"`
		Digest string          `json:"digest"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	dossier, err := h.dossiers.Generate(r.Context(), docID, req.Bundle, req.Digest)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDossierResponse(dossier))
}

func (h *DossierHandler) list(w http.ResponseWriter, r *http.Request) {
	dossiers, err := h.dossiers.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]dossierResponse, 0, len(dossiers))
	for _, dossier := range dossiers {
		out = append(out, toDossierResponse(dossier))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *DossierHandler) get(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := h.dossierID(w, r)
	if !ok {
		return
	}
	dossier, err := h.dossiers.Get(r.Context(), dossierID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDossierResponse(dossier))
}

func (h *DossierHandler) certificate(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := h.dossierID(w, r)
	if !ok {
		return
	}
	cert, err := h.dossiers.Certificate(r.Context(), dossierID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCertificateResponse(cert))
}

// anchor submits the dossier's digest to the ledger. An already-anchored
// digest answers 409 with the existing certificate so callers can adopt it.
func (h *DossierHandler) anchor(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := h.dossierID(w, r)
	if !ok {
		return
	}
	outcome, err := h.anchors.Anchor(r.Context(), dossierID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.writeOutcome(w, outcome)
}

func (h *DossierHandler) reconcile(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := h.dossierID(w, r)
	if !ok {
		return
	}
	outcome, err := h.anchors.Reconcile(r.Context(), dossierID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.writeOutcome(w, outcome)
}

func (h *DossierHandler) writeOutcome(w http.ResponseWriter, outcome *anchor.Outcome) {
	status := http.StatusCreated
	if outcome.Reused {
		status = http.StatusConflict
	}
	writeJSON(w, status, toAnchorResponse(outcome))
}

func (h *DossierHandler) dossierID(w http.ResponseWriter, r *http.Request) (id.DossierID, bool) {
	dossierID, err := id.ParseDossierID(chi.URLParam(r, "dossierID"))
	if err != nil {
		writeError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid dossier id"))
		return id.DossierID{}, false
	}
	return dossierID, true
}
