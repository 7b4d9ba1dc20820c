package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"iris/internal/anchor"
)

// VerifyService answers public verification queries straight from the ledger.
type VerifyService interface {
	Verify(ctx context.Context, refOrDigest string) (anchor.Verification, error)
}

// VerifyHandler serves the unauthenticated verification endpoint. Anyone
// holding a transaction reference or digest may check it; no entity data
// leaves the system, only what the public ledger already exposes.
type VerifyHandler struct {
	verifier VerifyService
	metrics  *anchor.Metrics
	logger   *slog.Logger
}

func NewVerifyHandler(verifier VerifyService, m *anchor.Metrics, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{verifier: verifier, metrics: m, logger: logger}
}

// Register mounts the verify route on the public router.
func (h *VerifyHandler) Register(r chi.Router) {
	r.Get("/verify/{ref}", h.verify)
}

func (h *VerifyHandler) verify(w http.ResponseWriter, r *http.Request) {
	verification, err := h.verifier.Verify(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.metrics.IncrementVerify("unavailable")
		writeError(w, r, h.logger, err)
		return
	}
	if verification.Exists {
		h.metrics.IncrementVerify("found")
	} else {
		h.metrics.IncrementVerify("not_found")
	}
	writeJSON(w, http.StatusOK, toVerificationResponse(verification))
}
