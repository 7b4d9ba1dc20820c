package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iris/internal/anchor"
	"iris/internal/platform/metrics"
	"iris/internal/platform/middleware"
)

// RouterDeps carries everything the router mounts.
type RouterDeps struct {
	Documents DocumentService
	Dossiers  DossierService
	Anchors   AnchorService
	Verifier  VerifyService
	Retention RetentionService

	Validator middleware.TokenValidator
	APITokens middleware.APITokenVerifier

	Metrics       *metrics.Metrics
	AnchorMetrics *anchor.Metrics
	Logger        *slog.Logger

	// RequestTimeout bounds each request; anchoring can legitimately take
	// the whole confirmation wait, so keep this generous.
	RequestTimeout time.Duration
}

// NewRouter assembles the full HTTP surface: public health, metrics and
// verification endpoints, plus the authenticated API.
func NewRouter(deps RouterDeps) http.Handler {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 3 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(deps.RequestTimeout))
	r.Use(middleware.Latency(deps.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	NewVerifyHandler(deps.Verifier, deps.AnchorMetrics, deps.Logger).Register(r)

	r.Group(func(authed chi.Router) {
		authed.Use(middleware.ContentTypeJSON)
		authed.Use(middleware.RequireAuth(deps.Validator, deps.APITokens, deps.Logger))

		NewDocumentHandler(deps.Documents, deps.Metrics, deps.Logger).Register(authed)
		NewDossierHandler(deps.Dossiers, deps.Anchors, deps.Logger).Register(authed)
		NewProfileHandler(deps.Retention, deps.Logger).Register(authed)
	})

	return r
}
