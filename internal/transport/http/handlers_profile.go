package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"iris/internal/domain"

	dErrors "iris/pkg/domain-errors"
)

// RetentionService defines the profile and retention operations the
// transport needs.
type RetentionService interface {
	Profile(ctx context.Context) (domain.Profile, error)
	Update(ctx context.Context, name, email string, rememberMe bool) (domain.Profile, error)
	IssueToken(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

// ProfileHandler serves the profile and logout endpoints.
type ProfileHandler struct {
	retention RetentionService
	logger    *slog.Logger
}

func NewProfileHandler(retention RetentionService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{retention: retention, logger: logger}
}

// Register mounts the profile routes on an authenticated router.
func (h *ProfileHandler) Register(r chi.Router) {
	r.Get("/profile", h.get)
	r.Put("/profile", h.update)
	r.Post("/profile/token", h.issueToken)
	r.Post("/logout", h.logout)
}

func (h *ProfileHandler) get(w http.ResponseWriter, r *http.Request) {
	profile, err := h.retention.Profile(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (h *ProfileHandler) update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		Email      string `json:"email"`
		RememberMe bool   `json:"remember_me"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	profile, err := h.retention.Update(r.Context(), req.Name, req.Email, req.RememberMe)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// issueToken mints a fresh API token. The plaintext is returned exactly once;
// only its hash is stored.
func (h *ProfileHandler) issueToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.retention.IssueToken(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

// logout ends the session. When the profile has remember-me unset this purges
// every entity the principal owns.
func (h *ProfileHandler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.retention.Logout(r.Context()); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
