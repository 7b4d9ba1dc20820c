package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"iris/internal/anchor"
	"iris/internal/domain"
	"iris/pkg/requestcontext"

	dErrors "iris/pkg/domain-errors"
)

// errorResponse is the uniform error body. Code values come from the error
// taxonomy so clients can branch without string matching.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps a coded error onto its HTTP status and emits the uniform
// error body. Internal errors are logged with the request id and returned
// without their cause.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.HTTPStatus(code)

	message := ""
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		message = coded.Message
	}

	ctx := r.Context()
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(ctx),
		)
		message = "internal error"
	}

	writeJSON(w, status, errorResponse{
		Error:       string(code),
		Description: message,
		RequestID:   requestcontext.RequestID(ctx),
	})
}

type documentResponse struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Digest    string    `json:"digest"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toDocumentResponse(doc domain.Document) documentResponse {
	return documentResponse{
		ID:        doc.ID.String(),
		Filename:  doc.Filename,
		Digest:    doc.Digest.String(),
		Status:    string(doc.Status),
		CreatedAt: doc.CreatedAt,
	}
}

type pageResponse struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

type analysisResponse struct {
	ID          string          `json:"id"`
	DocumentID  string          `json:"document_id"`
	Risk        json.RawMessage `json:"risk,omitempty"`
	Compliance  json.RawMessage `json:"compliance,omitempty"`
	CrossVerify json.RawMessage `json:"crossverify,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toAnalysisResponse(a domain.Analysis) analysisResponse {
	return analysisResponse{
		ID:          a.ID.String(),
		DocumentID:  a.DocumentID.String(),
		Risk:        a.Risk,
		Compliance:  a.Compliance,
		CrossVerify: a.CrossVerify,
		CreatedAt:   a.CreatedAt,
	}
}

type dossierResponse struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Digest     string    `json:"digest"`
	CreatedAt  time.Time `json:"created_at"`
}

func toDossierResponse(d domain.Dossier) dossierResponse {
	return dossierResponse{
		ID:         d.ID.String(),
		DocumentID: d.DocumentID.String(),
		Digest:     d.Digest.String(),
		CreatedAt:  d.CreatedAt,
	}
}

type certificateResponse struct {
	ID          string    `json:"id"`
	DossierID   string    `json:"dossier_id"`
	Digest      string    `json:"digest"`
	Ref         string    `json:"ref"`
	ExplorerURL string    `json:"explorer_url"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCertificateResponse(c domain.Certificate) certificateResponse {
	return certificateResponse{
		ID:          c.ID.String(),
		DossierID:   c.DossierID.String(),
		Digest:      c.Digest.String(),
		Ref:         c.Ref,
		ExplorerURL: c.ExplorerURL,
		CreatedAt:   c.CreatedAt,
	}
}

type anchorResponse struct {
	Certificate certificateResponse `json:"certificate"`
	Reused      bool                `json:"reused"`
}

func toAnchorResponse(o *anchor.Outcome) anchorResponse {
	return anchorResponse{
		Certificate: toCertificateResponse(o.Certificate),
		Reused:      o.Reused,
	}
}

type verificationResponse struct {
	Exists        bool      `json:"exists"`
	Digest        string    `json:"digest,omitempty"`
	Ref           string    `json:"ref,omitempty"`
	Submitter     string    `json:"submitter,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
	Confirmations int       `json:"confirmations,omitempty"`
	ExplorerURL   string    `json:"explorer_url,omitempty"`
}

func toVerificationResponse(v anchor.Verification) verificationResponse {
	resp := verificationResponse{Exists: v.Exists}
	if !v.Exists {
		return resp
	}
	resp.Digest = v.Digest.String()
	resp.Ref = v.Ref
	resp.Submitter = v.Submitter
	resp.Timestamp = v.Timestamp
	resp.Confirmations = v.Confirmations
	resp.ExplorerURL = v.ExplorerURL
	return resp
}

type profileResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Email      string    `json:"email,omitempty"`
	RememberMe bool      `json:"remember_me"`
	CreatedAt  time.Time `json:"created_at"`
}

func toProfileResponse(p domain.Profile) profileResponse {
	return profileResponse{
		ID:         p.ID.String(),
		Name:       p.Name,
		Email:      p.Email,
		RememberMe: p.RememberMe,
		CreatedAt:  p.CreatedAt,
	}
}
