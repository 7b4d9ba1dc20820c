package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/internal/anchor"
	"iris/internal/audit"
	"iris/internal/document"
	"iris/internal/dossier"
	"iris/internal/ledger"
	"iris/internal/platform/middleware"
	"iris/internal/retention"
	"iris/internal/storage/blob"
	"iris/internal/storage/memory"

	id "iris/pkg/domain"
)

type fixture struct {
	server    *httptest.Server
	jwt       *middleware.JWTService
	principal id.PrincipalID
	token     string
	ledger    *ledger.InMemory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditor := audit.NewWriter(audit.NewInMemoryStore(), logger)
	blobs := blob.NewInMemory()
	fakeLedger := ledger.NewInMemory()
	states := anchor.NewInMemoryStateStore()
	retentionSvc := retention.NewService(store, audit.NewInMemoryStore(), auditor, logger)
	anchorSvc := anchor.NewService(store, fakeLedger, states, blobs, auditor, logger,
		anchor.WithConfirmationWait(5*time.Second))

	jwtSvc := middleware.NewJWTService("router-test-key")

	handler := NewRouter(RouterDeps{
		Documents: document.NewService(store, blobs, auditor, logger),
		Dossiers:  dossier.NewService(store, blobs, auditor, logger),
		Anchors:   anchorSvc,
		Verifier:  anchorSvc,
		Retention: retentionSvc,
		Validator: jwtSvc,
		APITokens: retentionSvc,
		Logger:    logger,
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	principal := id.NewPrincipalID()
	token, err := jwtSvc.GenerateAccessToken(principal, time.Hour)
	require.NoError(t, err)

	return &fixture{
		server:    server,
		jwt:       jwtSvc,
		principal: principal,
		token:     token,
		ledger:    fakeLedger,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func (f *fixture) upload(t *testing.T, filename string, content []byte) documentResponse {
	t.Helper()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/documents", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var doc documentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	return doc
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func Test_Router_RejectsAnonymousRequests(t *testing.T) {
	f := newFixture(t)

	resp, err := f.server.Client().Get(f.server.URL + "/documents")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func Test_Router_HealthAndVerifyArePublic(t *testing.T) {
	f := newFixture(t)

	resp, err := f.server.Client().Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = f.server.Client().Get(f.server.URL + "/verify/0xdeadbeef")
	require.NoError(t, err)
	verification := decode[verificationResponse](t, resp)
	assert.False(t, verification.Exists)
}

func Test_Documents_UploadGetContentDelete(t *testing.T) {
	f := newFixture(t)
	content := []byte("quarterly report body")

	doc := f.upload(t, "report.pdf", content)
	assert.Equal(t, "report.pdf", doc.Filename)
	assert.Equal(t, "uploaded", doc.Status)
	assert.Equal(t, id.ComputeDigest(content).String(), doc.Digest)

	resp := f.do(t, http.MethodGet, "/documents/"+doc.ID, nil)
	fetched := decode[documentResponse](t, resp)
	assert.Equal(t, doc.ID, fetched.ID)

	resp = f.do(t, http.MethodGet, "/documents/"+doc.ID+"/content", nil)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, content, raw)

	resp = f.do(t, http.MethodDelete, "/documents/"+doc.ID, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/documents/"+doc.ID, nil)
	errBody := decode[errorResponse](t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errBody.Error)
	assert.NotEmpty(t, errBody.RequestID)
}

func Test_Documents_StatusTransition(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "a.pdf", []byte("a"))

	resp := f.do(t, http.MethodPost, "/documents/"+doc.ID+"/status", map[string]string{"status": "processing"})
	moved := decode[documentResponse](t, resp)
	assert.Equal(t, "processing", moved.Status)

	// Skipping back to uploaded is rejected as a conflict.
	resp = f.do(t, http.MethodPost, "/documents/"+doc.ID+"/status", map[string]string{"status": "uploaded"})
	errBody := decode[errorResponse](t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", errBody.Error)
}

func Test_Documents_PagesAndAnalyses(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "a.pdf", []byte("a"))

	resp := f.do(t, http.MethodPut, "/documents/"+doc.ID+"/pages", map[string]any{
		"pages": []map[string]any{{"page": 1, "text": "first"}, {"page": 2, "text": "second"}},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/documents/"+doc.ID+"/pages", nil)
	pages := decode[[]pageResponse](t, resp)
	require.Len(t, pages, 2)
	assert.Equal(t, "first", pages[0].Text)

	resp = f.do(t, http.MethodPost, "/documents/"+doc.ID+"/analyses", map[string]any{
		"risk": map[string]any{"score": 0.82},
	})
	analysis := decode[analysisResponse](t, resp)
	assert.Equal(t, doc.ID, analysis.DocumentID)
	assert.JSONEq(t, `{"score":0.82}`, string(analysis.Risk))

	resp = f.do(t, http.MethodGet, "/documents/"+doc.ID+"/analyses", nil)
	analyses := decode[[]analysisResponse](t, resp)
	require.Len(t, analyses, 1)
}

func Test_Dossiers_GenerateAnchorVerify(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "a.pdf", []byte("a"))

	resp := f.do(t, http.MethodPost, "/documents/"+doc.ID+"/dossiers", map[string]any{
		"bundle": map[string]any{"summary": "low risk"},
	})
	generated := decode[dossierResponse](t, resp)
	assert.Equal(t, doc.ID, generated.DocumentID)
	assert.NotEmpty(t, generated.Digest)

	resp = f.do(t, http.MethodPost, "/dossiers/"+generated.ID+"/anchor", nil)
	anchored := decode[anchorResponse](t, resp)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.False(t, anchored.Reused)
	assert.Equal(t, generated.Digest, anchored.Certificate.Digest)
	assert.NotEmpty(t, anchored.Certificate.Ref)

	// Anchoring again is idempotent and signals reuse with a conflict status.
	resp = f.do(t, http.MethodPost, "/dossiers/"+generated.ID+"/anchor", nil)
	reanchored := decode[anchorResponse](t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.True(t, reanchored.Reused)
	assert.Equal(t, anchored.Certificate.ID, reanchored.Certificate.ID)
	assert.Equal(t, 1, f.ledger.Len())

	resp = f.do(t, http.MethodGet, "/dossiers/"+generated.ID+"/certificate", nil)
	cert := decode[certificateResponse](t, resp)
	assert.Equal(t, anchored.Certificate.Ref, cert.Ref)

	// Verification is public and answers from the ledger.
	verifyResp, err := f.server.Client().Get(f.server.URL + "/verify/" + cert.Ref)
	require.NoError(t, err)
	verification := decode[verificationResponse](t, verifyResp)
	assert.True(t, verification.Exists)
	assert.Equal(t, generated.Digest, verification.Digest)
}

func Test_Profile_UpdateAndAPITokenAuth(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/profile", map[string]any{
		"name": "Ada", "email": "ada@example.com", "remember_me": true,
	})
	profile := decode[profileResponse](t, resp)
	assert.Equal(t, "Ada", profile.Name)
	assert.Equal(t, f.principal.String(), profile.ID)

	resp = f.do(t, http.MethodPost, "/profile/token", nil)
	tokenBody := decode[map[string]string](t, resp)
	require.NotEmpty(t, tokenBody["token"])

	// The issued token authenticates via X-API-Key without a JWT.
	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/profile", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", fmt.Sprintf("%s:%s", f.principal, tokenBody["token"]))
	keyResp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	fetched := decode[profileResponse](t, keyResp)
	assert.Equal(t, "Ada", fetched.Name)
}

func Test_Logout_PurgesWhenRememberMeUnset(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "a.pdf", []byte("a"))

	resp := f.do(t, http.MethodPut, "/profile", map[string]any{"remember_me": false})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/logout", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/documents/"+doc.ID, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_Isolation_ForeignDocumentIsForbidden(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "a.pdf", []byte("a"))

	strangerToken, err := f.jwt.GenerateAccessToken(id.NewPrincipalID(), time.Hour)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/documents/"+doc.ID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+strangerToken)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	errBody := decode[errorResponse](t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "access_denied", errBody.Error)
}
