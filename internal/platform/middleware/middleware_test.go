package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/pkg/requestcontext"

	dErrors "iris/pkg/domain-errors"
	id "iris/pkg/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Test_JWT_RoundTrip(t *testing.T) {
	svc := NewJWTService("test-signing-key")
	principal := id.NewPrincipalID()

	token, err := svc.GenerateAccessToken(principal, time.Hour)
	require.NoError(t, err)

	parsed, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, principal, parsed)
}

func Test_JWT_RejectsExpiredToken(t *testing.T) {
	svc := NewJWTService("test-signing-key")

	token, err := svc.GenerateAccessToken(id.NewPrincipalID(), -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_JWT_RejectsForeignSignature(t *testing.T) {
	token, err := NewJWTService("key-one").GenerateAccessToken(id.NewPrincipalID(), time.Hour)
	require.NoError(t, err)

	_, err = NewJWTService("key-two").ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

type staticVerifier struct {
	principal id.PrincipalID
	token     string
}

func (v staticVerifier) VerifyToken(_ context.Context, principal id.PrincipalID, token string) error {
	if principal == v.principal && token == v.token {
		return nil
	}
	return dErrors.New(dErrors.CodeUnauthorized, "invalid API token")
}

func Test_RequireAuth_BearerToken(t *testing.T) {
	svc := NewJWTService("test-signing-key")
	principal := id.NewPrincipalID()
	token, err := svc.GenerateAccessToken(principal, time.Hour)
	require.NoError(t, err)

	var seen id.PrincipalID
	handler := RequireAuth(svc, staticVerifier{}, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.Principal(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, principal, seen)
}

func Test_RequireAuth_APIKey(t *testing.T) {
	principal := id.NewPrincipalID()
	verifier := staticVerifier{principal: principal, token: "cli-token"}

	var seen id.PrincipalID
	handler := RequireAuth(NewJWTService("k"), verifier, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.Principal(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("X-API-Key", principal.String()+":cli-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, principal, seen)
}

func Test_RequireAuth_RejectsMissingAndBadCredentials(t *testing.T) {
	principal := id.NewPrincipalID()
	verifier := staticVerifier{principal: principal, token: "cli-token"}
	handler := RequireAuth(NewJWTService("k"), verifier, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for name, set := range map[string]func(*http.Request){
		"no credentials": func(r *http.Request) {},
		"garbage bearer": func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
		"bad api key":    func(r *http.Request) { r.Header.Set("X-API-Key", principal.String()+":wrong") },
		"malformed key":  func(r *http.Request) { r.Header.Set("X-API-Key", "not-a-uuid") },
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/documents", nil)
			set(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"unauthorized","error_description":"Missing or invalid credentials"}`, rec.Body.String())
		})
	}
}

func Test_RequestID_GeneratesAndEchoes(t *testing.T) {
	var inCtx string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inCtx = requestcontext.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, inCtx)
	assert.Equal(t, inCtx, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", inCtx)
}

func Test_Recovery_ConvertsPanicTo500(t *testing.T) {
	handler := Recovery(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func Test_ClientMetadata_PrefersForwardedFor(t *testing.T) {
	var ip, ua string
	handler := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "curl/8.4.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.7", ip)
	assert.Equal(t, "curl/8.4.0", ua)
}

func Test_SummarizeUserAgent_Browser(t *testing.T) {
	raw := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	summary := summarizeUserAgent(raw)
	assert.Contains(t, summary, "Chrome")
	assert.NotEqual(t, raw, summary)
}
