package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/pkg/platform/sentinel"

	id "iris/pkg/domain"
)

func Test_InMemory_SubmitAndQuery(t *testing.T) {
	l := NewInMemory(WithSubmitter("test-submitter"))
	digest := id.ComputeDigest([]byte("dossier bundle"))

	ref, err := l.Submit(context.Background(), digest)
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	record, err := l.Query(context.Background(), digest)
	require.NoError(t, err)
	assert.Equal(t, digest, record.Digest)
	assert.Equal(t, ref, record.Ref)
	assert.Equal(t, "test-submitter", record.Submitter)
	assert.Equal(t, 1, record.Confirmations)

	byRef, err := l.QueryByRef(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, record, byRef)
}

func Test_InMemory_RejectsZeroDigest(t *testing.T) {
	l := NewInMemory()

	_, err := l.Submit(context.Background(), id.ZeroDigest)
	require.ErrorIs(t, err, ErrZeroDigest)
	assert.Zero(t, l.Len())
}

func Test_InMemory_RejectsDuplicate(t *testing.T) {
	l := NewInMemory()
	digest := id.ComputeDigest([]byte("same content"))

	first, err := l.Submit(context.Background(), digest)
	require.NoError(t, err)

	_, err = l.Submit(context.Background(), digest)
	require.ErrorIs(t, err, sentinel.ErrDuplicateKey)

	// The winning record is untouched.
	record, err := l.Query(context.Background(), digest)
	require.NoError(t, err)
	assert.Equal(t, first, record.Ref)
	assert.Equal(t, 1, l.Len())
}

func Test_InMemory_QueryUnknown(t *testing.T) {
	l := NewInMemory()

	_, err := l.Query(context.Background(), id.ComputeDigest([]byte("never anchored")))
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = l.QueryByRef(context.Background(), "0xdeadbeef")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func Test_InMemory_EmitsSubmissionEvents(t *testing.T) {
	l := NewInMemory()
	digest := id.ComputeDigest([]byte("event source"))

	ref, err := l.Submit(context.Background(), digest)
	require.NoError(t, err)

	select {
	case event := <-l.Events():
		assert.Equal(t, digest, event.Digest)
		assert.Equal(t, ref, event.Ref)
	default:
		t.Fatal("expected a submission event")
	}
}

func Test_AwaitConfirmed_ReachesDepth(t *testing.T) {
	l := NewInMemory(WithManualConfirmation())
	digest := id.ComputeDigest([]byte("slow confirmation"))
	ref, err := l.Submit(context.Background(), digest)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			time.Sleep(100 * time.Millisecond)
			l.Advance()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	record, err := AwaitConfirmed(ctx, l, ref, 3)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, record.Confirmations, 3)
	<-done
}

func Test_AwaitConfirmed_ContextExpires(t *testing.T) {
	l := NewInMemory(WithManualConfirmation())
	digest := id.ComputeDigest([]byte("never confirms"))
	ref, err := l.Submit(context.Background(), digest)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	_, err = AwaitConfirmed(ctx, l, ref, 5)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The submission itself survives the abandoned wait.
	_, err = l.QueryByRef(context.Background(), ref)
	require.NoError(t, err)
}

func Test_Client_Submit(t *testing.T) {
	digest := id.ComputeDigest([]byte("gateway payload"))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/anchors", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req submitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, digest.String(), req.Digest)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(submitResponse{Ref: "0xabc123"})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithAPIKey("test-key"))
	ref, err := client.Submit(context.Background(), digest)
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", ref)
}

func Test_Client_SubmitConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Submit(context.Background(), id.ComputeDigest([]byte("dup")))
	require.ErrorIs(t, err, sentinel.ErrDuplicateKey)
}

func Test_Client_SubmitZeroDigestShortCircuits(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Submit(context.Background(), id.ZeroDigest)
	require.ErrorIs(t, err, ErrZeroDigest)
	assert.False(t, called)
}

func Test_Client_Query(t *testing.T) {
	digest := id.ComputeDigest([]byte("anchored"))
	now := time.Now().UTC().Truncate(time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/anchors/"+digest.String(), r.URL.Path)
		_ = json.NewEncoder(w).Encode(recordResponse{
			Digest:        digest.String(),
			Ref:           "0xfeed",
			Submitter:     "iris-backend",
			Timestamp:     now.Format(time.RFC3339Nano),
			Confirmations: 7,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	record, err := client.Query(context.Background(), digest)
	require.NoError(t, err)
	assert.Equal(t, digest, record.Digest)
	assert.Equal(t, "0xfeed", record.Ref)
	assert.Equal(t, 7, record.Confirmations)
	assert.True(t, record.Timestamp.Equal(now))
}

func Test_Client_QueryNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Query(context.Background(), id.ComputeDigest([]byte("missing")))
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func Test_Client_GatewayDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Submit(context.Background(), id.ComputeDigest([]byte("x")))
	require.ErrorIs(t, err, sentinel.ErrUnavailable)

	_, err = client.QueryByRef(context.Background(), "0x01")
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
}
