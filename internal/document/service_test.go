package document

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/internal/audit"
	"iris/internal/domain"
	"iris/internal/storage/blob"
	"iris/internal/storage/memory"
	"iris/pkg/requestcontext"

	dErrors "iris/pkg/domain-errors"
	id "iris/pkg/domain"
)

type fixture struct {
	service *Service
	store   *memory.Store
	blobs   *blob.InMemory
	audits  *audit.InMemoryStore
	owner   id.PrincipalID
	ctx     context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	audits := audit.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	blobs := blob.NewInMemory()
	owner := id.NewPrincipalID()

	return &fixture{
		service: NewService(store, blobs, audit.NewWriter(audits, logger), logger),
		store:   store,
		blobs:   blobs,
		audits:  audits,
		owner:   owner,
		ctx:     requestcontext.WithPrincipal(context.Background(), owner),
	}
}

func (f *fixture) auditActions(t *testing.T) []audit.Action {
	t.Helper()
	records, err := f.audits.ListAll(requestcontext.WithSystemActor(context.Background()))
	require.NoError(t, err)
	actions := make([]audit.Action, 0, len(records))
	for _, record := range records {
		actions = append(actions, record.Action)
	}
	return actions
}

func Test_Upload(t *testing.T) {
	f := newFixture(t)
	content := []byte("%PDF-1.7 test content")

	doc, err := f.service.Upload(f.ctx, "contract.pdf", content)
	require.NoError(t, err)
	assert.Equal(t, f.owner, doc.OwnerID)
	assert.Equal(t, domain.StatusUploaded, doc.Status)
	assert.Equal(t, id.ComputeDigest(content), doc.Digest)
	assert.False(t, doc.CreatedAt.IsZero())

	stored, err := f.service.Content(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, content, stored)
	assert.Equal(t, []audit.Action{audit.ActionDocumentUploaded}, f.auditActions(t))
}

func Test_Upload_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Upload(f.ctx, "", []byte("content"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = f.service.Upload(f.ctx, "empty.pdf", nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = f.service.Upload(context.Background(), "anon.pdf", []byte("content"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Transition_Lifecycle(t *testing.T) {
	f := newFixture(t)
	doc, err := f.service.Upload(f.ctx, "a.pdf", []byte("a"))
	require.NoError(t, err)

	doc, err = f.service.Transition(f.ctx, doc.ID, domain.StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, doc.Status)

	doc, err = f.service.Transition(f.ctx, doc.ID, domain.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, doc.Status)

	// Terminal states accept no further moves.
	_, err = f.service.Transition(f.ctx, doc.ID, domain.StatusFailed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	assert.Equal(t, []audit.Action{
		audit.ActionDocumentUploaded,
		audit.ActionDocumentStatus,
		audit.ActionDocumentStatus,
	}, f.auditActions(t))
}

func Test_Transition_NoSkipping(t *testing.T) {
	f := newFixture(t)
	doc, err := f.service.Upload(f.ctx, "a.pdf", []byte("a"))
	require.NoError(t, err)

	_, err = f.service.Transition(f.ctx, doc.ID, domain.StatusDone)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = f.service.Transition(f.ctx, doc.ID, "bogus")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func Test_Delete_CascadesAndRemovesBlob(t *testing.T) {
	f := newFixture(t)
	doc, err := f.service.Upload(f.ctx, "a.pdf", []byte("a"))
	require.NoError(t, err)
	require.NoError(t, f.service.AttachPages(f.ctx, doc.ID, []Page{{Page: 1, Text: "hello"}}))
	_, err = f.service.AttachAnalysis(f.ctx, doc.ID, AnalysisInput{Risk: json.RawMessage(`{"score":1}`)})
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(f.ctx, doc.ID))

	_, err = f.service.Get(f.ctx, doc.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = f.blobs.Load(context.Background(), doc.StorageLocator)
	assert.Error(t, err)
	assert.Contains(t, f.auditActions(t), audit.ActionDocumentDeleted)
}

func Test_AttachPages_ReplacesOnReextraction(t *testing.T) {
	f := newFixture(t)
	doc, err := f.service.Upload(f.ctx, "a.pdf", []byte("a"))
	require.NoError(t, err)

	require.NoError(t, f.service.AttachPages(f.ctx, doc.ID, []Page{
		{Page: 1, Text: "first pass"},
		{Page: 2, Text: "second page"},
	}))
	require.NoError(t, f.service.AttachPages(f.ctx, doc.ID, []Page{
		{Page: 1, Text: "better pass"},
	}))

	pages, err := f.service.ListPages(f.ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "better pass", pages[0].Text)
	assert.Equal(t, "second page", pages[1].Text)
}

func Test_AttachPages_Validation(t *testing.T) {
	f := newFixture(t)
	doc, err := f.service.Upload(f.ctx, "a.pdf", []byte("a"))
	require.NoError(t, err)

	err = f.service.AttachPages(f.ctx, doc.ID, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	err = f.service.AttachPages(f.ctx, doc.ID, []Page{{Page: 0, Text: "x"}})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func Test_AttachAnalysis(t *testing.T) {
	f := newFixture(t)
	doc, err := f.service.Upload(f.ctx, "a.pdf", []byte("a"))
	require.NoError(t, err)

	analysis, err := f.service.AttachAnalysis(f.ctx, doc.ID, AnalysisInput{
		Risk:       json.RawMessage(`{"score": 0.87}`),
		Compliance: json.RawMessage(`{"gdpr": true}`),
	})
	require.NoError(t, err)
	assert.Equal(t, doc.ID, analysis.DocumentID)
	assert.Equal(t, f.owner, analysis.OwnerID)
	assert.False(t, analysis.CreatedAt.IsZero())

	// Payloads are stored opaque.
	list, err := f.service.ListAnalyses(f.ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.JSONEq(t, `{"score": 0.87}`, string(list[0].Risk))
}

func Test_AttachAnalysis_Validation(t *testing.T) {
	f := newFixture(t)
	doc, err := f.service.Upload(f.ctx, "a.pdf", []byte("a"))
	require.NoError(t, err)

	_, err = f.service.AttachAnalysis(f.ctx, doc.ID, AnalysisInput{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = f.service.AttachAnalysis(f.ctx, doc.ID, AnalysisInput{Risk: json.RawMessage(`not json`)})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = f.service.AttachAnalysis(f.ctx, id.NewDocumentID(), AnalysisInput{Risk: json.RawMessage(`{}`)})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConstraintViolation))
}

func Test_Isolation_ForeignDocument(t *testing.T) {
	f := newFixture(t)
	doc, err := f.service.Upload(f.ctx, "a.pdf", []byte("a"))
	require.NoError(t, err)

	strangerCtx := requestcontext.WithPrincipal(context.Background(), id.NewPrincipalID())

	_, err = f.service.Get(strangerCtx, doc.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAccessDenied))

	err = f.service.Delete(strangerCtx, doc.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAccessDenied))

	// The owner's document is untouched and the denials are on the trail.
	_, err = f.service.Get(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Contains(t, f.auditActions(t), audit.ActionAccessDenied)
}

func Test_List_DoesNotLeakAcrossOwners(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Upload(f.ctx, "mine.pdf", []byte("mine"))
	require.NoError(t, err)

	other := id.NewPrincipalID()
	otherCtx := requestcontext.WithPrincipal(context.Background(), other)
	_, err = f.service.Upload(otherCtx, "theirs.pdf", []byte("theirs"))
	require.NoError(t, err)

	mine, err := f.service.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "mine.pdf", mine[0].Filename)

	theirs, err := f.service.List(otherCtx)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "theirs.pdf", theirs[0].Filename)
}
