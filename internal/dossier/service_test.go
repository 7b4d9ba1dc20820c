package dossier

import (
	"context"
	"io"
	"log/slog"
	"strings"
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
	owner   id.PrincipalID
	ctx     context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	writer := audit.NewWriter(audit.NewInMemoryStore(), logger)
	blobs := blob.NewInMemory()
	owner := id.NewPrincipalID()

	return &fixture{
		service: NewService(store, blobs, writer, logger),
		store:   store,
		blobs:   blobs,
		owner:   owner,
		ctx:     requestcontext.WithPrincipal(context.Background(), owner),
	}
}

func (f *fixture) seedDocument(t *testing.T) domain.Document {
	t.Helper()
	doc := domain.Document{
		ID:       id.NewDocumentID(),
		OwnerID:  f.owner,
		Filename: "report.pdf",
		Digest:   id.ComputeDigest([]byte("doc")),
		Status:   domain.StatusDone,
	}
	require.NoError(t, f.store.CreateDocument(f.ctx, doc))
	return doc
}

func Test_Generate_WithPrecomputedDigest(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)
	bundle := []byte(`{"analysis":"bundle"}`)
	digest := id.ComputeDigest(bundle)

	dossier, err := f.service.Generate(f.ctx, doc.ID, bundle, digest.String())
	require.NoError(t, err)
	assert.Equal(t, doc.ID, dossier.DocumentID)
	assert.Equal(t, f.owner, dossier.OwnerID)
	assert.Equal(t, digest, dossier.Digest)
	assert.False(t, dossier.CreatedAt.IsZero())

	stored, err := f.blobs.Load(context.Background(), dossier.BundleLocator)
	require.NoError(t, err)
	assert.Equal(t, bundle, stored)
}

func Test_Generate_ComputesDigestWhenAbsent(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)
	bundle := []byte("render output")

	dossier, err := f.service.Generate(f.ctx, doc.ID, bundle, "")
	require.NoError(t, err)
	assert.Equal(t, id.ComputeDigest(bundle), dossier.Digest)
}

func Test_Generate_PadsShortDigest(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)

	// A short hex value is left-zero-padded to the full word width. The
	// collaborator's digest is trusted at creation time.
	dossier, err := f.service.Generate(f.ctx, doc.ID, []byte("bundle"), "abcd")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("0", 60)+"abcd", dossier.Digest.String())
}

func Test_Generate_RejectsBadDigests(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)

	_, err := f.service.Generate(f.ctx, doc.ID, []byte("bundle"), strings.Repeat("a", 65))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidDigest))

	_, err = f.service.Generate(f.ctx, doc.ID, []byte("bundle"), "zz")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidDigest))

	_, err = f.service.Generate(f.ctx, doc.ID, []byte("bundle"), strings.Repeat("0", 64))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidDigest))

	_, err = f.service.Generate(f.ctx, doc.ID, nil, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func Test_Generate_UnknownDocument(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Generate(f.ctx, id.NewDocumentID(), []byte("bundle"), "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func Test_Generate_ForeignDocumentDenied(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)

	strangerCtx := requestcontext.WithPrincipal(context.Background(), id.NewPrincipalID())
	_, err := f.service.Generate(strangerCtx, doc.ID, []byte("bundle"), "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAccessDenied))
}

func Test_List_OrderedByCreation(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)

	first, err := f.service.Generate(f.ctx, doc.ID, []byte("bundle one"), "")
	require.NoError(t, err)
	second, err := f.service.Generate(f.ctx, doc.ID, []byte("bundle two"), "")
	require.NoError(t, err)

	list, err := f.service.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.True(t, list[0].CreatedAt.Before(list[1].CreatedAt))
}

func Test_Certificate_NotFoundBeforeAnchoring(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)
	dossier, err := f.service.Generate(f.ctx, doc.ID, []byte("bundle"), "")
	require.NoError(t, err)

	_, err = f.service.Certificate(f.ctx, dossier.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
