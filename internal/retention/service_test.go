package retention

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/internal/audit"
	"iris/internal/domain"
	"iris/internal/storage/memory"
	"iris/pkg/requestcontext"

	dErrors "iris/pkg/domain-errors"
	id "iris/pkg/domain"
)

type fixture struct {
	service *Service
	store   *memory.Store
	audits  *audit.InMemoryStore
	owner   id.PrincipalID
	ctx     context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	audits := audit.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	owner := id.NewPrincipalID()
	return &fixture{
		service: NewService(store, audits, audit.NewWriter(audits, logger), logger),
		store:   store,
		audits:  audits,
		owner:   owner,
		ctx:     requestcontext.WithPrincipal(context.Background(), owner),
	}
}

func (f *fixture) seedDocument(t *testing.T) domain.Document {
	t.Helper()
	doc := domain.Document{
		ID:       id.NewDocumentID(),
		OwnerID:  f.owner,
		Filename: "mine.pdf",
		Digest:   id.ComputeDigest([]byte("mine")),
	}
	require.NoError(t, f.store.CreateDocument(f.ctx, doc))
	return doc
}

func Test_Profile_CreatedOnFirstUse(t *testing.T) {
	f := newFixture(t)

	profile, err := f.service.Profile(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, f.owner, profile.ID)
	assert.True(t, profile.RememberMe)
}

func Test_Update(t *testing.T) {
	f := newFixture(t)

	profile, err := f.service.Update(f.ctx, "Ada", "ada@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.Name)
	assert.False(t, profile.RememberMe)

	reloaded, err := f.service.Profile(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", reloaded.Email)
}

func Test_IssueAndVerifyToken(t *testing.T) {
	f := newFixture(t)

	token, err := f.service.IssueToken(f.ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Only the hash is stored.
	profile, err := f.service.Profile(f.ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, profile.APITokenHash)
	assert.NotContains(t, profile.APITokenHash, token)

	require.NoError(t, f.service.VerifyToken(context.Background(), f.owner, token))

	err = f.service.VerifyToken(context.Background(), f.owner, "wrong-token")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	err = f.service.VerifyToken(context.Background(), id.NewPrincipalID(), token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Logout_RememberMeKeepsData(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)
	_, err := f.service.Update(f.ctx, "Ada", "", true)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(f.ctx))

	_, err = f.store.FindDocument(f.ctx, doc.ID)
	require.NoError(t, err)
}

func Test_Logout_PurgesWhenRememberMeUnset(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)
	_, err := f.service.Update(f.ctx, "Ada", "", false)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(f.ctx))

	// The subtree is gone.
	_, err = f.store.FindDocument(f.ctx, doc.ID)
	require.Error(t, err)
	_, err = f.store.FindProfile(f.ctx, f.owner)
	require.Error(t, err)

	// The principal's own audit trail is swept; the purge record survives as
	// a system action with no actor.
	records, err := f.audits.ListAll(requestcontext.WithSystemActor(context.Background()))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionPrincipalPurged, records[0].Action)
	assert.Nil(t, records[0].ActorID)
	assert.Equal(t, f.owner.String(), records[0].TargetID)
}

func Test_Purge_DoesNotTouchOtherPrincipals(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)

	other := id.NewPrincipalID()
	otherCtx := requestcontext.WithPrincipal(context.Background(), other)
	otherDoc := domain.Document{
		ID:       id.NewDocumentID(),
		OwnerID:  other,
		Filename: "theirs.pdf",
		Digest:   id.ComputeDigest([]byte("theirs")),
	}
	require.NoError(t, f.store.CreateDocument(otherCtx, otherDoc))

	require.NoError(t, f.service.Purge(context.Background(), f.owner))

	_, err := f.store.FindDocument(f.ctx, doc.ID)
	require.Error(t, err)
	_, err = f.store.FindDocument(otherCtx, otherDoc.ID)
	require.NoError(t, err)
}
