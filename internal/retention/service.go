// Package retention owns the principal profile and the logout-triggered
// purge: when a principal's remember-me flag is unset, logout removes the
// principal's entire subtree, audit trail included.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"iris/internal/audit"
	"iris/internal/domain"
	"iris/internal/storage"
	"iris/pkg/platform/sentinel"
	"iris/pkg/requestcontext"

	dErrors "iris/pkg/domain-errors"
	id "iris/pkg/domain"
)

// Service manages profiles and executes the retention policy.
type Service struct {
	store   storage.Store
	audits  audit.Store
	auditor *audit.Writer
	logger  *slog.Logger
}

func NewService(store storage.Store, audits audit.Store, auditor *audit.Writer, logger *slog.Logger) *Service {
	return &Service{store: store, audits: audits, auditor: auditor, logger: logger}
}

// Profile returns the caller's profile, creating an empty one on first use.
func (s *Service) Profile(ctx context.Context) (domain.Profile, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return domain.Profile{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "authentication required")
	}

	profile, err := s.store.FindProfile(ctx, actor)
	if errors.Is(err, sentinel.ErrNotFound) {
		profile = domain.Profile{ID: actor, RememberMe: true}
		if saveErr := s.store.SaveProfile(ctx, profile); saveErr != nil {
			return domain.Profile{}, s.translate(ctx, saveErr, actor)
		}
		return s.store.FindProfile(ctx, actor)
	}
	if err != nil {
		return domain.Profile{}, s.translate(ctx, err, actor)
	}
	return profile, nil
}

// Update stores the mutable profile fields.
func (s *Service) Update(ctx context.Context, name, email string, rememberMe bool) (domain.Profile, error) {
	profile, err := s.Profile(ctx)
	if err != nil {
		return domain.Profile{}, err
	}

	profile.Name = name
	profile.Email = email
	profile.RememberMe = rememberMe

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SaveProfile(ctx, profile); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.ActionProfileUpdated, "principal", profile.ID.String(), map[string]any{
			"remember_me": rememberMe,
		})
	})
	if err != nil {
		return domain.Profile{}, s.translate(ctx, err, profile.ID)
	}
	return s.store.FindProfile(ctx, profile.ID)
}

// IssueToken rotates the caller's CLI token. The plaintext is returned once;
// only its bcrypt hash is stored.
func (s *Service) IssueToken(ctx context.Context) (string, error) {
	profile, err := s.Profile(ctx)
	if err != nil {
		return "", err
	}

	token := uuid.NewString() + uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "hash token")
	}
	profile.APITokenHash = string(hash)

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SaveProfile(ctx, profile); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.ActionProfileUpdated, "principal", profile.ID.String(), map[string]any{
			"token_rotated": true,
		})
	})
	if err != nil {
		return "", s.translate(ctx, err, profile.ID)
	}
	return token, nil
}

// VerifyToken checks a CLI token against the stored hash. It runs under the
// privileged identity because it executes before a principal is established.
func (s *Service) VerifyToken(ctx context.Context, principalID id.PrincipalID, token string) error {
	profile, err := s.store.FindProfile(requestcontext.WithSystemActor(ctx), principalID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "unknown principal")
	}
	if profile.APITokenHash == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "no token issued")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.APITokenHash), []byte(token)); err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return nil
}

// Logout applies the retention policy. With remember-me set it is a no-op
// here (session teardown is the auth collaborator's concern); without it the
// principal's entire subtree and audit trail are removed. The purge itself is
// recorded as a system action, so that one record survives the sweep.
func (s *Service) Logout(ctx context.Context) error {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "authentication required")
	}

	profile, err := s.store.FindProfile(ctx, actor)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return s.translate(ctx, err, actor)
	}
	if profile.RememberMe {
		return nil
	}
	return s.Purge(ctx, actor)
}

// Purge removes everything the principal owns. Exposed separately so an
// operator can run retention directly.
func (s *Service) Purge(ctx context.Context, principalID id.PrincipalID) error {
	sysCtx := requestcontext.WithSystemActor(ctx)
	err := s.store.RunInTx(sysCtx, func(ctx context.Context) error {
		if err := s.auditor.Record(ctx, audit.ActionPrincipalPurged, "principal", principalID.String(), map[string]any{
			"reason": "retention",
		}); err != nil {
			return err
		}
		if err := s.audits.PurgeActor(ctx, principalID); err != nil {
			return err
		}
		return s.store.PurgePrincipal(ctx, principalID)
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "purge principal")
	}
	s.logger.Info("principal purged by retention policy", "principal_id", principalID.String())
	return nil
}

func (s *Service) translate(ctx context.Context, err error, principalID id.PrincipalID) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "profile not found")
	case errors.Is(err, sentinel.ErrDenied):
		s.auditor.Denied(ctx, "principal", principalID.String(), "owner mismatch")
		return dErrors.Wrap(err, dErrors.CodeAccessDenied, "access denied")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("profile %s", principalID))
	}
}
