// Package anchor implements the hash-and-anchor protocol: it turns a
// dossier's content digest into an externally verifiable ledger record and a
// local certificate, with an at-most-once guarantee per digest value.
package anchor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"iris/internal/audit"
	"iris/internal/domain"
	"iris/internal/ledger"
	"iris/internal/storage"
	"iris/pkg/platform/sentinel"
	"iris/pkg/requestcontext"

	dErrors "iris/pkg/domain-errors"
	id "iris/pkg/domain"
)

// BundleLoader fetches the immutable dossier bundle bytes by locator.
type BundleLoader interface {
	Load(ctx context.Context, locator string) ([]byte, error)
}

// Outcome is the result of an anchor attempt. Reused marks the idempotent
// path: the digest was already anchored and the caller adopted the winning
// record instead of producing a second ledger write.
type Outcome struct {
	Certificate domain.Certificate
	Reused      bool
}

// Verification is the ledger-direct answer for a reference or digest. It is
// served from the ledger, never from the local database, so certificates stay
// auditable even if the application's own store is compromised.
type Verification struct {
	Exists        bool
	Digest        id.Digest
	Ref           string
	Submitter     string
	Timestamp     time.Time
	Confirmations int
	ExplorerURL   string
}

// Service drives the per-digest state machine. Concurrent anchors of the
// same digest collapse in-process through singleflight; cross-process races
// are settled by the claim store and, ultimately, by the ledger's own
// single-write-per-key contract.
type Service struct {
	store   storage.Store
	ledger  ledger.Ledger
	states  StateStore
	bundles BundleLoader
	auditor *audit.Writer
	metrics *Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	group   singleflight.Group

	confirmDepth int
	confirmWait  time.Duration
	explorerBase string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithConfirmationDepth sets how many confirmations make a submission final.
func WithConfirmationDepth(depth int) ServiceOption {
	return func(s *Service) {
		if depth > 0 {
			s.confirmDepth = depth
		}
	}
}

// WithConfirmationWait bounds the confirmation poll.
func WithConfirmationWait(wait time.Duration) ServiceOption {
	return func(s *Service) {
		if wait > 0 {
			s.confirmWait = wait
		}
	}
}

// WithExplorerBase sets the public explorer URL prefix for references.
func WithExplorerBase(base string) ServiceOption {
	return func(s *Service) { s.explorerBase = base }
}

// WithMetrics wires prometheus metrics.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func NewService(
	store storage.Store,
	l ledger.Ledger,
	states StateStore,
	bundles BundleLoader,
	auditor *audit.Writer,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		store:        store,
		ledger:       l,
		states:       states,
		bundles:      bundles,
		auditor:      auditor,
		logger:       logger,
		tracer:       otel.Tracer("iris/anchor"),
		confirmDepth: 1,
		confirmWait:  2 * time.Minute,
		explorerBase: "https://sepolia.etherscan.io",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Anchor runs the full protocol for the dossier: recompute and check the
// digest, guard against an existing anchor, submit, await confirmation, and
// persist the certificate atomically with its audit record.
func (s *Service) Anchor(ctx context.Context, dossierID id.DossierID) (*Outcome, error) {
	dossier, err := s.store.FindDossier(ctx, dossierID)
	if err != nil {
		return nil, s.translateAccess(ctx, err, "dossier", dossierID.String())
	}

	// Collapse same-digest callers in this process; all of them receive the
	// winner's outcome.
	v, err, _ := s.group.Do(dossier.Digest.String(), func() (any, error) {
		return s.anchor(ctx, dossier)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Outcome), nil
}

func (s *Service) anchor(ctx context.Context, dossier domain.Dossier) (*Outcome, error) {
	digest := dossier.Digest
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "anchor.submit", trace.WithAttributes(
		attribute.String("dossier_id", dossier.ID.String()),
		attribute.String("digest", digest.String()),
	))
	defer span.End()

	if err := s.checkDigest(ctx, dossier); err != nil {
		s.metrics.IncrementOutcome("digest_mismatch")
		return nil, err
	}

	// Fast local path: a certificate for this digest already exists.
	if outcome, err := s.adoptLocal(ctx, dossier); err == nil {
		s.metrics.IncrementOutcome("already_anchored")
		return outcome, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "lookup certificate")
	}

	claimed, err := s.states.Claim(ctx, digest)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "claim digest")
	}
	if !claimed {
		s.metrics.IncrementOutcome("busy")
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"digest %s is being anchored by another submitter", digest)
	}

	s.audit(ctx, audit.ActionAnchorSubmitted, "dossier", dossier.ID.String(), map[string]any{
		"digest": digest.String(),
	})

	outcome, err := s.submitAndConfirm(ctx, dossier)
	if err != nil {
		if stateErr := s.states.MarkFailed(ctx, digest); stateErr != nil {
			s.logger.Error("failed to mark anchor state",
				"digest", digest.String(), "error", stateErr)
		}
		return nil, err
	}

	if err := s.states.Release(ctx, digest); err != nil {
		s.logger.Warn("failed to release anchor claim",
			"digest", digest.String(), "error", err)
	}
	s.metrics.ObserveAnchorLatency(time.Since(start))
	if outcome.Reused {
		s.metrics.IncrementOutcome("already_anchored")
	} else {
		s.metrics.IncrementOutcome("anchored")
	}
	return outcome, nil
}

// checkDigest recomputes the digest over the bundle bytes. The stored digest
// is the dossier's identity; any divergence means the bundle was tampered
// with or mislinked and the submission must not happen.
func (s *Service) checkDigest(ctx context.Context, dossier domain.Dossier) error {
	bundle, err := s.bundles.Load(ctx, dossier.BundleLocator)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load dossier bundle")
	}
	recomputed := id.ComputeDigest(bundle)
	if recomputed != dossier.Digest {
		s.audit(ctx, audit.ActionAnchorFailed, "dossier", dossier.ID.String(), map[string]any{
			"digest":     dossier.Digest.String(),
			"recomputed": recomputed.String(),
			"error":      string(dErrors.CodeDigestMismatch),
		})
		return dErrors.Newf(dErrors.CodeDigestMismatch,
			"bundle digest %s does not match stored digest %s", recomputed, dossier.Digest)
	}
	return nil
}

func (s *Service) submitAndConfirm(ctx context.Context, dossier domain.Dossier) (*Outcome, error) {
	digest := dossier.Digest

	// Query-first idempotency guard: never submit a second transaction for a
	// digest the ledger already holds.
	record, err := s.ledger.Query(ctx, digest)
	switch {
	case err == nil:
		return s.adoptRemote(ctx, dossier, record)
	case errors.Is(err, sentinel.ErrNotFound):
		// Proceed to submit.
	case errors.Is(err, sentinel.ErrUnavailable):
		return nil, s.ledgerDown(ctx, dossier, err)
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query ledger")
	}

	ref, err := s.ledger.Submit(ctx, digest)
	switch {
	case err == nil:
		// Submitted; fall through to the confirmation wait.
	case errors.Is(err, sentinel.ErrDuplicateKey):
		// Lost the cross-process race. The ledger's rejection is not fatal:
		// adopt the winning record.
		winner, qErr := s.ledger.Query(ctx, digest)
		if qErr != nil {
			return nil, s.ledgerDown(ctx, dossier, qErr)
		}
		return s.adoptRemote(ctx, dossier, winner)
	case errors.Is(err, ledger.ErrZeroDigest):
		s.audit(ctx, audit.ActionAnchorFailed, "dossier", dossier.ID.String(), map[string]any{
			"digest": digest.String(),
			"error":  string(dErrors.CodeInvalidDigest),
		})
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidDigest, "ledger rejected digest")
	case errors.Is(err, sentinel.ErrUnavailable):
		return nil, s.ledgerDown(ctx, dossier, err)
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "submit to ledger")
	}

	confirmStart := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, s.confirmWait)
	defer cancel()
	record, err = ledger.AwaitConfirmed(waitCtx, s.ledger, ref, s.confirmDepth)
	s.metrics.ObserveConfirmLatency(time.Since(confirmStart))
	if err != nil {
		// The transaction may still confirm later; cancellation never
		// retracts it. Recovery is Reconcile, which re-queries the ledger.
		s.audit(ctx, audit.ActionAnchorFailed, "dossier", dossier.ID.String(), map[string]any{
			"digest": digest.String(),
			"ref":    ref,
			"error":  string(dErrors.CodeTimeout),
		})
		s.metrics.IncrementOutcome("timeout")
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout,
			"submission not confirmed in time; reconcile to recover")
	}

	return s.persist(ctx, dossier, record, false)
}

func (s *Service) ledgerDown(ctx context.Context, dossier domain.Dossier, err error) error {
	s.audit(ctx, audit.ActionAnchorFailed, "dossier", dossier.ID.String(), map[string]any{
		"digest": dossier.Digest.String(),
		"error":  string(dErrors.CodeLedgerUnavailable),
	})
	s.metrics.IncrementOutcome("ledger_unavailable")
	return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger unreachable")
}

// adoptLocal returns the existing certificate for the dossier's digest.
func (s *Service) adoptLocal(ctx context.Context, dossier domain.Dossier) (*Outcome, error) {
	cert, err := s.store.FindCertificateByDigest(
		requestcontext.WithSystemActor(ctx), dossier.Digest)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, audit.ActionAnchorDuplicate, "dossier", dossier.ID.String(), map[string]any{
		"digest": dossier.Digest.String(),
		"ref":    cert.Ref,
	})
	return &Outcome{Certificate: cert, Reused: true}, nil
}

// adoptRemote mirrors a confirmed ledger record the local store does not yet
// have a certificate for.
func (s *Service) adoptRemote(ctx context.Context, dossier domain.Dossier, record ledger.Record) (*Outcome, error) {
	outcome, err := s.persist(ctx, dossier, record, true)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// persist creates the certificate and its audit records in one transaction.
// A concurrent insert of the same digest surfaces as a conflict; the loser
// adopts the stored winner instead of failing.
func (s *Service) persist(ctx context.Context, dossier domain.Dossier, record ledger.Record, reused bool) (*Outcome, error) {
	cert := domain.Certificate{
		ID:          id.NewCertificateID(),
		DossierID:   dossier.ID,
		OwnerID:     dossier.OwnerID,
		Digest:      record.Digest,
		Ref:         record.Ref,
		ExplorerURL: s.explorerURL(record.Ref),
		CreatedAt:   requestcontext.Now(ctx),
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateCertificate(ctx, cert); err != nil {
			return err
		}
		action := audit.ActionAnchorConfirmed
		if reused {
			action = audit.ActionAnchorDuplicate
		}
		if err := s.auditor.Record(ctx, action, "dossier", dossier.ID.String(), map[string]any{
			"digest": record.Digest.String(),
			"ref":    record.Ref,
		}); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.ActionCertificateIssued,
			"certificate", cert.ID.String(), map[string]any{
				"dossier_id": dossier.ID.String(),
				"digest":     record.Digest.String(),
				"ref":        record.Ref,
			})
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			existing, findErr := s.store.FindCertificateByDigest(
				requestcontext.WithSystemActor(ctx), record.Digest)
			if findErr != nil {
				return nil, dErrors.Wrap(findErr, dErrors.CodeInternal, "adopt winning certificate")
			}
			return &Outcome{Certificate: existing, Reused: true}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist certificate")
	}
	return &Outcome{Certificate: cert, Reused: reused}, nil
}

// Reconcile recovers a dossier stuck in Anchoring or Failed after a crash or
// an abandoned confirmation wait. The ledger is the source of truth: if it
// holds a record for the digest, the local certificate is created; if not,
// the digest is back to Unanchored and a fresh Anchor call is the retry path.
func (s *Service) Reconcile(ctx context.Context, dossierID id.DossierID) (*Outcome, error) {
	dossier, err := s.store.FindDossier(ctx, dossierID)
	if err != nil {
		return nil, s.translateAccess(ctx, err, "dossier", dossierID.String())
	}

	if outcome, err := s.adoptLocal(ctx, dossier); err == nil {
		return outcome, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "lookup certificate")
	}

	record, err := s.ledger.Query(ctx, dossier.Digest)
	switch {
	case err == nil:
		if err := s.states.Release(ctx, dossier.Digest); err != nil {
			s.logger.Warn("failed to release anchor claim",
				"digest", dossier.Digest.String(), "error", err)
		}
		return s.adoptRemote(ctx, dossier, record)
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Newf(dErrors.CodeNotFound,
			"digest %s is not anchored", dossier.Digest)
	case errors.Is(err, sentinel.ErrUnavailable):
		return nil, dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger unreachable")
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query ledger")
	}
}

// Verify answers directly from the ledger for a reference or a digest.
// Unknown keys are a negative answer, not an error; the endpoint is public.
func (s *Service) Verify(ctx context.Context, refOrDigest string) (Verification, error) {
	ctx, span := s.tracer.Start(ctx, "anchor.verify",
		trace.WithAttributes(attribute.String("key", refOrDigest)))
	defer span.End()

	var (
		record ledger.Record
		err    error
	)
	if digest, parseErr := id.ParseDigest(refOrDigest); parseErr == nil && !digest.IsZero() {
		record, err = s.ledger.Query(ctx, digest)
	} else {
		record, err = s.ledger.QueryByRef(ctx, refOrDigest)
	}

	switch {
	case err == nil:
		s.metrics.IncrementVerify("found")
		return Verification{
			Exists:        true,
			Digest:        record.Digest,
			Ref:           record.Ref,
			Submitter:     record.Submitter,
			Timestamp:     record.Timestamp,
			Confirmations: record.Confirmations,
			ExplorerURL:   s.explorerURL(record.Ref),
		}, nil
	case errors.Is(err, sentinel.ErrNotFound):
		s.metrics.IncrementVerify("not_found")
		return Verification{Exists: false}, nil
	case errors.Is(err, sentinel.ErrUnavailable):
		s.metrics.IncrementVerify("unavailable")
		return Verification{}, dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger unreachable")
	default:
		return Verification{}, dErrors.Wrap(err, dErrors.CodeInternal, "verify")
	}
}

// State reports the protocol state for a digest: the certificate row is the
// terminal marker, then the transient claim store.
func (s *Service) State(ctx context.Context, digest id.Digest) (State, error) {
	_, err := s.store.FindCertificateByDigest(requestcontext.WithSystemActor(ctx), digest)
	switch {
	case err == nil:
		return StateAnchored, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return s.states.State(ctx, digest)
	default:
		return StateUnanchored, dErrors.Wrap(err, dErrors.CodeInternal, "lookup certificate")
	}
}

func (s *Service) explorerURL(ref string) string {
	return s.explorerBase + "/tx/" + ref
}

func (s *Service) audit(ctx context.Context, action audit.Action, targetType, targetID string, metadata map[string]any) {
	if err := s.auditor.Record(ctx, action, targetType, targetID, metadata); err != nil {
		s.logger.Error("failed to audit anchor action",
			"action", string(action), "target_id", targetID, "error", err)
	}
}

func (s *Service) translateAccess(ctx context.Context, err error, targetType, targetID string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("%s not found", targetType))
	case errors.Is(err, sentinel.ErrDenied):
		s.auditor.Denied(ctx, targetType, targetID, "owner mismatch")
		return dErrors.Wrap(err, dErrors.CodeAccessDenied, "access denied")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("load %s", targetType))
	}
}
