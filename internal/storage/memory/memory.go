package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"iris/internal/domain"
	"iris/internal/storage"
	"iris/pkg/platform/sentinel"

	id "iris/pkg/domain"
)

// Store is the in-memory entity store. It mirrors the postgres semantics
// closely enough to back unit tests and local development: ownership guard
// at every method, monotonic creation timestamps, atomic cascade deletes,
// and a system-wide unique certificate digest.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	clock  func() time.Time
	lastTS time.Time

	profiles     map[id.PrincipalID]domain.Profile
	documents    map[id.DocumentID]domain.Document
	texts        map[id.DocumentID]map[int]domain.ExtractedText
	analyses     map[id.AnalysisID]domain.Analysis
	dossiers     map[id.DossierID]domain.Dossier
	certificates map[id.CertificateID]domain.Certificate
	certByDigest map[id.Digest]id.CertificateID
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects a clock for deterministic timestamps in tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		clock:        time.Now,
		profiles:     make(map[id.PrincipalID]domain.Profile),
		documents:    make(map[id.DocumentID]domain.Document),
		texts:        make(map[id.DocumentID]map[int]domain.ExtractedText),
		analyses:     make(map[id.AnalysisID]domain.Analysis),
		dossiers:     make(map[id.DossierID]domain.Dossier),
		certificates: make(map[id.CertificateID]domain.Certificate),
		certByDigest: make(map[id.Digest]id.CertificateID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.Store = (*Store)(nil)

// stamp assigns a strictly increasing creation timestamp. Callers must hold
// the write lock. Postgres gets the same property from its sequence-backed
// default; here we nudge the clock forward on collisions.
func (s *Store) stamp() time.Time {
	now := s.clock()
	if !now.After(s.lastTS) {
		now = s.lastTS.Add(time.Microsecond)
	}
	s.lastTS = now
	return now
}

// RunInTx serializes multi-entity mutations on a coarse lock. Store methods
// remain individually atomic; the transaction lock makes a mutation plus its
// audit append observable as one step, matching the postgres behaviour.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}

// ----------------------------------------------------------------------------
// Profiles
// ----------------------------------------------------------------------------

func (s *Store) SaveProfile(ctx context.Context, profile domain.Profile) error {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return err
	}
	if err := storage.CheckOwner(actor, profile.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[profile.ID]; ok {
		profile.CreatedAt = existing.CreatedAt
	} else if profile.CreatedAt.IsZero() {
		profile.CreatedAt = s.stamp()
	}
	s.profiles[profile.ID] = profile
	return nil
}

func (s *Store) FindProfile(ctx context.Context, principalID id.PrincipalID) (domain.Profile, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := storage.CheckOwner(actor, principalID); err != nil {
		return domain.Profile{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[principalID]
	if !ok {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", principalID, sentinel.ErrNotFound)
	}
	return profile, nil
}

// ----------------------------------------------------------------------------
// Documents
// ----------------------------------------------------------------------------

func (s *Store) CreateDocument(ctx context.Context, doc domain.Document) error {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return err
	}
	if err := storage.CheckOwner(actor, doc.OwnerID); err != nil {
		return err
	}
	if !doc.Status.Valid() {
		doc.Status = domain.StatusUploaded
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; ok {
		return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrConflict)
	}
	doc.CreatedAt = s.stamp()
	s.documents[doc.ID] = doc
	return nil
}

// findDocumentLocked resolves a document under the read lock, distinguishing
// absence from foreign ownership so denials can be audited.
func (s *Store) findDocumentLocked(actor id.PrincipalID, docID id.DocumentID) (domain.Document, error) {
	doc, ok := s.documents[docID]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", docID, sentinel.ErrNotFound)
	}
	if err := storage.CheckOwner(actor, doc.OwnerID); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

func (s *Store) FindDocument(ctx context.Context, docID id.DocumentID) (domain.Document, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return domain.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findDocumentLocked(actor, docID)
}

func (s *Store) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []domain.Document
	for _, doc := range s.documents {
		if doc.OwnerID == actor || actor.IsSystem() {
			docs = append(docs, doc)
		}
	}
	sortByCreation(docs, func(d domain.Document) time.Time { return d.CreatedAt })
	return docs, nil
}

func (s *Store) TransitionDocument(ctx context.Context, docID id.DocumentID, next domain.DocumentStatus) error {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.findDocumentLocked(actor, docID)
	if err != nil {
		return err
	}
	if !doc.Status.CanTransition(next) {
		return fmt.Errorf("document %s cannot move %s -> %s: %w", docID, doc.Status, next, sentinel.ErrInvalidState)
	}
	doc.Status = next
	s.documents[docID] = doc
	return nil
}

func (s *Store) DeleteDocumentCascade(ctx context.Context, docID id.DocumentID) error {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.findDocumentLocked(actor, docID); err != nil {
		return err
	}
	s.deleteDocumentLocked(docID)
	return nil
}

// deleteDocumentLocked removes the document subtree. Holding the write lock
// for the whole walk is what makes the cascade atomic: no partial state is
// observable and no orphan survives.
func (s *Store) deleteDocumentLocked(docID id.DocumentID) {
	delete(s.texts, docID)
	for analysisID, analysis := range s.analyses {
		if analysis.DocumentID == docID {
			delete(s.analyses, analysisID)
		}
	}
	for dossierID, dossier := range s.dossiers {
		if dossier.DocumentID != docID {
			continue
		}
		for certID, cert := range s.certificates {
			if cert.DossierID == dossierID {
				delete(s.certByDigest, cert.Digest)
				delete(s.certificates, certID)
			}
		}
		delete(s.dossiers, dossierID)
	}
	delete(s.documents, docID)
}

// ----------------------------------------------------------------------------
// Extracted text
// ----------------------------------------------------------------------------

func (s *Store) SavePages(ctx context.Context, docID id.DocumentID, pages []domain.ExtractedText) error {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.findDocumentLocked(actor, docID)
	if err != nil {
		return err
	}
	byPage := s.texts[docID]
	if byPage == nil {
		byPage = make(map[int]domain.ExtractedText)
		s.texts[docID] = byPage
	}
	for _, page := range pages {
		page.DocumentID = docID
		page.OwnerID = doc.OwnerID
		page.CreatedAt = s.stamp()
		byPage[page.Page] = page
	}
	return nil
}

func (s *Store) ListPages(ctx context.Context, docID id.DocumentID) ([]domain.ExtractedText, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.findDocumentLocked(actor, docID); err != nil {
		return nil, err
	}
	var pages []domain.ExtractedText
	for _, page := range s.texts[docID] {
		pages = append(pages, page)
	}
	slices.SortFunc(pages, func(a, b domain.ExtractedText) int { return a.Page - b.Page })
	return pages, nil
}

// ----------------------------------------------------------------------------
// Analyses
// ----------------------------------------------------------------------------

func (s *Store) CreateAnalysis(ctx context.Context, analysis domain.Analysis) error {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[analysis.DocumentID]
	if !ok {
		return fmt.Errorf("analysis parent document %s: %w", analysis.DocumentID, sentinel.ErrConstraint)
	}
	if err := storage.CheckOwner(actor, doc.OwnerID); err != nil {
		return err
	}
	analysis.OwnerID = doc.OwnerID
	analysis.CreatedAt = s.stamp()
	s.analyses[analysis.ID] = analysis
	return nil
}

func (s *Store) ListAnalyses(ctx context.Context, docID id.DocumentID) ([]domain.Analysis, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.findDocumentLocked(actor, docID); err != nil {
		return nil, err
	}
	var out []domain.Analysis
	for _, analysis := range s.analyses {
		if analysis.DocumentID == docID {
			out = append(out, analysis)
		}
	}
	sortByCreation(out, func(a domain.Analysis) time.Time { return a.CreatedAt })
	return out, nil
}

// ----------------------------------------------------------------------------
// Dossiers
// ----------------------------------------------------------------------------

func (s *Store) CreateDossier(ctx context.Context, dossier domain.Dossier) error {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[dossier.DocumentID]
	if !ok {
		return fmt.Errorf("dossier parent document %s: %w", dossier.DocumentID, sentinel.ErrConstraint)
	}
	if err := storage.CheckOwner(actor, doc.OwnerID); err != nil {
		return err
	}
	dossier.OwnerID = doc.OwnerID
	dossier.CreatedAt = s.stamp()
	s.dossiers[dossier.ID] = dossier
	return nil
}

func (s *Store) FindDossier(ctx context.Context, dossierID id.DossierID) (domain.Dossier, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return domain.Dossier{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	dossier, ok := s.dossiers[dossierID]
	if !ok {
		return domain.Dossier{}, fmt.Errorf("dossier %s: %w", dossierID, sentinel.ErrNotFound)
	}
	if err := storage.CheckOwner(actor, dossier.OwnerID); err != nil {
		return domain.Dossier{}, err
	}
	return dossier, nil
}

func (s *Store) ListDossiers(ctx context.Context) ([]domain.Dossier, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Dossier
	for _, dossier := range s.dossiers {
		if dossier.OwnerID == actor || actor.IsSystem() {
			out = append(out, dossier)
		}
	}
	sortByCreation(out, func(d domain.Dossier) time.Time { return d.CreatedAt })
	return out, nil
}

// ----------------------------------------------------------------------------
// Certificates
// ----------------------------------------------------------------------------

func (s *Store) CreateCertificate(ctx context.Context, cert domain.Certificate) error {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	dossier, ok := s.dossiers[cert.DossierID]
	if !ok {
		return fmt.Errorf("certificate parent dossier %s: %w", cert.DossierID, sentinel.ErrConstraint)
	}
	if err := storage.CheckOwner(actor, dossier.OwnerID); err != nil {
		return err
	}
	if existing, ok := s.certByDigest[cert.Digest]; ok {
		return fmt.Errorf("digest %s already certified by %s: %w", cert.Digest, existing, sentinel.ErrConflict)
	}
	cert.OwnerID = dossier.OwnerID
	cert.CreatedAt = s.stamp()
	s.certificates[cert.ID] = cert
	s.certByDigest[cert.Digest] = cert.ID
	return nil
}

func (s *Store) FindCertificateByDossier(ctx context.Context, dossierID id.DossierID) (domain.Certificate, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return domain.Certificate{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cert := range s.certificates {
		if cert.DossierID != dossierID {
			continue
		}
		if err := storage.CheckOwner(actor, cert.OwnerID); err != nil {
			return domain.Certificate{}, err
		}
		return cert, nil
	}
	return domain.Certificate{}, fmt.Errorf("certificate for dossier %s: %w", dossierID, sentinel.ErrNotFound)
}

func (s *Store) FindCertificateByDigest(ctx context.Context, digest id.Digest) (domain.Certificate, error) {
	if err := storage.RequireSystem(ctx); err != nil {
		return domain.Certificate{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	certID, ok := s.certByDigest[digest]
	if !ok {
		return domain.Certificate{}, fmt.Errorf("certificate for digest %s: %w", digest, sentinel.ErrNotFound)
	}
	return s.certificates[certID], nil
}

// ----------------------------------------------------------------------------
// Retention
// ----------------------------------------------------------------------------

func (s *Store) PurgePrincipal(ctx context.Context, principalID id.PrincipalID) error {
	if err := storage.RequireSystem(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for docID, doc := range s.documents {
		if doc.OwnerID == principalID {
			s.deleteDocumentLocked(docID)
		}
	}
	delete(s.profiles, principalID)
	return nil
}

func sortByCreation[T any](items []T, createdAt func(T) time.Time) {
	slices.SortFunc(items, func(a, b T) int {
		return createdAt(a).Compare(createdAt(b))
	})
}
