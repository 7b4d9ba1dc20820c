package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"iris/internal/domain"
	"iris/internal/storage"
	"iris/pkg/platform/sentinel"
	txcontext "iris/pkg/platform/tx"

	id "iris/pkg/domain"
)

//go:embed schema.sql
var schema string

// Store is the postgres-backed entity store. Cascades ride foreign keys with
// ON DELETE CASCADE inside a single transaction; the certificate digest is
// guarded by a unique index so two certificates for one digest cannot commit
// under any interleaving.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open connects via the pgx stdlib driver and applies the schema.
func Open(ctx context.Context, url string) (*Store, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", sentinel.ErrUnavailable)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing connection pool (used by integration tests).
func New(db *sql.DB) *Store { return &Store{db: db} }

// ApplySchema creates the tables on an existing pool.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx opens a transaction and threads it through the context so every
// store call inside fn, including the audit append, joins it.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx) // already inside a transaction
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, sqlTx)); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// translate maps driver errors onto sentinels.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, sentinel.ErrConflict)
		case "23503":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, sentinel.ErrConstraint)
		}
	}
	return err
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
	query := `
		INSERT INTO profiles (id, name, email, remember_me, api_token_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			remember_me = EXCLUDED.remember_me,
			api_token_hash = EXCLUDED.api_token_hash
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		profile.ID.String(), profile.Name, profile.Email, profile.RememberMe,
		profile.APITokenHash); err != nil {
		return fmt.Errorf("save profile: %w", translate(err))
	}
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
	var profile domain.Profile
	var rawID string
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT id, name, email, remember_me, api_token_hash, created_at FROM profiles WHERE id = $1`,
		principalID.String())
	if err := row.Scan(&rawID, &profile.Name, &profile.Email, &profile.RememberMe,
		&profile.APITokenHash, &profile.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Profile{}, fmt.Errorf("profile %s: %w", principalID, sentinel.ErrNotFound)
		}
		return domain.Profile{}, fmt.Errorf("find profile: %w", err)
	}
	profile.ID = principalID
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
	query := `
		INSERT INTO documents (id, owner_id, filename, storage_locator, digest, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		doc.ID.String(), doc.OwnerID.String(), doc.Filename, doc.StorageLocator,
		doc.Digest.String(), string(doc.Status)); err != nil {
		return fmt.Errorf("create document: %w", translate(err))
	}
	return nil
}

// fetchDocument loads a row regardless of owner; callers apply the guard so
// a foreign-owner read surfaces as a denial, not a silent miss.
func (s *Store) fetchDocument(ctx context.Context, docID id.DocumentID) (domain.Document, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, owner_id, filename, storage_locator, digest, status, created_at
		FROM documents WHERE id = $1
	`, docID.String())
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, fmt.Errorf("document %s: %w", docID, sentinel.ErrNotFound)
		}
		return domain.Document{}, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

func (s *Store) FindDocument(ctx context.Context, docID id.DocumentID) (domain.Document, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return domain.Document{}, err
	}
	doc, err := s.fetchDocument(ctx, docID)
	if err != nil {
		return domain.Document{}, err
	}
	if err := storage.CheckOwner(actor, doc.OwnerID); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT id, owner_id, filename, storage_locator, digest, status, created_at
		FROM documents WHERE owner_id = $1 ORDER BY created_at, id
	`
	args := []any{actor.String()}
	if actor.IsSystem() {
		query = `
			SELECT id, owner_id, filename, storage_locator, digest, status, created_at
			FROM documents ORDER BY created_at, id
		`
		args = nil
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *Store) TransitionDocument(ctx context.Context, docID id.DocumentID, next domain.DocumentStatus) error {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return err
	}
	doc, err := s.fetchDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := storage.CheckOwner(actor, doc.OwnerID); err != nil {
		return err
	}
	if !doc.Status.CanTransition(next) {
		return fmt.Errorf("document %s cannot move %s -> %s: %w", docID, doc.Status, next, sentinel.ErrInvalidState)
	}
	// Guard against a concurrent transition: the update only lands if the
	// status is still what we validated against.
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE documents SET status = $1 WHERE id = $2 AND status = $3`,
		string(next), docID.String(), string(doc.Status))
	if err != nil {
		return fmt.Errorf("transition document: %w", translate(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s status changed concurrently: %w", docID, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *Store) DeleteDocumentCascade(ctx context.Context, docID id.DocumentID) error {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return err
	}
	doc, err := s.fetchDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := storage.CheckOwner(actor, doc.OwnerID); err != nil {
		return err
	}
	// ON DELETE CASCADE removes texts, analyses, dossiers and certificates
	// in the same statement; no partial cascade is observable.
	if _, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM documents WHERE id = $1`, docID.String()); err != nil {
		return fmt.Errorf("delete document: %w", translate(err))
	}
	return nil
}

// ----------------------------------------------------------------------------
// Extracted text
// ----------------------------------------------------------------------------

func (s *Store) SavePages(ctx context.Context, docID id.DocumentID, pages []domain.ExtractedText) error {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return err
	}
	doc, err := s.fetchDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := storage.CheckOwner(actor, doc.OwnerID); err != nil {
		return err
	}
	if len(pages) == 0 {
		return nil
	}

	// Batch insert via unnest for O(1) round trips instead of O(n).
	pageNums := make([]int64, 0, len(pages))
	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		pageNums = append(pageNums, int64(page.Page))
		texts = append(texts, page.Text)
	}
	query := `
		INSERT INTO extracted_texts (document_id, owner_id, page, text)
		SELECT $1, $2, unnest($3::int[]), unnest($4::text[])
		ON CONFLICT (document_id, page) DO UPDATE SET text = EXCLUDED.text
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		docID.String(), doc.OwnerID.String(), pq.Array(pageNums), pq.Array(texts)); err != nil {
		return fmt.Errorf("save pages: %w", translate(err))
	}
	return nil
}

func (s *Store) ListPages(ctx context.Context, docID id.DocumentID) ([]domain.ExtractedText, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := s.fetchDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := storage.CheckOwner(actor, doc.OwnerID); err != nil {
		return nil, err
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT document_id, owner_id, page, text, created_at
		FROM extracted_texts WHERE document_id = $1 ORDER BY page
	`, docID.String())
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.ExtractedText
	for rows.Next() {
		var page domain.ExtractedText
		var rawDoc, rawOwner string
		if err := rows.Scan(&rawDoc, &rawOwner, &page.Page, &page.Text, &page.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		if page.DocumentID, err = id.ParseDocumentID(rawDoc); err != nil {
			return nil, err
		}
		if page.OwnerID, err = id.ParsePrincipalID(rawOwner); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
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
	doc, err := s.fetchDocument(ctx, analysis.DocumentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("analysis parent document %s: %w", analysis.DocumentID, sentinel.ErrConstraint)
		}
		return err
	}
	if err := storage.CheckOwner(actor, doc.OwnerID); err != nil {
		return err
	}
	query := `
		INSERT INTO analyses (id, document_id, owner_id, risk, compliance, crossverify)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		analysis.ID.String(), analysis.DocumentID.String(), doc.OwnerID.String(),
		nullableJSON(analysis.Risk), nullableJSON(analysis.Compliance), nullableJSON(analysis.CrossVerify)); err != nil {
		return fmt.Errorf("create analysis: %w", translate(err))
	}
	return nil
}

func (s *Store) ListAnalyses(ctx context.Context, docID id.DocumentID) ([]domain.Analysis, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := s.fetchDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := storage.CheckOwner(actor, doc.OwnerID); err != nil {
		return nil, err
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, document_id, owner_id, risk, compliance, crossverify, created_at
		FROM analyses WHERE document_id = $1 ORDER BY created_at, id
	`, docID.String())
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var out []domain.Analysis
	for rows.Next() {
		var analysis domain.Analysis
		var rawID, rawDoc, rawOwner string
		var risk, compliance, crossverify []byte
		if err := rows.Scan(&rawID, &rawDoc, &rawOwner, &risk, &compliance, &crossverify, &analysis.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		if analysis.ID, err = id.ParseAnalysisID(rawID); err != nil {
			return nil, err
		}
		if analysis.DocumentID, err = id.ParseDocumentID(rawDoc); err != nil {
			return nil, err
		}
		if analysis.OwnerID, err = id.ParsePrincipalID(rawOwner); err != nil {
			return nil, err
		}
		analysis.Risk = risk
		analysis.Compliance = compliance
		analysis.CrossVerify = crossverify
		out = append(out, analysis)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
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
	doc, err := s.fetchDocument(ctx, dossier.DocumentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("dossier parent document %s: %w", dossier.DocumentID, sentinel.ErrConstraint)
		}
		return err
	}
	if err := storage.CheckOwner(actor, doc.OwnerID); err != nil {
		return err
	}
	query := `
		INSERT INTO dossiers (id, document_id, owner_id, bundle_locator, digest)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		dossier.ID.String(), dossier.DocumentID.String(), doc.OwnerID.String(),
		dossier.BundleLocator, dossier.Digest.String()); err != nil {
		return fmt.Errorf("create dossier: %w", translate(err))
	}
	return nil
}

func (s *Store) FindDossier(ctx context.Context, dossierID id.DossierID) (domain.Dossier, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return domain.Dossier{}, err
	}
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, document_id, owner_id, bundle_locator, digest, created_at
		FROM dossiers WHERE id = $1
	`, dossierID.String())
	dossier, err := scanDossier(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Dossier{}, fmt.Errorf("dossier %s: %w", dossierID, sentinel.ErrNotFound)
		}
		return domain.Dossier{}, fmt.Errorf("find dossier: %w", err)
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
	query := `
		SELECT id, document_id, owner_id, bundle_locator, digest, created_at
		FROM dossiers WHERE owner_id = $1 ORDER BY created_at, id
	`
	args := []any{actor.String()}
	if actor.IsSystem() {
		query = `
			SELECT id, document_id, owner_id, bundle_locator, digest, created_at
			FROM dossiers ORDER BY created_at, id
		`
		args = nil
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dossiers: %w", err)
	}
	defer rows.Close()

	var out []domain.Dossier
	for rows.Next() {
		dossier, err := scanDossier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dossier: %w", err)
		}
		out = append(out, dossier)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dossiers: %w", err)
	}
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
	dossier, err := s.FindDossier(ctx, cert.DossierID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("certificate parent dossier %s: %w", cert.DossierID, sentinel.ErrConstraint)
		}
		return err
	}
	if err := storage.CheckOwner(actor, dossier.OwnerID); err != nil {
		return err
	}
	query := `
		INSERT INTO certificates (id, dossier_id, owner_id, digest, ledger_ref, explorer_url)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		cert.ID.String(), cert.DossierID.String(), dossier.OwnerID.String(),
		cert.Digest.String(), cert.Ref, cert.ExplorerURL); err != nil {
		return fmt.Errorf("create certificate: %w", translate(err))
	}
	return nil
}

func (s *Store) FindCertificateByDossier(ctx context.Context, dossierID id.DossierID) (domain.Certificate, error) {
	actor, err := storage.Actor(ctx)
	if err != nil {
		return domain.Certificate{}, err
	}
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, dossier_id, owner_id, digest, ledger_ref, explorer_url, created_at
		FROM certificates WHERE dossier_id = $1
	`, dossierID.String())
	cert, err := scanCertificate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Certificate{}, fmt.Errorf("certificate for dossier %s: %w", dossierID, sentinel.ErrNotFound)
		}
		return domain.Certificate{}, fmt.Errorf("find certificate: %w", err)
	}
	if err := storage.CheckOwner(actor, cert.OwnerID); err != nil {
		return domain.Certificate{}, err
	}
	return cert, nil
}

func (s *Store) FindCertificateByDigest(ctx context.Context, digest id.Digest) (domain.Certificate, error) {
	if err := storage.RequireSystem(ctx); err != nil {
		return domain.Certificate{}, err
	}
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, dossier_id, owner_id, digest, ledger_ref, explorer_url, created_at
		FROM certificates WHERE digest = $1
	`, digest.String())
	cert, err := scanCertificate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Certificate{}, fmt.Errorf("certificate for digest %s: %w", digest, sentinel.ErrNotFound)
		}
		return domain.Certificate{}, fmt.Errorf("find certificate by digest: %w", err)
	}
	return cert, nil
}

// ----------------------------------------------------------------------------
// Retention
// ----------------------------------------------------------------------------

func (s *Store) PurgePrincipal(ctx context.Context, principalID id.PrincipalID) error {
	if err := storage.RequireSystem(ctx); err != nil {
		return err
	}
	execer := s.execer(ctx)
	if _, err := execer.ExecContext(ctx,
		`DELETE FROM documents WHERE owner_id = $1`, principalID.String()); err != nil {
		return fmt.Errorf("purge documents: %w", translate(err))
	}
	if _, err := execer.ExecContext(ctx,
		`DELETE FROM profiles WHERE id = $1`, principalID.String()); err != nil {
		return fmt.Errorf("purge profile: %w", translate(err))
	}
	return nil
}

// ----------------------------------------------------------------------------
// Scan helpers
// ----------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var doc domain.Document
	var rawID, rawOwner, rawDigest, rawStatus string
	if err := row.Scan(&rawID, &rawOwner, &doc.Filename, &doc.StorageLocator,
		&rawDigest, &rawStatus, &doc.CreatedAt); err != nil {
		return domain.Document{}, err
	}
	var err error
	if doc.ID, err = id.ParseDocumentID(rawID); err != nil {
		return domain.Document{}, err
	}
	if doc.OwnerID, err = id.ParsePrincipalID(rawOwner); err != nil {
		return domain.Document{}, err
	}
	if doc.Digest, err = id.ParseDigest(rawDigest); err != nil {
		return domain.Document{}, err
	}
	if doc.Status, err = domain.ParseDocumentStatus(rawStatus); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

func scanDossier(row rowScanner) (domain.Dossier, error) {
	var dossier domain.Dossier
	var rawID, rawDoc, rawOwner, rawDigest string
	if err := row.Scan(&rawID, &rawDoc, &rawOwner, &dossier.BundleLocator,
		&rawDigest, &dossier.CreatedAt); err != nil {
		return domain.Dossier{}, err
	}
	var err error
	if dossier.ID, err = id.ParseDossierID(rawID); err != nil {
		return domain.Dossier{}, err
	}
	if dossier.DocumentID, err = id.ParseDocumentID(rawDoc); err != nil {
		return domain.Dossier{}, err
	}
	if dossier.OwnerID, err = id.ParsePrincipalID(rawOwner); err != nil {
		return domain.Dossier{}, err
	}
	if dossier.Digest, err = id.ParseDigest(rawDigest); err != nil {
		return domain.Dossier{}, err
	}
	return dossier, nil
}

func scanCertificate(row rowScanner) (domain.Certificate, error) {
	var cert domain.Certificate
	var rawID, rawDossier, rawOwner, rawDigest string
	if err := row.Scan(&rawID, &rawDossier, &rawOwner, &rawDigest,
		&cert.Ref, &cert.ExplorerURL, &cert.CreatedAt); err != nil {
		return domain.Certificate{}, err
	}
	var err error
	if cert.ID, err = id.ParseCertificateID(rawID); err != nil {
		return domain.Certificate{}, err
	}
	if cert.DossierID, err = id.ParseDossierID(rawDossier); err != nil {
		return domain.Certificate{}, err
	}
	if cert.OwnerID, err = id.ParsePrincipalID(rawOwner); err != nil {
		return domain.Certificate{}, err
	}
	if cert.Digest, err = id.ParseDigest(rawDigest); err != nil {
		return domain.Certificate{}, err
	}
	return cert, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
