package domain

import (
	"encoding/json"
	"time"

	id "iris/pkg/domain"
)

// Profile is the stored representation of a principal. RememberMe drives the
// retention policy: when false, logout purges the principal's entire subtree.
// APITokenHash is a bcrypt hash of the principal's CLI token; the plaintext
// is shown once at issue time and never stored.
type Profile struct {
	ID           id.PrincipalID
	Name         string
	Email        string
	RememberMe   bool
	APITokenHash string
	CreatedAt    time.Time
}

// Document is an uploaded source file. Its content digest is computed by the
// upload collaborator over the raw bytes; Status follows the lifecycle in
// status.go. Every child row denormalizes OwnerID so the storage guard can
// check ownership without walking the parent chain.
type Document struct {
	ID             id.DocumentID
	OwnerID        id.PrincipalID
	Filename       string
	StorageLocator string
	Digest         id.Digest
	Status         DocumentStatus
	CreatedAt      time.Time
}

// ExtractedText holds the per-page text of a document. Rows are keyed by
// (DocumentID, Page); a re-extraction replaces the page.
type ExtractedText struct {
	DocumentID id.DocumentID
	OwnerID    id.PrincipalID
	Page       int
	Text       string
	CreatedAt  time.Time
}

// Analysis stores collaborator-produced result payloads for a document.
// The payloads are opaque here: the core persists and relates them, never
// inspects field semantics.
type Analysis struct {
	ID          id.AnalysisID
	DocumentID  id.DocumentID
	OwnerID     id.PrincipalID
	Risk        json.RawMessage
	Compliance  json.RawMessage
	CrossVerify json.RawMessage
	CreatedAt   time.Time
}

// Dossier is a generated bundle referencing a document's analysis. Digest is
// computed once over the immutable bundle bytes and is the dossier's
// content-addressed identity; it never changes after creation.
type Dossier struct {
	ID            id.DossierID
	DocumentID    id.DocumentID
	OwnerID       id.PrincipalID
	BundleLocator string
	Digest        id.Digest
	CreatedAt     time.Time
}

// Certificate asserts that a dossier's digest is anchored on the external
// ledger. At most one certificate exists per digest value system-wide; the
// store enforces this with a unique constraint applied atomically at insert.
type Certificate struct {
	ID          id.CertificateID
	DossierID   id.DossierID
	OwnerID     id.PrincipalID
	Digest      id.Digest
	Ref         string
	ExplorerURL string
	CreatedAt   time.Time
}
