package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Entity identifiers are uuid-backed opaque types. Keeping them distinct at
// the type level prevents a document id from being passed where a dossier id
// is expected, which matters in a codebase where every row is owner-scoped.
type (
	PrincipalID   uuid.UUID
	DocumentID    uuid.UUID
	AnalysisID    uuid.UUID
	DossierID     uuid.UUID
	CertificateID uuid.UUID
)

// SystemPrincipal is the privileged backend identity. It owns nothing and is
// the only identity allowed to write audit records or run retention purges.
var SystemPrincipal = PrincipalID(uuid.MustParse("00000000-0000-0000-0000-000000000001"))

func NewPrincipalID() PrincipalID     { return PrincipalID(uuid.New()) }
func NewDocumentID() DocumentID       { return DocumentID(uuid.New()) }
func NewAnalysisID() AnalysisID       { return AnalysisID(uuid.New()) }
func NewDossierID() DossierID         { return DossierID(uuid.New()) }
func NewCertificateID() CertificateID { return CertificateID(uuid.New()) }

func (id PrincipalID) String() string   { return uuid.UUID(id).String() }
func (id DocumentID) String() string    { return uuid.UUID(id).String() }
func (id AnalysisID) String() string    { return uuid.UUID(id).String() }
func (id DossierID) String() string     { return uuid.UUID(id).String() }
func (id CertificateID) String() string { return uuid.UUID(id).String() }

func (id PrincipalID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id AnalysisID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id DossierID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CertificateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id PrincipalID) IsSystem() bool { return id == SystemPrincipal }

func parseID(s, kind string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id: %w", kind, err)
	}
	if u == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s id must not be nil", kind)
	}
	return u, nil
}

func ParsePrincipalID(s string) (PrincipalID, error) {
	u, err := parseID(s, "principal")
	return PrincipalID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseID(s, "document")
	return DocumentID(u), err
}

func ParseAnalysisID(s string) (AnalysisID, error) {
	u, err := parseID(s, "analysis")
	return AnalysisID(u), err
}

func ParseDossierID(s string) (DossierID, error) {
	u, err := parseID(s, "dossier")
	return DossierID(u), err
}

func ParseCertificateID(s string) (CertificateID, error) {
	u, err := parseID(s, "certificate")
	return CertificateID(u), err
}
