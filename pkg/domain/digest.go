package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DigestSize is the fixed word width the ledger contract mandates, in bytes.
const DigestSize = 32

// DigestHexLen is the canonical textual width of a digest.
const DigestHexLen = DigestSize * 2

// Digest is the fixed-width content hash identifying a dossier bundle.
// It is a value type so it can be used as a map key and compared with ==.
type Digest [DigestSize]byte

// ZeroDigest is never a valid anchor key; the ledger rejects it outright.
var ZeroDigest Digest

// ComputeDigest hashes bundle bytes into their canonical identity.
func ComputeDigest(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// ParseDigest decodes a hexadecimal digest string. Inputs shorter than the
// ledger word width are left-zero-padded; anything wider, or containing
// non-hex characters, is rejected rather than truncated. An optional "0x"
// prefix is accepted.
func ParseDigest(s string) (Digest, error) {
	s = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(s)), "0x")
	if s == "" {
		return ZeroDigest, fmt.Errorf("digest is empty")
	}
	if len(s) > DigestHexLen {
		return ZeroDigest, fmt.Errorf("digest is %d hex chars, ledger word is %d", len(s), DigestHexLen)
	}
	if len(s) < DigestHexLen {
		s = strings.Repeat("0", DigestHexLen-len(s)) + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ZeroDigest, fmt.Errorf("digest is not hexadecimal: %w", err)
	}
	var d Digest
	copy(d[:], raw)
	return d, nil
}

// String returns the canonical lowercase hex form, always DigestHexLen chars.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is the all-zero word.
func (d Digest) IsZero() bool {
	return d == ZeroDigest
}
