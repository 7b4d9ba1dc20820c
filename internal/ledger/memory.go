package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"iris/pkg/platform/sentinel"

	id "iris/pkg/domain"
)

// InMemory is a fake ledger enforcing the real contract: zero digests are
// rejected, a digest can be written exactly once, and records are immutable
// once present. It backs unit tests and local development.
type InMemory struct {
	mu        sync.Mutex
	byDigest  map[id.Digest]Record
	byRef     map[string]id.Digest
	submitter string
	clock     func() time.Time
	nonce     uint64

	// confirmed controls whether new records report full confirmation depth
	// immediately (the default) or wait for explicit Advance calls.
	confirmed bool
	events    chan Record
}

// InMemoryOption configures the fake.
type InMemoryOption func(*InMemory)

// WithManualConfirmation makes new records start at zero confirmations so
// tests can drive the confirmation wait explicitly via Advance.
func WithManualConfirmation() InMemoryOption {
	return func(l *InMemory) { l.confirmed = false }
}

// WithSubmitter sets the identity recorded on submissions.
func WithSubmitter(submitter string) InMemoryOption {
	return func(l *InMemory) { l.submitter = submitter }
}

// WithLedgerClock injects a clock for deterministic timestamps.
func WithLedgerClock(clock func() time.Time) InMemoryOption {
	return func(l *InMemory) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemory {
	l := &InMemory{
		byDigest:  make(map[id.Digest]Record),
		byRef:     make(map[string]id.Digest),
		submitter: "iris-backend",
		clock:     time.Now,
		confirmed: true,
		events:    make(chan Record, 64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ Ledger = (*InMemory)(nil)

func (l *InMemory) Submit(_ context.Context, digest id.Digest) (string, error) {
	if digest.IsZero() {
		return "", ErrZeroDigest
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.byDigest[digest]; ok {
		return "", fmt.Errorf("digest %s already anchored as %s: %w",
			digest, existing.Ref, sentinel.ErrDuplicateKey)
	}

	l.nonce++
	ref := txRef(digest, l.nonce)
	record := Record{
		Digest:    digest,
		Ref:       ref,
		Submitter: l.submitter,
		Timestamp: l.clock(),
	}
	if l.confirmed {
		record.Confirmations = 1
	}
	l.byDigest[digest] = record
	l.byRef[ref] = digest

	// Append-only event per successful submission; dropped if nobody reads.
	select {
	case l.events <- record:
	default:
	}
	return ref, nil
}

func (l *InMemory) Query(_ context.Context, digest id.Digest) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.byDigest[digest]
	if !ok {
		return Record{}, fmt.Errorf("digest %s: %w", digest, sentinel.ErrNotFound)
	}
	return record, nil
}

func (l *InMemory) QueryByRef(_ context.Context, ref string) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	digest, ok := l.byRef[ref]
	if !ok {
		return Record{}, fmt.Errorf("ref %s: %w", ref, sentinel.ErrNotFound)
	}
	return l.byDigest[digest], nil
}

// Advance adds one confirmation to every record, simulating block production.
func (l *InMemory) Advance() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for digest, record := range l.byDigest {
		record.Confirmations++
		l.byDigest[digest] = record
	}
}

// Events exposes the submission event stream.
func (l *InMemory) Events() <-chan Record { return l.events }

// Len reports how many digests are anchored (test helper).
func (l *InMemory) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byDigest)
}

// txRef derives a deterministic transaction-hash-style reference.
func txRef(digest id.Digest, nonce uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	sum := sha256.Sum256(append(digest[:], buf[:]...))
	return "0x" + hex.EncodeToString(sum[:])
}
