package anchor

import (
	"context"
	"sync"
	"time"

	id "iris/pkg/domain"
)

// State is the per-digest protocol state.
type State string

const (
	StateUnanchored State = "unanchored"
	StateAnchoring  State = "anchoring"
	StateAnchored   State = "anchored"
	StateFailed     State = "failed"
)

// StateStore tracks in-flight and failed submissions per digest. Anchored is
// not stored here: the certificate row is the durable terminal marker, so the
// state store only needs the transient claims.
//
// Claim begins an Anchoring window; it returns false when another submitter
// already holds the digest. Claims expire so a crashed submitter cannot wedge
// a digest forever; recovery after expiry is reconcile-by-query.
type StateStore interface {
	Claim(ctx context.Context, digest id.Digest) (bool, error)
	Release(ctx context.Context, digest id.Digest) error
	MarkFailed(ctx context.Context, digest id.Digest) error
	State(ctx context.Context, digest id.Digest) (State, error)
}

// DefaultClaimTTL bounds how long a crashed submitter blocks a digest.
const DefaultClaimTTL = 2 * time.Minute

// InMemoryStateStore is the single-process implementation.
type InMemoryStateStore struct {
	mu      sync.Mutex
	claims  map[id.Digest]time.Time
	failed  map[id.Digest]time.Time
	ttl     time.Duration
	clock   func() time.Time
}

// InMemoryStateOption configures the store.
type InMemoryStateOption func(*InMemoryStateStore)

// WithClaimTTL overrides the claim expiry window.
func WithClaimTTL(ttl time.Duration) InMemoryStateOption {
	return func(s *InMemoryStateStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithStateClock injects a clock for expiry tests.
func WithStateClock(clock func() time.Time) InMemoryStateOption {
	return func(s *InMemoryStateStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemoryStateStore(opts ...InMemoryStateOption) *InMemoryStateStore {
	s := &InMemoryStateStore{
		claims: make(map[id.Digest]time.Time),
		failed: make(map[id.Digest]time.Time),
		ttl:    DefaultClaimTTL,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ StateStore = (*InMemoryStateStore)(nil)

func (s *InMemoryStateStore) Claim(_ context.Context, digest id.Digest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if expiry, held := s.claims[digest]; held && now.Before(expiry) {
		return false, nil
	}
	s.claims[digest] = now.Add(s.ttl)
	delete(s.failed, digest)
	return true, nil
}

func (s *InMemoryStateStore) Release(_ context.Context, digest id.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, digest)
	return nil
}

func (s *InMemoryStateStore) MarkFailed(_ context.Context, digest id.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, digest)
	s.failed[digest] = s.clock().Add(s.ttl)
	return nil
}

func (s *InMemoryStateStore) State(_ context.Context, digest id.Digest) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if expiry, held := s.claims[digest]; held && now.Before(expiry) {
		return StateAnchoring, nil
	}
	if expiry, marked := s.failed[digest]; marked && now.Before(expiry) {
		return StateFailed, nil
	}
	return StateUnanchored, nil
}
