package audit

import (
	"context"
	"sync"
	"time"

	"iris/internal/storage"

	id "iris/pkg/domain"
)

// InMemoryStore keeps audit records in an append-only slice. Seq numbers and
// strictly increasing timestamps give the same total order the postgres
// identity column provides.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
	lastSeq int64
	lastTS  time.Time
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(ctx context.Context, record *Record) error {
	if err := storage.RequireSystem(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeq++
	record.Seq = s.lastSeq
	if !record.CreatedAt.After(s.lastTS) {
		record.CreatedAt = s.lastTS.Add(time.Microsecond)
	}
	s.lastTS = record.CreatedAt
	s.records = append(s.records, *record)
	return nil
}

func (s *InMemoryStore) ListByActor(ctx context.Context, actorID id.PrincipalID) ([]Record, error) {
	if err := storage.RequireSystem(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, record := range s.records {
		if record.ActorID != nil && *record.ActorID == actorID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListAll(ctx context.Context) ([]Record, error) {
	if err := storage.RequireSystem(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record{}, s.records...), nil
}

func (s *InMemoryStore) PurgeActor(ctx context.Context, actorID id.PrincipalID) error {
	if err := storage.RequireSystem(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, record := range s.records {
		if record.ActorID == nil || *record.ActorID != actorID {
			kept = append(kept, record)
		}
	}
	s.records = kept
	return nil
}
