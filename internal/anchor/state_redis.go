package anchor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "iris/pkg/domain"
)

const (
	claimKeyPrefix  = "anchor:claim:"
	failedKeyPrefix = "anchor:failed:"
)

// RedisStateStore shares anchor claims across instances. SET NX with TTL is
// the claim; key expiry is the crash-recovery path.
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisStateOption configures a RedisStateStore.
type RedisStateOption func(*RedisStateStore)

// WithRedisClaimTTL overrides the claim expiry window.
func WithRedisClaimTTL(ttl time.Duration) RedisStateOption {
	return func(s *RedisStateStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewRedisStateStore(client *redis.Client, opts ...RedisStateOption) *RedisStateStore {
	s := &RedisStateStore{client: client, ttl: DefaultClaimTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

var _ StateStore = (*RedisStateStore)(nil)

func (s *RedisStateStore) Claim(ctx context.Context, digest id.Digest) (bool, error) {
	key := claimKeyPrefix + digest.String()
	claimed, err := s.client.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim digest %s: %w", digest, err)
	}
	if claimed {
		// A fresh claim supersedes any stale failure marker.
		if err := s.client.Del(ctx, failedKeyPrefix+digest.String()).Err(); err != nil {
			return false, fmt.Errorf("clear failure marker for %s: %w", digest, err)
		}
	}
	return claimed, nil
}

func (s *RedisStateStore) Release(ctx context.Context, digest id.Digest) error {
	if err := s.client.Del(ctx, claimKeyPrefix+digest.String()).Err(); err != nil {
		return fmt.Errorf("release digest %s: %w", digest, err)
	}
	return nil
}

func (s *RedisStateStore) MarkFailed(ctx context.Context, digest id.Digest) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, claimKeyPrefix+digest.String())
	pipe.Set(ctx, failedKeyPrefix+digest.String(), "1", s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark digest %s failed: %w", digest, err)
	}
	return nil
}

func (s *RedisStateStore) State(ctx context.Context, digest id.Digest) (State, error) {
	if held, err := s.exists(ctx, claimKeyPrefix+digest.String()); err != nil {
		return StateUnanchored, err
	} else if held {
		return StateAnchoring, nil
	}
	if marked, err := s.exists(ctx, failedKeyPrefix+digest.String()); err != nil {
		return StateUnanchored, err
	} else if marked {
		return StateFailed, nil
	}
	return StateUnanchored, nil
}

func (s *RedisStateStore) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	return true, nil
}
