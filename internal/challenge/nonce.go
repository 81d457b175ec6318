package challenge

import (
	"context"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"stampd/internal/platform/redis"
)

const noncePrefix = "stampd:challenge:nonce:"

// RedisNonceStore tracks nonces in redis so single-use holds across replicas.
type RedisNonceStore struct {
	client *redis.Client
}

func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func (s *RedisNonceStore) Remember(ctx context.Context, nonce string, ttl time.Duration) error {
	return s.client.Set(ctx, noncePrefix+nonce, "1", ttl).Err()
}

func (s *RedisNonceStore) Consume(ctx context.Context, nonce string) (bool, error) {
	err := s.client.GetDel(ctx, noncePrefix+nonce).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemoryNonceStore is a process-local store for single-instance deployments
// and tests.
type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	now    func() time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{
		nonces: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (s *MemoryNonceStore) Remember(_ context.Context, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[nonce] = s.now().Add(ttl)
	return nil
}

func (s *MemoryNonceStore) Consume(_ context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.nonces[nonce]
	if !ok {
		return false, nil
	}
	delete(s.nonces, nonce)
	if s.now().After(expiry) {
		return false, nil
	}
	return true, nil
}
