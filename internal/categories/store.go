package categories

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/bargaining-backend/pkg/redis"
	"github.com/google/uuid"
)

// Store holds per-merchant category lists.
type Store interface {
	Get(ctx context.Context, merchantID uuid.UUID) ([]Category, bool, error)
	Set(ctx context.Context, merchantID uuid.UUID, categories []Category, ttl time.Duration) error
	Delete(ctx context.Context, merchantID uuid.UUID) error
}

type memoryEntry struct {
	categories []Category
	expiresAt  time.Time
}

// MemoryStore keeps entries in process. A zero ttl never expires.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]memoryEntry
	now     func() time.Time
}

// NewMemoryStore builds an in-process store; now defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: map[uuid.UUID]memoryEntry{}, now: now}
}

func (s *MemoryStore) Get(_ context.Context, merchantID uuid.UUID) ([]Category, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[merchantID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		if current, still := s.entries[merchantID]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(s.entries, merchantID)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return cloneCategories(entry.categories), true, nil
}

func (s *MemoryStore) Set(_ context.Context, merchantID uuid.UUID, categories []Category, ttl time.Duration) error {
	entry := memoryEntry{categories: cloneCategories(categories)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[merchantID] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, merchantID uuid.UUID) error {
	s.mu.Lock()
	delete(s.entries, merchantID)
	s.mu.Unlock()
	return nil
}

type redisKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CategoryKey(merchantID string) string
}

// RedisStore shares category lists across instances as JSON values.
type RedisStore struct {
	client redisKV
}

// NewRedisStore wraps a redis client.
func NewRedisStore(client redisKV) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, merchantID uuid.UUID) ([]Category, bool, error) {
	raw, err := s.client.Get(ctx, s.client.CategoryKey(merchantID.String()))
	if err != nil {
		if redis.IsNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cached categories: %w", err)
	}
	var categories []Category
	if err := json.Unmarshal([]byte(raw), &categories); err != nil {
		return nil, false, fmt.Errorf("decode cached categories: %w", err)
	}
	return categories, true, nil
}

func (s *RedisStore) Set(ctx context.Context, merchantID uuid.UUID, categories []Category, ttl time.Duration) error {
	if categories == nil {
		categories = []Category{}
	}
	payload, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	return s.client.Set(ctx, s.client.CategoryKey(merchantID.String()), string(payload), ttl)
}

func (s *RedisStore) Delete(ctx context.Context, merchantID uuid.UUID) error {
	return s.client.Del(ctx, s.client.CategoryKey(merchantID.String()))
}

func cloneCategories(in []Category) []Category {
	out := make([]Category, len(in))
	copy(out, in)
	return out
}
