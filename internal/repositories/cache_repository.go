package repositories

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// CacheRepositoryInterface holds short-lived conversation state and dedup keys.
type CacheRepositoryInterface interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// MemoryCacheRepository is used when no Redis address is configured and in tests.
type MemoryCacheRepository struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

func NewMemoryCacheRepository() *MemoryCacheRepository {
	return &MemoryCacheRepository{items: map[string]memoryEntry{}, now: time.Now}
}

func (r *MemoryCacheRepository) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = r.entry(value, expiration)
	return nil
}

func (r *MemoryCacheRepository) Get(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.items[key]
	if !ok || r.expired(e) {
		delete(r.items, key)
		return "", ErrCacheMiss
	}
	return e.value, nil
}

func (r *MemoryCacheRepository) Del(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.items, k)
	}
	return nil
}

func (r *MemoryCacheRepository) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.items[key]; ok && !r.expired(e) {
		return false, nil
	}
	r.items[key] = r.entry(value, expiration)
	return true, nil
}

func (r *MemoryCacheRepository) entry(value interface{}, expiration time.Duration) memoryEntry {
	e := memoryEntry{value: toString(value)}
	if expiration > 0 {
		e.expires = r.now().Add(expiration)
	}
	return e
}

func (r *MemoryCacheRepository) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && !r.now().Before(e.expires)
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}
