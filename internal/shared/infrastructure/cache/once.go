// Package cache provides cross-process deduplication markers backed by Redis,
// with an in-memory fallback for single-process and test setups.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// OnceMarker records that a keyed action happened, so a second process (or a
// retry) can skip it. Markers expire after a TTL.
type OnceMarker interface {
	// MarkOnce records the key if it is not already present. It returns true
	// when the caller won the marker and should perform the action.
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Close releases any underlying connections.
	Close() error
}

// RedisOnceMarker implements OnceMarker on Redis using SET NX with expiry.
type RedisOnceMarker struct {
	client *redis.Client
	prefix string
}

// NewRedisOnceMarker connects to Redis at the given URL.
func NewRedisOnceMarker(url, prefix string) (*RedisOnceMarker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisOnceMarker{client: client, prefix: prefix}, nil
}

// MarkOnce sets the key if absent. SET NX is atomic, so concurrent callers
// across processes resolve to exactly one winner.
func (m *RedisOnceMarker) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set marker: %w", err)
	}
	return ok, nil
}

// Ping checks the Redis connection.
func (m *RedisOnceMarker) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (m *RedisOnceMarker) Close() error {
	return m.client.Close()
}

// MemoryOnceMarker is an in-memory OnceMarker for single-process mode and
// tests. Markers do not survive restarts.
type MemoryOnceMarker struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryOnceMarker creates an in-memory marker store.
func NewMemoryOnceMarker() *MemoryOnceMarker {
	return &MemoryOnceMarker{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// MarkOnce records the key if absent or expired.
func (m *MemoryOnceMarker) MarkOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiry, ok := m.entries[key]; ok && expiry.After(now) {
		return false, nil
	}
	m.entries[key] = now.Add(ttl)
	return true, nil
}

// Close is a no-op.
func (m *MemoryOnceMarker) Close() error {
	return nil
}

var (
	_ OnceMarker = (*RedisOnceMarker)(nil)
	_ OnceMarker = (*MemoryOnceMarker)(nil)
)
