package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist tracks push tokens that providers reported as invalid so they
// are skipped instead of retried on every send. Must be shared across
// instances in multi-instance deployments; use the redis implementation
// there.
type Blacklist interface {
	Add(ctx context.Context, token string) error
	Contains(ctx context.Context, token string) (bool, error)
}

// hashToken keys blacklist entries by digest so raw push tokens never land
// in the shared store.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemoryBlacklist is a process-local Blacklist for development and testing.
type MemoryBlacklist struct {
	tokens map[string]struct{}
	mu     sync.RWMutex
}

// NewMemoryBlacklist creates an in-memory blacklist.
func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{tokens: make(map[string]struct{})}
}

func (b *MemoryBlacklist) Add(ctx context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[hashToken(token)] = struct{}{}
	return nil
}

func (b *MemoryBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.tokens[hashToken(token)]
	return ok, nil
}

// DefaultBlacklistTTL bounds how long an invalid token stays blacklisted.
// Providers occasionally resurrect tokens; expiry lets a genuinely re-issued
// token flow again without manual cleanup.
const DefaultBlacklistTTL = 30 * 24 * time.Hour

// RedisBlacklist is a redis-backed Blacklist shared across instances.
type RedisBlacklist struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisBlacklistOption configures a RedisBlacklist.
type RedisBlacklistOption func(*RedisBlacklist)

// WithBlacklistTTL overrides the entry expiry.
func WithBlacklistTTL(ttl time.Duration) RedisBlacklistOption {
	return func(b *RedisBlacklist) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

// WithBlacklistPrefix overrides the key prefix.
func WithBlacklistPrefix(prefix string) RedisBlacklistOption {
	return func(b *RedisBlacklist) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// NewRedisBlacklist creates a redis-backed blacklist.
func NewRedisBlacklist(client *redis.Client, opts ...RedisBlacklistOption) *RedisBlacklist {
	b := &RedisBlacklist{
		client: client,
		prefix: "push:blacklist:",
		ttl:    DefaultBlacklistTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBlacklist) Add(ctx context.Context, token string) error {
	return b.client.Set(ctx, b.prefix+hashToken(token), 1, b.ttl).Err()
}

func (b *RedisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, b.prefix+hashToken(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
