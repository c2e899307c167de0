package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "jwt:blacklist:"

// TokenBlacklist remembers revoked session ids until their natural expiry.
type TokenBlacklist interface {
	Revoke(ctx context.Context, id string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// NewTokenBlacklist prefers Redis and falls back to process memory when rc is nil.
func NewTokenBlacklist(rc *redis.Client) TokenBlacklist {
	if rc != nil {
		return &redisBlacklist{rc: rc}
	}
	return NewMemoryBlacklist()
}

type redisBlacklist struct {
	rc *redis.Client
}

func (b *redisBlacklist) Revoke(ctx context.Context, id string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return b.rc.Set(ctx, blacklistKeyPrefix+id, "1", ttl).Err()
}

func (b *redisBlacklist) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := b.rc.Exists(ctx, blacklistKeyPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryBlacklist is the in-process fallback; entries vanish on restart.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemoryBlacklist creates an empty in-memory blacklist.
func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{entries: map[string]time.Time{}}
}

func (b *MemoryBlacklist) Revoke(_ context.Context, id string, expiresAt time.Time) error {
	if !time.Now().Before(expiresAt) {
		return nil
	}
	b.mu.Lock()
	b.entries[id] = expiresAt
	b.pruneLocked()
	b.mu.Unlock()
	return nil
}

func (b *MemoryBlacklist) IsRevoked(_ context.Context, id string) (bool, error) {
	b.mu.RLock()
	exp, ok := b.entries[id]
	b.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		b.mu.Lock()
		delete(b.entries, id)
		b.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (b *MemoryBlacklist) pruneLocked() {
	now := time.Now()
	for id, exp := range b.entries {
		if now.After(exp) {
			delete(b.entries, id)
		}
	}
}
