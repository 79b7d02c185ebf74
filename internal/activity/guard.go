package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrInProgress is returned while an identical completion is being processed.
	ErrInProgress = errors.New("activity completion already in progress")
	// ErrAlreadyCompleted is returned when the completion was already rewarded.
	ErrAlreadyCompleted = errors.New("activity already completed")
)

const (
	guardPrefix      = "recoverly:activity:v1:"
	inProgressMarker = "__in_progress__"
	doneMarker       = "__done__"
)

// Guard keeps a non-idempotent action from running twice for the same key.
type Guard interface {
	Begin(ctx context.Context, key string) error
	Complete(ctx context.Context, key string) error
	Abort(ctx context.Context, key string) error
}

// RedisGuard reserves keys with SETNX and remembers completed ones until the TTL lapses.
type RedisGuard struct {
	cache *redis.Client
	ttl   time.Duration
}

// NewRedisGuard builds a guard backed by cache.
func NewRedisGuard(cache *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{cache: cache, ttl: ttl}
}

// Begin reserves key or reports why it cannot.
func (g *RedisGuard) Begin(ctx context.Context, key string) error {
	cacheKey := guardPrefix + key
	ok, err := g.cache.SetNX(ctx, cacheKey, inProgressMarker, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve activity guard: %w", err)
	}
	if ok {
		return nil
	}
	state, err := g.cache.Get(ctx, cacheKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between the two calls
		return ErrInProgress
	case err != nil:
		return fmt.Errorf("read activity guard: %w", err)
	case state == doneMarker:
		return ErrAlreadyCompleted
	default:
		return ErrInProgress
	}
}

// Complete marks key as done.
func (g *RedisGuard) Complete(ctx context.Context, key string) error {
	return g.cache.Set(ctx, guardPrefix+key, doneMarker, g.ttl).Err()
}

// Abort releases a reservation so the action can be retried.
func (g *RedisGuard) Abort(ctx context.Context, key string) error {
	return g.cache.Del(ctx, guardPrefix+key).Err()
}

// MemoryGuard is the in-process Guard used without Redis.
type MemoryGuard struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	state map[string]guardEntry
}

type guardEntry struct {
	done    bool
	expires time.Time
}

// NewMemoryGuard builds an in-memory guard.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{ttl: ttl, now: time.Now, state: make(map[string]guardEntry)}
}

// Begin implements Guard.
func (g *MemoryGuard) Begin(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if e, ok := g.state[key]; ok && now.Before(e.expires) {
		if e.done {
			return ErrAlreadyCompleted
		}
		return ErrInProgress
	}
	g.state[key] = guardEntry{expires: now.Add(g.ttl)}
	return nil
}

// Complete implements Guard.
func (g *MemoryGuard) Complete(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state[key] = guardEntry{done: true, expires: g.now().Add(g.ttl)}
	return nil
}

// Abort implements Guard.
func (g *MemoryGuard) Abort(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.state, key)
	return nil
}
