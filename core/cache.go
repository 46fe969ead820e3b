package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrLockHeld  = errors.New("lock already held")
)

// Cache is a byte oriented key/value store with best-effort locks.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Lock acquires key for ttl and returns the release func, or ErrLockHeld.
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// NopCache never stores anything. Its locks are held in process so callers of a single
// instance are still serialized.
type NopCache struct{}

var _ Cache = NopCache{}

var localLocks = struct {
	sync.Mutex
	held map[string]*localLock
}{held: make(map[string]*localLock)}

type localLock struct {
	expires time.Time
}

func (NopCache) Get(context.Context, string) ([]byte, error)             { return nil, ErrCacheMiss }
func (NopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NopCache) Delete(context.Context, ...string) error                  { return nil }

func (NopCache) Lock(_ context.Context, key string, ttl time.Duration) (func(), error) {
	localLocks.Lock()
	defer localLocks.Unlock()

	now := time.Now()
	if l, ok := localLocks.held[key]; ok && now.Before(l.expires) {
		return nil, ErrLockHeld
	}
	l := &localLock{expires: now.Add(ttl)}
	localLocks.held[key] = l
	return func() {
		localLocks.Lock()
		defer localLocks.Unlock()
		// an expired lock may have been taken over
		if localLocks.held[key] == l {
			delete(localLocks.held, key)
		}
	}, nil
}
