package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kyudori/er-scout/internal/platform/resilience"
)

// Observer receives cache lookup outcomes. Implementations must be
// safe for concurrent use.
type Observer interface {
	Hit(key string)
	Miss(key string)
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Store is an in-process TTL cache. Expired entries are evicted lazily
// on lookup; there is no background sweeper.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]entry
	ttl      time.Duration
	now      func() time.Time
	observer Observer
	flight   resilience.SingleFlight
}

type Option func(*Store)

// WithClock replaces the wall clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(s *Store) {
		s.observer = observer
	}
}

func NewStore(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(_ context.Context, key string) (any, bool) {
	if key == "" {
		return nil, false
	}

	now := s.now()
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		s.miss(key)
		return nil, false
	}
	if s.ttl > 0 && !e.expiresAt.After(now) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		s.miss(key)
		return nil, false
	}

	s.hit(key)
	return e.value, true
}

func (s *Store) Set(_ context.Context, key string, value any) {
	if key == "" {
		return
	}

	expiresAt := time.Time{}
	if s.ttl > 0 {
		expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry{
		value:     value,
		expiresAt: expiresAt,
	}
	s.mu.Unlock()
}

func (s *Store) Delete(_ context.Context, key string) {
	if key == "" {
		return
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

func (s *Store) DeletePrefix(_ context.Context, prefix string) {
	if prefix == "" {
		return
	}

	s.mu.Lock()
	for key := range s.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}

// GetOrLoad returns the cached value or runs loader once per key across
// concurrent callers. Only successful loads populate the cache.
func (s *Store) GetOrLoad(ctx context.Context, key string, loader func(context.Context) (any, error)) (any, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if key == "" {
		return loader(ctx)
	}

	if value, ok := s.Get(ctx, key); ok {
		return value, nil
	}

	value, err, _ := s.flight.Do(key, func() (any, error) {
		if cached, ok := s.lookup(key); ok {
			return cached, nil
		}

		loaded, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		s.Set(ctx, key, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// lookup is Get without observer accounting, for the singleflight
// double-check so one logical miss is not counted twice.
func (s *Store) lookup(key string) (any, bool) {
	now := s.now()
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.ttl > 0 && !e.expiresAt.After(now) {
		return nil, false
	}
	return e.value, true
}

func (s *Store) hit(key string) {
	if s.observer != nil {
		s.observer.Hit(key)
	}
}

func (s *Store) miss(key string) {
	if s.observer != nil {
		s.observer.Miss(key)
	}
}
