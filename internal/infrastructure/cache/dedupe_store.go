package cache

import (
	"context"
	"sync"
	"time"
)

// DedupeStore reserves string keys for a period. The job runner uses it to
// drop a clearance job that is already queued or just ran.
type DedupeStore interface {
	// Reserve marks a key for the TTL. Returns true if the key was newly
	// reserved, false if it is still held.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees a key before its TTL expires.
	Release(ctx context.Context, key string) error
	Close() error
}

type entry struct {
	expiresAt time.Time
}

// InMemoryDedupeStore implements DedupeStore with a map. Suitable for
// single-instance deployments and tests.
type InMemoryDedupeStore struct {
	mu        sync.Mutex
	entries   map[string]entry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryDedupeStore creates a store and starts its cleanup goroutine
func NewInMemoryDedupeStore() *InMemoryDedupeStore {
	store := &InMemoryDedupeStore{
		entries:  make(map[string]entry),
		stopChan: make(chan struct{}),
	}
	store.wg.Add(1)
	go store.cleanupLoop()
	return store
}

// Reserve marks a key for the TTL
func (s *InMemoryDedupeStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.entries[key]; exists && time.Now().Before(e.expiresAt) {
		return false, nil
	}
	s.entries[key] = entry{expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// Release frees a key
func (s *InMemoryDedupeStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryDedupeStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryDedupeStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryDedupeStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Size returns the number of live entries (for tests and monitoring)
func (s *InMemoryDedupeStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ DedupeStore = (*InMemoryDedupeStore)(nil)
