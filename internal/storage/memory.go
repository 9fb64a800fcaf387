package storage

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt *time.Time
}

// MemoryStorage keeps everything in process memory. Expired entries are dropped on read.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStorage) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}
	if entry.expiresAt != nil && !s.now().Before(*entry.expiresAt) {
		s.mu.Lock()
		if current, ok := s.entries[key]; ok && current.expiresAt == entry.expiresAt {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

func (s *MemoryStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: stored, expiresAt: expiryFor(s.now(), ttl)}
	return nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStorage) GetDel(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return nil, ErrNotFound
	}
	delete(s.entries, key)
	if entry.expiresAt != nil && !s.now().Before(*entry.expiresAt) {
		return nil, ErrNotFound
	}
	return entry.value, nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
