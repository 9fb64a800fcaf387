package pending

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/xaenox/scan-bot/internal/models"
)

// MemoryStore keeps pending files in an expiring in-process cache
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewMemoryStore evicts files after ttl, sweeping expired items every ttl/2
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	return &MemoryStore{cache: cache.New(ttl, cleanup)}
}

func (s *MemoryStore) Put(ctx context.Context, userID int64, file models.PendingFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Set(pendingKey(userID), file, cache.DefaultExpiration)
	return nil
}

func (s *MemoryStore) Take(ctx context.Context, userID int64) (models.PendingFile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pendingKey(userID)
	x, found := s.cache.Get(key)
	if !found {
		return models.PendingFile{}, false, nil
	}
	s.cache.Delete(key)
	return x.(models.PendingFile), true, nil
}
