package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/scan-bot/internal/models"
	"github.com/xaenox/scan-bot/internal/storage"
)

// KVStore keeps pending files in a shared Storage so any bot replica can resolve the decision.
// Expiry is the storage key TTL.
type KVStore struct {
	storage storage.Storage
	ttl     time.Duration
}

func NewKVStore(s storage.Storage, ttl time.Duration) *KVStore {
	return &KVStore{storage: s, ttl: ttl}
}

func (s *KVStore) Put(ctx context.Context, userID int64, file models.PendingFile) error {
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode pending file: %w", err)
	}
	if err := s.storage.Set(ctx, pendingKey(userID), data, s.ttl); err != nil {
		return fmt.Errorf("save pending file: %w", err)
	}
	return nil
}

func (s *KVStore) Take(ctx context.Context, userID int64) (models.PendingFile, bool, error) {
	// GetDel hands the file to exactly one caller across every replica sharing the storage
	data, err := s.storage.GetDel(ctx, pendingKey(userID))
	if errors.Is(err, storage.ErrNotFound) {
		return models.PendingFile{}, false, nil
	}
	if err != nil {
		return models.PendingFile{}, false, fmt.Errorf("take pending file: %w", err)
	}

	var file models.PendingFile
	if err := json.Unmarshal(data, &file); err != nil {
		return models.PendingFile{}, false, fmt.Errorf("decode pending file: %w", err)
	}
	return file, true, nil
}
