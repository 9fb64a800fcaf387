package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/xaenox/scan-bot/internal/models"
	"github.com/xaenox/scan-bot/internal/storage"
	"go.uber.org/zap"
)

const keyPrefix = "session:"

// record is the at-rest layout; APIKey holds ciphertext
type record struct {
	APIKey     string     `json:"api_key,omitempty"`
	LastPrompt string     `json:"last_prompt,omitempty"`
	LinkedAt   *time.Time `json:"linked_at,omitempty"`
}

// Store owns the encrypted per-user session records.
// Concurrent updates for the same user are last-writer-wins; callers serialise per user if they need more.
type Store struct {
	storage storage.Storage
	cipher  *Cipher
	logger  *zap.Logger
}

func NewStore(s storage.Storage, c *Cipher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{storage: s, cipher: c, logger: logger}
}

func sessionKey(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

// Get never fails: a missing or unreadable record yields an empty session, and a credential
// that cannot be decrypted is dropped while the rest of the record is kept.
func (s *Store) Get(ctx context.Context, userID int64) *models.UserSession {
	rec, err := s.load(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load session",
			zap.Error(err),
			zap.Int64("user_id", userID))
		return &models.UserSession{UserID: userID}
	}
	return s.decrypt(userID, rec)
}

// Update merges the non-nil fields into the stored record and returns the plaintext view
func (s *Store) Update(ctx context.Context, userID int64, update models.SessionUpdate) (*models.UserSession, error) {
	rec, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	current := s.decrypt(userID, rec)
	if current.APIKey == "" {
		// a corrupted ciphertext is not carried forward
		rec.APIKey = ""
	}

	if update.APIKey != nil {
		current.APIKey = *update.APIKey
		rec.APIKey = ""
		if *update.APIKey != "" {
			encrypted, err := s.cipher.Encrypt(*update.APIKey)
			if err != nil {
				return nil, fmt.Errorf("encrypt credential: %w", err)
			}
			rec.APIKey = encrypted
		}
	}
	if update.LastPrompt != nil {
		current.LastPrompt = *update.LastPrompt
		rec.LastPrompt = *update.LastPrompt
	}
	if update.LinkedAt != nil {
		linkedAt := update.LinkedAt.UTC()
		current.LinkedAt = &linkedAt
		rec.LinkedAt = &linkedAt
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := s.storage.Set(ctx, sessionKey(userID), data, 0); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	return current, nil
}

// SetCredential stores the API key, recording linkedAt on the first link only
func (s *Store) SetCredential(ctx context.Context, userID int64, apiKey string, now time.Time) (*models.UserSession, error) {
	update := models.SessionUpdate{APIKey: &apiKey}
	if current := s.Get(ctx, userID); current.LinkedAt == nil {
		update.LinkedAt = &now
	}
	return s.Update(ctx, userID, update)
}

func (s *Store) Credential(ctx context.Context, userID int64) string {
	return s.Get(ctx, userID).APIKey
}

func (s *Store) HasCredential(ctx context.Context, userID int64) bool {
	return s.Get(ctx, userID).HasCredential()
}

func (s *Store) SetLastPrompt(ctx context.Context, userID int64, prompt string) (*models.UserSession, error) {
	return s.Update(ctx, userID, models.SessionUpdate{LastPrompt: &prompt})
}

func (s *Store) LastPrompt(ctx context.Context, userID int64) string {
	return s.Get(ctx, userID).LastPrompt
}

// Clear removes the stored record entirely
func (s *Store) Clear(ctx context.Context, userID int64) error {
	if err := s.storage.Delete(ctx, sessionKey(userID)); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Info("Session cleared", zap.Int64("user_id", userID))
	return nil
}

func (s *Store) load(ctx context.Context, userID int64) (record, error) {
	var rec record
	data, err := s.storage.Get(ctx, sessionKey(userID))
	if errors.Is(err, storage.ErrNotFound) {
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("read session: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("Discarding unreadable session record",
			zap.Error(err),
			zap.Int64("user_id", userID))
		return record{}, nil
	}
	return rec, nil
}

func (s *Store) decrypt(userID int64, rec record) *models.UserSession {
	sess := &models.UserSession{
		UserID:     userID,
		LastPrompt: rec.LastPrompt,
		LinkedAt:   rec.LinkedAt,
	}
	if rec.APIKey == "" {
		return sess
	}

	apiKey, err := s.cipher.Decrypt(rec.APIKey)
	if err != nil {
		s.logger.Warn("Stored credential could not be decrypted, treating as absent",
			zap.Error(err),
			zap.Int64("user_id", userID))
		return sess
	}
	sess.APIKey = apiKey
	return sess
}
