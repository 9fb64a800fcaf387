package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key is absent or expired
var ErrNotFound = errors.New("storage: key not found")

// Storage is a key/value persistence engine. A zero ttl means no expiry.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// GetDel atomically reads and removes a live key. Of concurrent callers only one gets the value.
	GetDel(ctx context.Context, key string) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// Drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
)

func expiryFor(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	at := now.Add(ttl)
	return &at
}
