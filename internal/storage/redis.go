package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStorage delegates expiry to Redis key TTLs
type RedisStorage struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisStorage accepts a redis:// URL or a bare host:port address
func NewRedisStorage(ctx context.Context, url string, logger *zap.Logger) (*RedisStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("Failed to parse Redis URL, using it as address", zap.Error(err))
		opt = &redis.Options{Addr: url}
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", opt.Addr), zap.Int("db", opt.DB))

	return &RedisStorage{rdb: rdb, logger: logger}, nil
}

func (s *RedisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return value, nil
}

func (s *RedisStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

func (s *RedisStorage) GetDel(ctx context.Context, key string) ([]byte, error) {
	value, err := s.rdb.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel %q: %w", key, err)
	}
	return value, nil
}

func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStorage) Close() error {
	return s.rdb.Close()
}
