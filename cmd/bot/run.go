package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/xaenox/scan-bot/internal/backend"
	"github.com/xaenox/scan-bot/internal/bot"
	"github.com/xaenox/scan-bot/internal/orchestrator"
	"github.com/xaenox/scan-bot/internal/pending"
	"github.com/xaenox/scan-bot/internal/server"
	"github.com/xaenox/scan-bot/internal/session"
	"github.com/xaenox/scan-bot/internal/storage"
	"github.com/xaenox/scan-bot/pkg/config"
	"github.com/xaenox/scan-bot/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const purgeInterval = time.Hour

func runBot(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config(cfg.Log))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	cipher, err := session.NewCipher(cfg.Session.Secret)
	if err != nil {
		return fmt.Errorf("failed to initialize session cipher: %w", err)
	}
	sessions := session.NewStore(store, cipher, log)

	var pendingStore pending.Store
	switch cfg.Pending.Driver {
	case pending.DriverStorage:
		pendingStore = pending.NewKVStore(store, cfg.Pending.TTL)
	default:
		pendingStore = pending.NewMemoryStore(cfg.Pending.TTL)
	}

	client, err := backend.New(backend.Config{
		BaseURL:    cfg.Backend.URL,
		Timeout:    cfg.Backend.Timeout,
		MaxRetries: cfg.Backend.MaxRetries,
	}, log)
	if err != nil {
		return err
	}

	orch := orchestrator.New(client, sessions, pendingStore, orchestrator.Config{
		CredentialPrefix:    cfg.Session.CredentialPrefix,
		CredentialMinLength: cfg.Session.CredentialMinLength,
		DecisionMimeTypes:   cfg.Files.DecisionMimeTypes,
	}, log)

	b, err := bot.New(cfg.Telegram.Token, orch, bot.Options{
		PollTimeout:    cfg.Telegram.PollTimeout,
		MaxFileBytes:   cfg.Telegram.MaxFileBytes,
		DecisionPrefix: orchestrator.DecisionPrefix,
	}, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.Start(gctx)
	})

	if cfg.HTTP.Addr != "" {
		srv := server.New(cfg.HTTP.Addr, store, log)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if purger, ok := store.(*storage.PostgresStorage); ok {
		g.Go(func() error {
			purgeLoop(gctx, purger, log)
			return nil
		})
	}

	log.Info("Bot started",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("pending", cfg.Pending.Driver),
	)

	err = g.Wait()
	log.Info("Bot stopped")
	return err
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case storage.DriverPostgres:
		log.Info("Using PostgreSQL storage")
		return storage.NewPostgresStorage(cfg.StorageDatabaseConfig(), log)
	case storage.DriverSQLite:
		log.Info("Using SQLite storage", zap.String("path", cfg.SQLite.Path))
		return storage.NewSQLiteStorage(cfg.SQLite.Path, log)
	case storage.DriverRedis:
		log.Info("Using Redis storage")
		return storage.NewRedisStorage(ctx, cfg.Redis.URL, log)
	default:
		log.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}
}

// Postgres keeps expired rows until they are read; sweep them periodically
func purgeLoop(ctx context.Context, s *storage.PostgresStorage, log *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				log.Warn("Failed to purge expired entries", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("Purged expired entries", zap.Int64("count", n))
			}
		}
	}
}
