package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
backend:
  url: "https://api.example.com"
  timeout: 5s
session:
  secret: "s3cret"
storage:
  driver: sqlite
sqlite:
  path: /tmp/bot.db
pending:
  ttl: 2m
files:
  decision_mime_types: ["application/pdf"]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, 60, cfg.Telegram.PollTimeout)
	assert.Equal(t, int64(20<<20), cfg.Telegram.MaxFileBytes)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 3, cfg.Backend.MaxRetries)
	assert.Equal(t, "sk_", cfg.Session.CredentialPrefix)
	assert.Equal(t, 20, cfg.Session.CredentialMinLength)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/bot.db", cfg.SQLite.Path)
	assert.Equal(t, 2*time.Minute, cfg.Pending.TTL)
	assert.Equal(t, []string{"application/pdf"}, cfg.Files.DecisionMimeTypes)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("SESSION_SECRET", "env-secret")
	t.Setenv("BACKEND_URL", "https://env.example.com")
	t.Setenv("DATABASE_URL", "postgres://bot:pw@db:5433/scanbot")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "env-secret", cfg.Session.Secret)
	assert.Equal(t, "https://env.example.com", cfg.Backend.URL)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "bot",
		Password: "pw",
		DBName:   "scanbot",
		SSLMode:  "disable",
	}, cfg.Database)
	assert.Equal(t, "db", cfg.StorageDatabaseConfig().Host)
	assert.Equal(t, []string{"application/pdf", "image/"}, cfg.Files.DecisionMimeTypes)
}

func TestLoadConfigValidation(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: cassandra
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.token")
	assert.Contains(t, err.Error(), "session.secret")
	assert.Contains(t, err.Error(), "cassandra")
}

func TestValidateRedisNeedsURL(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{Token: "t"},
		Backend:  BackendConfig{URL: "https://api.example.com"},
		Session:  SessionConfig{Secret: "s"},
		Storage:  StorageConfig{Driver: "redis"},
		Pending:  PendingConfig{Driver: "storage", TTL: time.Minute},
	}
	assert.ErrorContains(t, cfg.Validate(), "redis.url")

	cfg.Redis.URL = "redis://localhost:6379"
	assert.NoError(t, cfg.Validate())
}
