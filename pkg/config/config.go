package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/xaenox/scan-bot/internal/storage"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Session  SessionConfig  `mapstructure:"session"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Pending  PendingConfig  `mapstructure:"pending"`
	Files    FilesConfig    `mapstructure:"files"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
}

type TelegramConfig struct {
	Token        string `mapstructure:"token"`
	PollTimeout  int    `mapstructure:"poll_timeout"`
	MaxFileBytes int64  `mapstructure:"max_file_bytes"`
}

type BackendConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type SessionConfig struct {
	Secret              string `mapstructure:"secret"`
	CredentialPrefix    string `mapstructure:"credential_prefix"`
	CredentialMinLength int    `mapstructure:"credential_min_length"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type PendingConfig struct {
	TTL    time.Duration `mapstructure:"ttl"`
	Driver string        `mapstructure:"driver"`
}

type FilesConfig struct {
	DecisionMimeTypes []string `mapstructure:"decision_mime_types"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// StorageDatabaseConfig converts the database block for the Postgres driver
func (c *Config) StorageDatabaseConfig() storage.DatabaseConfig {
	return storage.DatabaseConfig{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		DBName:   c.Database.DBName,
		SSLMode:  c.Database.SSLMode,
	}
}

// Validate checks that the required settings are present
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token (TELEGRAM_TOKEN) is required"))
	}
	if c.Session.Secret == "" {
		errs = append(errs, errors.New("session.secret (SESSION_SECRET) is required"))
	}
	if c.Backend.URL == "" {
		errs = append(errs, errors.New("backend.url (BACKEND_URL) is required"))
	}

	switch c.Storage.Driver {
	case storage.DriverMemory, storage.DriverPostgres, storage.DriverSQLite, storage.DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == storage.DriverRedis && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url (REDIS_URL) is required for the redis driver"))
	}

	switch c.Pending.Driver {
	case "memory", "storage":
	default:
		errs = append(errs, fmt.Errorf("unknown pending.driver %q", c.Pending.Driver))
	}
	if c.Pending.TTL <= 0 {
		errs = append(errs, errors.New("pending.ttl must be positive"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.poll_timeout", 60)
	v.SetDefault("telegram.max_file_bytes", 20<<20)
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.max_retries", 3)
	v.SetDefault("session.credential_prefix", "sk_")
	v.SetDefault("session.credential_min_length", 20)
	v.SetDefault("storage.driver", storage.DriverMemory)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("sqlite.path", "./data/scanbot.db")
	v.SetDefault("pending.ttl", 10*time.Minute)
	v.SetDefault("pending.driver", "memory")
	v.SetDefault("files.decision_mime_types", []string{"application/pdf", "image/"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads path (which may be absent) and applies environment overrides.
// A .env file in the working directory is loaded first.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(v, &config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(v *viper.Viper, config *Config) error {
	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := storage.ParseDatabaseURL(dbURL)
		if err != nil {
			return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = DatabaseConfig(dbConfig)
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if secret := v.GetString("SESSION_SECRET"); secret != "" {
		config.Session.Secret = secret
	}
	if backendURL := v.GetString("BACKEND_URL"); backendURL != "" {
		config.Backend.URL = backendURL
	}
	if redisURL := v.GetString("REDIS_URL"); redisURL != "" {
		config.Redis.URL = redisURL
	}
	if sqlitePath := v.GetString("SQLITE_PATH"); sqlitePath != "" {
		config.SQLite.Path = sqlitePath
	}

	return nil
}
