package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/imagelayer/pkg/imagelayer"
	"github.com/tendant/imagelayer/pkg/imagelayer/repo/memory"
	repopg "github.com/tendant/imagelayer/pkg/imagelayer/repo/postgres"
	fsstorage "github.com/tendant/imagelayer/pkg/imagelayer/storage/fs"
	memorystorage "github.com/tendant/imagelayer/pkg/imagelayer/storage/memory"
	s3storage "github.com/tendant/imagelayer/pkg/imagelayer/storage/s3"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		Port:               "8080",
		Environment:        "development",
		MaxBodyBytes:       32 << 20,
		DurationPolicy:     string(imagelayer.DefaultDurationPolicy),
		DatabaseURL:        "memory",
		StorageURL:         "memory://",
		S3Region:           "us-east-1",
		LogLevel:           "info",
		LogFormat:          "text",
		EnableEventLogging: true,
	}
}

// Config represents configuration for the image layer server and tools.
// Values come from defaults, then an optional file, then IMAGELAYER_*
// environment variables.
type Config struct {
	Port        string `yaml:"port" env:"IMAGELAYER_PORT"`
	Environment string `yaml:"environment" env:"IMAGELAYER_ENVIRONMENT"` // development, production, testing
	// MaxBodyBytes caps API request bodies, base64 payloads included
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"IMAGELAYER_MAX_BODY_BYTES"`

	// Layer behaviour
	DurationPolicy string `yaml:"duration_policy" env:"IMAGELAYER_DURATION_POLICY"` // extent, coverage, layer

	// Scene description repository: "memory" or a postgres:// URL
	DatabaseURL string `yaml:"database_url" env:"IMAGELAYER_DATABASE_URL"`
	DBSchema    string `yaml:"db_schema" env:"IMAGELAYER_DB_SCHEMA"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"IMAGELAYER_AUTO_MIGRATE"`

	// Payload storage: memory://, file:///path or s3://bucket/prefix
	StorageURL        string `yaml:"storage_url" env:"IMAGELAYER_STORAGE_URL"`
	S3Region          string `yaml:"s3_region" env:"IMAGELAYER_S3_REGION"`
	S3Endpoint        string `yaml:"s3_endpoint" env:"IMAGELAYER_S3_ENDPOINT"`
	S3AccessKeyID     string `yaml:"s3_access_key_id" env:"IMAGELAYER_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key" env:"IMAGELAYER_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `yaml:"s3_use_path_style" env:"IMAGELAYER_S3_USE_PATH_STYLE"`
	S3CreateBucket    bool   `yaml:"s3_create_bucket" env:"IMAGELAYER_S3_CREATE_BUCKET"`

	// Logging
	LogLevel           string `yaml:"log_level" env:"IMAGELAYER_LOG_LEVEL"`   // debug, info, warn, error
	LogFormat          string `yaml:"log_format" env:"IMAGELAYER_LOG_FORMAT"` // text, json
	EnableEventLogging bool   `yaml:"enable_event_logging" env:"IMAGELAYER_ENABLE_EVENT_LOGGING"`

	// Scene to serve
	SceneID   string `yaml:"scene_id" env:"IMAGELAYER_SCENE_ID"`
	SceneFile string `yaml:"scene_file" env:"IMAGELAYER_SCENE_FILE"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got: %d", c.MaxBodyBytes)
	}

	if _, err := imagelayer.ParseDurationPolicy(c.DurationPolicy); err != nil {
		return err
	}

	switch c.DatabaseType() {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unsupported database_url format: %s (use 'memory' or 'postgres://...')", c.DatabaseURL)
	}

	if _, err := c.storage(); err != nil {
		return err
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be 'text' or 'json', got: %s", c.LogFormat)
	}

	if c.SceneID != "" {
		if _, err := uuid.Parse(c.SceneID); err != nil {
			return fmt.Errorf("invalid scene_id: %w", err)
		}
	}

	return nil
}

// DatabaseType reports the repository backend selected by DatabaseURL
func (c *Config) DatabaseType() string {
	switch {
	case c.DatabaseURL == "" || c.DatabaseURL == "memory":
		return "memory"
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return "postgres"
	default:
		return ""
	}
}

// Policy returns the configured duration policy
func (c *Config) Policy() imagelayer.DurationPolicy {
	p, err := imagelayer.ParseDurationPolicy(c.DurationPolicy)
	if err != nil {
		return imagelayer.DefaultDurationPolicy
	}
	return p
}

// SceneUUID returns the configured scene id, or uuid.Nil when none is set
func (c *Config) SceneUUID() uuid.UUID {
	id, err := uuid.Parse(c.SceneID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Logger builds the process logger writing to w
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	handlerOpts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// LayerOptions returns the options every layer of a served scene is made with
func (c *Config) LayerOptions(logger *slog.Logger) []imagelayer.Option {
	opts := []imagelayer.Option{
		imagelayer.WithDurationPolicy(c.Policy()),
		imagelayer.WithLogger(logger),
	}
	if c.EnableEventLogging {
		opts = append(opts, imagelayer.WithEventSink(imagelayer.NewLoggingEventSink(logger)))
	}
	return opts
}

// BuildRepository creates a Repository based on the configuration. The
// returned close function releases any connection pool.
func (c *Config) BuildRepository(ctx context.Context) (imagelayer.Repository, func(), error) {
	switch c.DatabaseType() {
	case "memory":
		return memory.New(), func() {}, nil
	case "postgres":
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse database_url: %w", err)
		}
		// Optionally set search_path for the connection
		if schema := c.DBSchema; schema != "" {
			cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
				_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
				return err
			}
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		if c.AutoMigrate {
			if err := repopg.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return repopg.NewWithPool(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type for url: %s", c.DatabaseURL)
	}
}

// storageTarget is a parsed StorageURL
type storageTarget struct {
	Type   string // memory, fs, s3
	Path   string // fs base directory
	Bucket string
	Prefix string
}

// storage parses StorageURL
func (c *Config) storage() (storageTarget, error) {
	raw := c.StorageURL
	if raw == "" || raw == "memory" || raw == "memory://" {
		return storageTarget{Type: "memory"}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return storageTarget{}, fmt.Errorf("invalid storage_url: %w", err)
	}

	switch u.Scheme {
	case "file":
		path := u.Host + u.Path
		if path == "" {
			return storageTarget{}, errors.New("filesystem path cannot be empty in storage_url")
		}
		return storageTarget{Type: "fs", Path: path}, nil
	case "s3":
		if u.Host == "" {
			return storageTarget{}, errors.New("S3 bucket name cannot be empty in storage_url")
		}
		prefix := strings.TrimPrefix(u.Path, "/")
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return storageTarget{Type: "s3", Bucket: u.Host, Prefix: prefix}, nil
	default:
		return storageTarget{}, fmt.Errorf("unsupported storage_url format: %s (use 'memory://', 'file://...', or 's3://...')", raw)
	}
}

// StorageType reports the blob store backend selected by StorageURL
func (c *Config) StorageType() string {
	target, err := c.storage()
	if err != nil {
		return ""
	}
	return target.Type
}

// BuildBlobStore creates the payload BlobStore based on the configuration
func (c *Config) BuildBlobStore(ctx context.Context) (imagelayer.BlobStore, error) {
	target, err := c.storage()
	if err != nil {
		return nil, err
	}

	switch target.Type {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: target.Path})
	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3Region,
			Bucket:                 target.Bucket,
			Prefix:                 target.Prefix,
			AccessKeyID:            c.S3AccessKeyID,
			SecretAccessKey:        c.S3SecretAccessKey,
			Endpoint:               c.S3Endpoint,
			UsePathStyle:           c.S3UsePathStyle,
			CreateBucketIfNotExist: c.S3CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", target.Type)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return level, nil
}
