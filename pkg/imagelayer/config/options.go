package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/imagelayer/pkg/imagelayer"
)

// WithEnv applies IMAGELAYER_* environment variable overrides. Variables
// that are not set leave the current value alone.
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithFile reads a YAML, JSON, TOML or .env config file. Environment
// variables still take precedence over file values.
func WithFile(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *Config) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *Config) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDurationPolicy sets the content duration policy of served layers
func WithDurationPolicy(policy imagelayer.DurationPolicy) Option {
	return func(c *Config) error {
		if !policy.IsValid() {
			return fmt.Errorf("%w: %s", imagelayer.ErrUnknownDurationPolicy, policy)
		}
		c.DurationPolicy = string(policy)
		return nil
	}
}

// WithDatabaseURL selects the scene description repository
func WithDatabaseURL(url string) Option {
	return func(c *Config) error {
		c.DatabaseURL = url
		return nil
	}
}

// WithStorageURL selects the payload blob store
func WithStorageURL(url string) Option {
	return func(c *Config) error {
		c.StorageURL = url
		return nil
	}
}

// WithSceneFile sets a scene description file to import at startup
func WithSceneFile(path string) Option {
	return func(c *Config) error {
		c.SceneFile = path
		return nil
	}
}

// WithLogLevel sets the log level (debug, info, warn, error)
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		if _, err := parseLevel(level); err != nil {
			return err
		}
		c.LogLevel = level
		return nil
	}
}
