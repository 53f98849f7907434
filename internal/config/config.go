// Package config resolves runtime settings from defaults, an optional YAML
// file, and LOCALVAULT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/southadmin/localvault/internal/codec"
)

const (
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

const envConfigFile = "LOCALVAULT_CONFIG"

type Config struct {
	SocketPath   string        `yaml:"socket"`
	Backend      string        `yaml:"backend"`
	DBPath       string        `yaml:"db"`
	Bucket       string        `yaml:"bucket"`
	RedisAddr    string        `yaml:"redis_addr"`
	PostgresDSN  string        `yaml:"postgres_dsn"`
	Secret       string        `yaml:"secret"`
	KeyFile      string        `yaml:"key_file"`
	DefaultTTL   time.Duration `yaml:"-"`
	NotifyWindow time.Duration `yaml:"-"`
}

// fileConfig carries durations as text so "48h" and "3s" read naturally.
type fileConfig struct {
	Config       `yaml:",inline"`
	DefaultTTL   string `yaml:"default_ttl"`
	NotifyWindow string `yaml:"notify_window"`
}

// Default returns settings rooted at ~/.cache/localvault.
func Default() Config {
	dir := defaultDir()
	return Config{
		SocketPath:   filepath.Join(dir, "cache.sock"),
		Backend:      BackendBolt,
		DBPath:       filepath.Join(dir, "local.bbolt"),
		Bucket:       "local",
		RedisAddr:    "localhost:6379",
		KeyFile:      filepath.Join(dir, "local.key"),
		DefaultTTL:   48 * time.Hour,
		NotifyWindow: 3 * time.Second,
	}
}

// Load applies LOCALVAULT_CONFIG (if set) and then the environment on top of
// Default, and validates the result.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv(envConfigFile); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.mergeEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fc := fileConfig{Config: *c}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	next := fc.Config
	if fc.DefaultTTL != "" {
		if next.DefaultTTL, err = cast.ToDurationE(fc.DefaultTTL); err != nil {
			return fmt.Errorf("config: default_ttl: %w", err)
		}
	}
	if fc.NotifyWindow != "" {
		if next.NotifyWindow, err = cast.ToDurationE(fc.NotifyWindow); err != nil {
			return fmt.Errorf("config: notify_window: %w", err)
		}
	}
	*c = next
	return nil
}

func (c *Config) mergeEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"LOCALVAULT_SOCK":         &c.SocketPath,
		"LOCALVAULT_BACKEND":      &c.Backend,
		"LOCALVAULT_DB":           &c.DBPath,
		"LOCALVAULT_BUCKET":       &c.Bucket,
		"LOCALVAULT_REDIS_ADDR":   &c.RedisAddr,
		"LOCALVAULT_POSTGRES_DSN": &c.PostgresDSN,
		"LOCALVAULT_SECRET":       &c.Secret,
		"LOCALVAULT_KEY_FILE":     &c.KeyFile,
	}
	for name, dst := range strs {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	durs := map[string]*time.Duration{
		"LOCALVAULT_DEFAULT_TTL":   &c.DefaultTTL,
		"LOCALVAULT_NOTIFY_WINDOW": &c.NotifyWindow,
	}
	for name, dst := range durs {
		v := getenv(name)
		if v == "" {
			continue
		}
		d, err := cast.ToDurationE(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		*dst = d
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendBolt:
		if c.DBPath == "" {
			return errors.New("config: bolt backend needs a db path")
		}
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("config: redis backend needs an address")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: postgres backend needs a dsn")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.DefaultTTL < 0 {
		return errors.New("config: default ttl must not be negative")
	}
	if c.NotifyWindow < 0 {
		return errors.New("config: notify window must not be negative")
	}
	if c.Secret == "" && c.KeyFile == "" {
		return errors.New("config: either a secret or a key file is required")
	}
	return nil
}

func defaultDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "localvault")
}

// Codec builds the entry codec from Secret, or from KeyFile when no secret
// is configured.
func (c Config) Codec() (*codec.Sealed, error) {
	if c.Secret != "" {
		return codec.FromSecret(c.Secret)
	}
	key, err := codec.LoadOrCreateKey(c.KeyFile)
	if err != nil {
		return nil, err
	}
	return codec.New(key)
}
