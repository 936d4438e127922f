// Package config loads gridsync settings from YAML with GRIDSYNC_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full gridsync configuration
type Config struct {
	LogLevel string       `yaml:"log_level"`
	Server   ServerConfig `yaml:"server"`
	Store    StoreConfig  `yaml:"store"`
	Client   ClientConfig `yaml:"client"`
	Drafts   DraftConfig  `yaml:"drafts"`
}

// ServerConfig configures `gridsync serve`
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ServiceName     string        `yaml:"service_name"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig configures the reference document store
type StoreConfig struct {
	LockTTL      time.Duration `yaml:"lock_ttl"`
	HistoryLimit int           `yaml:"history_limit"`
}

// ClientConfig configures a syncing client
type ClientConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Holder    string        `yaml:"holder"`
	TableKind string        `yaml:"table_kind"`
	Live      bool          `yaml:"live"`
	Debounce  time.Duration `yaml:"debounce"`
	MaxWait   time.Duration `yaml:"max_wait"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// DraftConfig configures the local draft store
type DraftConfig struct {
	Path     string        `yaml:"path"`
	TTL      time.Duration `yaml:"ttl"`
	InMemory bool          `yaml:"in_memory"`
}

// Default returns the built-in configuration
func Default() Config {
	drafts := ".gridsync/drafts"
	if home, err := os.UserHomeDir(); err == nil {
		drafts = filepath.Join(home, ".gridsync", "drafts")
	}
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:            ":8080",
			ServiceName:     "gridsync",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			LockTTL:      45 * time.Second,
			HistoryLimit: 100,
		},
		Client: ClientConfig{
			BaseURL:   "http://localhost:8080",
			Holder:    "anonymous",
			TableKind: "sheet",
			Live:      true,
			Debounce:  800 * time.Millisecond,
			MaxWait:   5 * time.Second,
			Heartbeat: 15 * time.Second,
		},
		Drafts: DraftConfig{
			Path: drafts,
			TTL:  7 * 24 * time.Hour,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Write stores cfg as YAML, creating parent directories
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// malformed values are ignored and the previous setting kept
func applyEnv(cfg *Config) {
	if v := os.Getenv("GRIDSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GRIDSYNC_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("GRIDSYNC_LOCK_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.LockTTL = d
		}
	}
	if v := os.Getenv("GRIDSYNC_HISTORY_LIMIT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Store.HistoryLimit = i
		}
	}
	if v := os.Getenv("GRIDSYNC_BASE_URL"); v != "" {
		cfg.Client.BaseURL = v
	}
	if v := os.Getenv("GRIDSYNC_HOLDER"); v != "" {
		cfg.Client.Holder = v
	}
	if v := os.Getenv("GRIDSYNC_TABLE_KIND"); v != "" {
		cfg.Client.TableKind = v
	}
	if v := os.Getenv("GRIDSYNC_LIVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Client.Live = b
		}
	}
	if v := os.Getenv("GRIDSYNC_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.Debounce = d
		}
	}
	if v := os.Getenv("GRIDSYNC_MAX_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.MaxWait = d
		}
	}
	if v := os.Getenv("GRIDSYNC_HEARTBEAT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.Heartbeat = d
		}
	}
	if v := os.Getenv("GRIDSYNC_DRAFT_PATH"); v != "" {
		cfg.Drafts.Path = v
	}
	if v := os.Getenv("GRIDSYNC_DRAFT_IN_MEMORY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Drafts.InMemory = b
		}
	}
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Store.LockTTL <= 0 {
		errs = append(errs, errors.New("store.lock_ttl must be positive"))
	}
	if c.Store.HistoryLimit < 0 {
		errs = append(errs, errors.New("store.history_limit must not be negative"))
	}
	if u, err := url.Parse(c.Client.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("client.base_url %q must be an http(s) url", c.Client.BaseURL))
	}
	if c.Client.Debounce <= 0 {
		errs = append(errs, errors.New("client.debounce must be positive"))
	}
	if c.Client.MaxWait < c.Client.Debounce {
		errs = append(errs, errors.New("client.max_wait must be at least client.debounce"))
	}
	// heartbeat must beat the server lease or the session expires between beats
	if c.Client.Heartbeat <= 0 || c.Client.Heartbeat >= c.Store.LockTTL {
		errs = append(errs, errors.New("client.heartbeat must be positive and shorter than store.lock_ttl"))
	}
	if !c.Drafts.InMemory && c.Drafts.Path == "" {
		errs = append(errs, errors.New("drafts.path is required unless drafts.in_memory is set"))
	}
	if c.Drafts.TTL < 0 {
		errs = append(errs, errors.New("drafts.ttl must not be negative"))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}
