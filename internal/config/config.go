package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.imstore/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	Log            Log    `toml:"log"`
	Store          Store  `toml:"store"`
	Redis          Redis  `toml:"redis"`
	Outbox         Outbox `toml:"outbox"`
}

type Log struct {
	Level string `toml:"level"`
}

type Store struct {
	BusyTimeoutMS int `toml:"busy_timeout_ms"`
}

// Redis configures the cross-process change bridge and the outgoing queue
// transport. An empty Addr disables both.
type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Channel  string `toml:"channel"`
	Stream   string `toml:"stream"`
}

type Outbox struct {
	PollInterval string `toml:"poll_interval"`
	BatchSize    int    `toml:"batch_size"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Log:            Log{Level: "info"},
		Store:          Store{BusyTimeoutMS: 5000},
		Redis:          Redis{Channel: "imstore:changes", Stream: "imstore:outgoing"},
		Outbox:         Outbox{PollInterval: "500ms", BatchSize: 50},
	}
}

// Load reads config from the given path on top of Default. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if _, err := cfg.Outbox.Interval(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// BusyTimeout returns the SQLite busy timeout.
func (s Store) BusyTimeout() time.Duration {
	return time.Duration(s.BusyTimeoutMS) * time.Millisecond
}

// Interval parses the poll interval. Empty means zero, which lets the
// sender pick its default.
func (o Outbox) Interval() (time.Duration, error) {
	if o.PollInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(o.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("outbox poll_interval: %w", err)
	}
	return d, nil
}
