/*
Package config loads server configuration from a TOML file.

Defaults are always valid; a missing file means "run with defaults",
and cmd/server flags override whatever the file said.
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server ServerConfig `toml:"server"`
	Store  StoreConfig  `toml:"store"`
	Gate   GateConfig   `toml:"gate"`
	Events EventsConfig `toml:"events"`
}

type ServerConfig struct {
	Port int `toml:"port"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type GateConfig struct {
	// LockWaitMS bounds how long a post waits for a contended link.
	LockWaitMS int `toml:"lock_wait_ms"`
	// RetryAttempts/RetryBackoffMS shape the gate's internal retry on
	// lock contention.
	RetryAttempts  int `toml:"retry_attempts"`
	RetryBackoffMS int `toml:"retry_backoff_ms"`
}

type EventsConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Store:  StoreConfig{Path: "jaaga.db"},
		Gate: GateConfig{
			LockWaitMS:     2000,
			RetryAttempts:  3,
			RetryBackoffMS: 50,
		},
		Events: EventsConfig{
			Enabled: false,
			Topic:   "credit.entry.posted",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error;
// a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Gate.LockWaitMS <= 0 {
		return fmt.Errorf("gate.lock_wait_ms must be positive")
	}
	if c.Gate.RetryAttempts < 1 {
		return fmt.Errorf("gate.retry_attempts must be at least 1")
	}
	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		return fmt.Errorf("events.enabled requires at least one broker")
	}
	return nil
}

func (c GateConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitMS) * time.Millisecond
}

func (c GateConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}
