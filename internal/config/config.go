// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

// Package config loads layered configuration (defaults, optional YAML
// file, environment variables) for the Itemwise server.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	Trainer TrainerConfig `koanf:"trainer"`
	Ranking RankingConfig `koanf:"ranking"`
	Ingest  IngestConfig  `koanf:"ingest"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitReqs requests per RateLimitWindow per client IP.
	// Zero disables rate limiting.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// StorageConfig selects and tunes the score/history store.
type StorageConfig struct {
	// Backend is "badger" or "memory".
	Backend string `koanf:"backend"`

	// Path is the BadgerDB directory. Ignored for the memory backend.
	Path string `koanf:"path"`

	// BreakerEnabled wraps the store's write path in a circuit breaker.
	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// TrainerConfig tunes incremental training.
type TrainerConfig struct {
	// MaxHistory caps the per-user rating history used for incremental
	// updates.
	MaxHistory int `koanf:"max_history"`

	// SkipHistoryPersist and SkipScorePersist disable the respective
	// persistence steps, for operating through storage incidents.
	SkipHistoryPersist bool `koanf:"skip_history_persist"`
	SkipScorePersist   bool `koanf:"skip_score_persist"`
}

// RankingConfig tunes top-K serving.
type RankingConfig struct {
	// Mode is "rank" or "estimate".
	Mode string `koanf:"mode"`

	// DefaultK is the result size when a request does not name one.
	DefaultK int `koanf:"default_k"`

	// MinScore drops candidates scoring below it.
	MinScore float64 `koanf:"min_score"`
}

// IngestConfig tunes the rating-event pipeline.
type IngestConfig struct {
	// BatchSize flushes a training pass after this many buffered events.
	BatchSize int `koanf:"batch_size"`

	// FlushInterval flushes buffered events at least this often.
	FlushInterval time.Duration `koanf:"flush_interval"`

	// BufferSize is the pub/sub channel capacity.
	BufferSize int `koanf:"buffer_size"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Default returns the built-in configuration, layered under file and
// environment values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8470,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Storage: StorageConfig{
			Backend:        "badger",
			Path:           "/data/itemwise",
			BreakerEnabled: true,
		},
		Trainer: TrainerConfig{
			MaxHistory: 50,
		},
		Ranking: RankingConfig{
			Mode:     "rank",
			DefaultK: 10,
			MinScore: 0,
		},
		Ingest: IngestConfig{
			BatchSize:     500,
			FlushInterval: 5 * time.Second,
			BufferSize:    4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Backend {
	case "badger":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path required for badger backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend %q is not badger or memory", c.Storage.Backend)
	}
	if c.Trainer.MaxHistory < 1 {
		return fmt.Errorf("trainer.max_history must be positive, got %d", c.Trainer.MaxHistory)
	}
	switch c.Ranking.Mode {
	case "rank", "estimate":
	default:
		return fmt.Errorf("ranking.mode %q is not rank or estimate", c.Ranking.Mode)
	}
	if c.Ranking.DefaultK < 1 {
		return fmt.Errorf("ranking.default_k must be positive, got %d", c.Ranking.DefaultK)
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.FlushInterval <= 0 {
		return fmt.Errorf("ingest.flush_interval must be positive, got %s", c.Ingest.FlushInterval)
	}
	return nil
}
