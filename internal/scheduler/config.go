package scheduler

import (
	"time"

	"github.com/smallbiznis/billsync/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval     time.Duration
	BatchSize       int
	ReplayThreshold time.Duration
	MaxAttempts     int
	JobTimeout      time.Duration
	LockTTL         time.Duration
	EnabledJobs     []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Minute,
		BatchSize:       50,
		ReplayThreshold: 15 * time.Minute,
		MaxAttempts:     10,
		JobTimeout:      30 * time.Second,
		LockTTL:         2 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:     cfg.Replay.Interval,
		BatchSize:       cfg.Replay.BatchSize,
		ReplayThreshold: cfg.Replay.Threshold,
		MaxAttempts:     cfg.Replay.MaxAttempts,
		LockTTL:         cfg.Replay.LockTTL,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.ReplayThreshold <= 0 {
		c.ReplayThreshold = defaults.ReplayThreshold
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
