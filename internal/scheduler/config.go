package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/learnpay/internal/config"
)

// Config controls the sweep schedule and batch sizes.
type Config struct {
	SweepSpec  string
	PendingTTL time.Duration
	BatchSize  int
	JobTimeout time.Duration
	LockTTL    time.Duration
}

func DefaultConfig() Config {
	return Config{
		SweepSpec:  "@every 5m",
		PendingTTL: 24 * time.Hour,
		BatchSize:  500,
		JobTimeout: 2 * time.Minute,
		LockTTL:    4 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		SweepSpec:  strings.TrimSpace(cfg.Scheduler.SweepSpec),
		PendingTTL: cfg.Payment.PendingTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.SweepSpec) == "" {
		c.SweepSpec = defaults.SweepSpec
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = defaults.PendingTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
