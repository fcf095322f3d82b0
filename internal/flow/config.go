// Package flow implements the per-turn guard core for SalesPipe: the
// transition guard, loop detector, router, retry wrapper, size governor and
// the turn engine that wires them between load and save.
package flow

import (
	"fmt"
	"time"
)

// Default guard configuration values.
const (
	DefaultWarnThreshold         = 5
	DefaultSoftResetThreshold    = 10
	DefaultHardEscalateThreshold = 20
	DefaultHistoryLimit          = 100
	DefaultCheckpointSoftLimit   = 256 * 1024
	DefaultMaxMessageChars       = 4096
	DefaultRetryBaseDelay        = 500 * time.Millisecond
	DefaultRetryFactor           = 2.0
	DefaultRetryMaxDelay         = 8 * time.Second
	DefaultRetryMaxAttempts      = 3
)

// Config holds the tunable guard-layer settings. The zero value is not
// usable; construct with DefaultConfig and override fields.
type Config struct {
	// Stagnation thresholds, in consecutive stagnant turns. Must be
	// strictly ordered: Warn < SoftReset < HardEscalate.
	WarnThreshold         int
	SoftResetThreshold    int
	HardEscalateThreshold int

	// HistoryLimit caps the persisted message history. 0 disables trimming.
	HistoryLimit int
	// CheckpointSoftLimitBytes triggers a warning metric when the serialized
	// checkpoint exceeds it. The checkpoint is persisted regardless.
	CheckpointSoftLimitBytes int
	// MaxMessageChars caps individual message content during compaction.
	// 0 disables per-message truncation.
	MaxMessageChars int

	// Retry budget for a single step invocation.
	RetryBaseDelay   time.Duration
	RetryFactor      float64
	RetryMaxDelay    time.Duration
	RetryMaxAttempts int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		WarnThreshold:            DefaultWarnThreshold,
		SoftResetThreshold:       DefaultSoftResetThreshold,
		HardEscalateThreshold:    DefaultHardEscalateThreshold,
		HistoryLimit:             DefaultHistoryLimit,
		CheckpointSoftLimitBytes: DefaultCheckpointSoftLimit,
		MaxMessageChars:          DefaultMaxMessageChars,
		RetryBaseDelay:           DefaultRetryBaseDelay,
		RetryFactor:              DefaultRetryFactor,
		RetryMaxDelay:            DefaultRetryMaxDelay,
		RetryMaxAttempts:         DefaultRetryMaxAttempts,
	}
}

// Validate checks internal consistency of the configuration.
func (c Config) Validate() error {
	if c.WarnThreshold <= 0 {
		return fmt.Errorf("warn threshold must be positive, got %d", c.WarnThreshold)
	}
	if !(c.WarnThreshold < c.SoftResetThreshold && c.SoftResetThreshold < c.HardEscalateThreshold) {
		return fmt.Errorf("stagnation thresholds must be strictly ordered: warn(%d) < soft-reset(%d) < hard-escalate(%d)",
			c.WarnThreshold, c.SoftResetThreshold, c.HardEscalateThreshold)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history limit must not be negative, got %d", c.HistoryLimit)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.RetryFactor < 1 {
		return fmt.Errorf("retry factor must be at least 1, got %g", c.RetryFactor)
	}
	return nil
}
