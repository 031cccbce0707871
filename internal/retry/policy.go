package retry

import (
	"errors"
	"math"
	"time"

	"likevault/internal/config"
)

// Policy bounds a retry run.
type Policy struct {
	MaxRetries   int
	AlertAfter   int
	InitialDelay time.Duration
	Multiplier   float64
}

// PolicyFromConfig builds a policy from the [retry] section.
func PolicyFromConfig(cfg *config.Config) Policy {
	if cfg == nil {
		return DefaultPolicy()
	}
	return Policy{
		MaxRetries:   cfg.Retry.MaxRetries,
		AlertAfter:   cfg.Retry.AlertAfterRetry,
		InitialDelay: cfg.RetryInitialDelay(),
		Multiplier:   cfg.Retry.BackoffMultiplier,
	}
}

// DefaultPolicy mirrors the shipped configuration: 15 attempts, warn after 5,
// 60s initial delay growing by 1.5.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 15, AlertAfter: 5, InitialDelay: time.Minute, Multiplier: 1.5}
}

// Validate rejects policies that could never run or never stop.
func (p Policy) Validate() error {
	switch {
	case p.MaxRetries < 1:
		return errors.New("retry: max retries must be at least 1")
	case p.AlertAfter < 1:
		return errors.New("retry: alert-after must be at least 1")
	case p.InitialDelay < 0:
		return errors.New("retry: initial delay must not be negative")
	case p.Multiplier < 1:
		return errors.New("retry: multiplier must be at least 1")
	}
	return nil
}

// Delay returns the wait after the given failed attempt (1-based):
// InitialDelay * Multiplier^(attempt-1).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	scaled := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if scaled > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(scaled)
}
