// Package retry provides exponential backoff for reconnecting transports.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Config configures retry behavior with exponential backoff
type Config struct {
	MaxRetries int           `koanf:"max_retries"` // 0 retries forever
	BaseDelay  time.Duration `koanf:"base_delay"`
	MaxDelay   time.Duration `koanf:"max_delay"`
	Multiplier float64       `koanf:"multiplier"`
	Jitter     bool          `koanf:"jitter"` // +/-10% random jitter
}

// Result contains information about the retry operation
type Result struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
	Success       bool
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// ReconnectConfig never gives up and caps the wait at a minute.
func ReconnectConfig() Config {
	return Config{
		MaxRetries: 0,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   time.Minute,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Delay returns the wait before the given zero-based retry attempt:
// BaseDelay * Multiplier^attempt, capped at MaxDelay.
func (c Config) Delay(attempt int) time.Duration {
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(c.BaseDelay) * math.Pow(mult, float64(attempt))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(c.BaseDelay)
		}
	}
	return time.Duration(delay)
}

// Do runs operation until it succeeds, retries run out, or ctx is done.
func Do(ctx context.Context, cfg Config, operation func(ctx context.Context) error, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	var result Result

	for attempt := 0; ; attempt++ {
		result.Attempts = attempt + 1

		err := operation(ctx)
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(start)
			if attempt > 0 {
				logger.Debug("operation succeeded after retries",
					zap.Int("retries", attempt),
					zap.Duration("total_duration", result.TotalDuration),
				)
			}
			return result
		}
		result.LastError = err

		if cfg.MaxRetries > 0 && attempt >= cfg.MaxRetries {
			result.TotalDuration = time.Since(start)
			logger.Warn("operation failed, retries exhausted",
				zap.Int("attempts", result.Attempts),
				zap.Error(err),
			)
			return result
		}

		delay := cfg.Delay(attempt)
		logger.Debug("operation failed, backing off",
			zap.Int("attempt", result.Attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		case <-timer.C:
		}
	}
}
