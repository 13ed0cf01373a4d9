package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Delay(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestConfig_DelayJitter(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, Jitter: true}

	for i := 0; i < 50; i++ {
		d := cfg.Delay(1)
		assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
		assert.LessOrEqual(t, d, 2200*time.Millisecond)
	}
}

func TestConfig_DelayMultiplierFloor(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, Multiplier: 0}
	assert.Equal(t, time.Second, cfg.Delay(5))
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	cfg := Config{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	calls := 0

	result := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
}

func TestDo_Exhausted(t *testing.T) {
	cfg := Config{MaxRetries: 2, BaseDelay: time.Millisecond, Multiplier: 1}
	boom := errors.New("boom")

	result := Do(context.Background(), cfg, func(ctx context.Context) error { return boom }, nil)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.ErrorIs(t, result.LastError, boom)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{BaseDelay: time.Hour, Multiplier: 1}

	result := Do(ctx, cfg, func(ctx context.Context) error {
		cancel()
		return errors.New("down")
	}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}
