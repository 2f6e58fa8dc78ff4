package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	r := New(&Config{MaxRetries: -1, JitterFactor: 3})

	assert.Equal(t, 0, r.config.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, r.config.InitialInterval)
	assert.Equal(t, 2*time.Second, r.config.MaxInterval)
	assert.Equal(t, 2.0, r.config.Multiplier)
	assert.Equal(t, 1.0, r.config.JitterFactor)

	assert.NotNil(t, New(nil))
}

func TestRetrier_Do(t *testing.T) {
	t.Run("Success First Attempt", func(t *testing.T) {
		attempts := 0
		result := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		})

		require.NoError(t, result.Err)
		assert.Equal(t, 1, result.Attempts)
		assert.Equal(t, 1, attempts)
	})

	t.Run("Success After Retries", func(t *testing.T) {
		attempts := 0
		result := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		})

		require.NoError(t, result.Err)
		assert.Equal(t, 3, result.Attempts)
	})

	t.Run("Max Retries Exceeded", func(t *testing.T) {
		boom := errors.New("boom")
		result := New(fastConfig(2)).Do(context.Background(), func(ctx context.Context) error {
			return boom
		})

		assert.ErrorIs(t, result.Err, ErrMaxRetriesExceeded)
		assert.Equal(t, 3, result.Attempts)
		assert.Equal(t, boom, result.LastError)
	})

	t.Run("Permanent Error Stops Immediately", func(t *testing.T) {
		denied := errors.New("denied")
		result := New(fastConfig(5)).Do(context.Background(), func(ctx context.Context) error {
			return Permanent(denied)
		})

		assert.Equal(t, denied, result.Err)
		assert.Equal(t, 1, result.Attempts)
	})

	t.Run("Context Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result := New(fastConfig(5)).Do(ctx, func(ctx context.Context) error {
			return nil
		})

		assert.ErrorIs(t, result.Err, context.Canceled)
		assert.Equal(t, 0, result.Attempts)
	})
}

func TestRetrier_DoWithCallback(t *testing.T) {
	var seen []int
	result := New(fastConfig(2)).DoWithCallback(context.Background(),
		func(ctx context.Context) error { return errors.New("again") },
		func(attempt int, err error, wait time.Duration) {
			seen = append(seen, attempt)
			assert.LessOrEqual(t, wait, 5*time.Millisecond)
		},
	)

	assert.ErrorIs(t, result.Err, ErrMaxRetriesExceeded)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestRetrier_IntervalGrowsAndCaps(t *testing.T) {
	r := New(&Config{
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     50 * time.Millisecond,
		Multiplier:      2.0,
	})

	assert.Equal(t, 10*time.Millisecond, r.interval(0))
	assert.Equal(t, 20*time.Millisecond, r.interval(1))
	assert.Equal(t, 40*time.Millisecond, r.interval(2))
	assert.Equal(t, 50*time.Millisecond, r.interval(3))
}

func TestPermanent_Nil(t *testing.T) {
	assert.Nil(t, Permanent(nil))
}
