package infra_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"michi-relay/internal/infra"
)

func fastRetry(attempts int) infra.RetryConfig {
	return infra.RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry_EventuallySucceeds(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastRetry(5)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := infra.WithRetry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestWithRetry_GivesUp(t *testing.T) {
	calls := 0
	err := infra.WithRetry(context.Background(), fastRetry(3), func() error {
		calls++
		return errors.New("connection refused")
	})

	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, 3, calls)
}

func TestWithRetry_Permanent(t *testing.T) {
	authErr := errors.New("access denied for user 'root'")
	calls := 0
	err := infra.WithRetry(context.Background(), fastRetry(5), func() error {
		calls++
		return infra.Permanent(authErr)
	})

	assert.ErrorIs(t, err, authErr)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := fastRetry(5)
	cfg.InitialDelay = time.Hour
	err := infra.WithRetry(ctx, cfg, func() error { return errors.New("timeout") })

	assert.ErrorIs(t, err, context.Canceled)
}
