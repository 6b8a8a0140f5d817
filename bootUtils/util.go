package bootUtils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nsa-yoda/ReplyXL/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func GetEnvOrDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryWithExponentialBackoff calls fn up to maxRetries times, doubling the
// wait after every failure. An error wrapped with Permanent ends the loop
// immediately and is returned unwrapped.
func RetryWithExponentialBackoff(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	limiter := rate.NewLimiter(rate.Every(baseDelay), 1)
	retries := 0

	var lastErr error
	for retries < maxRetries {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		logger.Warn("Failed attempt", zap.Int("try", retries+1), zap.Error(err))
		lastErr = err
		retries++
		limiter.SetLimit(rate.Every(baseDelay * time.Duration(1<<retries)))
	}

	return fmt.Errorf("all %d attempts failed: %w", maxRetries, lastErr)
}
