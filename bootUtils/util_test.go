package bootUtils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvOrDefault(t *testing.T) {
	key := "IMAGIZE_TEST_ENV_VAR"

	t.Run("EnvironmentVariableSet", func(t *testing.T) {
		t.Setenv(key, "value_from_env")
		require.Equal(t, "value_from_env", GetEnvOrDefault(key, "default_value"))
	})

	t.Run("EnvironmentVariableNotSet", func(t *testing.T) {
		require.Equal(t, "default_value", GetEnvOrDefault(key, "default_value"))
	})

	t.Run("EmptyEnvironmentVariable", func(t *testing.T) {
		t.Setenv(key, "")
		require.Equal(t, "", GetEnvOrDefault(key, "default_value"))
	})
}

func TestRetryWithExponentialBackoff_SucceedsAfterRetries(t *testing.T) {
	var tries int
	err := RetryWithExponentialBackoff(context.Background(), 5, time.Millisecond, func() error {
		tries++
		if tries < 3 {
			return errors.New("boom")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, tries)
}

func TestRetryWithExponentialBackoff_ExhaustsAndFails(t *testing.T) {
	var tries int
	last := errors.New("always")
	err := RetryWithExponentialBackoff(context.Background(), 4, time.Millisecond, func() error {
		tries++
		return last
	})

	assert.ErrorIs(t, err, last)
	assert.Contains(t, err.Error(), "all 4 attempts failed")
	assert.Equal(t, 4, tries)
}

func TestRetryWithExponentialBackoff_PermanentStopsEarly(t *testing.T) {
	var tries int
	bad := errors.New("bad input")
	err := RetryWithExponentialBackoff(context.Background(), 5, time.Millisecond, func() error {
		tries++
		return Permanent(bad)
	})

	assert.Equal(t, bad, err)
	assert.Equal(t, 1, tries)
}

func TestRetryWithExponentialBackoff_ZeroRetriesRunsOnce(t *testing.T) {
	var tries int
	err := RetryWithExponentialBackoff(context.Background(), 0, time.Millisecond, func() error {
		tries++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, tries)
}

func TestRetryWithExponentialBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := RetryWithExponentialBackoff(ctx, 10, 10*time.Millisecond, func() error {
		return errors.New("never called")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestPermanent_Nil(t *testing.T) {
	assert.Nil(t, Permanent(nil))
}
