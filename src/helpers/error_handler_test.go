package helpers

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNonRetryableClassification(t *testing.T) {
	plain := errors.New("db locked")
	assert.False(t, IsNonRetryable(plain))

	marked := NonRetryable(errors.New("signal 42 not found"))
	assert.True(t, IsNonRetryable(marked))
	assert.Equal(t, "signal 42 not found", marked.Error())

	// The marker must survive further wrapping.
	wrapped := fmt.Errorf("processing failed: %w", marked)
	assert.True(t, IsNonRetryable(wrapped))
}

func TestNonRetryableNil(t *testing.T) {
	assert.Nil(t, NonRetryable(nil))
}

func TestSignalRelayErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &NetworkError{SignalRelayError{Message: "telegram send failed", Cause: cause}}

	assert.Equal(t, "telegram send failed: connection refused", err.Error())
	assert.True(t, errors.Is(err, cause))

	bare := &ValidationError{SignalRelayError{Message: "price must be positive"}}
	assert.Equal(t, "price must be positive", bare.Error())
}

func TestRetryWithBackoffEventualSuccess(t *testing.T) {
	calls := 0
	res, err := RetryWithBackoff("ping", 5, time.Millisecond, func() (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("not yet")
		}
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffExhausted(t *testing.T) {
	calls := 0
	res, err := RetryWithBackoff("ping", 3, time.Millisecond, func() (interface{}, error) {
		calls++
		return nil, fmt.Errorf("attempt %d failed", calls)
	})

	assert.Nil(t, res)
	assert.EqualError(t, err, "attempt 3 failed")
	assert.Equal(t, 3, calls)
}
