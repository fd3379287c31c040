package common

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestShouldRetry(t *testing.T) {
	p := NewRetryPolicy()

	assert.True(t, p.ShouldRetry(0, 503, nil))
	assert.True(t, p.ShouldRetry(0, 429, nil))
	assert.True(t, p.ShouldRetry(0, 500, nil))
	assert.False(t, p.ShouldRetry(0, 404, nil))
	assert.False(t, p.ShouldRetry(0, 401, nil))
	assert.False(t, p.ShouldRetry(0, 200, nil))

	// Attempt cap beats everything
	assert.False(t, p.ShouldRetry(p.MaxAttempts, 503, nil))

	assert.True(t, p.ShouldRetry(0, 0, context.DeadlineExceeded))
	assert.False(t, p.ShouldRetry(0, 0, errors.New("plain error")))
}

func TestCalculateBackoff_Bounds(t *testing.T) {
	p := NewRetryPolicy()

	// Jitter is ±25%, so every attempt stays within those bounds
	for attempt := 0; attempt < 10; attempt++ {
		backoff := p.CalculateBackoff(attempt)
		assert.Greater(t, backoff, time.Duration(0))
		assert.LessOrEqual(t, backoff, time.Duration(float64(p.MaxBackoff)*1.25))
	}

	first := p.CalculateBackoff(0)
	assert.GreaterOrEqual(t, first, time.Duration(float64(p.InitialBackoff)*0.75))
	assert.LessOrEqual(t, first, time.Duration(float64(p.InitialBackoff)*1.25))
}

func TestNewATSRetryPolicy(t *testing.T) {
	p := NewATSRetryPolicy()
	assert.Equal(t, 6, p.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, 30*time.Second, p.MaxBackoff)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), RetryAfter(nil))

	resp := &http.Response{Header: http.Header{}}
	assert.Equal(t, time.Duration(0), RetryAfter(resp))

	resp.Header.Set("Retry-After", "7")
	assert.Equal(t, 7*time.Second, RetryAfter(resp))

	resp.Header.Set("Retry-After", "garbage")
	assert.Equal(t, time.Duration(0), RetryAfter(resp))
}

func TestExecuteWithRetry_SucceedsAfterTransientFailure(t *testing.T) {
	p := NewRetryPolicy()
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 5 * time.Millisecond

	calls := 0
	status, err := p.ExecuteWithRetry(context.Background(), arbor.NewLogger(), func() (int, time.Duration, error) {
		calls++
		if calls < 3 {
			return 503, 0, nil
		}
		return 200, 0, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_NonRetryableFailsFast(t *testing.T) {
	p := NewRetryPolicy()

	calls := 0
	status, err := p.ExecuteWithRetry(context.Background(), arbor.NewLogger(), func() (int, time.Duration, error) {
		calls++
		return 404, 0, errors.New("not found")
	})

	assert.Error(t, err)
	assert.Equal(t, 404, status)
	assert.Equal(t, 1, calls)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 90*time.Second, ParseDuration("90s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("not-a-duration", time.Minute))
}
