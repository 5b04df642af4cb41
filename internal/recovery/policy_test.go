package recovery

import (
	"testing"
	"time"

	"taskpulse/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestDecideTimeoutBackoff(t *testing.T) {
	// Exponential: 60s, 120s, 240s, then capped at 300s
	tests := []struct {
		retryCount int
		wantDelay  time.Duration
	}{
		{0, 60 * time.Second},
		{1, 120 * time.Second},
		{2, 240 * time.Second},
		{3, 300 * time.Second},
		{4, 300 * time.Second},
	}
	for _, tt := range tests {
		retry, delay := Decide(model.FailureTimeout, tt.retryCount, 10, "timeout")
		assert.True(t, retry)
		assert.Equal(t, tt.wantDelay, delay, "retryCount=%d", tt.retryCount)
	}
}

func TestDecideNetworkBackoff(t *testing.T) {
	// Linear: 120s, 240s, ..., capped at 600s
	retry, delay := Decide(model.FailureNetwork, 0, 3, "connection refused")
	assert.True(t, retry)
	assert.Equal(t, 120*time.Second, delay)

	retry, delay = Decide(model.FailureNetwork, 1, 5, "connection refused")
	assert.True(t, retry)
	assert.Equal(t, 240*time.Second, delay)

	retry, delay = Decide(model.FailureNetwork, 9, 20, "connection refused")
	assert.True(t, retry)
	assert.Equal(t, 600*time.Second, delay)
}

func TestDecideDatabaseTransientGate(t *testing.T) {
	// Only failures carrying a transient marker are retried
	retry, delay := Decide(model.FailureDatabase, 0, 3, "deadlock detected")
	assert.True(t, retry)
	assert.Equal(t, 30*time.Second, delay)

	retry, _ = Decide(model.FailureDatabase, 0, 3, "connection pool exhausted")
	assert.True(t, retry)

	retry, delay = Decide(model.FailureDatabase, 0, 3, "syntax error in query")
	assert.False(t, retry)
	assert.Zero(t, delay)

	// Cap at 180s
	_, delay = Decide(model.FailureDatabase, 9, 20, "deadlock")
	assert.Equal(t, 180*time.Second, delay)
}

func TestDecideValidationNeverRetries(t *testing.T) {
	for _, retryCount := range []int{0, 1, 2, 10} {
		retry, delay := Decide(model.FailureValidation, retryCount, 100, "invalid input")
		assert.False(t, retry)
		assert.Zero(t, delay)
	}
}

func TestDecideResourceBackoff(t *testing.T) {
	retry, delay := Decide(model.FailureResource, 0, 3, "out of memory")
	assert.True(t, retry)
	assert.Equal(t, 300*time.Second, delay)

	retry, delay = Decide(model.FailureResource, 2, 5, "out of memory")
	assert.True(t, retry)
	assert.Equal(t, 900*time.Second, delay)

	_, delay = Decide(model.FailureResource, 9, 20, "out of memory")
	assert.Equal(t, 1800*time.Second, delay)
}

func TestDecideUnknownCappedAtTwoRetries(t *testing.T) {
	retry, delay := Decide(model.FailureUnknown, 0, 10, "mystery")
	assert.True(t, retry)
	assert.Equal(t, 60*time.Second, delay)

	retry, delay = Decide(model.FailureUnknown, 1, 10, "mystery")
	assert.True(t, retry)
	assert.Equal(t, 120*time.Second, delay)

	// Even with a generous max, unknown errors stop after two retries
	retry, _ = Decide(model.FailureUnknown, 2, 10, "mystery")
	assert.False(t, retry)

	// A tighter max wins over the unknown cap
	retry, _ = Decide(model.FailureUnknown, 1, 1, "mystery")
	assert.False(t, retry)
}

func TestDecideExhaustedRetriesNeverRetry(t *testing.T) {
	types := []model.FailureType{
		model.FailureTimeout,
		model.FailureNetwork,
		model.FailureDatabase,
		model.FailureResource,
		model.FailureUnknown,
	}
	for _, ft := range types {
		retry, _ := Decide(ft, 3, 3, "deadlock timeout connection")
		assert.False(t, retry, "type=%s", ft)
	}
}

func TestConnectionRefusedScenario(t *testing.T) {
	// First failure of a network error with retries remaining
	ft := Classify("Connection refused")
	assert.Equal(t, model.FailureNetwork, ft)

	retry, delay := Decide(ft, 0, 3, "Connection refused")
	assert.True(t, retry)
	assert.Equal(t, 120*time.Second, delay)
}
