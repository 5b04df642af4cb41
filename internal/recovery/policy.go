package recovery

import (
	"strings"
	"time"

	"taskpulse/internal/model"
)

// Backoff policy per failure category. Delays are what this layer
// recommends; scheduling the re-delivery is the broker's job.
const (
	timeoutBaseDelay  = 60 * time.Second
	timeoutMaxDelay   = 300 * time.Second
	networkBaseDelay  = 120 * time.Second
	networkMaxDelay   = 600 * time.Second
	databaseBaseDelay = 30 * time.Second
	databaseMaxDelay  = 180 * time.Second
	resourceBaseDelay = 300 * time.Second
	resourceMaxDelay  = 1800 * time.Second
	unknownBaseDelay  = 60 * time.Second
	unknownMaxRetries = 2
)

// transientDatabaseMarkers gate database-error retries: only failures
// that look transient are worth re-running.
var transientDatabaseMarkers = []string{"deadlock", "connection pool", "timeout"}

// Decide returns whether a failed attempt should be retried and with
// what delay, given its category and retry history.
func Decide(failureType model.FailureType, retryCount, maxRetries int, errMsg string) (bool, time.Duration) {
	switch failureType {
	case model.FailureTimeout:
		if retryCount >= maxRetries {
			return false, 0
		}
		// Exponential backoff: 60s, 120s, 240s, capped
		delay := timeoutBaseDelay << retryCount
		if delay > timeoutMaxDelay {
			delay = timeoutMaxDelay
		}
		return true, delay

	case model.FailureNetwork:
		if retryCount >= maxRetries {
			return false, 0
		}
		delay := networkBaseDelay * time.Duration(retryCount+1)
		if delay > networkMaxDelay {
			delay = networkMaxDelay
		}
		return true, delay

	case model.FailureDatabase:
		if retryCount >= maxRetries || !isTransientDatabaseError(errMsg) {
			return false, 0
		}
		delay := databaseBaseDelay * time.Duration(retryCount+1)
		if delay > databaseMaxDelay {
			delay = databaseMaxDelay
		}
		return true, delay

	case model.FailureValidation:
		// Bad input does not get better on retry
		return false, 0

	case model.FailureResource:
		if retryCount >= maxRetries {
			return false, 0
		}
		delay := resourceBaseDelay * time.Duration(retryCount+1)
		if delay > resourceMaxDelay {
			delay = resourceMaxDelay
		}
		return true, delay

	default: // UNKNOWN_ERROR
		limit := maxRetries
		if limit > unknownMaxRetries {
			limit = unknownMaxRetries
		}
		if retryCount >= limit {
			return false, 0
		}
		return true, unknownBaseDelay * time.Duration(retryCount+1)
	}
}

func isTransientDatabaseError(errMsg string) bool {
	lowered := strings.ToLower(errMsg)
	for _, marker := range transientDatabaseMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
