package model

import (
	"encoding/json"
	"time"
)

// FailureType failure category used by the recovery policy
type FailureType string

const (
	FailureTimeout    FailureType = "TIMEOUT"
	FailureNetwork    FailureType = "NETWORK_ERROR"
	FailureDatabase   FailureType = "DATABASE_ERROR"
	FailureValidation FailureType = "VALIDATION_ERROR"
	FailureResource   FailureType = "RESOURCE_ERROR"
	FailureUnknown    FailureType = "UNKNOWN_ERROR"
)

func (t FailureType) String() string {
	return string(t)
}

// Advice returns operator guidance for a failure category, used in
// alerts and failure listings.
func (t FailureType) Advice() string {
	switch t {
	case FailureTimeout:
		return "Check whether the task payload grew or a downstream dependency slowed down; consider raising the task timeout"
	case FailureNetwork:
		return "Check connectivity to the broker and downstream services; transient network errors usually clear on retry"
	case FailureDatabase:
		return "Check database health and connection pool sizing; deadlocks and pool exhaustion are retried automatically"
	case FailureValidation:
		return "Fix the task payload; validation failures are never retried"
	case FailureResource:
		return "Check worker memory and disk headroom; resource failures back off for several minutes before retrying"
	default:
		return "Inspect the error message and traceback; unclassified failures get at most two retries"
	}
}

// FailureRecord is written once per failed attempt, so a task retried
// twice leaves up to three records behind.
type FailureRecord struct {
	TaskID       string                 `json:"task_id"`
	TaskName     string                 `json:"task_name"`
	FailureType  FailureType            `json:"failure_type"`
	ErrorMessage string                 `json:"error_message"`
	RetryCount   int                    `json:"retry_count"`
	MaxRetries   int                    `json:"max_retries"`
	FailedAt     time.Time              `json:"failed_at"`
	Worker       string                 `json:"worker,omitempty"`
	Args         map[string]interface{} `json:"args,omitempty"`
	Traceback    string                 `json:"traceback,omitempty"`
}

// ToJSON converts the record to JSON bytes
func (r *FailureRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON converts JSON bytes to a record
func (r *FailureRecord) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}

// FailureContext carries what the broker's failure signal exposes about
// the failed execution. RetryCount is best-effort: the global failure
// signal does not always carry it, in which case it stays 0.
type FailureContext struct {
	TaskID     string
	TaskName   string
	Worker     string
	RetryCount int
	MaxRetries int
	Args       map[string]interface{}
}
