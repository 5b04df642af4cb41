package monitor

import (
	"time"

	"taskpulse/internal/recovery"
	"taskpulse/internal/resultcache"
)

// TaskMetrics aggregates execution outcomes over a trailing window.
// Computed on read, never persisted.
type TaskMetrics struct {
	TotalTasks          int     `json:"total_tasks"`
	Successful          int     `json:"successful"`
	Failed              int     `json:"failed"`
	InProgress          int     `json:"in_progress"`
	SuccessRate         float64 `json:"success_rate"`          // percent
	FailureRate         float64 `json:"failure_rate"`          // percent
	AvgExecutionSeconds float64 `json:"avg_execution_seconds"` // over records with both timestamps
}

// WorkerMetrics describes one live broker worker process. Resource
// figures are optional and omitted when the broker does not expose them.
type WorkerMetrics struct {
	ID             string         `json:"id"` // host:pid
	Status         string         `json:"status"`
	Concurrency    int            `json:"concurrency"`
	ActiveTasks    int            `json:"active_tasks"`
	ProcessedTasks int            `json:"processed_tasks,omitempty"`
	MemoryUsageMB  float64        `json:"memory_usage_mb,omitempty"`
	CPUSeconds     float64        `json:"cpu_seconds,omitempty"`
	Queues         map[string]int `json:"queues,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
}

// QueueMetrics describes one broker queue.
type QueueMetrics struct {
	Pending        int            `json:"pending"`
	Active         int            `json:"active"`
	Scheduled      int            `json:"scheduled"`
	Retry          int            `json:"retry"`
	Workers        int            `json:"workers"` // servers consuming this queue
	TaskTypeCounts map[string]int `json:"task_type_counts"`
}

// Trends holds fixed-width bucketed aggregates in chronological order.
// Index i of every slice describes the bucket starting at Timestamps[i].
type Trends struct {
	IntervalMinutes     int         `json:"interval_minutes"`
	Timestamps          []time.Time `json:"timestamps"`
	Total               []int       `json:"total"`
	Successful          []int       `json:"successful"`
	Failed              []int       `json:"failed"`
	AvgExecutionSeconds []float64   `json:"avg_execution_seconds"`
}

// Insight is a rule-derived operational observation.
type Insight struct {
	Type           string `json:"type"` // critical, warning, positive
	Category       string `json:"category"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// Report bundles every metric surface into one operator document.
// Sections are computed independently: a broken metric leaves its
// section empty rather than aborting the report.
type Report struct {
	GeneratedAt time.Time                `json:"generated_at"`
	WindowHours int                      `json:"window_hours"`
	Overall     *TaskMetrics             `json:"overall"`
	TaskTypes   map[string]*TaskMetrics  `json:"task_types"`
	Workers     []WorkerMetrics          `json:"workers"`
	Queues      map[string]*QueueMetrics `json:"queues"`
	Failures    *recovery.Statistics     `json:"failures"`
	CacheStats  *resultcache.Stats       `json:"cache_stats"`
	Insights    []Insight                `json:"insights"`
}
