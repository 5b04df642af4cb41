package monitor

import (
	"context"
	"fmt"
	"time"

	"taskpulse/internal/model"
	"taskpulse/internal/recovery"
	"taskpulse/internal/resultcache"
	"taskpulse/pkg/config"
	"taskpulse/pkg/logger"
)

// Monitor produces read-only metric aggregations over the result cache
// and live broker introspection. Reads are lock-free, eventually
// consistent snapshots: totals and rates can be approximate under
// concurrent writes, which is acceptable for a monitoring surface.
type Monitor struct {
	cache       *resultcache.Cache
	failures    *recovery.Store
	broker      BrokerIntrospector // may be nil when introspection is unavailable
	sampleLimit int
}

// New creates a monitor.
func New(cache *resultcache.Cache, failures *recovery.Store, broker BrokerIntrospector, cfg *config.MonitorConfig) *Monitor {
	return &Monitor{
		cache:       cache,
		failures:    failures,
		broker:      broker,
		sampleLimit: cfg.SampleLimit,
	}
}

// windowResults returns cached results whose execution started within
// the trailing window, from a bounded recent-results sample.
func (m *Monitor) windowResults(ctx context.Context, hours int) []*model.TaskResult {
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	recent := m.cache.RecentResults(ctx, m.sampleLimit)

	windowed := make([]*model.TaskResult, 0, len(recent))
	for _, r := range recent {
		if r.StartedAt != nil && !r.StartedAt.Before(cutoff) {
			windowed = append(windowed, r)
		}
	}
	return windowed
}

func aggregate(results []*model.TaskResult) *TaskMetrics {
	metrics := &TaskMetrics{}
	if len(results) == 0 {
		return metrics
	}

	var execTotal time.Duration
	var execCount int
	for _, r := range results {
		metrics.TotalTasks++
		switch r.Status {
		case model.TaskStatusSuccess:
			metrics.Successful++
		case model.TaskStatusFailure:
			metrics.Failed++
		case model.TaskStatusProgress:
			metrics.InProgress++
		}
		if r.StartedAt != nil && r.CompletedAt != nil {
			execTotal += r.CompletedAt.Sub(*r.StartedAt)
			execCount++
		}
	}

	metrics.SuccessRate = float64(metrics.Successful) / float64(metrics.TotalTasks) * 100
	metrics.FailureRate = float64(metrics.Failed) / float64(metrics.TotalTasks) * 100
	if execCount > 0 {
		metrics.AvgExecutionSeconds = execTotal.Seconds() / float64(execCount)
	}
	return metrics
}

// OverallMetrics aggregates outcomes for the trailing window. Returns a
// zero-valued struct when no records match.
func (m *Monitor) OverallMetrics(ctx context.Context, hours int) *TaskMetrics {
	return aggregate(m.windowResults(ctx, hours))
}

// TaskTypeMetrics aggregates the same window grouped by task name.
func (m *Monitor) TaskTypeMetrics(ctx context.Context, hours int) map[string]*TaskMetrics {
	grouped := make(map[string][]*model.TaskResult)
	for _, r := range m.windowResults(ctx, hours) {
		grouped[r.TaskName] = append(grouped[r.TaskName], r)
	}

	metrics := make(map[string]*TaskMetrics, len(grouped))
	for name, results := range grouped {
		metrics[name] = aggregate(results)
	}
	return metrics
}

// WorkerMetrics reports the broker's live worker processes. Empty when
// introspection is unavailable.
func (m *Monitor) WorkerMetrics(ctx context.Context) []WorkerMetrics {
	if m.broker == nil {
		return []WorkerMetrics{}
	}

	servers, err := m.broker.Servers()
	if err != nil {
		logger.WarnCtx(ctx, "broker introspection unavailable listing workers: %v", err)
		return []WorkerMetrics{}
	}

	workers := make([]WorkerMetrics, 0, len(servers))
	for _, srv := range servers {
		workers = append(workers, WorkerMetrics{
			ID:          fmt.Sprintf("%s:%d", srv.Host, srv.PID),
			Status:      srv.Status,
			Concurrency: srv.Concurrency,
			ActiveTasks: len(srv.ActiveWorkers),
			Queues:      srv.Queues,
			StartedAt:   srv.Started,
		})
	}
	return workers
}

// QueueMetrics reports pending/active depth and task-type counts per
// queue, plus how many servers consume each queue.
func (m *Monitor) QueueMetrics(ctx context.Context) map[string]*QueueMetrics {
	metrics := make(map[string]*QueueMetrics)
	if m.broker == nil {
		return metrics
	}

	queues, err := m.broker.Queues()
	if err != nil {
		logger.WarnCtx(ctx, "broker introspection unavailable listing queues: %v", err)
		return metrics
	}

	servers, err := m.broker.Servers()
	if err != nil {
		logger.WarnCtx(ctx, "broker introspection unavailable counting queue workers: %v", err)
		servers = nil
	}

	for _, queue := range queues {
		info, err := m.broker.GetQueueInfo(queue)
		if err != nil {
			logger.WarnCtx(ctx, "failed to inspect queue %s: %v", queue, err)
			continue
		}

		qm := &QueueMetrics{
			Pending:        info.Pending,
			Active:         info.Active,
			Scheduled:      info.Scheduled,
			Retry:          info.Retry,
			TaskTypeCounts: make(map[string]int),
		}
		for _, srv := range servers {
			if _, ok := srv.Queues[queue]; ok {
				qm.Workers++
			}
		}

		// Task-type breakdown over reserved and queued jobs
		if pending, err := m.broker.ListPendingTasks(queue); err == nil {
			for _, task := range pending {
				qm.TaskTypeCounts[task.Type]++
			}
		}
		if active, err := m.broker.ListActiveTasks(queue); err == nil {
			for _, task := range active {
				qm.TaskTypeCounts[task.Type]++
			}
		}

		metrics[queue] = qm
	}
	return metrics
}

// PerformanceTrends partitions the trailing window into fixed-width
// buckets and aggregates each bucket independently, oldest first.
func (m *Monitor) PerformanceTrends(ctx context.Context, hours, intervalMinutes int) *Trends {
	trends := &Trends{IntervalMinutes: intervalMinutes}
	if hours <= 0 || intervalMinutes <= 0 {
		return trends
	}

	interval := time.Duration(intervalMinutes) * time.Minute
	now := time.Now()
	window := time.Duration(hours) * time.Hour
	windowStart := now.Add(-window)
	// Round up so a remainder window still gets a (shorter) final bucket.
	bucketCount := int((window + interval - 1) / interval)

	results := m.windowResults(ctx, hours)

	for i := 0; i < bucketCount; i++ {
		bucketStart := windowStart.Add(time.Duration(i) * interval)
		bucketEnd := bucketStart.Add(interval)
		if bucketEnd.After(now) {
			bucketEnd = now
		}

		var bucket []*model.TaskResult
		for _, r := range results {
			if !r.StartedAt.Before(bucketStart) && r.StartedAt.Before(bucketEnd) {
				bucket = append(bucket, r)
			}
		}
		agg := aggregate(bucket)

		trends.Timestamps = append(trends.Timestamps, bucketStart)
		trends.Total = append(trends.Total, agg.TotalTasks)
		trends.Successful = append(trends.Successful, agg.Successful)
		trends.Failed = append(trends.Failed, agg.Failed)
		trends.AvgExecutionSeconds = append(trends.AvgExecutionSeconds, agg.AvgExecutionSeconds)
	}
	return trends
}

// FailureStatistics exposes the failure store tabulation for the API surface.
func (m *Monitor) FailureStatistics(ctx context.Context, hours int) *recovery.Statistics {
	return m.failures.Statistics(ctx, hours)
}

// ComprehensiveReport bundles every metric surface plus derived
// insights. Each section is computed behind its own recover guard so a
// broken metric degrades the report instead of aborting it.
func (m *Monitor) ComprehensiveReport(ctx context.Context, hours int) *Report {
	report := &Report{
		GeneratedAt: time.Now(),
		WindowHours: hours,
		TaskTypes:   make(map[string]*TaskMetrics),
		Workers:     []WorkerMetrics{},
		Queues:      make(map[string]*QueueMetrics),
	}

	m.section(ctx, "overall", func() { report.Overall = m.OverallMetrics(ctx, hours) })
	m.section(ctx, "task_types", func() { report.TaskTypes = m.TaskTypeMetrics(ctx, hours) })
	m.section(ctx, "workers", func() { report.Workers = m.WorkerMetrics(ctx) })
	m.section(ctx, "queues", func() { report.Queues = m.QueueMetrics(ctx) })
	m.section(ctx, "failures", func() { report.Failures = m.failures.Statistics(ctx, hours) })
	m.section(ctx, "cache", func() { report.CacheStats = m.cache.CacheStats(ctx) })
	m.section(ctx, "insights", func() { report.Insights = generateInsights(report) })

	if report.Insights == nil {
		report.Insights = []Insight{}
	}
	return report
}

func (m *Monitor) section(ctx context.Context, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "report section %s failed: %v", name, r)
		}
	}()
	fn()
}
