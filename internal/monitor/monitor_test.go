package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskpulse/internal/model"
	"taskpulse/internal/recovery"
	"taskpulse/internal/resultcache"
	"taskpulse/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	servers []*asynq.ServerInfo
	queues  map[string]*asynq.QueueInfo
	pending map[string][]*asynq.TaskInfo
	active  map[string][]*asynq.TaskInfo
	err     error
}

func (f *fakeBroker) Servers() ([]*asynq.ServerInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.servers, nil
}

func (f *fakeBroker) Queues() ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	names := make([]string, 0, len(f.queues))
	for name := range f.queues {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeBroker) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.queues[queue]
	if !ok {
		return nil, errors.New("queue not found")
	}
	return info, nil
}

func (f *fakeBroker) ListPendingTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.pending[queue], nil
}

func (f *fakeBroker) ListActiveTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.active[queue], nil
}

func newTestMonitor(t *testing.T, broker BrokerIntrospector) (*Monitor, *resultcache.Cache, *recovery.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cacheCfg := &config.CacheConfig{}
	cacheCfg.DefaultTTL = 3600
	cacheCfg.CompletedTTL = 7200
	cacheCfg.FailureTTL = 86400
	cacheCfg.StatsSampleSize = 100

	cache := resultcache.New(rdb, cacheCfg)
	failures := recovery.NewStore(rdb, cacheCfg)
	m := New(cache, failures, broker, &config.MonitorConfig{SampleLimit: 10000})
	return m, cache, failures, mr
}

func seedResult(t *testing.T, cache *resultcache.Cache, id, name string, status model.TaskStatus, startedAgo, duration time.Duration) {
	t.Helper()
	started := time.Now().Add(-startedAgo)
	result := &model.TaskResult{
		TaskID:    id,
		TaskName:  name,
		Status:    status,
		StartedAt: &started,
	}
	if status.Final() {
		completed := started.Add(duration)
		result.CompletedAt = &completed
		result.Progress = 100
	}
	require.True(t, cache.Store(context.Background(), result))
}

func TestOverallMetricsKnownDistribution(t *testing.T) {
	m, cache, _, _ := newTestMonitor(t, nil)
	ctx := context.Background()

	// 8 successes and 2 failures inside the 24h window, durations 10s..100s
	durations := make([]time.Duration, 10)
	for i := range durations {
		durations[i] = time.Duration(i+1) * 10 * time.Second
	}
	for i := 0; i < 8; i++ {
		seedResult(t, cache, string(rune('a'+i)), "render_document", model.TaskStatusSuccess, time.Hour, durations[i])
	}
	seedResult(t, cache, "y1", "render_document", model.TaskStatusFailure, time.Hour, durations[8])
	seedResult(t, cache, "y2", "render_document", model.TaskStatusFailure, time.Hour, durations[9])

	metrics := m.OverallMetrics(ctx, 24)
	require.NotNil(t, metrics)
	assert.Equal(t, 10, metrics.TotalTasks)
	assert.Equal(t, 8, metrics.Successful)
	assert.Equal(t, 2, metrics.Failed)
	assert.InDelta(t, 80.0, metrics.SuccessRate, 1e-9)
	assert.InDelta(t, 20.0, metrics.FailureRate, 1e-9)
	// Mean of 10s..100s is 55s
	assert.InDelta(t, 55.0, metrics.AvgExecutionSeconds, 0.5)
}

func TestOverallMetricsEmptyWindow(t *testing.T) {
	m, _, _, _ := newTestMonitor(t, nil)

	metrics := m.OverallMetrics(context.Background(), 24)
	require.NotNil(t, metrics)
	assert.Zero(t, metrics.TotalTasks)
	assert.Zero(t, metrics.SuccessRate)
	assert.Zero(t, metrics.AvgExecutionSeconds)
}

func TestOverallMetricsExcludesOldResults(t *testing.T) {
	m, cache, _, _ := newTestMonitor(t, nil)

	seedResult(t, cache, "recent", "x", model.TaskStatusSuccess, 30*time.Minute, time.Second)
	seedResult(t, cache, "ancient", "x", model.TaskStatusSuccess, 48*time.Hour, time.Second)

	metrics := m.OverallMetrics(context.Background(), 1)
	assert.Equal(t, 1, metrics.TotalTasks)
}

func TestTaskTypeMetricsGrouping(t *testing.T) {
	m, cache, _, _ := newTestMonitor(t, nil)

	seedResult(t, cache, "r1", "render_document", model.TaskStatusSuccess, time.Hour, 20*time.Second)
	seedResult(t, cache, "r2", "render_document", model.TaskStatusFailure, time.Hour, 5*time.Second)
	seedResult(t, cache, "n1", "send_notification", model.TaskStatusSuccess, time.Hour, time.Second)

	byType := m.TaskTypeMetrics(context.Background(), 24)
	require.Len(t, byType, 2)
	require.Contains(t, byType, "render_document")
	require.Contains(t, byType, "send_notification")
	assert.Equal(t, 2, byType["render_document"].TotalTasks)
	assert.Equal(t, 1, byType["render_document"].Failed)
	assert.Equal(t, 1, byType["send_notification"].Successful)
}

func TestPerformanceTrendsBucketPartition(t *testing.T) {
	m, cache, _, _ := newTestMonitor(t, nil)

	// Three results in the older hour, two in the newer hour
	seedResult(t, cache, "o1", "x", model.TaskStatusSuccess, 90*time.Minute, time.Second)
	seedResult(t, cache, "o2", "x", model.TaskStatusSuccess, 85*time.Minute, time.Second)
	seedResult(t, cache, "o3", "x", model.TaskStatusFailure, 80*time.Minute, time.Second)
	seedResult(t, cache, "n1", "x", model.TaskStatusSuccess, 30*time.Minute, time.Second)
	seedResult(t, cache, "n2", "x", model.TaskStatusFailure, 20*time.Minute, time.Second)

	trends := m.PerformanceTrends(context.Background(), 2, 60)
	require.Len(t, trends.Timestamps, 2)
	require.Len(t, trends.Total, 2)

	assert.Equal(t, 3, trends.Total[0])
	assert.Equal(t, 2, trends.Successful[0])
	assert.Equal(t, 1, trends.Failed[0])
	assert.Equal(t, 2, trends.Total[1])

	// Buckets partition the window: counts sum to the filtered total
	assert.Equal(t, 5, trends.Total[0]+trends.Total[1])
	assert.True(t, trends.Timestamps[0].Before(trends.Timestamps[1]))
}

func TestPerformanceTrendsUnevenInterval(t *testing.T) {
	m, cache, _, _ := newTestMonitor(t, nil)

	// 45m buckets over a 1h window leave a 15m remainder; a result in
	// that tail must still land in the final, shorter bucket.
	seedResult(t, cache, "early", "x", model.TaskStatusSuccess, 50*time.Minute, time.Second)
	seedResult(t, cache, "late", "x", model.TaskStatusSuccess, 5*time.Minute, time.Second)

	trends := m.PerformanceTrends(context.Background(), 1, 45)
	require.Len(t, trends.Timestamps, 2)

	assert.Equal(t, 1, trends.Total[0])
	assert.Equal(t, 1, trends.Total[1])

	// Every in-window result is covered by exactly one bucket
	sum := 0
	for _, n := range trends.Total {
		sum += n
	}
	assert.Equal(t, 2, sum)
}

func TestPerformanceTrendsDegenerateArgs(t *testing.T) {
	m, _, _, _ := newTestMonitor(t, nil)

	assert.Empty(t, m.PerformanceTrends(context.Background(), 0, 60).Timestamps)
	assert.Empty(t, m.PerformanceTrends(context.Background(), 2, 0).Timestamps)
}

func TestWorkerMetrics(t *testing.T) {
	broker := &fakeBroker{
		servers: []*asynq.ServerInfo{
			{
				Host:        "host-a",
				PID:         101,
				Concurrency: 10,
				Status:      "active",
				Queues:      map[string]int{"default": 10},
				Started:     time.Now().Add(-time.Hour),
				ActiveWorkers: []*asynq.WorkerInfo{
					{TaskID: "t1", TaskType: "render_document", Queue: "default"},
					{TaskID: "t2", TaskType: "send_notification", Queue: "default"},
				},
			},
			{
				Host:        "host-b",
				PID:         202,
				Concurrency: 5,
				Status:      "active",
				Queues:      map[string]int{"default": 10, "reports": 5},
				Started:     time.Now().Add(-time.Minute),
			},
		},
	}
	m, _, _, _ := newTestMonitor(t, broker)

	workers := m.WorkerMetrics(context.Background())
	require.Len(t, workers, 2)
	assert.Equal(t, "host-a:101", workers[0].ID)
	assert.Equal(t, 2, workers[0].ActiveTasks)
	assert.Equal(t, 10, workers[0].Concurrency)
	assert.Equal(t, "host-b:202", workers[1].ID)
	assert.Equal(t, 0, workers[1].ActiveTasks)
}

func TestWorkerMetricsNoBroker(t *testing.T) {
	m, _, _, _ := newTestMonitor(t, nil)
	assert.Empty(t, m.WorkerMetrics(context.Background()))
}

func TestWorkerMetricsBrokerError(t *testing.T) {
	m, _, _, _ := newTestMonitor(t, &fakeBroker{err: errors.New("broker down")})
	assert.Empty(t, m.WorkerMetrics(context.Background()))
}

func TestQueueMetrics(t *testing.T) {
	broker := &fakeBroker{
		servers: []*asynq.ServerInfo{
			{Host: "host-a", PID: 1, Queues: map[string]int{"default": 10, "reports": 5}},
			{Host: "host-b", PID: 2, Queues: map[string]int{"default": 10}},
		},
		queues: map[string]*asynq.QueueInfo{
			"default": {Queue: "default", Pending: 4, Active: 2, Retry: 1},
			"reports": {Queue: "reports", Pending: 1},
		},
		pending: map[string][]*asynq.TaskInfo{
			"default": {
				{Type: "send_notification"},
				{Type: "send_notification"},
				{Type: "cleanup_sweep"},
			},
			"reports": {{Type: "render_document"}},
		},
		active: map[string][]*asynq.TaskInfo{
			"default": {{Type: "send_notification"}},
		},
	}
	m, _, _, _ := newTestMonitor(t, broker)

	queues := m.QueueMetrics(context.Background())
	require.Len(t, queues, 2)

	def := queues["default"]
	require.NotNil(t, def)
	assert.Equal(t, 4, def.Pending)
	assert.Equal(t, 2, def.Active)
	assert.Equal(t, 1, def.Retry)
	assert.Equal(t, 2, def.Workers)
	assert.Equal(t, 3, def.TaskTypeCounts["send_notification"])
	assert.Equal(t, 1, def.TaskTypeCounts["cleanup_sweep"])

	reports := queues["reports"]
	require.NotNil(t, reports)
	assert.Equal(t, 1, reports.Workers)
	assert.Equal(t, 1, reports.TaskTypeCounts["render_document"])
}

func TestComprehensiveReportNoWorkersCriticalInsight(t *testing.T) {
	m, cache, _, _ := newTestMonitor(t, &fakeBroker{})
	seedResult(t, cache, "t1", "x", model.TaskStatusSuccess, time.Hour, time.Second)

	report := m.ComprehensiveReport(context.Background(), 24)
	require.NotNil(t, report)

	var found bool
	for _, insight := range report.Insights {
		if insight.Type == "critical" && insight.Title == "No active workers" {
			found = true
		}
	}
	assert.True(t, found, "expected a critical no-active-workers insight, got %+v", report.Insights)
}

func TestComprehensiveReportDegradesWhenStoreDown(t *testing.T) {
	m, _, _, mr := newTestMonitor(t, nil)
	mr.Close()

	report := m.ComprehensiveReport(context.Background(), 24)
	require.NotNil(t, report)
	assert.Zero(t, report.Overall.TotalTasks)
	assert.Empty(t, report.Workers)
	// Unreachable store sections degrade to nil rather than aborting
	assert.Nil(t, report.CacheStats)
	assert.Nil(t, report.Failures)
	assert.NotNil(t, report.Insights)
}

func TestComprehensiveReportIncludesFailureStats(t *testing.T) {
	m, cache, failures, _ := newTestMonitor(t, &fakeBroker{
		servers: []*asynq.ServerInfo{
			{Host: "a", PID: 1}, {Host: "b", PID: 2},
		},
	})
	ctx := context.Background()

	seedResult(t, cache, "t1", "render_document", model.TaskStatusSuccess, time.Hour, time.Second)
	failures.Save(ctx, &model.FailureRecord{
		TaskID:       "t2",
		TaskName:     "send_notification",
		FailureType:  model.FailureNetwork,
		ErrorMessage: "connection refused",
		FailedAt:     time.Now(),
	})

	report := m.ComprehensiveReport(ctx, 24)
	require.NotNil(t, report.Failures)
	assert.Equal(t, 1, report.Failures.TotalFailures)
	assert.Equal(t, 1, report.Failures.FailureTypes["NETWORK_ERROR"])
	require.NotNil(t, report.CacheStats)
	assert.Equal(t, int64(1), report.CacheStats.TotalTracked)
}
