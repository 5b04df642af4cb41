package recovery

import (
	"context"
	"testing"
	"time"

	"taskpulse/internal/model"
	"taskpulse/internal/resultcache"
	"taskpulse/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *resultcache.Cache, *Store, *miniredis.Miniredis) {
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
	store := NewStore(rdb, cacheCfg)
	handler := NewHandler(cache, store, &config.RecoveryConfig{MaxRetries: 3})
	return handler, cache, store, mr
}

func TestHandleFailureRecordsAndDecides(t *testing.T) {
	handler, cache, store, mr := newTestHandler(t)
	ctx := context.Background()

	fc := model.FailureContext{
		TaskID:     "t1",
		TaskName:   "send_notification",
		Worker:     "worker-a",
		RetryCount: 0,
		MaxRetries: 3,
		Args:       map[string]interface{}{"recipient": "ops@example.com"},
	}

	retry := handler.HandleFailure(ctx, fc, "Connection refused", "stack trace here")
	assert.True(t, retry)

	// Result cache reflects the failure
	result := cache.Get(ctx, "t1")
	require.NotNil(t, result)
	assert.Equal(t, model.TaskStatusFailure, result.Status)
	assert.Equal(t, "Connection refused", result.Error)

	// Failure record persisted with the 24h TTL and indexed
	record := store.Get(ctx, "t1:0")
	require.NotNil(t, record)
	assert.Equal(t, model.FailureNetwork, record.FailureType)
	assert.Equal(t, "send_notification", record.TaskName)
	assert.Equal(t, "stack trace here", record.Traceback)
	assert.Equal(t, 3, record.MaxRetries)
	assert.Equal(t, 24*time.Hour, mr.TTL("failed_task:t1:0"))
}

func TestHandleFailureValidationNoRetry(t *testing.T) {
	handler, _, _, _ := newTestHandler(t)

	fc := model.FailureContext{TaskID: "t2", TaskName: "render_document", MaxRetries: 3}
	retry := handler.HandleFailure(context.Background(), fc, "invalid input", "")
	assert.False(t, retry)
}

type capturingNotifier struct {
	records []*model.FailureRecord
}

func (n *capturingNotifier) NotifyTaskExhausted(_ context.Context, record *model.FailureRecord) {
	n.records = append(n.records, record)
}

func TestHandleFailureNotifiesOnExhaustion(t *testing.T) {
	handler, _, _, _ := newTestHandler(t)
	notifier := &capturingNotifier{}
	handler.SetNotifier(notifier)
	ctx := context.Background()

	// Retries remain, no alert
	fc := model.FailureContext{TaskID: "t9", TaskName: "render_document", RetryCount: 0, MaxRetries: 3}
	retry := handler.HandleFailure(ctx, fc, "Connection refused", "")
	assert.True(t, retry)
	assert.Empty(t, notifier.records)

	// Retries exhausted, alert fires with the classified record
	fc.RetryCount = 3
	retry = handler.HandleFailure(ctx, fc, "Connection refused", "")
	assert.False(t, retry)
	require.Len(t, notifier.records, 1)
	assert.Equal(t, "t9", notifier.records[0].TaskID)
	assert.Equal(t, model.FailureNetwork, notifier.records[0].FailureType)
}

func TestHandleFailureDefaultsMaxRetries(t *testing.T) {
	handler, _, store, _ := newTestHandler(t)

	// Broker signal without a max-retries value falls back to config
	fc := model.FailureContext{TaskID: "t3", TaskName: "cleanup"}
	handler.HandleFailure(context.Background(), fc, "timeout", "")

	record := store.Get(context.Background(), "t3:0")
	require.NotNil(t, record)
	assert.Equal(t, 3, record.MaxRetries)
}

func TestHandleFailureEachAttemptLeavesARecord(t *testing.T) {
	handler, _, store, _ := newTestHandler(t)
	ctx := context.Background()

	for retryCount := 0; retryCount < 3; retryCount++ {
		fc := model.FailureContext{
			TaskID:     "t4",
			TaskName:   "render_document",
			RetryCount: retryCount,
			MaxRetries: 3,
		}
		handler.HandleFailure(ctx, fc, "operation timeout", "")
	}

	assert.NotNil(t, store.Get(ctx, "t4:0"))
	assert.NotNil(t, store.Get(ctx, "t4:1"))
	assert.NotNil(t, store.Get(ctx, "t4:2"))
}

func TestHandleFailureSurvivesDeadStore(t *testing.T) {
	handler, _, _, mr := newTestHandler(t)
	mr.Close()

	// The retry decision must still come back even when nothing can be
	// recorded.
	fc := model.FailureContext{TaskID: "t5", TaskName: "x", MaxRetries: 3}
	retry := handler.HandleFailure(context.Background(), fc, "network unreachable", "")
	assert.True(t, retry)
}

func TestStatistics(t *testing.T) {
	handler, _, store, _ := newTestHandler(t)
	ctx := context.Background()

	failures := []struct {
		id     string
		name   string
		errMsg string
	}{
		{"a", "render_document", "operation timeout"},
		{"b", "render_document", "connection refused"},
		{"c", "send_notification", "connection reset"},
		{"d", "send_notification", "invalid input"},
	}
	for _, f := range failures {
		handler.HandleFailure(ctx, model.FailureContext{TaskID: f.id, TaskName: f.name, MaxRetries: 3}, f.errMsg, "")
	}

	stats := store.Statistics(ctx, 24)
	require.NotNil(t, stats)
	assert.Equal(t, 4, stats.TotalFailures)
	assert.Equal(t, 1, stats.FailureTypes["TIMEOUT"])
	assert.Equal(t, 2, stats.FailureTypes["NETWORK_ERROR"])
	assert.Equal(t, 1, stats.FailureTypes["VALIDATION_ERROR"])
	assert.Equal(t, 2, stats.TaskNames["render_document"])
	assert.Equal(t, 2, stats.TaskNames["send_notification"])
	assert.InDelta(t, 4.0/24.0, stats.FailureRate, 1e-9)
}

func TestStatisticsEmptyWindow(t *testing.T) {
	_, _, store, _ := newTestHandler(t)

	stats := store.Statistics(context.Background(), 1)
	assert.Zero(t, stats.TotalFailures)
	assert.Zero(t, stats.FailureRate)
	assert.Empty(t, stats.FailureTypes)
}

func TestStatisticsUnavailableStore(t *testing.T) {
	_, _, store, mr := newTestHandler(t)
	mr.Close()

	// Nil signals unavailability to operator-facing reads
	assert.Nil(t, store.Statistics(context.Background(), 24))
}

func TestFailureStoreCleanupExpired(t *testing.T) {
	_, _, store, _ := newTestHandler(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		record := &model.FailureRecord{
			TaskID:       id,
			TaskName:     "x",
			FailureType:  model.FailureUnknown,
			ErrorMessage: "boom",
			RetryCount:   0,
			MaxRetries:   3,
			FailedAt:     time.Now().Add(-time.Duration(i) * time.Minute),
		}
		require.True(t, store.Save(ctx, record))
	}

	// Drop one backing record directly
	require.True(t, store.redis.Del(ctx, "failed_task:b:0").Val() == 1)

	assert.Equal(t, 1, store.CleanupExpired(ctx))
	assert.Equal(t, 0, store.CleanupExpired(ctx))
}
