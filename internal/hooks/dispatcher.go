package hooks

import (
	"context"
	"time"

	"taskpulse/internal/model"
	"taskpulse/internal/recovery"
	"taskpulse/internal/resultcache"
	"taskpulse/pkg/logger"
)

// Dispatcher bridges broker lifecycle signals to the result cache and
// the failure recovery handler.
//
// Hook bodies run synchronously on the worker's signal-dispatch path:
// they must complete quickly and must never propagate. Each body is
// individually guarded so a failure updating the cache cannot prevent a
// later hook (failure handling in particular) from running. Cache writes
// are full overwrites, so duplicate or out-of-order signal delivery is
// safe to replay.
type Dispatcher struct {
	cache    *resultcache.Cache
	recovery *recovery.Handler
}

// NewDispatcher creates a dispatcher over the given cache and recovery
// handler.
func NewDispatcher(cache *resultcache.Cache, recoveryHandler *recovery.Handler) *Dispatcher {
	return &Dispatcher{
		cache:    cache,
		recovery: recoveryHandler,
	}
}

func guard(ctx context.Context, hook, taskID string) func() {
	return func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "panic in %s hook for task %s: %v", hook, taskID, r)
		}
	}
}

// TaskQueued records acceptance of a task by the broker.
func (d *Dispatcher) TaskQueued(ctx context.Context, taskID, taskName string, eta *time.Time) {
	defer guard(ctx, "enqueue", taskID)()

	// A record already past PENDING means this is a retry re-delivery;
	// the running attempt's state wins over the queue notification.
	if existing := d.cache.Get(ctx, taskID); existing != nil && existing.Status != model.TaskStatusPending {
		return
	}

	d.cache.Store(ctx, &model.TaskResult{
		TaskID:      taskID,
		TaskName:    taskName,
		Status:      model.TaskStatusPending,
		CurrentStep: "Task queued",
		ETA:         eta,
	})
}

// TaskStarted records the start of an execution attempt. A retried task
// re-enters PROGRESS here rather than resetting to PENDING.
func (d *Dispatcher) TaskStarted(ctx context.Context, taskID, taskName, worker string, retryCount int) {
	defer guard(ctx, "pre-run", taskID)()

	now := time.Now()
	d.cache.Store(ctx, &model.TaskResult{
		TaskID:      taskID,
		TaskName:    taskName,
		Status:      model.TaskStatusProgress,
		Progress:    0,
		CurrentStep: "Starting task",
		StartedAt:   &now,
		Worker:      worker,
		Retries:     retryCount,
	})
}

// TaskProgress records a progress report from a running handler.
func (d *Dispatcher) TaskProgress(ctx context.Context, taskID string, progress int, step string) {
	defer guard(ctx, "progress", taskID)()
	d.cache.UpdateProgress(ctx, taskID, progress, step)
}

// TaskFinished finalizes the record according to the reported status.
func (d *Dispatcher) TaskFinished(ctx context.Context, taskID string, status model.TaskStatus, result map[string]interface{}, errMsg string, retryCount int) {
	defer guard(ctx, "post-run", taskID)()

	switch status {
	case model.TaskStatusSuccess:
		d.cache.MarkCompleted(ctx, taskID, result)
	case model.TaskStatusFailure:
		d.cache.MarkFailed(ctx, taskID, errMsg, retryCount)
	default:
		logger.WarnCtx(ctx, "post-run for task %s with non-final status %s", taskID, status)
	}
}

// TaskSucceeded re-extends the record's TTL. Idempotent with the
// extension MarkCompleted already applied.
func (d *Dispatcher) TaskSucceeded(ctx context.Context, taskID string) {
	defer guard(ctx, "success", taskID)()
	d.cache.ExtendTTL(ctx, taskID, d.cache.CompletedTTL())
}

// TaskFailed invokes the failure recovery handler and logs the retry
// recommendation. Actually re-submitting the task is the broker's
// responsibility, not this dispatcher's.
func (d *Dispatcher) TaskFailed(ctx context.Context, fc model.FailureContext, errMsg, traceback string) {
	defer guard(ctx, "failure", fc.TaskID)()

	shouldRetry := d.recovery.HandleFailure(ctx, fc, errMsg, traceback)
	if shouldRetry {
		logger.InfoCtx(ctx, "retry recommended for task %s (%s)", fc.TaskID, fc.TaskName)
	} else {
		logger.InfoCtx(ctx, "no retry for task %s (%s), failure is final", fc.TaskID, fc.TaskName)
	}
}
