package recovery

import (
	"context"
	"time"

	"taskpulse/internal/model"
	"taskpulse/internal/resultcache"
	"taskpulse/pkg/config"
	"taskpulse/pkg/logger"
)

// Handler turns task failures into classified records, cache updates and
// retry decisions. It runs inside the broker's failure-signal path, so
// nothing in it may propagate: every internal error is caught and logged.
type Handler struct {
	cache      *resultcache.Cache
	store      *Store
	maxRetries int
	notifier   ExhaustionNotifier
}

// ExhaustionNotifier receives tasks that have run out of retries.
type ExhaustionNotifier interface {
	NotifyTaskExhausted(ctx context.Context, record *model.FailureRecord)
}

// NewHandler creates a failure handler.
func NewHandler(cache *resultcache.Cache, store *Store, cfg *config.RecoveryConfig) *Handler {
	return &Handler{
		cache:      cache,
		store:      store,
		maxRetries: cfg.MaxRetries,
	}
}

// HandleFailure classifies the error, records the failure, and returns
// whether the broker should retry the task.
func (h *Handler) HandleFailure(ctx context.Context, fc model.FailureContext, errMsg, traceback string) (shouldRetry bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "panic in failure handler for task %s: %v", fc.TaskID, r)
			shouldRetry = false
		}
	}()

	maxRetries := fc.MaxRetries
	if maxRetries <= 0 {
		maxRetries = h.maxRetries
	}

	failureType := Classify(errMsg)
	shouldRetry, delay := Decide(failureType, fc.RetryCount, maxRetries, errMsg)

	logger.WarnCtx(ctx, "task %s (%s) failed with %s (retry %d/%d, retry=%v, delay=%s): %s",
		fc.TaskID, fc.TaskName, failureType, fc.RetryCount, maxRetries, shouldRetry, delay, errMsg)

	// Cache writes are best-effort; a dead cache must not change the
	// retry decision or destabilize the worker.
	h.cache.MarkFailed(ctx, fc.TaskID, errMsg, fc.RetryCount)

	record := &model.FailureRecord{
		TaskID:       fc.TaskID,
		TaskName:     fc.TaskName,
		FailureType:  failureType,
		ErrorMessage: errMsg,
		RetryCount:   fc.RetryCount,
		MaxRetries:   maxRetries,
		FailedAt:     time.Now(),
		Worker:       fc.Worker,
		Args:         fc.Args,
		Traceback:    traceback,
	}
	h.store.Save(ctx, record)

	if !shouldRetry && h.notifier != nil {
		h.notifier.NotifyTaskExhausted(ctx, record)
	}

	return shouldRetry
}

// SetNotifier installs an alert sink for permanently failed tasks.
func (h *Handler) SetNotifier(n ExhaustionNotifier) {
	h.notifier = n
}

// Decision computes the retry decision for an error without recording
// anything. The broker wrapper uses it to answer retry-delay queries.
func (h *Handler) Decision(errMsg string, retryCount, maxRetries int) (bool, time.Duration) {
	if maxRetries <= 0 {
		maxRetries = h.maxRetries
	}
	return Decide(Classify(errMsg), retryCount, maxRetries, errMsg)
}

// Statistics exposes the failure store's windowed statistics.
func (h *Handler) Statistics(ctx context.Context, hours int) *Statistics {
	return h.store.Statistics(ctx, hours)
}
