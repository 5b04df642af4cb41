package asynq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"taskpulse/internal/hooks"
	"taskpulse/internal/model"
	"taskpulse/internal/recovery"
	"taskpulse/pkg/config"
	"taskpulse/pkg/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Manager wraps the broker: task submission, the worker server with
// lifecycle hooks wired in, and read-only introspection for the monitor.
//
// Retry scheduling stays with the broker; this layer only answers
// whether to retry and with what delay, through the recovery handler.
type Manager struct {
	client     *asynq.Client
	server     *asynq.Server
	mux        *asynq.ServeMux
	inspector  *asynq.Inspector
	dispatcher *hooks.Dispatcher

	defaultQueue string
	taskTimeout  time.Duration
	maxRetry     int
}

// NewManager creates the broker manager. The dispatcher receives every
// lifecycle signal; the recovery handler decides retry delays and when
// to stop retrying.
func NewManager(cfg *config.Config, dispatcher *hooks.Dispatcher, recoveryHandler *recovery.Handler) *Manager {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	maxRetry := cfg.Queue.MaxRetry

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues:      cfg.Queue.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				_, delay := recoveryHandler.Decision(err.Error(), n, maxRetry)
				if delay <= 0 {
					return asynq.DefaultRetryDelayFunc(n, err, task)
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID, _ := asynq.GetTaskID(ctx)
				retryCount, _ := asynq.GetRetryCount(ctx)
				taskMaxRetry, _ := asynq.GetMaxRetry(ctx)

				fc := model.FailureContext{
					TaskID:     taskID,
					TaskName:   task.Type(),
					Worker:     hostname(),
					RetryCount: retryCount,
					MaxRetries: taskMaxRetry,
				}
				dispatcher.TaskFailed(ctx, fc, err.Error(), "")
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.Use(lifecycleMiddleware(dispatcher, recoveryHandler))

	return &Manager{
		client:       asynq.NewClient(redisOpt),
		server:       server,
		mux:          mux,
		inspector:    asynq.NewInspector(redisOpt),
		dispatcher:   dispatcher,
		defaultQueue: "default",
		taskTimeout:  time.Duration(cfg.Queue.TaskTimeout) * time.Second,
		maxRetry:     maxRetry,
	}
}

func hostname() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// lifecycleMiddleware emits start/finish/success signals around every
// handler and translates no-retry decisions into SkipRetry so the broker
// archives the task instead of retrying fruitlessly.
func lifecycleMiddleware(dispatcher *hooks.Dispatcher, recoveryHandler *recovery.Handler) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			taskID, _ := asynq.GetTaskID(ctx)
			retryCount, _ := asynq.GetRetryCount(ctx)
			taskMaxRetry, _ := asynq.GetMaxRetry(ctx)

			dispatcher.TaskStarted(ctx, taskID, task.Type(), hostname(), retryCount)

			holder := &resultHolder{}
			err := next.ProcessTask(context.WithValue(ctx, resultKey{}, holder), task)
			if err != nil {
				dispatcher.TaskFinished(ctx, taskID, model.TaskStatusFailure, nil, err.Error(), retryCount)
				if shouldRetry, _ := recoveryHandler.Decision(err.Error(), retryCount, taskMaxRetry); !shouldRetry {
					return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
				}
				return err
			}

			dispatcher.TaskFinished(ctx, taskID, model.TaskStatusSuccess, holder.get(), "", retryCount)
			dispatcher.TaskSucceeded(ctx, taskID)
			return nil
		})
	}
}

type resultKey struct{}

type resultHolder struct {
	mu      sync.Mutex
	payload map[string]interface{}
}

func (h *resultHolder) set(payload map[string]interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payload = payload
}

func (h *resultHolder) get() map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.payload
}

// SetResult records a handler's result payload so the lifecycle
// middleware can attach it to the SUCCESS record. No-op outside a
// managed handler context.
func SetResult(ctx context.Context, payload map[string]interface{}) {
	if holder, ok := ctx.Value(resultKey{}).(*resultHolder); ok {
		holder.set(payload)
	}
}

// EnqueueOptions control task submission.
type EnqueueOptions struct {
	Queue    string
	Delay    time.Duration // delayed delivery
	MaxRetry int           // <0 disables retries, 0 uses the configured default
}

// Enqueue submits a task to the broker and records the PENDING state.
func (m *Manager) Enqueue(ctx context.Context, taskType string, payload map[string]interface{}, opts EnqueueOptions) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	taskID := uuid.New().String()
	queue := opts.Queue
	if queue == "" {
		queue = m.defaultQueue
	}
	maxRetry := m.maxRetry
	if opts.MaxRetry != 0 {
		maxRetry = opts.MaxRetry
		if maxRetry < 0 {
			maxRetry = 0
		}
	}

	options := []asynq.Option{
		asynq.TaskID(taskID),
		asynq.Queue(queue),
		asynq.Timeout(m.taskTimeout),
		asynq.MaxRetry(maxRetry),
	}
	if opts.Delay > 0 {
		options = append(options, asynq.ProcessIn(opts.Delay))
	}

	info, err := m.client.EnqueueContext(ctx, asynq.NewTask(taskType, data), options...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	var eta *time.Time
	if opts.Delay > 0 {
		eta = &info.NextProcessAt
	}
	m.dispatcher.TaskQueued(ctx, info.ID, taskType, eta)

	logger.InfoCtx(ctx, "task enqueued, task_id: %s, type: %s, queue: %s", info.ID, taskType, info.Queue)
	return info.ID, nil
}

// Resubmit re-enqueues a copy of a finished or archived task after the
// given delay. Used by operators to re-run tasks the retry policy gave
// up on; the retry loop itself uses the broker's delayed re-delivery.
func (m *Manager) Resubmit(ctx context.Context, taskID string, delay time.Duration) (string, error) {
	info, err := m.findTask(taskID)
	if err != nil {
		return "", err
	}

	newID := uuid.New().String()
	options := []asynq.Option{
		asynq.TaskID(newID),
		asynq.Queue(info.Queue),
		asynq.Timeout(m.taskTimeout),
		asynq.MaxRetry(m.maxRetry),
	}
	if delay > 0 {
		options = append(options, asynq.ProcessIn(delay))
	}

	submitted, err := m.client.EnqueueContext(ctx, asynq.NewTask(info.Type, info.Payload), options...)
	if err != nil {
		return "", fmt.Errorf("failed to resubmit task %s: %w", taskID, err)
	}

	var eta *time.Time
	if delay > 0 {
		eta = &submitted.NextProcessAt
	}
	m.dispatcher.TaskQueued(ctx, submitted.ID, info.Type, eta)

	logger.InfoCtx(ctx, "task %s resubmitted as %s with delay %s", taskID, submitted.ID, delay)
	return submitted.ID, nil
}

func (m *Manager) findTask(taskID string) (*asynq.TaskInfo, error) {
	queues, err := m.inspector.Queues()
	if err != nil {
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}
	for _, queue := range queues {
		if info, err := m.inspector.GetTaskInfo(queue, taskID); err == nil {
			return info, nil
		}
	}
	return nil, fmt.Errorf("task not found: %s", taskID)
}

// Inspector exposes the broker's read-only introspection API.
func (m *Manager) Inspector() *asynq.Inspector {
	return m.inspector
}

// RegisterHandler registers a task handler
func (m *Manager) RegisterHandler(pattern string, handler asynq.Handler) {
	m.mux.Handle(pattern, handler)
}

// Start starts the worker server
func (m *Manager) Start() error {
	logger.InfoCtx(context.Background(), "starting queue server")
	return m.server.Start(m.mux)
}

// Stop stops the worker server
func (m *Manager) Stop() {
	logger.InfoCtx(context.Background(), "stopping queue server")
	m.server.Stop()
	m.server.Shutdown()
}

// Close closes the client and inspector connections
func (m *Manager) Close() error {
	if err := m.client.Close(); err != nil {
		return err
	}
	return m.inspector.Close()
}
