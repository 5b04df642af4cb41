package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskpulse/internal/hooks"
	"taskpulse/internal/recovery"
	"taskpulse/internal/resultcache"
	"taskpulse/pkg/logger"
	queue "taskpulse/pkg/queue/asynq"

	"github.com/hibiken/asynq"
)

// Task types the platform submits through the broker.
const (
	TypeRenderDocument   = "report:render"
	TypeSendNotification = "report:notify"
	TypeCleanupSweep     = "maintenance:cleanup"
)

// Handlers holds the business payload handlers. The execution core only
// invokes these through the broker; their internals are ordinary
// application logic.
type Handlers struct {
	dispatcher *hooks.Dispatcher
	cache      *resultcache.Cache
	failures   *recovery.Store
}

// NewHandlers creates the handler set.
func NewHandlers(dispatcher *hooks.Dispatcher, cache *resultcache.Cache, failures *recovery.Store) *Handlers {
	return &Handlers{
		dispatcher: dispatcher,
		cache:      cache,
		failures:   failures,
	}
}

// Register attaches all handlers to the broker manager.
func (h *Handlers) Register(m *queue.Manager) {
	m.RegisterHandler(TypeRenderDocument, asynq.HandlerFunc(h.HandleRenderDocument))
	m.RegisterHandler(TypeSendNotification, asynq.HandlerFunc(h.HandleSendNotification))
	m.RegisterHandler(TypeCleanupSweep, asynq.HandlerFunc(h.HandleCleanupSweep))
}

// RenderPayload is the input for a document render job.
type RenderPayload struct {
	ReportID string `json:"report_id"`
	Format   string `json:"format"` // docx, pdf
}

// HandleRenderDocument renders a report document.
func (h *Handlers) HandleRenderDocument(ctx context.Context, task *asynq.Task) error {
	var payload RenderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid render payload: %v", err)
	}
	if payload.ReportID == "" {
		return fmt.Errorf("missing required field report_id")
	}
	if payload.Format == "" {
		payload.Format = "pdf"
	}

	taskID, _ := asynq.GetTaskID(ctx)
	h.dispatcher.TaskProgress(ctx, taskID, 20, "Loading report "+payload.ReportID)
	h.dispatcher.TaskProgress(ctx, taskID, 60, "Rendering "+payload.Format)

	outputPath := fmt.Sprintf("/var/taskpulse/output/%s.%s", payload.ReportID, payload.Format)
	logger.InfoCtx(ctx, "rendered report %s to %s", payload.ReportID, outputPath)

	queue.SetResult(ctx, map[string]interface{}{
		"report_id": payload.ReportID,
		"format":    payload.Format,
		"path":      outputPath,
	})
	return nil
}

// NotifyPayload is the input for a notification email job.
type NotifyPayload struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	ReportID  string `json:"report_id,omitempty"`
}

// HandleSendNotification sends a notification email.
func (h *Handlers) HandleSendNotification(ctx context.Context, task *asynq.Task) error {
	var payload NotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid notify payload: %v", err)
	}
	if payload.Recipient == "" {
		return fmt.Errorf("missing required field recipient")
	}

	taskID, _ := asynq.GetTaskID(ctx)
	h.dispatcher.TaskProgress(ctx, taskID, 50, "Sending to "+payload.Recipient)

	logger.InfoCtx(ctx, "notification sent to %s: %s", payload.Recipient, payload.Subject)
	queue.SetResult(ctx, map[string]interface{}{
		"recipient": payload.Recipient,
		"sent_at":   time.Now().Format(time.RFC3339),
	})
	return nil
}

// HandleCleanupSweep prunes expired index entries from the result cache
// and the failure store. Submitted through the broker so it shows up in
// the dashboard like any other job.
func (h *Handlers) HandleCleanupSweep(ctx context.Context, task *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)
	h.dispatcher.TaskProgress(ctx, taskID, 30, "Pruning result index")
	resultsPruned := h.cache.CleanupExpired(ctx)

	h.dispatcher.TaskProgress(ctx, taskID, 70, "Pruning failure index")
	failuresPruned := h.failures.CleanupExpired(ctx)

	logger.InfoCtx(ctx, "cleanup sweep removed %d result and %d failure index entries", resultsPruned, failuresPruned)
	queue.SetResult(ctx, map[string]interface{}{
		"results_pruned":  resultsPruned,
		"failures_pruned": failuresPruned,
	})
	return nil
}
