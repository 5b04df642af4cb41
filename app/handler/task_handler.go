package handler

import (
	"net/http"
	"strconv"
	"time"

	"taskpulse/internal/model"
	"taskpulse/internal/resultcache"
	"taskpulse/pkg/logger"
	queue "taskpulse/pkg/queue/asynq"

	"github.com/gin-gonic/gin"
)

// TaskHandler handles task status queries and submissions
type TaskHandler struct {
	cache *resultcache.Cache
	queue *queue.Manager
}

// NewTaskHandler creates task handler
func NewTaskHandler(cache *resultcache.Cache, queueManager *queue.Manager) *TaskHandler {
	return &TaskHandler{
		cache: cache,
		queue: queueManager,
	}
}

// SubmitRequest is the enqueue request body.
type SubmitRequest struct {
	TaskType     string                 `json:"task_type" binding:"required"`
	Payload      map[string]interface{} `json:"payload"`
	Queue        string                 `json:"queue"`
	DelaySeconds int                    `json:"delay_seconds"`
	MaxRetry     int                    `json:"max_retry"`
}

// Status gets task status
// @Summary Get task status
// @Description Get task status by task ID
// @Tags tasks
// @Produce json
// @Param task_id path string true "Task ID"
// @Success 200 {object} model.TaskResult
// @Router /v1/tasks/{task_id} [get]
func (h *TaskHandler) Status(c *gin.Context) {
	taskID := c.Param("task_id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id required"})
		return
	}

	result := h.cache.Get(c.Request.Context(), taskID)
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListTasks lists recent task results
// @Summary List recent tasks
// @Description List recent task results, optionally filtered by status
// @Tags tasks
// @Produce json
// @Param status query string false "Status filter (PENDING, PROGRESS, SUCCESS, FAILURE)"
// @Param limit query int false "Max results (default 50)"
// @Router /v1/tasks [get]
func (h *TaskHandler) ListTasks(c *gin.Context) {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	var results []*model.TaskResult
	if statusStr := c.Query("status"); statusStr != "" {
		status := model.TaskStatus(statusStr)
		switch status {
		case model.TaskStatusPending, model.TaskStatusProgress, model.TaskStatusSuccess, model.TaskStatusFailure:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		results = h.cache.ResultsByStatus(c.Request.Context(), status, limit)
	} else {
		results = h.cache.RecentResults(c.Request.Context(), limit)
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(results),
		"tasks": results,
	})
}

// Submit enqueues a named task
// @Summary Submit task
// @Description Enqueue a task by type with an optional payload
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body SubmitRequest true "Task request"
// @Router /v1/tasks [post]
func (h *TaskHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.ErrorCtx(c.Request.Context(), "invalid submit request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	taskID, err := h.queue.Enqueue(c.Request.Context(), req.TaskType, req.Payload, queue.EnqueueOptions{
		Queue:    req.Queue,
		Delay:    time.Duration(req.DelaySeconds) * time.Second,
		MaxRetry: req.MaxRetry,
	})
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to enqueue task, type: %s, error: %v", req.TaskType, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id": taskID,
		"status":  string(model.TaskStatusPending),
	})
}

// Resubmit re-enqueues a previously submitted task
// @Summary Resubmit task
// @Description Re-enqueue a task by its original task ID
// @Tags tasks
// @Produce json
// @Param task_id path string true "Task ID"
// @Param delay_seconds query int false "Delay before execution"
// @Router /v1/tasks/{task_id}/resubmit [post]
func (h *TaskHandler) Resubmit(c *gin.Context) {
	taskID := c.Param("task_id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id required"})
		return
	}

	var delay time.Duration
	if delayStr := c.Query("delay_seconds"); delayStr != "" {
		if n, err := strconv.Atoi(delayStr); err == nil && n > 0 {
			delay = time.Duration(n) * time.Second
		}
	}

	newID, err := h.queue.Resubmit(c.Request.Context(), taskID, delay)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to resubmit task, task_id: %s, error: %v", taskID, err)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"task_id": newID})
}
