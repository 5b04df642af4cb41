package handler

import (
	"net/http"
	"time"

	"taskpulse/internal/monitor"

	"github.com/gin-gonic/gin"
)

// WorkerHandler exposes broker-side worker and queue metrics
type WorkerHandler struct {
	monitor *monitor.Monitor
}

// NewWorkerHandler creates worker handler
func NewWorkerHandler(m *monitor.Monitor) *WorkerHandler {
	return &WorkerHandler{monitor: m}
}

// GetWorkerList returns active worker servers
// GET /v1/workers
func (h *WorkerHandler) GetWorkerList(c *gin.Context) {
	workers := h.monitor.WorkerMetrics(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now(),
		"count":     len(workers),
		"workers":   workers,
	})
}

// GetQueueList returns per-queue depth and task type breakdown
// GET /v1/queues
func (h *WorkerHandler) GetQueueList(c *gin.Context) {
	queues := h.monitor.QueueMetrics(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now(),
		"queues":    queues,
	})
}
