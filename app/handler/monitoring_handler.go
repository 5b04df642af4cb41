package handler

import (
	"net/http"
	"strconv"
	"time"

	"taskpulse/internal/model"
	"taskpulse/internal/monitor"
	"taskpulse/pkg/config"
	"taskpulse/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// MonitoringHandler handles monitoring API requests
type MonitoringHandler struct {
	monitor        *monitor.Monitor
	streamInterval time.Duration
}

// NewMonitoringHandler creates a new monitoring handler
func NewMonitoringHandler(m *monitor.Monitor, cfg *config.MonitorConfig) *MonitoringHandler {
	return &MonitoringHandler{
		monitor:        m,
		streamInterval: time.Duration(cfg.StreamInterval) * time.Second,
	}
}

// hoursParam parses the lookback window, defaulting to 24h.
func hoursParam(c *gin.Context) int {
	hours := 24
	if hoursStr := c.Query("hours"); hoursStr != "" {
		if n, err := strconv.Atoi(hoursStr); err == nil && n > 0 {
			hours = n
		}
	}
	return hours
}

// GetReport returns the comprehensive monitoring report
// GET /v1/monitor/report?hours=24
func (h *MonitoringHandler) GetReport(c *gin.Context) {
	report := h.monitor.ComprehensiveReport(c.Request.Context(), hoursParam(c))
	c.JSON(http.StatusOK, report)
}

// GetTrends returns bucketed performance trends
// GET /v1/monitor/trends?hours=24&interval=60
func (h *MonitoringHandler) GetTrends(c *gin.Context) {
	interval := 60
	if intervalStr := c.Query("interval"); intervalStr != "" {
		if n, err := strconv.Atoi(intervalStr); err == nil && n > 0 {
			interval = n
		}
	}

	trends := h.monitor.PerformanceTrends(c.Request.Context(), hoursParam(c), interval)
	c.JSON(http.StatusOK, trends)
}

// GetFailures returns failure statistics over the lookback window
// GET /v1/monitor/failures?hours=24
func (h *MonitoringHandler) GetFailures(c *gin.Context) {
	stats := h.monitor.FailureStatistics(c.Request.Context(), hoursParam(c))
	if stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failure store unavailable"})
		return
	}

	advice := make(map[string]string, len(stats.FailureTypes))
	for ft := range stats.FailureTypes {
		advice[ft] = model.FailureType(ft).Advice()
	}

	c.JSON(http.StatusOK, gin.H{
		"statistics": stats,
		"advice":     advice,
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins, production should use stricter checks
	},
}

// Stream pushes the comprehensive report over a websocket at a fixed interval
// GET /v1/monitor/stream?hours=24
func (h *MonitoringHandler) Stream(c *gin.Context) {
	hours := hoursParam(c)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to upgrade to websocket: %v", err)
		return
	}
	defer ws.Close()

	ctx := c.Request.Context()
	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	// Push an initial report immediately, then on every tick.
	for {
		report := h.monitor.ComprehensiveReport(ctx, hours)
		if err := ws.WriteJSON(report); err != nil {
			logger.DebugCtx(ctx, "monitor stream closed: %v", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
