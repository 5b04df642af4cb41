package handler

import (
	"net/http"

	"taskpulse/internal/recovery"
	"taskpulse/internal/resultcache"
	"taskpulse/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CacheHandler exposes result cache statistics and maintenance
type CacheHandler struct {
	cache    *resultcache.Cache
	failures *recovery.Store
}

// NewCacheHandler creates cache handler
func NewCacheHandler(cache *resultcache.Cache, failures *recovery.Store) *CacheHandler {
	return &CacheHandler{
		cache:    cache,
		failures: failures,
	}
}

// GetStats returns cache occupancy and status distribution
// GET /v1/cache/stats
func (h *CacheHandler) GetStats(c *gin.Context) {
	stats := h.cache.CacheStats(c.Request.Context())
	if stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache unavailable"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Cleanup prunes expired index entries from both indexes
// POST /v1/cache/cleanup
func (h *CacheHandler) Cleanup(c *gin.Context) {
	ctx := c.Request.Context()
	removedResults := h.cache.CleanupExpired(ctx)
	removedFailures := h.failures.CleanupExpired(ctx)

	logger.InfoCtx(ctx, "manual cleanup removed %d result entries, %d failure entries",
		removedResults, removedFailures)

	c.JSON(http.StatusOK, gin.H{
		"removed_results":  removedResults,
		"removed_failures": removedFailures,
	})
}
