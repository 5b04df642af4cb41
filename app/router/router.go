package router

import (
	"taskpulse/app/handler"
	"taskpulse/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	taskHandler       *handler.TaskHandler
	workerHandler     *handler.WorkerHandler
	cacheHandler      *handler.CacheHandler
	monitoringHandler *handler.MonitoringHandler
}

// NewRouter creates a new Router
func NewRouter(taskHandler *handler.TaskHandler, workerHandler *handler.WorkerHandler, cacheHandler *handler.CacheHandler, monitoringHandler *handler.MonitoringHandler) *Router {
	return &Router{
		taskHandler:       taskHandler,
		workerHandler:     workerHandler,
		cacheHandler:      cacheHandler,
		monitoringHandler: monitoringHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	v1 := engine.Group("/v1")
	{
		// Task status and submission
		v1.GET("/tasks/:task_id", r.taskHandler.Status)
		v1.GET("/tasks", r.taskHandler.ListTasks)
		v1.POST("/tasks", r.taskHandler.Submit)
		v1.POST("/tasks/:task_id/resubmit", r.taskHandler.Resubmit)

		// Broker-side metrics
		v1.GET("/workers", r.workerHandler.GetWorkerList)
		v1.GET("/queues", r.workerHandler.GetQueueList)

		// Result cache statistics and maintenance
		cache := v1.Group("/cache")
		cache.Use(middleware.AuthMiddleware())
		{
			cache.GET("/stats", r.cacheHandler.GetStats)
			cache.POST("/cleanup", r.cacheHandler.Cleanup)
		}

		// Monitoring APIs
		monitor := v1.Group("/monitor")
		{
			monitor.GET("/report", r.monitoringHandler.GetReport)
			monitor.GET("/trends", r.monitoringHandler.GetTrends)
			monitor.GET("/failures", r.monitoringHandler.GetFailures)
			monitor.GET("/stream", r.monitoringHandler.Stream)
		}
	}

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
