package main

import (
	"fmt"
	"net/http"
	"time"

	"taskpulse/app/handler"
	"taskpulse/app/router"
	"taskpulse/internal/hooks"
	"taskpulse/internal/jobs"
	"taskpulse/internal/monitor"
	"taskpulse/internal/recovery"
	"taskpulse/internal/resultcache"
	"taskpulse/internal/tasks"
	"taskpulse/pkg/config"
	"taskpulse/pkg/lock"
	"taskpulse/pkg/logger"
	"taskpulse/pkg/notification"
	queue "taskpulse/pkg/queue/asynq"
	redisstore "taskpulse/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
	})
	return nil
}

// initRedis initializes Redis
func (app *Application) initRedis() error {
	client, err := redisstore.NewRedisClient(&app.config.Redis)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	return nil
}

// initServices wires the result cache, failure store, recovery handler
// and the lifecycle hook dispatcher on top of the shared Redis client.
func (app *Application) initServices() error {
	rdb := app.redisClient.GetClient()

	app.cache = resultcache.New(rdb, &app.config.Cache)
	app.failureStore = recovery.NewStore(rdb, &app.config.Cache)
	app.recoveryHandler = recovery.NewHandler(app.cache, app.failureStore, &app.config.Recovery)
	app.recoveryHandler.SetNotifier(notification.NewFeishuNotifier(&app.config.Notification))
	app.dispatcher = hooks.NewDispatcher(app.cache, app.recoveryHandler)

	return nil
}

// initQueue creates the broker manager and registers task handlers
func (app *Application) initQueue() error {
	app.queueManager = queue.NewManager(app.config, app.dispatcher, app.recoveryHandler)

	app.taskHandlers = tasks.NewHandlers(app.dispatcher, app.cache, app.failureStore)
	app.taskHandlers.Register(app.queueManager)

	app.registerCleanup(func() {
		app.queueManager.Close()
		logger.InfoCtx(app.ctx, "Task queue connections have been closed")
	})

	return nil
}

// initMonitor initializes the metrics monitor backed by the broker inspector
func (app *Application) initMonitor() error {
	app.monitor = monitor.New(app.cache, app.failureStore, app.queueManager.Inspector(), &app.config.Monitor)
	return nil
}

// initJobs registers periodic maintenance jobs
func (app *Application) initJobs() error {
	manager := jobs.NewManager(app.ctx)

	// Distributed lock keeps multiple replicas from sweeping the same
	// indexes at once. With Redis down the lock degrades to single-instance mode.
	cleanupLock := lock.NewRedisLock(app.redisClient.GetClient(), "cleanup:index-lock")

	cleanupInterval := time.Duration(app.config.Cache.CleanupInterval) * time.Second
	manager.Register(jobs.NewIndexCleanupJob(app.cache, app.failureStore, cleanupInterval, cleanupLock))

	app.jobsManager = manager
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.taskHandler = handler.NewTaskHandler(app.cache, app.queueManager)
	app.workerHandler = handler.NewWorkerHandler(app.monitor)
	app.cacheHandler = handler.NewCacheHandler(app.cache, app.failureStore)
	app.monitoringHandler = handler.NewMonitoringHandler(app.monitor, &app.config.Monitor)
	return nil
}

// initHTTPServer initializes the gin engine and HTTP server
func (app *Application) initHTTPServer() error {
	r := router.NewRouter(app.taskHandler, app.workerHandler, app.cacheHandler, app.monitoringHandler)

	// Set Gin mode
	gin.SetMode(app.config.Server.Mode)

	app.ginEngine = gin.New()
	app.ginEngine.Use(gin.Recovery())

	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}

	return nil
}
