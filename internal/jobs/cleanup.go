package jobs

import (
	"context"
	"time"

	"taskpulse/internal/recovery"
	"taskpulse/internal/resultcache"
	"taskpulse/pkg/lock"
	"taskpulse/pkg/logger"
)

// IndexCleanupJob periodically removes index entries whose backing
// record has expired, from both the result cache and the failure store.
// A distributed lock keeps multiple replicas from sweeping concurrently.
type IndexCleanupJob struct {
	cache    *resultcache.Cache
	failures *recovery.Store
	interval time.Duration
	lock     lock.DistributedLock
}

// NewIndexCleanupJob creates the cleanup job. A nil lock disables
// replica coordination.
func NewIndexCleanupJob(cache *resultcache.Cache, failures *recovery.Store, interval time.Duration, cleanupLock lock.DistributedLock) *IndexCleanupJob {
	return &IndexCleanupJob{
		cache:    cache,
		failures: failures,
		interval: interval,
		lock:     cleanupLock,
	}
}

func (j *IndexCleanupJob) Name() string { return "index-cleanup" }

func (j *IndexCleanupJob) Interval() time.Duration { return j.interval }

func (j *IndexCleanupJob) Run(ctx context.Context) error {
	if j.lock != nil {
		acquired, err := j.lock.TryLock(ctx)
		if err != nil {
			return err
		}
		if !acquired {
			logger.DebugCtx(ctx, "index cleanup skipped, another replica holds the lock")
			return nil
		}
		defer j.lock.Unlock(ctx)
	}

	results := j.cache.CleanupExpired(ctx)
	failures := j.failures.CleanupExpired(ctx)
	if results > 0 || failures > 0 {
		logger.InfoCtx(ctx, "index cleanup removed %d result and %d failure entries", results, failures)
	}
	return nil
}
