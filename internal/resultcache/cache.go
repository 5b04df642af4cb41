package resultcache

import (
	"context"
	"time"

	"taskpulse/internal/model"
	"taskpulse/pkg/config"
	"taskpulse/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const (
	taskKeyPrefix = "task:"      // task:<id> -> serialized TaskResult
	indexKey      = "task:index" // sorted set, member=task id, score=last write unix time
)

// Cache tracks per-task execution state in Redis with TTL-based expiry
// and a time-ordered index for recent-results queries.
//
// Every write path tolerates store unavailability by returning false
// instead of an error: a cache failure must never abort the job whose
// state is being recorded.
type Cache struct {
	redis        *redis.Client
	defaultTTL   time.Duration
	completedTTL time.Duration
	statsSample  int
}

// New creates a result cache on top of the given Redis client.
func New(rdb *redis.Client, cfg *config.CacheConfig) *Cache {
	return &Cache{
		redis:        rdb,
		defaultTTL:   time.Duration(cfg.DefaultTTL) * time.Second,
		completedTTL: time.Duration(cfg.CompletedTTL) * time.Second,
		statsSample:  cfg.StatsSampleSize,
	}
}

// DefaultTTL returns the TTL applied to in-flight records.
func (c *Cache) DefaultTTL() time.Duration { return c.defaultTTL }

// CompletedTTL returns the extended TTL applied to finalized records.
func (c *Cache) CompletedTTL() time.Duration { return c.completedTTL }

// Store writes the record (full overwrite) and refreshes its index
// entry. ttl overrides the default when given.
func (c *Cache) Store(ctx context.Context, result *model.TaskResult, ttl ...time.Duration) bool {
	expiry := c.defaultTTL
	if len(ttl) > 0 && ttl[0] > 0 {
		expiry = ttl[0]
	}

	data, err := result.ToJSON()
	if err != nil {
		logger.ErrorCtx(ctx, "failed to serialize result for task %s: %v", result.TaskID, err)
		return false
	}

	now := float64(time.Now().Unix())
	pipe := c.redis.Pipeline()
	pipe.Set(ctx, taskKeyPrefix+result.TaskID, data, expiry)
	pipe.ZAdd(ctx, indexKey, &redis.Z{Score: now, Member: result.TaskID})
	if _, err := pipe.Exec(ctx); err != nil {
		logger.WarnCtx(ctx, "result cache unavailable, dropping write for task %s: %v", result.TaskID, err)
		return false
	}
	return true
}

// Get returns the cached record, or nil on miss, malformed data, or
// store unavailability.
func (c *Cache) Get(ctx context.Context, taskID string) *model.TaskResult {
	data, err := c.redis.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		logger.WarnCtx(ctx, "result cache unavailable reading task %s: %v", taskID, err)
		return nil
	}

	var result model.TaskResult
	if err := result.FromJSON(data); err != nil {
		// Malformed cached data is treated as a miss
		logger.WarnCtx(ctx, "malformed cached result for task %s: %v", taskID, err)
		return nil
	}
	return &result
}

// UpdateProgress applies a progress report to an existing record.
// Returns false when no record exists for the task.
func (c *Cache) UpdateProgress(ctx context.Context, taskID string, progress int, step string) bool {
	result := c.Get(ctx, taskID)
	if result == nil {
		return false
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	result.Status = model.TaskStatusProgress
	result.Progress = progress
	result.CurrentStep = step
	return c.Store(ctx, result)
}

// MarkCompleted finalizes the record with the given payload and re-stores
// it under the extended TTL. When no record exists (the start signal was
// missed) a fresh one is created so the completion is not lost.
// CompletedAt is set only on the first transition into a final status.
func (c *Cache) MarkCompleted(ctx context.Context, taskID string, payload map[string]interface{}, status ...model.TaskStatus) bool {
	final := model.TaskStatusSuccess
	if len(status) > 0 {
		final = status[0]
	}

	result := c.Get(ctx, taskID)
	if result == nil {
		result = &model.TaskResult{TaskID: taskID}
	}

	if result.CompletedAt == nil {
		now := time.Now()
		result.CompletedAt = &now
	}
	result.Status = final
	result.Result = payload
	result.Error = ""
	result.Progress = 100
	result.CurrentStep = "Completed"
	return c.Store(ctx, result, c.completedTTL)
}

// MarkFailed finalizes the record as FAILURE and re-stores it under the
// extended TTL so operators can inspect it longer than in-flight records.
func (c *Cache) MarkFailed(ctx context.Context, taskID string, errMsg string, retries int) bool {
	result := c.Get(ctx, taskID)
	if result == nil {
		result = &model.TaskResult{TaskID: taskID}
	}

	if result.CompletedAt == nil {
		now := time.Now()
		result.CompletedAt = &now
	}
	result.Status = model.TaskStatusFailure
	result.Error = errMsg
	result.Result = nil
	result.Retries = retries
	result.CurrentStep = "Failed: " + errMsg
	return c.Store(ctx, result, c.completedTTL)
}

// ExtendTTL pushes out the expiry of an existing record. Idempotent with
// the extension MarkCompleted already applies.
func (c *Cache) ExtendTTL(ctx context.Context, taskID string, ttl time.Duration) bool {
	ok, err := c.redis.Expire(ctx, taskKeyPrefix+taskID, ttl).Result()
	if err != nil {
		logger.WarnCtx(ctx, "failed to extend ttl for task %s: %v", taskID, err)
		return false
	}
	return ok
}

// RecentResults returns up to limit records in reverse chronological
// order of their last cache write, skipping index entries whose backing
// record has already expired.
func (c *Cache) RecentResults(ctx context.Context, limit int) []*model.TaskResult {
	if limit <= 0 {
		return []*model.TaskResult{}
	}

	ids, err := c.redis.ZRevRange(ctx, indexKey, 0, int64(limit-1)).Result()
	if err != nil {
		logger.WarnCtx(ctx, "result cache unavailable listing recent results: %v", err)
		return []*model.TaskResult{}
	}

	results := make([]*model.TaskResult, 0, len(ids))
	for _, id := range ids {
		if result := c.Get(ctx, id); result != nil {
			results = append(results, result)
		}
	}
	return results
}

// ResultsByStatus filters RecentResults by status client-side.
func (c *Cache) ResultsByStatus(ctx context.Context, status model.TaskStatus, limit int) []*model.TaskResult {
	recent := c.RecentResults(ctx, limit)
	filtered := make([]*model.TaskResult, 0, len(recent))
	for _, result := range recent {
		if result.Status == status {
			filtered = append(filtered, result)
		}
	}
	return filtered
}

// CleanupExpired scans the full index and removes entries whose backing
// record no longer exists. Returns the number of entries removed.
func (c *Cache) CleanupExpired(ctx context.Context) int {
	ids, err := c.redis.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		logger.WarnCtx(ctx, "result cache unavailable during cleanup: %v", err)
		return 0
	}

	removed := 0
	for _, id := range ids {
		exists, err := c.redis.Exists(ctx, taskKeyPrefix+id).Result()
		if err != nil {
			logger.WarnCtx(ctx, "cleanup aborted checking task %s: %v", id, err)
			break
		}
		if exists == 0 {
			if err := c.redis.ZRem(ctx, indexKey, id).Err(); err != nil {
				logger.WarnCtx(ctx, "cleanup failed removing index entry %s: %v", id, err)
				continue
			}
			removed++
		}
	}
	return removed
}

// Stats summarizes cache state: total index size plus a status histogram
// sampled from a bounded recent-results read. The histogram is a sample,
// not a full scan, to bound cost on large indexes.
type Stats struct {
	TotalTracked        int64          `json:"total_tracked"`
	StatusDistribution  map[string]int `json:"status_distribution"`
	SampleSize          int            `json:"sample_size"`
	DefaultTTLSeconds   int            `json:"default_ttl_seconds"`
	CompletedTTLSeconds int            `json:"completed_ttl_seconds"`
}

// CacheStats returns current cache statistics, nil when the store is
// unreachable so operator reads can report unavailability.
func (c *Cache) CacheStats(ctx context.Context) *Stats {
	total, err := c.redis.ZCard(ctx, indexKey).Result()
	if err != nil {
		logger.WarnCtx(ctx, "result cache unavailable reading stats: %v", err)
		return nil
	}

	stats := &Stats{
		TotalTracked:        total,
		StatusDistribution:  make(map[string]int),
		DefaultTTLSeconds:   int(c.defaultTTL / time.Second),
		CompletedTTLSeconds: int(c.completedTTL / time.Second),
	}

	sample := c.RecentResults(ctx, c.statsSample)
	stats.SampleSize = len(sample)
	for _, result := range sample {
		stats.StatusDistribution[result.Status.String()]++
	}
	return stats
}
