package recovery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"taskpulse/internal/model"
	"taskpulse/pkg/config"
	"taskpulse/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const (
	failureKeyPrefix = "failed_task:"      // failed_task:<id>:<retry> -> serialized FailureRecord
	failureIndexKey  = "failed_task:index" // sorted set, member=<id>:<retry>, score=failed-at unix time
)

// Store keeps one record per failure occurrence for a bounded window so
// the monitor can tabulate failure statistics. Records are JSON encoded,
// never stored as executable text.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStore creates a failure record store.
func NewStore(rdb *redis.Client, cfg *config.CacheConfig) *Store {
	return &Store{
		redis: rdb,
		ttl:   time.Duration(cfg.FailureTTL) * time.Second,
	}
}

// Save writes the record and its time-index entry. Returns false on
// store unavailability, matching the result cache's tolerance contract.
func (s *Store) Save(ctx context.Context, record *model.FailureRecord) bool {
	data, err := record.ToJSON()
	if err != nil {
		logger.ErrorCtx(ctx, "failed to serialize failure record for task %s: %v", record.TaskID, err)
		return false
	}

	member := record.TaskID + ":" + strconv.Itoa(record.RetryCount)
	pipe := s.redis.Pipeline()
	pipe.Set(ctx, failureKeyPrefix+member, data, s.ttl)
	pipe.ZAdd(ctx, failureIndexKey, &redis.Z{
		Score:  float64(record.FailedAt.Unix()),
		Member: member,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		logger.WarnCtx(ctx, "failure store unavailable, dropping record for task %s: %v", record.TaskID, err)
		return false
	}
	return true
}

// Get resolves an index member to its record, nil on miss or malformed
// data.
func (s *Store) Get(ctx context.Context, member string) *model.FailureRecord {
	data, err := s.redis.Get(ctx, failureKeyPrefix+member).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		logger.WarnCtx(ctx, "failure store unavailable reading %s: %v", member, err)
		return nil
	}

	var record model.FailureRecord
	if err := record.FromJSON(data); err != nil {
		logger.WarnCtx(ctx, "malformed failure record %s: %v", member, err)
		return nil
	}
	return &record
}

// Statistics summarizes failures within the trailing window.
type Statistics struct {
	TotalFailures int            `json:"total_failures"`
	FailureTypes  map[string]int `json:"failure_types"`
	TaskNames     map[string]int `json:"task_names"`
	FailureRate   float64        `json:"failure_rate"` // failures per hour
	WindowHours   int            `json:"window_hours"`
}

// Statistics windows the failure index and tabulates counts by category
// and task name. Index entries whose record has expired are skipped.
// Returns nil when the store is unreachable so operator reads can
// report unavailability.
func (s *Store) Statistics(ctx context.Context, hours int) *Statistics {
	stats := &Statistics{
		FailureTypes: make(map[string]int),
		TaskNames:    make(map[string]int),
		WindowHours:  hours,
	}
	if hours <= 0 {
		return stats
	}

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour).Unix()
	members, err := s.redis.ZRangeByScore(ctx, failureIndexKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", cutoff),
		Max: "+inf",
	}).Result()
	if err != nil {
		logger.WarnCtx(ctx, "failure store unavailable reading statistics: %v", err)
		return nil
	}

	for _, member := range members {
		record := s.Get(ctx, member)
		if record == nil {
			continue
		}
		stats.TotalFailures++
		stats.FailureTypes[record.FailureType.String()]++
		stats.TaskNames[record.TaskName]++
	}
	stats.FailureRate = float64(stats.TotalFailures) / float64(hours)
	return stats
}

// CleanupExpired removes index entries whose backing record has expired.
// Returns the number removed.
func (s *Store) CleanupExpired(ctx context.Context) int {
	members, err := s.redis.ZRange(ctx, failureIndexKey, 0, -1).Result()
	if err != nil {
		logger.WarnCtx(ctx, "failure store unavailable during cleanup: %v", err)
		return 0
	}

	removed := 0
	for _, member := range members {
		exists, err := s.redis.Exists(ctx, failureKeyPrefix+member).Result()
		if err != nil {
			logger.WarnCtx(ctx, "failure cleanup aborted checking %s: %v", member, err)
			break
		}
		if exists == 0 {
			if err := s.redis.ZRem(ctx, failureIndexKey, member).Err(); err != nil {
				continue
			}
			removed++
		}
	}
	return removed
}
