package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"mediacore/model"

	"github.com/redis/go-redis/v9"
)

const (
	ratingStatsKey        = "rating:stats:%d"     // String: RatingStats JSON
	ratingStatsVersionKey = "rating:stats:ver:%d" // String: 每次失效自增
)

// 版本键比统计缓存活得久，读者拿到的版本不会在一次查询期间过期归零
const statsVersionTTL = 24 * time.Hour

// StatsCache 评分统计缓存，写入评分后由协调器清除
//
// 回填是条件写：读者在查库之前记下版本号，只有版本号在这期间没有被
// InvalidateStats 改变时才写入，避免把提交前的旧统计写回缓存。
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache 创建评分统计缓存
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, ttl: ttl}
}

// GetStatsKey 根据歌曲ID生成统计缓存的Redis键
func GetStatsKey(trackID int64) string {
	return fmt.Sprintf(ratingStatsKey, trackID)
}

// GetStatsVersionKey 根据歌曲ID生成版本号的Redis键
func GetStatsVersionKey(trackID int64) string {
	return fmt.Sprintf(ratingStatsVersionKey, trackID)
}

// GetStats reads the cached stats and the current version in one round trip.
// A miss returns nil stats; the version is what SetStats must be given later.
func (c *StatsCache) GetStats(ctx context.Context, trackID int64) (*model.RatingStats, int64, error) {
	key := GetStatsKey(trackID)
	vals, err := c.client.MGet(ctx, key, GetStatsVersionKey(trackID)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get rating stats cache: %w", err)
	}

	var version int64
	if raw, ok := vals[1].(string); ok {
		version, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid rating stats version %q: %w", raw, err)
		}
	}

	data, ok := vals[0].(string)
	if !ok {
		return nil, version, nil
	}
	var stats model.RatingStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		// 损坏的缓存直接丢弃
		c.client.Del(ctx, key)
		return nil, version, nil
	}
	return &stats, version, nil
}

// SetStats stores stats only if the version still equals the one observed
// before they were computed. It reports whether the entry was written.
func (c *StatsCache) SetStats(ctx context.Context, stats *model.RatingStats, version int64) (bool, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return false, fmt.Errorf("failed to marshal rating stats: %w", err)
	}

	verKey := GetStatsVersionKey(stats.TrackID)
	written := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, GetStatsKey(stats.TrackID), data, c.ttl)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}, verKey)
	if errors.Is(err, redis.TxFailedErr) {
		// 版本号在 WATCH 之后被改动
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to set rating stats cache: %w", err)
	}
	return written, nil
}

// InvalidateStats bumps the version and drops the entry atomically, so any
// fill computed before this call is refused.
func (c *StatsCache) InvalidateStats(ctx context.Context, trackID int64) error {
	verKey := GetStatsVersionKey(trackID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, verKey)
		pipe.Expire(ctx, verKey, statsVersionTTL)
		pipe.Del(ctx, GetStatsKey(trackID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete rating stats cache: %w", err)
	}
	return nil
}
