package rating

import (
	"context"

	"mediacore/logger"
	"mediacore/model"
	"mediacore/repository"
)

// Reader serves the read-only rating views. Stats are computed exactly like
// Recompute but without a transaction or any write.
type Reader struct {
	tracks  repository.TrackRepository
	ratings repository.RatingRepository
	cache   StatsCache
}

// NewReader 创建评分读取服务，cache 可以为 nil
func NewReader(tracks repository.TrackRepository, ratings repository.RatingRepository, cache StatsCache) *Reader {
	return &Reader{tracks: tracks, ratings: ratings, cache: cache}
}

// Stats returns average, total and the 1..5 distribution for a track.
func (r *Reader) Stats(ctx context.Context, trackID int64) (*model.RatingStats, error) {
	// 版本号必须在查库之前读取，否则无法识别查询期间发生的写入
	fill := false
	var version int64
	if r.cache != nil {
		cached, v, err := r.cache.GetStats(ctx, trackID)
		if err != nil {
			logger.Warn("读取评分统计缓存失败", logger.Int64("trackId", trackID), logger.ErrorField(err))
		} else if cached != nil {
			return cached, nil
		} else {
			fill, version = true, v
		}
	}

	if _, err := r.tracks.GetTrackByID(ctx, trackID); err != nil {
		return nil, err
	}

	values, err := r.ratings.ListRatingValuesByTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}
	s := summarize(values)
	stats := &model.RatingStats{
		TrackID:       trackID,
		AverageRating: s.average,
		TotalRatings:  s.count,
		Distribution:  s.distribution,
	}

	if fill {
		written, err := r.cache.SetStats(ctx, stats, version)
		if err != nil {
			logger.Warn("写入评分统计缓存失败", logger.Int64("trackId", trackID), logger.ErrorField(err))
		} else if !written {
			logger.Debug("评分统计在查询期间被修改，跳过回填", logger.Int64("trackId", trackID))
		}
	}
	return stats, nil
}

// Get 根据ID获取单条评分
func (r *Reader) Get(ctx context.Context, ratingID int64) (*model.Rating, error) {
	return r.ratings.GetRatingByID(ctx, ratingID)
}

// ListByTrack returns the ratings of an existing track, newest first.
func (r *Reader) ListByTrack(ctx context.Context, trackID int64) ([]*model.Rating, error) {
	if _, err := r.tracks.GetTrackByID(ctx, trackID); err != nil {
		return nil, err
	}
	return r.ratings.ListRatingsByTrack(ctx, trackID)
}
