package rating

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mediacore/logger"
	"mediacore/metrics"
	"mediacore/model"
	"mediacore/repository"

	"gorm.io/gorm"
)

// StatsCache is the read-side cache of per-track rating stats. Writes drop the
// cached entry after commit and move the track's version forward; a fill is
// only accepted under the version that was current before the stats were
// read from the database.
type StatsCache interface {
	GetStats(ctx context.Context, trackID int64) (stats *model.RatingStats, version int64, err error)
	SetStats(ctx context.Context, stats *model.RatingStats, version int64) (bool, error)
	InvalidateStats(ctx context.Context, trackID int64) error
}

// CreateInput 创建评分的请求参数
type CreateInput struct {
	TrackID int64
	UserID  int64
	Value   int
	Review  *string
}

// UpdateInput carries the field changes of an update; nil fields are left as
// they are. An empty Review clears the stored review.
type UpdateInput struct {
	Value  *int
	Review *string
}

// Result is a mutated rating together with the track aggregate committed in
// the same transaction.
type Result struct {
	Rating *model.Rating         `json:"rating"`
	Track  model.RatingAggregate `json:"track"`
}

// Coordinator performs create/update/delete of a single user's rating and the
// aggregate recomputation as one transaction.
//
// Lock order is rating row before track row. Create only takes the track row
// lock, so no writer ever holds a track lock while waiting on a rating lock.
type Coordinator struct {
	tx         repository.Transactor
	tracks     repository.TrackRepository
	ratings    repository.RatingRepository
	recomputer *Recomputer
	cache      StatsCache
	timeout    time.Duration
}

// NewCoordinator 创建评分写协调器。cache 可以为 nil；timeout <= 0 表示不设截止时间
func NewCoordinator(
	tx repository.Transactor,
	tracks repository.TrackRepository,
	ratings repository.RatingRepository,
	cache StatsCache,
	timeout time.Duration,
) *Coordinator {
	return &Coordinator{
		tx:         tx,
		tracks:     tracks,
		ratings:    ratings,
		recomputer: NewRecomputer(tracks, ratings),
		cache:      cache,
		timeout:    timeout,
	}
}

// Create inserts the caller's rating for a track. The existence check runs
// under the track row lock, so two concurrent creates for the same
// (user, track) cannot both pass it; the unique index backs this up.
func (c *Coordinator) Create(ctx context.Context, in CreateInput) (*Result, error) {
	if !model.ValidRatingValue(in.Value) {
		return nil, model.ErrInvalidRating
	}

	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	var result *Result
	err := c.tx.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := c.tracks.LockTrackWithTx(tx, in.TrackID); err != nil {
			return err
		}

		existing, err := c.ratings.FindRatingByUserAndTrackWithTx(tx, in.UserID, in.TrackID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("user %d already rated track %d: %w", in.UserID, in.TrackID, model.ErrConflict)
		}

		row := &model.Rating{
			TrackID: in.TrackID,
			UserID:  in.UserID,
			Value:   in.Value,
			Review:  normalizeReview(in.Review),
		}
		if err := c.ratings.CreateRatingWithTx(tx, row); err != nil {
			return err
		}

		agg, err := c.recomputer.Recompute(tx, in.TrackID)
		if err != nil {
			return err
		}
		result = &Result{Rating: row, Track: agg}
		return nil
	})

	c.finish(ctx, "create", in.TrackID, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Update applies field changes to a rating owned by callerID.
func (c *Coordinator) Update(ctx context.Context, ratingID, callerID int64, in UpdateInput) (*Result, error) {
	if in.Value != nil && !model.ValidRatingValue(*in.Value) {
		return nil, model.ErrInvalidRating
	}

	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	var result *Result
	var trackID int64
	err := c.tx.Transaction(ctx, func(tx *gorm.DB) error {
		row, err := c.loadOwned(tx, ratingID, callerID)
		if err != nil {
			return err
		}
		trackID = row.TrackID

		if _, err := c.tracks.LockTrackWithTx(tx, row.TrackID); err != nil {
			return err
		}

		if in.Value != nil {
			row.Value = *in.Value
		}
		if in.Review != nil {
			row.Review = normalizeReview(in.Review)
		}
		if err := c.ratings.UpdateRatingWithTx(tx, row); err != nil {
			return err
		}

		agg, err := c.recomputer.Recompute(tx, row.TrackID)
		if err != nil {
			return err
		}
		result = &Result{Rating: row, Track: agg}
		return nil
	})

	c.finish(ctx, "update", trackID, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a rating owned by callerID and returns the track aggregate
// after the removal.
func (c *Coordinator) Delete(ctx context.Context, ratingID, callerID int64) (model.RatingAggregate, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	var agg model.RatingAggregate
	var trackID int64
	err := c.tx.Transaction(ctx, func(tx *gorm.DB) error {
		row, err := c.loadOwned(tx, ratingID, callerID)
		if err != nil {
			return err
		}
		// captured before the row disappears
		trackID = row.TrackID

		if _, err := c.tracks.LockTrackWithTx(tx, trackID); err != nil {
			return err
		}
		if err := c.ratings.DeleteRatingWithTx(tx, ratingID); err != nil {
			return err
		}

		agg, err = c.recomputer.Recompute(tx, trackID)
		return err
	})

	c.finish(ctx, "delete", trackID, err)
	if err != nil {
		return model.RatingAggregate{}, err
	}
	return agg, nil
}

// RecomputeTrack re-derives one track's aggregate in its own transaction.
// Used by the repair command; regular writes recompute inside their own
// transaction instead.
func (c *Coordinator) RecomputeTrack(ctx context.Context, trackID int64) (model.RatingAggregate, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	var agg model.RatingAggregate
	err := c.tx.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := c.tracks.LockTrackWithTx(tx, trackID); err != nil {
			return err
		}
		var err error
		agg, err = c.recomputer.Recompute(tx, trackID)
		return err
	})
	c.finish(ctx, "recompute", trackID, err)
	if err != nil {
		return model.RatingAggregate{}, err
	}
	return agg, nil
}

func (c *Coordinator) loadOwned(tx *gorm.DB, ratingID, callerID int64) (*model.Rating, error) {
	row, err := c.ratings.GetRatingByIDWithTx(tx, ratingID)
	if err != nil {
		return nil, err
	}
	if row.UserID != callerID {
		return nil, fmt.Errorf("rating %d belongs to another user: %w", ratingID, model.ErrForbidden)
	}
	return row, nil
}

func (c *Coordinator) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// finish records the outcome and, after a successful commit, drops the cached
// stats of the track. Cache failures only get logged.
func (c *Coordinator) finish(ctx context.Context, op string, trackID int64, err error) {
	metrics.RatingWritesTotal.WithLabelValues(op, resultLabel(err)).Inc()

	if err != nil {
		logger.Warn("评分写入失败，事务已回滚",
			logger.String("op", op),
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		return
	}

	logger.Info("评分写入完成",
		logger.String("op", op),
		logger.Int64("trackId", trackID))

	if c.cache == nil {
		return
	}
	// the write already committed, so a cancelled request context must not
	// prevent the invalidation
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := c.cache.InvalidateStats(cctx, trackID); err != nil {
		logger.Warn("清除评分统计缓存失败",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrForbidden):
		return "forbidden"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func normalizeReview(review *string) *string {
	if review == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*review)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
