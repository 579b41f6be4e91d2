package repository

import (
	"context"
	"errors"
	"fmt"

	"mediacore/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrackRepository defines the track data operations this service needs.
// Track rows are owned by the catalog; only the counters and derived
// rating columns are written here.
type TrackRepository interface {
	GetTrackByID(ctx context.Context, id int64) (*model.Track, error)
	GetTrackByFileName(ctx context.Context, fileName string) (*model.Track, error)
	ListTrackIDs(ctx context.Context) ([]int64, error)
	IncrementPlayCount(ctx context.Context, trackID int64) error

	// LockTrackWithTx reads the track row with SELECT ... FOR UPDATE so that
	// writers recomputing the same track serialize.
	LockTrackWithTx(tx *gorm.DB, trackID int64) (*model.Track, error)
	UpdateRatingAggregateWithTx(tx *gorm.DB, trackID int64, average float64, count int64) error
}

type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository creates a GORM backed TrackRepository.
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// GetTrackByID retrieves a track by its ID.
func (r *gormTrackRepository) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	var track model.Track
	if err := r.db.WithContext(ctx).First(&track, id).Error; err != nil {
		return nil, translate(err, "track %d", id)
	}
	return &track, nil
}

// GetTrackByFileName resolves a stored blob back to its owning track.
func (r *gormTrackRepository) GetTrackByFileName(ctx context.Context, fileName string) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).
		Where("file_name = ?", fileName).
		First(&track).Error
	if err != nil {
		return nil, translate(err, "track with file %q", fileName)
	}
	return &track, nil
}

func (r *gormTrackRepository) ListTrackIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.Track{}).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list track ids: %w", err)
	}
	return ids, nil
}

// IncrementPlayCount bumps play_count in a single UPDATE so concurrent
// increments never lose each other.
func (r *gormTrackRepository) IncrementPlayCount(ctx context.Context, trackID int64) error {
	res := r.db.WithContext(ctx).Model(&model.Track{}).
		Where("id = ?", trackID).
		UpdateColumn("play_count", gorm.Expr("play_count + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("failed to increment play count for track %d: %w", trackID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("track %d: %w", trackID, model.ErrNotFound)
	}
	return nil
}

func (r *gormTrackRepository) LockTrackWithTx(tx *gorm.DB, trackID int64) (*model.Track, error) {
	var track model.Track
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&track, trackID).Error
	if err != nil {
		return nil, translate(err, "track %d", trackID)
	}
	return &track, nil
}

func (r *gormTrackRepository) UpdateRatingAggregateWithTx(tx *gorm.DB, trackID int64, average float64, count int64) error {
	res := tx.Model(&model.Track{}).
		Where("id = ?", trackID).
		UpdateColumns(map[string]interface{}{
			"rating_average": average,
			"rating_count":   count,
		})
	// RowsAffected is not checked: MySQL reports 0 when the values are
	// unchanged, and the row is already locked by the caller.
	if res.Error != nil {
		return fmt.Errorf("failed to update rating aggregate for track %d: %w", trackID, res.Error)
	}
	return nil
}

// translate maps storage errors onto the model error taxonomy.
func translate(err error, format string, args ...interface{}) error {
	what := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, model.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
