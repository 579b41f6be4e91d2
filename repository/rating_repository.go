package repository

import (
	"context"
	"fmt"

	"mediacore/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RatingRepository 评分数据访问接口
// 所有写操作只提供事务版本，由 RatingWriteCoordinator 统一驱动
type RatingRepository interface {
	GetRatingByID(ctx context.Context, id int64) (*model.Rating, error)
	ListRatingsByTrack(ctx context.Context, trackID int64) ([]*model.Rating, error)
	ListRatingValuesByTrack(ctx context.Context, trackID int64) ([]int, error)

	GetRatingByIDWithTx(tx *gorm.DB, id int64) (*model.Rating, error)
	FindRatingByUserAndTrackWithTx(tx *gorm.DB, userID, trackID int64) (*model.Rating, error)
	CreateRatingWithTx(tx *gorm.DB, rating *model.Rating) error
	UpdateRatingWithTx(tx *gorm.DB, rating *model.Rating) error
	DeleteRatingWithTx(tx *gorm.DB, id int64) error
	ListRatingValuesByTrackWithTx(tx *gorm.DB, trackID int64) ([]int, error)
}

type gormRatingRepository struct {
	db *gorm.DB
}

// NewGormRatingRepository 创建 GORM 评分仓库
func NewGormRatingRepository(db *gorm.DB) RatingRepository {
	return &gormRatingRepository{db: db}
}

func (r *gormRatingRepository) GetRatingByID(ctx context.Context, id int64) (*model.Rating, error) {
	var rating model.Rating
	if err := r.db.WithContext(ctx).First(&rating, id).Error; err != nil {
		return nil, translate(err, "rating %d", id)
	}
	return &rating, nil
}

// ListRatingsByTrack 按创建时间倒序返回歌曲的全部评分
func (r *gormRatingRepository) ListRatingsByTrack(ctx context.Context, trackID int64) ([]*model.Rating, error) {
	ratings := make([]*model.Rating, 0)
	err := r.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&ratings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings for track %d: %w", trackID, err)
	}
	return ratings, nil
}

func (r *gormRatingRepository) ListRatingValuesByTrack(ctx context.Context, trackID int64) ([]int, error) {
	return r.listValues(r.db.WithContext(ctx), trackID)
}

// GetRatingByIDWithTx 在事务中读取并锁定评分行
func (r *gormRatingRepository) GetRatingByIDWithTx(tx *gorm.DB, id int64) (*model.Rating, error) {
	var rating model.Rating
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rating, id).Error
	if err != nil {
		return nil, translate(err, "rating %d", id)
	}
	return &rating, nil
}

// FindRatingByUserAndTrackWithTx returns (nil, nil) when the user has not
// rated the track yet.
func (r *gormRatingRepository) FindRatingByUserAndTrackWithTx(tx *gorm.DB, userID, trackID int64) (*model.Rating, error) {
	var ratings []model.Rating
	err := tx.Where("user_id = ? AND track_id = ?", userID, trackID).
		Limit(1).
		Find(&ratings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up rating of user %d for track %d: %w", userID, trackID, err)
	}
	if len(ratings) == 0 {
		return nil, nil
	}
	return &ratings[0], nil
}

func (r *gormRatingRepository) CreateRatingWithTx(tx *gorm.DB, rating *model.Rating) error {
	if err := tx.Create(rating).Error; err != nil {
		return translate(err, "create rating of user %d for track %d", rating.UserID, rating.TrackID)
	}
	return nil
}

// UpdateRatingWithTx 只更新 value 和 review，track_id/user_id 不可变
func (r *gormRatingRepository) UpdateRatingWithTx(tx *gorm.DB, rating *model.Rating) error {
	err := tx.Model(rating).
		Select("value", "review", "updated_at").
		Updates(rating).Error
	if err != nil {
		return translate(err, "update rating %d", rating.ID)
	}
	return nil
}

func (r *gormRatingRepository) DeleteRatingWithTx(tx *gorm.DB, id int64) error {
	res := tx.Delete(&model.Rating{}, id)
	if res.Error != nil {
		return translate(res.Error, "delete rating %d", id)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("rating %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func (r *gormRatingRepository) ListRatingValuesByTrackWithTx(tx *gorm.DB, trackID int64) ([]int, error) {
	return r.listValues(tx, trackID)
}

func (r *gormRatingRepository) listValues(q *gorm.DB, trackID int64) ([]int, error) {
	values := make([]int, 0)
	err := q.Model(&model.Rating{}).
		Where("track_id = ?", trackID).
		Pluck("value", &values).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read rating values for track %d: %w", trackID, err)
	}
	return values, nil
}
