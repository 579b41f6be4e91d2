package model

import "time"

const (
	MinRatingValue = 1
	MaxRatingValue = 5
)

// Rating 用户对歌曲的评分，每个用户对同一首歌最多一条
type Rating struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	TrackID   int64     `json:"trackId" gorm:"not null;index;uniqueIndex:uq_rating_user_track,priority:2"`
	UserID    int64     `json:"userId" gorm:"not null;uniqueIndex:uq_rating_user_track,priority:1"`
	Value     int       `json:"value" gorm:"not null"`
	Review    *string   `json:"review,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Rating) TableName() string {
	return "ratings"
}

// ValidRatingValue reports whether v is inside [MinRatingValue, MaxRatingValue].
func ValidRatingValue(v int) bool {
	return v >= MinRatingValue && v <= MaxRatingValue
}

// RatingAggregate 歌曲评分的派生统计
type RatingAggregate struct {
	TrackID       int64   `json:"trackId"`
	AverageRating float64 `json:"averageRating"`
	TotalRatings  int64   `json:"totalRatings"`
}

// RatingStats is the read-only view served by the stats endpoint.
type RatingStats struct {
	TrackID       int64            `json:"trackId"`
	AverageRating float64          `json:"averageRating"`
	TotalRatings  int64            `json:"totalRatings"`
	Distribution  map[string]int64 `json:"distribution"`
}
