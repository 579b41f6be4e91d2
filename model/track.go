package model

import (
	"net/url"
	"strings"
	"time"
)

// Track represents an audio track in the catalog.
// Rows are created and removed by the catalog; this service only touches
// PlayCount, RatingAverage and RatingCount.
type Track struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Title           string    `json:"title" gorm:"size:255"`
	AudioURL        string    `json:"audioUrl" gorm:"size:767"`                      // external absolute URL, empty for locally stored audio
	FileName        string    `json:"fileName" gorm:"size:255;not null;uniqueIndex"` // stable blob key under the content root
	DurationSeconds *float64  `json:"durationSeconds"`                               // nil until known
	PlayCount       int64     `json:"playCount" gorm:"not null;default:0"`           // best-effort popularity signal
	RatingAverage   float64   `json:"ratingAverage" gorm:"not null;default:0"`       // derived from ratings
	RatingCount     int64     `json:"ratingCount" gorm:"not null;default:0"`         // derived from ratings
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Track) TableName() string {
	return "tracks"
}

// IsExternal reports whether the audio lives outside this service and must be
// served by redirecting to AudioURL.
func (t *Track) IsExternal() bool {
	if t == nil || t.AudioURL == "" {
		return false
	}
	u, err := url.Parse(t.AudioURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
