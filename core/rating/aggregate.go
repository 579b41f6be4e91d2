package rating

import (
	"fmt"
	"strconv"

	"mediacore/model"
	"mediacore/repository"

	"gorm.io/gorm"
)

// summary is the single place average/count/distribution are derived from a
// set of rating values; both the transactional recompute and the read-only
// stats go through it.
type summary struct {
	count        int64
	average      float64
	distribution map[string]int64
}

func summarize(values []int) summary {
	s := summary{distribution: make(map[string]int64, model.MaxRatingValue)}
	for v := model.MinRatingValue; v <= model.MaxRatingValue; v++ {
		s.distribution[strconv.Itoa(v)] = 0
	}

	var sum int64
	for _, v := range values {
		sum += int64(v)
		s.count++
		if model.ValidRatingValue(v) {
			s.distribution[strconv.Itoa(v)]++
		}
	}
	if s.count > 0 {
		s.average = float64(sum) / float64(s.count)
	}
	return s
}

// Recomputer re-derives a track's rating aggregate from the full set of its
// rating rows.
type Recomputer struct {
	tracks  repository.TrackRepository
	ratings repository.RatingRepository
}

// NewRecomputer 创建评分聚合重算器
func NewRecomputer(tracks repository.TrackRepository, ratings repository.RatingRepository) *Recomputer {
	return &Recomputer{tracks: tracks, ratings: ratings}
}

// Recompute reads every rating of trackID inside tx and writes the resulting
// average and count onto the track row in the same transaction. The caller is
// expected to hold the track row lock (see TrackRepository.LockTrackWithTx).
// Calling it again without intervening writes yields the same numbers.
func (r *Recomputer) Recompute(tx *gorm.DB, trackID int64) (model.RatingAggregate, error) {
	values, err := r.ratings.ListRatingValuesByTrackWithTx(tx, trackID)
	if err != nil {
		return model.RatingAggregate{}, err
	}

	s := summarize(values)
	if err := r.tracks.UpdateRatingAggregateWithTx(tx, trackID, s.average, s.count); err != nil {
		return model.RatingAggregate{}, fmt.Errorf("recompute track %d: %w", trackID, err)
	}

	return model.RatingAggregate{
		TrackID:       trackID,
		AverageRating: s.average,
		TotalRatings:  s.count,
	}, nil
}
