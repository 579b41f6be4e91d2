package cmd

import (
	"context"
	"testing"
	"time"

	"mediacore/core/rating"
	"mediacore/db/dbtest"
	"mediacore/model"
	"mediacore/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRecomputeRepairsEveryTrack(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	tracks := repository.NewGormTrackRepository(gdb)

	a := &model.Track{Title: "a", FileName: "a.mp3", RatingAverage: 1, RatingCount: 9}
	b := &model.Track{Title: "b", FileName: "b.mp3", RatingAverage: 5, RatingCount: 3}
	require.NoError(t, gdb.Create(a).Error)
	require.NoError(t, gdb.Create(b).Error)
	require.NoError(t, gdb.Create(&model.Rating{TrackID: a.ID, UserID: 1, Value: 5}).Error)
	require.NoError(t, gdb.Create(&model.Rating{TrackID: a.ID, UserID: 2, Value: 2}).Error)

	coordinator := rating.NewCoordinator(
		repository.NewGormTransactor(gdb), tracks, repository.NewGormRatingRepository(gdb), nil, time.Second)
	require.NoError(t, runRecompute(ctx, coordinator, tracks, 0))

	got, err := tracks.GetTrackByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.5, got.RatingAverage)
	assert.Equal(t, int64(2), got.RatingCount)

	got, err = tracks.GetTrackByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RatingAverage)
	assert.Zero(t, got.RatingCount)

	assert.Error(t, runRecompute(ctx, coordinator, tracks, 9999))
}
