package repository

import (
	"context"
	"testing"

	"mediacore/db/dbtest"
	"mediacore/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func seedTrack(t *testing.T, gdb *gorm.DB, fileName string) *model.Track {
	t.Helper()
	track := &model.Track{Title: fileName, FileName: fileName}
	require.NoError(t, gdb.Create(track).Error)
	return track
}

func TestTrackRepository(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := NewGormTrackRepository(gdb)
	track := seedTrack(t, gdb, "song.mp3")

	t.Run("get by id and file name", func(t *testing.T) {
		got, err := repo.GetTrackByID(ctx, track.ID)
		require.NoError(t, err)
		assert.Equal(t, "song.mp3", got.FileName)

		got, err = repo.GetTrackByFileName(ctx, "song.mp3")
		require.NoError(t, err)
		assert.Equal(t, track.ID, got.ID)
	})

	t.Run("missing track is ErrNotFound", func(t *testing.T) {
		_, err := repo.GetTrackByID(ctx, 9999)
		assert.ErrorIs(t, err, model.ErrNotFound)

		_, err = repo.GetTrackByFileName(ctx, "nope.mp3")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("increment play count", func(t *testing.T) {
		require.NoError(t, repo.IncrementPlayCount(ctx, track.ID))
		require.NoError(t, repo.IncrementPlayCount(ctx, track.ID))

		got, err := repo.GetTrackByID(ctx, track.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.PlayCount)

		assert.ErrorIs(t, repo.IncrementPlayCount(ctx, 9999), model.ErrNotFound)
	})

	t.Run("list ids", func(t *testing.T) {
		other := seedTrack(t, gdb, "other.mp3")
		ids, err := repo.ListTrackIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{track.ID, other.ID}, ids)
	})
}

func TestRatingRepositoryUniqueIndex(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := NewGormRatingRepository(gdb)
	track := seedTrack(t, gdb, "a.mp3")

	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		return repo.CreateRatingWithTx(tx, &model.Rating{TrackID: track.ID, UserID: 1, Value: 4})
	}))

	err := gdb.Transaction(func(tx *gorm.DB) error {
		return repo.CreateRatingWithTx(tx, &model.Rating{TrackID: track.ID, UserID: 1, Value: 2})
	})
	assert.ErrorIs(t, err, model.ErrConflict)

	values, err := repo.ListRatingValuesByTrack(ctx, track.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, values)
}

func TestRatingRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := NewGormRatingRepository(gdb)
	track := seedTrack(t, gdb, "b.mp3")

	rating := &model.Rating{TrackID: track.ID, UserID: 7, Value: 3}
	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		return repo.CreateRatingWithTx(tx, rating)
	}))
	require.NotZero(t, rating.ID)

	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		found, err := repo.FindRatingByUserAndTrackWithTx(tx, 7, track.ID)
		require.NoError(t, err)
		require.NotNil(t, found)

		none, err := repo.FindRatingByUserAndTrackWithTx(tx, 8, track.ID)
		require.NoError(t, err)
		assert.Nil(t, none)

		review := "better on second listen"
		found.Value = 5
		found.Review = &review
		return repo.UpdateRatingWithTx(tx, found)
	}))

	got, err := repo.GetRatingByID(ctx, rating.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Value)
	require.NotNil(t, got.Review)
	assert.Equal(t, "better on second listen", *got.Review)

	list, err := repo.ListRatingsByTrack(ctx, track.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		return repo.DeleteRatingWithTx(tx, rating.ID)
	}))
	_, err = repo.GetRatingByID(ctx, rating.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = gdb.Transaction(func(tx *gorm.DB) error {
		return repo.DeleteRatingWithTx(tx, rating.ID)
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTransactorRollsBack(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	tracks := NewGormTrackRepository(gdb)
	track := seedTrack(t, gdb, "c.mp3")

	err := NewGormTransactor(gdb).Transaction(ctx, func(tx *gorm.DB) error {
		if err := tracks.UpdateRatingAggregateWithTx(tx, track.ID, 4.5, 2); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	got, err := tracks.GetTrackByID(ctx, track.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RatingAverage)
	assert.Zero(t, got.RatingCount)
}

// sqlite 会丢弃 FOR UPDATE，并发测试无法覆盖行锁，这里直接检查 MySQL 方言生成的 SQL
func TestLockingReadsUseForUpdate(t *testing.T) {
	gdb, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "mediacore:mediacore@tcp(127.0.0.1:3306)/mediacore?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	require.NoError(t, err)

	var captured []string
	require.NoError(t, gdb.Callback().Query().After("gorm:query").Register("test:capture_sql", func(db *gorm.DB) {
		captured = append(captured, db.Statement.SQL.String())
	}))

	_, _ = NewGormTrackRepository(gdb).LockTrackWithTx(gdb, 1)
	_, _ = NewGormRatingRepository(gdb).GetRatingByIDWithTx(gdb, 1)

	require.Len(t, captured, 2)
	assert.Contains(t, captured[0], "FROM `tracks`")
	assert.Contains(t, captured[0], "FOR UPDATE")
	assert.Contains(t, captured[1], "FROM `ratings`")
	assert.Contains(t, captured[1], "FOR UPDATE")
}
