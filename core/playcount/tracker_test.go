package playcount

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"mediacore/db/dbtest"
	"mediacore/model"
	"mediacore/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerCountsPlays(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := repository.NewGormTrackRepository(gdb)

	track := &model.Track{Title: "a", FileName: "a.mp3"}
	require.NoError(t, gdb.Create(track).Error)

	tracker := NewTracker(repo, 4, 100)
	tracker.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Increment("a.mp3")
		}()
	}
	wg.Wait()
	tracker.Increment("stale-name.mp3")
	tracker.Stop()

	got, err := repo.GetTrackByID(ctx, track.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.PlayCount)
}

type blockingStore struct {
	release chan struct{}
	applied atomic.Int64
}

func (b *blockingStore) GetTrackByFileName(_ context.Context, fileName string) (*model.Track, error) {
	<-b.release
	return &model.Track{ID: 1, FileName: fileName}, nil
}

func (b *blockingStore) IncrementPlayCount(context.Context, int64) error {
	b.applied.Add(1)
	return nil
}

func TestTrackerDropsWhenFull(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	tracker := NewTracker(store, 1, 2)

	// not started: the queue holds two events, the rest are dropped
	for i := 0; i < 5; i++ {
		tracker.Increment("x.mp3")
	}

	close(store.release)
	tracker.Start(context.Background())
	tracker.Stop()

	assert.Equal(t, int64(2), store.applied.Load())
}

type failingStore struct{ calls atomic.Int64 }

func (f *failingStore) GetTrackByFileName(context.Context, string) (*model.Track, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

func (f *failingStore) IncrementPlayCount(context.Context, int64) error { return nil }

func TestTrackerSwallowsFailures(t *testing.T) {
	store := &failingStore{}
	tracker := NewTracker(store, 2, 10)
	tracker.Start(context.Background())

	assert.NotPanics(t, func() {
		tracker.Increment("a.mp3")
		tracker.Increment("b.mp3")
	})
	tracker.Stop()
	assert.Equal(t, int64(2), store.calls.Load())
}

func TestTrackerIncrementAfterStop(t *testing.T) {
	store := &failingStore{}
	tracker := NewTracker(store, 1, 10)
	tracker.Start(context.Background())
	tracker.Stop()
	tracker.Stop()

	assert.NotPanics(t, func() { tracker.Increment("late.mp3") })
	assert.Zero(t, store.calls.Load())
}
