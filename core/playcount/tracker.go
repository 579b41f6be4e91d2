package playcount

import (
	"context"
	"errors"
	"sync"
	"time"

	"mediacore/logger"
	"mediacore/metrics"
	"mediacore/model"
)

// Store is the slice of the track repository the tracker writes through.
type Store interface {
	GetTrackByFileName(ctx context.Context, fileName string) (*model.Track, error)
	IncrementPlayCount(ctx context.Context, trackID int64) error
}

const eventTimeout = 5 * time.Second

// Tracker counts plays in the background. Increment never blocks: when the
// queue is full the event is dropped. Counts are a popularity signal, so a
// lost or duplicated event is acceptable.
type Tracker struct {
	store   Store
	workers int
	queue   chan string

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	start  sync.Once
}

// NewTracker 创建播放计数器
func NewTracker(store Store, workers, queueSize int) *Tracker {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Tracker{
		store:   store,
		workers: workers,
		queue:   make(chan string, queueSize),
	}
}

// Start launches the workers. Events already queued before Start are kept.
func (t *Tracker) Start(ctx context.Context) {
	t.start.Do(func() {
		for i := 0; i < t.workers; i++ {
			t.wg.Add(1)
			go func(workerID int) {
				defer t.wg.Done()
				t.worker(ctx, workerID)
			}(i)
		}
		logger.Info("播放计数器已启动", logger.Int("workers", t.workers), logger.Int("queueSize", cap(t.queue)))
	})
}

// Increment records one play of fileName.
func (t *Tracker) Increment(fileName string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		metrics.PlayCountEventsTotal.WithLabelValues("dropped").Inc()
		return
	}
	select {
	case t.queue <- fileName:
	default:
		metrics.PlayCountEventsTotal.WithLabelValues("dropped").Inc()
		logger.Debug("播放计数队列已满，丢弃事件", logger.String("file", fileName))
	}
}

// Stop 停止接收新事件，并等待队列中的事件处理完毕
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()

	t.wg.Wait()
}

func (t *Tracker) worker(ctx context.Context, workerID int) {
	// 关闭时仍需处理队列中剩余的事件
	base := context.WithoutCancel(ctx)
	for fileName := range t.queue {
		t.apply(base, workerID, fileName)
	}
}

func (t *Tracker) apply(ctx context.Context, workerID int, fileName string) {
	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	track, err := t.store.GetTrackByFileName(ctx, fileName)
	if err == nil {
		err = t.store.IncrementPlayCount(ctx, track.ID)
	}

	switch {
	case err == nil:
		metrics.PlayCountEventsTotal.WithLabelValues("applied").Inc()
	case errors.Is(err, model.ErrNotFound):
		metrics.PlayCountEventsTotal.WithLabelValues("unresolved").Inc()
		logger.Debug("播放文件没有对应的歌曲", logger.String("file", fileName))
	default:
		metrics.PlayCountEventsTotal.WithLabelValues("failed").Inc()
		logger.Warn("更新播放次数失败",
			logger.Int("worker", workerID),
			logger.String("file", fileName),
			logger.ErrorField(err))
	}
}
