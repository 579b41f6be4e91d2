package stream

import (
	"context"
	"errors"
	"io"
	"net/http"

	"mediacore/logger"
	"mediacore/model"
	"mediacore/storage"
)

// TrackFinder resolves a stored file back to its catalog entry.
type TrackFinder interface {
	GetTrackByFileName(ctx context.Context, fileName string) (*model.Track, error)
}

// PlayNotifier receives a best-effort play event. Implementations must not
// block the caller.
type PlayNotifier interface {
	Increment(fileName string)
}

// Response describes everything needed to answer a stream request. Body is
// nil for redirects, 416 and HEAD; otherwise the caller must close it.
type Response struct {
	Status        int
	ContentType   string
	ContentLength int64
	ContentRange  string
	AcceptRanges  string
	RedirectURL   string
	Body          io.ReadCloser
}

// Service turns a file name plus an optional Range header into a response.
type Service struct {
	blobs  storage.BlobStore
	tracks TrackFinder
	plays  PlayNotifier
}

// NewService 创建音频流服务，tracks 和 plays 可以为 nil
func NewService(blobs storage.BlobStore, tracks TrackFinder, plays PlayNotifier) *Service {
	return &Service{blobs: blobs, tracks: tracks, plays: plays}
}

// Open resolves fileName and the Range header. withBody is false for HEAD
// requests: no stream is opened and no play is recorded.
//
// A missing blob fails with model.ErrNotFound before any play is recorded.
// An unsatisfiable range is not an error: it is answered with a 416 response.
func (s *Service) Open(ctx context.Context, fileName, rangeHeader string, withBody bool) (*Response, error) {
	if track := s.lookupTrack(ctx, fileName); track.IsExternal() {
		return &Response{Status: http.StatusFound, RedirectURL: track.AudioURL}, nil
	}

	size, err := s.blobs.Size(ctx, fileName)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		ContentType:  storage.ContentTypeFor(fileName),
		AcceptRanges: "bytes",
	}

	br, err := ResolveRange(rangeHeader, size)
	switch {
	case errors.Is(err, model.ErrRangeNotSatisfiable):
		resp.Status = http.StatusRequestedRangeNotSatisfiable
		resp.ContentRange = UnsatisfiedContentRange(size)
		resp.ContentType = ""
		s.notify(fileName, withBody)
		return resp, nil
	case err != nil:
		return nil, err
	}

	start, end := int64(0), size-1
	if br != nil {
		start, end = br.Start, br.End
		resp.Status = http.StatusPartialContent
		resp.ContentRange = br.ContentRange()
		resp.ContentLength = br.Length()
	} else {
		resp.Status = http.StatusOK
		resp.ContentLength = size
	}

	if withBody && resp.ContentLength > 0 {
		body, err := s.blobs.Open(ctx, fileName, start, end)
		if err != nil {
			return nil, err
		}
		resp.Body = body
	}

	s.notify(fileName, withBody)
	return resp, nil
}

// lookupTrack 查询失败只记录日志，本地文件仍然可以直接播放
func (s *Service) lookupTrack(ctx context.Context, fileName string) *model.Track {
	if s.tracks == nil {
		return nil
	}
	track, err := s.tracks.GetTrackByFileName(ctx, fileName)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			logger.Warn("查询歌曲信息失败，按本地文件处理",
				logger.String("file", fileName),
				logger.ErrorField(err))
		}
		return nil
	}
	return track
}

func (s *Service) notify(fileName string, withBody bool) {
	if s.plays == nil || !withBody {
		return
	}
	s.plays.Increment(fileName)
}
