package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"mediacore/core/stream"
	"mediacore/logger"
	"mediacore/metrics"

	"github.com/gorilla/mux"
	"golang.org/x/sync/semaphore"
)

// 等待空闲流槽位的最长时间
const streamAcquireTimeout = 10 * time.Second

// StreamHandler 处理 /stream/{filename} 请求，支持 Range 断点续传
type StreamHandler struct {
	service *stream.Service
	slots   *semaphore.Weighted
}

// NewStreamHandler 创建 StreamHandler，maxStreams <= 0 表示不限制并发流
func NewStreamHandler(service *stream.Service, maxStreams int) *StreamHandler {
	h := &StreamHandler{service: service}
	if maxStreams > 0 {
		h.slots = semaphore.NewWeighted(int64(maxStreams))
	}
	return h
}

// ServeHTTP 实现 http.Handler 接口
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fileName := mux.Vars(r)["filename"]

	if h.slots != nil {
		ctx, cancel := context.WithTimeout(r.Context(), streamAcquireTimeout)
		err := h.slots.Acquire(ctx, 1)
		cancel()
		if err != nil {
			// 客户端已断开时写入会失败，这里不关心
			w.Header().Set("Retry-After", "5")
			h.fail(w, r, http.StatusServiceUnavailable, errors.New("too many concurrent streams"))
			return
		}
		defer h.slots.Release(1)
	}

	resp, err := h.service.Open(r.Context(), fileName, r.Header.Get("Range"), r.Method != http.MethodHead)
	if err != nil {
		h.fail(w, r, statusFor(err), err)
		return
	}
	metrics.StreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.Status)).Inc()

	if resp.RedirectURL != "" {
		http.Redirect(w, r, resp.RedirectURL, resp.Status)
		return
	}

	header := w.Header()
	if resp.AcceptRanges != "" {
		header.Set("Accept-Ranges", resp.AcceptRanges)
	}
	if resp.ContentRange != "" {
		header.Set("Content-Range", resp.ContentRange)
	}
	if resp.ContentType != "" {
		header.Set("Content-Type", resp.ContentType)
	}
	header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))

	if resp.Body == nil {
		w.WriteHeader(resp.Status)
		return
	}
	// 客户端中途断开时 Copy 返回错误，defer 负责关闭文件句柄
	defer resp.Body.Close()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	w.WriteHeader(resp.Status)
	// Body 恰好产出 ContentLength 字节；io.Copy 才能把文件交给 sendfile
	n, err := io.Copy(w, resp.Body)
	metrics.StreamBytesTotal.Add(float64(n))
	if err != nil {
		level := logger.Warn
		if r.Context().Err() != nil {
			level = logger.Debug
		}
		level("音频流传输中断",
			logger.String("file", fileName),
			logger.Int64("written", n),
			logger.Int64("expected", resp.ContentLength),
			logger.String("requestId", RequestIDFromContext(r.Context())),
			logger.ErrorField(err))
	}
}

func (h *StreamHandler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	metrics.StreamRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		writeServiceError(w, r, err)
		return
	}
	writeError(w, status, err.Error())
}
