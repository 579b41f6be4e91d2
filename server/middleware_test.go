package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readFromWriter 模拟 net/http 的 response，它实现了 io.ReaderFrom
type readFromWriter struct {
	*httptest.ResponseRecorder
	readFromCalls int
}

func (w *readFromWriter) ReadFrom(r io.Reader) (int64, error) {
	w.readFromCalls++
	return io.Copy(w.ResponseRecorder, r)
}

func TestRequestMiddlewareKeepsReaderFrom(t *testing.T) {
	handler := requestMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := w.(io.ReaderFrom)
		require.True(t, ok)
		// LimitedReader 没有 WriteTo，io.Copy 只能走目标的 ReadFrom
		_, err := io.Copy(w, io.LimitReader(strings.NewReader("audio-bytes"), 5))
		require.NoError(t, err)
	}))

	w := &readFromWriter{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream/a.mp3", nil))

	assert.Equal(t, 1, w.readFromCalls)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestStatusRecorderReadFromFallback(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: inner}

	n, err := rec.ReadFrom(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, http.StatusOK, rec.status)
	assert.Equal(t, "abc", inner.Body.String())
}
