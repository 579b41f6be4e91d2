package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediacore/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalStore(t *testing.T, files map[string][]byte) *LocalBlobStore {
	t.Helper()
	root := t.TempDir()
	for name, data := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, data, 0o644))
	}
	store, err := NewLocalBlobStore(root)
	require.NoError(t, err)
	return store
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestLocalBlobStoreSize(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t, map[string][]byte{
		"song.mp3":       payload(1000),
		"albums/a/b.mp3": payload(10),
	})

	size, err := store.Size(ctx, "song.mp3")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), size)

	size, err = store.Size(ctx, "albums/a/b.mp3")
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	for _, name := range []string{"missing.mp3", "", "../etc/passwd", "/etc/passwd", "albums/../../x", "albums", "..\\x"} {
		_, err := store.Size(ctx, name)
		assert.ErrorIs(t, err, model.ErrNotFound, name)
	}
}

func TestLocalBlobStoreOpen(t *testing.T) {
	ctx := context.Background()
	data := payload(1000)
	store := newLocalStore(t, map[string][]byte{"song.mp3": data})

	tests := []struct {
		start, end int64
	}{
		{0, 999},
		{500, 999},
		{0, 0},
		{123, 456},
	}
	for _, tt := range tests {
		rc, err := store.Open(ctx, "song.mp3", tt.start, tt.end)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, data[tt.start:tt.end+1], got)
	}

	_, err := store.Open(ctx, "missing.mp3", 0, 10)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = store.Open(ctx, "song.mp3", 10, 5)
	assert.Error(t, err)
}

func TestLocalBlobStoreShortFile(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t, map[string][]byte{"short.mp3": payload(10)})

	rc, err := store.Open(ctx, "short.mp3", 0, 99)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, model.ErrIOError)
	assert.Len(t, got, 10)
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestExactReader(t *testing.T) {
	r := newExactReader(io.NopCloser(strings.NewReader("abcdefgh")), 4)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))

	boom := errors.New("disk gone")
	r = newExactReader(io.NopCloser(failingReader{err: boom}), 4)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, model.ErrIOError)

	r = newExactReader(io.NopCloser(bytes.NewReader(nil)), 1)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// fromRecorder 记录 ReadFrom 收到的源
type fromRecorder struct {
	bytes.Buffer
	src io.Reader
}

func (f *fromRecorder) ReadFrom(r io.Reader) (int64, error) {
	f.src = r
	return f.Buffer.ReadFrom(r)
}

func TestExactReaderWriteToKeepsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	store, err := NewLocalBlobStore(dir)
	require.NoError(t, err)
	rc, err := store.Open(context.Background(), "a.mp3", 3, 6)
	require.NoError(t, err)
	defer rc.Close()

	var dst fromRecorder
	n, err := io.Copy(&dst, rc)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, "3456", dst.String())

	// net/http 只有看到 *io.LimitedReader 包着 *os.File 才会走 sendfile
	limited, ok := dst.src.(*io.LimitedReader)
	require.True(t, ok)
	_, ok = limited.R.(*os.File)
	assert.True(t, ok)

	short := newExactReader(io.NopCloser(strings.NewReader("ab")), 4)
	_, err = io.Copy(&fromRecorder{}, short)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestLocalBlobStoreWatchEvictsSizes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newLocalStore(t, map[string][]byte{"song.mp3": payload(100)})
	require.NoError(t, store.Watch(ctx))

	size, err := store.Size(ctx, "song.mp3")
	require.NoError(t, err)
	require.Equal(t, int64(100), size)

	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "song.mp3"), payload(250), 0o644))

	assert.Eventually(t, func() bool {
		size, err := store.Size(ctx, "song.mp3")
		return err == nil && size == 250
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(store.Root(), "song.mp3")))
	assert.Eventually(t, func() bool {
		_, err := store.Size(ctx, "song.mp3")
		return errors.Is(err, model.ErrNotFound)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentTypeFor("a/b/song.MP3"))
	assert.Equal(t, "audio/flac", ContentTypeFor("x.flac"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("noext"))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "2.0 MB", FormatSize(2*1024*1024))
}
