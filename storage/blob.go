package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"mediacore/model"
)

// BlobStore is read-only access to stored audio files. Writes belong to the
// upload pipeline.
type BlobStore interface {
	// Size 返回文件字节数，文件不存在时返回 model.ErrNotFound
	Size(ctx context.Context, name string) (int64, error)
	// Open returns a forward-only stream yielding exactly end-start+1 bytes.
	// A stream that ends early fails with io.ErrUnexpectedEOF.
	Open(ctx context.Context, name string, start, end int64) (io.ReadCloser, error)
}

// cleanName normalizes a blob key and rejects anything that could escape the
// store root.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("invalid blob name %q: %w", name, model.ErrNotFound)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid blob name %q: %w", name, model.ErrNotFound)
		}
	}
	cleaned := path.Clean(name)
	if cleaned == "." {
		return "", fmt.Errorf("invalid blob name %q: %w", name, model.ErrNotFound)
	}
	return cleaned, nil
}

func checkInterval(start, end int64) error {
	if start < 0 || end < start {
		return fmt.Errorf("invalid interval [%d, %d]", start, end)
	}
	return nil
}

// exactReader yields exactly n bytes of r and reports a short source as
// io.ErrUnexpectedEOF instead of a clean EOF.
type exactReader struct {
	r         io.Reader
	closer    io.Closer
	remaining int64
}

func newExactReader(rc io.ReadCloser, n int64) *exactReader {
	return &exactReader{r: io.LimitReader(rc, n), closer: rc, remaining: n}
}

func (e *exactReader) Read(p []byte) (int, error) {
	if e.remaining <= 0 {
		return 0, io.EOF
	}
	n, err := e.r.Read(p)
	e.remaining -= int64(n)
	if errors.Is(err, io.EOF) && e.remaining > 0 {
		return n, fmt.Errorf("%w: %w", model.ErrIOError, io.ErrUnexpectedEOF)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: %w", model.ErrIOError, err)
	}
	return n, err
}

// WriteTo passes the limited source itself to w, so a writer implementing
// io.ReaderFrom (net/http's response) can sendfile a local blob.
func (e *exactReader) WriteTo(w io.Writer) (int64, error) {
	if e.remaining <= 0 {
		return 0, nil
	}
	n, err := io.Copy(w, e.r)
	e.remaining -= n
	if err != nil {
		return n, err
	}
	if e.remaining > 0 {
		return n, fmt.Errorf("%w: %w", model.ErrIOError, io.ErrUnexpectedEOF)
	}
	return n, nil
}

func (e *exactReader) Close() error {
	return e.closer.Close()
}

// ContentTypeFor 根据扩展名推断音频的 Content-Type
func ContentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
