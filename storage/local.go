package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mediacore/logger"
	"mediacore/model"

	"github.com/fsnotify/fsnotify"
)

// LocalBlobStore serves blobs from a directory on local disk. File sizes are
// cached; Watch keeps the cache in step with the upload pipeline.
type LocalBlobStore struct {
	root string

	mu    sync.RWMutex
	sizes map[string]int64
}

// NewLocalBlobStore 创建本地文件存储，root 必须是已存在的目录
func NewLocalBlobStore(root string) (*LocalBlobStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("解析存储目录失败: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("存储目录不可用: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("存储路径不是目录: %s", abs)
	}
	return &LocalBlobStore{root: abs, sizes: make(map[string]int64)}, nil
}

// Root 返回存储根目录的绝对路径
func (s *LocalBlobStore) Root() string {
	return s.root
}

func (s *LocalBlobStore) resolve(name string) (string, string, error) {
	key, err := cleanName(name)
	if err != nil {
		return "", "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("blob %q escapes store root: %w", name, model.ErrNotFound)
	}
	return key, full, nil
}

func (s *LocalBlobStore) Size(ctx context.Context, name string) (int64, error) {
	key, full, err := s.resolve(name)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	size, ok := s.sizes[key]
	s.mu.RUnlock()
	if ok {
		return size, nil
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("blob %q: %w", key, model.ErrNotFound)
		}
		return 0, fmt.Errorf("stat blob %q: %w: %w", key, model.ErrIOError, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("blob %q is not a regular file: %w", key, model.ErrNotFound)
	}

	s.mu.Lock()
	s.sizes[key] = info.Size()
	s.mu.Unlock()
	return info.Size(), nil
}

func (s *LocalBlobStore) Open(ctx context.Context, name string, start, end int64) (io.ReadCloser, error) {
	if err := checkInterval(start, end); err != nil {
		return nil, err
	}
	key, full, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.evict(key)
			return nil, fmt.Errorf("blob %q: %w", key, model.ErrNotFound)
		}
		return nil, fmt.Errorf("open blob %q: %w: %w", key, model.ErrIOError, err)
	}
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek blob %q: %w: %w", key, model.ErrIOError, err)
		}
	}
	return newExactReader(f, end-start+1), nil
}

func (s *LocalBlobStore) evict(key string) {
	s.mu.Lock()
	delete(s.sizes, key)
	s.mu.Unlock()
}

// Watch 监听存储目录的变更并清除对应的文件大小缓存。
// 监听器建立后立即返回，ctx 结束时停止监听。
func (s *LocalBlobStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}

	err = filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("监听目录失败: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				s.handleEvent(watcher, event)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("文件监听出错", logger.ErrorField(err))
			}
		}
	}()

	logger.Info("开始监听音频存储目录", logger.String("root", s.root))
	return nil
}

func (s *LocalBlobStore) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watcher.Add(event.Name); err != nil {
				logger.Warn("监听新目录失败", logger.String("dir", event.Name), logger.ErrorField(err))
			}
			return
		}
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	rel, err := filepath.Rel(s.root, event.Name)
	if err != nil {
		return
	}
	key := filepath.ToSlash(rel)
	s.evict(key)
	logger.Debug("文件变更，清除大小缓存", logger.String("file", key), logger.String("op", event.Op.String()))
}
