package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// tempPrefix marks in-flight writes; the watcher ignores these files.
const tempPrefix = ".tmp-"

// DefaultDebounce batches bursts of filesystem events (create + write +
// rename for a single Set) into one change.
const DefaultDebounce = 50 * time.Millisecond

// FileStore keeps one file per key in a directory. Writes are atomic
// (temp file + rename) so a concurrent reader in another process never sees a
// torn value.
//
// The store remembers the last value it wrote or reported for every key. The
// watcher only reports a key when its on-disk value differs from that, so an
// instance is not notified about its own writes. Reads never update it: a Get
// that lands inside the debounce window must not hide another instance's
// write.
type FileStore struct {
	dir      string
	logger   *slog.Logger
	debounce time.Duration

	mu    sync.Mutex
	known map[string]entry
}

type entry struct {
	value  string
	exists bool
}

// FileStoreOptions configures a FileStore.
type FileStoreOptions struct {
	// Debounce is how long to wait for more events before reporting.
	// Default: DefaultDebounce.
	Debounce time.Duration
}

// NewFileStore opens (creating if needed) a store rooted at dir.
func NewFileStore(dir string, logger *slog.Logger, opts *FileStoreOptions) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	debounce := DefaultDebounce
	if opts != nil && opts.Debounce > 0 {
		debounce = opts.Debounce
	}

	return &FileStore{
		dir:      dir,
		logger:   logger,
		debounce: debounce,
		known:    make(map[string]entry),
	}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Get(key string) (string, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return "", false, err
	}

	e, err := readEntry(path)
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return e.value, e.exists, nil
}

func (s *FileStore) Set(key, value string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	// Record before the rename lands so the watcher treats it as our own.
	s.mu.Lock()
	prev, hadPrev := s.known[key]
	s.known[key] = entry{value: value, exists: true}
	s.mu.Unlock()

	if err := writeAtomic(s.dir, path, []byte(value)); err != nil {
		s.mu.Lock()
		if hadPrev {
			s.known[key] = prev
		} else {
			delete(s.known, key)
		}
		s.mu.Unlock()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Remove(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.known[key] = entry{}
	s.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// Watch reports changes made to the directory by other processes.
//
// Spawns one goroutine that collects fsnotify events, waits for the debounce
// window to pass quietly, then compares each touched key with the last known
// value and calls fn for real changes.
func (s *FileStore) Watch(ctx context.Context, fn func(Change)) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", s.dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer w.Close()
		s.watchLoop(ctx, w, fn)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	return stop, nil
}

func (s *FileStore) watchLoop(ctx context.Context, w *fsnotify.Watcher, fn func(Change)) {
	pending := make(map[string]struct{})
	timer := time.NewTimer(s.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			key := filepath.Base(ev.Name)
			if strings.HasPrefix(key, tempPrefix) {
				continue
			}
			pending[key] = struct{}{}
			timer.Reset(s.debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("storage watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			for key := range pending {
				if change, changed := s.observe(key); changed {
					fn(change)
				}
			}
			clear(pending)
		}
	}
}

// observe reads key from disk and reports whether it differs from the last
// known state, updating that state.
func (s *FileStore) observe(key string) (Change, bool) {
	e, err := readEntry(filepath.Join(s.dir, key))
	if err != nil {
		s.logger.Warn("reading changed key",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return Change{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.known[key]; ok && prev == e {
		return Change{}, false
	}
	s.known[key] = e
	return Change{Key: key, Removed: !e.exists}, true
}

// path maps a key to its file, rejecting keys that would escape the directory.
func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." || strings.HasPrefix(key, tempPrefix) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

func readEntry(path string) (entry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return entry{}, nil
	}
	if err != nil {
		return entry{}, err
	}
	return entry{value: string(data), exists: true}, nil
}

func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

var (
	_ Storage = (*FileStore)(nil)
	_ Watcher = (*FileStore)(nil)
)
