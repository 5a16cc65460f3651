package app

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// DirWatcher polls a transcript directory and calls onChange when the set of
// matching files, their sizes or their modification times change. It uses
// polling (not fsnotify).
type DirWatcher struct {
	dir      string
	pattern  string
	interval time.Duration
	onChange func()

	mu       sync.Mutex
	lastHash [sha256.Size]byte
	done     chan struct{}
	stopOnce sync.Once
}

// NewDirWatcher records the current state of dir and starts polling it
// every interval in a background goroutine.
func NewDirWatcher(dir, pattern string, interval time.Duration, onChange func()) (*DirWatcher, error) {
	w := &DirWatcher{
		dir:      dir,
		pattern:  pattern,
		interval: interval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	if w.interval <= 0 {
		w.interval = 5 * time.Second
	}
	h, err := w.fingerprint()
	if err != nil {
		return nil, err
	}
	w.lastHash = h
	go w.poll()
	return w, nil
}

// Stop stops polling.
func (w *DirWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *DirWatcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *DirWatcher) check() {
	h, err := w.fingerprint()
	if err != nil {
		slog.Warn("transcript watcher: cannot scan directory", "dir", w.dir, "err", err)
		return
	}
	w.mu.Lock()
	changed := h != w.lastHash
	w.lastHash = h
	w.mu.Unlock()

	if changed {
		slog.Info("transcript watcher: transcripts changed", "dir", w.dir)
		w.onChange()
	}
}

// fingerprint hashes the sorted names, sizes and mtimes of matching files.
func (w *DirWatcher) fingerprint() ([sha256.Size]byte, error) {
	matches, err := filepath.Glob(filepath.Join(w.dir, w.pattern))
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	if _, err := os.Stat(w.dir); err != nil {
		return [sha256.Size]byte{}, err
	}
	slices.Sort(matches)

	h := sha256.New()
	var buf [16]byte
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			// Removed between glob and stat; the next poll sees it gone.
			continue
		}
		h.Write([]byte(path))
		binary.LittleEndian.PutUint64(buf[:8], uint64(info.Size()))
		binary.LittleEndian.PutUint64(buf[8:], uint64(info.ModTime().UnixNano()))
		h.Write(buf[:])
	}
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// WatchTranscripts reloads the index whenever dir changes. The watcher is
// stopped by [App.Shutdown].
func (a *App) WatchTranscripts(ctx context.Context, dir, pattern string, interval time.Duration) error {
	w, err := NewDirWatcher(dir, pattern, interval, func() {
		if _, err := a.Reload(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("transcript watcher: reload failed; keeping previous index", "err", err)
		}
	})
	if err != nil {
		return err
	}
	a.watchers = append(a.watchers, w)
	return nil
}
