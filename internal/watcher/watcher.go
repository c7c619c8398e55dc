// Package watcher monitors a camera drop directory for finished video
// files. Camera traps upload over slow links, so a newly visible file
// is not necessarily a complete one; every candidate is held until its
// size and mtime stop changing.
package watcher

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/keagan/trailclip/pkg/util"
)

// DefaultTimeout bounds how long a file may stay unstable before it is
// abandoned
const DefaultTimeout = 10 * time.Minute

// Watcher reacts to new video files appearing in one directory
type Watcher struct {
	logger  zerolog.Logger
	dir     string
	stable  time.Duration
	poll    time.Duration
	onReady func(path string)

	mu       sync.Mutex
	inflight map[string]bool
}

// New creates a watcher that calls onReady once a new video file has
// been stable for the given window
func New(dir string, stable, poll time.Duration, onReady func(string), logger zerolog.Logger) *Watcher {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Watcher{
		logger:   logger.With().Str("component", "watcher").Logger(),
		dir:      dir,
		stable:   stable,
		poll:     poll,
		onReady:  onReady,
		inflight: make(map[string]bool),
	}
}

// Run watches the directory until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info().Str("dir", w.dir).Msg("watching directory")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !util.IsVideoFile(ev.Name) {
				continue
			}
			w.logger.Info().Str("file", ev.Name).Msg("new video file detected")
			w.schedule(ctx, ev.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// schedule waits for stability in the background, deduplicating files
// already in flight
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	if w.inflight[path] {
		w.mu.Unlock()
		return
	}
	w.inflight[path] = true
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			delete(w.inflight, path)
			w.mu.Unlock()
		}()

		if !WaitStable(ctx, path, w.stable, w.poll, DefaultTimeout) {
			w.logger.Warn().Str("file", path).Msg("file did not become stable")
			return
		}
		w.onReady(path)
	}()
}

// WaitStable polls until the file's size and mtime have not changed for
// the stable window. Returns false on timeout or cancellation.
func WaitStable(ctx context.Context, path string, stable, poll, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	var (
		lastSize    int64 = -1
		lastMod     time.Time
		stableSince time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if time.Now().After(deadline) {
			return false
		}

		info, err := os.Stat(path)
		if err != nil {
			time.Sleep(poll)
			continue
		}

		if info.Size() == lastSize && info.ModTime().Equal(lastMod) {
			if stableSince.IsZero() {
				stableSince = time.Now()
			} else if time.Since(stableSince) >= stable {
				return true
			}
		} else {
			stableSince = time.Time{}
			lastSize = info.Size()
			lastMod = info.ModTime()
		}

		time.Sleep(poll)
	}
}
