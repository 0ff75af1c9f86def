// Package watcher detects vault changes by polling. Polling is deliberate:
// vaults live on synced and network filesystems where inotify events are
// unreliable or unavailable, and a few thousand stat calls every few seconds
// are cheap.
package watcher

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/ksakata/vaultd/internal/effort"
	"github.com/ksakata/vaultd/internal/task"
	"github.com/ksakata/vaultd/pkg/panicerr"
)

// DefaultPollInterval is used when the config does not set one.
const DefaultPollInterval = 5 * time.Second

// Queue is the slice of the vault cache the watcher feeds. Change detection
// and change application are decoupled: the watcher only enqueues.
type Queue interface {
	EnqueueRefresh(path string)
	EnqueueEffortScan()
}

// Watcher polls the vault for task file changes and effort tree changes.
type Watcher struct {
	vaultRoot    string
	excludeDirs  map[string]bool
	interval     time.Duration
	queue        Queue
	files        map[string]time.Time
	effortsStamp time.Time
	stop         chan struct{}
	wg           conc.WaitGroup
}

func New(vaultRoot string, excludeDirs map[string]bool, interval time.Duration, queue Queue) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		vaultRoot:   vaultRoot,
		excludeDirs: excludeDirs,
		interval:    interval,
		queue:       queue,
		stop:        make(chan struct{}),
	}
}

// Start seeds the baseline snapshot and launches the polling loop. The
// initial snapshot intentionally enqueues nothing; the cache has just done
// its own full scan.
func (w *Watcher) Start() {
	w.files = w.snapshotTaskFiles()
	w.effortsStamp = w.effortsMtime()
	slog.Info("starting vault watcher", "interval", w.interval, "files", len(w.files))

	w.wg.Go(func() {
		if err := panicerr.Safe(w.loop)(); err != nil {
			slog.Error("vault watcher exited", "error", err)
		}
	})
}

// Stop terminates the polling loop and waits for it to finish.
func (w *Watcher) Stop() {
	close(w.stop)
	w.wg.Wait()
}

func (w *Watcher) loop() error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return nil
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

// pollOnce diffs the current filesystem state against the last snapshot and
// enqueues one refresh per changed path. Vanished files are also enqueued;
// the refresh path handles removal.
func (w *Watcher) pollOnce() {
	current := w.snapshotTaskFiles()

	for path, mtime := range current {
		prev, existed := w.files[path]
		if !existed || mtime.After(prev) {
			w.queue.EnqueueRefresh(path)
		}
	}
	for path := range w.files {
		if _, still := current[path]; !still {
			w.queue.EnqueueRefresh(path)
		}
	}
	w.files = current

	if stamp := w.effortsMtime(); stamp.After(w.effortsStamp) {
		w.effortsStamp = stamp
		w.queue.EnqueueEffortScan()
	}
}

// snapshotTaskFiles maps every recognized task file under the vault root to
// its modification time.
func (w *Watcher) snapshotTaskFiles() map[string]time.Time {
	snapshot := map[string]time.Time{}
	err := filepath.WalkDir(w.vaultRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != w.vaultRoot && w.excludeDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !task.IsTaskFileName(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		snapshot[path] = info.ModTime()
		return nil
	})
	if err != nil {
		slog.Warn("failed to snapshot task files", "error", err)
	}
	return snapshot
}

// effortsMtime computes a composite change stamp for the efforts tree: the
// maximum modification time across effort directories and their marker
// files. Creating, removing, or moving an effort bumps a directory mtime, so
// any structural change advances the stamp.
func (w *Watcher) effortsMtime() time.Time {
	var maxTime time.Time
	root := filepath.Join(w.vaultRoot, "efforts")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && d.Name() != effort.MarkerFile {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(maxTime) {
			maxTime = info.ModTime()
		}
		return nil
	})
	if err != nil {
		slog.Warn("failed to stamp efforts tree", "error", err)
	}
	return maxTime
}
