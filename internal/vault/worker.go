package vault

import (
	"log/slog"

	"github.com/ksakata/vaultd/pkg/panicerr"
)

// queueBuffer sizes the refresh queue. The watcher enqueues at most one
// entry per changed file per poll cycle, so this absorbs large bulk edits
// (a git checkout touching hundreds of files) without blocking the poller.
const queueBuffer = 256

// refreshRequest is one unit of background work: re-parse a file, or
// re-scan the efforts tree when effortScan is set.
type refreshRequest struct {
	path       string
	effortScan bool
}

// StartWorker launches the single background consumer of the refresh queue.
// One goroutine by design: file refreshes take the write lock anyway, so
// parallel consumers would only contend.
func (c *Cache) StartWorker() {
	c.workerWG.Go(func() {
		if err := panicerr.Safe(c.workerLoop)(); err != nil {
			slog.Error("refresh worker exited", "error", err)
		}
	})
}

// StopWorker closes the queue and waits for the worker to drain it. No
// enqueue may happen after this; stop the watcher first.
func (c *Cache) StopWorker() {
	close(c.queue)
	c.workerWG.Wait()
}

func (c *Cache) workerLoop() error {
	for req := range c.queue {
		if req.effortScan {
			if err := c.RefreshEfforts(); err != nil {
				slog.Error("failed to refresh efforts", "error", err)
			}
			continue
		}
		if err := c.RefreshFile(req.path); err != nil {
			// One bad file must not wedge the queue.
			slog.Error("failed to refresh task file", "path", req.path, "error", err)
		}
	}
	return nil
}

// EnqueueRefresh schedules a background re-parse of a task file. Drops the
// request with a warning if the queue is full; the next poll cycle will
// re-detect the change.
func (c *Cache) EnqueueRefresh(path string) {
	select {
	case c.queue <- refreshRequest{path: path}:
	default:
		slog.Warn("refresh queue full, dropping request", "path", path)
	}
}

// EnqueueEffortScan schedules a background re-scan of the efforts tree.
func (c *Cache) EnqueueEffortScan() {
	select {
	case c.queue <- refreshRequest{effortScan: true}:
	default:
		slog.Warn("refresh queue full, dropping effort scan request")
	}
}
