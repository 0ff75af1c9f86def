package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	refreshed   []string
	effortScans int
}

func (q *recordingQueue) EnqueueRefresh(path string) { q.refreshed = append(q.refreshed, path) }
func (q *recordingQueue) EnqueueEffortScan()         { q.effortScans++ }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func touch(t *testing.T, path string, at time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, at, at))
}

func newTestWatcher(t *testing.T) (*Watcher, *recordingQueue, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "efforts", "alpha", "CLAUDE.md"), "# alpha\n")
	writeFile(t, filepath.Join(root, "efforts", "alpha", "TASKS.md"), "- [ ] x\n")

	q := &recordingQueue{}
	w := New(root, map[string]bool{".git": true}, time.Second, q)
	w.files = w.snapshotTaskFiles()
	w.effortsStamp = w.effortsMtime()
	return w, q, root
}

func TestWatcher_NoChanges(t *testing.T) {
	w, q, _ := newTestWatcher(t)
	w.pollOnce()
	assert.Empty(t, q.refreshed)
	assert.Zero(t, q.effortScans)
}

func TestWatcher_ModifiedFile(t *testing.T) {
	w, q, root := newTestWatcher(t)
	path := filepath.Join(root, "efforts", "alpha", "TASKS.md")
	touch(t, path, time.Now().Add(2*time.Second))

	w.pollOnce()
	assert.Equal(t, []string{path}, q.refreshed)

	// The snapshot advanced, so the same change is not re-reported.
	q.refreshed = nil
	w.pollOnce()
	assert.Empty(t, q.refreshed)
}

func TestWatcher_NewAndVanishedFiles(t *testing.T) {
	w, q, root := newTestWatcher(t)

	added := filepath.Join(root, "TASKS.md")
	writeFile(t, added, "- [ ] new\n")
	removed := filepath.Join(root, "efforts", "alpha", "TASKS.md")
	require.NoError(t, os.Remove(removed))

	w.pollOnce()
	assert.ElementsMatch(t, []string{added, removed}, q.refreshed)
}

func TestWatcher_ExcludedDirs(t *testing.T) {
	w, q, root := newTestWatcher(t)
	writeFile(t, filepath.Join(root, ".git", "TASKS.md"), "- [ ] hidden\n")

	w.pollOnce()
	assert.Empty(t, q.refreshed)
}

func TestWatcher_EffortTreeChange(t *testing.T) {
	w, q, root := newTestWatcher(t)

	future := time.Now().Add(2 * time.Second)
	marker := filepath.Join(root, "efforts", "beta", "CLAUDE.md")
	writeFile(t, marker, "# beta\n")
	touch(t, marker, future)

	w.pollOnce()
	assert.Equal(t, 1, q.effortScans)

	q.effortScans = 0
	w.pollOnce()
	assert.Zero(t, q.effortScans)
}

func TestWatcher_StartStop(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "TASKS.md"), "- [ ] x\n")

	q := &recordingQueue{}
	w := New(root, nil, 10*time.Millisecond, q)
	w.Start()
	// The seeding snapshot must not report anything.
	time.Sleep(30 * time.Millisecond)
	w.Stop()
}
