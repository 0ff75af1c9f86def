// Package vault owns all in-memory state derived from the vault directory
// tree: a primary map of parsed task files, an id index, a relational
// secondary index for filtered queries, and the discovered efforts.
//
// Consistency model: one coarse lock serializes every read and write.
// Mutations are write-through — they serialize the whole file to disk and
// reload it, so cached state is always re-derivable from disk and never
// diverges from it. Task object identity is not stable across reloads; only
// ids are.
package vault

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/ksakata/vaultd/internal/effort"
	"github.com/ksakata/vaultd/internal/task"
	"github.com/ksakata/vaultd/pkg/cerr"
	"github.com/ksakata/vaultd/pkg/dates"
	"github.com/ksakata/vaultd/pkg/ids"
)

// DefaultQueryLimit caps query results when the caller does not set a limit.
const DefaultQueryLimit = 500

// maxIDAttempts bounds id generation retries against the known-id set.
// Persistent collision means something is deeply wrong with the entropy
// source, not bad luck: the id space holds 16^6 values.
const maxIDAttempts = 100

// CachedFile is the unit of staleness tracking: a parsed tree plus the
// modification time observed when it was parsed.
type CachedFile struct {
	Path    string
	Tree    *task.Tree
	ModTime time.Time
}

type taskEntry struct {
	task *task.Task
	path string
}

// Cache is the synchronization core. Create with New, then Initialize once
// at startup before starting the worker or serving requests.
type Cache struct {
	mu           sync.RWMutex
	files        map[string]*CachedFile
	tasksByID    map[string]taskEntry
	efforts      map[string]*effort.Effort
	focus        string
	vaultRoot    string
	excludeDirs  map[string]bool
	index        *taskIndex
	queue        chan refreshRequest
	workerWG     conc.WaitGroup
	lastFullScan time.Time
}

func New() (*Cache, error) {
	index, err := newTaskIndex()
	if err != nil {
		return nil, err
	}
	return &Cache{
		files:       map[string]*CachedFile{},
		tasksByID:   map[string]taskEntry{},
		efforts:     map[string]*effort.Effort{},
		excludeDirs: map[string]bool{},
		index:       index,
		queue:       make(chan refreshRequest, queueBuffer),
	}, nil
}

// Close releases the index database. Stop the worker first.
func (c *Cache) Close() error {
	return c.index.Close()
}

// Initialize performs the full vault scan. It blocks until complete and is
// not safe to run concurrently with any other cache operation.
func (c *Cache) Initialize(vaultRoot string, excludeDirs map[string]bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.vaultRoot = vaultRoot
	c.excludeDirs = excludeDirs

	slog.Info("starting vault scan", "root", vaultRoot)
	for _, path := range c.walkTaskFiles() {
		if err := c.loadFileLocked(path); err != nil {
			// Unreadable files keep their last good state; first scan has
			// nothing to keep, so they are simply absent.
			slog.Error("failed to load task file", "path", path, "error", err)
		}
	}

	if err := c.refreshEffortsLocked(); err != nil {
		return err
	}

	c.lastFullScan = time.Now()
	slog.Info("vault scan complete",
		"files", len(c.files),
		"tasks", len(c.tasksByID),
		"efforts", len(c.efforts),
	)
	return nil
}

// VaultRoot returns the root the cache was initialized with.
func (c *Cache) VaultRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vaultRoot
}

// walkTaskFiles enumerates all recognized task files under the vault root,
// honoring excluded directory names. Caller holds the lock.
func (c *Cache) walkTaskFiles() []string {
	var paths []string
	err := filepath.WalkDir(c.vaultRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("error walking vault", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if path != c.vaultRoot && c.excludeDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if task.IsTaskFileName(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		slog.Error("vault walk failed", "error", err)
	}
	return paths
}

// loadFileLocked parses a file from disk and replaces its cache entry.
func (c *Cache) loadFileLocked(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat task file: %w", err)
	}
	tree, err := task.ParseFile(path)
	if err != nil {
		return err
	}
	return c.upsertFileLocked(&CachedFile{
		Path:    path,
		Tree:    tree,
		ModTime: info.ModTime(),
	})
}

// upsertFileLocked stores a parsed file in every index, back-filling ids.
// A tree is never patched in place: the previous entry for the path is
// discarded wholesale.
func (c *Cache) upsertFileLocked(cached *CachedFile) error {
	if old, ok := c.files[cached.Path]; ok {
		for _, t := range old.Tree.AllTasks() {
			if id := t.ID(); id != "" {
				delete(c.tasksByID, id)
			}
		}
		if err := c.index.deleteFile(cached.Path); err != nil {
			return err
		}
	}

	// Back-fill ids before indexing so every task has one. The id goes into
	// the task's own tag set, so the next serialization persists it.
	all := cached.Tree.AllTasks()
	known := make(map[string]bool, len(c.tasksByID)+len(all))
	for id := range c.tasksByID {
		known[id] = true
	}
	for _, t := range all {
		if id := t.ID(); id != "" {
			known[id] = true
		}
	}
	assigned := false
	for _, t := range all {
		if t.ID() != "" {
			continue
		}
		id, err := newUniqueID(known)
		if err != nil {
			return err
		}
		t.SetID(id)
		known[id] = true
		assigned = true
	}

	if assigned {
		if err := task.WriteFile(cached.Path, cached.Tree); err != nil {
			return err
		}
		if info, err := os.Stat(cached.Path); err == nil {
			cached.ModTime = info.ModTime()
		}
	}

	c.files[cached.Path] = cached
	for _, t := range all {
		c.tasksByID[t.ID()] = taskEntry{task: t, path: cached.Path}
	}
	for _, section := range cached.Tree.Sections {
		if err := c.index.insertTasks(section.Tasks, cached.Path, c.vaultRoot, ""); err != nil {
			return err
		}
	}
	return nil
}

func newUniqueID(known map[string]bool) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := ids.NewTaskID()
		if err != nil {
			return "", err
		}
		if !known[id] {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique task id after %d attempts", maxIDAttempts)
}

// RefreshFile re-parses a single task file if its on-disk modification time
// exceeds the recorded one. A vanished file is removed from every index.
// Idempotent; a no-op for unchanged files.
func (c *Cache) RefreshFile(path string) error {
	if !task.IsTaskFileName(filepath.Base(path)) {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.removeFile(path)
			return nil
		}
		return fmt.Errorf("failed to stat task file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.files[path]; ok && !existing.ModTime.Before(info.ModTime()) {
		return nil
	}
	return c.loadFileLocked(path)
}

func (c *Cache) removeFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.files[path]
	if !ok {
		return
	}
	delete(c.files, path)
	for _, t := range cached.Tree.AllTasks() {
		if id := t.ID(); id != "" {
			delete(c.tasksByID, id)
		}
	}
	if err := c.index.deleteFile(path); err != nil {
		slog.Error("failed to drop index rows for removed file", "path", path, "error", err)
	}
}

// RefreshEfforts re-scans the efforts directory and replaces the effort map.
func (c *Cache) RefreshEfforts() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshEffortsLocked()
}

func (c *Cache) refreshEffortsLocked() error {
	discovered, err := effort.Scan(filepath.Join(c.vaultRoot, "efforts"))
	if err != nil {
		return fmt.Errorf("failed to scan efforts: %w", err)
	}
	c.efforts = discovered
	return nil
}

// QueryFilter selects tasks through the secondary index. Zero values mean
// "no constraint"; Stub and Blocked are tri-state.
type QueryFilter struct {
	Status          []task.Status
	Effort          string
	DueBefore       string
	ScheduledBefore string
	ScheduledOn     string
	Stub            *bool
	Blocked         *bool
	File            string
	ParentID        string
	IncludeSubtasks bool
	Limit           int
}

// Query evaluates the filter against the secondary index and resolves
// matches to live task objects. With IncludeSubtasks, every descendant of a
// matched task is appended even if the descendant fails the filter.
func (c *Cache) Query(f QueryFilter) ([]*task.Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	matched, err := c.index.queryIDs(f)
	if err != nil {
		return nil, err
	}

	tasks := make([]*task.Task, 0, len(matched))
	seen := make(map[string]bool, len(matched))
	for _, id := range matched {
		if entry, ok := c.tasksByID[id]; ok {
			tasks = append(tasks, entry.task)
			seen[id] = true
		}
	}

	if f.IncludeSubtasks {
		for _, t := range tasks[:len(tasks):len(tasks)] {
			for _, desc := range t.AllTasks()[1:] {
				if id := desc.ID(); id != "" && !seen[id] {
					tasks = append(tasks, desc)
					seen[id] = true
				}
			}
		}
	}

	return tasks, nil
}

// GetTask returns the live task and its owning file path, or ("", nil).
func (c *Cache) GetTask(id string) (*task.Task, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.tasksByID[id]
	if !ok {
		return nil, ""
	}
	return entry.task, entry.path
}

// AllTaskIDs returns every known task id.
func (c *Cache) AllTaskIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.tasksByID))
	for id := range c.tasksByID {
		ids = append(ids, id)
	}
	return ids
}

// AddTaskOptions configure AddTask beyond the target file and title.
type AddTaskOptions struct {
	Section  string
	Status   task.Status
	Tags     map[string]string
	ParentID string
	// NoStub suppresses the default placeholder marker on the new task.
	NoStub bool
}

// AddTask appends a new task to a file and write-through persists it. The
// returned task is the one re-parsed from disk, so line numbers and any
// formatting normalization are authoritative. Every mutation rewrites and
// reloads the whole file; acceptable for vault-sized files.
func (c *Cache) AddTask(filePath, title string, opts AddTaskOptions) (*task.Task, error) {
	if strings.TrimSpace(title) == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "task title cannot be empty", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	known := make(map[string]bool, len(c.tasksByID))
	for id := range c.tasksByID {
		known[id] = true
	}
	newID, err := newUniqueID(known)
	if err != nil {
		return nil, err
	}

	tags := make(map[string]string, len(opts.Tags)+3)
	for k, v := range opts.Tags {
		tags[k] = v
	}
	tags[task.TagID] = newID
	if _, ok := tags[task.TagCreated]; !ok {
		tags[task.TagCreated] = time.Now().Format("2006-01-02")
	}
	if _, ok := tags[task.TagStub]; !ok && !opts.NoStub {
		tags[task.TagStub] = ""
	}

	status := opts.Status
	if status == "" {
		status = task.StatusOpen
	}
	newTask := &task.Task{
		Title:    title,
		Status:   status,
		Tags:     tags,
		FilePath: filePath,
	}

	cached, ok := c.files[filePath]
	if !ok {
		cached = &CachedFile{
			Path: filePath,
			Tree: &task.Tree{FilePath: filePath},
		}
	}
	tree := cached.Tree

	if opts.ParentID != "" {
		parent := tree.FindByID(opts.ParentID)
		if parent == nil {
			// Reported before any mutation so no partial write occurs.
			return nil, cerr.NewError(cerr.InvalidArgument,
				fmt.Sprintf("parent task %q not found in %s", opts.ParentID, filePath), nil)
		}
		newTask.IndentLevel = parent.IndentLevel + 1
		newTask.Section = parent.Section
		newTask.SectionLevel = parent.SectionLevel
		parent.Children = append(parent.Children, newTask)
		// A parent with real subtasks is no longer a placeholder.
		delete(parent.Tags, task.TagStub)
	} else {
		var target *task.SectionBlock
		switch {
		case opts.Section != "":
			target = tree.FindSection(opts.Section)
			if target == nil {
				target = &task.SectionBlock{Heading: opts.Section, Level: 3}
				tree.Sections = append(tree.Sections, target)
			}
		case len(tree.Sections) > 0:
			target = tree.Sections[0]
		default:
			target = &task.SectionBlock{Heading: "Open", Level: 3}
			tree.Sections = append(tree.Sections, target)
		}
		newTask.Section = target.Heading
		newTask.SectionLevel = target.Level
		target.Tasks = append(target.Tasks, newTask)
	}
	c.files[filePath] = cached

	if err := task.WriteFile(filePath, tree); err != nil {
		return nil, err
	}
	if err := c.loadFileLocked(filePath); err != nil {
		return nil, err
	}

	if entry, ok := c.tasksByID[newID]; ok {
		return entry.task, nil
	}
	return newTask, nil
}

// UpdateTaskChanges describe a partial task update. Nil string pointers mean
// "leave unchanged"; pointing at an empty string clears the tag.
type UpdateTaskChanges struct {
	Title     *string
	Status    *task.Status
	Due       *string
	Scheduled *string
	Estimate  *string
	BlockedBy []string
	Unblock   []string
}

// UpdateTask applies field changes to a task and write-through persists its
// file. Returns a NotFound error for an unknown id.
func (c *Cache) UpdateTask(id string, changes UpdateTaskChanges) (*task.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.tasksByID[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("task %q not found", id), nil)
	}
	t := entry.task

	if changes.Title != nil {
		t.Title = *changes.Title
	}

	if changes.Status != nil {
		newStatus := *changes.Status
		t.Status = newStatus
		if newStatus == task.StatusDone {
			if _, ok := t.Tags[task.TagCompleted]; !ok {
				t.Tags[task.TagCompleted] = time.Now().Format("2006-01-02")
			}
		} else {
			delete(t.Tags, task.TagCompleted)
		}
	}

	applyTag := func(key string, v *string) {
		if v == nil {
			return
		}
		if *v != "" {
			t.Tags[key] = *v
		} else {
			delete(t.Tags, key)
		}
	}
	applyTag(task.TagDue, changes.Due)
	applyTag(task.TagScheduled, changes.Scheduled)
	if changes.Estimate != nil && *changes.Estimate != "" {
		if normalized := dates.NormalizeDuration(*changes.Estimate); normalized != "" {
			v := normalized
			changes.Estimate = &v
		}
	}
	applyTag(task.TagEstimate, changes.Estimate)

	for _, bid := range changes.BlockedBy {
		t.AddBlocker(bid)
	}
	for _, bid := range changes.Unblock {
		t.RemoveBlocker(bid)
	}

	cached := c.files[entry.path]
	if err := task.WriteFile(entry.path, cached.Tree); err != nil {
		return nil, err
	}
	if err := c.loadFileLocked(entry.path); err != nil {
		return nil, err
	}

	if refreshed, ok := c.tasksByID[id]; ok {
		return refreshed.task, nil
	}
	return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("task %q not found after reload", id), nil)
}

// GetEffort returns a snapshot of the named effort, or nil.
func (c *Cache) GetEffort(name string) *effort.Effort {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.effortSnapshotLocked(name)
}

func (c *Cache) effortSnapshotLocked(name string) *effort.Effort {
	e, ok := c.efforts[name]
	if !ok {
		return nil
	}
	snapshot := *e
	snapshot.Focused = c.focus == name
	return &snapshot
}

// ListEfforts returns effort snapshots sorted by name, optionally filtered
// by status.
func (c *Cache) ListEfforts(status effort.Status) []*effort.Effort {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.efforts))
	for name, e := range c.efforts {
		if status != "" && e.Status != status {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]*effort.Effort, 0, len(names))
	for _, name := range names {
		result = append(result, c.effortSnapshotLocked(name))
	}
	return result
}

// SetFocus marks an effort as the current working context. Focus is
// process-lifetime only and resets on restart.
func (c *Cache) SetFocus(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.efforts[name]; !ok {
		return cerr.NewError(cerr.NotFound, fmt.Sprintf("effort %q not found", name), nil)
	}
	c.focus = name
	return nil
}

// ClearFocus resets the focused effort.
func (c *Cache) ClearFocus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focus = ""
}

// Focus returns the focused effort name, or "".
func (c *Cache) Focus() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.focus
}

// StatusSnapshot is the lock-protected bookkeeping view.
type StatusSnapshot struct {
	FilesIndexed   int       `json:"files_indexed"`
	TasksIndexed   int       `json:"tasks_indexed"`
	EffortsIndexed int       `json:"efforts_indexed"`
	LastFullScan   time.Time `json:"last_full_scan"`
	VaultRoot      string    `json:"vault_root"`
	ExcludeDirs    []string  `json:"exclude_dirs"`
	QueueLength    int       `json:"queue_length"`
}

// Status returns a consistent snapshot of cache counts and bookkeeping.
func (c *Cache) Status() StatusSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	excluded := make([]string, 0, len(c.excludeDirs))
	for name := range c.excludeDirs {
		excluded = append(excluded, name)
	}
	sort.Strings(excluded)

	return StatusSnapshot{
		FilesIndexed:   len(c.files),
		TasksIndexed:   len(c.tasksByID),
		EffortsIndexed: len(c.efforts),
		LastFullScan:   c.lastFullScan,
		VaultRoot:      c.vaultRoot,
		ExcludeDirs:    excluded,
		QueueLength:    len(c.queue),
	}
}

// IsFileStale reports whether a file changed on disk since its last parse.
func (c *Cache) IsFileStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.files[path]
	return !ok || cached.ModTime.Before(info.ModTime())
}
