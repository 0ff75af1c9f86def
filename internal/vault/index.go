package vault

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ksakata/vaultd/internal/task"
	"github.com/ksakata/vaultd/pkg/dates"
)

// taskIndex is the relational secondary index over flattened task
// attributes. It lives in an in-memory SQLite database and only ever stores
// ids plus filterable columns; query results are resolved back to live Task
// objects through the cache's primary map.
type taskIndex struct {
	db *sql.DB
}

const createTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	file_path TEXT NOT NULL,
	effort_name TEXT,
	section TEXT,
	indent_level INTEGER NOT NULL DEFAULT 0,
	due_date TEXT,
	scheduled_date TEXT,
	created_date TEXT,
	completed_date TEXT,
	is_stub INTEGER NOT NULL DEFAULT 0,
	has_blockers INTEGER NOT NULL DEFAULT 0,
	estimate_minutes INTEGER,
	parent_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_tasks_status_effort ON tasks (status, effort_name);
CREATE INDEX IF NOT EXISTS idx_tasks_file_path ON tasks (file_path);
`

func newTaskIndex() (*taskIndex, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	// database/sql would otherwise hand out fresh connections, each with its
	// own empty :memory: database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createTasksTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index schema: %w", err)
	}
	return &taskIndex{db: db}, nil
}

func (ix *taskIndex) Close() error {
	return ix.db.Close()
}

// effortNameFromPath derives the owning effort name for a task file under
// <vaultRoot>/efforts/, looking through the backlog directory.
func effortNameFromPath(filePath, vaultRoot string) string {
	rel, err := filepath.Rel(filepath.Join(vaultRoot, "efforts"), filePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) == 0 {
		return ""
	}
	if parts[0] == "__backlog" && len(parts) > 1 {
		return parts[1]
	}
	return parts[0]
}

func (ix *taskIndex) insertTask(t *task.Task, filePath, vaultRoot, parentID string) error {
	var estimate any
	if minutes := dates.DurationToMinutes(t.Tags[task.TagEstimate]); minutes > 0 {
		estimate = minutes
	}
	var parent any
	if parentID != "" {
		parent = parentID
	}

	_, err := ix.db.Exec(`
		INSERT OR REPLACE INTO tasks
		(id, title, status, file_path, effort_name, section, indent_level,
		 due_date, scheduled_date, created_date, completed_date,
		 is_stub, has_blockers, estimate_minutes, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID(), t.Title, string(t.Status), filePath,
		effortNameFromPath(filePath, vaultRoot), t.Section, t.IndentLevel,
		nullable(t.Tags[task.TagDue]), nullable(t.Tags[task.TagScheduled]),
		nullable(t.Tags[task.TagCreated]), nullable(t.Tags[task.TagCompleted]),
		boolInt(t.IsStub()), boolInt(t.IsBlocked()), estimate, parent,
	)
	if err != nil {
		return fmt.Errorf("failed to index task %s: %w", t.ID(), err)
	}
	return nil
}

// insertTasks indexes tasks and their children recursively. Every task must
// already carry an id.
func (ix *taskIndex) insertTasks(tasks []*task.Task, filePath, vaultRoot, parentID string) error {
	for _, t := range tasks {
		if err := ix.insertTask(t, filePath, vaultRoot, parentID); err != nil {
			return err
		}
		if err := ix.insertTasks(t.Children, filePath, vaultRoot, t.ID()); err != nil {
			return err
		}
	}
	return nil
}

func (ix *taskIndex) deleteFile(filePath string) error {
	if _, err := ix.db.Exec(`DELETE FROM tasks WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("failed to remove index rows for %s: %w", filePath, err)
	}
	return nil
}

// queryIDs evaluates the filter against the index and returns matching ids
// in insertion order, capped at the filter's limit.
func (ix *taskIndex) queryIDs(f QueryFilter) ([]string, error) {
	var clauses []string
	var params []any

	if len(f.Status) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Status)), ",")
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", placeholders))
		for _, s := range f.Status {
			params = append(params, string(s))
		}
	}
	if f.Effort != "" {
		clauses = append(clauses, "effort_name = ?")
		params = append(params, f.Effort)
	}
	if f.DueBefore != "" {
		clauses = append(clauses, "due_date IS NOT NULL AND due_date <= ?")
		params = append(params, f.DueBefore)
	}
	if f.ScheduledBefore != "" {
		clauses = append(clauses, "scheduled_date IS NOT NULL AND scheduled_date <= ?")
		params = append(params, f.ScheduledBefore)
	}
	if f.ScheduledOn != "" {
		clauses = append(clauses, "scheduled_date = ?")
		params = append(params, f.ScheduledOn)
	}
	if f.Stub != nil {
		clauses = append(clauses, "is_stub = ?")
		params = append(params, boolInt(*f.Stub))
	}
	if f.Blocked != nil {
		clauses = append(clauses, "has_blockers = ?")
		params = append(params, boolInt(*f.Blocked))
	}
	if f.File != "" {
		clauses = append(clauses, "file_path = ?")
		params = append(params, f.File)
	}
	if f.ParentID != "" {
		clauses = append(clauses, "parent_id = ?")
		params = append(params, f.ParentID)
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	params = append(params, limit)

	rows, err := ix.db.Query(fmt.Sprintf("SELECT id FROM tasks %s LIMIT ?", where), params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read index rows: %w", err)
	}
	return ids, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
