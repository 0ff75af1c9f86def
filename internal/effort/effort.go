// Package effort discovers and manages project workspace directories
// ("efforts") in the vault.
//
// An effort is any directory carrying a CLAUDE.md marker file. Efforts live
// under <vault>/efforts/: top-level directories are active, directories
// anywhere beneath efforts/__backlog/ are backlog.
package effort

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ksakata/vaultd/internal/task"
)

// Status classifies an effort by where it lives in the directory tree.
type Status string

const (
	StatusActive  Status = "active"
	StatusBacklog Status = "backlog"
)

const (
	// MarkerFile identifies a directory as an effort.
	MarkerFile = "CLAUDE.md"
	// BacklogDir is the reserved subdirectory holding backlog efforts.
	BacklogDir = "__backlog"
)

// skipNames are top-level entries under efforts/ that are never efforts.
var skipNames = map[string]bool{
	"__ideas":        true,
	"dashboard.base": true,
}

// Effort is a single discovered workspace directory.
type Effort struct {
	Name      string
	Path      string
	Status    Status
	TasksFile string // empty if the effort has no task file
	Focused   bool
}

// IsEffortDir reports whether path is a directory containing the marker file.
func IsEffortDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = os.Stat(filepath.Join(path, MarkerFile))
	return err == nil
}

// findTasksFile probes the recognized task file names inside an effort dir.
func findTasksFile(dir string) string {
	// Probe in a fixed order so "TASKS.md" wins over "01 TASKS.md".
	for _, name := range []string{"TASKS.md", "01 TASKS.md"} {
		if !task.IsTaskFileName(name) {
			continue
		}
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func newEffort(dir string, status Status) *Effort {
	return &Effort{
		Name:      filepath.Base(dir),
		Path:      dir,
		Status:    status,
		TasksFile: findTasksFile(dir),
	}
}

func scanBacklogDir(dir string) ([]*Effort, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backlog dir: %w", err)
	}

	var efforts []*Effort
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		child := filepath.Join(dir, entry.Name())
		if IsEffortDir(child) {
			efforts = append(efforts, newEffort(child, StatusBacklog))
			continue
		}
		// Nested backlog organization: recurse until markers are found.
		nested, err := scanBacklogDir(child)
		if err != nil {
			return nil, err
		}
		efforts = append(efforts, nested...)
	}
	return efforts, nil
}

// Scan walks the efforts root and returns all discovered efforts by name.
// The walk is read-only; a missing root yields an empty map.
func Scan(effortsRoot string) (map[string]*Effort, error) {
	result := map[string]*Effort{}

	entries, err := os.ReadDir(effortsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read efforts root: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if skipNames[entry.Name()] {
			continue
		}
		child := filepath.Join(effortsRoot, entry.Name())
		if entry.Name() == BacklogDir {
			backlog, err := scanBacklogDir(child)
			if err != nil {
				return nil, err
			}
			for _, e := range backlog {
				result[e.Name] = e
			}
			continue
		}
		if IsEffortDir(child) {
			e := newEffort(child, StatusActive)
			result[e.Name] = e
		}
		// Directories without the marker are not efforts.
	}

	return result, nil
}
