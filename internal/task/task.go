// Package task defines the vault task data model and the markdown
// parser/serializer for task files.
//
// A task line looks like:
//
//	- [ ] Write release notes 🆔 a7f3c2 📅 2026-03-01 #estimate:2h
//
// The model captures everything needed to reconstruct the line; the canonical
// rendering lives in tags.go. No raw line text is stored.
package task

import (
	"strings"
)

// Status is the checkbox state of a task.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Well-known tag keys. Unknown keys pass through opaquely.
const (
	TagID        = "id"
	TagDue       = "due"
	TagScheduled = "scheduled"
	TagCreated   = "created"
	TagCompleted = "completed"
	TagBlocked   = "blocked"
	TagEstimate  = "estimate"
	TagStub      = "stub"
)

// Task is a single checkbox item parsed from a task file. Children are
// exclusively owned by their parent; all external lookups go through ids.
type Task struct {
	Title        string
	Status       Status
	Tags         map[string]string
	Notes        []string
	Children     []*Task
	IndentLevel  int
	LineNumber   int
	Section      string
	SectionLevel int
	FilePath     string
}

// ID returns the task id from the tag map, the single source of truth.
// Empty until the cache assigns one.
func (t *Task) ID() string {
	return t.Tags[TagID]
}

// SetID records the id in the tag map so the next serialization persists it.
func (t *Task) SetID(id string) {
	if t.Tags == nil {
		t.Tags = map[string]string{}
	}
	t.Tags[TagID] = id
}

// IsStub reports whether the task is a placeholder expected to be decomposed.
func (t *Task) IsStub() bool {
	_, ok := t.Tags[TagStub]
	return ok
}

// IsBlocked reports whether the task has unresolved blocking dependencies.
func (t *Task) IsBlocked() bool {
	_, ok := t.Tags[TagBlocked]
	return ok
}

// BlockerIDs returns the ids this task is blocked on.
func (t *Task) BlockerIDs() []string {
	value := t.Tags[TagBlocked]
	if value == "" {
		return nil
	}
	var ids []string
	for _, part := range strings.Split(value, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// AddBlocker adds an id to the blocked list if not already present.
func (t *Task) AddBlocker(blockerID string) {
	ids := t.BlockerIDs()
	for _, id := range ids {
		if id == blockerID {
			return
		}
	}
	ids = append(ids, blockerID)
	if t.Tags == nil {
		t.Tags = map[string]string{}
	}
	t.Tags[TagBlocked] = strings.Join(ids, ",")
}

// RemoveBlocker removes an id from the blocked list, dropping the tag when
// the list becomes empty.
func (t *Task) RemoveBlocker(blockerID string) {
	var ids []string
	for _, id := range t.BlockerIDs() {
		if id != blockerID {
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		t.Tags[TagBlocked] = strings.Join(ids, ",")
	} else {
		delete(t.Tags, TagBlocked)
	}
}

// AllTasks returns this task and all descendants, depth-first.
func (t *Task) AllTasks() []*Task {
	result := []*Task{t}
	for _, child := range t.Children {
		result = append(result, child.AllTasks()...)
	}
	return result
}

// SectionBlock is a heading and the root tasks beneath it, in file order.
type SectionBlock struct {
	Heading string
	Level   int
	Tasks   []*Task
}

// Tree is a fully parsed task file. Section order matches the file so the
// serializer can reconstruct it exactly.
type Tree struct {
	FilePath    string
	Sections    []*SectionBlock
	Frontmatter []string // verbatim lines including the --- delimiters
}

// AllTasks returns every task in the tree, across all sections.
func (tr *Tree) AllTasks() []*Task {
	var result []*Task
	for _, section := range tr.Sections {
		for _, t := range section.Tasks {
			result = append(result, t.AllTasks()...)
		}
	}
	return result
}

// FindByID returns the task with the given id, or nil.
func (tr *Tree) FindByID(id string) *Task {
	if id == "" {
		return nil
	}
	for _, t := range tr.AllTasks() {
		if t.ID() == id {
			return t
		}
	}
	return nil
}

// FindSection returns the section with the given heading, or nil.
func (tr *Tree) FindSection(heading string) *SectionBlock {
	for _, section := range tr.Sections {
		if section.Heading == heading {
			return section
		}
	}
	return nil
}
