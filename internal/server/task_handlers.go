package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ksakata/vaultd/internal/task"
	"github.com/ksakata/vaultd/internal/vault"
	"github.com/ksakata/vaultd/pkg/cerr"
	"github.com/ksakata/vaultd/pkg/dates"
)

// taskJSON is the wire form of a task. Children are nested so a single GET
// returns the whole subtree.
type taskJSON struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Status   task.Status       `json:"status"`
	Tags     map[string]string `json:"tags,omitempty"`
	Notes    []string          `json:"notes,omitempty"`
	Section  string            `json:"section,omitempty"`
	File     string            `json:"file"`
	Line     int               `json:"line"`
	Blockers []string          `json:"blockers,omitempty"`
	Children []taskJSON        `json:"children,omitempty"`
}

func toTaskJSON(t *task.Task) taskJSON {
	out := taskJSON{
		ID:       t.ID(),
		Title:    t.Title,
		Status:   t.Status,
		Tags:     t.Tags,
		Notes:    t.Notes,
		Section:  t.Section,
		File:     t.FilePath,
		Line:     t.LineNumber,
		Blockers: t.BlockerIDs(),
	}
	for _, child := range t.Children {
		out.Children = append(out.Children, toTaskJSON(child))
	}
	return out
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tasks, err := s.cache.Query(filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]taskJSON, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskJSON(t))
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"tasks": out,
		"count": len(out),
	})
}

func filterFromQuery(r *http.Request) (vault.QueryFilter, error) {
	q := r.URL.Query()
	filter := vault.QueryFilter{
		Effort:   q.Get("effort"),
		File:     q.Get("file"),
		ParentID: q.Get("parent_id"),
	}

	if v := q.Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			status := task.Status(strings.TrimSpace(s))
			switch status {
			case task.StatusOpen, task.StatusInProgress, task.StatusDone:
				filter.Status = append(filter.Status, status)
			default:
				return filter, cerr.NewError(cerr.InvalidArgument,
					fmt.Sprintf("unknown status %q", s), nil)
			}
		}
	}

	now := time.Now()
	parseDateParam := func(name string) (string, error) {
		v := q.Get(name)
		if v == "" {
			return "", nil
		}
		if iso := dates.ParseDate(v, now); iso != "" {
			return iso, nil
		}
		return "", cerr.NewError(cerr.InvalidArgument,
			fmt.Sprintf("cannot parse %s date %q", name, v), nil)
	}
	var err error
	if filter.DueBefore, err = parseDateParam("due_before"); err != nil {
		return filter, err
	}
	if filter.ScheduledBefore, err = parseDateParam("scheduled_before"); err != nil {
		return filter, err
	}
	if filter.ScheduledOn, err = parseDateParam("scheduled_on"); err != nil {
		return filter, err
	}

	parseBoolParam := func(name string) (*bool, error) {
		v := q.Get(name)
		if v == "" {
			return nil, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, cerr.NewError(cerr.InvalidArgument,
				fmt.Sprintf("cannot parse %s value %q", name, v), nil)
		}
		return &b, nil
	}
	if filter.Stub, err = parseBoolParam("stub"); err != nil {
		return filter, err
	}
	if filter.Blocked, err = parseBoolParam("blocked"); err != nil {
		return filter, err
	}
	if include, err := parseBoolParam("include_subtasks"); err != nil {
		return filter, err
	} else if include != nil {
		filter.IncludeSubtasks = *include
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return filter, cerr.NewError(cerr.InvalidArgument,
				fmt.Sprintf("cannot parse limit %q", v), nil)
		}
		filter.Limit = limit
	}

	return filter, nil
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, _ := s.cache.GetTask(id)
	if t == nil {
		writeError(w, r, cerr.NewError(cerr.NotFound, fmt.Sprintf("task %q not found", id), nil))
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toTaskJSON(t))
}

func (s *Server) handleTaskBlockers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, _ := s.cache.GetTask(id)
	if t == nil {
		writeError(w, r, cerr.NewError(cerr.NotFound, fmt.Sprintf("task %q not found", id), nil))
		return
	}

	blockers := make([]taskJSON, 0)
	var unresolved []string
	for _, bid := range t.BlockerIDs() {
		if blocker, _ := s.cache.GetTask(bid); blocker != nil {
			blockers = append(blockers, toTaskJSON(blocker))
		} else {
			unresolved = append(unresolved, bid)
		}
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"blockers":   blockers,
		"unresolved": unresolved,
	})
}

type addTaskRequest struct {
	Title     string   `json:"title"`
	File      string   `json:"file"`
	Effort    string   `json:"effort"`
	Section   string   `json:"section"`
	Status    string   `json:"status"`
	Due       string   `json:"due"`
	Scheduled string   `json:"scheduled"`
	Estimate  string   `json:"estimate"`
	BlockedBy []string `json:"blocked_by"`
	ParentID  string   `json:"parent_id"`
	NoStub    bool     `json:"no_stub"`
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req addTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	filePath, err := s.resolveTaskFile(req.File, req.Effort)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tags := map[string]string{}
	now := time.Now()
	setDateTag := func(key, raw string) error {
		if raw == "" {
			return nil
		}
		iso := dates.ParseDate(raw, now)
		if iso == "" {
			return cerr.NewError(cerr.InvalidArgument,
				fmt.Sprintf("cannot parse %s date %q", key, raw), nil)
		}
		tags[key] = iso
		return nil
	}
	if err := setDateTag(task.TagDue, req.Due); err != nil {
		writeError(w, r, err)
		return
	}
	if err := setDateTag(task.TagScheduled, req.Scheduled); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Estimate != "" {
		estimate := req.Estimate
		if normalized := dates.NormalizeDuration(estimate); normalized != "" {
			estimate = normalized
		}
		tags[task.TagEstimate] = estimate
	}
	if len(req.BlockedBy) > 0 {
		tags[task.TagBlocked] = strings.Join(req.BlockedBy, ",")
	}

	created, err := s.cache.AddTask(filePath, req.Title, vault.AddTaskOptions{
		Section:  req.Section,
		Status:   task.Status(req.Status),
		Tags:     tags,
		ParentID: req.ParentID,
		NoStub:   req.NoStub,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusCreated, toTaskJSON(created))
}

// resolveTaskFile picks the target file for a new task: an explicit path, or
// the task file of a named effort (falling back to the focused effort).
func (s *Server) resolveTaskFile(file, effortName string) (string, error) {
	if file != "" {
		return file, nil
	}
	if effortName == "" {
		effortName = s.cache.Focus()
	}
	if effortName == "" {
		return "", cerr.NewError(cerr.InvalidArgument,
			"no target: set file or effort, or focus an effort", nil)
	}
	e := s.cache.GetEffort(effortName)
	if e == nil {
		return "", cerr.NewError(cerr.NotFound, fmt.Sprintf("effort %q not found", effortName), nil)
	}
	if e.TasksFile == "" {
		return "", cerr.NewError(cerr.FailedPrecondition,
			fmt.Sprintf("effort %q has no task file", effortName), nil)
	}
	return e.TasksFile, nil
}

type updateTaskRequest struct {
	Title     *string  `json:"title"`
	Status    *string  `json:"status"`
	Due       *string  `json:"due"`
	Scheduled *string  `json:"scheduled"`
	Estimate  *string  `json:"estimate"`
	BlockedBy []string `json:"blocked_by"`
	Unblock   []string `json:"unblock"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	changes := vault.UpdateTaskChanges{
		Title:     req.Title,
		Estimate:  req.Estimate,
		BlockedBy: req.BlockedBy,
		Unblock:   req.Unblock,
	}
	if req.Status != nil {
		status := task.Status(*req.Status)
		switch status {
		case task.StatusOpen, task.StatusInProgress, task.StatusDone:
			changes.Status = &status
		default:
			writeError(w, r, cerr.NewError(cerr.InvalidArgument,
				fmt.Sprintf("unknown status %q", *req.Status), nil))
			return
		}
	}

	now := time.Now()
	normalizeDate := func(name string, v *string) (*string, error) {
		if v == nil || *v == "" {
			return v, nil
		}
		iso := dates.ParseDate(*v, now)
		if iso == "" {
			return nil, cerr.NewError(cerr.InvalidArgument,
				fmt.Sprintf("cannot parse %s date %q", name, *v), nil)
		}
		return &iso, nil
	}
	var err error
	if changes.Due, err = normalizeDate("due", req.Due); err != nil {
		writeError(w, r, err)
		return
	}
	if changes.Scheduled, err = normalizeDate("scheduled", req.Scheduled); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := s.cache.UpdateTask(chi.URLParam(r, "id"), changes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toTaskJSON(updated))
}
