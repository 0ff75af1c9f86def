package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ksakata/vaultd/internal/effort"
	"github.com/ksakata/vaultd/internal/task"
	"github.com/ksakata/vaultd/internal/vault"
	"github.com/ksakata/vaultd/pkg/cerr"
)

type effortJSON struct {
	Name       string         `json:"name"`
	Path       string         `json:"path"`
	Status     effort.Status  `json:"status"`
	TasksFile  string         `json:"tasks_file,omitempty"`
	Focused    bool           `json:"focused"`
	TaskCounts map[string]int `json:"task_counts,omitempty"`
}

func (s *Server) toEffortJSON(e *effort.Effort, withCounts bool) effortJSON {
	out := effortJSON{
		Name:      e.Name,
		Path:      e.Path,
		Status:    e.Status,
		TasksFile: e.TasksFile,
		Focused:   e.Focused,
	}
	if withCounts && e.TasksFile != "" {
		out.TaskCounts = s.taskCounts(e.Name)
	}
	return out
}

// taskCounts tallies the effort's tasks per status through the query index.
func (s *Server) taskCounts(effortName string) map[string]int {
	counts := map[string]int{}
	for _, status := range []task.Status{task.StatusOpen, task.StatusInProgress, task.StatusDone} {
		tasks, err := s.cache.Query(vault.QueryFilter{
			Effort: effortName,
			Status: []task.Status{status},
		})
		if err != nil {
			continue
		}
		counts[string(status)] = len(tasks)
	}
	return counts
}

func (s *Server) handleListEfforts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := effort.Status(q.Get("status"))
	switch status {
	case "", effort.StatusActive, effort.StatusBacklog:
	default:
		writeError(w, r, cerr.NewError(cerr.InvalidArgument,
			fmt.Sprintf("unknown effort status %q", status), nil))
		return
	}
	withCounts, _ := strconv.ParseBool(q.Get("include_task_counts"))

	efforts := s.cache.ListEfforts(status)
	out := make([]effortJSON, 0, len(efforts))
	for _, e := range efforts {
		out = append(out, s.toEffortJSON(e, withCounts))
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"efforts": out,
		"count":   len(out),
	})
}

func (s *Server) handleGetEffort(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	e := s.cache.GetEffort(name)
	if e == nil {
		writeError(w, r, cerr.NewError(cerr.NotFound, fmt.Sprintf("effort %q not found", name), nil))
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, s.toEffortJSON(e, true))
}

type createEffortRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateEffort(w http.ResponseWriter, r *http.Request) {
	var req createEffortRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.lifecycle.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusCreated, s.toEffortJSON(created, false))
}

type moveEffortRequest struct {
	Transition string `json:"transition"`
}

func (s *Server) handleMoveEffort(w http.ResponseWriter, r *http.Request) {
	var req moveEffortRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.lifecycle.Move(r.Context(), name, effort.Transition(req.Transition)); err != nil {
		writeError(w, r, err)
		return
	}
	e := s.cache.GetEffort(name)
	if e == nil {
		// Archived efforts leave the efforts tree entirely.
		writeJSON(r.Context(), w, http.StatusOK, map[string]any{"name": name, "moved": true})
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, s.toEffortJSON(e, false))
}

func (s *Server) handleScanEfforts(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.RefreshEfforts(); err != nil {
		writeError(w, r, err)
		return
	}
	efforts := s.cache.ListEfforts("")
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{"count": len(efforts)})
}

type focusRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleGetFocus(w http.ResponseWriter, r *http.Request) {
	name := s.cache.Focus()
	if name == "" {
		writeJSON(r.Context(), w, http.StatusOK, map[string]any{"focus": nil})
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{"focus": name})
}

func (s *Server) handleSetFocus(w http.ResponseWriter, r *http.Request) {
	var req focusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.cache.SetFocus(req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{"focus": req.Name})
}

func (s *Server) handleClearFocus(w http.ResponseWriter, r *http.Request) {
	s.cache.ClearFocus()
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{"focus": nil})
}
