// Package client is the HTTP client for the daemon API, used by the CLI
// subcommands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ksakata/vaultd/pkg/cerr"
)

// Client talks JSON to a running daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError mirrors the server's error body.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// do sends a request and decodes the JSON response into out (when non-nil).
// Non-2xx responses become coded errors carrying the server's message.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return cerr.NewError(codeFromName(apiErr.Code), apiErr.Error, nil)
		}
		return fmt.Errorf("daemon returned %s for %s %s", resp.Status, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func codeFromName(name string) cerr.Code {
	for code := cerr.OK; code <= cerr.Unauthenticated; code++ {
		if code.String() == name {
			return code
		}
	}
	return cerr.Unknown
}

// Status fetches the daemon's cache bookkeeping snapshot.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return out, nil
}

// Task is the wire form of a task as returned by the daemon.
type Task struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Status   string            `json:"status"`
	Tags     map[string]string `json:"tags"`
	Notes    []string          `json:"notes"`
	Section  string            `json:"section"`
	File     string            `json:"file"`
	Line     int               `json:"line"`
	Blockers []string          `json:"blockers"`
	Children []Task            `json:"children"`
}

// TaskFilter holds the task list query parameters; zero values are omitted.
type TaskFilter struct {
	Status          string
	Effort          string
	DueBefore       string
	ScheduledBefore string
	ScheduledOn     string
	Stub            string
	Blocked         string
	File            string
	ParentID        string
	IncludeSubtasks bool
	Limit           int
}

func (f TaskFilter) values() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("status", f.Status)
	set("effort", f.Effort)
	set("due_before", f.DueBefore)
	set("scheduled_before", f.ScheduledBefore)
	set("scheduled_on", f.ScheduledOn)
	set("stub", f.Stub)
	set("blocked", f.Blocked)
	set("file", f.File)
	set("parent_id", f.ParentID)
	if f.IncludeSubtasks {
		q.Set("include_subtasks", "true")
	}
	if f.Limit > 0 {
		q.Set("limit", fmt.Sprint(f.Limit))
	}
	return q
}

func (c *Client) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	var out struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tasks", filter.values(), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return out.Tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &out, nil
}

// AddTaskRequest mirrors POST /api/tasks.
type AddTaskRequest struct {
	Title     string   `json:"title"`
	File      string   `json:"file,omitempty"`
	Effort    string   `json:"effort,omitempty"`
	Section   string   `json:"section,omitempty"`
	Status    string   `json:"status,omitempty"`
	Due       string   `json:"due,omitempty"`
	Scheduled string   `json:"scheduled,omitempty"`
	Estimate  string   `json:"estimate,omitempty"`
	BlockedBy []string `json:"blocked_by,omitempty"`
	ParentID  string   `json:"parent_id,omitempty"`
	NoStub    bool     `json:"no_stub,omitempty"`
}

func (c *Client) AddTask(ctx context.Context, req AddTaskRequest) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", nil, req, &out); err != nil {
		return nil, fmt.Errorf("failed to add task: %w", err)
	}
	return &out, nil
}

// UpdateTaskRequest mirrors PATCH /api/tasks/{id}. Nil pointers leave fields
// unchanged; pointers to "" clear them.
type UpdateTaskRequest struct {
	Title     *string  `json:"title,omitempty"`
	Status    *string  `json:"status,omitempty"`
	Due       *string  `json:"due,omitempty"`
	Scheduled *string  `json:"scheduled,omitempty"`
	Estimate  *string  `json:"estimate,omitempty"`
	BlockedBy []string `json:"blocked_by,omitempty"`
	Unblock   []string `json:"unblock,omitempty"`
}

func (c *Client) UpdateTask(ctx context.Context, id string, req UpdateTaskRequest) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), nil, req, &out); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return &out, nil
}

// Effort is the wire form of an effort.
type Effort struct {
	Name       string         `json:"name"`
	Path       string         `json:"path"`
	Status     string         `json:"status"`
	TasksFile  string         `json:"tasks_file"`
	Focused    bool           `json:"focused"`
	TaskCounts map[string]int `json:"task_counts"`
}

func (c *Client) ListEfforts(ctx context.Context, status string, withCounts bool) ([]Effort, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if withCounts {
		q.Set("include_task_counts", "true")
	}
	var out struct {
		Efforts []Effort `json:"efforts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/efforts", q, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list efforts: %w", err)
	}
	return out.Efforts, nil
}

func (c *Client) GetEffort(ctx context.Context, name string) (*Effort, error) {
	var out Effort
	if err := c.do(ctx, http.MethodGet, "/api/efforts/"+url.PathEscape(name), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get effort: %w", err)
	}
	return &out, nil
}

func (c *Client) CreateEffort(ctx context.Context, name string) (*Effort, error) {
	var out Effort
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "/api/efforts", nil, body, &out); err != nil {
		return nil, fmt.Errorf("failed to create effort: %w", err)
	}
	return &out, nil
}

func (c *Client) MoveEffort(ctx context.Context, name, transition string) error {
	body := map[string]string{"transition": transition}
	path := "/api/efforts/" + url.PathEscape(name) + "/move"
	if err := c.do(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return fmt.Errorf("failed to move effort: %w", err)
	}
	return nil
}

func (c *Client) ScanEfforts(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/efforts/scan", nil, nil, nil); err != nil {
		return fmt.Errorf("failed to scan efforts: %w", err)
	}
	return nil
}

func (c *Client) Focus(ctx context.Context) (string, error) {
	var out struct {
		Focus *string `json:"focus"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/focus", nil, nil, &out); err != nil {
		return "", fmt.Errorf("failed to get focus: %w", err)
	}
	if out.Focus == nil {
		return "", nil
	}
	return *out.Focus, nil
}

func (c *Client) SetFocus(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodPut, "/api/focus", nil, map[string]string{"name": name}, nil); err != nil {
		return fmt.Errorf("failed to set focus: %w", err)
	}
	return nil
}

func (c *Client) ClearFocus(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/api/focus", nil, nil, nil); err != nil {
		return fmt.Errorf("failed to clear focus: %w", err)
	}
	return nil
}
