package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksakata/vaultd/internal/effort"
	"github.com/ksakata/vaultd/internal/vault"
)

const alphaTasks = `### Open

- [ ] Parent task 🆔 par001 📅 2026-03-01
    - [ ] Child A 🆔 cha001
    - [ ] Child B 🆔 chb001 ⛔ cha001
- [/] Solo task 🆔 sol001
`

func newTestServer(t *testing.T) (*httptest.Server, *vault.Cache) {
	t.Helper()
	root := t.TempDir()
	alpha := filepath.Join(root, "efforts", "alpha")
	require.NoError(t, os.MkdirAll(alpha, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(alpha, "CLAUDE.md"), []byte("# alpha\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(alpha, "TASKS.md"), []byte(alphaTasks), 0644))

	cache, err := vault.New()
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	require.NoError(t, cache.Initialize(root, nil))

	lifecycle := effort.NewLifecycle(root, effort.ToolCommands{
		Create: []string{`mkdir -p "efforts/$EFFORT_NAME" && echo ctx > "efforts/$EFFORT_NAME/CLAUDE.md"`},
	}, cache)

	ts := httptest.NewServer(New(cache, lifecycle).Handler())
	t.Cleanup(ts.Close)
	return ts, cache
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func sendJSON(t *testing.T, ts *httptest.Server, method, path string, body, out any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestServer_Healthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Status(t *testing.T) {
	ts, _ := newTestServer(t)
	var status struct {
		FilesIndexed int `json:"files_indexed"`
		TasksIndexed int `json:"tasks_indexed"`
	}
	resp := getJSON(t, ts, "/api/status", &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, status.FilesIndexed)
	assert.Equal(t, 4, status.TasksIndexed)
}

func TestServer_ListTasks(t *testing.T) {
	ts, _ := newTestServer(t)

	var out struct {
		Tasks []taskJSON `json:"tasks"`
		Count int        `json:"count"`
	}

	t.Run("all", func(t *testing.T) {
		resp := getJSON(t, ts, "/api/tasks", &out)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 4, out.Count)
	})

	t.Run("by status", func(t *testing.T) {
		resp := getJSON(t, ts, "/api/tasks?status=in-progress", &out)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 1, out.Count)
		assert.Equal(t, "sol001", out.Tasks[0].ID)
	})

	t.Run("blocked", func(t *testing.T) {
		resp := getJSON(t, ts, "/api/tasks?blocked=true", &out)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 1, out.Count)
		assert.Equal(t, "chb001", out.Tasks[0].ID)
	})

	t.Run("due before with loose date", func(t *testing.T) {
		resp := getJSON(t, ts, "/api/tasks?due_before=2026-03-01", &out)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 1, out.Count)
	})

	t.Run("invalid status", func(t *testing.T) {
		resp := getJSON(t, ts, "/api/tasks?status=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid bool", func(t *testing.T) {
		resp := getJSON(t, ts, "/api/tasks?stub=maybe", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_GetTask(t *testing.T) {
	ts, _ := newTestServer(t)

	var got taskJSON
	resp := getJSON(t, ts, "/api/tasks/par001", &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Parent task", got.Title)
	assert.Len(t, got.Children, 2)

	resp = getJSON(t, ts, "/api/tasks/zzz999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_TaskBlockers(t *testing.T) {
	ts, _ := newTestServer(t)

	var out struct {
		Blockers   []taskJSON `json:"blockers"`
		Unresolved []string   `json:"unresolved"`
	}
	resp := getJSON(t, ts, "/api/tasks/chb001/blockers", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Blockers, 1)
	assert.Equal(t, "cha001", out.Blockers[0].ID)
	assert.Empty(t, out.Unresolved)
}

func TestServer_AddTask(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("to focused effort", func(t *testing.T) {
		sendJSON(t, ts, http.MethodPut, "/api/focus", map[string]string{"name": "alpha"}, nil)

		var created taskJSON
		resp := sendJSON(t, ts, http.MethodPost, "/api/tasks", map[string]any{
			"title": "From the API",
			"due":   "tomorrow",
		}, &created)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.NotEmpty(t, created.ID)
		tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
		assert.Equal(t, tomorrow, created.Tags["due"])
	})

	t.Run("no target", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/focus", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		resp2 := sendJSON(t, ts, http.MethodPost, "/api/tasks", map[string]any{
			"title": "Nowhere to go",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	})

	t.Run("bad date", func(t *testing.T) {
		resp := sendJSON(t, ts, http.MethodPost, "/api/tasks", map[string]any{
			"title":  "Bad date",
			"effort": "alpha",
			"due":    "someday maybe",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown body field", func(t *testing.T) {
		resp := sendJSON(t, ts, http.MethodPost, "/api/tasks", map[string]any{
			"title":    "Strict",
			"effort":   "alpha",
			"priority": "high",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_UpdateTask(t *testing.T) {
	ts, _ := newTestServer(t)

	var updated taskJSON
	resp := sendJSON(t, ts, http.MethodPatch, "/api/tasks/sol001", map[string]any{
		"status": "done",
	}, &updated)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "done", string(updated.Status))
	assert.Equal(t, time.Now().Format("2006-01-02"), updated.Tags["completed"])

	resp = sendJSON(t, ts, http.MethodPatch, "/api/tasks/sol001", map[string]any{
		"status": "paused",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = sendJSON(t, ts, http.MethodPatch, "/api/tasks/zzz999", map[string]any{
		"title": "nope",
	}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Efforts(t *testing.T) {
	ts, _ := newTestServer(t)

	var list struct {
		Efforts []effortJSON `json:"efforts"`
		Count   int          `json:"count"`
	}
	resp := getJSON(t, ts, "/api/efforts?include_task_counts=true", &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "alpha", list.Efforts[0].Name)
	assert.Equal(t, 3, list.Efforts[0].TaskCounts["open"])
	assert.Equal(t, 1, list.Efforts[0].TaskCounts["in-progress"])

	var created effortJSON
	resp = sendJSON(t, ts, http.MethodPost, "/api/efforts", map[string]string{"name": "beta"}, &created)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "beta", created.Name)

	resp = getJSON(t, ts, "/api/efforts/beta", &created)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = getJSON(t, ts, "/api/efforts/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Focus(t *testing.T) {
	ts, _ := newTestServer(t)

	var out struct {
		Focus *string `json:"focus"`
	}
	getJSON(t, ts, "/api/focus", &out)
	assert.Nil(t, out.Focus)

	resp := sendJSON(t, ts, http.MethodPut, "/api/focus", map[string]string{"name": "alpha"}, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, out.Focus)
	assert.Equal(t, "alpha", *out.Focus)

	resp = sendJSON(t, ts, http.MethodPut, "/api/focus", map[string]string{"name": "ghost"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
