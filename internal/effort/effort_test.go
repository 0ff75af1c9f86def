package effort

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEffortDir(t *testing.T, root string, parts ...string) string {
	t.Helper()
	dir := filepath.Join(append([]string{root}, parts...)...)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFile), []byte("# context\n"), 0644))
	return dir
}

func TestScan(t *testing.T) {
	root := t.TempDir()

	alpha := makeEffortDir(t, root, "alpha")
	require.NoError(t, os.WriteFile(filepath.Join(alpha, "TASKS.md"), []byte("- [ ] x\n"), 0644))

	beta := makeEffortDir(t, root, "beta")
	require.NoError(t, os.WriteFile(filepath.Join(beta, "01 TASKS.md"), []byte("- [ ] y\n"), 0644))

	// Backlog effort, nested one level deep inside an organizing folder.
	makeEffortDir(t, root, BacklogDir, "2026", "gamma")

	// Not efforts: no marker file, or reserved names.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "plain-folder"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "__ideas"), 0755))

	efforts, err := Scan(root)
	require.NoError(t, err)
	require.Len(t, efforts, 3)

	assert.Equal(t, StatusActive, efforts["alpha"].Status)
	assert.Equal(t, filepath.Join(alpha, "TASKS.md"), efforts["alpha"].TasksFile)

	assert.Equal(t, StatusActive, efforts["beta"].Status)
	assert.Equal(t, filepath.Join(beta, "01 TASKS.md"), efforts["beta"].TasksFile)

	require.Contains(t, efforts, "gamma")
	assert.Equal(t, StatusBacklog, efforts["gamma"].Status)
	assert.Empty(t, efforts["gamma"].TasksFile)
}

func TestScan_MissingRoot(t *testing.T) {
	efforts, err := Scan(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, efforts)
}

func TestIsEffortDir(t *testing.T) {
	root := t.TempDir()
	withMarker := makeEffortDir(t, root, "yes")
	without := filepath.Join(root, "no")
	require.NoError(t, os.MkdirAll(without, 0755))

	assert.True(t, IsEffortDir(withMarker))
	assert.False(t, IsEffortDir(without))
	assert.False(t, IsEffortDir(filepath.Join(withMarker, MarkerFile)))
}

func TestFindTasksFile_PrefersPlainName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01 TASKS.md"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "TASKS.md"), nil, 0644))
	assert.Equal(t, filepath.Join(dir, "TASKS.md"), findTasksFile(dir))
}
