package effort

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksakata/vaultd/pkg/cerr"
)

// fakeCache backs the lifecycle with a map refreshed by re-scanning the
// real directory tree.
type fakeCache struct {
	effortsRoot string
	efforts     map[string]*Effort
}

func (c *fakeCache) GetEffort(name string) *Effort { return c.efforts[name] }

func (c *fakeCache) RefreshEfforts() error {
	efforts, err := Scan(c.effortsRoot)
	if err != nil {
		return err
	}
	c.efforts = efforts
	return nil
}

// testCommands drive the lifecycle with plain shell instead of the obsidian
// tool, exercising the same variable expansion.
func testCommands() ToolCommands {
	return ToolCommands{
		Create: []string{
			`mkdir -p "efforts/$EFFORT_NAME"`,
			`echo "# $EFFORT_NAME" > "efforts/$EFFORT_NAME/CLAUDE.md"`,
		},
		Backlog:  []string{`mkdir -p efforts/__backlog && mv "efforts/$EFFORT_NAME" "efforts/__backlog/$EFFORT_NAME"`},
		Activate: []string{`mv "$EFFORT_PATH" "efforts/$EFFORT_NAME"`},
		Archive:  []string{`mkdir -p archive && mv "$EFFORT_PATH" "archive/$EFFORT_NAME"`},
	}
}

func newTestLifecycle(t *testing.T) (*Lifecycle, *fakeCache, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "efforts"), 0755))
	cache := &fakeCache{effortsRoot: filepath.Join(root, "efforts")}
	require.NoError(t, cache.RefreshEfforts())
	return NewLifecycle(root, testCommands(), cache), cache, root
}

func TestLifecycle_Create(t *testing.T) {
	l, _, root := newTestLifecycle(t)
	ctx := context.Background()

	created, err := l.Create(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", created.Name)
	assert.Equal(t, StatusActive, created.Status)
	assert.FileExists(t, filepath.Join(root, "efforts", "alpha", MarkerFile))

	t.Run("duplicate", func(t *testing.T) {
		_, err := l.Create(ctx, "alpha")
		require.Error(t, err)
		assert.Equal(t, cerr.AlreadyExists, cerr.CodeOf(err))
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := l.Create(ctx, "../escape")
		require.Error(t, err)
		assert.Equal(t, cerr.InvalidArgument, cerr.CodeOf(err))
	})
}

func TestLifecycle_Move(t *testing.T) {
	l, cache, root := newTestLifecycle(t)
	ctx := context.Background()
	_, err := l.Create(ctx, "alpha")
	require.NoError(t, err)

	t.Run("activate requires backlog", func(t *testing.T) {
		err := l.Move(ctx, "alpha", TransitionActivate)
		require.Error(t, err)
		assert.Equal(t, cerr.FailedPrecondition, cerr.CodeOf(err))
	})

	t.Run("backlog then activate", func(t *testing.T) {
		require.NoError(t, l.Move(ctx, "alpha", TransitionBacklog))
		require.Equal(t, StatusBacklog, cache.GetEffort("alpha").Status)

		require.NoError(t, l.Move(ctx, "alpha", TransitionActivate))
		require.Equal(t, StatusActive, cache.GetEffort("alpha").Status)
	})

	t.Run("archive removes from efforts tree", func(t *testing.T) {
		require.NoError(t, l.Move(ctx, "alpha", TransitionArchive))
		assert.Nil(t, cache.GetEffort("alpha"))
		assert.DirExists(t, filepath.Join(root, "archive", "alpha"))
	})

	t.Run("unknown effort", func(t *testing.T) {
		err := l.Move(ctx, "ghost", TransitionBacklog)
		require.Error(t, err)
		assert.Equal(t, cerr.NotFound, cerr.CodeOf(err))
	})

	t.Run("unknown transition", func(t *testing.T) {
		_, err := l.Create(ctx, "beta")
		require.NoError(t, err)
		err = l.Move(ctx, "beta", Transition("sideways"))
		require.Error(t, err)
		assert.Equal(t, cerr.InvalidArgument, cerr.CodeOf(err))
	})
}
