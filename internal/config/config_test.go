package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("VAULTD_VAULT_ROOT", "/srv/vault/")
	t.Setenv("VAULTD_POLL_INTERVAL", "10s")
	t.Setenv("VAULTD_LOG_LEVEL", "warn")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "/srv/vault", env.VaultRoot)
	assert.Equal(t, 10*time.Second, env.PollInterval)
	assert.Equal(t, slog.LevelWarn, env.SlogLevel())
	assert.Equal(t, ":3900", env.HTTPAddr())
	assert.Equal(t, map[string]bool{
		".git": true, ".obsidian": true, "node_modules": true, ".trash": true,
	}, env.ExcludeSet())
}

func TestLoadEnv_MissingVaultRoot(t *testing.T) {
	t.Setenv("VAULTD_VAULT_ROOT", "")
	_, err := LoadEnv()
	require.Error(t, err)
}

func TestLoadToolCommands(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		commands, err := LoadToolCommands(t.TempDir())
		require.NoError(t, err)
		assert.NotEmpty(t, commands.Create)
		assert.NotEmpty(t, commands.Archive)
	})

	t.Run("partial override", func(t *testing.T) {
		root := t.TempDir()
		content := "tool_commands:\n  create:\n    - custom-tool new \"$EFFORT_NAME\"\n"
		require.NoError(t, os.WriteFile(filepath.Join(root, VaultFileName), []byte(content), 0644))

		commands, err := LoadToolCommands(root)
		require.NoError(t, err)
		assert.Equal(t, []string{`custom-tool new "$EFFORT_NAME"`}, commands.Create)
		// Sections absent from the file keep their defaults.
		assert.NotEmpty(t, commands.Backlog)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, VaultFileName), []byte("\t:bad"), 0644))
		_, err := LoadToolCommands(root)
		require.Error(t, err)
	})
}
