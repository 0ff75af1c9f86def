// Package config loads daemon configuration from the environment, plus an
// optional vaultd.yaml in the vault root for effort tool command overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ksakata/vaultd/internal/effort"
)

type Env struct {
	Env          string        `envconfig:"ENV" default:"local"`
	VaultRoot    string        `envconfig:"VAULT_ROOT" required:"true"`
	ExcludeDirs  string        `envconfig:"EXCLUDE_DIRS" default:".git,.obsidian,node_modules,.trash"`
	HTTPHost     string        `envconfig:"HTTP_HOST" default:""`
	HTTPPort     string        `envconfig:"HTTP_PORT" default:"3900"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`
	// APIEnabled turns the HTTP listener off for watch-only deployments.
	APIEnabled bool `envconfig:"API_ENABLED" default:"true"`
}

const namespace = "VAULTD"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	env.VaultRoot = filepath.Clean(env.VaultRoot)
	return &env, nil
}

func (e *Env) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ExcludeSet splits the comma-separated exclude list into a lookup set.
func (e *Env) ExcludeSet() map[string]bool {
	set := map[string]bool{}
	for _, name := range strings.Split(e.ExcludeDirs, ",") {
		if name = strings.TrimSpace(name); name != "" {
			set[name] = true
		}
	}
	return set
}

// HTTPAddr joins host and port for net listening.
func (e *Env) HTTPAddr() string {
	return e.HTTPHost + ":" + e.HTTPPort
}

// vaultFile is the optional per-vault config file, read from the vault root.
type vaultFile struct {
	ToolCommands effort.ToolCommands `yaml:"tool_commands"`
}

// VaultFileName is the optional per-vault config file name.
const VaultFileName = "vaultd.yaml"

// LoadToolCommands reads effort tool command overrides from vaultd.yaml in
// the vault root. A missing file yields the defaults; sections absent from
// the file keep their default command lines.
func LoadToolCommands(vaultRoot string) (effort.ToolCommands, error) {
	commands := effort.DefaultToolCommands()

	data, err := os.ReadFile(filepath.Join(vaultRoot, VaultFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return commands, nil
		}
		return commands, fmt.Errorf("failed to read %s: %w", VaultFileName, err)
	}

	var file vaultFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return commands, fmt.Errorf("failed to parse %s: %w", VaultFileName, err)
	}

	if len(file.ToolCommands.Create) > 0 {
		commands.Create = file.ToolCommands.Create
	}
	if len(file.ToolCommands.Backlog) > 0 {
		commands.Backlog = file.ToolCommands.Backlog
	}
	if len(file.ToolCommands.Activate) > 0 {
		commands.Activate = file.ToolCommands.Activate
	}
	if len(file.ToolCommands.Archive) > 0 {
		commands.Archive = file.ToolCommands.Archive
	}
	return commands, nil
}
