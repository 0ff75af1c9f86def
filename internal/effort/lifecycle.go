package effort

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ksakata/vaultd/pkg/cerr"
)

const commandTimeout = 2 * time.Minute

// ToolCommands are the external tool command lines run for each lifecycle
// transition. The cache never moves effort files itself; a vault-aware
// move/template tool does, so links inside the vault stay intact. Each line
// is shell syntax and sees EFFORT_NAME, EFFORT_PATH and VAULT_ROOT in its
// environment.
type ToolCommands struct {
	Create   []string `yaml:"create"`
	Backlog  []string `yaml:"backlog"`
	Activate []string `yaml:"activate"`
	Archive  []string `yaml:"archive"`
}

// DefaultToolCommands drive the stock obsidian CLI.
func DefaultToolCommands() ToolCommands {
	return ToolCommands{
		Create: []string{
			`obsidian create template=effort-readme "path=efforts/$EFFORT_NAME/00 README.md"`,
			`obsidian create template=effort-claude "path=efforts/$EFFORT_NAME/CLAUDE.md"`,
			`obsidian create template=taskfile "path=efforts/$EFFORT_NAME/01 TASKS.md"`,
		},
		Backlog:  []string{`obsidian move "path=efforts/$EFFORT_NAME" "to=efforts/__backlog/$EFFORT_NAME"`},
		Activate: []string{`obsidian move "path=$EFFORT_PATH" "to=efforts/$EFFORT_NAME"`},
		Archive:  []string{`obsidian move "path=$EFFORT_PATH" "to=archive/$EFFORT_NAME"`},
	}
}

// Cache is the slice of the vault cache the lifecycle needs: lookups for
// transition validation and a re-scan after the tool has moved files.
type Cache interface {
	GetEffort(name string) *Effort
	RefreshEfforts() error
}

// Lifecycle runs effort transitions through the external tool and keeps the
// cache in sync afterwards.
type Lifecycle struct {
	vaultRoot string
	commands  ToolCommands
	cache     Cache
}

func NewLifecycle(vaultRoot string, commands ToolCommands, cache Cache) *Lifecycle {
	return &Lifecycle{
		vaultRoot: vaultRoot,
		commands:  commands,
		cache:     cache,
	}
}

// Create instantiates a new active effort from templates.
func (l *Lifecycle) Create(ctx context.Context, name string) (*Effort, error) {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid effort name", nil)
	}
	if l.cache.GetEffort(name) != nil {
		return nil, cerr.NewError(cerr.AlreadyExists, fmt.Sprintf("effort %q already exists", name), nil)
	}
	if err := l.run(ctx, name, "", l.commands.Create); err != nil {
		return nil, err
	}
	if err := l.cache.RefreshEfforts(); err != nil {
		return nil, fmt.Errorf("failed to rescan efforts: %w", err)
	}
	created := l.cache.GetEffort(name)
	if created == nil {
		return nil, cerr.NewError(cerr.Internal, "effort tool reported success but effort was not found after rescan", nil)
	}
	return created, nil
}

// Transition is a lifecycle move target.
type Transition string

const (
	TransitionBacklog  Transition = "backlog"
	TransitionActivate Transition = "activate"
	TransitionArchive  Transition = "archive"
)

// Move runs a lifecycle transition for an existing effort. Backlog demotion
// requires an active effort, activation a backlog one; archiving accepts
// either. The tool does the file moves; the cache only re-scans.
func (l *Lifecycle) Move(ctx context.Context, name string, transition Transition) error {
	e := l.cache.GetEffort(name)
	if e == nil {
		return cerr.NewError(cerr.NotFound, fmt.Sprintf("effort %q not found", name), nil)
	}

	var cmds []string
	switch transition {
	case TransitionBacklog:
		if e.Status != StatusActive {
			return cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("effort %q is not active", name), nil)
		}
		cmds = l.commands.Backlog
	case TransitionActivate:
		if e.Status != StatusBacklog {
			return cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("effort %q is not in the backlog", name), nil)
		}
		cmds = l.commands.Activate
	case TransitionArchive:
		cmds = l.commands.Archive
	default:
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown transition %q", transition), nil)
	}

	if err := l.run(ctx, name, e.Path, cmds); err != nil {
		return err
	}
	if err := l.cache.RefreshEfforts(); err != nil {
		return fmt.Errorf("failed to rescan efforts: %w", err)
	}
	return nil
}

// run executes the tool command lines in order, stopping at the first
// failure.
func (l *Lifecycle) run(ctx context.Context, name, path string, cmds []string) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	env := append(os.Environ(),
		"EFFORT_NAME="+name,
		"EFFORT_PATH="+path,
		"VAULT_ROOT="+l.vaultRoot,
	)

	parser := syntax.NewParser()
	for _, cmd := range cmds {
		file, err := parser.Parse(strings.NewReader(cmd), "")
		if err != nil {
			return fmt.Errorf("failed to parse tool command %q: %w", cmd, err)
		}
		runner, err := interp.New(
			interp.Dir(l.vaultRoot),
			interp.Env(expand.ListEnviron(env...)),
			interp.StdIO(nil, os.Stderr, os.Stderr),
		)
		if err != nil {
			return fmt.Errorf("failed to create command runner: %w", err)
		}
		slog.InfoContext(ctx, "running effort tool command", "effort", name, "command", cmd)
		if err := runner.Run(ctx, file); err != nil {
			return cerr.NewError(cerr.Internal, fmt.Sprintf("effort tool command failed: %s", cmd), err)
		}
	}
	return nil
}
