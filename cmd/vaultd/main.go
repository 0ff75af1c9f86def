package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/ksakata/vaultd/internal/client"
	"github.com/ksakata/vaultd/internal/config"
	"github.com/ksakata/vaultd/internal/daemon"
	"github.com/ksakata/vaultd/pkg/clog"
)

var (
	app  = kingpin.New("vaultd", "Vault task synchronization daemon")
	addr = app.Flag("addr", "Daemon base URL for client commands").
		Default("http://localhost:3900").Envar("VAULTD_ADDR").String()

	serveCmd = app.Command("serve", "Run the daemon")

	statusCmd = app.Command("status", "Show daemon cache status")

	taskCmd = app.Command("task", "Task commands")

	taskListCmd      = taskCmd.Command("list", "List tasks")
	taskListStatus   = taskListCmd.Flag("status", "Comma-separated status filter (open,in-progress,done)").String()
	taskListEffort   = taskListCmd.Flag("effort", "Filter by effort name").String()
	taskListDue      = taskListCmd.Flag("due-before", "Only tasks due on or before this date").String()
	taskListBlocked  = taskListCmd.Flag("blocked", "Filter by blocked state (true/false)").String()
	taskListStub     = taskListCmd.Flag("stub", "Filter by stub state (true/false)").String()
	taskListSubtasks = taskListCmd.Flag("subtasks", "Include subtasks of matches").Bool()
	taskListLimit    = taskListCmd.Flag("limit", "Maximum results").Int()
	taskListJSON     = taskListCmd.Flag("json", "Output JSON").Bool()

	taskShowCmd  = taskCmd.Command("show", "Show a task")
	taskShowID   = taskShowCmd.Arg("id", "Task id").Required().String()
	taskShowJSON = taskShowCmd.Flag("json", "Output JSON").Bool()

	taskAddCmd       = taskCmd.Command("add", "Add a task")
	taskAddTitle     = taskAddCmd.Arg("title", "Task title").Required().String()
	taskAddFile      = taskAddCmd.Flag("file", "Target task file path").String()
	taskAddEffort    = taskAddCmd.Flag("effort", "Target effort (defaults to focus)").String()
	taskAddSection   = taskAddCmd.Flag("section", "Target section heading").String()
	taskAddDue       = taskAddCmd.Flag("due", "Due date").String()
	taskAddScheduled = taskAddCmd.Flag("scheduled", "Scheduled date").String()
	taskAddEstimate  = taskAddCmd.Flag("estimate", "Effort estimate, e.g. 2h30m").String()
	taskAddParent    = taskAddCmd.Flag("parent", "Parent task id").String()
	taskAddNoStub    = taskAddCmd.Flag("no-stub", "Do not mark the task as a stub").Bool()

	taskUpdateCmd          = taskCmd.Command("update", "Update a task")
	taskUpdateID           = taskUpdateCmd.Arg("id", "Task id").Required().String()
	taskUpdateTitleSet     bool
	taskUpdateTitle        = taskUpdateCmd.Flag("title", "New title").IsSetByUser(&taskUpdateTitleSet).String()
	taskUpdateStatusSet    bool
	taskUpdateStatus       = taskUpdateCmd.Flag("status", "New status (open, in-progress, done)").IsSetByUser(&taskUpdateStatusSet).String()
	taskUpdateDueSet       bool
	taskUpdateDue          = taskUpdateCmd.Flag("due", "New due date (empty clears)").IsSetByUser(&taskUpdateDueSet).String()
	taskUpdateScheduledSet bool
	taskUpdateScheduled    = taskUpdateCmd.Flag("scheduled", "New scheduled date (empty clears)").IsSetByUser(&taskUpdateScheduledSet).String()
	taskUpdateEstimateSet  bool
	taskUpdateEstimate     = taskUpdateCmd.Flag("estimate", "New estimate (empty clears)").IsSetByUser(&taskUpdateEstimateSet).String()
	taskUpdateBlockedBy    = taskUpdateCmd.Flag("blocked-by", "Add a blocker id").Strings()
	taskUpdateUnblock      = taskUpdateCmd.Flag("unblock", "Remove a blocker id").Strings()

	effortCmd = app.Command("effort", "Effort commands")

	effortListCmd    = effortCmd.Command("list", "List efforts")
	effortListStatus = effortListCmd.Flag("status", "Filter by status (active, backlog)").String()
	effortListCounts = effortListCmd.Flag("counts", "Include task counts").Bool()

	effortShowCmd  = effortCmd.Command("show", "Show an effort")
	effortShowName = effortShowCmd.Arg("name", "Effort name").Required().String()

	effortCreateCmd  = effortCmd.Command("create", "Create a new effort from templates")
	effortCreateName = effortCreateCmd.Arg("name", "Effort name").Required().String()

	effortMoveCmd        = effortCmd.Command("move", "Move an effort through its lifecycle")
	effortMoveName       = effortMoveCmd.Arg("name", "Effort name").Required().String()
	effortMoveTransition = effortMoveCmd.Arg("transition", "backlog, activate or archive").Required().
				Enum("backlog", "activate", "archive")

	effortFocusCmd   = effortCmd.Command("focus", "Show, set or clear the focused effort")
	effortFocusName  = effortFocusCmd.Arg("name", "Effort to focus").String()
	effortFocusClear = effortFocusCmd.Flag("clear", "Clear the focus").Bool()

	effortScanCmd = effortCmd.Command("scan", "Force an effort re-scan")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == serveCmd.FullCommand() {
		runServe()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	c := client.New(*addr)

	if err := runClientCommand(ctx, c, command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewVaultTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	d, err := daemon.New(env)
	if err != nil {
		slog.Error("failed to create daemon", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		slog.Error("failed to start daemon", "error", err)
		os.Exit(1)
	}
	if err := d.WaitForShutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func runClientCommand(ctx context.Context, c *client.Client, command string) error {
	switch command {
	case statusCmd.FullCommand():
		status, err := c.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(status)

	case taskListCmd.FullCommand():
		tasks, err := c.ListTasks(ctx, client.TaskFilter{
			Status:          *taskListStatus,
			Effort:          *taskListEffort,
			DueBefore:       *taskListDue,
			Blocked:         *taskListBlocked,
			Stub:            *taskListStub,
			IncludeSubtasks: *taskListSubtasks,
			Limit:           *taskListLimit,
		})
		if err != nil {
			return err
		}
		if *taskListJSON {
			return printJSON(tasks)
		}
		for _, t := range tasks {
			printTaskLine(&t)
		}
		return nil

	case taskShowCmd.FullCommand():
		t, err := c.GetTask(ctx, *taskShowID)
		if err != nil {
			return err
		}
		if *taskShowJSON {
			return printJSON(t)
		}
		printTask(t, 0)
		return nil

	case taskAddCmd.FullCommand():
		t, err := c.AddTask(ctx, client.AddTaskRequest{
			Title:     *taskAddTitle,
			File:      *taskAddFile,
			Effort:    *taskAddEffort,
			Section:   *taskAddSection,
			Due:       *taskAddDue,
			Scheduled: *taskAddScheduled,
			Estimate:  *taskAddEstimate,
			ParentID:  *taskAddParent,
			NoStub:    *taskAddNoStub,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added %s: %s\n", t.ID, t.Title)
		return nil

	case taskUpdateCmd.FullCommand():
		req := client.UpdateTaskRequest{
			Title:     flagPtr(taskUpdateTitle, taskUpdateTitleSet),
			Status:    flagPtr(taskUpdateStatus, taskUpdateStatusSet),
			Due:       flagPtr(taskUpdateDue, taskUpdateDueSet),
			Scheduled: flagPtr(taskUpdateScheduled, taskUpdateScheduledSet),
			Estimate:  flagPtr(taskUpdateEstimate, taskUpdateEstimateSet),
			BlockedBy: *taskUpdateBlockedBy,
			Unblock:   *taskUpdateUnblock,
		}
		t, err := c.UpdateTask(ctx, *taskUpdateID, req)
		if err != nil {
			return err
		}
		printTask(t, 0)
		return nil

	case effortListCmd.FullCommand():
		efforts, err := c.ListEfforts(ctx, *effortListStatus, *effortListCounts)
		if err != nil {
			return err
		}
		for _, e := range efforts {
			marker := " "
			if e.Focused {
				marker = "*"
			}
			line := fmt.Sprintf("%s %-8s %s", marker, e.Status, e.Name)
			if *effortListCounts && len(e.TaskCounts) > 0 {
				line += fmt.Sprintf("  (open %d, in-progress %d, done %d)",
					e.TaskCounts["open"], e.TaskCounts["in-progress"], e.TaskCounts["done"])
			}
			fmt.Println(line)
		}
		return nil

	case effortShowCmd.FullCommand():
		e, err := c.GetEffort(ctx, *effortShowName)
		if err != nil {
			return err
		}
		return printJSON(e)

	case effortCreateCmd.FullCommand():
		e, err := c.CreateEffort(ctx, *effortCreateName)
		if err != nil {
			return err
		}
		fmt.Printf("Created effort %s at %s\n", e.Name, e.Path)
		return nil

	case effortMoveCmd.FullCommand():
		if err := c.MoveEffort(ctx, *effortMoveName, *effortMoveTransition); err != nil {
			return err
		}
		fmt.Printf("Moved effort %s (%s)\n", *effortMoveName, *effortMoveTransition)
		return nil

	case effortFocusCmd.FullCommand():
		switch {
		case *effortFocusClear:
			if err := c.ClearFocus(ctx); err != nil {
				return err
			}
			fmt.Println("Focus cleared")
		case *effortFocusName != "":
			if err := c.SetFocus(ctx, *effortFocusName); err != nil {
				return err
			}
			fmt.Printf("Focused %s\n", *effortFocusName)
		default:
			focus, err := c.Focus(ctx)
			if err != nil {
				return err
			}
			if focus == "" {
				fmt.Println("No focused effort")
			} else {
				fmt.Println(focus)
			}
		}
		return nil

	case effortScanCmd.FullCommand():
		if err := c.ScanEfforts(ctx); err != nil {
			return err
		}
		fmt.Println("Effort scan complete")
		return nil
	}

	return fmt.Errorf("unknown command %q", command)
}

// flagPtr returns the flag's value pointer only when the flag was given on
// the command line, so unset and explicitly-empty flags are distinguishable.
func flagPtr(value *string, set bool) *string {
	if set {
		return value
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTaskLine(t *client.Task) {
	checkbox := map[string]string{
		"open":        "[ ]",
		"in-progress": "[/]",
		"done":        "[x]",
	}[t.Status]
	extra := ""
	if due := t.Tags["due"]; due != "" {
		extra += " due " + due
	}
	if len(t.Blockers) > 0 {
		extra += " blocked by " + strings.Join(t.Blockers, ",")
	}
	fmt.Printf("%s %s %s%s\n", t.ID, checkbox, t.Title, extra)
}

func printTask(t *client.Task, depth int) {
	indent := strings.Repeat("    ", depth)
	fmt.Print(indent)
	printTaskLine(t)
	for _, note := range t.Notes {
		fmt.Printf("%s    - %s\n", indent, note)
	}
	for i := range t.Children {
		printTask(&t.Children[i], depth+1)
	}
}
