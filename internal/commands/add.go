package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"tasksync/internal/app"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/service"
)

func init() {
	Register(&AddCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	listName string
	note     string
	due      string
}

// SetListName sets the list name (for testing).
func (c *AddCmd) SetListName(name string) {
	c.listName = name
}

// SetDue sets the due flag (for testing).
func (c *AddCmd) SetDue(due string) {
	c.due = due
}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return []string{"create"} }
func (c *AddCmd) Synopsis() string  { return "Create a task" }
func (c *AddCmd) Usage() string {
	return "tasksync add [--list <list-name>] [--note <text>] [--due <date>] <title...>"
}
func (c *AddCmd) NeedsEnv() bool { return true }

func (c *AddCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.listName, "list", "", "")
	fs.StringVar(&c.listName, "l", "", "")
	fs.StringVar(&c.note, "note", "", "")
	fs.StringVar(&c.due, "due", "", "")
}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	title := strings.Join(args, " ")
	if strings.TrimSpace(title) == "" {
		fmt.Fprintln(errOut, "error: title required")
		return exitcode.UserError
	}

	var due *time.Time
	if c.due != "" {
		d, err := parseDue(c.due, env.Location)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.UserError
		}
		due = &d
	}

	var (
		list service.LocalList
		err  error
	)
	if c.listName != "" {
		list, err = env.Store.ResolveList(ctx, c.listName)
	} else {
		list, err = defaultList(ctx, env.Store)
	}
	if err != nil {
		return report(errOut, c.listName, err)
	}

	task, err := env.Store.CreateTask(ctx, list.ID, title, c.note)
	if err != nil {
		return report(errOut, c.listName, err)
	}
	if due != nil {
		if _, err := env.Store.EditTask(ctx, task.ID, func(t *service.LocalTask) { t.Due = due }); err != nil {
			return report(errOut, c.listName, err)
		}
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}

// parseDue accepts a date, or a date and a time of day, in loc.
func parseDue(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", service.DateLayout} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid due date: %s (want YYYY-MM-DD [HH:MM])", s)
}
