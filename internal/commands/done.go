package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"tasksync/internal/app"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
)

func init() {
	Register(&DoneCmd{})
}

// DoneCmd implements the done command.
type DoneCmd struct {
	listName string
}

// SetListName sets the list name (for testing).
func (c *DoneCmd) SetListName(name string) {
	c.listName = name
}

func (c *DoneCmd) Name() string      { return "done" }
func (c *DoneCmd) Aliases() []string { return nil }
func (c *DoneCmd) Synopsis() string  { return "Mark tasks completed" }
func (c *DoneCmd) Usage() string     { return "tasksync done [--list <list-name>] <ref>..." }
func (c *DoneCmd) NeedsEnv() bool    { return true }

func (c *DoneCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.listName, "list", "", "")
	fs.StringVar(&c.listName, "l", "", "")
}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	refs, err := ParseTaskRefs(args)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	tasks, err := resolveTasks(ctx, env.Store, c.listName, refs)
	if err != nil {
		return report(errOut, c.listName, err)
	}
	for _, task := range tasks {
		if _, err := env.Store.CompleteTask(ctx, task.ID); err != nil {
			return report(errOut, c.listName, err)
		}
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
