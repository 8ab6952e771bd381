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
	Register(&RmCmd{})
}

// RmCmd implements the rm command. The deletion reaches every backend on
// its next pass.
type RmCmd struct {
	listName string
}

// SetListName sets the list name (for testing).
func (c *RmCmd) SetListName(name string) {
	c.listName = name
}

func (c *RmCmd) Name() string      { return "rm" }
func (c *RmCmd) Aliases() []string { return nil }
func (c *RmCmd) Synopsis() string  { return "Delete tasks" }
func (c *RmCmd) Usage() string     { return "tasksync rm [--list <list-name>] <ref>..." }
func (c *RmCmd) NeedsEnv() bool    { return true }

func (c *RmCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.listName, "list", "", "")
	fs.StringVar(&c.listName, "l", "", "")
}

func (c *RmCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
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
		if err := env.Store.DeleteTask(ctx, task.ID); err != nil {
			return report(errOut, c.listName, err)
		}
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
