package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"tasksync/internal/app"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
)

func init() {
	Register(&RmListCmd{})
}

// RmListCmd implements the rmlist command.
type RmListCmd struct {
	force bool
}

// SetForce sets the force flag (for testing).
func (c *RmListCmd) SetForce(force bool) {
	c.force = force
}

func (c *RmListCmd) Name() string      { return "rmlist" }
func (c *RmListCmd) Aliases() []string { return nil }
func (c *RmListCmd) Synopsis() string  { return "Delete a list and its tasks" }
func (c *RmListCmd) Usage() string     { return "tasksync rmlist [--force] <list-name>" }
func (c *RmListCmd) NeedsEnv() bool    { return true }

func (c *RmListCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "")
}

func (c *RmListCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		fmt.Fprintln(errOut, "error: list name required")
		return exitcode.UserError
	}

	list, err := env.Store.ResolveList(ctx, name)
	if err != nil {
		return report(errOut, name, err)
	}

	if !c.force {
		open, err := openTasks(ctx, env.Store, list.ID)
		if err != nil {
			return report(errOut, name, err)
		}
		if len(open) > 0 {
			fmt.Fprintln(errOut, "error: list not empty (use --force)")
			return exitcode.UserError
		}
	}

	if err := env.Store.DeleteList(ctx, list.ID); err != nil {
		return report(errOut, name, err)
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
