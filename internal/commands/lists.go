package commands

import (
	"context"
	"flag"
	"io"

	"tasksync/internal/app"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
)

func init() {
	Register(&ListsCmd{})
}

// ListsCmd implements the lists command.
type ListsCmd struct{}

func (c *ListsCmd) Name() string      { return "lists" }
func (c *ListsCmd) Aliases() []string { return nil }
func (c *ListsCmd) Synopsis() string  { return "Print all lists" }
func (c *ListsCmd) Usage() string     { return "tasksync lists [common flags]" }
func (c *ListsCmd) NeedsEnv() bool    { return true }

func (c *ListsCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ListsCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	lists, err := env.Store.AllLists(ctx)
	if err != nil {
		return report(errOut, "", err)
	}
	for i, list := range lists {
		output.FormatListName(out, list, i == 0)
	}
	return exitcode.Success
}
