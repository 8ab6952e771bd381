package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"tasksync/internal/app"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/store"
)

func init() {
	Register(&CreateListCmd{})
}

// CreateListCmd implements the createlist command.
type CreateListCmd struct{}

func (c *CreateListCmd) Name() string      { return "createlist" }
func (c *CreateListCmd) Aliases() []string { return []string{"addlist"} }
func (c *CreateListCmd) Synopsis() string  { return "Create a new list" }
func (c *CreateListCmd) Usage() string     { return "tasksync createlist [common flags] <list-name>" }
func (c *CreateListCmd) NeedsEnv() bool    { return true }

func (c *CreateListCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *CreateListCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		fmt.Fprintln(errOut, "error: list name required")
		return exitcode.UserError
	}

	_, err := env.Store.ResolveList(ctx, name)
	switch {
	case err == nil || errors.Is(err, store.ErrAmbiguous):
		fmt.Fprintf(errOut, "error: list already exists: %s\n", name)
		return exitcode.UserError
	case !errors.Is(err, store.ErrNotFound):
		return report(errOut, name, err)
	}

	if _, err := env.Store.CreateList(ctx, name); err != nil {
		return report(errOut, name, err)
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
