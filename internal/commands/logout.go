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
	Register(&LogoutCmd{})
}

// LogoutCmd removes the stored token. Shadow rows and the local store are
// kept, so logging in again resumes incremental sync.
type LogoutCmd struct{}

func (c *LogoutCmd) Name() string      { return "logout" }
func (c *LogoutCmd) Aliases() []string { return nil }
func (c *LogoutCmd) Synopsis() string  { return "Remove stored credentials" }
func (c *LogoutCmd) Usage() string     { return "tasksync logout [common flags]" }
func (c *LogoutCmd) NeedsEnv() bool    { return false }

func (c *LogoutCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *LogoutCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	if !cfg.HasToken() {
		if !cfg.Quiet {
			fmt.Fprintln(out, "not logged in")
		}
		return exitcode.Success
	}

	if err := cfg.RemoveToken(); err != nil {
		fmt.Fprintf(errOut, "error: failed to remove token: %v\n", err)
		return exitcode.AuthError
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
