package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"tasksync/internal/app"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
)

func init() {
	Register(&SyncCmd{})
}

// SyncCmd runs one pass against every enabled backend.
type SyncCmd struct {
	service string
}

// SetService restricts the pass to one backend (for testing).
func (c *SyncCmd) SetService(name string) {
	c.service = name
}

func (c *SyncCmd) Name() string      { return "sync" }
func (c *SyncCmd) Aliases() []string { return nil }
func (c *SyncCmd) Synopsis() string  { return "Synchronize with the enabled backends" }
func (c *SyncCmd) Usage() string     { return "tasksync sync [--service <name>]" }
func (c *SyncCmd) NeedsEnv() bool    { return true }

func (c *SyncCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.service, "service", "", "")
}

func (c *SyncCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[0])
		return exitcode.UserError
	}

	backends, err := env.Select(c.service)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	if len(backends) == 0 {
		fmt.Fprintf(errOut, "error: no backend enabled in %s\n", cfg.SettingsPath())
		return exitcode.UserError
	}

	results := env.Runner(backends).RunAll(ctx)
	if !cfg.Quiet {
		for _, r := range results {
			output.FormatResult(out, r)
		}
	}
	reportSync(errOut, results)
	return syncExitCode(results)
}
