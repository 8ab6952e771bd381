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
	Register(&StatusCmd{})
}

// StatusCmd prints when each backend last synced successfully.
type StatusCmd struct{}

func (c *StatusCmd) Name() string      { return "status" }
func (c *StatusCmd) Aliases() []string { return nil }
func (c *StatusCmd) Synopsis() string  { return "Print the last sync time per backend" }
func (c *StatusCmd) Usage() string     { return "tasksync status [common flags]" }
func (c *StatusCmd) NeedsEnv() bool    { return true }

func (c *StatusCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *StatusCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	if len(env.Backends) == 0 {
		fmt.Fprintf(errOut, "error: no backend enabled in %s\n", cfg.SettingsPath())
		return exitcode.UserError
	}
	for _, b := range env.Backends {
		last, err := env.Store.LastSync(ctx, b.Account(), b.Service())
		if err != nil {
			return report(errOut, "", err)
		}
		output.FormatStatus(out, b.Service(), b.Account(), last, env.Location)
	}
	return exitcode.Success
}
