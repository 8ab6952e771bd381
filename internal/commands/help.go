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
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "tasksync help" }
func (c *HelpCmd) NeedsEnv() bool    { return false }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	fmt.Fprint(out, HelpText(DefaultRegistry))
	return exitcode.Success
}

// HelpText renders usage for every command in r.
func HelpText(r *Registry) string {
	var b strings.Builder
	b.WriteString("Usage:\n")
	b.WriteString("  tasksync                    List all open tasks\n")
	for _, cmd := range r.All() {
		fmt.Fprintf(&b, "  %s\n", cmd.Usage())
		fmt.Fprintf(&b, "      %s", cmd.Synopsis())
		if aliases := cmd.Aliases(); len(aliases) > 0 {
			fmt.Fprintf(&b, " (alias: %s)", strings.Join(aliases, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString(`
Tasks are referenced by the number printed by list: "3" for the default
list, "a2" for a lettered list.

Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr
`)
	return b.String()
}
