// Package cli parses the command line and dispatches to commands.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"tasksync/internal/app"
	"tasksync/internal/commands"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/logging"
)

// EnvFactory opens the environment a command runs against.
// Tests inject an in-memory store and fake backends through it.
type EnvFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.Env, error)

// Dispatcher handles command-line parsing and dispatch.
type Dispatcher struct {
	registry *commands.Registry
	factory  EnvFactory
}

// NewDispatcher creates a dispatcher. A nil factory opens the store and
// backends named by the configuration.
func NewDispatcher(registry *commands.Registry, factory EnvFactory) *Dispatcher {
	if factory == nil {
		factory = app.Open
	}
	return &Dispatcher{
		registry: registry,
		factory:  factory,
	}
}

// Run parses arguments and dispatches to the appropriate command.
// Returns the exit code.
func (d *Dispatcher) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	// No args lists every open task.
	if len(args) == 0 {
		args = []string{"list"}
	}

	name := args[0]
	if strings.HasPrefix(name, "-") {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", name)
		return exitcode.UserError
	}

	cmd, ok := d.registry.Find(name)
	if !ok {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", name)
		return exitcode.UserError
	}
	return d.dispatchCommand(ctx, cmd, args[1:], out, errOut)
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, cmd commands.Command, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard) // errors are reported below

	var (
		configDir string
		quiet     bool
		debug     bool
	)
	fs.StringVar(&configDir, "config", "", "")
	fs.BoolVar(&quiet, "quiet", false, "")
	fs.BoolVar(&debug, "debug", false, "")
	cmd.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", flagError(err))
		return exitcode.UserError
	}

	positional := fs.Args()
	if len(positional) > 0 && strings.HasPrefix(positional[0], "-") {
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", positional[0])
		return exitcode.UserError
	}

	cfg, err := config.New(configDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	cfg.Quiet = quiet
	cfg.Debug = debug

	if !cmd.NeedsEnv() {
		return cmd.Run(ctx, cfg, nil, positional, out, errOut)
	}

	logger, closeLog := logging.New(logging.Options{
		Debug:  debug,
		Stderr: errOut,
		File:   cfg.LogPath(),
	})
	defer closeLog()
	logger.Debug("dispatch", "command", cmd.Name(), "config", cfg.Dir)

	env, err := d.factory(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.StoreError
	}
	defer env.Close()

	return cmd.Run(ctx, cfg, env, positional, out, errOut)
}

// flagError rewrites the flag package's messages into the CLI's wording.
func flagError(err error) string {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "flag needs an argument:"):
		return "flag needs an argument: " + strings.TrimSpace(strings.TrimPrefix(msg, "flag needs an argument:"))
	case strings.HasPrefix(msg, "flag provided but not defined:"):
		return "unknown flag: " + strings.TrimSpace(strings.TrimPrefix(msg, "flag provided but not defined:"))
	default:
		return msg
	}
}
