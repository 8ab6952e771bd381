// Package main is the entry point for the tasksync CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tasksync/internal/cli"
	"tasksync/internal/commands"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// watch returns on interrupt; a pass in flight stops at its next
	// backend call.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A nil factory opens the configured database and backends.
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, nil)
	return dispatcher.Run(ctx, args, os.Stdout, os.Stderr)
}
