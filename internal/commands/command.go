// Package commands implements the tasksync subcommands.
package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"tasksync/internal/app"
	"tasksync/internal/config"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsEnv returns true if the command works on the local store or
	// the backends. help, version, login and logout return false.
	NeedsEnv() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command and returns the exit code.
	// env is nil if NeedsEnv() returns false.
	Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int
}

// Registry holds registered commands by name and alias.
type Registry struct {
	mu   sync.RWMutex
	cmds map[string]Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{cmds: make(map[string]Command)}
}

// Register adds a command. Names and aliases must be unique.
func (r *Registry) Register(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := append([]string{c.Name()}, c.Aliases()...)
	for _, n := range names {
		if _, exists := r.cmds[n]; exists {
			return fmt.Errorf("command already registered: %s", n)
		}
	}
	for _, n := range names {
		r.cmds[n] = c
	}
	return nil
}

// Find looks up a command by name or alias.
func (r *Registry) Find(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.cmds[name]
	return cmd, ok
}

// All returns every command once, sorted by primary name.
func (r *Registry) All() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := make(map[string]Command)
	for _, cmd := range r.cmds {
		byName[cmd.Name()] = cmd
	}
	out := make([]Command, 0, len(byName))
	for _, name := range slices.Sorted(maps.Keys(byName)) {
		out = append(out, byName[name])
	}
	return out
}

// DefaultRegistry is the global command registry.
var DefaultRegistry = NewRegistry()

// Register adds a command to the default registry.
func Register(c Command) {
	if err := DefaultRegistry.Register(c); err != nil {
		panic(err)
	}
}
