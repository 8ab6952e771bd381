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
	"tasksync/internal/output"
)

func init() {
	Register(&ListCmd{})
}

// ListCmd implements the list command.
// Handles both `tasksync` (no args) and `tasksync list <list-name>`.
type ListCmd struct {
	page int
}

// SetPage sets the page number (for testing).
func (c *ListCmd) SetPage(page int) {
	c.page = page
}

func (c *ListCmd) Name() string      { return "list" }
func (c *ListCmd) Aliases() []string { return []string{"ls"} }
func (c *ListCmd) Synopsis() string  { return "List open tasks" }
func (c *ListCmd) Usage() string     { return "tasksync list [--page <n>] [<list-name>]" }
func (c *ListCmd) NeedsEnv() bool    { return true }

func (c *ListCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.page, "page", 1, "")
}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	if c.page < 1 {
		fmt.Fprintf(errOut, "error: invalid page number: %d\n", c.page)
		return exitcode.UserError
	}
	if len(args) == 0 {
		return c.listAll(ctx, cfg, env, out, errOut)
	}
	return c.listOne(ctx, env, strings.Join(args, " "), out, errOut)
}

// listAll prints the default list unheaded, then every other list with
// open tasks under a letter.
func (c *ListCmd) listAll(ctx context.Context, cfg *config.Config, env *app.Env, out, errOut io.Writer) int {
	st := env.Store
	hasAnyTasks := false

	def, err := defaultList(ctx, st)
	if err != nil && !errors.Is(err, errNoLists) {
		return report(errOut, "", err)
	}
	if err == nil {
		tasks, err := openTasks(ctx, st, def.ID)
		if err != nil {
			return report(errOut, "", err)
		}
		for i, task := range page(tasks, 1) {
			output.FormatTask(out, i+1, task, env.Location)
			hasAnyTasks = true
		}
	}

	lists, err := lettered(ctx, st)
	if err != nil {
		return report(errOut, "", err)
	}
	for i, list := range lists {
		if i >= 26 {
			fmt.Fprintln(errOut, "error: too many lists (max 26)")
			return exitcode.UserError
		}
		tasks, err := openTasks(ctx, st, list.ID)
		if err != nil {
			return report(errOut, "", err)
		}
		letter := rune('a' + i)
		output.FormatListHeader(out, list.Title, false)
		for n, task := range page(tasks, 1) {
			output.FormatTaskWithLetter(out, letter, n+1, task, env.Location)
		}
		hasAnyTasks = true
	}

	if !hasAnyTasks && !cfg.Quiet {
		fmt.Fprintln(out, "no tasks found")
	}
	return exitcode.Success
}

// listOne prints one page of a named list, even when it is empty.
func (c *ListCmd) listOne(ctx context.Context, env *app.Env, listName string, out, errOut io.Writer) int {
	listName = strings.TrimSpace(listName)
	if listName == "" {
		fmt.Fprintln(errOut, "error: list name required")
		return exitcode.UserError
	}

	list, err := env.Store.ResolveList(ctx, listName)
	if err != nil {
		return report(errOut, listName, err)
	}
	tasks, err := openTasks(ctx, env.Store, list.ID)
	if err != nil {
		return report(errOut, listName, err)
	}
	def, err := defaultList(ctx, env.Store)
	if err != nil {
		return report(errOut, listName, err)
	}

	output.FormatListHeader(out, list.Title, def.ID == list.ID)
	start := (c.page-1)*PageSize + 1
	for i, task := range page(tasks, c.page) {
		output.FormatTaskIndented(out, start+i, task, env.Location)
	}
	return exitcode.Success
}

func page[T any](items []T, n int) []T {
	lo := (n - 1) * PageSize
	if lo >= len(items) {
		return nil
	}
	return items[lo:min(lo+PageSize, len(items))]
}
