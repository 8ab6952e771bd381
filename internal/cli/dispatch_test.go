package cli_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tasksync/internal/app"
	"tasksync/internal/cli"
	"tasksync/internal/commands"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/store"
)

// memFactory opens a fresh in-memory store for every dispatched command.
func memFactory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.Env, error) {
	st, err := store.Open(":memory:", logger)
	if err != nil {
		return nil, err
	}
	return app.NewEnv(cfg, st, logger), nil
}

func run(t *testing.T, d *cli.Dispatcher, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = d.Run(context.Background(), args, &out, &errOut)
	return out.String(), errOut.String(), code
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, memFactory)

	_, stderr, code := run(t, dispatcher, "unknowncmd")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown command: unknowncmd\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_FlagBeforeCommand(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, memFactory)

	_, stderr, code := run(t, dispatcher, "--quiet")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown command: --quiet\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_HelpCommand(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, memFactory)

	stdout, stderr, code := run(t, dispatcher, "help", "--config", t.TempDir())

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Error("expected help output to contain 'Usage:'")
	}
}

func TestDispatcher_VersionCommand(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, memFactory)

	stdout, stderr, code := run(t, dispatcher, "version", "--config", t.TempDir())

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if stdout != "tasksync 0.1.0\n" {
		t.Errorf("expected 'tasksync 0.1.0\\n', got %q", stdout)
	}
}

func TestDispatcher_Alias(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, memFactory)

	stdout, stderr, code := run(t, dispatcher, "ls", "--config", t.TempDir())

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if stdout != "no tasks found\n" {
		t.Errorf("expected 'no tasks found\\n', got %q", stdout)
	}
}

func TestDispatcher_NoArgsLists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, memFactory)

	stdout, _, code := run(t, dispatcher)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stdout != "no tasks found\n" {
		t.Errorf("expected 'no tasks found\\n', got %q", stdout)
	}
}

func TestDispatcher_UnknownFlag(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, memFactory)

	_, stderr, code := run(t, dispatcher, "help", "--unknown")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown flag: -unknown\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_InvalidSettings(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.SettingsFile), []byte("colour = \"blue\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, memFactory)

	_, stderr, code := run(t, dispatcher, "list", "--config", dir)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: invalid config.toml: unknown keys: colour\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_EnvFailure(t *testing.T) {
	failing := func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.Env, error) {
		return nil, errors.New("database is locked")
	}
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, failing)

	_, stderr, code := run(t, dispatcher, "list", "--config", t.TempDir())

	if code != exitcode.StoreError {
		t.Errorf("expected exit code %d, got %d", exitcode.StoreError, code)
	}
	if stderr != "error: database is locked\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

// TestDispatcher_EndToEnd drives the real environment: a database file in
// the config directory and an org directory backend.
func TestDispatcher_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	orgDir := filepath.Join(dir, "org")
	if err := os.MkdirAll(orgDir, 0700); err != nil {
		t.Fatal(err)
	}
	settings := `location = "UTC"

[google]
enabled = false

[orgdir]
enabled = true
account = "home"
dir = "` + filepath.ToSlash(orgDir) + `"
`
	if err := os.WriteFile(filepath.Join(dir, config.SettingsFile), []byte(settings), 0600); err != nil {
		t.Fatal(err)
	}

	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, nil)

	steps := []struct {
		args   []string
		stdout string
	}{
		{[]string{"addlist", "--config", dir, "Inbox"}, "ok\n"},
		{[]string{"add", "--config", dir, "--due", "2024-03-01", "Buy", "milk"}, "ok\n"},
		{[]string{"list", "--config", dir}, "   1  Buy milk  (due 2024-03-01)\n"},
		{[]string{"status", "--config", dir}, "orgdir/home: last sync never\n"},
	}
	for _, step := range steps {
		stdout, stderr, code := run(t, dispatcher, step.args...)
		if code != exitcode.Success {
			t.Fatalf("%v: expected exit code %d, got %d (%s)", step.args, exitcode.Success, code, stderr)
		}
		if stdout != step.stdout {
			t.Errorf("%v: expected %q, got %q", step.args, step.stdout, stdout)
		}
	}

	stdout, stderr, code := run(t, dispatcher, "sync", "--config", dir)
	if code != exitcode.Success {
		t.Fatalf("sync: expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if !strings.HasPrefix(stdout, "orgdir/home: ok") {
		t.Errorf("sync: unexpected stdout %q", stdout)
	}

	stdout, _, _ = run(t, dispatcher, "status", "--config", dir)
	if !strings.HasPrefix(stdout, "orgdir/home: last sync 2") {
		t.Errorf("status: unexpected stdout %q", stdout)
	}

	entries, err := os.ReadDir(orgDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Error("expected sync to write the list into the org directory")
	}
}
