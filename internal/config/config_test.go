package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew_DefaultsWithoutSettingsFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !cfg.Settings.Google.Enabled {
		t.Error("google backend should be enabled by default")
	}
	if cfg.Settings.OrgDir.Enabled {
		t.Error("orgdir backend should be disabled by default")
	}
	if got := cfg.Settings.Google.Timeout.Std(); got != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", got)
	}
	if got, want := cfg.DatabasePath(), filepath.Join(dir, DatabaseFile); got != want {
		t.Errorf("DatabasePath = %q, want %q", got, want)
	}
	if got, want := cfg.LogPath(), filepath.Join(dir, LogFile); got != want {
		t.Errorf("LogPath = %q, want %q", got, want)
	}
}

func TestNew_LoadsSettings(t *testing.T) {
	dir := t.TempDir()
	content := `
database = "/var/lib/tasksync/tasks.db"
log_file = "logs/sync.log"
location = "UTC"

[google]
enabled = false
timeout = "3s"

[orgdir]
enabled = true
dir = "/srv/org"
`
	if err := os.WriteFile(filepath.Join(dir, SettingsFile), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := cfg.Settings

	if s.Google.Enabled {
		t.Error("google should be disabled")
	}
	if s.Google.Account != "default" {
		t.Errorf("account = %q, want default kept", s.Google.Account)
	}
	if s.Google.Timeout.Std() != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", s.Google.Timeout.Std())
	}
	if !s.OrgDir.Enabled || s.OrgDir.Dir != "/srv/org" {
		t.Errorf("orgdir = %+v", s.OrgDir)
	}
	if cfg.DatabasePath() != "/var/lib/tasksync/tasks.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath())
	}
	if got, want := cfg.LogPath(), filepath.Join(dir, "logs", "sync.log"); got != want {
		t.Errorf("LogPath = %q, want %q", got, want)
	}

	loc, err := s.TimeLocation()
	if err != nil || loc.String() != "UTC" {
		t.Errorf("TimeLocation = %v, %v", loc, err)
	}
}

func TestLoadSettings_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "database = ", "invalid config.toml"},
		{"unknown key", "[google]\nenabeld = true\n", "unknown keys: google.enabeld"},
		{"bad duration", "[google]\ntimeout = \"soon\"\n", "invalid config.toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), SettingsFile)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadSettings(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/org"); got != filepath.Join(home, "org") {
		t.Errorf("expandHome = %q", got)
	}
	if got := expandHome("/abs"); got != "/abs" {
		t.Errorf("expandHome = %q", got)
	}
}

func TestTimeLocation_Invalid(t *testing.T) {
	s := Settings{Location: "Mars/Olympus"}
	if _, err := s.TimeLocation(); err == nil {
		t.Error("expected error for unknown zone")
	}
}
