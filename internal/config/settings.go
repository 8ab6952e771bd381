package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Settings is the content of config.toml.
//
//	database = "tasksync.db"
//	log_file = "tasksync.log"
//	location = "Europe/Berlin"
//	interval = "5m"
//
//	[google]
//	enabled = true
//	account = "me@example.com"
//	timeout = "10s"
//
//	[orgdir]
//	enabled = true
//	dir = "~/org/tasks"
type Settings struct {
	Database string `toml:"database"`
	LogFile  string `toml:"log_file"`

	// Location is the IANA time zone due dates are interpreted in.
	// Empty means the system zone.
	Location string `toml:"location"`

	// Interval is the period of background passes in watch mode.
	Interval Duration `toml:"interval"`

	Google GoogleSettings `toml:"google"`
	OrgDir OrgDirSettings `toml:"orgdir"`
}

// GoogleSettings configures the Google Tasks backend.
type GoogleSettings struct {
	Enabled bool     `toml:"enabled"`
	Account string   `toml:"account"`
	Timeout Duration `toml:"timeout"`
}

// OrgDirSettings configures the directory backend.
type OrgDirSettings struct {
	Enabled bool   `toml:"enabled"`
	Account string `toml:"account"`
	Dir     string `toml:"dir"`
}

// DefaultSettings returns the settings used when config.toml is absent:
// only the Google backend is enabled.
func DefaultSettings() Settings {
	return Settings{
		Interval: Duration(5 * time.Minute),
		Google: GoogleSettings{
			Enabled: true,
			Account: "default",
			Timeout: Duration(10 * time.Second),
		},
	}
}

// LoadSettings decodes path over the defaults. A missing file is not an
// error.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	md, err := toml.DecodeFile(path, &s)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("invalid %s: %w", filepath.Base(path), err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return s, fmt.Errorf("invalid %s: unknown keys: %s", filepath.Base(path), strings.Join(keys, ", "))
	}

	s.OrgDir.Dir = expandHome(s.OrgDir.Dir)
	return s, nil
}

// TimeLocation returns the configured zone, or time.Local.
func (s Settings) TimeLocation() (*time.Location, error) {
	if s.Location == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", s.Location, err)
	}
	return loc, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Duration is a time.Duration decoded from strings like "10s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
