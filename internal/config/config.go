// Package config handles the XDG configuration directory, file paths and
// the settings file.
package config

import (
	"os"
	"path/filepath"
)

const (
	// AppName is the application directory name.
	AppName = "tasksync"

	// OAuthClientFile is the OAuth client credentials filename.
	OAuthClientFile = "oauth_client.json"

	// TokenFile is the stored OAuth token filename.
	TokenFile = "token.json"

	// SettingsFile is the settings filename.
	SettingsFile = "config.toml"

	// DatabaseFile is the default local database filename.
	DatabaseFile = "tasksync.db"

	// LogFile is the default log filename.
	LogFile = "tasksync.log"
)

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging to stderr.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	// Settings is loaded from config.toml; defaults when the file is absent.
	Settings Settings
}

// New creates a new Config with the default or specified config directory.
// If configDir is empty, uses XDG_CONFIG_HOME/tasksync or $HOME/.config/tasksync.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	settings, err := LoadSettings(filepath.Join(dir, SettingsFile))
	if err != nil {
		return nil, err
	}
	return &Config{Dir: dir, Settings: settings}, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// OAuthClientPath returns the path to the OAuth client credentials file.
func (c *Config) OAuthClientPath() string {
	return filepath.Join(c.Dir, OAuthClientFile)
}

// TokenPath returns the path to the stored OAuth token file.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Dir, TokenFile)
}

// SettingsPath returns the path to config.toml.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Dir, SettingsFile)
}

// DatabasePath returns the local database path. Relative settings are
// resolved against the config directory.
func (c *Config) DatabasePath() string {
	return c.resolve(c.Settings.Database, DatabaseFile)
}

// LogPath returns the log file path.
func (c *Config) LogPath() string {
	return c.resolve(c.Settings.LogFile, LogFile)
}

func (c *Config) resolve(path, fallback string) string {
	if path == "" {
		path = fallback
	}
	if path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasOAuthClient checks if the OAuth client credentials file exists.
func (c *Config) HasOAuthClient() bool {
	_, err := os.Stat(c.OAuthClientPath())
	return err == nil
}

// HasToken checks if the token file exists.
func (c *Config) HasToken() bool {
	_, err := os.Stat(c.TokenPath())
	return err == nil
}

// RemoveToken deletes the token file.
func (c *Config) RemoveToken() error {
	return os.Remove(c.TokenPath())
}
