// Package config handles accentd's runtime configuration: the on-disk
// TOML file (located via XDG_CONFIG_HOME), defaults, and the mutable view
// the control plane edits at runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// GeneralConfig holds the hold-detection knobs.
type GeneralConfig struct {
	ThresholdMs uint32 `toml:"threshold_ms"`
	Enabled     bool   `toml:"enabled"`
}

// PopupConfig holds the popup's own presentation knobs.
type PopupConfig struct {
	FontSize  uint32 `toml:"font_size"`
	TimeoutMs uint32 `toml:"timeout_ms"`
}

// LocaleConfig names the active locale.
type LocaleConfig struct {
	Active string `toml:"active"`
}

// Config is the full daemon configuration, mutable at runtime via the
// control plane. Every mutation takes effect immediately for the next
// state-machine decision that reads it.
type Config struct {
	General GeneralConfig `toml:"general"`
	Popup   PopupConfig   `toml:"popup"`
	Locale  LocaleConfig  `toml:"locale"`

	mu sync.RWMutex
}

// Default documented values, per the configuration file format.
const (
	DefaultThresholdMs    = 300
	DefaultPopupTimeoutMs = 5000
	DefaultFontSize       = 24
	DefaultLocale         = "it"
	DefaultEnabled        = true
)

// Default returns a configuration populated with the documented defaults.
func Default() *Config {
	return &Config{
		General: GeneralConfig{ThresholdMs: DefaultThresholdMs, Enabled: DefaultEnabled},
		Popup:   PopupConfig{FontSize: DefaultFontSize, TimeoutMs: DefaultPopupTimeoutMs},
		Locale:  LocaleConfig{Active: DefaultLocale},
	}
}

// Path returns the default configuration file path,
// `~/.config/accentd/config.toml` (respecting XDG_CONFIG_HOME).
func Path() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// ConfigDir returns the directory accentd's config file and locale
// overlays live under.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "accentd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "accentd")
	}
	return filepath.Join(home, ".config", "accentd")
}

// SystemLocaleDir is the system-wide locale overlay directory, which the
// user directory's overlays take precedence over.
const SystemLocaleDir = "/usr/share/accentd/locales"

// UserLocaleDir returns the user's locale overlay directory.
func UserLocaleDir() string {
	return filepath.Join(ConfigDir(), "locales")
}

// Load reads path, falling back to Default() entirely if the file does
// not exist, and to Default()'s value for any field the file doesn't
// specify — malformed or missing config is never fatal to startup. A file
// that fails to decode is ignored and Default() is returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = Path()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return Default(), nil
	}

	return cfg, nil
}

// Snapshot is an immutable copy of the configuration fields the state
// machine and status responses need, taken under the read lock.
type Snapshot struct {
	ThresholdMs    uint32
	Enabled        bool
	ActiveLocale   string
	PopupTimeoutMs uint32
	FontSize       uint32
}

// Snapshot returns a consistent point-in-time copy of the configuration.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		ThresholdMs:    c.General.ThresholdMs,
		Enabled:        c.General.Enabled,
		ActiveLocale:   c.Locale.Active,
		PopupTimeoutMs: c.Popup.TimeoutMs,
		FontSize:       c.Popup.FontSize,
	}
}

// SetEnabled sets the enabled flag and returns the new value.
func (c *Config) SetEnabled(enabled bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.General.Enabled = enabled
	return c.General.Enabled
}

// Toggle flips the enabled flag and returns the new value.
func (c *Config) Toggle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.General.Enabled = !c.General.Enabled
	return c.General.Enabled
}

// SetLocale sets the active locale name.
func (c *Config) SetLocale(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Locale.Active = name
}
