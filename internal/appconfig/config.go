// Package appconfig manages application configuration and runtime file paths.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/treykane/tunnelbar/internal/model"
	"github.com/treykane/tunnelbar/internal/util"
)

const appName = "tunnelbar"

// LauncherConfig describes the external executable every tunnel is started with.
type LauncherConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Path    string   `yaml:"path,omitempty"`
	Env     []string `yaml:"env,omitempty"`
}

// UIConfig contains menu display settings.
type UIConfig struct {
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// LogConfig controls the slog level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// EventsConfig toggles the lifecycle journal.
type EventsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TunnelConfig is one entry of the tunnels list as written in config.yaml.
type TunnelConfig struct {
	ID         string `yaml:"id,omitempty"`
	Name       string `yaml:"name"`
	Host       string `yaml:"host"`
	LocalPort  int    `yaml:"local_port"`
	RemoteHost string `yaml:"remote_host,omitempty"`
	RemotePort int    `yaml:"remote_port"`
}

// Config holds application-level configuration.
type Config struct {
	Launcher LauncherConfig `yaml:"launcher"`
	UI       UIConfig       `yaml:"ui"`
	Log      LogConfig      `yaml:"log"`
	Events   EventsConfig   `yaml:"events"`
	Tunnels  []TunnelConfig `yaml:"tunnels"`
}

// Default returns the default configuration, including the sample clinic tunnel.
func Default() Config {
	return Config{
		Launcher: LauncherConfig{
			Command: util.DefaultLauncherCommand,
			Path:    util.DefaultLauncherPath,
		},
		UI:     UIConfig{RefreshSeconds: util.DefaultRefreshSeconds},
		Log:    LogConfig{Level: "info"},
		Events: EventsConfig{Enabled: true},
		Tunnels: []TunnelConfig{
			{
				ID:         "clinic-db",
				Name:       "DB → clinic",
				Host:       "clinic-vm",
				LocalPort:  5432,
				RemoteHost: "127.0.0.1",
				RemotePort: 5432,
			},
		},
	}
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/tunnelbar.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

func pathInConfigDir(name string) (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, name), nil
}

// ConfigFilePath returns the full path to config.yaml.
func ConfigFilePath() (string, error) { return pathInConfigDir("config.yaml") }

// EventsFilePath returns the full path to the lifecycle journal.
func EventsFilePath() (string, error) { return pathInConfigDir("events.jsonl") }

// LogFilePath returns the log file used while the menu owns the terminal.
func LogFilePath() (string, error) { return pathInConfigDir(appName + ".log") }

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults.
func Load() (Config, error) {
	path, err := ConfigFilePath()
	if err != nil {
		return Config{}, err
	}
	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		if err := SaveFile(path, cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	return cfg, err
}

// LoadFile reads and normalizes the config at path. A missing file is
// reported as an error wrapping os.ErrNotExist.
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	cfg.Tunnels = nil
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.UI.RefreshSeconds <= 0 {
		cfg.UI.RefreshSeconds = util.DefaultRefreshSeconds
	}
	if strings.TrimSpace(cfg.Launcher.Command) == "" {
		cfg.Launcher.Command = util.DefaultLauncherCommand
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug", "info", "warn", "error":
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	default:
		cfg.Log.Level = "info"
	}
}

// Save writes cfg to config.yaml in the config directory.
func Save(cfg Config) error {
	path, err := ConfigFilePath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

// SaveFile writes cfg to path, creating the parent directory.
func SaveFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Definitions validates the tunnels list and converts it to tunnel
// definitions in declaration order. Entries without an id get a random one
// that is stable for the lifetime of the returned slice only.
func (c Config) Definitions() ([]model.TunnelDefinition, error) {
	out := make([]model.TunnelDefinition, 0, len(c.Tunnels))
	seen := make(map[string]int, len(c.Tunnels))
	for i, t := range c.Tunnels {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			id = uuid.NewString()
		}
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("tunnel %d: duplicate id %q (also used by tunnel %d)", i, id, prev)
		}
		seen[id] = i

		host := strings.TrimSpace(t.Host)
		if host == "" {
			return nil, fmt.Errorf("tunnel %q: host is required", id)
		}
		if err := util.ValidatePort(t.LocalPort); err != nil {
			return nil, fmt.Errorf("tunnel %q: invalid local port: %w", id, err)
		}
		if err := util.ValidatePort(t.RemotePort); err != nil {
			return nil, fmt.Errorf("tunnel %q: invalid remote port: %w", id, err)
		}
		out = append(out, model.TunnelDefinition{
			ID:         id,
			Name:       util.DefaultString(strings.TrimSpace(t.Name), id),
			Host:       host,
			LocalPort:  t.LocalPort,
			RemoteHost: util.DefaultString(strings.TrimSpace(t.RemoteHost), util.DefaultRemoteHost),
			RemotePort: t.RemotePort,
		})
	}
	return out, nil
}
