// Package cli provides the command-line interface for tunnelbar.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/treykane/tunnelbar/internal/appconfig"
	"github.com/treykane/tunnelbar/internal/doctor"
	"github.com/treykane/tunnelbar/internal/events"
	"github.com/treykane/tunnelbar/internal/launcher"
	"github.com/treykane/tunnelbar/internal/shell"
	"github.com/treykane/tunnelbar/internal/tunnel"
	"github.com/treykane/tunnelbar/internal/ui"
	"github.com/treykane/tunnelbar/internal/util"
)

// errNotTerminal is returned by the bare command when stdin is not a terminal.
var errNotTerminal = errors.New("the menu needs an interactive terminal; use `tunnelbar shell` or `tunnelbar list` instead")

type rootOptions struct {
	configPath string
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tunnelbar",
		Short:         "Toggle a fixed set of SSH port-forwarding tunnels",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fd := os.Stdin.Fd()
			if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
				return errNotTerminal
			}
			return runMenu(opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml (default $XDG_CONFIG_HOME/tunnelbar/config.yaml)")

	root.AddCommand(newShellCmd(opts))
	root.AddCommand(newListCmd(opts))
	root.AddCommand(newDoctorCmd(opts))
	root.AddCommand(newEventsCmd(opts))
	return root
}

// loadConfig honours --config. Without it the default file is created on
// first use.
func (o *rootOptions) loadConfig() (appconfig.Config, string, error) {
	if o.configPath != "" {
		cfg, err := appconfig.LoadFile(o.configPath)
		if err != nil {
			return appconfig.Config{}, "", fmt.Errorf("load config: %w", err)
		}
		return cfg, o.configPath, nil
	}
	path, err := appconfig.ConfigFilePath()
	if err != nil {
		return appconfig.Config{}, "", err
	}
	cfg, err := appconfig.Load()
	if err != nil {
		return appconfig.Config{}, "", fmt.Errorf("load config: %w", err)
	}
	return cfg, path, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func newLauncher(cfg appconfig.Config) *launcher.Launcher {
	l := launcher.New(cfg.Launcher.Command, cfg.Launcher.Args...)
	l.Path = cfg.Launcher.Path
	l.ExtraEnv = cfg.Launcher.Env
	return l
}

// openJournal keeps events.jsonl next to the config file in use.
func openJournal(cfgPath string) (*events.Store, error) {
	if cfgPath == "" {
		return events.NewDefaultStore()
	}
	return events.NewStore(filepath.Join(filepath.Dir(cfgPath), "events.jsonl")), nil
}

// newRegistry builds the registry for cfg. A launcher that cannot be found
// is only logged: each start will then fail with a launch error.
func newRegistry(cfg appconfig.Config, cfgPath string, log *slog.Logger) (*tunnel.Registry, error) {
	defs, err := cfg.Definitions()
	if err != nil {
		return nil, fmt.Errorf("invalid tunnels in config: %w", err)
	}
	l := newLauncher(cfg)
	if err := l.EnsureCommand(); err != nil {
		log.Warn("tunnel helper not found; starts will fail until it is installed", "command", cfg.Launcher.Command, "error", err)
	}

	opts := []tunnel.Option{tunnel.WithLogger(log)}
	if cfg.Events.Enabled {
		store, err := openJournal(cfgPath)
		if err != nil {
			log.Warn("event journal disabled", "error", err)
		} else {
			log.Debug("journaling tunnel events", "path", store.Path())
			opts = append(opts, tunnel.WithJournal(store))
		}
	}
	return tunnel.NewRegistry(defs, tunnel.FromLauncher(l), opts...)
}

// signalContext is cancelled on SIGTERM or SIGHUP. The front ends return
// normally on cancellation so deferred cleanup stops the tunnels and the
// terminal is restored.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
}

func runMenu(opts *rootOptions) error {
	cfg, cfgPath, err := opts.loadConfig()
	if err != nil {
		return err
	}

	// The menu owns the terminal, so logs go to a file.
	logPath, err := appconfig.LogFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log := newLogger(logFile, cfg.Log.Level)

	reg, err := newRegistry(cfg, cfgPath, log)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	defer func() {
		if ctx.Err() != nil {
			log.Info("received signal; stopping all tunnels")
		}
		log.Info("menu closed", "running", reg.Running())
		if err := reg.StopAll(); err != nil {
			log.Warn("stop all on exit", "error", err)
		}
	}()

	return ui.Run(ctx, reg, ui.Options{RefreshSeconds: cfg.UI.RefreshSeconds, Redact: true})
}

func newShellCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive line-oriented tunnel control",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(os.Stderr, cfg.Log.Level)
			reg, err := newRegistry(cfg, cfgPath, log)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			defer func() { _ = reg.StopAll() }()

			return shell.New(reg, log, true).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}

// listEntry is one row of `tunnelbar list --json`.
type listEntry struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Host       string   `json:"host"`
	LocalPort  int      `json:"local_port"`
	RemoteHost string   `json:"remote_host"`
	RemotePort int      `json:"remote_port"`
	Env        []string `json:"env"`
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured tunnels and the environment their helper receives",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			defs, err := cfg.Definitions()
			if err != nil {
				return err
			}
			entries := make([]listEntry, 0, len(defs))
			for _, d := range defs {
				entries = append(entries, listEntry{
					ID:         d.ID,
					Name:       d.Name,
					Host:       d.Host,
					LocalPort:  d.LocalPort,
					RemoteHost: d.RemoteHost,
					RemotePort: d.RemotePort,
					Env:        launcher.BuildEnv(d),
				})
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			fmt.Printf("%-20s %-24s %-16s %-8s %-22s %s\n", "ID", "NAME", "HOST", "LPORT", "REMOTE", "ENV")
			for _, e := range entries {
				remote := fmt.Sprintf("%s:%d", e.RemoteHost, e.RemotePort)
				fmt.Printf("%-20s %-24s %-16s %-8d %-22s %s\n", e.ID, e.Name, e.Host, e.LocalPort, remote, strings.Join(e.Env, " "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the tunnel helper, definitions and file permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := opts.loadConfig()
			if err != nil {
				return err
			}
			report := doctor.Run(cfg, path, true)
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if len(report.Issues) == 0 {
				fmt.Println("No issues found.")
				return nil
			}
			for _, i := range report.Issues {
				fmt.Printf("[%s] %s %s: %s\n", strings.ToUpper(string(i.Severity)), i.Check, i.Target, i.Message)
				fmt.Printf("    fix: %s\n", i.Recommendation)
			}
			if report.HasHigh() {
				fmt.Println("Tunnels will fail to start until the high severity issues are fixed.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newEventsCmd(opts *rootOptions) *cobra.Command {
	var (
		tunnelID  string
		eventType string
		since     time.Duration
		limit     int
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the tunnel lifecycle journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournal(opts.configPath)
			if err != nil {
				return err
			}
			q := events.Query{TunnelID: tunnelID, EventType: eventType, Limit: limit}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			evts, err := store.Read(q)
			if err != nil {
				return err
			}
			if jsonOut {
				if evts == nil {
					evts = []events.Event{}
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(evts)
			}
			if len(evts) == 0 {
				fmt.Println("No events.")
				return nil
			}
			fmt.Printf("%-25s %-16s %-18s %-8s %s\n", "TIME", "TUNNEL", "EVENT", "PID", "MESSAGE")
			for _, e := range evts {
				pid := "-"
				if e.PID > 0 {
					pid = fmt.Sprint(e.PID)
				}
				fmt.Printf("%-25s %-16s %-18s %-8s %s\n", e.Timestamp.Local().Format(time.RFC3339), e.TunnelID, e.EventType, pid, util.EmptyDash(e.Message))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tunnelID, "tunnel", "", "only events for this tunnel id")
	cmd.Flags().StringVar(&eventType, "type", "", "only events of this type (e.g. start_failed)")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this (e.g. 1h)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}
