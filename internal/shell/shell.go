// Package shell is a line-oriented front end to the tunnel registry for
// terminals where the full-screen menu is not wanted.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/treykane/tunnelbar/internal/model"
	"github.com/treykane/tunnelbar/internal/security"
)

// Registry is the part of the tunnel registry the shell drives.
type Registry interface {
	List() []model.TunnelStatus
	Start(id string) error
	Stop(id string) error
	Toggle(id string) error
	StopAll() error
}

var (
	colorOn    = color.New(color.FgGreen, color.Bold).SprintFunc()
	colorOff   = color.New(color.Faint).SprintFunc()
	colorError = color.New(color.FgRed).SprintFunc()
	colorBold  = color.New(color.Bold).SprintFunc()
)

const stateColumn = 2

const helpText = `Commands:
  list            show every tunnel and its state
  toggle <id>     start the tunnel if stopped, stop it if running
  start <id>      start a tunnel
  stop <id>       stop a tunnel
  help            show this help
  quit, exit      stop all tunnels and leave`

// Shell reads commands from a readline instance and applies them to a registry.
type Shell struct {
	reg    Registry
	log    *slog.Logger
	redact bool
}

// New returns a shell for reg.
func New(reg Registry, log *slog.Logger, redact bool) *Shell {
	if log == nil {
		log = slog.Default()
	}
	return &Shell{reg: reg, log: log, redact: redact}
}

// Completer completes command names and, for commands taking an id, the
// configured tunnel ids.
func (s *Shell) Completer() *readline.PrefixCompleter {
	ids := func(string) []string {
		st := s.reg.List()
		out := make([]string, 0, len(st))
		for _, t := range st {
			out = append(out, t.ID)
		}
		return out
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("list"),
		readline.PcItem("toggle", readline.PcItemDynamic(ids)),
		readline.PcItem("start", readline.PcItemDynamic(ids)),
		readline.PcItem("stop", readline.PcItemDynamic(ids)),
		readline.PcItem("help"),
		readline.PcItem("quit"),
		readline.PcItem("exit"),
	)
}

// Exec runs one command line and returns its output. quit is true when the
// shell should exit; all tunnels have been stopped by then.
func (s *Shell) Exec(line string) (output string, quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "list", "ls":
		return s.render(), false
	case "help", "?":
		return helpText, false
	case "quit", "exit":
		if err := s.reg.StopAll(); err != nil {
			s.log.Warn("stop all on exit", "error", err)
			return s.failure(err), true
		}
		return "All tunnels stopped.", true
	case "toggle", "start", "stop":
		if len(args) != 1 {
			return colorError(fmt.Sprintf("usage: %s <id>", cmd)), false
		}
		id := args[0]
		var err error
		switch cmd {
		case "toggle":
			err = s.reg.Toggle(id)
		case "start":
			err = s.reg.Start(id)
		case "stop":
			err = s.reg.Stop(id)
		}
		if err != nil {
			s.log.Debug("shell command failed", "command", cmd, "tunnel_id", id, "error", security.DebugMessage(err))
			return s.failure(err) + "\n" + s.render(), false
		}
		return s.render(), false
	default:
		return colorError(fmt.Sprintf("unknown command %q (try help)", cmd)), false
	}
}

func (s *Shell) failure(err error) string {
	return colorError("error: " + security.UserMessage(err, s.redact))
}

func (s *Shell) render() string {
	snapshot := s.reg.List()
	if len(snapshot) == 0 {
		return "No tunnels configured."
	}
	rows := [][]string{{"ID", "NAME", "STATE", "FORWARD", "PID"}}
	for _, st := range snapshot {
		pid := "-"
		if st.Running {
			pid = fmt.Sprint(st.PID)
		}
		rows = append(rows, []string{st.ID, st.Name, st.StateLabel(), fmt.Sprintf("%s -> %s via %s", st.Local(), st.Remote(), st.Host), pid})
	}

	// Widths come from the plain text; cells are padded before colouring so
	// escape sequences do not shift the columns.
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for c, cell := range row {
			widths[c] = max(widths[c], runewidth.StringWidth(cell))
		}
	}

	lines := make([]string, 0, len(rows))
	for r, row := range rows {
		cells := make([]string, len(row))
		for c, cell := range row {
			if c < len(row)-1 {
				cell = runewidth.FillRight(cell, widths[c]+2)
			}
			switch {
			case r == 0:
				cell = colorBold(cell)
			case c == stateColumn && snapshot[r-1].Running:
				cell = colorOn(cell)
			case c == stateColumn:
				cell = colorOff(cell)
			}
			cells[c] = cell
		}
		lines = append(lines, strings.Join(cells, ""))
	}
	return strings.Join(lines, "\n")
}

// Run reads commands until quit, EOF, cancellation of ctx or an
// unrecoverable read error. On EOF or cancellation every tunnel is stopped as
// if quit had been typed.
func (s *Shell) Run(ctx context.Context, in io.ReadCloser, out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tunnelbar> ",
		AutoComplete:    s.Completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           in,
		Stdout:          out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = rl.Close()
		case <-done:
		}
	}()

	fmt.Fprintln(out, s.render())
	fmt.Fprintln(out, "Type 'help' for commands. Use TAB for completion.")
	for {
		line, err := rl.Readline()
		if ctx.Err() != nil || errors.Is(err, io.EOF) {
			msg, _ := s.Exec("quit")
			fmt.Fprintln(out, msg)
			return nil
		}
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}
		msg, quit := s.Exec(line)
		if msg != "" {
			fmt.Fprintln(out, msg)
		}
		if quit {
			return nil
		}
	}
}
