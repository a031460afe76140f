// Package ui is the full-screen terminal menu: the list of tunnels with an
// on/off indicator, a separator and Quit.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/treykane/tunnelbar/internal/menu"
	"github.com/treykane/tunnelbar/internal/model"
	"github.com/treykane/tunnelbar/internal/security"
	"github.com/treykane/tunnelbar/internal/util"
)

// Registry is the part of the tunnel registry the menu drives.
type Registry interface {
	List() []model.TunnelStatus
	Toggle(id string) error
	StopAll() error
}

// Options tune the menu. The zero value is usable.
type Options struct {
	RefreshSeconds int
	Redact         bool
}

type tickMsg time.Time

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Select, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Select},
		{k.Help, k.Quit},
	}
}

func defaultKeys() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter", " ", "space"),
			key.WithHelp("enter", "toggle / select"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit (stops all tunnels)"),
		),
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	onStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	cursorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// Model is the Bubble Tea model. Every mutation goes through the registry and
// is followed by a fresh snapshot; the model never edits items itself.
type Model struct {
	reg     Registry
	opts    Options
	keys    keyMap
	help    help.Model
	items   []menu.Item
	sel     int
	status  string
	failed  bool
	width   int
	stopped bool
}

// New builds the menu for reg.
func New(reg Registry, opts Options) Model {
	if opts.RefreshSeconds <= 0 {
		opts.RefreshSeconds = util.DefaultRefreshSeconds
	}
	m := Model{
		reg:    reg,
		opts:   opts,
		keys:   defaultKeys(),
		help:   help.New(),
		status: "Ready. Enter toggles the selected tunnel.",
	}
	m.refresh()
	return m
}

func (m *Model) refresh() {
	m.items = menu.Build(m.reg.List())
	if m.sel >= len(m.items) {
		m.sel = len(m.items) - 1
	}
	if m.sel < 0 || !m.items[m.sel].Selectable() {
		m.sel = menu.Next(m.items, -1, 1)
	}
}

// Items returns the currently rendered menu items.
func (m Model) Items() []menu.Item { return m.items }

// Selected returns the index of the highlighted item.
func (m Model) Selected() int { return m.sel }

// Status returns the status line.
func (m Model) Status() string { return m.status }

func tickCmd(seconds int) tea.Cmd {
	return tea.Tick(time.Duration(seconds)*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tickCmd(m.opts.RefreshSeconds)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.stopped {
			return m, nil
		}
		m.refresh()
		return m, tickCmd(m.opts.RefreshSeconds)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m.quit()
		case key.Matches(msg, m.keys.Up):
			m.sel = menu.Next(m.items, m.sel, -1)
		case key.Matches(msg, m.keys.Down):
			m.sel = menu.Next(m.items, m.sel, 1)
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Select):
			return m.activate()
		}
	}
	return m, nil
}

func (m Model) activate() (tea.Model, tea.Cmd) {
	if len(m.items) == 0 {
		return m, nil
	}
	it := m.items[m.sel]
	switch it.Kind {
	case menu.KindQuit:
		return m.quit()
	case menu.KindTunnel:
		if err := m.reg.Toggle(it.TunnelID); err != nil {
			m.failed = true
			m.status = "Toggle failed: " + security.UserMessage(err, m.opts.Redact)
		} else {
			m.failed = false
			verb := "started"
			if it.Running {
				verb = "stopped"
			}
			m.status = fmt.Sprintf("%s %s", it.Status.Name, verb)
		}
		m.refresh()
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if err := m.reg.StopAll(); err != nil {
		m.failed = true
		m.status = "Some tunnels did not stop cleanly: " + security.UserMessage(err, m.opts.Redact)
	}
	m.stopped = true
	m.refresh()
	return m, tea.Quit
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("🔌 tunnelbar"))
	b.WriteString("\n\n")

	for i, it := range m.items {
		cursor := "  "
		if i == m.sel {
			cursor = cursorStyle.Render("> ")
		}
		switch it.Kind {
		case menu.KindSeparator:
			b.WriteString("  " + subtleStyle.Render(strings.Repeat("─", 24)) + "\n")
		case menu.KindQuit:
			b.WriteString(cursor + it.Label + "\n")
		default:
			style := offStyle
			if it.Running {
				style = onStyle
			}
			b.WriteString(cursor + style.Render(it.Label) + "\n")
		}
	}

	if len(m.items) > 0 && m.items[m.sel].Kind == menu.KindTunnel {
		b.WriteString("\n")
		b.WriteString(m.detail(m.items[m.sel].Status))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.failed {
		b.WriteString(errorStyle.Render(m.status))
	} else {
		b.WriteString(subtleStyle.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) detail(st model.TunnelStatus) string {
	lines := []string{
		fmt.Sprintf("Host:    %s", st.Host),
		fmt.Sprintf("Forward: %s -> %s", st.Local(), st.Remote()),
	}
	if st.Running {
		lines = append(lines, fmt.Sprintf("PID:     %d (up %s)", st.PID, time.Duration(st.UptimeSec)*time.Second))
	} else {
		lines = append(lines, "State:   stopped")
	}
	width := 40
	if m.width > 0 && m.width-4 < width {
		width = m.width - 4
	}
	return sectionStyle.Width(width).Render(strings.Join(lines, "\n"))
}

// Run starts the menu on the current terminal and blocks until the user quits
// or ctx is cancelled. Cancellation kills the program, which still restores
// the terminal, and is not reported as an error.
func Run(ctx context.Context, reg Registry, opts Options, progOpts ...tea.ProgramOption) error {
	progOpts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, progOpts...)
	p := tea.NewProgram(New(reg, opts), progOpts...)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
