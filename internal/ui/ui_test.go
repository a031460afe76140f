package ui

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treykane/tunnelbar/internal/menu"
	"github.com/treykane/tunnelbar/internal/model"
)

// fakeRegistry flips a running flag per id, or returns toggleErr.
type fakeRegistry struct {
	defs      []model.TunnelDefinition
	running   map[string]bool
	toggled   []string
	toggleErr error
	stopAll   int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		defs: []model.TunnelDefinition{
			{ID: "t1", Name: "DB → clinic", Host: "clinic-vm", LocalPort: 5432, RemoteHost: "127.0.0.1", RemotePort: 5432},
			{ID: "t2", Name: "Redis", Host: "cache-vm", LocalPort: 6380, RemoteHost: "127.0.0.1", RemotePort: 6379},
		},
		running: map[string]bool{},
	}
}

func (f *fakeRegistry) List() []model.TunnelStatus {
	out := make([]model.TunnelStatus, 0, len(f.defs))
	for _, d := range f.defs {
		st := model.TunnelStatus{TunnelDefinition: d, Running: f.running[d.ID]}
		if st.Running {
			st.PID = 4242
		}
		out = append(out, st)
	}
	return out
}

func (f *fakeRegistry) Toggle(id string) error {
	f.toggled = append(f.toggled, id)
	if f.toggleErr != nil {
		return f.toggleErr
	}
	f.running[id] = !f.running[id]
	return nil
}

func (f *fakeRegistry) StopAll() error {
	f.stopAll++
	f.running = map[string]bool{}
	return nil
}

func press(t *testing.T, m Model, k tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(k)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	down  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}}
	up    = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}}
	quit  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
)

func TestInitialRender(t *testing.T) {
	m := New(newFakeRegistry(), Options{})

	require.Len(t, m.Items(), 4)
	assert.Equal(t, 0, m.Selected())
	view := m.View()
	assert.Contains(t, view, "DB → clinic (off)")
	assert.Contains(t, view, "Redis (off)")
	assert.Contains(t, view, "Quit")
	assert.Contains(t, view, "clinic-vm")
}

func TestEnterTogglesAndRerenders(t *testing.T) {
	reg := newFakeRegistry()
	m := New(reg, Options{})

	m, cmd := press(t, m, enter)
	assert.Nil(t, cmd)
	assert.Equal(t, []string{"t1"}, reg.toggled)
	assert.Equal(t, "DB → clinic (on)", m.Items()[0].Label)
	assert.Contains(t, m.Status(), "started")
	assert.Contains(t, m.View(), "4242")

	m, _ = press(t, m, enter)
	assert.Equal(t, "DB → clinic (off)", m.Items()[0].Label)
	assert.Contains(t, m.Status(), "stopped")
}

func TestNavigationSkipsSeparatorAndQuitItemExits(t *testing.T) {
	reg := newFakeRegistry()
	m := New(reg, Options{})

	m, _ = press(t, m, down)
	m, _ = press(t, m, down)
	assert.Equal(t, menu.KindQuit, m.Items()[m.Selected()].Kind)

	m, _ = press(t, m, up)
	assert.Equal(t, 1, m.Selected())
	m, _ = press(t, m, down)

	_, cmd := press(t, m, enter)
	require.NotNil(t, cmd)
	_, isQuit := cmd().(tea.QuitMsg)
	assert.True(t, isQuit)
	assert.Equal(t, 1, reg.stopAll)
	assert.Empty(t, reg.toggled)
}

func TestQuitKeyStopsAll(t *testing.T) {
	reg := newFakeRegistry()
	reg.running["t2"] = true
	m := New(reg, Options{})

	m, cmd := press(t, m, quit)
	require.NotNil(t, cmd)
	assert.Equal(t, 1, reg.stopAll)
	assert.Equal(t, "Redis (off)", m.Items()[1].Label)
}

func TestToggleErrorShownRedacted(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	reg := newFakeRegistry()
	reg.toggleErr = errors.New("start tunnel t1: fork/exec " + home + "/.local/bin/ssh-tunnel: no such file or directory")
	m := New(reg, Options{Redact: true})

	m, _ = press(t, m, enter)
	assert.True(t, strings.HasPrefix(m.Status(), "Toggle failed: "))
	assert.Contains(t, m.Status(), "~/.local/bin/ssh-tunnel")
	assert.NotContains(t, m.Status(), home)
	assert.Equal(t, "DB → clinic (off)", m.Items()[0].Label)
}

func TestTickRefreshesSnapshot(t *testing.T) {
	reg := newFakeRegistry()
	m := New(reg, Options{RefreshSeconds: 1})

	reg.running["t2"] = true
	next, cmd := m.Update(tickMsg{})
	assert.NotNil(t, cmd)
	assert.Equal(t, "Redis (on)", next.(Model).Items()[1].Label)
}

func TestRunReturnsWhenContextCancelled(t *testing.T) {
	reg := newFakeRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, reg, Options{}, tea.WithInput(nil), tea.WithOutput(io.Discard))
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("menu did not exit after cancellation")
	}
	assert.Zero(t, reg.stopAll, "stopping tunnels is left to the caller")
}
