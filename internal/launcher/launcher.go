// Package launcher starts the external tunnel helper for a tunnel definition.
//
// This package does not implement any tunneling itself. It runs one configured
// executable (by default ~/.local/bin/ssh-tunnel, usually a thin wrapper
// around `ssh -N -L`) and passes the forward through environment variables:
//
//	HOST   jump/target host
//	LPORT  local port
//	RHOST  remote host as seen from HOST
//	RPORT  remote port
//
// Named variables rather than positional arguments let the helper be swapped
// without touching the caller.
package launcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/treykane/tunnelbar/internal/model"
	"github.com/treykane/tunnelbar/internal/security"
	"github.com/treykane/tunnelbar/internal/util"
)

// Process is a running tunnel helper. It is reaped by a background goroutine
// started in Launcher.Start, so callers never need to Wait on it.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	exitErr error
}

// PID returns the OS process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Terminate sends SIGTERM. A process that has already exited is not an error.
func (p *Process) Terminate() error {
	err := p.cmd.Process.Signal(syscall.SIGTERM)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the result of Wait. Only meaningful after Done is closed.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	close(p.done)
}

// Launcher spawns the tunnel helper. The zero value is not useful; fill in
// Command at least. A Launcher is safe for concurrent use as long as its
// fields are not modified while Start runs.
type Launcher struct {
	// Command is the executable to run. A leading "~/" is expanded.
	Command string
	// Args are passed verbatim after Command.
	Args []string
	// Path, when set, replaces PATH in the child environment and is where a
	// bare Command name is looked up.
	Path string
	// ExtraEnv entries (KEY=VALUE) are added after the inherited environment.
	ExtraEnv []string
}

// New returns a launcher for command.
func New(command string, args ...string) *Launcher {
	return &Launcher{Command: command, Args: args}
}

// BuildEnv returns the tunnel-specific environment for def.
//
// Example: ["HOST=clinic-vm", "LPORT=5432", "RHOST=127.0.0.1", "RPORT=5432"]
func BuildEnv(def model.TunnelDefinition) []string {
	return []string{
		"HOST=" + def.Host,
		"LPORT=" + strconv.Itoa(def.LocalPort),
		"RHOST=" + util.DefaultString(def.RemoteHost, util.DefaultRemoteHost),
		"RPORT=" + strconv.Itoa(def.RemotePort),
	}
}

// ResolvedCommand returns Command with "~/" expanded.
func (l *Launcher) ResolvedCommand() string {
	return util.ExpandHome(l.Command)
}

// EnsureCommand checks that the helper exists and is executable.
func (l *Launcher) EnsureCommand() error {
	if _, err := l.lookPath(); err != nil {
		return fmt.Errorf("tunnel helper %q not usable: %w", l.Command, err)
	}
	return nil
}

// lookPath finds the helper executable. A bare name is searched in Path when
// set, otherwise in the caller's PATH.
func (l *Launcher) lookPath() (string, error) {
	cmd := l.ResolvedCommand()
	if l.Path == "" || strings.ContainsRune(cmd, filepath.Separator) {
		return exec.LookPath(cmd)
	}
	for _, dir := range filepath.SplitList(l.Path) {
		if dir == "" {
			dir = "."
		}
		p := filepath.Join(dir, cmd)
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() && st.Mode().Perm()&0o111 != 0 {
			return p, nil
		}
	}
	return "", &exec.Error{Name: cmd, Err: exec.ErrNotFound}
}

// classify gives a missing or non-executable helper a short user-facing
// message; the full error stays available for logs.
func (l *Launcher) classify(err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return security.NewClassifiedError(
			fmt.Sprintf("tunnel helper %s not found or not executable; run `tunnelbar doctor`", l.Command),
			err.Error(),
			err,
		)
	}
	return err
}

// Env composes the full child environment for def. Later entries win when
// the same key appears twice, which is how os/exec resolves duplicates.
func (l *Launcher) Env(def model.TunnelDefinition) []string {
	env := os.Environ()
	if l.Path != "" {
		env = append(env, "PATH="+l.Path)
	}
	env = append(env, l.ExtraEnv...)
	return append(env, BuildEnv(def)...)
}

// Start launches the helper for def and returns as soon as the process has
// been created. It never waits for the helper to exit.
func (l *Launcher) Start(def model.TunnelDefinition) (*Process, error) {
	path, err := l.lookPath()
	if err != nil {
		return nil, l.classify(err)
	}
	cmd := exec.Command(path, l.Args...)
	cmd.Env = l.Env(def)
	// nil streams are connected to the null device; the helper's output is
	// not inspected.
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, l.classify(err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go p.wait()
	return p, nil
}
