// Package tunnel owns the fixed set of tunnel definitions and the lifecycle
// of the helper process behind each one.
package tunnel

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/treykane/tunnelbar/internal/events"
	"github.com/treykane/tunnelbar/internal/launcher"
	"github.com/treykane/tunnelbar/internal/model"
	"github.com/treykane/tunnelbar/internal/security"
)

// Handle is the registry's ownership token for a spawned helper process.
type Handle interface {
	PID() int
	Terminate() error
}

// Starter abstracts process creation so tests can count and fail spawns.
type Starter interface {
	Start(def model.TunnelDefinition) (Handle, error)
}

// StarterFunc adapts a function to Starter.
type StarterFunc func(def model.TunnelDefinition) (Handle, error)

func (f StarterFunc) Start(def model.TunnelDefinition) (Handle, error) { return f(def) }

// FromLauncher adapts a launcher to Starter.
func FromLauncher(l *launcher.Launcher) Starter {
	return StarterFunc(func(def model.TunnelDefinition) (Handle, error) {
		p, err := l.Start(def)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Journal receives lifecycle events. *events.Store implements it.
type Journal interface {
	Append(evt events.Event) error
}

// exitNotifier is implemented by handles that know when their process exits.
type exitNotifier interface {
	Done() <-chan struct{}
	ExitErr() error
}

// entry is one tunnel. mu serializes Start/Stop on this id and guards handle
// and startedAt; the tunnel is running exactly when handle is non-nil.
type entry struct {
	def model.TunnelDefinition

	mu        sync.Mutex
	handle    Handle
	startedAt time.Time
}

// Registry is the single source of truth for tunnel run state. Definitions
// are fixed at construction; only the per-tunnel handles change.
type Registry struct {
	entries []*entry
	byID    map[string]*entry
	starter Starter
	journal Journal
	log     *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithJournal records lifecycle events in j.
func WithJournal(j Journal) Option {
	return func(r *Registry) { r.journal = j }
}

// NewRegistry creates a registry with every tunnel stopped. Definitions keep
// their order; duplicate ids are rejected.
func NewRegistry(defs []model.TunnelDefinition, starter Starter, opts ...Option) (*Registry, error) {
	if starter == nil {
		return nil, errors.New("tunnel registry requires a starter")
	}
	r := &Registry{
		entries: make([]*entry, 0, len(defs)),
		byID:    make(map[string]*entry, len(defs)),
		starter: starter,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, def := range defs {
		if _, dup := r.byID[def.ID]; dup {
			return nil, fmt.Errorf("duplicate tunnel id %q", def.ID)
		}
		e := &entry{def: def}
		r.entries = append(r.entries, e)
		r.byID[def.ID] = e
	}
	return r, nil
}

// List returns a snapshot of every tunnel in declaration order.
func (r *Registry) List() []model.TunnelStatus {
	out := make([]model.TunnelStatus, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.status())
	}
	return out
}

// Get returns the snapshot of a single tunnel.
func (r *Registry) Get(id string) (model.TunnelStatus, error) {
	e, ok := r.byID[id]
	if !ok {
		return model.TunnelStatus{}, unknown(id)
	}
	return e.status(), nil
}

// Start launches the tunnel's helper. Starting a running tunnel is a no-op.
// A failed launch leaves the tunnel stopped and returns a *LaunchError.
func (r *Registry) Start(id string) error {
	e, ok := r.byID[id]
	if !ok {
		return unknown(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.startLocked(e)
}

// Stop releases the tunnel's handle, marks it stopped and then asks the
// process to terminate. Stopping a stopped tunnel is a no-op. If the signal
// cannot be delivered a *TerminateError is returned, but the tunnel is
// stopped either way; the exit of the process is not awaited.
func (r *Registry) Stop(id string) error {
	e, ok := r.byID[id]
	if !ok {
		return unknown(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.stopLocked(e)
}

// Toggle stops a running tunnel and starts a stopped one.
func (r *Registry) Toggle(id string) error {
	e, ok := r.byID[id]
	if !ok {
		return unknown(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != nil {
		return r.stopLocked(e)
	}
	return r.startLocked(e)
}

// StopAll stops every running tunnel concurrently and returns the joined
// termination errors, if any.
func (r *Registry) StopAll() error {
	// errgroup keeps only the first error; every stop must run and every
	// failure is reported, so errors are collected per entry.
	errs := make([]error, len(r.entries))
	var g errgroup.Group
	for i, e := range r.entries {
		i, e := i, e
		g.Go(func() error {
			e.mu.Lock()
			defer e.mu.Unlock()
			errs[i] = r.stopLocked(e)
			return errs[i]
		})
	}
	if err := g.Wait(); err != nil {
		r.log.Warn("stop all finished with errors", "first_error", err)
	}
	return errors.Join(errs...)
}

// Running reports how many tunnels are currently running.
func (r *Registry) Running() int {
	n := 0
	for _, e := range r.entries {
		e.mu.Lock()
		if e.handle != nil {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

func (r *Registry) startLocked(e *entry) error {
	id := e.def.ID
	if e.handle != nil {
		r.log.Debug("tunnel already running", "tunnel_id", id, "pid", e.handle.PID())
		return nil
	}

	r.record(events.Event{TunnelID: id, EventType: events.TypeStartRequested})
	h, err := r.starter.Start(e.def)
	if err == nil && h == nil {
		err = errors.New("starter returned no process")
	}
	if err != nil {
		r.log.Warn("tunnel launch failed", "tunnel_id", id, "host", e.def.Host, "error", security.DebugMessage(err))
		r.record(events.Event{TunnelID: id, EventType: events.TypeStartFailed, Message: security.DebugMessage(err)})
		return &LaunchError{ID: id, Err: err}
	}

	e.handle = h
	e.startedAt = time.Now()
	pid := h.PID()
	r.log.Info("tunnel started", "tunnel_id", id, "host", e.def.Host,
		"local", e.def.Local(), "remote", e.def.Remote(), "pid", pid)
	r.record(events.Event{TunnelID: id, EventType: events.TypeStartSucceeded, PID: pid})

	if n, ok := h.(exitNotifier); ok {
		go r.watchExit(id, pid, n)
	}
	return nil
}

func (r *Registry) stopLocked(e *entry) error {
	id := e.def.ID
	h := e.handle
	if h == nil {
		return nil
	}
	e.handle = nil
	e.startedAt = time.Time{}

	pid := h.PID()
	r.record(events.Event{TunnelID: id, EventType: events.TypeStopRequested, PID: pid})
	if err := h.Terminate(); err != nil {
		r.log.Warn("tunnel terminate failed; marked stopped anyway", "tunnel_id", id, "pid", pid, "error", err)
		r.record(events.Event{TunnelID: id, EventType: events.TypeTerminateFailed, PID: pid, Message: err.Error()})
		return &TerminateError{ID: id, PID: pid, Err: err}
	}
	r.log.Info("tunnel stopped", "tunnel_id", id, "pid", pid)
	r.record(events.Event{TunnelID: id, EventType: events.TypeStopped, PID: pid})
	return nil
}

// watchExit only reports the exit; run state reflects ownership of the
// handle, not the liveness of the OS process.
func (r *Registry) watchExit(id string, pid int, n exitNotifier) {
	<-n.Done()
	msg := "exited"
	if err := n.ExitErr(); err != nil {
		msg = err.Error()
	}
	r.log.Info("tunnel process exited", "tunnel_id", id, "pid", pid, "status", msg)
	r.record(events.Event{TunnelID: id, EventType: events.TypeProcessExited, PID: pid, Message: msg})
}

func (r *Registry) record(evt events.Event) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Append(evt); err != nil {
		r.log.Warn("failed to journal tunnel event", "event", evt.EventType, "tunnel_id", evt.TunnelID, "error", err)
	}
}

func (e *entry) status() model.TunnelStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := model.TunnelStatus{TunnelDefinition: e.def}
	if e.handle != nil {
		st.Running = true
		st.PID = e.handle.PID()
		st.StartedAt = e.startedAt
		st.UptimeSec = int64(time.Since(e.startedAt).Seconds())
	}
	return st
}
