package model

import (
	"fmt"
	"time"
)

// TunnelDefinition is one user-declared port-forwarding tunnel. Definitions
// are loaded once at startup and never change afterwards.
type TunnelDefinition struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Host       string `json:"host"`
	LocalPort  int    `json:"local_port"`
	RemoteHost string `json:"remote_host"`
	RemotePort int    `json:"remote_port"`
}

// Local returns the local side of the forward, e.g. "127.0.0.1:5432".
func (d TunnelDefinition) Local() string {
	return fmt.Sprintf("127.0.0.1:%d", d.LocalPort)
}

// Remote returns the remote side of the forward as seen from Host.
func (d TunnelDefinition) Remote() string {
	return fmt.Sprintf("%s:%d", d.RemoteHost, d.RemotePort)
}

// TunnelStatus is a read-only snapshot of one tunnel and its run state.
type TunnelStatus struct {
	TunnelDefinition
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"-"`
	UptimeSec int64     `json:"uptime_seconds"`
}

// StateLabel is the short indicator shown next to a tunnel name.
func (s TunnelStatus) StateLabel() string {
	if s.Running {
		return "on"
	}
	return "off"
}
