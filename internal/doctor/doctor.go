// Package doctor runs local diagnostics for tunnelbar: the helper executable,
// the tunnel definitions and the permissions of the files it keeps.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/treykane/tunnelbar/internal/appconfig"
	"github.com/treykane/tunnelbar/internal/launcher"
	"github.com/treykane/tunnelbar/internal/security"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

// HasHigh reports whether any issue would keep tunnels from starting.
func (r Report) HasHigh() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// Run inspects cfg, which was loaded from configPath. redact controls whether
// home-directory paths appear verbatim in messages.
func Run(cfg appconfig.Config, configPath string, redact bool) Report {
	var issues []Issue

	l := launcher.New(cfg.Launcher.Command, cfg.Launcher.Args...)
	l.Path = cfg.Launcher.Path
	if err := l.EnsureCommand(); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "launcher",
			Target:         cfg.Launcher.Command,
			Message:        security.UserMessage(err, redact),
			Recommendation: "install the tunnel helper or set launcher.command in config.yaml",
		})
	}

	if _, err := cfg.Definitions(); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "tunnel-definition",
			Target:         "tunnels",
			Message:        err.Error(),
			Recommendation: "fix the tunnels list in config.yaml",
		})
	}
	issues = append(issues, duplicatePortIssues(cfg.Tunnels)...)

	if configPath != "" {
		checkPathPerm(&issues, filepath.Dir(configPath), 0o700, false, redact)
		checkPathPerm(&issues, configPath, 0o600, true, redact)
	}

	sort.Slice(issues, func(i, j int) bool {
		ri := severityRank(issues[i].Severity)
		rj := severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		if issues[i].Target != issues[j].Target {
			return issues[i].Target < issues[j].Target
		}
		return issues[i].Message < issues[j].Message
	})
	return Report{Issues: issues}
}

func duplicatePortIssues(tunnels []appconfig.TunnelConfig) []Issue {
	seen := map[int][]string{}
	for _, t := range tunnels {
		if t.LocalPort == 0 {
			continue
		}
		name := strings.TrimSpace(t.ID)
		if name == "" {
			name = t.Name
		}
		seen[t.LocalPort] = append(seen[t.LocalPort], name)
	}
	var issues []Issue
	for port, names := range seen {
		if len(names) < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "duplicate-local-port",
			Target:         fmt.Sprintf("127.0.0.1:%d", port),
			Message:        fmt.Sprintf("local port is used by %d tunnels (%s)", len(names), strings.Join(names, ", ")),
			Recommendation: "use a unique local port per tunnel; only one of them can be on at a time",
		})
	}
	return issues
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

func checkPathPerm(issues *[]Issue, path string, max os.FileMode, isFile, redact bool) {
	target := path
	if redact {
		target = security.RedactMessage(path)
	}
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		*issues = append(*issues, Issue{
			Severity:       SeverityLow,
			Check:          "permissions",
			Target:         target,
			Message:        security.UserMessage(fmt.Errorf("unable to inspect permissions: %w", err), redact),
			Recommendation: "verify path and permissions manually",
		})
		return
	}
	mode := st.Mode().Perm()
	if mode&^max != 0 {
		kind := "directory"
		if isFile {
			kind = "file"
		}
		*issues = append(*issues, Issue{
			Severity:       SeverityMedium,
			Check:          "permissions",
			Target:         target,
			Message:        fmt.Sprintf("%s permissions are too broad (%#o)", kind, mode),
			Recommendation: fmt.Sprintf("restrict permissions to %#o or tighter", max),
		})
	}
}
