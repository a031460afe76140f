package doctor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treykane/tunnelbar/internal/appconfig"
)

func writeHelper(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ssh-tunnel")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	return path
}

func checks(r Report) []string {
	var out []string
	for _, i := range r.Issues {
		out = append(out, i.Check)
	}
	return out
}

func TestRunHealthyConfig(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Launcher.Command = writeHelper(t)
	path := filepath.Join(t.TempDir(), "tunnelbar", "config.yaml")
	require.NoError(t, appconfig.SaveFile(path, cfg))

	report := Run(cfg, path, false)
	assert.Empty(t, report.Issues)
	assert.False(t, report.HasHigh())
}

func TestRunMissingLauncher(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Launcher.Command = filepath.Join(t.TempDir(), "missing")

	report := Run(cfg, "", false)
	require.NotEmpty(t, report.Issues)
	assert.Equal(t, "launcher", report.Issues[0].Check)
	assert.True(t, report.HasHigh())
}

func TestRunFindsBareLauncherOnConfiguredPath(t *testing.T) {
	helper := writeHelper(t)
	t.Setenv("PATH", "/usr/bin:/bin")
	cfg := appconfig.Default()
	cfg.Launcher.Command = filepath.Base(helper)
	cfg.Launcher.Path = filepath.Dir(helper)

	assert.NotContains(t, checks(Run(cfg, "", false)), "launcher")

	cfg.Launcher.Path = t.TempDir()
	assert.Contains(t, checks(Run(cfg, "", false)), "launcher")
}

func TestRunLauncherNotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ssh-tunnel")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644))
	cfg := appconfig.Default()
	cfg.Launcher.Command = path

	report := Run(cfg, "", false)
	assert.Contains(t, checks(report), "launcher")
}

func TestRunDuplicatePortsAndInvalidDefinitions(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Launcher.Command = writeHelper(t)
	cfg.Tunnels = append(cfg.Tunnels,
		appconfig.TunnelConfig{ID: "other-db", Name: "DB → other", Host: "other-vm", LocalPort: 5432, RemotePort: 5432},
		appconfig.TunnelConfig{ID: "broken", Name: "Broken", Host: "", LocalPort: 7000, RemotePort: 70000},
	)

	report := Run(cfg, "", false)
	got := checks(report)
	assert.Contains(t, got, "duplicate-local-port")
	assert.Contains(t, got, "tunnel-definition")
	for _, i := range report.Issues {
		if i.Check == "duplicate-local-port" {
			assert.Equal(t, "127.0.0.1:5432", i.Target)
			assert.Contains(t, i.Message, "clinic-db, other-db")
		}
	}
}

func TestRunBroadPermissions(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Launcher.Command = writeHelper(t)
	dir := filepath.Join(t.TempDir(), "tunnelbar")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, appconfig.SaveFile(path, cfg))
	require.NoError(t, os.Chmod(dir, 0o755))
	require.NoError(t, os.Chmod(path, 0o644))

	report := Run(cfg, path, false)
	require.Len(t, report.Issues, 2)
	for _, i := range report.Issues {
		assert.Equal(t, SeverityMedium, i.Severity)
		assert.Equal(t, "permissions", i.Check)
	}
}

func TestRunSortedBySeverity(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Launcher.Command = filepath.Join(t.TempDir(), "missing")
	dir := filepath.Join(t.TempDir(), "tunnelbar")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, appconfig.SaveFile(path, cfg))
	require.NoError(t, os.Chmod(path, 0o644))

	report := Run(cfg, path, false)
	require.Len(t, report.Issues, 2)
	assert.Equal(t, SeverityHigh, report.Issues[0].Severity)
	assert.Equal(t, SeverityMedium, report.Issues[1].Severity)

	b, err := json.Marshal(report)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Contains(t, decoded, "issues")
}
