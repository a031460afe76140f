// Package util provides common utility functions and constants used across
// tunnelbar. It imports no other internal/* package.
package util

const (
	// DefaultRefreshSeconds is the fallback interval for the menu's periodic
	// snapshot refresh, used when config.yaml has no usable ui.refresh_seconds.
	DefaultRefreshSeconds = 3

	// DefaultRemoteHost is used when a tunnel definition leaves remote_host empty.
	DefaultRemoteHost = "127.0.0.1"

	// DefaultLauncherCommand is the helper script every tunnel is started with
	// unless config.yaml names another one.
	DefaultLauncherCommand = "~/.local/bin/ssh-tunnel"

	// DefaultLauncherPath is the PATH handed to the launcher so that it finds
	// ssh and friends even when started outside a login shell.
	DefaultLauncherPath = "/opt/homebrew/bin:/usr/local/bin:/usr/bin:/bin"
)
