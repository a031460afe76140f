// Package main is the entry point for the tunnelbar binary.
//
// tunnelbar keeps a fixed list of SSH port-forwarding tunnels and lets the
// user switch each one on and off. Every tunnel is an external helper process
// (~/.local/bin/ssh-tunnel by default) told what to forward through the
// HOST, LPORT, RHOST and RPORT environment variables.
//
// Usage:
//
//	tunnelbar          # full-screen menu
//	tunnelbar shell    # line-oriented control with tab completion
//	tunnelbar list     # configured tunnels and their helper environment
//	tunnelbar doctor   # diagnostics
//	tunnelbar events   # lifecycle journal
package main

import (
	"fmt"
	"os"

	"github.com/treykane/tunnelbar/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
