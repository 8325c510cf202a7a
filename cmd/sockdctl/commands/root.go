// Package commands implements the sockdctl cobra command tree: a small
// demo client for a sockd-based daemon, shaped after the original
// ctdb/tests/src/dummy_client.c (connect, send one framed request, await
// one framed response, timeout-bounded) plus an interactive REPL mode.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// socketPath is the Unix-domain socket path of the daemon to talk to.
	socketPath string

	// timeout bounds how long a single request/response round trip may take.
	timeout time.Duration
)

// rootCmd is the top-level cobra command for sockdctl.
var rootCmd = &cobra.Command{
	Use:   "sockdctl",
	Short: "CLI client for a sockd-based daemon",
	Long:  "sockdctl connects to a sockd daemon's Unix-domain socket and exchanges length-prefixed frames.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/var/run/sockd/sockd.sock",
		"path to the daemon's Unix-domain socket")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second,
		"timeout for connecting and for a single request/response round trip")

	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(shellCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
