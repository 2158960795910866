// Command ringd runs and inspects a Chord-style ring node.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ringd",
	Short: "A structured peer-to-peer overlay DHT node",
	Long: `ringd runs one participant of a Chord-style ring: identifier-based
routing, periodic stabilization, and a versioned replicated key-value
store, reachable over a small JSON-over-HTTP wire protocol.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
