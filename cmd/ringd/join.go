package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join an existing ring through a seed node",
	Long: `join is start with --seed-host/--seed-port required: it starts a node
and has it join the ring reachable through the given seed, rather than
starting a new singleton ring.

Example:
  ringd join --host 127.0.0.1 --port 9001 --seed-host 127.0.0.1 --seed-port 9000`,
	RunE: runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)
	registerNodeFlags(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	if flagSeedHost == "" {
		return fmt.Errorf("join requires --seed-host (and --seed-port)")
	}
	return runStart(cmd, args)
}
