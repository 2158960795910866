package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ringd/internal/node"
	"ringd/internal/ringnode"
	"ringd/internal/rpc"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print a node's routing-state snapshot",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	registerClientFlags(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	target, err := parseTarget()
	if err != nil {
		return err
	}

	caller := newClientCaller()
	raw, err := caller.Call(context.Background(), target, rpc.Op("snapshot"), struct{}{})
	if err != nil {
		return fmt.Errorf("fetching snapshot from %s: %w", target.Addr(), err)
	}

	var snap node.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}

	fmt.Printf("self:        %s\n", snap.Self)
	if snap.Predecessor != nil {
		fmt.Printf("predecessor: %s\n", *snap.Predecessor)
	} else {
		fmt.Println("predecessor: (none)")
	}
	fmt.Printf("successors:  %s\n", formatNodes(snap.Successors))
	fmt.Printf("owned stores: %d\n", len(snap.OwnedStores))
	return nil
}

func formatNodes(nodes []ringnode.Node) string {
	out := ""
	for i, n := range nodes {
		if i > 0 {
			out += ", "
		}
		out += n.String()
	}
	return out
}
