package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ringd/internal/ringid"
	"ringd/internal/rpc"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Look up the value stored under a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
	registerClientFlags(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	entry, err := parseTarget()
	if err != nil {
		return err
	}

	caller := newClientCaller()
	ctx := context.Background()

	owner, err := resolveOwner(ctx, caller, entry, ringid.HashKey([]byte(key)))
	if err != nil {
		return fmt.Errorf("resolving owner for %q: %w", key, err)
	}

	var reply struct {
		Value   []byte `json:"value"`
		Version uint64 `json:"version"`
	}
	findArgs := struct {
		Owner ringid.ID `json:"owner"`
		Key   string    `json:"key"`
	}{Owner: owner.ID, Key: key}
	if err := rpc.CallJSON(ctx, caller, owner, rpc.OpFindKey, findArgs, &reply); err != nil {
		return fmt.Errorf("looking up %q on %s: %w", key, owner.Addr(), err)
	}

	fmt.Printf("%s\n", reply.Value)
	return nil
}
