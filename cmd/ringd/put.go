package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ringd/internal/ringid"
	"ringd/internal/rpc"
)

var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Store a value under a key",
	Args:  cobra.ExactArgs(2),
	RunE:  runPut,
}

func init() {
	rootCmd.AddCommand(putCmd)
	registerClientFlags(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
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
		Version uint64 `json:"version"`
	}
	putArgs := struct {
		Owner ringid.ID `json:"owner"`
		Key   string    `json:"key"`
		Value []byte    `json:"value"`
	}{Owner: owner.ID, Key: key, Value: []byte(value)}
	if err := rpc.CallJSON(ctx, caller, owner, rpc.OpAddKey, putArgs, &reply); err != nil {
		return fmt.Errorf("storing %q on %s: %w", key, owner.Addr(), err)
	}

	fmt.Printf("stored %q on %s (version %d)\n", key, owner.Addr(), reply.Version)
	return nil
}
