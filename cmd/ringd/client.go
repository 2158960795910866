package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"ringd/internal/ringid"
	"ringd/internal/ringnode"
	"ringd/internal/rpc"
	"ringd/internal/rpc/httprpc"
)

var flagTarget string

func registerClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagTarget, "node", "127.0.0.1:9000", "host:port of any live ring member")
}

func parseTarget() (ringnode.Node, error) {
	host, portStr, err := net.SplitHostPort(flagTarget)
	if err != nil {
		return ringnode.Node{}, fmt.Errorf("invalid --node %q, expected host:port: %w", flagTarget, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return ringnode.Node{}, fmt.Errorf("invalid port in --node %q: %w", flagTarget, err)
	}
	return ringnode.Node{Host: host, Port: uint16(port)}, nil
}

// resolveOwner asks entry for the successor of id, the node responsible
// for storing keys hashed there.
func resolveOwner(ctx context.Context, caller rpc.Caller, entry ringnode.Node, id ringid.ID) (ringnode.Node, error) {
	var reply struct {
		Node   ringnode.Node `json:"node"`
		HopOut int           `json:"hop_out"`
	}
	err := rpc.CallJSON(ctx, caller, entry, rpc.OpFindSuccessor, struct {
		ID    ringid.ID `json:"id"`
		HopIn int       `json:"hop_in"`
	}{ID: id, HopIn: 0}, &reply)
	if err != nil {
		return ringnode.Node{}, err
	}
	return reply.Node, nil
}

func newClientCaller() rpc.Caller {
	return httprpc.New(rpc.DefaultTimeout)
}
