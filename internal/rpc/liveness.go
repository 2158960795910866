package rpc

import (
	"context"

	"ringd/internal/ringnode"
)

// LivenessProber adapts a Caller into the ringstate.Prober interface
// (structurally — ringstate does not import this package) used by
// State.Successor to scan past dead cache entries.
type LivenessProber struct {
	Caller Caller
}

// IsAlive pings n with the is_alive wire operation and reports whether
// it replied within the call's timeout.
func (p LivenessProber) IsAlive(n ringnode.Node) bool {
	ctx, cancel := WithDefaultTimeout(context.Background())
	defer cancel()
	_, err := p.Caller.Call(ctx, n, OpIsAlive, struct{}{})
	return err == nil
}
