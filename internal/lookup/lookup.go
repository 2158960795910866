// Package lookup implements the recursive hop-bounded lookup engine:
// find_successor and find_closest_preceding_finger.
package lookup

import (
	"context"

	"ringd/internal/logging"
	"ringd/internal/ringid"
	"ringd/internal/ringnode"
	"ringd/internal/ringstate"
	"ringd/internal/rpc"
)

// Engine answers find_successor queries using local routing state,
// forwarding to a remote peer through caller when local state is not
// enough to answer directly.
type Engine struct {
	state  *ringstate.State
	caller rpc.Caller
	prober ringstate.Prober
	log    *logging.Logger
}

// New builds a lookup Engine over state, dispatching remote hops
// through caller.
func New(state *ringstate.State, caller rpc.Caller, prober ringstate.Prober, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{state: state, caller: caller, prober: prober, log: log}
}

// findSuccessorArgs/findSuccessorReply are the wire shapes of the
// find_successor operation.
type findSuccessorArgs struct {
	ID    ringid.ID `json:"id"`
	HopIn int       `json:"hop_in"`
}

type findSuccessorReply struct {
	Node   ringnode.Node `json:"node"`
	HopOut int           `json:"hop_out"`
}

// FindSuccessor answers locally if our successor already covers id,
// otherwise forwards to the closest preceding finger we know of,
// recursing remotely with hop_in+1.
func (e *Engine) FindSuccessor(ctx context.Context, id ringid.ID, hopIn int) (ringnode.Node, int, error) {
	self := e.state.Self()
	succ := e.state.Successor(e.prober)

	if ringid.InRangeHalfOpenRight(id, self.ID, succ.ID) {
		return succ, hopIn, nil
	}

	n := e.FindClosestPrecedingFinger(id)
	if n == self {
		// We know nothing better than our own successor.
		return succ, hopIn, nil
	}

	var reply findSuccessorReply
	args := findSuccessorArgs{ID: id, HopIn: hopIn + 1}
	if err := rpc.CallJSON(ctx, e.caller, n, rpc.OpFindSuccessor, args, &reply); err != nil {
		e.log.Debug("find_successor hop failed", map[string]any{
			"target": n.Addr(), "id": id.String(), "hop_in": hopIn + 1, "error": err.Error(),
		})
		return ringnode.Node{}, hopIn, err
	}
	return reply.Node, reply.HopOut, nil
}

// FindClosestPrecedingFinger scans the finger table from the most
// distant entry down to the closest, returning the first entry whose id
// lies in the open arc (self.id, id). If none qualifies, fall back to
// the farthest finger that is still reachable; if nothing is reachable,
// return self — guaranteeing forward progress even on a ring the node
// has not yet learned anything about, via the start==end edge policy of
// InOpenRange.
func (e *Engine) FindClosestPrecedingFinger(id ringid.ID) ringnode.Node {
	self := e.state.Self()
	fingers := e.state.Fingers()

	for i := len(fingers) - 1; i >= 0; i-- {
		n := fingers[i]
		if n.IsZero() {
			continue
		}
		if ringid.InOpenRange(n.ID, self.ID, id) {
			return n
		}
	}

	for i := len(fingers) - 1; i >= 0; i-- {
		n := fingers[i]
		if n.IsZero() {
			continue
		}
		if e.prober == nil || e.prober.IsAlive(n) {
			return n
		}
	}

	return self
}
