// Package rpc implements the remote-call facade: a uniform "call this
// operation on that node, with a retry budget" wrapper that every other
// ring component forwards through, so no local operation ever has to
// hold a lock across a blocking network call.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/xid"

	"ringd/internal/logging"
	"ringd/internal/ringerr"
	"ringd/internal/ringnode"
)

// Op names a remotely callable operation of the wire protocol.
type Op string

const (
	OpFindSuccessor    Op = "find_successor"
	OpPredecessor      Op = "predecessor"
	OpSuccessor        Op = "successor"
	OpSuccessorCache   Op = "successor_cache"
	OpNotify           Op = "notify"
	OpAddKey           Op = "add_key"
	OpFindKey          Op = "find_key"
	OpGetStoreVersion  Op = "get_store_version"
	OpDeleteStore      Op = "delete_store"
	OpReplicateIn      Op = "replicate_in"
	OpPort             Op = "port"
	OpIsAlive          Op = "is_alive"
)

// Caller dispatches one remote operation and returns its raw JSON reply.
// Implementations translate every transport or remote-raised failure
// into an error wrapping one of internal/ringerr's sentinels; they never
// panic and never block past the transport's own deadline.
type Caller interface {
	Call(ctx context.Context, target ringnode.Node, op Op, args any) (json.RawMessage, error)
}

// CallJSON is a convenience wrapper that also unmarshals the reply into
// out (skipped if out is nil, for fire-and-forget operations).
func CallJSON(ctx context.Context, c Caller, target ringnode.Node, op Op, args, out any) error {
	raw, err := c.Call(ctx, target, op, args)
	if err != nil {
		return err
	}
	if out == nil || raw == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// retrying decorates a Caller with a fixed retry shell: on any failure,
// retry up to budget times before giving up. The budget is fixed per
// node (from Config.RetryBudget) and is not sent over the wire with a
// forwarded call: each hop's Caller applies its own full budget. When a
// forwarded find_successor fails further down a chain, every hop above
// it retries as well, so the retries of the hops multiply rather than
// sharing one budget.
type retrying struct {
	next   Caller
	budget int
	log    *logging.Logger
}

// WithRetry wraps next in the retry shell, retrying failed calls up to
// budget times (3 by default).
func WithRetry(next Caller, budget int, log *logging.Logger) Caller {
	if log == nil {
		log = logging.Nop()
	}
	return &retrying{next: next, budget: budget, log: log}
}

func (r *retrying) Call(ctx context.Context, target ringnode.Node, op Op, args any) (json.RawMessage, error) {
	reqID := xid.New().String()
	var lastErr error
	for attempt := 0; attempt <= r.budget; attempt++ {
		raw, err := r.next.Call(ctx, target, op, args)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		r.log.Debug("rpc call failed, retrying", map[string]any{
			"request_id": reqID,
			"op":         string(op),
			"target":     target.Addr(),
			"attempt":    attempt,
			"error":      err.Error(),
		})
	}
	if lastErr == nil {
		lastErr = ringerr.ErrRetriesExhausted
	}
	return nil, errors.Join(ringerr.ErrRetriesExhausted, lastErr)
}

// DefaultTimeout is the fallback per-call transport timeout when a
// Context carries no deadline of its own.
const DefaultTimeout = 2 * time.Second

// WithDefaultTimeout returns a context with DefaultTimeout applied if
// ctx does not already carry a deadline.
func WithDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}
