// Package maintenance runs the periodic background loops of a ring
// node: stabilize-successors, stabilize-predecessors, fix-fingers,
// rejoin, and replication. Each loop owns a ticker and a stop channel so
// it wakes promptly on shutdown instead of waiting out its period, five
// independent goroutines running concurrently.
package maintenance

import (
	"context"
	"errors"
	"sync"
	"time"

	"ringd/internal/lookup"
	"ringd/internal/logging"
	"ringd/internal/ringcfg"
	"ringd/internal/ringerr"
	"ringd/internal/ringid"
	"ringd/internal/ringnode"
	"ringd/internal/ringstate"
	"ringd/internal/rpc"
	"ringd/internal/store"
)

// Loops owns the five background goroutines a running node keeps
// alive between Join and Depart.
type Loops struct {
	state   *ringstate.State
	engine  *lookup.Engine
	caller  rpc.Caller
	prober  ringstate.Prober
	manager *store.Manager
	cfg     *ringcfg.Config
	log     *logging.Logger

	stop chan struct{}
	wg   sync.WaitGroup

	fingerCursor int
}

// New builds Loops around the components a node has already assembled.
// Start has not been called yet.
func New(state *ringstate.State, engine *lookup.Engine, caller rpc.Caller, prober ringstate.Prober, manager *store.Manager, cfg *ringcfg.Config, log *logging.Logger) *Loops {
	if log == nil {
		log = logging.Nop()
	}
	return &Loops{
		state:   state,
		engine:  engine,
		caller:  caller,
		prober:  prober,
		manager: manager,
		cfg:     cfg,
		log:     log,
	}
}

// Start launches all five loops. Calling Start twice without an
// intervening Stop is a programmer error.
func (l *Loops) Start() {
	l.stop = make(chan struct{})

	loops := []func(){
		func() { l.run(l.cfg.StabilizeSuccessorsPeriod, l.stabilizeSuccessors) },
		func() { l.run(l.cfg.StabilizePredecessorsPeriod, l.stabilizePredecessors) },
		func() { l.run(l.cfg.FixFingersPeriod, l.fixFingers) },
		l.rejoinLoop,
		func() { l.run(l.cfg.ReplicatePeriod, l.replicate) },
	}
	l.wg.Add(len(loops))
	for _, loop := range loops {
		loop := loop
		go func() {
			defer l.wg.Done()
			loop()
		}()
	}
}

// Stop signals every loop to exit and blocks until all of them have.
func (l *Loops) Stop() {
	if l.stop == nil {
		return
	}
	close(l.stop)
	l.wg.Wait()
}

// run drives fn on a ticker of the given period until Stop is called.
// A zero or negative period disables the loop entirely: "period <= 0"
// means "this maintenance activity is off" rather than an error.
func (l *Loops) run(period time.Duration, fn func(ctx context.Context)) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.cfg.CallTimeout)
			fn(ctx)
			cancel()
		}
	}
}

// rejoinLoop is the one loop that wakes on two signals: its own ticker
// (a periodic health check even when nothing has failed) and the
// NeedsRejoin channel State.Successor signals the moment the successor
// cache collapses to self-only, so a partitioned node reattaches as
// soon as the failure is detected instead of waiting out the period.
func (l *Loops) rejoinLoop() {
	period := l.cfg.RejoinPeriod
	if period <= 0 {
		period = 30 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-l.state.NeedsRejoin():
			ctx, cancel := context.WithTimeout(context.Background(), l.cfg.CallTimeout)
			l.rejoin(ctx)
			cancel()
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.cfg.CallTimeout)
			l.rejoin(ctx)
			cancel()
		}
	}
}

// stabilizeSuccessors asks the current successor for its predecessor
// and successor cache; if the successor's predecessor lies strictly
// between us and it, adopt
// that predecessor as our new successor. Either way, notify the
// (possibly updated) successor of our own existence, and refresh our
// successor cache from its own so failures ripple forward promptly.
func (l *Loops) stabilizeSuccessors(ctx context.Context) {
	self := l.state.Self()
	succ := l.state.Successor(l.prober)
	if succ == self {
		return
	}

	var predReply struct {
		Node ringnode.Node `json:"node"`
		Set  bool          `json:"set"`
	}
	if err := rpc.CallJSON(ctx, l.caller, succ, rpc.OpPredecessor, struct{}{}, &predReply); err != nil {
		l.log.Debug("stabilize_successors: predecessor query failed", map[string]any{"successor": succ.Addr(), "error": err.Error()})
		return
	}

	if predReply.Set && ringid.InOpenRange(predReply.Node.ID, self.ID, succ.ID) {
		succ = predReply.Node
	}

	var cacheReply struct {
		Successors []ringnode.Node `json:"successors"`
	}
	if err := rpc.CallJSON(ctx, l.caller, succ, rpc.OpSuccessorCache, struct{}{}, &cacheReply); err == nil {
		l.state.SetSuccessorCache(append([]ringnode.Node{succ}, cacheReply.Successors...))
	} else {
		l.state.SetSuccessorCache([]ringnode.Node{succ})
	}

	notifyArgs := struct {
		Node ringnode.Node `json:"node"`
	}{Node: self}
	if err := rpc.CallJSON(ctx, l.caller, succ, rpc.OpNotify, notifyArgs, nil); err != nil {
		l.log.Debug("stabilize_successors: notify failed", map[string]any{"successor": succ.Addr(), "error": err.Error()})
	}

	l.gcReplicas(ctx)
}

// gcReplicas drops any replica store whose owner this node no longer
// falls within the first SuccessorListSize successors of. A node holds
// replica(owner) exactly when it is one of owner's first R successors,
// which from this node's own side of the ring means owner is reachable
// by walking backward through predecessors: owner, owner's predecessor,
// and so on, up to R hops. computeReplicaOwners walks that chain live
// rather than trusting local state, since ringstate only ever tracks
// one immediate predecessor and the chain shifts as the ring reshapes.
func (l *Loops) gcReplicas(ctx context.Context) {
	if l.manager == nil {
		return
	}
	self := l.state.Self()
	keep := make(map[ringid.ID]bool)
	for _, owner := range l.computeReplicaOwners(ctx) {
		keep[owner] = true
	}
	for _, owner := range l.manager.Owners() {
		if owner == self.ID || keep[owner] {
			continue
		}
		l.manager.DeleteStore(owner)
	}
}

// computeReplicaOwners walks the predecessor chain backward starting
// from this node's own predecessor, up to SuccessorListSize hops, and
// returns every id visited. Those are exactly the owners whose replica
// this node is responsible for holding: each is within its own first
// SuccessorListSize successors precisely because this node sits that
// many hops forward of it on the ring. The walk stops early if it loops
// back on an id already seen (a ring too small to need that many hops)
// or a predecessor query fails.
func (l *Loops) computeReplicaOwners(ctx context.Context) []ringid.ID {
	owners := []ringid.ID{}
	current, ok := l.state.Predecessor()
	if !ok {
		return owners
	}
	seen := map[ringid.ID]bool{}
	for i := 0; i < l.cfg.SuccessorListSize && !seen[current.ID]; i++ {
		owners = append(owners, current.ID)
		seen[current.ID] = true

		var reply struct {
			Node ringnode.Node `json:"node"`
			Set  bool          `json:"set"`
		}
		if err := rpc.CallJSON(ctx, l.caller, current, rpc.OpPredecessor, struct{}{}, &reply); err != nil || !reply.Set {
			break
		}
		current = reply.Node
	}
	return owners
}

// stabilizePredecessors pings our predecessor and drops it if it no
// longer answers, so a dead predecessor doesn't keep the ownership of
// its key range forever.
func (l *Loops) stabilizePredecessors(ctx context.Context) {
	pred, ok := l.state.Predecessor()
	if !ok {
		return
	}
	if l.prober != nil && !l.prober.IsAlive(pred) {
		l.state.ClearPredecessor()
	}
}

// fixFingers refreshes one finger table entry per tick, advancing a
// cursor that wraps around the table, so a full refresh cycle spreads
// its FindSuccessor calls across many ticks instead of bursting all of
// them under one CallTimeout.
func (l *Loops) fixFingers(ctx context.Context) {
	self := l.state.Self()
	fingers := l.state.Fingers()
	if len(fingers) == 0 {
		return
	}
	i := l.fingerCursor % len(fingers)
	l.fingerCursor = (l.fingerCursor + 1) % len(fingers)

	start := l.state.FingerStart(i)
	succ, _, err := l.engine.FindSuccessor(ctx, start, 0)
	if err != nil {
		return
	}
	if succ.IsZero() {
		succ = self
	}
	l.state.SetFinger(i, succ)
}

// rejoin dials the configured seed and re-runs the join handshake, used
// both on the periodic tick and the moment the successor cache is
// discovered to be fully exhausted.
func (l *Loops) rejoin(ctx context.Context) {
	if l.cfg.SeedHost == "" {
		return
	}
	seed := ringnode.Node{Host: l.cfg.SeedHost, Port: l.cfg.SeedPort}
	self := l.state.Self()

	var reply struct {
		Node   ringnode.Node `json:"node"`
		HopOut int           `json:"hop_out"`
	}
	if err := rpc.CallJSON(ctx, l.caller, seed, rpc.OpFindSuccessor, struct {
		ID    ringid.ID `json:"id"`
		HopIn int       `json:"hop_in"`
	}{ID: self.ID, HopIn: 0}, &reply); err != nil {
		l.log.Warn("rejoin: seed unreachable", map[string]any{"seed": seed.Addr(), "error": err.Error()})
		return
	}

	l.state.SetSuccessorCache([]ringnode.Node{reply.Node})
	l.log.Info("rejoin: reattached to ring", map[string]any{"successor": reply.Node.Addr()})
}

// replicate pushes the store we are primary for (owner id == our own
// id) out to our first SuccessorListSize successors, so each carries a
// replica. Each target's push is version-aware: replicateTo checks
// where the target's replica already stands before deciding whether to
// skip it, ship only what changed, or force a full reseed.
func (l *Loops) replicate(ctx context.Context) {
	self := l.state.Self()
	full, ok := l.manager.Snapshot(self.ID)
	if !ok {
		return
	}

	targets := l.state.SuccessorCache()
	for _, target := range targets {
		if target == self {
			continue
		}
		l.replicateTo(ctx, target, full)
	}
}

// replicateTo compares target's replica version against our own before
// pushing anything: identical versions need no traffic at all, a target
// behind us gets only the keys that changed since its version (built
// from each key's version history), and a target somehow ahead of us
// means the two stores have diverged and gets deleted and reseeded from
// scratch, logged at warn since that divergence should not happen in
// normal operation.
func (l *Loops) replicateTo(ctx context.Context, target ringnode.Node, full store.Snapshot) {
	var versionReply struct {
		Version uint64 `json:"version"`
	}
	err := rpc.CallJSON(ctx, l.caller, target, rpc.OpGetStoreVersion, struct {
		Owner ringid.ID `json:"owner"`
	}{Owner: full.Owner}, &versionReply)

	var remoteVersion uint64
	switch {
	case err == nil:
		remoteVersion = versionReply.Version
	case errors.Is(err, ringerr.ErrStoreNotFound):
		remoteVersion = 0
	default:
		l.log.Debug("replicate: version query failed", map[string]any{"target": target.Addr(), "error": err.Error()})
		return
	}

	if remoteVersion == full.Version {
		return
	}

	if remoteVersion > full.Version {
		l.log.Warn("replicate: replica ahead of primary, forcing full reseed", map[string]any{
			"target": target.Addr(), "owner": full.Owner.String(), "remote_version": remoteVersion, "local_version": full.Version,
		})
		l.reseed(ctx, target, full)
		return
	}

	delta := deltaSince(full, remoteVersion)
	if err := l.pushSnapshot(ctx, target, delta, true); errors.Is(err, ringerr.ErrVersionRegressed) {
		l.log.Warn("replicate: replica reported version regression, forcing full reseed", map[string]any{"target": target.Addr(), "owner": full.Owner.String()})
		l.reseed(ctx, target, full)
	}
}

// reseed deletes target's existing replica outright and pushes the full
// snapshot behind it, the recovery path for any protocol inconsistency
// between a replica's reported version and what its history can explain.
func (l *Loops) reseed(ctx context.Context, target ringnode.Node, full store.Snapshot) {
	if err := rpc.CallJSON(ctx, l.caller, target, rpc.OpDeleteStore, struct {
		Owner ringid.ID `json:"owner"`
	}{Owner: full.Owner}, nil); err != nil {
		l.log.Debug("replicate: delete_store before reseed failed", map[string]any{"target": target.Addr(), "error": err.Error()})
	}
	l.pushSnapshot(ctx, target, full, false)
}

func (l *Loops) pushSnapshot(ctx context.Context, target ringnode.Node, snap store.Snapshot, delta bool) error {
	snap.Delta = delta
	err := rpc.CallJSON(ctx, l.caller, target, rpc.OpReplicateIn, snap, nil)
	if err != nil && !errors.Is(err, ringerr.ErrVersionRegressed) {
		l.log.Debug("replicate: push failed", map[string]any{"target": target.Addr(), "error": err.Error()})
	}
	return err
}

// deltaSince builds a partial snapshot carrying only the keys whose
// history records a version greater than remoteVersion, the set of
// writes a replica pinned at remoteVersion hasn't seen yet.
func deltaSince(full store.Snapshot, remoteVersion uint64) store.Snapshot {
	entries := make(map[string]store.Entry)
	history := make(map[string][]uint64)
	for k, versions := range full.History {
		for _, v := range versions {
			if v > remoteVersion {
				entries[k] = full.Entries[k]
				history[k] = versions
				break
			}
		}
	}
	return store.Snapshot{Owner: full.Owner, Version: full.Version, Entries: entries, History: history}
}
