// Package node wires the ring components into a single running
// participant: Join/Depart lifecycle, the HTTP front-end that serves
// the wire protocol, and graceful shutdown on SIGINT/SIGTERM via a
// stop channel and http.Server.Shutdown.
package node

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ringd/internal/lookup"
	"ringd/internal/logging"
	"ringd/internal/maintenance"
	"ringd/internal/ringcfg"
	"ringd/internal/ringerr"
	"ringd/internal/ringid"
	"ringd/internal/ringnode"
	"ringd/internal/ringstate"
	"ringd/internal/rpc"
	"ringd/internal/rpc/httprpc"
	"ringd/internal/store"
	"ringd/internal/store/filestore"
	"ringd/internal/store/memstore"
)

// Node is one running ring participant.
type Node struct {
	cfg *ringcfg.Config
	log *logging.Logger

	state   *ringstate.State
	engine  *lookup.Engine
	caller  rpc.Caller
	prober  ringstate.Prober
	manager *store.Manager
	loops   *maintenance.Loops

	mu     sync.Mutex
	ln     net.Listener
	httpSrv *http.Server
}

// New assembles a Node from cfg but does not yet bind a listener or
// join a ring; call Start for that.
func New(cfg *ringcfg.Config, log *logging.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	}

	self := ringnode.Node{ID: ringid.HashNode(cfg.Host, cfg.Port), Host: cfg.Host, Port: cfg.Port}
	state := ringstate.New(self, cfg.SuccessorListSize, cfg.FingerBits)

	transport := httprpc.New(cfg.CallTimeout)
	caller := rpc.WithRetry(transport, cfg.RetryBudget, log)
	prober := rpc.LivenessProber{Caller: caller}

	engine := lookup.New(state, caller, prober, log)

	var factory store.Factory
	switch cfg.StoreBackend {
	case ringcfg.StoreBackendFile:
		factory = filestore.NewFactory(cfg.FileStoreRoot)
	default:
		factory = memstore.New
	}
	manager := store.NewManager(factory, log)

	loops := maintenance.New(state, engine, caller, prober, manager, cfg, log)

	return &Node{
		cfg:     cfg,
		log:     log,
		state:   state,
		engine:  engine,
		caller:  caller,
		prober:  prober,
		manager: manager,
		loops:   loops,
	}, nil
}

// Self returns this node's (id, host, port) triple.
func (n *Node) Self() ringnode.Node { return n.state.Self() }

// Start binds the HTTP listener (resolving an ephemeral Port == 0 to
// whatever the OS assigns), joins the ring, and starts the maintenance
// loops. It returns once the node is serving; Run calls Start and then
// blocks until SIGINT/SIGTERM.
func (n *Node) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port))
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}
	n.mu.Lock()
	n.ln = ln
	n.mu.Unlock()

	actualPort := uint16(ln.Addr().(*net.TCPAddr).Port)
	if actualPort != n.cfg.Port {
		n.rebind(actualPort)
	}

	n.httpSrv = &http.Server{Handler: n.mux()}
	go func() {
		if err := n.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			n.log.Error(err, "http server exited unexpectedly", nil)
		}
	}()

	if err := n.Join(ctx); err != nil {
		return err
	}
	n.loops.Start()
	n.log.Info("node started", map[string]any{"node": n.Self().String()})
	return nil
}

// rebind recomputes this node's id after the OS assigns an ephemeral
// port, since the id is derived from (host, port).
func (n *Node) rebind(port uint16) {
	n.cfg.Port = port
	self := ringnode.Node{ID: ringid.HashNode(n.cfg.Host, port), Host: n.cfg.Host, Port: port}
	n.state = ringstate.New(self, n.cfg.SuccessorListSize, n.cfg.FingerBits)
	n.engine = lookup.New(n.state, n.caller, n.prober, n.log)
	n.loops = maintenance.New(n.state, n.engine, n.caller, n.prober, n.manager, n.cfg, n.log)
}

// Join starts a singleton ring when no seed is configured (the
// zero-value routing state New already produces one); otherwise it asks
// the seed to resolve our own id and adopts the result as our first
// successor.
func (n *Node) Join(ctx context.Context) error {
	if n.cfg.SeedHost == "" {
		n.log.Info("joining as singleton ring", nil)
		return nil
	}

	self := n.Self()
	seed := ringnode.Node{Host: n.cfg.SeedHost, Port: n.cfg.SeedPort}

	var reply struct {
		Node   ringnode.Node `json:"node"`
		HopOut int            `json:"hop_out"`
	}
	err := rpc.CallJSON(ctx, n.caller, seed, rpc.OpFindSuccessor, struct {
		ID    ringid.ID `json:"id"`
		HopIn int       `json:"hop_in"`
	}{ID: self.ID, HopIn: 0}, &reply)
	if err != nil {
		return fmt.Errorf("%w: %s", ringerr.ErrSeedUnreachable, err)
	}

	n.state.SetSuccessorCache([]ringnode.Node{reply.Node})
	n.log.Info("joined ring via seed", map[string]any{"seed": seed.Addr(), "successor": reply.Node.Addr()})
	return nil
}

// Depart pushes this node's primary store to its successor and sends the
// successor a notify naming this node's predecessor, then stops the
// maintenance loops and the HTTP server. The successor handles that
// notify under its ordinary rule, which accepts the named node only if
// the successor has no predecessor or the node lies between its current
// predecessor and itself; while this node is still the successor's
// recorded predecessor the named node is not adopted. The predecessor is
// not told about the successor.
func (n *Node) Depart(ctx context.Context) error {
	self := n.Self()
	succ := n.state.Successor(n.prober)
	pred, hasPred := n.state.Predecessor()

	if succ != self {
		if snap, ok := n.manager.Snapshot(self.ID); ok {
			if err := rpc.CallJSON(ctx, n.caller, succ, rpc.OpReplicateIn, snap, nil); err != nil {
				n.log.Warn("depart: failed to hand off store to successor", map[string]any{"error": err.Error()})
			}
		}
		if hasPred {
			args := struct {
				Node ringnode.Node `json:"node"`
			}{Node: pred}
			if err := rpc.CallJSON(ctx, n.caller, succ, rpc.OpNotify, args, nil); err != nil {
				n.log.Warn("depart: failed to notify successor of predecessor", map[string]any{"error": err.Error()})
			}
		}
	}

	n.loops.Stop()

	n.mu.Lock()
	srv := n.httpSrv
	n.mu.Unlock()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
	}
	n.log.Info("node departed", map[string]any{"node": self.String()})
	return nil
}

// Run starts the node and blocks until SIGINT/SIGTERM, then departs
// gracefully — the lifecycle cmd/ringd's start command drives.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	departCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return n.Depart(departCtx)
}

// Snapshot is a point-in-time view of this node's routing state, the
// introspection surface exposed over /rpc/snapshot and used by
// cmd/ringd's info subcommand.
type Snapshot struct {
	Self          ringnode.Node   `json:"self"`
	Predecessor   *ringnode.Node  `json:"predecessor,omitempty"`
	Successors    []ringnode.Node `json:"successors"`
	Fingers       []ringnode.Node `json:"fingers"`
	OwnedStores   []ringid.ID     `json:"owned_stores"`
}

// Snapshot captures the node's current routing state for introspection.
func (n *Node) Snapshot() Snapshot {
	snap := Snapshot{
		Self:        n.Self(),
		Successors:  n.state.SuccessorCache(),
		Fingers:     n.state.Fingers(),
		OwnedStores: n.manager.Owners(),
	}
	if pred, ok := n.state.Predecessor(); ok {
		snap.Predecessor = &pred
	}
	return snap
}
