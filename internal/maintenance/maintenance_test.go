package maintenance

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ringd/internal/lookup"
	"ringd/internal/ringcfg"
	"ringd/internal/ringid"
	"ringd/internal/ringnode"
	"ringd/internal/ringstate"
	"ringd/internal/rpc"
	"ringd/internal/store"
	"ringd/internal/store/memstore"
)

func node(id int, port int) ringnode.Node {
	return ringnode.Node{ID: ringid.ID(id), Host: "127.0.0.1", Port: uint16(port)}
}

// scriptedCaller replies to each Op with a canned JSON payload,
// recording every call it receives for assertions. predecessorOf
// overrides the OpPredecessor reply per target id, for tests that walk
// a multi-hop predecessor chain rather than querying a single node.
type scriptedCaller struct {
	replies       map[rpc.Op]any
	predecessorOf map[ringid.ID]ringnode.Node
	calls         []rpc.Op
}

func (c *scriptedCaller) Call(ctx context.Context, target ringnode.Node, op rpc.Op, args any) (json.RawMessage, error) {
	c.calls = append(c.calls, op)

	if op == rpc.OpPredecessor && c.predecessorOf != nil {
		pred, ok := c.predecessorOf[target.ID]
		raw, err := json.Marshal(struct {
			Node ringnode.Node `json:"node"`
			Set  bool          `json:"set"`
		}{Node: pred, Set: ok})
		return raw, err
	}

	reply, ok := c.replies[op]
	if !ok {
		return json.RawMessage(`{}`), nil
	}
	raw, err := json.Marshal(reply)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func Test_StabilizeSuccessors_AdoptsCloserPredecessorAndNotifies(t *testing.T) {
	self := node(10, 9000)
	succ := node(30, 9001)
	closer := node(20, 9002)

	st := ringstate.New(self, 3, 8)
	st.SetSuccessorCache([]ringnode.Node{succ})

	caller := &scriptedCaller{replies: map[rpc.Op]any{
		rpc.OpPredecessor: struct {
			Node ringnode.Node `json:"node"`
			Set  bool          `json:"set"`
		}{Node: closer, Set: true},
	}}

	cfg := ringcfg.DefaultConfig()
	l := New(st, nil, caller, nil, nil, cfg, nil)
	l.stabilizeSuccessors(context.Background())

	require.Equal(t, closer, st.SuccessorCache()[0])
	require.Contains(t, caller.calls, rpc.OpNotify)
}

func Test_StabilizePredecessors_ClearsDeadPredecessor(t *testing.T) {
	self := node(10, 9000)
	pred := node(5, 9001)
	st := ringstate.New(self, 3, 8)
	st.SetPredecessor(pred)

	deadProber := deadProber{}
	cfg := ringcfg.DefaultConfig()
	l := New(st, nil, &scriptedCaller{}, deadProber, nil, cfg, nil)
	l.stabilizePredecessors(context.Background())

	_, ok := st.Predecessor()
	require.False(t, ok)
}

type deadProber struct{}

func (deadProber) IsAlive(ringnode.Node) bool { return false }

func Test_Rejoin_ReattachesToSeed(t *testing.T) {
	self := node(10, 9000)
	seed := node(1, 9002)
	newSucc := node(20, 9003)

	st := ringstate.New(self, 3, 8)
	caller := &scriptedCaller{replies: map[rpc.Op]any{
		rpc.OpFindSuccessor: struct {
			Node   ringnode.Node `json:"node"`
			HopOut int           `json:"hop_out"`
		}{Node: newSucc, HopOut: 1},
	}}

	cfg := ringcfg.DefaultConfig()
	cfg.SeedHost = seed.Host
	cfg.SeedPort = seed.Port

	l := New(st, nil, caller, nil, nil, cfg, nil)
	l.rejoin(context.Background())

	require.Equal(t, newSucc, st.SuccessorCache()[0])
}

func Test_GCReplicas_KeepsOwnersOnPredecessorChainDropsTheRest(t *testing.T) {
	self := node(50, 9000)
	p40 := node(40, 9001)
	p30 := node(30, 9002)
	p20 := node(20, 9003)
	p10 := node(10, 9004)

	st := ringstate.New(self, 3, 8)
	st.SetPredecessor(p40)

	// chain walks 40 -> 30 -> 20 -> 10, but SuccessorListSize=3 caps the
	// walk at three hops, so 10 is never visited and isn't kept.
	caller := &scriptedCaller{predecessorOf: map[ringid.ID]ringnode.Node{
		p40.ID: p30,
		p30.ID: p20,
		p20.ID: p10,
	}}

	manager := store.NewManager(memstore.New, nil)
	manager.AddKey(self.ID, "k", []byte("v")) // self's own primary, always kept
	manager.AddKey(p40.ID, "k", []byte("v"))  // immediate predecessor, kept
	manager.AddKey(p30.ID, "k", []byte("v"))  // two hops back, kept
	manager.AddKey(p20.ID, "k", []byte("v"))  // three hops back, kept
	manager.AddKey(p10.ID, "k", []byte("v"))  // four hops back, dropped

	cfg := ringcfg.DefaultConfig()
	cfg.SuccessorListSize = 3
	l := New(st, nil, caller, nil, manager, cfg, nil)
	l.gcReplicas(context.Background())

	owners := manager.Owners()
	require.Contains(t, owners, self.ID)
	require.Contains(t, owners, p40.ID)
	require.Contains(t, owners, p30.ID)
	require.Contains(t, owners, p20.ID)
	require.NotContains(t, owners, p10.ID)
}

func Test_Replicate_PushesToSuccessorBehindUs(t *testing.T) {
	self := node(10, 9000)
	succ := node(20, 9001)
	st := ringstate.New(self, 3, 8)
	st.SetSuccessorCache([]ringnode.Node{succ})

	manager := store.NewManager(memstore.New, nil)
	manager.AddKey(self.ID, "k", []byte("v"))

	// default reply for OpGetStoreVersion is the zero value (version 0),
	// behind our local version of 1, so replicate should push a delta.
	caller := &scriptedCaller{}
	cfg := ringcfg.DefaultConfig()
	l := New(st, nil, caller, nil, manager, cfg, nil)
	l.replicate(context.Background())

	require.Contains(t, caller.calls, rpc.OpGetStoreVersion)
	require.Contains(t, caller.calls, rpc.OpReplicateIn)
}

func Test_Replicate_SkipsSuccessorAlreadyInSync(t *testing.T) {
	self := node(10, 9000)
	succ := node(20, 9001)
	st := ringstate.New(self, 3, 8)
	st.SetSuccessorCache([]ringnode.Node{succ})

	manager := store.NewManager(memstore.New, nil)
	manager.AddKey(self.ID, "k", []byte("v"))
	full, _ := manager.Snapshot(self.ID)

	caller := &scriptedCaller{replies: map[rpc.Op]any{
		rpc.OpGetStoreVersion: struct {
			Version uint64 `json:"version"`
		}{Version: full.Version},
	}}
	cfg := ringcfg.DefaultConfig()
	l := New(st, nil, caller, nil, manager, cfg, nil)
	l.replicate(context.Background())

	require.Contains(t, caller.calls, rpc.OpGetStoreVersion)
	require.NotContains(t, caller.calls, rpc.OpReplicateIn)
}

func Test_Replicate_ReseedsSuccessorAheadOfUs(t *testing.T) {
	self := node(10, 9000)
	succ := node(20, 9001)
	st := ringstate.New(self, 3, 8)
	st.SetSuccessorCache([]ringnode.Node{succ})

	manager := store.NewManager(memstore.New, nil)
	manager.AddKey(self.ID, "k", []byte("v"))
	full, _ := manager.Snapshot(self.ID)

	caller := &scriptedCaller{replies: map[rpc.Op]any{
		rpc.OpGetStoreVersion: struct {
			Version uint64 `json:"version"`
		}{Version: full.Version + 1},
	}}
	cfg := ringcfg.DefaultConfig()
	l := New(st, nil, caller, nil, manager, cfg, nil)
	l.replicate(context.Background())

	require.Contains(t, caller.calls, rpc.OpDeleteStore)
	require.Contains(t, caller.calls, rpc.OpReplicateIn)
}

func Test_FixFingers_RefreshesOneEntryPerTickRoundRobin(t *testing.T) {
	self := node(10, 9000)
	st := ringstate.New(self, 3, 4) // small finger table for a fast test
	caller := &scriptedCaller{}
	engine := lookup.New(st, caller, nil, nil)

	cfg := ringcfg.DefaultConfig()
	l := New(st, engine, caller, nil, nil, cfg, nil)

	for i := 0; i < 4; i++ {
		_, ok := st.Finger(i)
		require.False(t, ok, "finger %d should be unset before any tick", i)
		l.fixFingers(context.Background())
		_, ok = st.Finger(i)
		require.True(t, ok, "finger %d should be refreshed by tick %d", i, i)
	}

	// cursor wraps back to 0 on the fifth tick.
	require.Equal(t, 0, l.fingerCursor)
}

func Test_StartStop_TerminatesPromptly(t *testing.T) {
	self := node(10, 9000)
	st := ringstate.New(self, 3, 8)
	caller := &scriptedCaller{}
	cfg := ringcfg.DefaultConfig()
	cfg.StabilizeSuccessorsPeriod = time.Hour
	cfg.StabilizePredecessorsPeriod = time.Hour
	cfg.FixFingersPeriod = time.Hour
	cfg.RejoinPeriod = time.Hour
	cfg.ReplicatePeriod = time.Hour

	l := New(st, nil, caller, nil, store.NewManager(memstore.New, nil), cfg, nil)
	l.Start()

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}
}
