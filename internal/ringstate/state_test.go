package ringstate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ringd/internal/ringid"
	"ringd/internal/ringnode"
)

func node(id int, port int) ringnode.Node {
	return ringnode.Node{ID: ringid.ID(id), Host: "127.0.0.1", Port: uint16(port)}
}

type fakeProber struct {
	dead map[ringnode.Node]bool
}

func (f fakeProber) IsAlive(n ringnode.Node) bool {
	return !f.dead[n]
}

func Test_New_SingletonRing(t *testing.T) {
	self := node(100, 9000)
	st := New(self, 3, 8)

	_, ok := st.Predecessor()
	require.False(t, ok)

	for _, n := range st.SuccessorCache() {
		require.Equal(t, self, n)
	}

	got := st.Successor(nil)
	require.Equal(t, self, got)
}

func Test_SetPredecessor_ClearPredecessor(t *testing.T) {
	self := node(100, 9000)
	st := New(self, 3, 8)

	p := node(50, 9001)
	st.SetPredecessor(p)
	got, ok := st.Predecessor()
	require.True(t, ok)
	require.Equal(t, p, got)

	st.ClearPredecessor()
	_, ok = st.Predecessor()
	require.False(t, ok)
}

func Test_Successor_PromotesFirstAlive(t *testing.T) {
	self := node(10, 9000)
	a := node(20, 9001)
	b := node(30, 9002)
	st := New(self, 3, 8)
	st.SetSuccessorCache([]ringnode.Node{a, b, self})

	probe := fakeProber{dead: map[ringnode.Node]bool{a: true}}
	got := st.Successor(probe)
	require.Equal(t, b, got)

	// b should now be promoted to index 0
	require.Equal(t, b, st.SuccessorCache()[0])
}

func Test_Successor_FallsBackToSelfWhenAllDead(t *testing.T) {
	self := node(10, 9000)
	a := node(20, 9001)
	b := node(30, 9002)
	st := New(self, 3, 8)
	st.SetSuccessorCache([]ringnode.Node{a, b})

	probe := fakeProber{dead: map[ringnode.Node]bool{a: true, b: true}}
	got := st.Successor(probe)
	require.Equal(t, self, got)

	select {
	case <-st.NeedsRejoin():
	default:
		t.Fatal("expected rejoin to be signaled when successor cache is exhausted")
	}
}

func Test_SetSuccessorCache_DedupesAndTruncates(t *testing.T) {
	self := node(10, 9000)
	a := node(20, 9001)
	st := New(self, 2, 8)

	st.SetSuccessorCache([]ringnode.Node{a, a, a})
	cache := st.SuccessorCache()
	require.Len(t, cache, 2)
	require.Equal(t, a, cache[0])
	require.Equal(t, self, cache[1]) // padded with self to reach cap
}

func Test_FingerTable_SetAndGet(t *testing.T) {
	self := node(10, 9000)
	st := New(self, 3, 8)

	_, ok := st.Finger(0)
	require.False(t, ok)

	n := node(20, 9001)
	st.SetFinger(0, n)
	got, ok := st.Finger(0)
	require.True(t, ok)
	require.Equal(t, n, got)
}

func Test_FingerStart(t *testing.T) {
	self := node(10, 9000)
	st := New(self, 3, 8)
	require.Equal(t, self.ID.Add(1), st.FingerStart(0))
	require.Equal(t, self.ID.Add(2), st.FingerStart(1))
}
