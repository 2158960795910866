package ringid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Test_InRangeHalfOpenRight_Exhaustive checks the orientation symmetry
// across a small identifier space: exactly one of f(id,start,end) and
// f(id,end,start) holds, and both hold iff start==end or id==start==end.
func Test_InRangeHalfOpenRight_Exhaustive(t *testing.T) {
	const upper = 1 << 8 // treat the low byte as the whole ring for this test

	for start := 0; start < upper; start++ {
		for end := 0; end < upper; end++ {
			for id := 0; id < upper; id++ {
				a := InRangeHalfOpenRight(ID(id), ID(start), ID(end))
				b := InRangeHalfOpenRight(ID(id), ID(end), ID(start))

				if start == end {
					require.True(t, a, "start==end must match every id")
					require.True(t, b, "start==end must match every id (swapped)")
					continue
				}

				require.True(t, a != b || (id == start && start == end),
					"exactly one of the two orientations should hold for id=%d start=%d end=%d", id, start, end)
			}
		}
	}
}

func Test_InRangeHalfOpenRight_NoWrap(t *testing.T) {
	require.True(t, InRangeHalfOpenRight(5, 0, 10))
	require.False(t, InRangeHalfOpenRight(0, 0, 10))
	require.True(t, InRangeHalfOpenRight(10, 0, 10))
	require.False(t, InRangeHalfOpenRight(11, 0, 10))
}

func Test_InRangeHalfOpenRight_Wrap(t *testing.T) {
	// arc (250, 10] on an 8-bit ring wraps through 0
	require.True(t, InRangeHalfOpenRight(255, 250, 10))
	require.True(t, InRangeHalfOpenRight(0, 250, 10))
	require.True(t, InRangeHalfOpenRight(5, 250, 10))
	require.False(t, InRangeHalfOpenRight(100, 250, 10))
	require.False(t, InRangeHalfOpenRight(250, 250, 10))
}

func Test_InOpenRange_SingletonEdgePolicy(t *testing.T) {
	// A node with no known peers must still report every id as being in
	// the open range so find_closest_preceding_finger can advance.
	require.True(t, InOpenRange(42, 7, 7))
}

func Test_InOpenRange_ExcludesEndpoints(t *testing.T) {
	require.False(t, InOpenRange(0, 0, 10))
	require.False(t, InOpenRange(10, 0, 10))
	require.True(t, InOpenRange(5, 0, 10))
}

func Test_InOpenRange_Wrap(t *testing.T) {
	require.True(t, InOpenRange(255, 250, 10))
	require.True(t, InOpenRange(0, 250, 10))
	require.False(t, InOpenRange(250, 250, 10))
	require.False(t, InOpenRange(10, 250, 10))
}

func Test_HashNode_Deterministic(t *testing.T) {
	a := HashNode("127.0.0.1", 9000)
	b := HashNode("127.0.0.1", 9000)
	require.Equal(t, a, b)

	c := HashNode("127.0.0.1", 9001)
	require.NotEqual(t, a, c)
}

func Test_HashKey_Deterministic(t *testing.T) {
	a := HashKey([]byte("hello"))
	b := HashKey([]byte("hello"))
	require.Equal(t, a, b)
}

func Test_Pow2(t *testing.T) {
	require.Equal(t, ID(1), Pow2(0))
	require.Equal(t, ID(2), Pow2(1))
	require.Equal(t, ID(1)<<63, Pow2(63))
}
