// Package ringid implements the modular identifier arithmetic that every
// other ring component builds on: the M-bit identifier space, the two
// range predicates used by lookup and stabilization, and the node/key
// hash functions.
package ringid

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

// Bits is the width of the identifier space, M in the ring arithmetic.
// M is fixed at 64, so an ID fits exactly in a uint64 and arithmetic
// wraps for free on overflow.
const Bits = 64

// ID is a point on the ring, 0 <= ID < 2^Bits.
type ID uint64

// Pow2 returns 2^i as an ID, i in [0, Bits).
func Pow2(i int) ID {
	return ID(uint64(1) << uint(i))
}

// Add returns (id + offset) mod 2^Bits. Go's unsigned overflow already
// wraps correctly, so this is plain addition.
func (id ID) Add(offset ID) ID {
	return id + offset
}

func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// InRangeHalfOpenRight reports whether id falls in the arc (start, end]
// going clockwise around the ring. When start == end the arc is defined
// to be the whole ring, so every id matches. When start > end the arc
// wraps through 0.
func InRangeHalfOpenRight(id, start, end ID) bool {
	if start == end {
		return true
	}
	if start < end {
		return id > start && id <= end
	}
	return id > start || id <= end
}

// InOpenRange reports whether id falls in the open arc (start, end)
// going clockwise around the ring. When start == end the arc is defined
// to be the whole ring, so that a node with no other known peers still
// advances a lookup instead of refusing to answer. When start > end the
// arc wraps.
func InOpenRange(id, start, end ID) bool {
	if start == end {
		return true
	}
	if start < end {
		return id > start && id < end
	}
	return id > start || id < end
}

// HashNode derives a node identifier from its (host, port) address.
// Truncated SHA-1 is the typical choice for this kind of ring identifier;
// see DESIGN.md for why this stays on the standard library instead of
// reaching for a third-party hash.
func HashNode(host string, port uint16) ID {
	return hashBytes([]byte(fmt.Sprintf("%s:%d", host, port)))
}

// HashKey derives a key identifier from an opaque key name.
func HashKey(key []byte) ID {
	return hashBytes(key)
}

func hashBytes(b []byte) ID {
	sum := sha1.Sum(b)
	return ID(binary.BigEndian.Uint64(sum[:8]))
}
