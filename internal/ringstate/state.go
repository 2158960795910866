// Package ringstate holds per-node routing state: predecessor, successor
// cache, and finger table. Every field is guarded by its own mutex so a
// long remote call made while holding a copy never blocks an unrelated
// field's reader or writer.
package ringstate

import (
	"sync"

	"ringd/internal/ringid"
	"ringd/internal/ringnode"
)

// Prober checks whether a cached node is still reachable. Successor()
// uses it to scan past dead entries. The concrete implementation lives
// in internal/rpc so ringstate has no transport dependency.
type Prober interface {
	IsAlive(n ringnode.Node) bool
}

// State is the routing state of a single ring node.
type State struct {
	self ringnode.Node

	predMu sync.RWMutex
	pred   *ringnode.Node // nil means absent

	succMu  sync.RWMutex
	succs   []ringnode.Node // exactly cap entries, index 0 is the immediate successor
	cap     int

	fingerMu sync.RWMutex
	fingers  []ringnode.Node // exactly bits entries; zero Node means unset

	rejoinMu sync.Mutex
	rejoin   chan struct{} // signaled (non-blocking) when the successor cache is fully exhausted
}

// New creates routing state for self with a successor cache of size
// succListSize and a finger table of width fingerBits, both initialized
// to the singleton-ring shape (every slot is self).
func New(self ringnode.Node, succListSize, fingerBits int) *State {
	succs := make([]ringnode.Node, succListSize)
	for i := range succs {
		succs[i] = self
	}
	return &State{
		self:    self,
		succs:   succs,
		cap:     succListSize,
		fingers: make([]ringnode.Node, fingerBits),
		rejoin:  make(chan struct{}, 1),
	}
}

// Self returns the node this state belongs to.
func (s *State) Self() ringnode.Node {
	return s.self
}

// Predecessor returns the current predecessor and whether one is set.
func (s *State) Predecessor() (ringnode.Node, bool) {
	s.predMu.RLock()
	defer s.predMu.RUnlock()
	if s.pred == nil {
		return ringnode.Node{}, false
	}
	return *s.pred, true
}

// SetPredecessor sets the predecessor pointer.
func (s *State) SetPredecessor(n ringnode.Node) {
	s.predMu.Lock()
	defer s.predMu.Unlock()
	cp := n
	s.pred = &cp
}

// ClearPredecessor drops the predecessor pointer, used by
// StabilizePredecessors on repeated ping failure.
func (s *State) ClearPredecessor() {
	s.predMu.Lock()
	defer s.predMu.Unlock()
	s.pred = nil
}

// SuccessorCache returns a snapshot copy of the successor cache.
func (s *State) SuccessorCache() []ringnode.Node {
	s.succMu.RLock()
	defer s.succMu.RUnlock()
	out := make([]ringnode.Node, len(s.succs))
	copy(out, s.succs)
	return out
}

// SetSuccessorCache replaces the successor cache, deduplicating by id
// while keeping the order of list, truncating to the configured size, and
// padding a short list with self. The order is taken from list as given;
// it is not re-sorted clockwise.
func (s *State) SetSuccessorCache(list []ringnode.Node) {
	s.succMu.Lock()
	defer s.succMu.Unlock()
	s.succs = dedupeTruncate(list, s.cap, s.self)
}

// Successor returns the first reachable entry of the successor cache,
// promoting it to position 0 and moving the entries ahead of it back by
// one slot. Entries equal to self (the padding of a short cache) are
// skipped. If every other cached entry fails the liveness probe,
// Successor falls back to self (ring-of-one) and signals that a rejoin
// is needed; a cache holding only self returns self without signaling.
func (s *State) Successor(probe Prober) ringnode.Node {
	s.succMu.Lock()
	defer s.succMu.Unlock()

	sawDead := false
	for i, n := range s.succs {
		if n == s.self {
			continue
		}
		if probe == nil || probe.IsAlive(n) {
			if i != 0 {
				promoted := make([]ringnode.Node, 0, len(s.succs))
				promoted = append(promoted, n)
				promoted = append(promoted, s.succs[:i]...)
				promoted = append(promoted, s.succs[i+1:]...)
				s.succs = dedupeTruncate(promoted, s.cap, s.self)
			}
			return n
		}
		sawDead = true
	}

	// Every cached successor is dead: fall back to self and flag rejoin.
	s.succs = dedupeTruncate([]ringnode.Node{s.self}, s.cap, s.self)
	if sawDead {
		s.signalRejoin()
	}
	return s.self
}

// NeedsRejoin returns a channel that receives a value (non-blocking,
// best-effort) whenever the successor cache collapses to self-only.
// The rejoin maintenance loop selects on it in addition to its own
// ticker.
func (s *State) NeedsRejoin() <-chan struct{} {
	s.rejoinMu.Lock()
	defer s.rejoinMu.Unlock()
	return s.rejoin
}

func (s *State) signalRejoin() {
	select {
	case s.rejoin <- struct{}{}:
	default:
	}
}

// Finger returns finger table entry i and whether it has ever been set.
func (s *State) Finger(i int) (ringnode.Node, bool) {
	s.fingerMu.RLock()
	defer s.fingerMu.RUnlock()
	n := s.fingers[i]
	return n, !n.IsZero()
}

// SetFinger updates finger table entry i.
func (s *State) SetFinger(i int, n ringnode.Node) {
	s.fingerMu.Lock()
	defer s.fingerMu.Unlock()
	s.fingers[i] = n
}

// Fingers returns a snapshot copy of the whole finger table in index
// order (entry 0, the closest, first); find_closest_preceding_finger
// scans the copy from the last index down.
func (s *State) Fingers() []ringnode.Node {
	s.fingerMu.RLock()
	defer s.fingerMu.RUnlock()
	out := make([]ringnode.Node, len(s.fingers))
	copy(out, s.fingers)
	return out
}

// FingerStart returns self.id + 2^i, the target id finger entry i caches
// the successor of.
func (s *State) FingerStart(i int) ringid.ID {
	return s.self.ID.Add(ringid.Pow2(i))
}

func dedupeTruncate(list []ringnode.Node, capSize int, self ringnode.Node) []ringnode.Node {
	seen := make(map[ringid.ID]bool, len(list))
	out := make([]ringnode.Node, 0, capSize)
	for _, n := range list {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
		if len(out) == capSize {
			break
		}
	}
	for len(out) < capSize {
		out = append(out, self)
	}
	return out
}
