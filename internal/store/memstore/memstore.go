// Package memstore implements store.Backend entirely in memory, the
// default StoreBackendMemory.
package memstore

import (
	"sync"

	"ringd/internal/ringid"
	"ringd/internal/store"
)

type versioned struct {
	value   []byte
	history []uint64
}

// Store is an in-memory, mutex-guarded store.Backend.
type Store struct {
	mu      sync.RWMutex
	entries map[string]versioned
	version uint64
}

// New builds an empty Store. owner is accepted to satisfy
// store.Factory's shape; memstore keeps no reference to it, since the
// owner id is only needed when producing a Snapshot.
func New(owner ringid.ID) store.Backend {
	return &Store{entries: make(map[string]versioned)}
}

func (s *Store) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok
}

func (s *Store) Get(key string) (store.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	if !ok {
		return store.Entry{}, false
	}
	return store.Entry{Value: v.value, Version: v.history[len(v.history)-1]}, true
}

// Put writes value under key, overwriting any prior value for that key
// while appending the new version to that key's history and advancing
// the store's overall version counter.
func (s *Store) Put(key string, value []byte) store.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	v := s.entries[key]
	v.value = value
	v.history = append(v.history, s.version)
	s.entries[key] = v
	return store.Entry{Value: value, Version: s.version}
}

func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	s.version++
	return true
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]versioned)
	s.version++
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	return out
}

func (s *Store) VersionNumber() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// VersionHistory returns the sequence of store-version numbers key was
// written at, oldest first. A key never written returns a single [0]
// entry, an explicit zero-version bootstrap so a key's history is never
// empty even before its first write.
func (s *Store) VersionHistory(key string) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	if !ok {
		return []uint64{0}
	}
	out := make([]uint64, len(v.history))
	copy(out, v.history)
	return out
}

func (s *Store) Snapshot(owner ringid.ID) store.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make(map[string]store.Entry, len(s.entries))
	history := make(map[string][]uint64, len(s.entries))
	for k, v := range s.entries {
		entries[k] = store.Entry{Value: v.value, Version: v.history[len(v.history)-1]}
		h := make([]uint64, len(v.history))
		copy(h, v.history)
		history[k] = h
	}
	return store.Snapshot{Owner: owner, Version: s.version, Entries: entries, History: history}
}

func (s *Store) ReplaceFrom(snap store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make(map[string]versioned, len(snap.Entries))
	for k, e := range snap.Entries {
		h := snap.History[k]
		if len(h) == 0 {
			h = []uint64{e.Version}
		}
		entries[k] = versioned{value: e.Value, history: h}
	}
	s.entries = entries
	s.version = snap.Version
}

// MergeFrom upserts snap's entries into the existing store, leaving
// every key snap doesn't mention untouched, and advances the store's
// version to snap's if that's newer. Used for delta replication, where
// snap carries only the keys that changed since the replica's last
// known version rather than the owner's whole key space.
func (s *Store) MergeFrom(snap store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range snap.Entries {
		h := snap.History[k]
		if len(h) == 0 {
			h = []uint64{e.Version}
		}
		hc := make([]uint64, len(h))
		copy(hc, h)
		s.entries[k] = versioned{value: e.Value, history: hc}
	}
	if snap.Version > s.version {
		s.version = snap.Version
	}
}
