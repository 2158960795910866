// Package filestore implements store.Backend on disk: one directory per
// owner id, one zstd-compressed blob file per key, and a JSON index
// tracking each key's version history. This is StoreBackendFile, for
// operators who want storage to survive a node restart.
package filestore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"ringd/internal/ringid"
	"ringd/internal/store"
)

var encoderPool = sync.Pool{New: func() any {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(err)
	}
	return enc
}}

var decoderPool = sync.Pool{New: func() any {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	return dec
}}

func compress(b []byte) []byte {
	enc := encoderPool.Get().(*zstd.Encoder)
	defer encoderPool.Put(enc)
	return enc.EncodeAll(b, nil)
}

func decompress(b []byte) ([]byte, error) {
	dec := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)
	return dec.DecodeAll(b, nil)
}

// meta is one key's on-disk bookkeeping: the blob filename (derived
// from the key so lookups never need a directory scan) and the
// version history of every write to that key.
type meta struct {
	Filename string   `json:"filename"`
	History  []uint64 `json:"history"`
}

type index struct {
	Version uint64          `json:"version"`
	Entries map[string]meta `json:"entries"`
}

// Store is a directory-backed store.Backend for one owner id.
type Store struct {
	mu      sync.RWMutex
	dir     string
	entries map[string]meta
	version uint64
}

// New builds a Store rooted at filepath.Join(root, owner), loading any
// index left over from a prior run.
func New(root string, owner ringid.ID) store.Backend {
	s := &Store{dir: filepath.Join(root, owner.String()), entries: make(map[string]meta)}
	s.load()
	return s
}

// NewFactory adapts New into a store.Factory bound to root, so Manager
// can lazily create one Store per owner as they're first seen.
func NewFactory(root string) store.Factory {
	return func(owner ringid.ID) store.Backend {
		return New(root, owner)
	}
}

// blobName derives a 16-hex-digit lowercase filename from key via
// xxhash, a fast non-cryptographic hash well suited to content-addressed
// storage filenames (see DESIGN.md).
func blobName(key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

func (s *Store) indexPath() string { return filepath.Join(s.dir, "index.json") }
func (s *Store) blobPath(filename string) string {
	return filepath.Join(s.dir, filename+".zst")
}

func (s *Store) load() {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		return
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return
	}
	s.version = idx.Version
	if idx.Entries != nil {
		s.entries = idx.Entries
	}
}

func (s *Store) persist() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating store dir %s: %w", s.dir, err)
	}
	data, err := json.Marshal(index{Version: s.version, Entries: s.entries})
	if err != nil {
		return fmt.Errorf("marshaling index for %s: %w", s.dir, err)
	}
	return os.WriteFile(s.indexPath(), data, 0o644)
}

// writeBlob compresses value and writes it with an 8-byte xxhash
// checksum prefix, so a later read can detect on-disk corruption
// instead of silently returning garbage.
func (s *Store) writeBlob(filename string, value []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating store dir %s: %w", s.dir, err)
	}
	checksum := xxhash.Sum64(value)
	payload := make([]byte, 8, 8+len(value))
	binary.BigEndian.PutUint64(payload, checksum)
	payload = append(payload, compress(value)...)
	return os.WriteFile(s.blobPath(filename), payload, 0o644)
}

func (s *Store) readBlob(filename string) ([]byte, error) {
	data, err := os.ReadFile(s.blobPath(filename))
	if err != nil {
		return nil, err
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("blob %s is too short to contain a checksum", filename)
	}
	checksum := binary.BigEndian.Uint64(data[:8])
	value, err := decompress(data[8:])
	if err != nil {
		return nil, fmt.Errorf("decompressing blob %s: %w", filename, err)
	}
	if xxhash.Sum64(value) != checksum {
		return nil, fmt.Errorf("blob %s failed its integrity check", filename)
	}
	return value, nil
}

func (s *Store) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok
}

func (s *Store) Get(key string) (store.Entry, bool) {
	s.mu.RLock()
	m, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return store.Entry{}, false
	}
	value, err := s.readBlob(m.Filename)
	if err != nil {
		return store.Entry{}, false
	}
	return store.Entry{Value: value, Version: m.History[len(m.History)-1]}, true
}

// Put overwrites key's blob and appends to its history, the same
// overwrite-not-reject duplicate-key policy memstore implements.
func (s *Store) Put(key string, value []byte) store.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	m, ok := s.entries[key]
	if !ok {
		m = meta{Filename: blobName(key), History: []uint64{0}}
	}
	m.History = append(m.History, s.version)
	s.entries[key] = m
	s.writeBlob(m.Filename, value)
	s.persist()
	return store.Entry{Value: value, Version: s.version}
}

func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.entries[key]
	if !ok {
		return false
	}
	delete(s.entries, key)
	os.Remove(s.blobPath(m.Filename))
	s.version++
	s.persist()
	return true
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.entries {
		os.Remove(s.blobPath(m.Filename))
	}
	s.entries = make(map[string]meta)
	s.version++
	s.persist()
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

// VersionHistory returns key's version history, oldest first, the same
// explicit zero-version bootstrap memstore uses for a never-written key.
func (s *Store) VersionHistory(key string) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.entries[key]
	if !ok {
		return []uint64{0}
	}
	out := make([]uint64, len(m.History))
	copy(out, m.History)
	return out
}

func (s *Store) Snapshot(owner ringid.ID) store.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make(map[string]store.Entry, len(s.entries))
	history := make(map[string][]uint64, len(s.entries))
	for k, m := range s.entries {
		value, err := s.readBlob(m.Filename)
		if err != nil {
			continue
		}
		entries[k] = store.Entry{Value: value, Version: m.History[len(m.History)-1]}
		h := make([]uint64, len(m.History))
		copy(h, m.History)
		history[k] = h
	}
	return store.Snapshot{Owner: owner, Version: s.version, Entries: entries, History: history}
}

// ReplaceFrom wipes this store's on-disk contents and rewrites them
// from snap, used when a replica accepts a fresh push from its primary.
func (s *Store) ReplaceFrom(snap store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.entries {
		os.Remove(s.blobPath(m.Filename))
	}
	entries := make(map[string]meta, len(snap.Entries))
	for k, e := range snap.Entries {
		h := snap.History[k]
		if len(h) == 0 {
			h = []uint64{e.Version}
		}
		m := meta{Filename: blobName(k), History: h}
		s.writeBlob(m.Filename, e.Value)
		entries[k] = m
	}
	s.entries = entries
	s.version = snap.Version
	s.persist()
}

// MergeFrom upserts snap's entries on disk, leaving every key snap
// doesn't mention untouched, and advances the store's version to
// snap's if that's newer. Used for delta replication.
func (s *Store) MergeFrom(snap store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range snap.Entries {
		h := snap.History[k]
		if len(h) == 0 {
			h = []uint64{e.Version}
		}
		m := meta{Filename: blobName(k), History: h}
		s.writeBlob(m.Filename, e.Value)
		s.entries[k] = m
	}
	if snap.Version > s.version {
		s.version = snap.Version
	}
	s.persist()
}
