// Package ringcfg holds the node configuration surface: successor-list
// size, finger-table width, the five maintenance periods, retry budget,
// and storage backend selection.
package ringcfg

import (
	"encoding/json"
	"os"
	"time"

	"golang.org/x/xerrors"
)

// StoreBackend selects the Store implementation a node uses for its
// primary and replica stores.
type StoreBackend string

const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendFile    StoreBackend = "file"
)

// Config is the full configuration surface of a running node. Zero-value
// fields are filled in by DefaultConfig; Validate rejects anything a
// running node cannot operate with.
type Config struct {
	// NodeID identification
	Host string
	Port uint16

	// SuccessorListSize is R, the number of cached successors.
	SuccessorListSize int

	// FingerBits is M, the width of the identifier space and finger table.
	FingerBits int

	// RetryBudget is the default retry count threaded through the
	// remote-call facade.
	RetryBudget int

	// StabilizeSuccessorsPeriod, StabilizePredecessorsPeriod,
	// FixFingersPeriod, RejoinPeriod, and ReplicatePeriod are the five
	// maintenance loop periods.
	StabilizeSuccessorsPeriod   time.Duration
	StabilizePredecessorsPeriod time.Duration
	FixFingersPeriod            time.Duration
	RejoinPeriod                time.Duration
	ReplicatePeriod             time.Duration

	// CallTimeout is the finite per-call transport timeout every remote
	// call must impose.
	CallTimeout time.Duration

	// StoreBackend and FileStoreRoot select and locate the persistent
	// store implementation.
	StoreBackend  StoreBackend
	FileStoreRoot string

	// SeedHost/SeedPort is the node Join dials when first starting; both
	// empty means "create a singleton ring".
	SeedHost string
	SeedPort uint16

	// LogLevel/LogFormat configure internal/logging.
	LogLevel  string
	LogFormat string
}

// DefaultConfig returns a Config with sane defaults for a single-node
// ring.
func DefaultConfig() *Config {
	return &Config{
		Host:                        "127.0.0.1",
		Port:                        0,
		SuccessorListSize:           3,
		FingerBits:                  64,
		RetryBudget:                 3,
		StabilizeSuccessorsPeriod:   1 * time.Second,
		StabilizePredecessorsPeriod: 5 * time.Second,
		FixFingersPeriod:            1 * time.Second,
		RejoinPeriod:                30 * time.Second,
		ReplicatePeriod:             30 * time.Second,
		CallTimeout:                 2 * time.Second,
		StoreBackend:                StoreBackendMemory,
		LogLevel:                    "info",
		LogFormat:                   "text",
	}
}

// LoadFile reads a JSON-encoded Config from path, applying it on top of
// DefaultConfig so an operator only needs to specify overrides. JSON via
// encoding/json is used rather than a third-party config format — see
// DESIGN.md for why.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("reading config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, xerrors.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configuration a node cannot run with.
func (c *Config) Validate() error {
	if c.Host == "" {
		return xerrors.New("host is required")
	}
	if c.SuccessorListSize < 1 {
		return xerrors.New("successor list size must be >= 1")
	}
	if c.FingerBits < 1 || c.FingerBits > 64 {
		return xerrors.New("finger bits must be in [1, 64]")
	}
	if c.RetryBudget < 0 {
		return xerrors.New("retry budget must be >= 0")
	}
	if c.CallTimeout <= 0 {
		return xerrors.New("call timeout must be positive")
	}
	switch c.StoreBackend {
	case StoreBackendMemory:
	case StoreBackendFile:
		if c.FileStoreRoot == "" {
			return xerrors.New("file store root is required when store backend is file")
		}
	default:
		return xerrors.Errorf("unknown store backend %q", c.StoreBackend)
	}
	return nil
}
