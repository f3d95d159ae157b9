// Package engine implements the transaction and commit engine (spec §4.1):
// transaction lifecycle, atomic commit, per-key monotonic versioning,
// logical commit timestamps, prefix iteration, snapshotting and crash
// recovery, built over the internal/storage Backend contract.
package engine

import (
	"time"

	"github.com/mnohosten/agentstate/internal/storage"
	"github.com/mnohosten/agentstate/internal/value"
)

// DefaultTimeout is the transaction timeout applied when Begin receives no
// explicit override.
const DefaultTimeout = 30 * time.Second

// OpKind tags a StagedOperation as a write or a delete.
type OpKind int

const (
	OpWrite OpKind = iota
	OpDelete
)

// StagedOperation is one write or delete staged into a transaction's
// ordered buffer, not yet visible to readers.
type StagedOperation struct {
	Kind  OpKind
	ID    storage.RecordID
	Value value.Value
}

// transaction is the in-memory-only record of one open transaction. It is
// mutated solely by the owning Engine, under txnMu.
type transaction struct {
	ID        string
	CreatedAt time.Time
	Timeout   time.Duration
	Ops       []StagedOperation
}

func (t *transaction) expired(now time.Time) bool {
	return now.Sub(t.CreatedAt) > t.Timeout
}

// Config configures an Engine.
type Config struct {
	// SnapshotInterval is the number of commits between automatic
	// snapshots; 0 disables automatic snapshotting.
	SnapshotInterval int
	// SweepInterval is how often the background expired-transaction sweep
	// runs. 0 disables the background goroutine; an expired transaction is
	// then removed only when a stage or commit call touches it.
	SweepInterval time.Duration
}

// DefaultConfig snapshots every 1000 commits and sweeps expired
// transactions once a minute.
func DefaultConfig() Config {
	return Config{
		SnapshotInterval: 1000,
		SweepInterval:    time.Minute,
	}
}
