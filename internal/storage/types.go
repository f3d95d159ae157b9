// Package storage implements the ordered key-value backend the state
// engine persists through: byte-level key layout, an in-memory adapter for
// tests, and a durable file-backed adapter with its own append log and
// snapshot file, in the spirit of the teacher's hand-rolled disk manager
// and write-ahead log (there is no embedded ordered-KV engine library
// anywhere in the retrieval pack to wrap instead).
package storage

import (
	"errors"
	"time"

	"github.com/mnohosten/agentstate/internal/value"
)

// RecordID is the identity tuple (namespace, agent_id, key). All three
// components are non-empty strings; equality is byte-exact.
type RecordID struct {
	Namespace string
	AgentID   string
	Key       string
}

// StateRecord is one committed version of a RecordID.
type StateRecord struct {
	ID        RecordID
	Value     value.Value
	Version   uint64
	CommitTs  uint64
	Deleted   bool
}

// OperationRecord is one staged operation as it appears inside a committed
// EventLogEntry.
type OperationRecord struct {
	ID      RecordID
	Value   value.Value
	Version uint64
	Deleted bool
}

// EventLogEntry is the immutable record of one committed transaction.
type EventLogEntry struct {
	TxnID    string
	CommitTs uint64
	Ops      []OperationRecord
}

// SnapshotMetadata describes a Snapshot document.
type SnapshotMetadata struct {
	FormatVersion int       `json:"format_version"`
	SnapshotTs    uint64    `json:"snapshot_ts"`
	RecordCount   int       `json:"record_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Snapshot is a durable point-in-time capture of every RecordID's latest
// StateRecord.
type Snapshot struct {
	Metadata SnapshotMetadata `json:"metadata"`
	Records  []StateRecord    `json:"records"`
}

// CurrentSnapshotFormatVersion is the only format version this backend
// will write or accept on recovery.
const CurrentSnapshotFormatVersion = 1

// Error kinds from spec §7, owned by the package that first detects them.
var (
	// ErrBackendIO wraps underlying KV engine or file I/O failures.
	ErrBackendIO = errors.New("storage: backend I/O error")
	// ErrDecode is returned when persisted bytes fail to parse.
	ErrDecode = errors.New("storage: decode error")
	// ErrSnapshotVersionMismatch is returned when a loaded snapshot's
	// format_version does not match CurrentSnapshotFormatVersion.
	ErrSnapshotVersionMismatch = errors.New("storage: snapshot format version mismatch")
)
