package storage

// Backend is the contract an ordered key-value engine adapter must
// satisfy (spec §4.2): atomic single-key put/get, lexicographic prefix
// iteration, a durable monotonic commit-timestamp counter, flush/fsync,
// and snapshot file persistence. Both the in-memory and the disk-backed
// adapters in this package implement it; any such engine is acceptable.
type Backend interface {
	// WriteState persists the latest-state and versioned-state entries for
	// one StateRecord (spec §4.2: "writing a new version entails writing
	// both the latest-state key and the versioned-state key").
	WriteState(rec StateRecord) error

	// ReadState returns the latest StateRecord for id, including
	// tombstones. ok is false if the RecordID was never written.
	ReadState(id RecordID) (rec StateRecord, ok bool, err error)

	// ReadStateAtVersion returns the exact historical StateRecord for
	// (id, version). ok is false if that version was never written.
	ReadStateAtVersion(id RecordID, version uint64) (rec StateRecord, ok bool, err error)

	// ListKeys returns the keys under (namespace, agentID) whose latest
	// StateRecord is not a tombstone. Order is backend-defined.
	ListKeys(namespace, agentID string) ([]string, error)

	// ScanPrefix returns the latest non-tombstone StateRecords under
	// (namespace, agentID) whose key starts with keyPrefix, bytewise.
	ScanPrefix(namespace, agentID, keyPrefix string) ([]StateRecord, error)

	// AppendEvent durably appends one EventLogEntry. Entries are immutable
	// once appended.
	AppendEvent(entry EventLogEntry) error

	// ReplayEvents returns, in ascending commit_ts order, every
	// EventLogEntry containing at least one OperationRecord matching
	// (namespace, agentID), inclusive-bounded by startTs/endTs when non-nil.
	ReplayEvents(namespace, agentID string, startTs, endTs *uint64) ([]EventLogEntry, error)

	// NextCommitTs durably persists and returns the next logical commit
	// timestamp. It must never reissue a value already returned, even
	// across a crash.
	NextCommitTs() (uint64, error)

	// Flush guarantees all prior writes are on stable storage when the
	// backend is configured to fsync.
	Flush() error

	// SaveSnapshot atomically persists snap as the backend's single
	// most-recent snapshot (write to a temp path, then rename).
	SaveSnapshot(snap Snapshot) error

	// LoadSnapshot returns the most recently saved snapshot. ok is false,
	// with no error, if no snapshot file exists yet.
	LoadSnapshot() (snap Snapshot, ok bool, err error)

	// AllStateRecords returns the latest StateRecord for every RecordID
	// the backend currently holds, used to build a fresh snapshot.
	AllStateRecords() ([]StateRecord, error)

	// MaxVersions scans the "version:" key family and returns, for every
	// RecordID written so far, the highest version ever written (RecordIDs
	// never written are absent from the map). Used at engine startup
	// to max-reduce the version map past what a snapshot covers (spec §9
	// Open Question 2).
	MaxVersions() (map[RecordID]uint64, error)

	// Close releases backend resources.
	Close() error
}
