package engine

import "errors"

var (
	// ErrTxnNotFound is returned when the referenced txn_id is not in the
	// transaction table (never registered, already committed/aborted, or
	// already evicted as expired).
	ErrTxnNotFound = errors.New("engine: transaction not found")

	// ErrTxnExpired is returned when a transaction's wall-clock age exceeds
	// its timeout at the moment it is touched. The transaction is removed
	// from the table as part of reporting this error.
	ErrTxnExpired = errors.New("engine: transaction expired")
)

// storage.ErrBackendIO, storage.ErrDecode and storage.ErrSnapshotVersionMismatch
// propagate unwrapped from the backend through every Engine method that
// touches it; callers check them with errors.Is against the storage
// package's sentinels directly.
