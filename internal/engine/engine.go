package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mnohosten/agentstate/internal/logging"
	"github.com/mnohosten/agentstate/internal/metrics"
	"github.com/mnohosten/agentstate/internal/storage"
	"github.com/mnohosten/agentstate/internal/value"
)

// Engine is the transaction and commit engine (spec §4.1). It owns the
// in-memory transaction table and per-RecordId version map, and serializes
// commits through a single coarse mutex, per spec §5's single-logical-
// writer model. An Engine is shared by its callers as a handle with
// internal synchronization; there is no back-pointer to them.
type Engine struct {
	backend storage.Backend
	cfg     Config
	log     zerolog.Logger

	txnMu sync.RWMutex
	txns  map[string]*transaction

	// commitMu serializes the entire commit critical section: obtaining
	// commit_ts, writing state+version records, appending the event, and
	// flushing. versionMu nests inside it.
	commitMu  sync.Mutex
	versionMu sync.Mutex
	versions  map[storage.RecordID]uint64

	// lastCommitTsMu guards lastCommitTs independently of commitMu so that
	// CreateSnapshot can read it whether or not it's invoked from inside
	// an in-progress commit (maybeSnapshot) or from an external caller.
	lastCommitTsMu sync.Mutex
	lastCommitTs   uint64

	snapMu               sync.Mutex
	commitsSinceSnapshot int

	stopSweep chan struct{}
	sweepDone chan struct{}

	metrics *metrics.Collector
}

// New constructs an Engine over backend, recovering the version map from
// any existing snapshot and the version: key family (spec §9 Open
// Question 2), and starts the background expired-transaction sweep if
// cfg.SweepInterval is non-zero.
func New(backend storage.Backend, cfg Config) (*Engine, error) {
	e := &Engine{
		backend:  backend,
		cfg:      cfg,
		log:      logging.WithComponent("engine"),
		txns:     make(map[string]*transaction),
		versions: make(map[storage.RecordID]uint64),
		metrics:  metrics.NewCollector(),
	}

	if err := e.recover(); err != nil {
		return nil, err
	}

	if cfg.SweepInterval > 0 {
		e.stopSweep = make(chan struct{})
		e.sweepDone = make(chan struct{})
		go e.sweepLoop()
	}

	return e, nil
}

// recover rebuilds the version map: first from the most recent snapshot
// (if any), then maxed against a full scan of the version: key family, so
// that RecordIds written after the snapshot but before a crash are not
// assigned a duplicate version on their next write.
func (e *Engine) recover() error {
	snap, ok, err := e.backend.LoadSnapshot()
	if err != nil {
		return err
	}
	if ok {
		for _, rec := range snap.Records {
			e.versions[rec.ID] = rec.Version
		}
		e.lastCommitTs = snap.Metadata.SnapshotTs
		e.log.Info().Uint64("snapshot_ts", snap.Metadata.SnapshotTs).Int("records", len(snap.Records)).Msg("recovered from snapshot")
	}

	maxVersions, err := e.backend.MaxVersions()
	if err != nil {
		return err
	}
	for id, v := range maxVersions {
		if v > e.versions[id] {
			e.versions[id] = v
		}
	}

	return nil
}

// Begin allocates a fresh transaction with a UUID txn_id, registers it in
// the in-memory table, and returns its id. It never fails except on id
// exhaustion, which uuid.NewString() does not model.
func (e *Engine) Begin(timeout time.Duration) string {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	txn := &transaction{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Timeout:   timeout,
	}

	e.txnMu.Lock()
	e.txns[txn.ID] = txn
	e.txnMu.Unlock()

	e.log.Debug().Str("txn_id", txn.ID).Dur("timeout", timeout).Msg("transaction begun")
	return txn.ID
}

// StageWrite appends a write operation to txnID's ordered buffer.
func (e *Engine) StageWrite(txnID string, id storage.RecordID, v value.Value) error {
	err := e.stage(txnID, StagedOperation{Kind: OpWrite, ID: id, Value: v})
	if err == nil {
		e.metrics.RecordWriteStaged()
	}
	return err
}

// StageDelete appends a delete operation to txnID's ordered buffer.
func (e *Engine) StageDelete(txnID string, id storage.RecordID) error {
	err := e.stage(txnID, StagedOperation{Kind: OpDelete, ID: id})
	if err == nil {
		e.metrics.RecordDeleteStaged()
	}
	return err
}

func (e *Engine) stage(txnID string, op StagedOperation) error {
	e.txnMu.Lock()
	defer e.txnMu.Unlock()

	txn, ok := e.txns[txnID]
	if !ok {
		return ErrTxnNotFound
	}
	if txn.expired(time.Now()) {
		delete(e.txns, txnID)
		return ErrTxnExpired
	}

	txn.Ops = append(txn.Ops, op)
	return nil
}

// Abort discards txnID's staged operations. It is a no-op if the
// transaction is not found, and never fails.
func (e *Engine) Abort(txnID string) error {
	e.txnMu.Lock()
	_, existed := e.txns[txnID]
	delete(e.txns, txnID)
	e.txnMu.Unlock()

	if existed {
		e.log.Debug().Str("txn_id", txnID).Msg("transaction aborted")
		e.metrics.RecordAbort()
	}
	return nil
}

// Commit applies txnID's staged operations: it assigns a fresh commit_ts,
// bumps the per-key version of every touched RecordId, writes the
// resulting StateRecords one at a time, appends one EventLogEntry, and
// flushes, all under commitMu.
//
// If a backend call fails after commit_ts is assigned, Commit returns the
// first error without rolling back: StateRecords already written stay in
// the backend and the version map keeps the counters it already bumped.
//
// Removing the transaction from the table happens first and under the
// transactions lock, so a second Commit call for the same txn_id observes
// ErrTxnNotFound rather than double-committing (spec §4.1 step a).
func (e *Engine) Commit(txnID string) (commitTs uint64, err error) {
	start := time.Now()
	defer func() { e.metrics.RecordCommit(time.Since(start), err) }()

	e.txnMu.Lock()
	txn, ok := e.txns[txnID]
	if ok {
		delete(e.txns, txnID)
	}
	e.txnMu.Unlock()

	if !ok {
		return 0, ErrTxnNotFound
	}
	if txn.expired(time.Now()) {
		return 0, ErrTxnExpired
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	commitTs, err = e.backend.NextCommitTs()
	if err != nil {
		return 0, err
	}

	ops := make([]storage.OperationRecord, 0, len(txn.Ops))

	e.versionMu.Lock()
	for _, op := range txn.Ops {
		e.versions[op.ID]++
		version := e.versions[op.ID]

		deleted := op.Kind == OpDelete
		val := op.Value
		if deleted {
			val = value.Null
		}

		rec := storage.StateRecord{
			ID:       op.ID,
			Value:    val,
			Version:  version,
			CommitTs: commitTs,
			Deleted:  deleted,
		}
		if err := e.backend.WriteState(rec); err != nil {
			e.versionMu.Unlock()
			return 0, err
		}
		ops = append(ops, storage.OperationRecord{ID: op.ID, Value: val, Version: version, Deleted: deleted})
	}
	e.versionMu.Unlock()

	entry := storage.EventLogEntry{TxnID: txn.ID, CommitTs: commitTs, Ops: ops}
	if err := e.backend.AppendEvent(entry); err != nil {
		return 0, err
	}
	if err := e.backend.Flush(); err != nil {
		return 0, err
	}

	e.lastCommitTsMu.Lock()
	e.lastCommitTs = commitTs
	e.lastCommitTsMu.Unlock()
	e.log.Debug().Str("txn_id", txn.ID).Uint64("commit_ts", commitTs).Int("ops", len(ops)).Msg("transaction committed")

	if err := e.maybeSnapshot(); err != nil {
		e.log.Error().Err(err).Msg("automatic snapshot failed")
	}

	return commitTs, nil
}

// GetState returns the latest StateRecord for id, including tombstones.
func (e *Engine) GetState(id storage.RecordID) (storage.StateRecord, bool, error) {
	rec, ok, err := e.backend.ReadState(id)
	if err == nil {
		e.metrics.RecordRead(ok)
	}
	return rec, ok, err
}

// GetStateAtVersion returns the exact historical StateRecord for
// (id, version).
func (e *Engine) GetStateAtVersion(id storage.RecordID, version uint64) (storage.StateRecord, bool, error) {
	return e.backend.ReadStateAtVersion(id, version)
}

// ListKeys returns the non-tombstone keys under (namespace, agentID).
func (e *Engine) ListKeys(namespace, agentID string) ([]string, error) {
	return e.backend.ListKeys(namespace, agentID)
}

// ScanPrefix returns the latest non-tombstone StateRecords under
// (namespace, agentID) whose key starts with keyPrefix.
func (e *Engine) ScanPrefix(namespace, agentID, keyPrefix string) ([]storage.StateRecord, error) {
	e.metrics.RecordScan()
	return e.backend.ScanPrefix(namespace, agentID, keyPrefix)
}

// Replay returns, in ascending commit_ts order, every EventLogEntry that
// touches (namespace, agentID), inclusive-bounded by startTs/endTs.
func (e *Engine) Replay(namespace, agentID string, startTs, endTs *uint64) ([]storage.EventLogEntry, error) {
	e.metrics.RecordReplay()
	return e.backend.ReplayEvents(namespace, agentID, startTs, endTs)
}

// Metrics exposes the engine's counters and timing histograms, used by the
// facade's /_metrics endpoint.
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

// ActiveTransactionCount reports the number of transactions currently in
// the table, used by the health facade and tests.
func (e *Engine) ActiveTransactionCount() int {
	e.txnMu.RLock()
	defer e.txnMu.RUnlock()
	return len(e.txns)
}

// Close stops the background sweep and closes the backend.
func (e *Engine) Close() error {
	if e.stopSweep != nil {
		close(e.stopSweep)
		<-e.sweepDone
	}
	return e.backend.Close()
}
