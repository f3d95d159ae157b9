package engine

import (
	"time"

	"github.com/mnohosten/agentstate/internal/storage"
)

// CreateSnapshot builds a Snapshot from the latest StateRecord of every
// RecordId the backend currently holds, stamps it with the engine's
// highest commit_ts so far, and persists it atomically.
func (e *Engine) CreateSnapshot() error {
	records, err := e.backend.AllStateRecords()
	if err != nil {
		return err
	}

	e.lastCommitTsMu.Lock()
	snapshotTs := e.lastCommitTs
	e.lastCommitTsMu.Unlock()

	snap := storage.Snapshot{
		Metadata: storage.SnapshotMetadata{
			FormatVersion: storage.CurrentSnapshotFormatVersion,
			SnapshotTs:    snapshotTs,
			RecordCount:   len(records),
			CreatedAt:     time.Now().UTC(),
		},
		Records: records,
	}

	if err := e.backend.SaveSnapshot(snap); err != nil {
		return err
	}
	e.log.Info().Uint64("snapshot_ts", snapshotTs).Int("records", len(records)).Msg("snapshot created")
	return nil
}

// maybeSnapshot increments the commits-since-snapshot counter and, once it
// reaches cfg.SnapshotInterval, triggers CreateSnapshot and resets the
// counter. It is a hint, not a durability guarantee (spec §4.1): a failure
// here does not fail the commit that triggered it.
func (e *Engine) maybeSnapshot() error {
	if e.cfg.SnapshotInterval <= 0 {
		return nil
	}

	e.snapMu.Lock()
	e.commitsSinceSnapshot++
	trigger := e.commitsSinceSnapshot >= e.cfg.SnapshotInterval
	if trigger {
		e.commitsSinceSnapshot = 0
	}
	e.snapMu.Unlock()

	if !trigger {
		return nil
	}
	return e.CreateSnapshot()
}
