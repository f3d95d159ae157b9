package storage

import (
	"strings"
	"sync"
)

// MemoryBackend is a functionally-equivalent, non-durable Backend backed
// by in-process maps. SaveSnapshot/LoadSnapshot are no-ops, as spec §4.2
// requires for the in-memory adapter. Intended for tests and for
// throwaway agent sessions that opt out of durability.
type MemoryBackend struct {
	mu         sync.RWMutex
	latest     map[string]StateRecord // state: family, keyed by stateKey
	versions   map[string]StateRecord // version: family, keyed by versionKey
	events     []EventLogEntry        // event: family, in append order (== commit_ts order)
	nextCommit uint64
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		latest:   make(map[string]StateRecord),
		versions: make(map[string]StateRecord),
	}
}

func (m *MemoryBackend) WriteState(rec StateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[stateKey(rec.ID)] = rec
	m.versions[versionKey(rec.ID, rec.Version)] = rec
	return nil
}

func (m *MemoryBackend) ReadState(id RecordID) (StateRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.latest[stateKey(id)]
	return rec, ok, nil
}

func (m *MemoryBackend) ReadStateAtVersion(id RecordID, version uint64) (StateRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.versions[versionKey(id, version)]
	return rec, ok, nil
}

func (m *MemoryBackend) ListKeys(namespace, agentID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := stateFamilyPrefix(namespace, agentID)
	keys := make([]string, 0)
	for k, rec := range m.latest {
		if !strings.HasPrefix(k, prefix) || rec.Deleted {
			continue
		}
		keys = append(keys, keyTail(k, prefix))
	}
	return keys, nil
}

func (m *MemoryBackend) ScanPrefix(namespace, agentID, keyPrefix string) ([]StateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := statePrefixFor(namespace, agentID, keyPrefix)
	recs := make([]StateRecord, 0)
	for k, rec := range m.latest {
		if !strings.HasPrefix(k, prefix) || rec.Deleted {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (m *MemoryBackend) AppendEvent(entry EventLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, entry)
	return nil
}

func (m *MemoryBackend) ReplayEvents(namespace, agentID string, startTs, endTs *uint64) ([]EventLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]EventLogEntry, 0)
	for _, entry := range m.events {
		if startTs != nil && entry.CommitTs < *startTs {
			continue
		}
		if endTs != nil && entry.CommitTs > *endTs {
			continue
		}
		if entryTouches(entry, namespace, agentID) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func entryTouches(entry EventLogEntry, namespace, agentID string) bool {
	for _, op := range entry.Ops {
		if op.ID.Namespace == namespace && op.ID.AgentID == agentID {
			return true
		}
	}
	return false
}

func (m *MemoryBackend) NextCommitTs() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCommit++
	return m.nextCommit, nil
}

func (m *MemoryBackend) Flush() error { return nil }

func (m *MemoryBackend) SaveSnapshot(Snapshot) error { return nil }

func (m *MemoryBackend) LoadSnapshot() (Snapshot, bool, error) { return Snapshot{}, false, nil }

func (m *MemoryBackend) AllStateRecords() ([]StateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]StateRecord, 0, len(m.latest))
	for _, rec := range m.latest {
		recs = append(recs, rec)
	}
	return recs, nil
}

func (m *MemoryBackend) MaxVersions() (map[RecordID]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[RecordID]uint64)
	for _, rec := range m.versions {
		if rec.Version > out[rec.ID] {
			out[rec.ID] = rec.Version
		}
	}
	return out, nil
}

func (m *MemoryBackend) Close() error { return nil }

var _ Backend = (*MemoryBackend)(nil)
