package storage

import (
	"testing"

	"github.com/mnohosten/agentstate/internal/value"
)

func TestMemoryBackendWriteReadState(t *testing.T) {
	b := NewMemoryBackend()
	id := RecordID{Namespace: "ns", AgentID: "a1", Key: "k1"}

	_, ok, err := b.ReadState(id)
	if err != nil || ok {
		t.Fatalf("expected not-found, got ok=%v err=%v", ok, err)
	}

	rec := StateRecord{ID: id, Value: value.NewString("v1"), Version: 1, CommitTs: 1}
	if err := b.WriteState(rec); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	got, ok, err := b.ReadState(id)
	if err != nil || !ok {
		t.Fatalf("ReadState: ok=%v err=%v", ok, err)
	}
	if !value.Equal(got.Value, rec.Value) || got.Version != 1 {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestMemoryBackendVersionHistory(t *testing.T) {
	b := NewMemoryBackend()
	id := RecordID{Namespace: "ns", AgentID: "a1", Key: "k1"}

	for v := uint64(1); v <= 3; v++ {
		rec := StateRecord{ID: id, Value: value.NewNumber(float64(v)), Version: v, CommitTs: v}
		if err := b.WriteState(rec); err != nil {
			t.Fatalf("WriteState v%d: %v", v, err)
		}
	}

	for v := uint64(1); v <= 3; v++ {
		got, ok, err := b.ReadStateAtVersion(id, v)
		if err != nil || !ok {
			t.Fatalf("ReadStateAtVersion(%d): ok=%v err=%v", v, ok, err)
		}
		if got.Value.Number != float64(v) {
			t.Fatalf("version %d: got value %v", v, got.Value.Number)
		}
	}

	latest, ok, _ := b.ReadState(id)
	if !ok || latest.Version != 3 {
		t.Fatalf("expected latest version 3, got %+v", latest)
	}
}

func TestMemoryBackendListAndScanPrefix(t *testing.T) {
	b := NewMemoryBackend()
	ns, agent := "ns", "a1"

	for _, k := range []string{"cfg/a", "cfg/b", "other"} {
		id := RecordID{Namespace: ns, AgentID: agent, Key: k}
		if err := b.WriteState(StateRecord{ID: id, Value: value.NewBool(true), Version: 1, CommitTs: 1}); err != nil {
			t.Fatalf("WriteState(%s): %v", k, err)
		}
	}

	keys, err := b.ListKeys(ns, agent)
	if err != nil || len(keys) != 3 {
		t.Fatalf("ListKeys: %v keys=%v", err, keys)
	}

	recs, err := b.ScanPrefix(ns, agent, "cfg/")
	if err != nil || len(recs) != 2 {
		t.Fatalf("ScanPrefix: %v recs=%v", err, recs)
	}
}

func TestMemoryBackendTombstoneExcludedFromListing(t *testing.T) {
	b := NewMemoryBackend()
	id := RecordID{Namespace: "ns", AgentID: "a1", Key: "k1"}

	if err := b.WriteState(StateRecord{ID: id, Value: value.NewString("v"), Version: 1, CommitTs: 1}); err != nil {
		t.Fatalf("WriteState: %v", err)
	}
	if err := b.WriteState(StateRecord{ID: id, Value: value.Null, Version: 2, CommitTs: 2, Deleted: true}); err != nil {
		t.Fatalf("WriteState tombstone: %v", err)
	}

	keys, err := b.ListKeys("ns", "a1")
	if err != nil || len(keys) != 0 {
		t.Fatalf("expected tombstoned key hidden, got %v (err %v)", keys, err)
	}

	rec, ok, err := b.ReadState(id)
	if err != nil || !ok || !rec.Deleted {
		t.Fatalf("ReadState should still return the tombstone: %+v ok=%v err=%v", rec, ok, err)
	}
}

func TestMemoryBackendCommitTsMonotonic(t *testing.T) {
	b := NewMemoryBackend()
	var last uint64
	for i := 0; i < 5; i++ {
		ts, err := b.NextCommitTs()
		if err != nil {
			t.Fatalf("NextCommitTs: %v", err)
		}
		if ts <= last {
			t.Fatalf("commit_ts not strictly increasing: %d after %d", ts, last)
		}
		last = ts
	}
}

func TestMemoryBackendReplayEvents(t *testing.T) {
	b := NewMemoryBackend()
	id := RecordID{Namespace: "ns", AgentID: "a1", Key: "k1"}

	entries := []EventLogEntry{
		{TxnID: "t1", CommitTs: 1, Ops: []OperationRecord{{ID: id, Value: value.NewNumber(1), Version: 1}}},
		{TxnID: "t2", CommitTs: 2, Ops: []OperationRecord{{ID: id, Value: value.NewNumber(2), Version: 2}}},
		{TxnID: "t3", CommitTs: 3, Ops: []OperationRecord{{ID: id, Value: value.NewNumber(3), Version: 3}}},
	}
	for _, e := range entries {
		if err := b.AppendEvent(e); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	start := uint64(2)
	got, err := b.ReplayEvents("ns", "a1", &start, nil)
	if err != nil {
		t.Fatalf("ReplayEvents: %v", err)
	}
	if len(got) != 2 || got[0].CommitTs != 2 || got[1].CommitTs != 3 {
		t.Fatalf("unexpected replay result: %+v", got)
	}
}

func TestMemoryBackendSnapshotIsNoop(t *testing.T) {
	b := NewMemoryBackend()
	if err := b.SaveSnapshot(Snapshot{}); err != nil {
		t.Fatalf("SaveSnapshot should be a no-op, got %v", err)
	}
	_, ok, err := b.LoadSnapshot()
	if err != nil || ok {
		t.Fatalf("LoadSnapshot should report ok=false, got ok=%v err=%v", ok, err)
	}
}
