package storage

import (
	"errors"
	"testing"

	"github.com/mnohosten/agentstate/internal/value"
)

func openTestDisk(t *testing.T, dir string) *DiskBackend {
	t.Helper()
	cfg := DefaultConfig(dir)
	b, err := OpenDiskBackend(cfg)
	if err != nil {
		t.Fatalf("OpenDiskBackend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestDiskBackendWriteReadState(t *testing.T) {
	dir := t.TempDir()
	b := openTestDisk(t, dir)

	id := RecordID{Namespace: "ns", AgentID: "a1", Key: "k1"}
	rec := StateRecord{ID: id, Value: value.NewString("v1"), Version: 1, CommitTs: 1}
	if err := b.WriteState(rec); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	got, ok, err := b.ReadState(id)
	if err != nil || !ok {
		t.Fatalf("ReadState: ok=%v err=%v", ok, err)
	}
	if !value.Equal(got.Value, rec.Value) {
		t.Fatalf("unexpected value: %+v", got.Value)
	}
}

func TestDiskBackendRecoversAfterReopen(t *testing.T) {
	dir := t.TempDir()
	id := RecordID{Namespace: "ns", AgentID: "a1", Key: "k1"}

	func() {
		b := openTestDisk(t, dir)
		for v := uint64(1); v <= 3; v++ {
			rec := StateRecord{ID: id, Value: value.NewNumber(float64(v)), Version: v, CommitTs: v}
			if err := b.WriteState(rec); err != nil {
				t.Fatalf("WriteState v%d: %v", v, err)
			}
		}
		if _, err := b.NextCommitTs(); err != nil {
			t.Fatalf("NextCommitTs: %v", err)
		}
	}()

	// Reopen against the same directory, simulating a process restart.
	reopened := openTestDisk(t, dir)

	latest, ok, err := reopened.ReadState(id)
	if err != nil || !ok || latest.Version != 3 {
		t.Fatalf("expected recovered latest version 3, got %+v ok=%v err=%v", latest, ok, err)
	}

	for v := uint64(1); v <= 3; v++ {
		rec, ok, err := reopened.ReadStateAtVersion(id, v)
		if err != nil || !ok || rec.Value.Number != float64(v) {
			t.Fatalf("expected recovered version %d, got %+v ok=%v err=%v", v, rec, ok, err)
		}
	}

	next, err := reopened.NextCommitTs()
	if err != nil {
		t.Fatalf("NextCommitTs after reopen: %v", err)
	}
	if next <= 4 {
		t.Fatalf("expected commit_ts counter to resume past prior writes, got %d", next)
	}
}

func TestDiskBackendScanPrefixIsExplicitlyBounded(t *testing.T) {
	dir := t.TempDir()
	b := openTestDisk(t, dir)
	ns, agent := "ns", "a1"

	for _, k := range []string{"cfg/a", "cfg/b", "cfg0", "other"} {
		id := RecordID{Namespace: ns, AgentID: agent, Key: k}
		if err := b.WriteState(StateRecord{ID: id, Value: value.NewBool(true), Version: 1, CommitTs: 1}); err != nil {
			t.Fatalf("WriteState(%s): %v", k, err)
		}
	}

	recs, err := b.ScanPrefix(ns, agent, "cfg/")
	if err != nil {
		t.Fatalf("ScanPrefix: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected exactly the 2 keys under cfg/, got %d: %+v", len(recs), recs)
	}
}

func TestDiskBackendSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := openTestDisk(t, dir)

	id := RecordID{Namespace: "ns", AgentID: "a1", Key: "k1"}
	rec := StateRecord{ID: id, Value: value.NewString("hello"), Version: 1, CommitTs: 1}
	if err := b.WriteState(rec); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	snap := Snapshot{
		Metadata: SnapshotMetadata{FormatVersion: CurrentSnapshotFormatVersion, SnapshotTs: 1, RecordCount: 1},
		Records:  []StateRecord{rec},
	}
	if err := b.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, ok, err := b.LoadSnapshot()
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot: ok=%v err=%v", ok, err)
	}
	if len(loaded.Records) != 1 || !value.Equal(loaded.Records[0].Value, rec.Value) {
		t.Fatalf("unexpected loaded snapshot: %+v", loaded)
	}
}

func TestDiskBackendSnapshotVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	b := openTestDisk(t, dir)

	snap := Snapshot{Metadata: SnapshotMetadata{FormatVersion: CurrentSnapshotFormatVersion + 1}}
	if err := b.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	_, _, err := b.LoadSnapshot()
	if !errors.Is(err, ErrSnapshotVersionMismatch) {
		t.Fatalf("expected ErrSnapshotVersionMismatch, got %v", err)
	}
}

func TestDiskBackendEncryptedSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.Encryption = EncryptionConfig{Enabled: true, Passphrase: "correct horse battery staple"}
	b, err := OpenDiskBackend(cfg)
	if err != nil {
		t.Fatalf("OpenDiskBackend: %v", err)
	}
	defer b.Close()

	id := RecordID{Namespace: "ns", AgentID: "a1", Key: "k1"}
	rec := StateRecord{ID: id, Value: value.NewString("secret"), Version: 1, CommitTs: 1}
	snap := Snapshot{
		Metadata: SnapshotMetadata{FormatVersion: CurrentSnapshotFormatVersion, RecordCount: 1},
		Records:  []StateRecord{rec},
	}
	if err := b.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, ok, err := b.LoadSnapshot()
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot: ok=%v err=%v", ok, err)
	}
	if !value.Equal(loaded.Records[0].Value, rec.Value) {
		t.Fatalf("decrypted snapshot mismatch: %+v", loaded.Records[0].Value)
	}
}

func TestDiskBackendMaxVersions(t *testing.T) {
	dir := t.TempDir()
	b := openTestDisk(t, dir)
	id := RecordID{Namespace: "ns", AgentID: "a1", Key: "k1"}

	for v := uint64(1); v <= 5; v++ {
		if err := b.WriteState(StateRecord{ID: id, Value: value.NewNumber(float64(v)), Version: v, CommitTs: v}); err != nil {
			t.Fatalf("WriteState v%d: %v", v, err)
		}
	}

	maxVersions, err := b.MaxVersions()
	if err != nil {
		t.Fatalf("MaxVersions: %v", err)
	}
	if maxVersions[id] != 5 {
		t.Fatalf("expected max version 5, got %d", maxVersions[id])
	}
}
