package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/pbkdf2"

	"github.com/mnohosten/agentstate/internal/value"
)

const (
	recordKindState uint8 = 1
	recordKindEvent uint8 = 2

	recordLogFile  = "records.log"
	snapshotFile   = "snapshot.bin"
	snapshotTmpExt = ".tmp"
)

// EncryptionConfig optionally encrypts the snapshot file at rest with
// AES-256-GCM, key derived from Passphrase via PBKDF2 (100,000 rounds,
// SHA-256), in the spirit of the teacher's pkg/encryption package.
type EncryptionConfig struct {
	Enabled    bool
	Passphrase string
}

// Config configures a DiskBackend.
type Config struct {
	DataDir          string
	SyncOnWrite      bool
	CompressSnapshot bool
	Encryption       EncryptionConfig
}

// DefaultConfig returns the default on-disk configuration: fsync every
// write, zstd-compress snapshots, no encryption.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:          dataDir,
		SyncOnWrite:      true,
		CompressSnapshot: true,
	}
}

// DiskBackend is a durable Backend: an append-only record log rebuilt into
// an in-memory sorted index at open time, plus a separately-persisted
// snapshot file, mirroring the teacher's disk_manager.go/wal.go split
// between the append log and the checkpointed page file. There is no
// embedded ordered-KV engine anywhere in the retrieval pack, so this
// backend is hand-rolled rather than wrapping one.
type DiskBackend struct {
	cfg Config

	mu       sync.RWMutex
	log      *os.File
	latest   map[string]StateRecord
	versions map[string]StateRecord
	keys     []string // sorted latest: keys, kept in sync with `latest`
	lastCommitTs uint64
}

// OpenDiskBackend opens (creating if absent) the record log under
// cfg.DataDir and replays it to rebuild the in-memory index.
func OpenDiskBackend(cfg Config) (*DiskBackend, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir data dir: %v", ErrBackendIO, err)
	}

	path := filepath.Join(cfg.DataDir, recordLogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open record log: %v", ErrBackendIO, err)
	}

	b := &DiskBackend{
		cfg:      cfg,
		log:      f,
		latest:   make(map[string]StateRecord),
		versions: make(map[string]StateRecord),
	}

	if err := b.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return b, nil
}

// replay reads every frame in the record log from the start and rebuilds
// the in-memory latest/versions index and lastCommitTs, the same role the
// teacher's WAL recovery plays for its buffer pool.
func (b *DiskBackend) replay() error {
	if _, err := b.log.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek record log: %v", ErrBackendIO, err)
	}

	r := io.Reader(b.log)
	for {
		kind, payload, err := readFrame(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: replay record log: %v", ErrDecode, err)
		}

		switch kind {
		case recordKindState:
			rec, err := decodeStateRecord(payload)
			if err != nil {
				return err
			}
			b.latest[stateKey(rec.ID)] = rec
			b.versions[versionKey(rec.ID, rec.Version)] = rec
			if rec.CommitTs > b.lastCommitTs {
				b.lastCommitTs = rec.CommitTs
			}
		case recordKindEvent:
			entry, err := decodeEventLogEntry(payload)
			if err != nil {
				return err
			}
			if entry.CommitTs > b.lastCommitTs {
				b.lastCommitTs = entry.CommitTs
			}
		default:
			return fmt.Errorf("%w: unknown record kind %d in log", ErrDecode, kind)
		}
	}

	if _, err := b.log.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("%w: seek record log to end: %v", ErrBackendIO, err)
	}
	b.rebuildSortedKeys()
	return nil
}

func (b *DiskBackend) rebuildSortedKeys() {
	b.keys = b.keys[:0]
	for k := range b.latest {
		b.keys = append(b.keys, k)
	}
	sort.Strings(b.keys)
}

func (b *DiskBackend) WriteState(rec StateRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	payload := encodeStateRecord(rec)
	if err := writeFrame(b.log, recordKindState, payload); err != nil {
		return fmt.Errorf("%w: append state record: %v", ErrBackendIO, err)
	}
	if b.cfg.SyncOnWrite {
		if err := b.log.Sync(); err != nil {
			return fmt.Errorf("%w: fsync record log: %v", ErrBackendIO, err)
		}
	}

	sk := stateKey(rec.ID)
	if _, existed := b.latest[sk]; !existed {
		idx := sort.SearchStrings(b.keys, sk)
		b.keys = append(b.keys, "")
		copy(b.keys[idx+1:], b.keys[idx:])
		b.keys[idx] = sk
	}
	b.latest[sk] = rec
	b.versions[versionKey(rec.ID, rec.Version)] = rec
	if rec.CommitTs > b.lastCommitTs {
		b.lastCommitTs = rec.CommitTs
	}
	return nil
}

func (b *DiskBackend) ReadState(id RecordID) (StateRecord, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.latest[stateKey(id)]
	return rec, ok, nil
}

func (b *DiskBackend) ReadStateAtVersion(id RecordID, version uint64) (StateRecord, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.versions[versionKey(id, version)]
	return rec, ok, nil
}

func (b *DiskBackend) ListKeys(namespace, agentID string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	prefix := stateFamilyPrefix(namespace, agentID)
	out := make([]string, 0)
	b.forEachInPrefix(prefix, func(k string, rec StateRecord) {
		if !rec.Deleted {
			out = append(out, keyTail(k, prefix))
		}
	})
	return out, nil
}

func (b *DiskBackend) ScanPrefix(namespace, agentID, keyPrefix string) ([]StateRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	prefix := statePrefixFor(namespace, agentID, keyPrefix)
	out := make([]StateRecord, 0)
	b.forEachInPrefix(prefix, func(_ string, rec StateRecord) {
		if !rec.Deleted {
			out = append(out, rec)
		}
	})
	return out, nil
}

// forEachInPrefix walks the sorted key index over [prefix, prefix+\xff)
// explicitly, rather than relying on any engine-level prefix filtering
// (spec §9 Open Question 3).
func (b *DiskBackend) forEachInPrefix(prefix string, fn func(key string, rec StateRecord)) {
	start := sort.SearchStrings(b.keys, prefix)
	for i := start; i < len(b.keys); i++ {
		k := b.keys[i]
		if !hasPrefix(k, prefix) {
			break
		}
		fn(k, b.latest[k])
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (b *DiskBackend) AppendEvent(entry EventLogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	payload := encodeEventLogEntry(entry)
	if err := writeFrame(b.log, recordKindEvent, payload); err != nil {
		return fmt.Errorf("%w: append event: %v", ErrBackendIO, err)
	}
	if b.cfg.SyncOnWrite {
		if err := b.log.Sync(); err != nil {
			return fmt.Errorf("%w: fsync record log: %v", ErrBackendIO, err)
		}
	}
	if entry.CommitTs > b.lastCommitTs {
		b.lastCommitTs = entry.CommitTs
	}
	return nil
}

// ReplayEvents re-reads the record log from the start and filters event
// frames. A production deployment would keep a secondary event-only log
// file instead of re-scanning the full log; this adapter trades replay
// cost for a single append-only file, acceptable given the single-log
// design chosen for this backend.
func (b *DiskBackend) ReplayEvents(namespace, agentID string, startTs, endTs *uint64) ([]EventLogEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, err := b.log.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek record log: %v", ErrBackendIO, err)
	}
	defer b.log.Seek(0, io.SeekEnd)

	out := make([]EventLogEntry, 0)
	for {
		kind, payload, err := readFrame(b.log)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: replay events: %v", ErrDecode, err)
		}
		if kind != recordKindEvent {
			continue
		}
		entry, err := decodeEventLogEntry(payload)
		if err != nil {
			return nil, err
		}
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

func (b *DiskBackend) NextCommitTs() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastCommitTs++
	return b.lastCommitTs, nil
}

func (b *DiskBackend) Flush() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.log.Sync(); err != nil {
		return fmt.Errorf("%w: fsync record log: %v", ErrBackendIO, err)
	}
	return nil
}

// SaveSnapshot writes snap to a temp file under DataDir, optionally
// zstd-compressing and AES-256-GCM-encrypting it, then atomically renames
// it into place, matching the teacher's disk_manager checkpoint pattern.
func (b *DiskBackend) SaveSnapshot(snap Snapshot) error {
	raw, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	if b.cfg.CompressSnapshot {
		raw, err = zstdCompress(raw)
		if err != nil {
			return fmt.Errorf("%w: compress snapshot: %v", ErrBackendIO, err)
		}
	}
	if b.cfg.Encryption.Enabled {
		raw, err = encryptAESGCM(raw, b.cfg.Encryption.Passphrase)
		if err != nil {
			return fmt.Errorf("%w: encrypt snapshot: %v", ErrBackendIO, err)
		}
	}

	header := snapshotHeader{
		Compressed: b.cfg.CompressSnapshot,
		Encrypted:  b.cfg.Encryption.Enabled,
	}
	framed := append(encodeSnapshotHeader(header), raw...)

	finalPath := filepath.Join(b.cfg.DataDir, snapshotFile)
	tmpPath := finalPath + snapshotTmpExt

	if err := os.WriteFile(tmpPath, framed, 0o644); err != nil {
		return fmt.Errorf("%w: write snapshot temp file: %v", ErrBackendIO, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("%w: rename snapshot into place: %v", ErrBackendIO, err)
	}
	return nil
}

func (b *DiskBackend) LoadSnapshot() (Snapshot, bool, error) {
	path := filepath.Join(b.cfg.DataDir, snapshotFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: read snapshot file: %v", ErrBackendIO, err)
	}

	header, rest, err := decodeSnapshotHeader(data)
	if err != nil {
		return Snapshot{}, false, err
	}

	raw := rest
	if header.Encrypted {
		raw, err = decryptAESGCM(raw, b.cfg.Encryption.Passphrase)
		if err != nil {
			return Snapshot{}, false, fmt.Errorf("%w: decrypt snapshot: %v", ErrBackendIO, err)
		}
	}
	if header.Compressed {
		raw, err = zstdDecompress(raw)
		if err != nil {
			return Snapshot{}, false, fmt.Errorf("%w: decompress snapshot: %v", ErrBackendIO, err)
		}
	}

	snap, err := decodeSnapshot(raw)
	if err != nil {
		return Snapshot{}, false, err
	}
	if snap.Metadata.FormatVersion != CurrentSnapshotFormatVersion {
		return Snapshot{}, false, fmt.Errorf("%w: got %d, want %d",
			ErrSnapshotVersionMismatch, snap.Metadata.FormatVersion, CurrentSnapshotFormatVersion)
	}
	return snap, true, nil
}

func (b *DiskBackend) AllStateRecords() ([]StateRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	recs := make([]StateRecord, 0, len(b.keys))
	for _, k := range b.keys {
		recs = append(recs, b.latest[k])
	}
	return recs, nil
}

func (b *DiskBackend) MaxVersions() (map[RecordID]uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[RecordID]uint64)
	for _, rec := range b.versions {
		if rec.Version > out[rec.ID] {
			out[rec.ID] = rec.Version
		}
	}
	return out, nil
}

func (b *DiskBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.log.Close(); err != nil {
		return fmt.Errorf("%w: close record log: %v", ErrBackendIO, err)
	}
	return nil
}

var _ Backend = (*DiskBackend)(nil)

// --- frame + record encoding -------------------------------------------
//
// Frame: [1-byte kind][4-byte LE payload length][payload]. Append-only,
// read sequentially at open time to rebuild the in-memory index, the same
// split the teacher's WAL uses between log records and the buffer pool.

func writeFrame(w io.Writer, kind uint8, payload []byte) error {
	header := make([]byte, 5)
	header[0] = kind
	binary.LittleEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) (uint8, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, nil, io.EOF
		}
		return 0, nil, err
	}
	kind := header[0]
	length := binary.LittleEndian.Uint32(header[1:])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("truncated frame payload: %w", err)
	}
	return kind, payload, nil
}

func putString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeRecordID(buf *bytes.Buffer, id RecordID) {
	putString(buf, id.Namespace)
	putString(buf, id.AgentID)
	putString(buf, id.Key)
}

func decodeRecordID(r *bytes.Reader) (RecordID, error) {
	ns, err := readString(r)
	if err != nil {
		return RecordID{}, err
	}
	agent, err := readString(r)
	if err != nil {
		return RecordID{}, err
	}
	key, err := readString(r)
	if err != nil {
		return RecordID{}, err
	}
	return RecordID{Namespace: ns, AgentID: agent, Key: key}, nil
}

func encodeStateRecord(rec StateRecord) []byte {
	var buf bytes.Buffer
	encodeRecordID(&buf, rec.ID)

	var fixed [17]byte
	binary.LittleEndian.PutUint64(fixed[0:8], rec.Version)
	binary.LittleEndian.PutUint64(fixed[8:16], rec.CommitTs)
	if rec.Deleted {
		fixed[16] = 1
	}
	buf.Write(fixed[:])

	valBytes := value.Encode(rec.Value)
	putString(&buf, string(valBytes))
	return buf.Bytes()
}

func decodeStateRecord(payload []byte) (StateRecord, error) {
	r := bytes.NewReader(payload)
	id, err := decodeRecordID(r)
	if err != nil {
		return StateRecord{}, fmt.Errorf("%w: state record id: %v", ErrDecode, err)
	}

	var fixed [17]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return StateRecord{}, fmt.Errorf("%w: state record fixed fields: %v", ErrDecode, err)
	}

	valStr, err := readString(r)
	if err != nil {
		return StateRecord{}, fmt.Errorf("%w: state record value: %v", ErrDecode, err)
	}
	val, err := value.Decode([]byte(valStr))
	if err != nil {
		return StateRecord{}, fmt.Errorf("%w: state record value: %v", ErrDecode, err)
	}

	return StateRecord{
		ID:       id,
		Value:    val,
		Version:  binary.LittleEndian.Uint64(fixed[0:8]),
		CommitTs: binary.LittleEndian.Uint64(fixed[8:16]),
		Deleted:  fixed[16] == 1,
	}, nil
}

func encodeEventLogEntry(entry EventLogEntry) []byte {
	var buf bytes.Buffer
	putString(&buf, entry.TxnID)

	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], entry.CommitTs)
	buf.Write(ts[:])

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(entry.Ops)))
	buf.Write(count[:])

	for _, op := range entry.Ops {
		encodeRecordID(&buf, op.ID)
		var fixed [9]byte
		binary.LittleEndian.PutUint64(fixed[0:8], op.Version)
		if op.Deleted {
			fixed[8] = 1
		}
		buf.Write(fixed[:])
		putString(&buf, string(value.Encode(op.Value)))
	}
	return buf.Bytes()
}

func decodeEventLogEntry(payload []byte) (EventLogEntry, error) {
	r := bytes.NewReader(payload)
	txnID, err := readString(r)
	if err != nil {
		return EventLogEntry{}, fmt.Errorf("%w: event txn_id: %v", ErrDecode, err)
	}

	var ts [8]byte
	if _, err := io.ReadFull(r, ts[:]); err != nil {
		return EventLogEntry{}, fmt.Errorf("%w: event commit_ts: %v", ErrDecode, err)
	}

	var count [4]byte
	if _, err := io.ReadFull(r, count[:]); err != nil {
		return EventLogEntry{}, fmt.Errorf("%w: event op count: %v", ErrDecode, err)
	}
	n := binary.LittleEndian.Uint32(count[:])

	ops := make([]OperationRecord, 0, n)
	for i := uint32(0); i < n; i++ {
		id, err := decodeRecordID(r)
		if err != nil {
			return EventLogEntry{}, fmt.Errorf("%w: event op id: %v", ErrDecode, err)
		}
		var fixed [9]byte
		if _, err := io.ReadFull(r, fixed[:]); err != nil {
			return EventLogEntry{}, fmt.Errorf("%w: event op fixed fields: %v", ErrDecode, err)
		}
		valStr, err := readString(r)
		if err != nil {
			return EventLogEntry{}, fmt.Errorf("%w: event op value: %v", ErrDecode, err)
		}
		val, err := value.Decode([]byte(valStr))
		if err != nil {
			return EventLogEntry{}, fmt.Errorf("%w: event op value: %v", ErrDecode, err)
		}
		ops = append(ops, OperationRecord{
			ID:      id,
			Value:   val,
			Version: binary.LittleEndian.Uint64(fixed[0:8]),
			Deleted: fixed[8] == 1,
		})
	}

	return EventLogEntry{
		TxnID:    txnID,
		CommitTs: binary.LittleEndian.Uint64(ts[:]),
		Ops:      ops,
	}, nil
}

func encodeSnapshot(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer

	var meta [24]byte
	binary.LittleEndian.PutUint32(meta[0:4], uint32(snap.Metadata.FormatVersion))
	binary.LittleEndian.PutUint64(meta[4:12], snap.Metadata.SnapshotTs)
	binary.LittleEndian.PutUint32(meta[12:16], uint32(snap.Metadata.RecordCount))
	binary.LittleEndian.PutUint64(meta[16:24], uint64(snap.Metadata.CreatedAt.Unix()))
	buf.Write(meta[:])

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(snap.Records)))
	buf.Write(count[:])
	for _, rec := range snap.Records {
		recBytes := encodeStateRecord(rec)
		putString(&buf, string(recBytes))
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	r := bytes.NewReader(data)

	var meta [24]byte
	if _, err := io.ReadFull(r, meta[:]); err != nil {
		return Snapshot{}, fmt.Errorf("%w: snapshot metadata: %v", ErrDecode, err)
	}
	formatVersion := binary.LittleEndian.Uint32(meta[0:4])
	snapshotTs := binary.LittleEndian.Uint64(meta[4:12])
	createdAtUnix := int64(binary.LittleEndian.Uint64(meta[16:24]))

	var count [4]byte
	if _, err := io.ReadFull(r, count[:]); err != nil {
		return Snapshot{}, fmt.Errorf("%w: snapshot record count: %v", ErrDecode, err)
	}
	n := binary.LittleEndian.Uint32(count[:])

	records := make([]StateRecord, 0, n)
	for i := uint32(0); i < n; i++ {
		recStr, err := readString(r)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: snapshot record: %v", ErrDecode, err)
		}
		rec, err := decodeStateRecord([]byte(recStr))
		if err != nil {
			return Snapshot{}, err
		}
		records = append(records, rec)
	}

	return Snapshot{
		Metadata: SnapshotMetadata{
			FormatVersion: int(formatVersion),
			SnapshotTs:    snapshotTs,
			RecordCount:   int(n),
			CreatedAt:     time.Unix(createdAtUnix, 0).UTC(),
		},
		Records: records,
	}, nil
}

type snapshotHeader struct {
	Compressed bool
	Encrypted  bool
}

func encodeSnapshotHeader(h snapshotHeader) []byte {
	var b byte
	if h.Compressed {
		b |= 1
	}
	if h.Encrypted {
		b |= 2
	}
	return []byte{b}
}

func decodeSnapshotHeader(data []byte) (snapshotHeader, []byte, error) {
	if len(data) < 1 {
		return snapshotHeader{}, nil, fmt.Errorf("%w: empty snapshot file", ErrDecode)
	}
	b := data[0]
	return snapshotHeader{
		Compressed: b&1 != 0,
		Encrypted:  b&2 != 0,
	}, data[1:], nil
}

// --- compression / encryption -------------------------------------------

func zstdCompress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func zstdDecompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

const (
	pbkdf2Iterations = 100000
	pbkdf2KeyLen     = 32
	saltLen          = 32
)

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
}

// encryptAESGCM prefixes the ciphertext with the random salt and nonce so
// decryptAESGCM can re-derive the same key and open the same seal.
func encryptAESGCM(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, saltLen+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func decryptAESGCM(data []byte, passphrase string) ([]byte, error) {
	if len(data) < saltLen {
		return nil, fmt.Errorf("ciphertext too short")
	}
	salt, rest := data[:saltLen], data[saltLen:]

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
