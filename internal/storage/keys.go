package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Key family prefixes. Fixed prefixes disambiguate families regardless of
// the length of the user-supplied namespace/agent/key components, so no
// combination of user input can collide across families (spec §4.2).
const (
	prefixState    = "state:"
	prefixVersion  = "version:"
	prefixEvent    = "event:"
	commitTsKey    = "__commit_ts__"
	versionDigits  = 20
	commitTsDigits = 20
)

// stateKey builds the "state:{ns}:{agent}:{key}" key for the latest value.
func stateKey(id RecordID) string {
	return prefixState + id.Namespace + ":" + id.AgentID + ":" + id.Key
}

// statePrefixFor builds the "state:{ns}:{agent}:{prefix}" prefix used by
// ScanPrefix; with an empty keyPrefix it equals stateFamilyPrefix.
func statePrefixFor(namespace, agentID, keyPrefix string) string {
	return prefixState + namespace + ":" + agentID + ":" + keyPrefix
}

// stateFamilyPrefix builds the "state:{ns}:{agent}:" prefix used by
// ListKeys to select every key under (namespace, agent).
func stateFamilyPrefix(namespace, agentID string) string {
	return prefixState + namespace + ":" + agentID + ":"
}

// versionKey builds the "version:{ns}:{agent}:{key}:{version}" key for a
// specific historical version, zero-padded to 20 decimal digits so
// lexicographic order matches numeric order across the full uint64 range.
func versionKey(id RecordID, version uint64) string {
	return prefixVersion + id.Namespace + ":" + id.AgentID + ":" + id.Key + ":" + padUint(version, versionDigits)
}

// eventKey builds the "event:{commit_ts}" key.
func eventKey(commitTs uint64) string {
	return prefixEvent + padUint(commitTs, commitTsDigits)
}

// eventKeyPrefix is the shared prefix of every event key, as checked by
// parseEventKey.
const eventKeyPrefix = prefixEvent

func padUint(v uint64, digits int) string {
	s := strconv.FormatUint(v, 10)
	if len(s) >= digits {
		return s
	}
	return strings.Repeat("0", digits-len(s)) + s
}

// parseEventKey extracts the commit_ts encoded in an event key. The
// backends in this package read events from their own logs, not by key.
func parseEventKey(key string) (uint64, error) {
	if !strings.HasPrefix(key, eventKeyPrefix) {
		return 0, fmt.Errorf("storage: %q is not an event key", key)
	}
	return strconv.ParseUint(strings.TrimPrefix(key, eventKeyPrefix), 10, 64)
}

// keyTail returns the portion of a "state:{ns}:{agent}:" key after the
// family/namespace/agent prefix, i.e. the application key.
func keyTail(fullKey, familyPrefix string) string {
	return strings.TrimPrefix(fullKey, familyPrefix)
}
