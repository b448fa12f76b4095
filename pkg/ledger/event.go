// Package ledger implements the Neural Ledger (spec.md §4.8 / §6): a
// single-writer-per-shard SHA-256 hash chain of every data-affecting
// event, materialized across a time-series chain store (authoritative),
// an analytical store (append-only, day-partitioned), and a document
// index (per-session/per-user secondary lookups), with an optional KMS
// signature over each event_hash and a replay-based verify(range) API.
package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// EventType is one of spec.md §3's canonical LedgerEvent event types.
type EventType string

const (
	EventSessionCreated     EventType = "session_created"
	EventSessionClosed      EventType = "session_closed"
	EventDeviceConnected    EventType = "device_connected"
	EventDeviceDisconnected EventType = "device_disconnected"
	EventDataIngested       EventType = "data_ingested"
	EventFeaturesComputed   EventType = "features_computed"
	EventAnomalyDetected    EventType = "anomaly_detected"
	EventAccessGranted      EventType = "access_granted"
	EventAccessDenied       EventType = "access_denied"
	EventKeyRotated         EventType = "key_rotated"
	EventPurgeExecuted      EventType = "purge_executed"
)

// Event is spec.md §3's LedgerEvent: one entry in the hash chain.
// DataHash, Signature and SigningKeyID are optional; a zero DataHash
// means "no payload to bind" rather than a 32 zero bytes hash.
type Event struct {
	EventID      uuid.UUID
	TsNs         int64
	EventType    EventType
	SessionID    string
	DeviceID     string
	UserIDAnon   string
	DataHash     [32]byte
	HasDataHash  bool
	Metadata     map[string]string
	PrevHash     [32]byte
	EventHash    [32]byte
	Signature    []byte
	SigningKeyID string
	Seq          uint64
	Shard        int
}

// Genesis is the all-zero hash that seeds a new chain (spec.md §3:
// "Genesis event has prev_hash = 0…0").
var Genesis [32]byte

// CanonicalBytes builds spec.md §6's canonical encoding: the
// concatenation, in a fixed order, of
// event_id(16B) | ts_ns(8B LE) | event_type(uvarint-prefixed utf8) |
// session_id | device_id | user_id_anon | data_hash(32B or zero) |
// metadata(sorted-keys canonical JSON) | prev_hash(32B).
func (e *Event) CanonicalBytes() ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(e.EventID[:])

	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], uint64(e.TsNs))
	buf.Write(tsBuf[:])

	writeUvarintString(&buf, string(e.EventType))
	writeUvarintString(&buf, e.SessionID)
	writeUvarintString(&buf, e.DeviceID)
	writeUvarintString(&buf, e.UserIDAnon)

	if e.HasDataHash {
		buf.Write(e.DataHash[:])
	} else {
		var zero [32]byte
		buf.Write(zero[:])
	}

	metaBytes, err := canonicalJSON(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("ledger: canonicalize metadata: %w", err)
	}
	writeUvarintBytes(&buf, metaBytes)

	buf.Write(e.PrevHash[:])

	return buf.Bytes(), nil
}

// ComputeHash sets e.EventHash from e.CanonicalBytes() and returns it.
func (e *Event) ComputeHash() ([32]byte, error) {
	canon, err := e.CanonicalBytes()
	if err != nil {
		return [32]byte{}, err
	}
	e.EventHash = sha256.Sum256(canon)
	return e.EventHash, nil
}

// VerifyHash reports whether e.EventHash matches the recomputation of
// its canonical bytes, i.e. the event has not been tampered with.
func (e *Event) VerifyHash() (bool, error) {
	canon, err := e.CanonicalBytes()
	if err != nil {
		return false, err
	}
	return sha256.Sum256(canon) == e.EventHash, nil
}

func writeUvarintString(buf *bytes.Buffer, s string) {
	writeUvarintBytes(buf, []byte(s))
}

func writeUvarintBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	buf.Write(lenBuf[:n])
	buf.Write(b)
}

// canonicalJSON renders metadata with sorted keys, so two events built
// from the same map always hash identically regardless of Go map
// iteration order.
func canonicalJSON(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]struct {
		Key   string
		Value string
	}, len(keys))
	for i, k := range keys {
		ordered[i].Key = k
		ordered[i].Value = metadata[k]
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range ordered {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
