package ledger

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder is the Neural Ledger's concrete event-recording façade,
// consumed by pkg/ingestion (as ingestion.LedgerRecorder) and
// pkg/devicemanager. It routes each intent to the right shard's Chain
// by hashing session_id (spec.md §4.8), and stamps TsNs/IntentID
// itself so callers never need a clock or a UUID source.
type Recorder struct {
	Shards []*Chain // index i holds the Chain for shard i
}

// NewRecorder builds a Recorder over shards, which must be indexed by
// shard number (shards[i].Shard == i).
func NewRecorder(shards []*Chain) *Recorder {
	return &Recorder{Shards: shards}
}

func (r *Recorder) chainFor(sessionID string) *Chain {
	shard := ShardFor(sessionID, len(r.Shards))
	return r.Shards[shard]
}

func (r *Recorder) append(ctx context.Context, eventType EventType, sessionID, deviceID, userIDAnon string, dataHash [32]byte, hasDataHash bool, metadata map[string]string) error {
	intent := Intent{
		IntentID:    uuid.NewString(),
		EventType:   eventType,
		SessionID:   sessionID,
		DeviceID:    deviceID,
		UserIDAnon:  userIDAnon,
		DataHash:    dataHash,
		HasDataHash: hasDataHash,
		Metadata:    metadata,
		TsNs:        time.Now().UnixNano(),
	}
	chain := r.chainFor(sessionID)
	_, err := chain.Append(ctx, intent)
	return err
}

// RecordDataIngested implements pkg/ingestion.LedgerRecorder (spec.md
// §4.5 step 6: "Emit a data_ingested ledger event carrying session_id,
// device_id, chunk_seq, data_hash, quality.overall").
func (r *Recorder) RecordDataIngested(deviceID, sessionID string, seq uint64, numSamples int, quality float64) error {
	meta := map[string]string{
		"chunk_seq":   fmt.Sprintf("%d", seq),
		"num_samples": fmt.Sprintf("%d", numSamples),
		"quality":     fmt.Sprintf("%.4f", quality),
	}
	dataHash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", sessionID, deviceID, seq)))
	return r.append(context.Background(), EventDataIngested, sessionID, deviceID, "", dataHash, true, meta)
}

// RecordAnomaly implements pkg/ingestion.LedgerRecorder.
func (r *Recorder) RecordAnomaly(deviceID, sessionID, reason string) error {
	meta := map[string]string{"reason": reason}
	return r.append(context.Background(), EventAnomalyDetected, sessionID, deviceID, "", [32]byte{}, false, meta)
}

// RecordBatchUploaded implements pkg/ingestion.LedgerRecorder. Each
// replayed chunk already gets its own data_ingested event as it is
// dispatched (pkg/ingestion.Service.dispatch); this records one
// additional summary data_ingested event for the batch as a whole, so
// `ledger dump` shows the upload happened even if a later audit only
// samples events rather than reading every per-chunk record.
func (r *Recorder) RecordBatchUploaded(sessionID, objectKey string, numChunks int) error {
	meta := map[string]string{
		"object_key": objectKey,
		"num_chunks": fmt.Sprintf("%d", numChunks),
		"batch":      "true",
	}
	return r.append(context.Background(), EventDataIngested, sessionID, "", "", [32]byte{}, false, meta)
}

// RecordFeaturesComputed implements pkg/pipeline.LedgerRecorder
// (spec.md §4.6: "features_computed ledger events (metadata only — no
// raw feature payload — plus features_hash)"). featuresHash is the
// caller's hash of the emitted FeatureFrame, not of any raw sample data.
func (r *Recorder) RecordFeaturesComputed(sessionID string, windowStartNs, windowEndNs int64, featuresHash [32]byte) error {
	meta := map[string]string{
		"window_start_ns": fmt.Sprintf("%d", windowStartNs),
		"window_end_ns":   fmt.Sprintf("%d", windowEndNs),
	}
	return r.append(context.Background(), EventFeaturesComputed, sessionID, "", "", featuresHash, true, meta)
}

// RecordDeviceConnected records device_connected (spec.md §4.4: "the
// ledger records the issuance regardless of no-op status").
func (r *Recorder) RecordDeviceConnected(ctx context.Context, deviceID string) error {
	return r.append(ctx, EventDeviceConnected, "", deviceID, "", [32]byte{}, false, nil)
}

// RecordDeviceDisconnected records device_disconnected.
func (r *Recorder) RecordDeviceDisconnected(ctx context.Context, deviceID string) error {
	return r.append(ctx, EventDeviceDisconnected, "", deviceID, "", [32]byte{}, false, nil)
}

// RecordSessionCreated records session_created.
func (r *Recorder) RecordSessionCreated(ctx context.Context, sessionID, userIDAnon string) error {
	return r.append(ctx, EventSessionCreated, sessionID, "", userIDAnon, [32]byte{}, false, nil)
}

// RecordSessionClosed records session_closed.
func (r *Recorder) RecordSessionClosed(ctx context.Context, sessionID string) error {
	return r.append(ctx, EventSessionClosed, sessionID, "", "", [32]byte{}, false, nil)
}

// RecordAccessGranted records access_granted (spec.md §7's
// PermissionError counterpart on the success path).
func (r *Recorder) RecordAccessGranted(ctx context.Context, sessionID, userIDAnon, scope string) error {
	return r.append(ctx, EventAccessGranted, sessionID, "", userIDAnon, [32]byte{}, false, map[string]string{"scope": scope})
}

// RecordAccessDenied records access_denied (spec.md §7: "PermissionError
// — emits access_denied ledger event; caller sees 403").
func (r *Recorder) RecordAccessDenied(ctx context.Context, sessionID, userIDAnon, scope string) error {
	return r.append(ctx, EventAccessDenied, sessionID, "", userIDAnon, [32]byte{}, false, map[string]string{"scope": scope})
}

// RecordKeyRotated records key_rotated.
func (r *Recorder) RecordKeyRotated(ctx context.Context, newKeyID string) error {
	return r.append(ctx, EventKeyRotated, "", "", "", [32]byte{}, false, map[string]string{"signing_key_id": newKeyID})
}

// RecordAction implements pkg/devicemanager.LedgerRecorder: the
// generic per-operation ledger hook the Device Manager calls for every
// public operation, successful or no-op (spec.md §4.4: "the ledger
// records the issuance regardless of no-op status"). Only actions that
// map to one of spec.md §3's canonical event types actually append an
// event; the rest (start_streaming, stop_streaming, check_impedance,
// get_signal_quality, create_from_discovery) have no dedicated ledger
// event type and are left to telemetry/metrics, which the Device
// Manager already records for every action regardless.
func (r *Recorder) RecordAction(ctx context.Context, action, deviceID, sessionID string, noop bool) error {
	meta := map[string]string{"noop": fmt.Sprintf("%t", noop)}
	var eventType EventType
	switch action {
	case "connect":
		eventType = EventDeviceConnected
	case "disconnect", "remove_device":
		eventType = EventDeviceDisconnected
	case "start_session":
		// devicemanager passes the session id as both deviceID and
		// sessionID for this action; there is no device to record.
		return r.append(ctx, EventSessionCreated, sessionID, "", "", [32]byte{}, false, meta)
	case "end_session":
		return r.append(ctx, EventSessionClosed, sessionID, "", "", [32]byte{}, false, meta)
	default:
		return nil
	}
	return r.append(ctx, eventType, sessionID, deviceID, "", [32]byte{}, false, meta)
}

// Purge appends purge_executed for userIDAnon across every shard,
// since the user's events may be scattered across shards (spec.md §7:
// "the ledger does not delete — instead appends a purge_executed event
// with the scope. This preserves the chain's integrity and
// auditability"). Raw-chunk deletion is the caller's responsibility
// (pkg/datastorage), not the ledger's.
func (r *Recorder) Purge(ctx context.Context, userIDAnon string) error {
	scope := fmt.Sprintf("user:%s", userIDAnon)
	for _, chain := range r.Shards {
		intent := Intent{
			IntentID:   uuid.NewString(),
			EventType:  EventPurgeExecuted,
			UserIDAnon: userIDAnon,
			Metadata:   map[string]string{"scope": scope},
			TsNs:       time.Now().UnixNano(),
		}
		if _, err := chain.Append(ctx, intent); err != nil {
			return fmt.Errorf("ledger: purge on shard %d: %w", chain.Shard, err)
		}
	}
	return nil
}
