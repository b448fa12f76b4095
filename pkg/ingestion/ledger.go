package ingestion

// LedgerRecorder is the ingestion service's view of the append-only
// ledger (pkg/ledger provides the concrete implementation): every
// accepted chunk, shed chunk, and completed batch upload is recorded as
// an event (spec.md §4.5, §4.8).
type LedgerRecorder interface {
	RecordDataIngested(deviceID, sessionID string, seq uint64, numSamples int, quality float64) error
	RecordAnomaly(deviceID, sessionID, reason string) error
	RecordBatchUploaded(sessionID, objectKey string, numChunks int) error
}
