package api

// IngestNeuralDataRequest is the body of POST /v1/ingest/neural-data
// (spec.md §6: "JSON (schema §3 SampleChunk, signals base64+codec
// ref)"). Signals carries the same binary wire format pkg/sample.Codec
// produces, base64-encoded; CodecVersion is informational only — the
// codec rejects any version byte it doesn't recognize itself.
type IngestNeuralDataRequest struct {
	SessionID    string `json:"session_id" validate:"required"`
	CodecVersion int    `json:"codec_version"`
	Signals      string `json:"signals" validate:"required"`
}

// IngestNeuralDataResponse is spec.md §6's
// `{session_id, samples_processed, quality, ledger_event_id}`.
type IngestNeuralDataResponse struct {
	SessionID        string  `json:"session_id"`
	SamplesProcessed int     `json:"samples_processed"`
	Quality          float64 `json:"quality"`
	LedgerEventID    string  `json:"ledger_event_id"`
}

// BatchUploadResponse is spec.md §6's `{batch_id, ledger_event_id}`.
type BatchUploadResponse struct {
	BatchID       string `json:"batch_id"`
	LedgerEventID string `json:"ledger_event_id"`
}

// SessionStartRequest is spec.md §6's `{paradigm?, devices[]}`.
type SessionStartRequest struct {
	Paradigm string   `json:"paradigm"`
	Devices  []string `json:"devices" validate:"omitempty,dive,required"`
	UserID   string   `json:"user_id"`
}

// SessionStartResponse is spec.md §6's `{session_id}`.
type SessionStartResponse struct {
	SessionID string `json:"session_id"`
}

// SessionEndRequest is spec.md §6's `{session_id}`.
type SessionEndRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// SessionResponse mirrors devicemanager.Session for the wire.
type SessionResponse struct {
	SessionID string            `json:"session_id"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	StartedAt int64             `json:"started_at_ns"`
	EndedAt   int64             `json:"ended_at_ns,omitempty"`
}

// DeviceCreateRequest is spec.md §6's "discovery + params" body for
// POST /v1/devices: the discovery id a prior scan surfaced, plus a
// device type. The handler builds the driver with the server's
// DriverFactory and does not read DeviceType.
type DeviceCreateRequest struct {
	DiscoveryID string `json:"discovery_id" validate:"required"`
	DeviceType  string `json:"device_type" validate:"required"`
}

// DeviceResponse describes one managed device.
type DeviceResponse struct {
	DeviceID   string `json:"device_id"`
	DeviceType string `json:"device_type"`
	State      string `json:"state"`
}

// StreamStartRequest is spec.md §6's `{session_id}` body for
// POST /v1/devices/{id}/stream/start.
type StreamStartRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// StateResponse is the generic `state` response spec.md §6 names for
// connect/stream-start operations.
type StateResponse struct {
	DeviceID string `json:"device_id"`
	State    string `json:"state"`
}

// ChannelQualityResponse mirrors features.ChannelQuality for the wire.
type ChannelQualityResponse struct {
	ChannelID     string   `json:"channel_id"`
	SNRdB         float64  `json:"snr_db"`
	LineNoise50Hz float64  `json:"line_noise_50hz"`
	LineNoise60Hz float64  `json:"line_noise_60hz"`
	Artifacts     []string `json:"artifacts,omitempty"`
	Overall       float64  `json:"overall"`
	Level         string   `json:"level"`
}

// QualityReportResponse mirrors features.QualityReport for the wire.
type QualityReportResponse struct {
	Overall  float64                  `json:"overall"`
	Channels []ChannelQualityResponse `json:"channels"`
}

// HealthSnapshotResponse is one device's point-in-time health, the
// element type of GET /v1/devices/health's list.
type HealthSnapshotResponse struct {
	DeviceID            string  `json:"device_id"`
	State                string  `json:"state"`
	ConsecutiveDegraded int     `json:"consecutive_degraded"`
	LastQualityOverall  float64 `json:"last_quality_overall"`
	LastCheckedAtNs     int64   `json:"last_checked_at_ns"`
}

// HealthAlertResponse mirrors devicemanager.HealthAlert for the wire.
type HealthAlertResponse struct {
	DeviceID             string `json:"device_id"`
	State                string `json:"state"`
	ConsecutiveIntervals int    `json:"consecutive_intervals"`
	AtTsNs               int64  `json:"at_ts_ns"`
}

// DiscoveredDeviceResponse mirrors discovery.Device for the wire.
type DiscoveredDeviceResponse struct {
	DiscoveryID  string `json:"discovery_id"`
	DeviceType   string `json:"device_type"`
	Protocol     string `json:"protocol"`
	Endpoint     string `json:"endpoint"`
	RSSI         *int   `json:"rssi,omitempty"`
	FriendlyName string `json:"friendly_name,omitempty"`
}

// LedgerVerifyResponse is spec.md §6's `OK` or
// `Violation{first_bad_seq,reason}` response for
// GET /v1/ledger/verify.
type LedgerVerifyResponse struct {
	Status      string `json:"status"` // "ok"; a violation is returned as a 503 problem instead
	FirstBadSeq uint64 `json:"first_bad_seq,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// LedgerEventResponse mirrors one ledger.Event for neuralctl's
// "ledger dump <range>" (spec.md §6).
type LedgerEventResponse struct {
	EventID      string            `json:"event_id"`
	TsNs         int64             `json:"ts_ns"`
	EventType    string            `json:"event_type"`
	SessionID    string            `json:"session_id,omitempty"`
	DeviceID     string            `json:"device_id,omitempty"`
	UserIDAnon   string            `json:"user_id_anon,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Seq          uint64            `json:"seq"`
	Shard        int               `json:"shard"`
	SigningKeyID string            `json:"signing_key_id,omitempty"`
}

// LedgerDumpResponse is GET /v1/ledger/dump's body: every shard's
// events in the requested sequence range.
type LedgerDumpResponse struct {
	Events []LedgerEventResponse `json:"events"`
}
