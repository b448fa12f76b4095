package ingestion

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/neurascale/neural-engine/pkg/device"
	"github.com/neurascale/neural-engine/pkg/sample"
)

// AnomalyRecorder is the seam DeviceSink uses to record a dropped-sample
// gap as an anomaly event, narrowed from pkg/ledger.Recorder the same
// way the rest of this package narrows its external dependencies.
type AnomalyRecorder interface {
	RecordAnomaly(deviceID, sessionID, reason string) error
}

// DeviceSink adapts a live-streaming Driver (pkg/device.Sink) onto a
// Service, so pkg/devicemanager's StartStreaming can feed chunks
// straight into the same ingest path HTTP-submitted chunks take
// (spec.md §4.4's ChunkSink, §4.5's ingest entrypoint).
type DeviceSink struct {
	Service *Service
	Ledger  AnomalyRecorder
	Logger  logr.Logger
}

var _ device.Sink = (*DeviceSink)(nil)

// Accept enqueues chunk for ingestion. A chunk dropped at this stage
// (buffer over high watermark) is logged rather than propagated: Accept
// has no error return, mirroring the fire-and-forget contract every
// Driver.StartStream implementation expects of its Sink.
func (s *DeviceSink) Accept(chunk *sample.Chunk) {
	if err := s.Service.Ingest(context.Background(), chunk.SessionID, chunk); err != nil {
		s.Logger.Error(err, "ingestion: dropped live-streamed chunk",
			"device_id", chunk.DeviceID, "session_id", chunk.SessionID)
	}
}

// GapDetected records a dropped-sample gap as an anomaly event (spec.md
// §4.2: "drivers never silently drop samples").
func (s *DeviceSink) GapDetected(deviceID string, atTsNs int64, approxSamples int) {
	if s.Ledger == nil {
		return
	}
	if err := s.Ledger.RecordAnomaly(deviceID, "", "sample_gap"); err != nil {
		s.Logger.Error(err, "ingestion: record anomaly failed", "device_id", deviceID, "at_ts_ns", atTsNs, "approx_samples", approxSamples)
	}
}
