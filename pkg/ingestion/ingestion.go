// Package ingestion implements the Ingestion Service (spec.md §4.5):
// validate -> quality-score -> route -> publish -> ledger, with a
// bounded, priority-sheddable buffer absorbing backpressure, and a slow
// path for replaying batch-uploaded chunks from object storage. Chunks
// carry no user id and this service anonymizes nothing; user ids are
// anonymized with AnonymizeUserID when a device manager session starts.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/neurascale/neural-engine/pkg/features"
	"github.com/neurascale/neural-engine/pkg/metrics"
	"github.com/neurascale/neural-engine/pkg/sample"
)

// Config holds the tunables for a Service (spec.md §4.5's documented
// defaults, mirrored in internal/config's IngestionConfig).
type Config struct {
	BufferCapacity  int
	HighWatermark   float64
	StreamPrefix    string
	NumPartitions   int
	TimeBucketWidth time.Duration // 0 uses defaultTimeBucket
	ProcessSalt     []byte
	QualityWeights  features.QualityWeights
}

// Service is the Ingestion Service's core pipeline. It is safe for
// concurrent use.
type Service struct {
	cfg       Config
	codec     *sample.Codec
	buffer    *boundedBuffer
	publisher *Publisher
	Ledger    LedgerRecorder
	logger    logr.Logger

	shedSub chan shedEvent
}

// NewService builds a Service wired to codec for wire encoding, pub for
// durable publish, and ledger for event recording.
func NewService(cfg Config, codec *sample.Codec, pub *Publisher, ledger LedgerRecorder, logger logr.Logger) *Service {
	buffer := newBoundedBuffer(cfg.BufferCapacity, cfg.HighWatermark)
	return &Service{
		cfg:       cfg,
		codec:     codec,
		buffer:    buffer,
		publisher: pub,
		Ledger:    ledger,
		logger:    logger,
		shedSub:   buffer.subscribeShedEvents(),
	}
}

// Ingest runs one chunk through the pipeline's front half (validate,
// quality-score) and enqueues it for the dispatcher to
// route/publish/ledger-record. It returns ErrBusy if the buffer is over
// its high watermark and chunk is not high-priority enough to displace
// anything already queued (spec.md §4.5).
func (s *Service) Ingest(ctx context.Context, sessionID string, chunk *sample.Chunk) error {
	if err := chunk.Validate(); err != nil {
		metrics.RecordChunkDropped("checksum")
		return fmt.Errorf("ingestion: reject invalid chunk: %w", err)
	}

	quality := ScoreChunk(chunk, s.cfg.QualityWeights)

	q := &queuedChunk{
		chunk:     chunk,
		sessionID: sessionID,
		deviceID:  chunk.DeviceID,
		quality:   quality,
	}

	return s.buffer.Offer(q)
}

// RecordPacketLoss feeds the shedding tiebreak signal for deviceID
// (spec.md §4.5: "ties broken by highest recent packet loss").
func (s *Service) RecordPacketLoss(deviceID string, count int) {
	s.buffer.RecordPacketLoss(deviceID, count)
}

// BufferLen reports the buffer's current occupancy, for gauging
// backpressure (spec.md §4.5's buffer occupancy observability).
func (s *Service) BufferLen() int {
	return s.buffer.Len()
}

// Run drains the buffer continuously, publishing each chunk and
// recording its ledger event, until ctx is done. It also drains shed
// notifications from the buffer and turns them into anomaly_detected
// ledger events. It blocks on the buffer's not-empty signal rather than
// polling, waking only when there is work to do.
func (s *Service) Run(ctx context.Context) {
	notEmpty := s.buffer.NotEmpty()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.shedSub:
			s.recordShed(ev)
		case <-notEmpty:
			for {
				q := s.buffer.Pop()
				if q == nil {
					break
				}
				s.dispatch(ctx, q)
			}
		}
	}
}

func (s *Service) recordShed(ev shedEvent) {
	if s.Ledger == nil {
		return
	}
	if err := s.Ledger.RecordAnomaly(ev.deviceID, ev.sessionID, "shed"); err != nil {
		s.logger.Error(err, "ingestion: record shed anomaly failed", "device_id", ev.deviceID)
	}
}

func (s *Service) dispatch(ctx context.Context, q *queuedChunk) {
	payload, err := s.codec.Encode(q.chunk)
	if err != nil {
		metrics.RecordChunkDropped("encode_error")
		s.logger.Error(err, "ingestion: encode chunk failed", "device_id", q.deviceID)
		return
	}

	bucketWidth := s.cfg.TimeBucketWidth
	if bucketWidth <= 0 {
		bucketWidth = defaultTimeBucket
	}
	partition := PartitionFor(q.deviceID, q.chunk.DeviceTsNs, bucketWidth, s.cfg.NumPartitions)
	topic := TopicFor(s.cfg.StreamPrefix, string(q.chunk.DataType))

	record := PublishRecord{
		Topic:     topic,
		Partition: partition,
		DeviceID:  q.deviceID,
		SessionID: q.sessionID,
		Payload:   payload,
	}

	if err := s.publisher.Publish(ctx, record); err != nil {
		s.logger.Error(err, "ingestion: publish failed", "device_id", q.deviceID, "topic", topic)
		return
	}

	if s.Ledger != nil {
		if err := s.Ledger.RecordDataIngested(q.deviceID, q.sessionID, q.chunk.ChunkSeq, q.chunk.NumSamples(), q.quality.Overall); err != nil {
			metrics.RecordLedgerWriteError("ingestion", "write_failed")
			s.logger.Error(err, "ingestion: record data_ingested failed", "device_id", q.deviceID)
		}
	}
}
