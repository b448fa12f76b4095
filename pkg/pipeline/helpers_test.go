package pipeline_test

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/neurascale/neural-engine/pkg/pipeline"
	"github.com/neurascale/neural-engine/pkg/sample"
)

func testLogger() logr.Logger {
	return logr.Discard()
}

// fakeSink records every frame it receives, for assertion.
type fakeSink struct {
	mu     sync.Mutex
	frames []*pipeline.Frame
	err    error
}

func (f *fakeSink) Put(_ context.Context, frame *pipeline.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSink) snapshot() []*pipeline.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*pipeline.Frame(nil), f.frames...)
}

// fakeLedger records every features_computed call made to it.
type fakeLedger struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeLedger) RecordFeaturesComputed(sessionID string, windowStartNs, windowEndNs int64, featuresHash [32]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

// fakeSource replays a fixed, pre-decoded sequence of chunk batches,
// avoiding the need to drive a real Redis Streams consumer group in unit
// tests (RedisSource itself is exercised separately via its narrowed
// StreamClient interface).
type fakeSource struct {
	batches [][]*sample.Chunk
	idx     int
}

func (f *fakeSource) Fetch(_ context.Context) ([]*sample.Chunk, error) {
	if f.idx >= len(f.batches) {
		return nil, nil
	}
	batch := f.batches[f.idx]
	f.idx++
	return batch, nil
}

func chunkAt(sessionID string, deviceTsNs int64, chunkSeq uint64) *sample.Chunk {
	return &sample.Chunk{
		SessionID:      sessionID,
		DeviceID:       "dev-1",
		DataType:       sample.DataTypeEEG,
		SamplingRateHz: 256,
		Channels:       []sample.Channel{{ID: "ch0", Kind: sample.ChannelKindNeural}},
		Samples:        [][]float32{{1, 2, 3}},
		ChunkSeq:       chunkSeq,
		DeviceTsNs:     deviceTsNs,
		IngestTsNs:     deviceTsNs,
	}
}
