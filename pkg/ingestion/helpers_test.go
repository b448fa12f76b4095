package ingestion_test

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/neurascale/neural-engine/pkg/sample"
)

func testLogger() logr.Logger {
	return logr.Discard()
}

func validChunk(deviceID, sessionID string, seq uint64) *sample.Chunk {
	return &sample.Chunk{
		SessionID:      sessionID,
		DeviceID:       deviceID,
		DataType:       sample.DataTypeEEG,
		SamplingRateHz: 250,
		ChunkSeq:       seq,
		DeviceTsNs:     1000,
		IngestTsNs:     2000,
		Channels: []sample.Channel{
			{ID: "ch0", Kind: sample.ChannelKindNeural},
			{ID: "ch1", Kind: sample.ChannelKindNeural},
		},
		Samples: [][]float32{
			{1, 2, 3, 4, 5, 4, 3, 2, 1, 0},
			{0, 1, 0, 1, 0, 1, 0, 1, 0, 1},
		},
	}
}

// fakeStreamClient records every XAdd call and can be made to fail a
// configured number of times before succeeding, to exercise Publisher's
// retry path.
type fakeStreamClient struct {
	mu       sync.Mutex
	failures int
	calls    []string
	ids      []string
}

func (f *fakeStreamClient) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := redis.NewStringCmd(context.Background())
	f.calls = append(f.calls, a.Stream)
	if f.failures > 0 {
		f.failures--
		cmd.SetErr(errFakePublish)
		return cmd
	}
	cmd.SetVal("0-1")
	return cmd
}

var errFakePublish = &fakePublishError{}

type fakePublishError struct{}

func (*fakePublishError) Error() string { return "fake publish error" }

// fakeLedger records every call made to it, for assertion.
type fakeLedger struct {
	mu        sync.Mutex
	ingested  []string
	anomalies []string
	batches   []string
}

func (f *fakeLedger) RecordDataIngested(deviceID, sessionID string, seq uint64, numSamples int, quality float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, deviceID)
	return nil
}

func (f *fakeLedger) RecordAnomaly(deviceID, sessionID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anomalies = append(f.anomalies, deviceID+":"+reason)
	return nil
}

func (f *fakeLedger) RecordBatchUploaded(sessionID, objectKey string, numChunks int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, objectKey)
	return nil
}

func (f *fakeLedger) snapshot() ([]string, []string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ingested...), append([]string(nil), f.anomalies...), append([]string(nil), f.batches...)
}
