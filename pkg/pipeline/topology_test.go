package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurascale/neural-engine/pkg/pipeline"
	"github.com/neurascale/neural-engine/pkg/sample"
)

func TestTopology_RunOnce_EmitsClosedWindowsToSink(t *testing.T) {
	sink := &fakeSink{}
	source := &fakeSource{batches: [][]*sample.Chunk{
		{
			chunkAt("sess-1", 0, 1),
			chunkAt("sess-1", int64(400*time.Millisecond), 2),
		},
	}}

	topo := pipeline.NewTopology(source, sink, pipeline.WindowConfig{}, testLogger())
	emitted, err := topo.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, emitted)

	frames := sink.snapshot()
	require.Len(t, frames, 1)
	assert.Equal(t, "sess-1", frames[0].SessionID)
	assert.Equal(t, int64(0), frames[0].WindowStartNs)
	require.Len(t, frames[0].ChannelFeatures, 1)
}

func TestTopology_RunOnce_PropagatesSinkError(t *testing.T) {
	sink := &fakeSink{err: assert.AnError}
	source := &fakeSource{batches: [][]*sample.Chunk{
		{
			chunkAt("sess-1", 0, 1),
			chunkAt("sess-1", int64(400*time.Millisecond), 2),
		},
	}}

	topo := pipeline.NewTopology(source, sink, pipeline.WindowConfig{}, testLogger())
	_, err := topo.RunOnce(context.Background())
	require.Error(t, err)
}

func TestTopology_RunOnce_SeparatesSessionsIntoDistinctWindowers(t *testing.T) {
	sink := &fakeSink{}
	source := &fakeSource{batches: [][]*sample.Chunk{
		{
			chunkAt("sess-a", 0, 1),
			chunkAt("sess-b", 0, 1),
			chunkAt("sess-a", int64(400*time.Millisecond), 2),
			chunkAt("sess-b", int64(400*time.Millisecond), 2),
		},
	}}

	topo := pipeline.NewTopology(source, sink, pipeline.WindowConfig{}, testLogger())
	emitted, err := topo.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, emitted)

	var sessions []string
	for _, f := range sink.snapshot() {
		sessions = append(sessions, f.SessionID)
	}
	assert.ElementsMatch(t, []string{"sess-a", "sess-b"}, sessions)
}

func TestRecordingSink_RecordsFeaturesComputedAfterStoreWrite(t *testing.T) {
	store := &fakeSink{}
	ledger := &fakeLedger{}
	rs := &pipeline.RecordingSink{Store: store, Ledger: ledger}

	frame := &pipeline.Frame{SessionID: "sess-1", WindowStartNs: 0, WindowEndNs: int64(50 * time.Millisecond)}
	require.NoError(t, rs.Put(context.Background(), frame))

	assert.Len(t, store.snapshot(), 1)
	assert.Equal(t, 1, ledger.calls)
}

func TestRecordingSink_SkipsLedgerOnStoreFailure(t *testing.T) {
	store := &fakeSink{err: assert.AnError}
	ledger := &fakeLedger{}
	rs := &pipeline.RecordingSink{Store: store, Ledger: ledger}

	frame := &pipeline.Frame{SessionID: "sess-1"}
	require.Error(t, rs.Put(context.Background(), frame))
	assert.Equal(t, 0, ledger.calls)
}

func TestFanoutSink_WritesToEverySink(t *testing.T) {
	a, b := &fakeSink{}, &fakeSink{}
	fan := &pipeline.FanoutSink{Sinks: []pipeline.Sink{a, b}}

	frame := &pipeline.Frame{SessionID: "sess-1"}
	require.NoError(t, fan.Put(context.Background(), frame))

	assert.Len(t, a.snapshot(), 1)
	assert.Len(t, b.snapshot(), 1)
}
