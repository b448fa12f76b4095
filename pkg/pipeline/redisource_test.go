package pipeline_test

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurascale/neural-engine/pkg/pipeline"
	"github.com/neurascale/neural-engine/pkg/sample"
)

// fakeRedisSourceClient fakes the narrow StreamClient seam RedisSource
// depends on, mirroring pkg/ingestion's fakeStreamClient pattern.
type fakeRedisSourceClient struct {
	messages    []redis.XMessage
	acked       []string
	groupExists bool
}

func (f *fakeRedisSourceClient) XReadGroup(_ context.Context, _ *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	cmd := redis.NewXStreamSliceCmd(context.Background())
	if len(f.messages) == 0 {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal([]redis.XStream{{Stream: "neural.samples.EEG", Messages: f.messages}})
	f.messages = nil
	return cmd
}

func (f *fakeRedisSourceClient) XAck(_ context.Context, _, _ string, ids ...string) *redis.IntCmd {
	f.acked = append(f.acked, ids...)
	cmd := redis.NewIntCmd(context.Background())
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (f *fakeRedisSourceClient) XGroupCreateMkStream(_ context.Context, _, _, _ string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(context.Background())
	if f.groupExists {
		cmd.SetErr(&fakeBusyGroupErr{})
		return cmd
	}
	cmd.SetVal("OK")
	return cmd
}

type fakeBusyGroupErr struct{}

func (*fakeBusyGroupErr) Error() string { return "BUSYGROUP Consumer Group name already exists" }

func TestRedisSource_FetchDecodesAndAcksEachMessage(t *testing.T) {
	codec := &sample.Codec{}
	chunk := &sample.Chunk{
		SessionID:      "sess-1",
		DeviceID:       "dev-1",
		DataType:       sample.DataTypeEEG,
		SamplingRateHz: 250,
		Channels:       []sample.Channel{{ID: "ch0", Kind: sample.ChannelKindNeural}},
		Samples:        [][]float32{{1, 2, 3}},
		ChunkSeq:       1,
		DeviceTsNs:     1000,
		IngestTsNs:     1000,
	}
	encoded, err := codec.Encode(chunk)
	require.NoError(t, err)

	client := &fakeRedisSourceClient{
		messages: []redis.XMessage{
			{ID: "1-1", Values: map[string]interface{}{"payload": string(encoded)}},
		},
	}
	src := pipeline.NewRedisSource(client, codec, testLogger(), "neural.samples.EEG", "pipeline", "worker-1")

	chunks, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "sess-1", chunks[0].SessionID)
	assert.Equal(t, []string{"1-1"}, client.acked)
}

func TestRedisSource_FetchDropsAndAcksUndecodableEntries(t *testing.T) {
	codec := &sample.Codec{}
	client := &fakeRedisSourceClient{
		messages: []redis.XMessage{
			{ID: "1-1", Values: map[string]interface{}{"payload": "not a valid chunk"}},
		},
	}
	src := pipeline.NewRedisSource(client, codec, testLogger(), "neural.samples.EEG", "pipeline", "worker-1")

	chunks, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Equal(t, []string{"1-1"}, client.acked)
}

func TestRedisSource_FetchReturnsNilOnNoEntries(t *testing.T) {
	codec := &sample.Codec{}
	client := &fakeRedisSourceClient{}
	src := pipeline.NewRedisSource(client, codec, testLogger(), "neural.samples.EEG", "pipeline", "worker-1")

	chunks, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestRedisSource_EnsureGroupToleratesExistingGroup(t *testing.T) {
	client := &fakeRedisSourceClient{groupExists: true}
	src := pipeline.NewRedisSource(client, &sample.Codec{}, testLogger(), "neural.samples.EEG", "pipeline", "worker-1")

	require.NoError(t, src.EnsureGroup(context.Background()))
}
