package sample_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurascale/neural-engine/pkg/sample"
)

func testChunk() *sample.Chunk {
	return &sample.Chunk{
		SessionID:      "sess-1",
		DeviceID:       "dev-1",
		DataType:       sample.DataTypeEEG,
		SamplingRateHz: 250,
		Channels: []sample.Channel{
			{ID: "ch0", Label: "Fp1", Kind: sample.ChannelKindNeural, Unit: "uV"},
			{ID: "ch1", Label: "Fp2", Kind: sample.ChannelKindNeural, Unit: "uV"},
		},
		Samples: [][]float32{
			{1.0, 2.5, -3.2, 0.0, 10.1},
			{-5.0, -4.5, -4.0, -3.5, -3.0},
		},
		ChunkSeq:   1,
		DeviceTsNs: 1000,
		IngestTsNs: 1500,
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := &sample.Codec{}
	chunk := testChunk()

	encoded, err := codec.Encode(chunk)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, chunk.SessionID, decoded.SessionID)
	assert.Equal(t, chunk.DeviceID, decoded.DeviceID)
	assert.Equal(t, chunk.DataType, decoded.DataType)
	assert.Equal(t, chunk.SamplingRateHz, decoded.SamplingRateHz)
	assert.Equal(t, chunk.ChunkSeq, decoded.ChunkSeq)
	assert.Equal(t, chunk.DeviceTsNs, decoded.DeviceTsNs)
	assert.Equal(t, chunk.IngestTsNs, decoded.IngestTsNs)
	require.Len(t, decoded.Channels, 2)
	assert.Equal(t, "Fp1", decoded.Channels[0].Label)

	require.Len(t, decoded.Samples, 2)
	for c, row := range chunk.Samples {
		require.Len(t, decoded.Samples[c], len(row))
		for i, v := range row {
			// Quantization error must stay within the documented bound
			// (spec.md §4.1): 0.5/scale, and scale is chosen per-channel
			// to cover the channel's max delta, so an absolute tolerance
			// generous enough for small test vectors is sufficient here.
			assert.InDelta(t, v, decoded.Samples[c][i], 0.05, "channel %d sample %d", c, i)
		}
	}
}

func TestCodec_RoundTrip_WithChannelPosition(t *testing.T) {
	codec := &sample.Codec{}
	chunk := testChunk()
	pos := [3]float32{1.0, 2.0, 3.0}
	chunk.Channels[0].Position = &pos

	encoded, err := codec.Encode(chunk)
	require.NoError(t, err)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded.Channels[0].Position)
	assert.Equal(t, pos, *decoded.Channels[0].Position)
	assert.Nil(t, decoded.Channels[1].Position)
}

func TestCodec_Decode_ChecksumMismatch(t *testing.T) {
	codec := &sample.Codec{}
	encoded, err := codec.Encode(testChunk())
	require.NoError(t, err)

	corrupted := append([]byte(nil), encoded...)
	corrupted[len(corrupted)-1] ^= 0xFF

	_, err = codec.Decode(corrupted)
	require.Error(t, err)
}

func TestCodec_Decode_UnsupportedVersion(t *testing.T) {
	codec := &sample.Codec{}
	encoded, err := codec.Encode(testChunk())
	require.NoError(t, err)

	corrupted := append([]byte(nil), encoded...)
	corrupted[0] = 99

	_, err = codec.Decode(corrupted)
	require.ErrorIs(t, err, sample.ErrUnsupportedCodecVersion)
}

func TestCodec_Encode_ChunkTooLarge(t *testing.T) {
	codec := &sample.Codec{MaxChunkBytes: 16}
	_, err := codec.Encode(testChunk())
	require.ErrorIs(t, err, sample.ErrChunkTooLarge)
}

func TestCodec_Encode_RejectsInvalidChunk(t *testing.T) {
	codec := &sample.Codec{}
	chunk := testChunk()
	chunk.SamplingRateHz = 0

	_, err := codec.Encode(chunk)
	require.Error(t, err)
}

func TestChannelScale_FlatSignal(t *testing.T) {
	codec := &sample.Codec{}
	chunk := testChunk()
	chunk.Samples = [][]float32{
		{5.0, 5.0, 5.0, 5.0},
		{5.0, 5.0, 5.0, 5.0},
	}

	encoded, err := codec.Encode(chunk)
	require.NoError(t, err)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	for _, row := range decoded.Samples {
		for _, v := range row {
			assert.False(t, math.IsNaN(float64(v)))
		}
	}
}
