// Package sample defines the SampleChunk, the Neural Engine's canonical
// on-wire unit of multi-channel signal data, and its codec (spec.md §3,
// §4.1): a fixed header, delta-encoded and int16-quantized payload, framed
// with a fast general-purpose compressor so the same representation is
// used at rest, on the wire, and in the ledger's data_hash.
package sample

import (
	"fmt"
)

// DataType identifies the kind of signal a chunk carries.
type DataType string

const (
	DataTypeEEG           DataType = "EEG"
	DataTypeECoG          DataType = "ECoG"
	DataTypeSpikes        DataType = "Spikes"
	DataTypeLFP           DataType = "LFP"
	DataTypeEMG           DataType = "EMG"
	DataTypeAccelerometer DataType = "Accelerometer"
)

// ChannelKind distinguishes a channel's role, used by the feature library
// to pick data-type-specific computations.
type ChannelKind string

const (
	ChannelKindNeural        ChannelKind = "neural"
	ChannelKindAccelerometer ChannelKind = "accelerometer"
	ChannelKindReference     ChannelKind = "reference"
)

// Channel describes one row of a chunk's sample matrix.
type Channel struct {
	ID       string
	Label    string
	Kind     ChannelKind
	Unit     string
	Position *[3]float32 // optional 3D position, nil when unknown
}

// Chunk is one immutable unit of multi-channel signal data crossing
// component boundaries (spec.md §3). Samples is a C×N matrix: one row per
// channel, N samples per channel, in canonical units (µV for neural
// channels, m/s² for accelerometer channels).
type Chunk struct {
	SessionID      string
	DeviceID       string
	DataType       DataType
	SamplingRateHz int
	Channels       []Channel
	Samples        [][]float32
	ChunkSeq       uint64
	DeviceTsNs     int64
	IngestTsNs     int64
}

// NumChannels returns the chunk's channel count (len(Channels), which must
// equal len(Samples)).
func (c *Chunk) NumChannels() int {
	return len(c.Channels)
}

// NumSamples returns the chunk's per-channel sample count, or 0 for an
// empty chunk.
func (c *Chunk) NumSamples() int {
	if len(c.Samples) == 0 {
		return 0
	}
	return len(c.Samples[0])
}

// Validate checks the structural invariants from spec.md §3 that every
// chunk must satisfy regardless of the session it belongs to: positive
// sampling rate, a non-empty, rectangular channel/sample matrix, and
// ingest_ts_ns not preceding device_ts_ns.
func (c *Chunk) Validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("sample: session_id is required")
	}
	if c.DeviceID == "" {
		return fmt.Errorf("sample: device_id is required")
	}
	if c.SamplingRateHz <= 0 {
		return fmt.Errorf("sample: sampling_rate_hz must be positive, got %d", c.SamplingRateHz)
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("sample: channels must be non-empty")
	}
	if len(c.Samples) != len(c.Channels) {
		return fmt.Errorf("sample: samples has %d rows, want %d (one per channel)", len(c.Samples), len(c.Channels))
	}
	if len(c.Samples) > 0 {
		n := len(c.Samples[0])
		for i, row := range c.Samples {
			if len(row) != n {
				return fmt.Errorf("sample: channel %d has %d samples, want %d (ragged matrix)", i, len(row), n)
			}
		}
	}
	if c.IngestTsNs < c.DeviceTsNs {
		return fmt.Errorf("sample: ingest_ts_ns (%d) precedes device_ts_ns (%d)", c.IngestTsNs, c.DeviceTsNs)
	}
	return nil
}

// CompatibleWith reports whether next could be the next chunk in the same
// session as c: the fields that spec.md §3 fixes for a session's lifetime
// (channel count, sampling rate, data type) must match.
func (c *Chunk) CompatibleWith(next *Chunk) bool {
	if c.SessionID != next.SessionID {
		return false
	}
	if c.DataType != next.DataType {
		return false
	}
	if c.SamplingRateHz != next.SamplingRateHz {
		return false
	}
	return len(c.Channels) == len(next.Channels)
}

// SeqGap returns the number of chunks missing between c and next, by
// chunk_seq. Zero means next is the immediate successor; a positive value
// is the packet-loss count to attribute to the gap.
func (c *Chunk) SeqGap(next *Chunk) uint64 {
	if next.ChunkSeq <= c.ChunkSeq {
		return 0
	}
	return next.ChunkSeq - c.ChunkSeq - 1
}
