package sample

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/klauspost/compress/s2"
)

// codecVersion is the only wire format this package currently encodes.
// Decode rejects any other version byte with ErrUnsupportedCodecVersion,
// so a future format change can be introduced without breaking readers
// of this version.
const codecVersion byte = 1

// DefaultMaxChunkBytes is the default ceiling on an encoded chunk's size
// (spec.md §4.1): above this, Encode refuses to produce output.
const DefaultMaxChunkBytes = 1 << 20 // 1 MiB

var (
	// ErrChecksum is returned by Decode when the payload's CRC32 does not
	// match the header's recorded checksum.
	ErrChecksum = errors.New("sample: checksum mismatch")
	// ErrUnsupportedCodecVersion is returned by Decode when the header's
	// version byte is not one this package knows how to decode.
	ErrUnsupportedCodecVersion = errors.New("sample: unsupported codec version")
	// ErrChunkTooLarge is returned by Encode when the encoded chunk would
	// exceed the configured maximum size.
	ErrChunkTooLarge = errors.New("sample: chunk exceeds maximum encoded size")
)

// quantizationHalfStep bounds the round-trip error introduced by int16
// quantization: reconstructed samples are guaranteed to land within
// 0.5/scale of the original float32 value (spec.md §4.1).
const quantizationHalfStep = 0.5

// Codec encodes and decodes Chunks to the canonical wire format. A Codec
// holds only configuration (MaxChunkBytes); it has no mutable state and
// is safe for concurrent use.
type Codec struct {
	// MaxChunkBytes caps the encoded output size. Zero selects
	// DefaultMaxChunkBytes.
	MaxChunkBytes int
}

func (c *Codec) maxBytes() int {
	if c.MaxChunkBytes <= 0 {
		return DefaultMaxChunkBytes
	}
	return c.MaxChunkBytes
}

// Encode serializes chunk into the canonical wire format: a fixed header
// (scalar fields, per-channel metadata, a per-chunk quantization scale,
// and a checksum) followed by a delta-encoded, int16-quantized,
// s2-compressed payload.
func (c *Codec) Encode(chunk *Chunk) ([]byte, error) {
	if err := chunk.Validate(); err != nil {
		return nil, fmt.Errorf("sample: encode: %w", err)
	}

	scales := make([]float32, chunk.NumChannels())
	quantized := make([][]int16, chunk.NumChannels())
	for i, row := range chunk.Samples {
		scale := channelScale(row)
		scales[i] = scale
		quantized[i] = deltaQuantize(row, scale)
	}

	payload := encodePayload(quantized)
	compressed := s2.Encode(nil, payload)

	header := encodeHeader(chunk, scales, compressed)
	checksum := crc32.ChecksumIEEE(append(header[:len(header)-4:len(header)-4], compressed...))
	binary.BigEndian.PutUint32(header[len(header)-4:], checksum)

	out := make([]byte, 0, len(header)+len(compressed))
	out = append(out, header...)
	out = append(out, compressed...)

	if len(out) > c.maxBytes() {
		return nil, fmt.Errorf("sample: encode: %w (%d bytes, max %d)", ErrChunkTooLarge, len(out), c.maxBytes())
	}
	return out, nil
}

// Decode is the exact inverse of Encode.
func (c *Codec) Decode(data []byte) (*Chunk, error) {
	if len(data) > c.maxBytes() {
		return nil, fmt.Errorf("sample: decode: %w (%d bytes, max %d)", ErrChunkTooLarge, len(data), c.maxBytes())
	}

	header, rest, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if header.version != codecVersion {
		return nil, fmt.Errorf("sample: decode: %w: %d", ErrUnsupportedCodecVersion, header.version)
	}

	headerLen := len(data) - len(rest) - 4
	checksummed := append(data[:headerLen:headerLen], rest...)
	if crc32.ChecksumIEEE(checksummed) != header.checksum {
		return nil, ErrChecksum
	}

	payload, err := s2.Decode(nil, rest)
	if err != nil {
		return nil, fmt.Errorf("sample: decode: %w: %v", ErrChecksum, err)
	}

	quantized, err := decodePayload(payload, header.numChannels, header.numSamples)
	if err != nil {
		return nil, fmt.Errorf("sample: decode payload: %w", err)
	}

	samples := make([][]float32, header.numChannels)
	for i, row := range quantized {
		samples[i] = deltaUnquantize(row, header.scales[i])
	}

	return &Chunk{
		SessionID:      header.sessionID,
		DeviceID:       header.deviceID,
		DataType:       header.dataType,
		SamplingRateHz: header.samplingRateHz,
		Channels:       header.channels,
		Samples:        samples,
		ChunkSeq:       header.chunkSeq,
		DeviceTsNs:     header.deviceTsNs,
		IngestTsNs:     header.ingestTsNs,
	}, nil
}

// channelScale picks the per-channel quantization scale that maps the
// channel's largest sample delta onto the int16 range, so
// delta-quantization never saturates for well-formed neural data.
func channelScale(row []float32) float32 {
	var maxAbs float32
	prev := float32(0)
	for i, v := range row {
		d := v
		if i > 0 {
			d = v - prev
		}
		if d < 0 {
			d = -d
		}
		if d > maxAbs {
			maxAbs = d
		}
		prev = v
	}
	if maxAbs == 0 {
		return 1
	}
	scale := float32(math.MaxInt16) / maxAbs
	if scale <= 0 || math.IsInf(float64(scale), 0) {
		return 1
	}
	return scale
}

func deltaQuantize(row []float32, scale float32) []int16 {
	out := make([]int16, len(row))
	var recon float32
	for i, v := range row {
		d := v
		if i > 0 {
			d = v - recon
		}
		q := d * scale
		out[i] = clampInt16(q)
		if i == 0 {
			recon = float32(out[i]) / scale
		} else {
			recon += float32(out[i]) / scale
		}
	}
	return out
}

func deltaUnquantize(row []int16, scale float32) []float32 {
	out := make([]float32, len(row))
	var acc float32
	for i, q := range row {
		d := float32(q) / scale
		if i == 0 {
			acc = d
		} else {
			acc += d
		}
		out[i] = acc
	}
	return out
}

func clampInt16(v float32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(math.Round(float64(v)))
}
