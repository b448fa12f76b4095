package sample

import (
	"encoding/binary"
	"fmt"
	"math"
)

// decodedHeader is the in-memory form of a chunk's wire header, used only
// during decode to hand the scalar fields and per-channel scales to the
// payload decoder.
type decodedHeader struct {
	version        byte
	sessionID      string
	deviceID       string
	dataType       DataType
	samplingRateHz int
	channels       []Channel
	chunkSeq       uint64
	deviceTsNs     int64
	ingestTsNs     int64
	numChannels    int
	numSamples     int
	scales         []float32
	checksum       uint32
}

// encodeHeader writes the fixed header: version, scalar fields, per-channel
// metadata and quantization scale, and a trailing 4-byte checksum slot
// (zeroed; filled in by the caller once the full frame is known).
func encodeHeader(chunk *Chunk, scales []float32, payload []byte) []byte {
	buf := make([]byte, 0, 256+len(chunk.Channels)*64)

	buf = append(buf, codecVersion)
	buf = appendString(buf, chunk.SessionID)
	buf = appendString(buf, chunk.DeviceID)
	buf = appendString(buf, string(chunk.DataType))
	buf = appendUint32(buf, uint32(chunk.SamplingRateHz))
	buf = appendUint64(buf, chunk.ChunkSeq)
	buf = appendInt64(buf, chunk.DeviceTsNs)
	buf = appendInt64(buf, chunk.IngestTsNs)

	buf = appendUint32(buf, uint32(chunk.NumChannels()))
	buf = appendUint32(buf, uint32(chunk.NumSamples()))

	for i, ch := range chunk.Channels {
		buf = appendString(buf, ch.ID)
		buf = appendString(buf, ch.Label)
		buf = appendString(buf, string(ch.Kind))
		buf = appendString(buf, ch.Unit)
		if ch.Position != nil {
			buf = append(buf, 1)
			for _, v := range ch.Position {
				buf = appendFloat32(buf, v)
			}
		} else {
			buf = append(buf, 0)
		}
		buf = appendFloat32(buf, scales[i])
	}

	// Reserve trailing checksum slot; the caller fills it once it has seen
	// the compressed payload too.
	buf = appendUint32(buf, 0)
	return buf
}

// decodeHeader reads the fixed header from data, returning the parsed
// scalar fields and the remaining (compressed payload) bytes.
func decodeHeader(data []byte) (*decodedHeader, []byte, error) {
	r := &reader{buf: data}

	h := &decodedHeader{}
	var err error
	h.version, err = r.byte_()
	if err != nil {
		return nil, nil, fmt.Errorf("sample: decode header: %w", err)
	}
	if h.sessionID, err = r.string_(); err != nil {
		return nil, nil, fmt.Errorf("sample: decode header: %w", err)
	}
	if h.deviceID, err = r.string_(); err != nil {
		return nil, nil, fmt.Errorf("sample: decode header: %w", err)
	}
	dt, err := r.string_()
	if err != nil {
		return nil, nil, fmt.Errorf("sample: decode header: %w", err)
	}
	h.dataType = DataType(dt)

	rate, err := r.uint32_()
	if err != nil {
		return nil, nil, fmt.Errorf("sample: decode header: %w", err)
	}
	h.samplingRateHz = int(rate)

	if h.chunkSeq, err = r.uint64_(); err != nil {
		return nil, nil, fmt.Errorf("sample: decode header: %w", err)
	}
	if h.deviceTsNs, err = r.int64_(); err != nil {
		return nil, nil, fmt.Errorf("sample: decode header: %w", err)
	}
	if h.ingestTsNs, err = r.int64_(); err != nil {
		return nil, nil, fmt.Errorf("sample: decode header: %w", err)
	}

	numChannels, err := r.uint32_()
	if err != nil {
		return nil, nil, fmt.Errorf("sample: decode header: %w", err)
	}
	h.numChannels = int(numChannels)

	numSamples, err := r.uint32_()
	if err != nil {
		return nil, nil, fmt.Errorf("sample: decode header: %w", err)
	}
	h.numSamples = int(numSamples)

	h.channels = make([]Channel, h.numChannels)
	h.scales = make([]float32, h.numChannels)
	for i := 0; i < h.numChannels; i++ {
		var ch Channel
		if ch.ID, err = r.string_(); err != nil {
			return nil, nil, fmt.Errorf("sample: decode header: channel %d: %w", i, err)
		}
		if ch.Label, err = r.string_(); err != nil {
			return nil, nil, fmt.Errorf("sample: decode header: channel %d: %w", i, err)
		}
		kind, err := r.string_()
		if err != nil {
			return nil, nil, fmt.Errorf("sample: decode header: channel %d: %w", i, err)
		}
		ch.Kind = ChannelKind(kind)
		if ch.Unit, err = r.string_(); err != nil {
			return nil, nil, fmt.Errorf("sample: decode header: channel %d: %w", i, err)
		}
		hasPos, err := r.byte_()
		if err != nil {
			return nil, nil, fmt.Errorf("sample: decode header: channel %d: %w", i, err)
		}
		if hasPos == 1 {
			var pos [3]float32
			for j := range pos {
				if pos[j], err = r.float32_(); err != nil {
					return nil, nil, fmt.Errorf("sample: decode header: channel %d: %w", i, err)
				}
			}
			ch.Position = &pos
		}
		scale, err := r.float32_()
		if err != nil {
			return nil, nil, fmt.Errorf("sample: decode header: channel %d: %w", i, err)
		}
		h.scales[i] = scale
		h.channels[i] = ch
	}

	h.checksum, err = r.uint32_()
	if err != nil {
		return nil, nil, fmt.Errorf("sample: decode header: %w", err)
	}

	return h, data[r.pos:], nil
}

// reader is a small cursor over a byte slice used by decodeHeader; it
// exists only to keep the decode function free of repeated bounds checks.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("sample: truncated header (need %d bytes at offset %d, have %d)", n, r.pos, len(r.buf))
	}
	return nil
}

func (r *reader) byte_() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint32_() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64_() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) int64_() (int64, error) {
	v, err := r.uint64_()
	return int64(v), err
}

func (r *reader) float32_() (float32, error) {
	v, err := r.uint32_()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *reader) string_() (string, error) {
	n, err := r.uint32_()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendInt64(buf []byte, v int64) []byte {
	return appendUint64(buf, uint64(v))
}

func appendFloat32(buf []byte, v float32) []byte {
	return appendUint32(buf, math.Float32bits(v))
}
