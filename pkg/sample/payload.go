package sample

import (
	"encoding/binary"
	"fmt"
)

// encodePayload packs quantized per-channel delta values into a flat byte
// slice: channel-major, each int16 big-endian, ready for compression.
func encodePayload(quantized [][]int16) []byte {
	if len(quantized) == 0 {
		return nil
	}
	n := len(quantized[0])
	out := make([]byte, 0, len(quantized)*n*2)
	for _, row := range quantized {
		for _, q := range row {
			var tmp [2]byte
			binary.BigEndian.PutUint16(tmp[:], uint16(q))
			out = append(out, tmp[:]...)
		}
	}
	return out
}

// decodePayload is the exact inverse of encodePayload, given the channel
// and per-channel sample counts recovered from the header.
func decodePayload(payload []byte, numChannels, numSamples int) ([][]int16, error) {
	want := numChannels * numSamples * 2
	if len(payload) != want {
		return nil, fmt.Errorf("sample: payload is %d bytes, want %d (%d channels x %d samples)", len(payload), want, numChannels, numSamples)
	}

	out := make([][]int16, numChannels)
	pos := 0
	for c := 0; c < numChannels; c++ {
		row := make([]int16, numSamples)
		for i := 0; i < numSamples; i++ {
			row[i] = int16(binary.BigEndian.Uint16(payload[pos : pos+2]))
			pos += 2
		}
		out[c] = row
	}
	return out, nil
}
