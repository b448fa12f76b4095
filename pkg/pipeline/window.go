// Package pipeline is the Windowed Processing Pipeline (spec.md §4.6):
// per-session tumbling windows over the durable sample stream, feature
// extraction via pkg/features, and idempotent emission to a derived
// store plus features_computed ledger events. It is expressed as a
// logical topology (Source -> Windower -> Sink), not a particular
// streaming runtime, matching spec.md's "logical topology, not a
// particular runtime" framing for this component.
package pipeline

import (
	"time"

	"github.com/neurascale/neural-engine/pkg/sample"
)

// DefaultWindowSize is spec.md §4.6's `W = 50 ms`.
const DefaultWindowSize = 50 * time.Millisecond

// LatenessMultiplier is spec.md §4.6's `W_allowed_lateness = 2*W`.
const LatenessMultiplier = 2

// WindowSizeFor returns the configured window size for dataType, or
// DefaultWindowSize if sizes has no entry (spec.md §4.6: "size W = 50ms
// (configurable per data_type)").
func WindowSizeFor(dataType sample.DataType, sizes map[sample.DataType]time.Duration) time.Duration {
	if w, ok := sizes[dataType]; ok && w > 0 {
		return w
	}
	return DefaultWindowSize
}

// WindowBounds returns the tumbling window [start, end) containing tsNs
// for window size w.
func WindowBounds(tsNs int64, w time.Duration) (startNs, endNs int64) {
	width := w.Nanoseconds()
	if width <= 0 {
		width = DefaultWindowSize.Nanoseconds()
	}
	startNs = (tsNs / width) * width
	endNs = startNs + width
	return startNs, endNs
}

// channelAccum buffers one channel's samples within an open window.
type channelAccum struct {
	channel sample.Channel
	samples []float32
}

// WindowAccumulator is one session's open (or just-closed) window: the
// per-channel sample buffers and the chunk range contributing to it
// (spec.md §3's FeatureFrame.derived_from_chunk_range).
type WindowAccumulator struct {
	SessionID     string
	DataType      sample.DataType
	StartNs       int64
	EndNs         int64
	SamplingRate  int
	FirstChunkSeq uint64
	LastChunkSeq  uint64

	channels   map[string]*channelAccum
	channelIDs []string // insertion order, for deterministic iteration
}

func newWindowAccumulator(sessionID string, dataType sample.DataType, startNs, endNs int64) *WindowAccumulator {
	return &WindowAccumulator{
		SessionID: sessionID,
		DataType:  dataType,
		StartNs:   startNs,
		EndNs:     endNs,
		channels:  make(map[string]*channelAccum),
	}
}

func (w *WindowAccumulator) append(chunk *sample.Chunk) {
	w.SamplingRate = chunk.SamplingRateHz
	if w.FirstChunkSeq == 0 || chunk.ChunkSeq < w.FirstChunkSeq {
		w.FirstChunkSeq = chunk.ChunkSeq
	}
	if chunk.ChunkSeq > w.LastChunkSeq {
		w.LastChunkSeq = chunk.ChunkSeq
	}
	for i, ch := range chunk.Channels {
		acc, ok := w.channels[ch.ID]
		if !ok {
			acc = &channelAccum{channel: ch}
			w.channels[ch.ID] = acc
			w.channelIDs = append(w.channelIDs, ch.ID)
		}
		if i < len(chunk.Samples) {
			acc.samples = append(acc.samples, chunk.Samples[i]...)
		}
	}
}

// Channels returns the window's accumulated channels in the order they
// were first observed.
func (w *WindowAccumulator) Channels() []sample.Channel {
	out := make([]sample.Channel, 0, len(w.channelIDs))
	for _, id := range w.channelIDs {
		out = append(out, w.channels[id].channel)
	}
	return out
}

// SamplesFor returns the accumulated samples for channelID.
func (w *WindowAccumulator) SamplesFor(channelID string) []float32 {
	acc, ok := w.channels[channelID]
	if !ok {
		return nil
	}
	return acc.samples
}

// LateChunk is a chunk that arrived after its window's watermark had
// already passed (spec.md §4.6: "late arrivals after watermark ⇒
// side-output labelled late").
type LateChunk struct {
	Chunk         *sample.Chunk
	WindowStartNs int64
	WindowEndNs   int64
}

// Windower accumulates one session's chunks into tumbling event-time
// windows and reports windows as they close (spec.md §4.6). It is not
// safe for concurrent use; the concurrency model assigns one pipeline
// task per session shard (spec.md §5), so a single goroutine owns each
// Windower.
type Windower struct {
	SessionID       string
	DataType        sample.DataType
	W               time.Duration
	AllowedLateness time.Duration

	watermarkNs int64
	windows     map[int64]*WindowAccumulator
	openOrder   []int64 // window start times with an open accumulator, ascending
	lateCount   uint64
}

// NewWindower builds a Windower for sessionID/dataType with window size
// w and allowed lateness LatenessMultiplier*w (spec.md §4.6's default,
// overridable via allowedLateness when non-zero).
func NewWindower(sessionID string, dataType sample.DataType, w time.Duration, allowedLateness time.Duration) *Windower {
	if allowedLateness <= 0 {
		allowedLateness = time.Duration(LatenessMultiplier) * w
	}
	return &Windower{
		SessionID:       sessionID,
		DataType:        dataType,
		W:               w,
		AllowedLateness: allowedLateness,
		windows:         make(map[int64]*WindowAccumulator),
	}
}

// LateCount returns the number of chunks this Windower has routed to
// the late side-output so far.
func (win *Windower) LateCount() uint64 {
	return win.lateCount
}

// Append routes chunk into its tumbling window, advances the watermark,
// and returns any windows that close as a result (in ascending
// window_start_ns order, so a session's FeatureFrames stay ordered
// downstream per spec.md §5's ordering guarantee). late is non-nil if
// chunk itself arrived after its window's deadline had already passed.
func (win *Windower) Append(chunk *sample.Chunk) (closed []*WindowAccumulator, late *LateChunk) {
	startNs, endNs := WindowBounds(chunk.DeviceTsNs, win.W)

	if endNs <= win.watermarkNs {
		win.lateCount++
		return nil, &LateChunk{Chunk: chunk, WindowStartNs: startNs, WindowEndNs: endNs}
	}

	acc, ok := win.windows[startNs]
	if !ok {
		acc = newWindowAccumulator(win.SessionID, win.DataType, startNs, endNs)
		win.windows[startNs] = acc
		win.openOrder = insertSorted(win.openOrder, startNs)
	}
	acc.append(chunk)

	// Watermark = max observed event time - allowed lateness (spec.md
	// §4.6), monotonically non-decreasing.
	if candidate := chunk.DeviceTsNs - win.AllowedLateness.Nanoseconds(); candidate > win.watermarkNs {
		win.watermarkNs = candidate
	}

	return win.drainClosed(), late
}

// drainClosed removes and returns, in ascending start order, every
// window whose end has fallen behind the current watermark.
func (win *Windower) drainClosed() []*WindowAccumulator {
	var closed []*WindowAccumulator
	remaining := win.openOrder[:0]
	for _, start := range win.openOrder {
		acc := win.windows[start]
		if acc.EndNs <= win.watermarkNs {
			closed = append(closed, acc)
			delete(win.windows, start)
		} else {
			remaining = append(remaining, start)
		}
	}
	win.openOrder = remaining
	return closed
}

func insertSorted(sorted []int64, v int64) []int64 {
	i := 0
	for i < len(sorted) && sorted[i] < v {
		i++
	}
	if i < len(sorted) && sorted[i] == v {
		return sorted
	}
	sorted = append(sorted, 0)
	copy(sorted[i+1:], sorted[i:])
	sorted[i] = v
	return sorted
}
