package ingestion

import (
	"errors"
	"sync"

	"github.com/neurascale/neural-engine/pkg/features"
	"github.com/neurascale/neural-engine/pkg/metrics"
	"github.com/neurascale/neural-engine/pkg/sample"
)

// ErrBusy is returned when the ingestion buffer is over its high
// watermark (spec.md §4.5).
var ErrBusy = errors.New("ingestion: busy, buffer over high watermark")

const (
	defaultBufferCapacity = 10000
	defaultHighWatermark  = 0.8
)

// queuedChunk is one chunk awaiting publish, along with the quality and
// shedding metadata computed for it.
type queuedChunk struct {
	chunk     *sample.Chunk
	sessionID string
	deviceID  string
	quality   features.QualityReport
}

// priority is spec.md §4.5's shedding priority: 1/quality.overall
// within a session, ties broken by highest recent packet loss. A higher
// returned value is worse (shed first).
func (q *queuedChunk) priority(packetLoss int) (float64, int) {
	overall := q.quality.Overall
	if overall <= 0 {
		overall = 1e-6
	}
	return 1.0 / overall, packetLoss
}

// boundedBuffer is the ingestion service's backpressure buffer: a
// capped FIFO that sheds its lowest-priority entry to make room for a
// higher-priority one once occupancy crosses the high watermark
// (spec.md §4.5).
type boundedBuffer struct {
	mu            sync.Mutex
	capacity      int
	highWatermark float64
	items         []*queuedChunk
	packetLoss    map[string]int // deviceID -> recent packet loss count
	shedEvents    *shedNotifier
	notEmpty      chan struct{}
}

func newBoundedBuffer(capacity int, highWatermark float64) *boundedBuffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}
	if highWatermark <= 0 || highWatermark > 1 {
		highWatermark = defaultHighWatermark
	}
	return &boundedBuffer{
		capacity:      capacity,
		highWatermark: highWatermark,
		packetLoss:    make(map[string]int),
		shedEvents:    &shedNotifier{},
		notEmpty:      make(chan struct{}, 1),
	}
}

// notify signals NotEmpty's channel without blocking; a signal already
// pending (the channel's single slot full) means a consumer hasn't
// drained the last one yet, so this is a no-op.
func (b *boundedBuffer) notify() {
	select {
	case b.notEmpty <- struct{}{}:
	default:
	}
}

// NotEmpty returns a channel that receives a signal each time an item
// is enqueued, so Run can block on it instead of polling Pop.
func (b *boundedBuffer) NotEmpty() <-chan struct{} {
	return b.notEmpty
}

// RecordPacketLoss updates the most recently observed packet loss count
// for a device, used only as a shedding tiebreak.
func (b *boundedBuffer) RecordPacketLoss(deviceID string, count int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.packetLoss[deviceID] = count
}

// Offer attempts to enqueue q. Below the high watermark, q is always
// admitted (capacity permitting). At or above the high watermark, q is
// only admitted if it outranks the worst currently-buffered entry; in
// that case the worst entry is shed to make room. Otherwise Offer
// returns ErrBusy (spec.md §4.5: "the service returns Busy to producers
// and starts shedding the lowest-priority per-device streams").
func (b *boundedBuffer) Offer(q *queuedChunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	occupancy := float64(len(b.items))
	overWatermark := occupancy >= b.highWatermark*float64(b.capacity)

	if !overWatermark {
		if len(b.items) >= b.capacity {
			return ErrBusy
		}
		b.items = append(b.items, q)
		b.notify()
		return nil
	}

	if !b.shedWorseLocked(q) {
		return ErrBusy
	}
	b.items = append(b.items, q)
	b.notify()
	return nil
}

// shedWorseLocked evicts the single worst-priority buffered item,
// provided q outranks it, making room for q. Returns whether an
// eviction happened.
func (b *boundedBuffer) shedWorseLocked(q *queuedChunk) bool {
	if len(b.items) == 0 {
		return true
	}

	worstIdx := -1
	var worstPriority float64
	var worstLoss int
	for i, item := range b.items {
		p, loss := item.priority(b.packetLoss[item.deviceID])
		if worstIdx == -1 || p > worstPriority || (p == worstPriority && loss > worstLoss) {
			worstIdx = i
			worstPriority = p
			worstLoss = loss
		}
	}

	qp, qLoss := q.priority(b.packetLoss[q.deviceID])
	qOutranks := qp < worstPriority || (qp == worstPriority && qLoss > worstLoss)
	if !qOutranks {
		return false
	}

	shed := b.items[worstIdx]
	b.items = append(b.items[:worstIdx], b.items[worstIdx+1:]...)
	metrics.RecordSampleShed("shed")
	b.shedEvents.publish(shedEvent{deviceID: shed.deviceID, sessionID: shed.sessionID})
	return true
}

// subscribeShedEvents registers a new shed-event subscriber for this
// buffer, for the owning Service's Run loop.
func (b *boundedBuffer) subscribeShedEvents() chan shedEvent {
	return b.shedEvents.subscribe()
}

// Pop removes and returns the oldest buffered item, or nil if empty.
func (b *boundedBuffer) Pop() *queuedChunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil
	}
	item := b.items[0]
	b.items = b.items[1:]
	return item
}

// Len returns the current occupancy.
func (b *boundedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// shedEvent records which device/session was shed, so the Service can
// turn it into an anomaly_detected ledger event without the buffer
// depending on the ledger recorder directly.
type shedEvent struct {
	deviceID  string
	sessionID string
}

// shedNotifier is a tiny internal pub/sub so Service can observe shed
// decisions made inside boundedBuffer without a circular dependency.
type shedNotifier struct {
	mu          sync.Mutex
	subscribers []chan shedEvent
}

func (n *shedNotifier) subscribe() chan shedEvent {
	ch := make(chan shedEvent, 64)
	n.mu.Lock()
	n.subscribers = append(n.subscribers, ch)
	n.mu.Unlock()
	return ch
}

func (n *shedNotifier) publish(e shedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}
