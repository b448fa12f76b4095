package devicemanager

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// TelemetryEventKind classifies a buffered telemetry event (spec.md
// §4.4: "connection, data-flow, signal quality, performance, errors").
type TelemetryEventKind string

const (
	TelemetryKindConnection    TelemetryEventKind = "connection"
	TelemetryKindDataFlow      TelemetryEventKind = "data_flow"
	TelemetryKindSignalQuality TelemetryEventKind = "signal_quality"
	TelemetryKindPerformance   TelemetryEventKind = "performance"
	TelemetryKindError         TelemetryEventKind = "error"
)

// TelemetryEvent is one buffered device-manager telemetry record.
type TelemetryEvent struct {
	Kind     TelemetryEventKind
	DeviceID string
	TsNs     int64
	Fields   map[string]string
}

// TelemetryExporter flushes a batch of buffered events to a sink (file,
// cloud object store, ...). Export errors are logged, never panicked or
// retried inline — a slow or unavailable exporter must not block the
// buffer's producers.
type TelemetryExporter interface {
	Export(ctx context.Context, events []TelemetryEvent) error
}

const (
	defaultTelemetryCapacity      = 10000
	defaultTelemetryHighWatermark = 0.8
	defaultTelemetryFlushInterval = 5 * time.Second
)

// TelemetryBuffer is the device manager's telemetry ring buffer (spec.md
// §4.4): it buffers events from every device in one ring and flushes through every
// registered exporter on a timer or when occupancy crosses a watermark.
// It is safe for concurrent use.
type TelemetryBuffer struct {
	mu            sync.Mutex
	capacity      int
	highWatermark float64
	flushInterval time.Duration
	events        []TelemetryEvent
	exporters     []TelemetryExporter
	logger        logr.Logger
	dropped       int64

	flushRequested chan struct{}
}

// NewTelemetryBuffer builds a buffer with spec.md §4.4's defaults
// (10,000-event capacity, 80% watermark, 5s flush interval).
func NewTelemetryBuffer(logger logr.Logger, exporters ...TelemetryExporter) *TelemetryBuffer {
	return &TelemetryBuffer{
		capacity:       defaultTelemetryCapacity,
		highWatermark:  defaultTelemetryHighWatermark,
		flushInterval:  defaultTelemetryFlushInterval,
		exporters:      exporters,
		logger:         logger,
		flushRequested: make(chan struct{}, 1),
	}
}

// Record appends an event to the buffer. When the buffer is at
// capacity, the oldest event is dropped to make room (ring semantics);
// crossing the high watermark signals Run to flush immediately rather
// than waiting for the next timer tick.
func (b *TelemetryBuffer) Record(e TelemetryEvent) {
	b.mu.Lock()
	if len(b.events) >= b.capacity {
		b.events = b.events[1:]
		b.dropped++
	}
	b.events = append(b.events, e)
	overWatermark := float64(len(b.events)) >= b.highWatermark*float64(b.capacity)
	b.mu.Unlock()

	if overWatermark {
		select {
		case b.flushRequested <- struct{}{}:
		default:
		}
	}
}

// Dropped returns the number of events dropped for capacity since the
// buffer was created.
func (b *TelemetryBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Run flushes the buffer on a timer and whenever Record signals the
// high watermark was crossed. It blocks until ctx is done, flushing one
// final time before returning.
func (b *TelemetryBuffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.flush(context.Background())
			return
		case <-ticker.C:
			b.flush(ctx)
		case <-b.flushRequested:
			b.flush(ctx)
		}
	}
}

func (b *TelemetryBuffer) flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.events) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.events
	b.events = nil
	b.mu.Unlock()

	for _, exporter := range b.exporters {
		if err := exporter.Export(ctx, batch); err != nil {
			b.logger.Error(err, "telemetry export failed", "batch_size", len(batch))
		}
	}
}
