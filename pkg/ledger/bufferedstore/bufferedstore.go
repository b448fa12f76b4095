// Package bufferedstore wraps pkg/ledger's AnalyticalStore and
// DocumentIndex in a bounded, non-blocking queue so a slow or briefly
// unavailable materialized-view store never adds latency to the
// chain's write path (spec.md §4.8's "p99 < 100ms for the in-shard
// path" target applies to the authoritative chain append, not these
// best-effort fan-out sinks).
//
// This is grounded on the teacher's pkg/audit package: its only
// surviving file, buffered_store_integration_test.go, is entirely
// Ginkgo PIt/Skip placeholders for "DD-AUDIT-002: buffered,
// non-blocking, multi-store audit writer, flush through multiple
// registered sinks" with no backing implementation anywhere in the
// retrieved pack. That design note is the grounding for this package;
// the code itself is new, since there was nothing to adapt.
package bufferedstore

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/neurascale/neural-engine/pkg/ledger"
	"github.com/neurascale/neural-engine/pkg/metrics"
)

const defaultQueueCapacity = 4096

// Fanout buffers events in a bounded channel and flushes them to every
// registered sink from a single background worker, so Write never
// blocks the caller once the queue has room. When the queue is full,
// the event is dropped and counted rather than applying backpressure
// to the chain's write path.
type Fanout struct {
	queue   chan *ledger.Event
	sinks   []sink
	logger  logr.Logger
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

type sink struct {
	name  string
	write func(ctx context.Context, ev *ledger.Event) error
}

// New builds a Fanout with the given queue capacity (0 uses the
// default).
func New(capacity int, logger logr.Logger) *Fanout {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &Fanout{
		queue:  make(chan *ledger.Event, capacity),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// RegisterAnalytical adds an AnalyticalStore as a flush target.
func (f *Fanout) RegisterAnalytical(name string, store ledger.AnalyticalStore) {
	f.sinks = append(f.sinks, sink{name: name, write: store.Append})
}

// RegisterDocument adds a DocumentIndex as a flush target.
func (f *Fanout) RegisterDocument(name string, index ledger.DocumentIndex) {
	f.sinks = append(f.sinks, sink{name: name, write: index.Index})
}

// Start launches the background flush worker. Call once.
func (f *Fanout) Start(ctx context.Context) {
	if f.started {
		return
	}
	f.started = true
	f.wg.Add(1)
	go f.run(ctx)
}

// Stop drains in-flight work and stops the worker.
func (f *Fanout) Stop() {
	close(f.done)
	f.wg.Wait()
}

// Append enqueues ev for background fan-out to every registered sink.
// It implements ledger.AnalyticalStore so a Chain can use a Fanout
// directly as its Analytical field; it never returns an error for a
// full queue, only counts the drop, since the caller must not block on
// materialized-view writes.
func (f *Fanout) Append(_ context.Context, ev *ledger.Event) error {
	select {
	case f.queue <- ev:
	default:
		metrics.RecordLedgerWriteError("bufferedstore", "queue_full")
		f.logger.Error(nil, "ledger: bufferedstore queue full, dropping event", "seq", ev.Seq, "shard", ev.Shard)
	}
	return nil
}

// Index implements ledger.DocumentIndex the same way Append implements
// ledger.AnalyticalStore.
func (f *Fanout) Index(ctx context.Context, ev *ledger.Event) error {
	return f.Append(ctx, ev)
}

func (f *Fanout) run(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			f.drain(ctx)
			return
		case <-ctx.Done():
			return
		case ev := <-f.queue:
			f.flush(ctx, ev)
		}
	}
}

func (f *Fanout) drain(ctx context.Context) {
	for {
		select {
		case ev := <-f.queue:
			f.flush(ctx, ev)
		default:
			return
		}
	}
}

func (f *Fanout) flush(ctx context.Context, ev *ledger.Event) {
	for _, s := range f.sinks {
		if err := s.write(ctx, ev); err != nil {
			metrics.RecordLedgerWriteError(s.name, "flush_failed")
			f.logger.Error(err, "ledger: bufferedstore sink flush failed", "sink", s.name, "seq", ev.Seq)
		}
	}
}
