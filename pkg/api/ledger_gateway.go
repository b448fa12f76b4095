package api

import (
	"context"

	"github.com/neurascale/neural-engine/pkg/ledger"
)

// LedgerGateway is the control-plane API's read path onto the Neural
// Ledger: a thin wrapper narrowing pkg/ledger.Recorder's per-shard Chains
// down to the two queries GET /v1/ledger/verify needs (spec.md §6),
// without handlers reaching into Recorder.Shards directly.
type LedgerGateway struct {
	Recorder      *ledger.Recorder
	Reconstructor *ledger.Reconstructor
}

// NewLedgerGateway wraps recorder and an optional reconstructor (nil
// disables session/user history queries, which this API surface does
// not currently expose but a future endpoint would reuse).
func NewLedgerGateway(recorder *ledger.Recorder, reconstructor *ledger.Reconstructor) *LedgerGateway {
	return &LedgerGateway{Recorder: recorder, Reconstructor: reconstructor}
}

// AnyShardLocked reports whether any shard has entered chain-integrity
// lockdown (spec.md §6: "503 when the service is in chain-integrity
// lockdown"). The control-plane API checks this before every mutating
// endpoint.
func (g *LedgerGateway) AnyShardLocked() bool {
	for _, shard := range g.Recorder.Shards {
		if shard.Locked() {
			return true
		}
	}
	return false
}

// VerifyAll runs Chain.Verify(fromSeq, toSeq) against every shard,
// returning the first violation found across shards (spec.md §6:
// "GET /v1/ledger/verify?from=&to= -> OK or Violation{first_bad_seq,
// reason}"). fromSeq/toSeq apply identically to every shard; a toSeq of
// 0 means each shard's current tip. Callers wanting shard-scoped
// verification should call the shard's Chain directly.
func (g *LedgerGateway) VerifyAll(ctx context.Context, fromSeq, toSeq uint64) (*ledger.Violation, error) {
	for _, shard := range g.Recorder.Shards {
		to := toSeq
		if to == 0 {
			tip, ok, err := shard.ChainStore.Tip(ctx, shard.Shard)
			if err != nil {
				return nil, err
			}
			if ok {
				to = tip.Seq
			}
		}
		v, err := shard.Verify(ctx, fromSeq, to)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}
	return nil, nil
}

// Dump returns every shard's events in [fromSeq, toSeq], concatenated in
// shard order, for neuralctl's "ledger dump <range>" (spec.md §6's CLI
// surface). Unlike VerifyAll this never short-circuits on a lockdown
// shard: a dump is a read, and a locked shard's events up to its tip are
// still readable evidence.
func (g *LedgerGateway) Dump(ctx context.Context, fromSeq, toSeq uint64) ([]*ledger.Event, error) {
	var events []*ledger.Event
	for _, shard := range g.Recorder.Shards {
		shardEvents, err := shard.ChainStore.Range(ctx, shard.Shard, fromSeq, toSeq)
		if err != nil {
			return nil, err
		}
		events = append(events, shardEvents...)
	}
	return events, nil
}
