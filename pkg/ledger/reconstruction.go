package ledger

import (
	"context"
	"fmt"
	"sort"
)

// reconstructionRelevantTypes are the canonical event types (spec.md
// §3) that matter when reconstructing a session's history. This
// package's own copy exists because pkg/datastorage/reconstruction's
// pre-existing reconstructionRelevantTypes map uses a dot-style
// vocabulary (device.connected, session.started, ...) left over from
// an earlier, unrelated domain and never updated to spec.md's actual
// underscore-style canonical event_type strings; see DESIGN.md for why
// that package is kept as-is rather than patched in place.
var reconstructionRelevantTypes = map[EventType]bool{
	EventSessionCreated:     true,
	EventSessionClosed:      true,
	EventDeviceConnected:    true,
	EventDeviceDisconnected: true,
	EventDataIngested:       true,
	EventFeaturesComputed:   true,
	EventAnomalyDetected:    true,
	EventAccessGranted:      true,
	EventAccessDenied:       true,
	EventKeyRotated:         true,
	EventPurgeExecuted:      true,
}

// IsReconstructionRelevant reports whether an event of type t should be
// included when reconstructing a session's or user's history.
func IsReconstructionRelevant(t EventType) bool {
	return reconstructionRelevantTypes[t]
}

// Reconstructor resolves the document index's lightweight references
// back into full Events from the authoritative chain store(s), scoped
// to a single correlation id (session_id or user_id_anon).
type Reconstructor struct {
	Document DocumentIndex
	Shards   []*Chain // index i holds the ChainStore for shard i
}

// BySession returns every reconstruction-relevant event for sessionID,
// in ascending ts_ns order, resolved from whichever shard each
// reference's Seq/Shard points into.
func (r *Reconstructor) BySession(ctx context.Context, sessionID string) ([]*Event, error) {
	refs, err := r.Document.BySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ledger: reconstruct by session: %w", err)
	}
	return r.resolve(ctx, refs)
}

// ByUser returns every reconstruction-relevant event for userIDAnon, in
// ascending ts_ns order.
func (r *Reconstructor) ByUser(ctx context.Context, userIDAnon string) ([]*Event, error) {
	refs, err := r.Document.ByUser(ctx, userIDAnon)
	if err != nil {
		return nil, fmt.Errorf("ledger: reconstruct by user: %w", err)
	}
	return r.resolve(ctx, refs)
}

func (r *Reconstructor) resolve(ctx context.Context, refs []*Event) ([]*Event, error) {
	var out []*Event
	for _, ref := range refs {
		if !IsReconstructionRelevant(ref.EventType) {
			continue
		}
		if ref.Shard < 0 || ref.Shard >= len(r.Shards) {
			return nil, fmt.Errorf("ledger: reconstruct: reference to unknown shard %d", ref.Shard)
		}
		events, err := r.Shards[ref.Shard].ChainStore.Range(ctx, ref.Shard, ref.Seq, ref.Seq)
		if err != nil {
			return nil, fmt.Errorf("ledger: reconstruct: resolve seq=%d shard=%d: %w", ref.Seq, ref.Shard, err)
		}
		out = append(out, events...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TsNs < out[j].TsNs })
	return out, nil
}
