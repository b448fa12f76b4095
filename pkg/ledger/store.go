package ledger

import (
	"context"
	"errors"
)

// ErrIntegrityViolation names the chain-tampering condition (spec.md
// §4.8/§7: IntegrityError is fatal for the affected shard). Chain.Verify
// reports tampering as a *Violation and Chain.Append as ErrShardLocked;
// neither returns this value.
var ErrIntegrityViolation = errors.New("ledger: chain integrity violation")

// ErrShardLocked is returned by Append when the shard is already in
// integrity lockdown from a prior violation.
var ErrShardLocked = errors.New("ledger: shard is in integrity lockdown")

// ChainStore is the time-series store (spec.md §6): the authoritative
// chain state, keyed ledger/{shard}/{zero-padded reverse seq}. It is the
// ground truth the reconciliation job replays from.
type ChainStore interface {
	// Tip returns the last appended event for shard, or ok=false if the
	// shard has no events yet (fresh chain, next append is genesis).
	Tip(ctx context.Context, shard int) (ev *Event, ok bool, err error)
	// Append persists ev as the new tip of shard. Implementations must
	// make this atomic with respect to concurrent Tip reads for the same
	// shard (single-writer-per-shard is enforced by the caller, Chain).
	Append(ctx context.Context, ev *Event) error
	// Range returns events [fromSeq, toSeq] of shard in ascending seq
	// order, for verify() and reconstruction.
	Range(ctx context.Context, shard int, fromSeq, toSeq uint64) ([]*Event, error)
}

// AnalyticalStore is the append-only, day-partitioned analytical store
// (spec.md §6), clustered by event_type then session_id.
type AnalyticalStore interface {
	Append(ctx context.Context, ev *Event) error
}

// DocumentIndex maintains the per-session and per-user secondary
// lookups (spec.md §6): (session_id, ts_ns desc) and (user_id, ts_ns
// desc).
type DocumentIndex interface {
	Index(ctx context.Context, ev *Event) error
	// BySession returns events for sessionID, most recent first.
	BySession(ctx context.Context, sessionID string) ([]*Event, error)
	// ByUser returns events for userIDAnon, most recent first.
	ByUser(ctx context.Context, userIDAnon string) ([]*Event, error)
}

// Signer signs an event_hash with an external KMS-held asymmetric key
// (spec.md §4.8: "RSA-PSS-2048-SHA-256 or equivalent"). Sign also
// returns the key id recorded as signing_key_id.
type Signer interface {
	Sign(ctx context.Context, eventHash [32]byte) (signature []byte, keyID string, err error)
	Verify(ctx context.Context, eventHash [32]byte, signature []byte, keyID string) error
}

// Intent is a LedgerIntent (spec.md §4.8's write path): a request to
// append one event, keyed by a caller-supplied UUID so replays are
// idempotent (spec.md §8 invariant 6).
type Intent struct {
	IntentID   string
	EventType  EventType
	SessionID  string
	DeviceID   string
	UserIDAnon string
	DataHash   [32]byte
	HasDataHash bool
	Metadata   map[string]string
	TsNs       int64
}
