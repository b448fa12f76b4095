package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/neurascale/neural-engine/pkg/metrics"
)

// IntentStore deduplicates LedgerIntents by IntentID so replaying an
// intent already persisted is a no-op (spec.md §8 invariant 6). A Redis
// SETNX-with-TTL implementation lives in pkg/ledger/redisstore; any store satisfying "first writer wins" semantics works.
type IntentStore interface {
	// Claim returns true if intentID was not previously claimed (and is
	// now recorded), false if it was already claimed.
	Claim(ctx context.Context, intentID string, ttl time.Duration) (bool, error)
}

// Chain is a single shard's single-writer hash chain processor
// (spec.md §4.8's write path). Callers serialize through one Chain
// instance per shard; Chain itself serializes Append internally so a
// caller may safely share one Chain across goroutines.
type Chain struct {
	Shard      int
	ChainStore ChainStore
	Analytical AnalyticalStore
	Document   DocumentIndex
	Intents    IntentStore
	Signer     Signer // nil disables signing (signing_mode "none")
	Logger     logr.Logger

	mu      sync.Mutex
	locked  bool
	lockErr error
}

// IntentTTL bounds how long an intent UUID is remembered for dedup
// purposes.
const IntentTTL = 24 * time.Hour

// Append processes one LedgerIntent end to end: claims idempotency,
// appends seq, loads prev_hash, builds the canonical event, computes
// event_hash, optionally signs it, and fans out to all three stores
// (spec.md §4.8 steps 1-7). It returns the persisted Event, or
// (nil, nil) if intent.IntentID was already claimed (idempotent
// replay).
func (c *Chain) Append(ctx context.Context, intent Intent) (*Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.locked {
		return nil, fmt.Errorf("%w: %v", ErrShardLocked, c.lockErr)
	}

	if c.Intents != nil {
		fresh, err := c.Intents.Claim(ctx, intent.IntentID, IntentTTL)
		if err != nil {
			metrics.RecordLedgerWriteError("intent_store", "claim_failed")
			return nil, fmt.Errorf("ledger: claim intent: %w", err)
		}
		if !fresh {
			return nil, nil
		}
	}

	tip, hasTip, err := c.ChainStore.Tip(ctx, c.Shard)
	if err != nil {
		metrics.RecordLedgerWriteError("chain_store", "tip_read_failed")
		return nil, fmt.Errorf("ledger: read chain tip: %w", err)
	}

	var prevHash [32]byte
	var nextSeq uint64
	if hasTip {
		ok, err := tip.VerifyHash()
		if err != nil {
			return nil, fmt.Errorf("ledger: recompute tip hash: %w", err)
		}
		if !ok {
			c.lockdown(fmt.Errorf("tip event seq=%d failed hash recomputation on cold start", tip.Seq))
			return nil, c.lockErr
		}
		prevHash = tip.EventHash
		nextSeq = tip.Seq + 1
	} else {
		prevHash = Genesis
		nextSeq = 0
	}

	ev := &Event{
		EventID:     uuid.New(),
		TsNs:        intent.TsNs,
		EventType:   intent.EventType,
		SessionID:   intent.SessionID,
		DeviceID:    intent.DeviceID,
		UserIDAnon:  intent.UserIDAnon,
		DataHash:    intent.DataHash,
		HasDataHash: intent.HasDataHash,
		Metadata:    intent.Metadata,
		PrevHash:    prevHash,
		Seq:         nextSeq,
		Shard:       c.Shard,
	}

	if _, err := ev.ComputeHash(); err != nil {
		return nil, fmt.Errorf("ledger: compute event hash: %w", err)
	}

	if c.Signer != nil {
		sig, keyID, err := c.Signer.Sign(ctx, ev.EventHash)
		if err != nil {
			metrics.RecordLedgerWriteError("kms", "sign_failed")
			return nil, fmt.Errorf("ledger: sign event hash: %w", err)
		}
		ev.Signature = sig
		ev.SigningKeyID = keyID
	}

	if err := c.ChainStore.Append(ctx, ev); err != nil {
		metrics.RecordLedgerWriteError("chain_store", "append_failed")
		return nil, fmt.Errorf("ledger: append to chain store: %w", err)
	}
	metrics.RecordStoreCall("append")

	if c.Analytical != nil {
		if err := c.Analytical.Append(ctx, ev); err != nil {
			// Analytical store is a materialized view, not the source of
			// truth; log and let the reconciliation job catch divergence
			// (spec.md §4.8's failure semantics) rather than fail the append.
			metrics.RecordLedgerWriteError("analytical_store", "append_failed")
			c.Logger.Error(err, "ledger: analytical store append failed, will be caught by reconciliation", "seq", ev.Seq, "shard", ev.Shard)
		}
	}
	if c.Document != nil {
		if err := c.Document.Index(ctx, ev); err != nil {
			metrics.RecordLedgerWriteError("document_index", "index_failed")
			c.Logger.Error(err, "ledger: document index update failed", "seq", ev.Seq, "shard", ev.Shard)
		}
	}

	return ev, nil
}

// Locked reports whether this shard is currently in integrity lockdown.
func (c *Chain) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

func (c *Chain) lockdown(reason error) {
	c.locked = true
	c.lockErr = reason
	c.Logger.Error(reason, "ledger: shard entering integrity lockdown", "shard", c.Shard)
}

// Verify replays events [fromSeq, toSeq] of the shard, recomputing each
// event_hash and signature, and reports the first violation found
// (spec.md §4.8's verification API / §8 invariant 1). A violation also
// puts the shard into lockdown.
func (c *Chain) Verify(ctx context.Context, fromSeq, toSeq uint64) (*Violation, error) {
	events, err := c.ChainStore.Range(ctx, c.Shard, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("ledger: read chain range: %w", err)
	}
	metrics.RecordStoreCall("verify")

	var prevHash [32]byte
	havePrev := false
	for _, ev := range events {
		ok, err := ev.VerifyHash()
		if err != nil {
			return nil, fmt.Errorf("ledger: recompute hash for seq=%d: %w", ev.Seq, err)
		}
		if !ok {
			v := &Violation{FirstBadSeq: ev.Seq, Reason: "hash_mismatch"}
			c.mu.Lock()
			c.lockdown(fmt.Errorf("verify: %s at seq=%d", v.Reason, v.FirstBadSeq))
			c.mu.Unlock()
			return v, nil
		}
		if havePrev && ev.PrevHash != prevHash {
			v := &Violation{FirstBadSeq: ev.Seq, Reason: "prev_hash_mismatch"}
			c.mu.Lock()
			c.lockdown(fmt.Errorf("verify: %s at seq=%d", v.Reason, v.FirstBadSeq))
			c.mu.Unlock()
			return v, nil
		}
		if c.Signer != nil && len(ev.Signature) > 0 {
			if err := c.Signer.Verify(ctx, ev.EventHash, ev.Signature, ev.SigningKeyID); err != nil {
				v := &Violation{FirstBadSeq: ev.Seq, Reason: "signature_invalid"}
				c.mu.Lock()
				c.lockdown(fmt.Errorf("verify: %s at seq=%d: %v", v.Reason, v.FirstBadSeq, err))
				c.mu.Unlock()
				return v, nil
			}
		}
		prevHash = ev.EventHash
		havePrev = true
	}
	return nil, nil
}

// Violation is spec.md §4.8's Violation{first_bad_seq, reason}.
type Violation struct {
	FirstBadSeq uint64
	Reason      string
}
