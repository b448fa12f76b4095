package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/neurascale/neural-engine/pkg/ledger"
)

// rootRow mirrors the ledger_root_chain table: one row per RootChain
// tick, following the same flat-columns-over-byte-slices shape
// chainRow uses.
type rootRow struct {
	TsNs      int64          `db:"ts_ns"`
	ShardTips pq.ByteaArray  `db:"shard_tips"`
	RootHash  []byte         `db:"root_hash"`
	PrevRoot  []byte         `db:"prev_root"`
}

// RootStore persists pkg/ledger.RootChain's periodic cross-shard root
// ticks, the same way ChainStore persists per-shard events.
type RootStore struct {
	DB *sqlx.DB
}

const rootChainSchema = `
CREATE TABLE IF NOT EXISTS ledger_root_chain (
	ts_ns      BIGINT NOT NULL PRIMARY KEY,
	shard_tips BYTEA[] NOT NULL,
	root_hash  BYTEA NOT NULL,
	prev_root  BYTEA NOT NULL
)`

// EnsureSchema creates ledger_root_chain if it does not already exist.
func (s *RootStore) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, rootChainSchema)
	return err
}

func (s *RootStore) LatestRoot(ctx context.Context) (*ledger.RootEntry, bool, error) {
	var row rootRow
	err := s.DB.GetContext(ctx, &row,
		`SELECT ts_ns, shard_tips, root_hash, prev_root FROM ledger_root_chain ORDER BY ts_ns DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: latest root: %w", err)
	}
	entry := &ledger.RootEntry{TsNs: row.TsNs}
	copy(entry.RootHash[:], row.RootHash)
	copy(entry.PrevRoot[:], row.PrevRoot)
	entry.ShardTips = make([][32]byte, len(row.ShardTips))
	for i, tip := range row.ShardTips {
		copy(entry.ShardTips[i][:], tip)
	}
	return entry, true, nil
}

func (s *RootStore) AppendRoot(ctx context.Context, entry *ledger.RootEntry) error {
	tips := make(pq.ByteaArray, len(entry.ShardTips))
	for i, tip := range entry.ShardTips {
		tips[i] = tip[:]
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO ledger_root_chain (ts_ns, shard_tips, root_hash, prev_root) VALUES ($1, $2, $3, $4)`,
		entry.TsNs, tips, entry.RootHash[:], entry.PrevRoot[:])
	if err != nil {
		return fmt.Errorf("pgstore: append root: %w", err)
	}
	return nil
}
