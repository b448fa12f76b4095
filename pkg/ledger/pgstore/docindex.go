package pgstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/neurascale/neural-engine/pkg/ledger"
)

// DocumentIndex maintains the document store's secondary lookups
// (spec.md §6): (session_id, ts_ns desc) and (user_id, ts_ns desc).
type DocumentIndex struct {
	DB *sqlx.DB
}

const docIndexSchema = `
CREATE TABLE IF NOT EXISTS ledger_document_index (
	event_id     BYTEA NOT NULL PRIMARY KEY,
	shard        INT NOT NULL,
	seq          BIGINT NOT NULL,
	ts_ns        BIGINT NOT NULL,
	event_type   TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	user_id_anon TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_document_index_session_ts ON ledger_document_index (session_id, ts_ns DESC);
CREATE INDEX IF NOT EXISTS ledger_document_index_user_ts ON ledger_document_index (user_id_anon, ts_ns DESC)`

func (s *DocumentIndex) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, docIndexSchema)
	return err
}

func (s *DocumentIndex) Index(ctx context.Context, ev *ledger.Event) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO ledger_document_index (event_id, shard, seq, ts_ns, event_type, session_id, user_id_anon)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING`,
		ev.EventID[:], ev.Shard, ev.Seq, ev.TsNs, string(ev.EventType), ev.SessionID, ev.UserIDAnon)
	if err != nil {
		return fmt.Errorf("pgstore: document index: %w", err)
	}
	return nil
}

func (s *DocumentIndex) BySession(ctx context.Context, sessionID string) ([]*ledger.Event, error) {
	return s.queryRefs(ctx, `SELECT shard, seq, ts_ns, event_type FROM ledger_document_index
		WHERE session_id = $1 ORDER BY ts_ns DESC`, sessionID)
}

func (s *DocumentIndex) ByUser(ctx context.Context, userIDAnon string) ([]*ledger.Event, error) {
	return s.queryRefs(ctx, `SELECT shard, seq, ts_ns, event_type FROM ledger_document_index
		WHERE user_id_anon = $1 ORDER BY ts_ns DESC`, userIDAnon)
}

// indexRef is a thin projection of ledger_document_index; BySession and
// ByUser return reference stubs (shard/seq/ts_ns/event_type) for the
// caller to resolve against the authoritative ChainStore — the
// document index is a lookup, not a copy of the chain.
type indexRef struct {
	Shard     int    `db:"shard"`
	Seq       uint64 `db:"seq"`
	TsNs      int64  `db:"ts_ns"`
	EventType string `db:"event_type"`
}

func (s *DocumentIndex) queryRefs(ctx context.Context, query string, arg string) ([]*ledger.Event, error) {
	var refs []indexRef
	if err := s.DB.SelectContext(ctx, &refs, query, arg); err != nil {
		return nil, fmt.Errorf("pgstore: document index query: %w", err)
	}
	events := make([]*ledger.Event, 0, len(refs))
	for _, r := range refs {
		events = append(events, &ledger.Event{Shard: r.Shard, Seq: r.Seq, TsNs: r.TsNs, EventType: ledger.EventType(r.EventType)})
	}
	return events, nil
}
