// Package pgstore implements pkg/ledger's ChainStore, AnalyticalStore
// and DocumentIndex against PostgreSQL via jmoiron/sqlx over the
// jackc/pgx/v5 stdlib driver. The pack's only precedent for this
// connection idiom is test-only (e.g.
// test/integration/datastorage/suite_test.go's
// sqlx.Connect("pgx", connStr) against the jackc/pgx/v5/stdlib driver,
// annotated "DD-010: Using pgx driver with sqlx"); this package applies
// that same driver/library pairing to production code, since the pack
// otherwise defines its storage layer only behind interfaces.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" sql driver

	"github.com/neurascale/neural-engine/pkg/datastorage/metrics"
	"github.com/neurascale/neural-engine/pkg/datastorage/repository/sqlutil"
	"github.com/neurascale/neural-engine/pkg/ledger"
)

// observeWrite records a write's duration and outcome against m's
// write_duration_seconds/writes_total instruments when m is non-nil;
// a nil Metrics (the zero value every test-constructed store gets)
// disables it entirely rather than panicking.
func observeWrite(m *metrics.Metrics, table string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.WriteDuration.WithLabelValues(table).Observe(time.Since(start).Seconds())
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusFailure
	}
	m.WritesTotal.WithLabelValues(table, status).Inc()
}

// Open connects to PostgreSQL using the pgx stdlib driver under sqlx,
// the pack's established pairing for this database.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	return db, nil
}

// chainRow mirrors the ledger_chain table: the time-series chain store
// (spec.md §6), row key conceptually ledger/{shard}/{reverse seq},
// physically a (shard, seq) primary key here.
type chainRow struct {
	Shard        int    `db:"shard"`
	Seq          uint64 `db:"seq"`
	EventID      []byte `db:"event_id"`
	TsNs         int64  `db:"ts_ns"`
	EventType    string `db:"event_type"`
	SessionID    string `db:"session_id"`
	DeviceID     string `db:"device_id"`
	UserIDAnon   string `db:"user_id_anon"`
	DataHash     []byte `db:"data_hash"`
	HasDataHash  bool   `db:"has_data_hash"`
	Metadata     []byte `db:"metadata"`
	PrevHash     []byte `db:"prev_hash"`
	EventHash    []byte `db:"event_hash"`
	Signature []byte `db:"signature"`
	// SigningKeyID is stored as a nullable column (unsigned events, per
	// cfg.Ledger.SigningMode == "none", carry no key id at all), so the row
	// uses sql.NullString rather than letting an absent key id round-trip
	// as the ambiguous empty string.
	SigningKeyID sql.NullString `db:"signing_key_id"`
}

// ChainStore is the time-series (authoritative) chain store.
type ChainStore struct {
	DB *sqlx.DB
	// Metrics records write latency/outcome when set; nil disables it,
	// which every ChainStore constructed without one (e.g. in tests)
	// relies on.
	Metrics *metrics.Metrics
}

const chainSchema = `
CREATE TABLE IF NOT EXISTS ledger_chain (
	shard          INT NOT NULL,
	seq            BIGINT NOT NULL,
	event_id       BYTEA NOT NULL,
	ts_ns          BIGINT NOT NULL,
	event_type     TEXT NOT NULL,
	session_id     TEXT NOT NULL,
	device_id      TEXT NOT NULL,
	user_id_anon   TEXT NOT NULL,
	data_hash      BYTEA NOT NULL,
	has_data_hash  BOOLEAN NOT NULL,
	metadata       JSONB NOT NULL,
	prev_hash      BYTEA NOT NULL,
	event_hash     BYTEA NOT NULL,
	signature      BYTEA,
	signing_key_id TEXT,
	PRIMARY KEY (shard, seq)
)`

// EnsureSchema creates the backing tables if they do not already
// exist. Production deployments are expected to manage this via
// migrations instead; this exists for single-node/dev bring-up.
func (s *ChainStore) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, chainSchema)
	return err
}

func (s *ChainStore) Tip(ctx context.Context, shard int) (*ledger.Event, bool, error) {
	var row chainRow
	err := s.DB.GetContext(ctx, &row,
		`SELECT shard, seq, event_id, ts_ns, event_type, session_id, device_id, user_id_anon,
		        data_hash, has_data_hash, metadata, prev_hash, event_hash, signature, signing_key_id
		 FROM ledger_chain WHERE shard = $1 ORDER BY seq DESC LIMIT 1`, shard)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: tip: %w", err)
	}
	ev, err := rowToEvent(row)
	if err != nil {
		return nil, false, err
	}
	return ev, true, nil
}

func (s *ChainStore) Append(ctx context.Context, ev *ledger.Event) error {
	start := time.Now()
	row, err := eventToRow(ev)
	if err != nil {
		observeWrite(s.Metrics, "ledger_chain", start, err)
		return err
	}
	_, err = s.DB.NamedExecContext(ctx, `
		INSERT INTO ledger_chain
			(shard, seq, event_id, ts_ns, event_type, session_id, device_id, user_id_anon,
			 data_hash, has_data_hash, metadata, prev_hash, event_hash, signature, signing_key_id)
		VALUES
			(:shard, :seq, :event_id, :ts_ns, :event_type, :session_id, :device_id, :user_id_anon,
			 :data_hash, :has_data_hash, :metadata, :prev_hash, :event_hash, :signature, :signing_key_id)`,
		row)
	if err != nil {
		err = fmt.Errorf("pgstore: append: %w", err)
	}
	observeWrite(s.Metrics, "ledger_chain", start, err)
	return err
}

func (s *ChainStore) Range(ctx context.Context, shard int, fromSeq, toSeq uint64) ([]*ledger.Event, error) {
	var rows []chainRow
	err := s.DB.SelectContext(ctx, &rows,
		`SELECT shard, seq, event_id, ts_ns, event_type, session_id, device_id, user_id_anon,
		        data_hash, has_data_hash, metadata, prev_hash, event_hash, signature, signing_key_id
		 FROM ledger_chain WHERE shard = $1 AND seq BETWEEN $2 AND $3 ORDER BY seq ASC`,
		shard, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("pgstore: range: %w", err)
	}
	events := make([]*ledger.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := rowToEvent(row)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func eventToRow(ev *ledger.Event) (chainRow, error) {
	metaJSON, err := json.Marshal(ev.Metadata)
	if err != nil {
		return chainRow{}, fmt.Errorf("pgstore: marshal metadata: %w", err)
	}
	return chainRow{
		Shard:        ev.Shard,
		Seq:          ev.Seq,
		EventID:      ev.EventID[:],
		TsNs:         ev.TsNs,
		EventType:    string(ev.EventType),
		SessionID:    ev.SessionID,
		DeviceID:     ev.DeviceID,
		UserIDAnon:   ev.UserIDAnon,
		DataHash:     ev.DataHash[:],
		HasDataHash:  ev.HasDataHash,
		Metadata:     metaJSON,
		PrevHash:     ev.PrevHash[:],
		EventHash:    ev.EventHash[:],
		Signature:    ev.Signature,
		SigningKeyID: sqlutil.ToNullStringValue(ev.SigningKeyID),
	}, nil
}

func rowToEvent(row chainRow) (*ledger.Event, error) {
	ev := &ledger.Event{
		Seq:          row.Seq,
		Shard:        row.Shard,
		TsNs:         row.TsNs,
		EventType:    ledger.EventType(row.EventType),
		SessionID:    row.SessionID,
		DeviceID:     row.DeviceID,
		UserIDAnon:   row.UserIDAnon,
		HasDataHash: row.HasDataHash,
		Signature:   row.Signature,
	}
	if keyID := sqlutil.FromNullString(row.SigningKeyID); keyID != nil {
		ev.SigningKeyID = *keyID
	}
	copy(ev.EventID[:], row.EventID)
	copy(ev.DataHash[:], row.DataHash)
	copy(ev.PrevHash[:], row.PrevHash)
	copy(ev.EventHash[:], row.EventHash)
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("pgstore: unmarshal metadata: %w", err)
		}
	}
	return ev, nil
}
