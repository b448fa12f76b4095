package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/neurascale/neural-engine/pkg/datastorage/metrics"
	"github.com/neurascale/neural-engine/pkg/ledger"
)

// AnalyticalStore is the append-only analytical store (spec.md §6):
// day-partitioned on ts_ns, clustered by event_type then session_id,
// with a 7-year partition expiration managed out of band by operators
// (partition DDL/retention is a migration concern, not this package's).
type AnalyticalStore struct {
	DB      *sqlx.DB
	Metrics *metrics.Metrics
}

const analyticalSchema = `
CREATE TABLE IF NOT EXISTS ledger_analytical (
	event_id     BYTEA NOT NULL,
	shard        INT NOT NULL,
	seq          BIGINT NOT NULL,
	ts_ns        BIGINT NOT NULL,
	event_day    DATE NOT NULL,
	event_type   TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	device_id    TEXT NOT NULL,
	user_id_anon TEXT NOT NULL,
	event_hash   BYTEA NOT NULL,
	metadata     JSONB NOT NULL
) PARTITION BY RANGE (event_day)`

func (s *AnalyticalStore) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, analyticalSchema)
	return err
}

func (s *AnalyticalStore) Append(ctx context.Context, ev *ledger.Event) error {
	start := time.Now()
	metaJSON, err := json.Marshal(ev.Metadata)
	if err != nil {
		observeWrite(s.Metrics, "ledger_analytical", start, err)
		return fmt.Errorf("pgstore: marshal metadata: %w", err)
	}
	day := time.Unix(0, ev.TsNs).UTC().Format("2006-01-02")
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO ledger_analytical
			(event_id, shard, seq, ts_ns, event_day, event_type, session_id, device_id, user_id_anon, event_hash, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.EventID[:], ev.Shard, ev.Seq, ev.TsNs, day, string(ev.EventType), ev.SessionID, ev.DeviceID, ev.UserIDAnon, ev.EventHash[:], metaJSON)
	if err != nil {
		err = fmt.Errorf("pgstore: analytical append: %w", err)
	}
	observeWrite(s.Metrics, "ledger_analytical", start, err)
	return err
}

// EventHashesInRange implements pkg/ledger.AnalyticalReader for the
// reconciliation job.
func (s *AnalyticalStore) EventHashesInRange(ctx context.Context, shard int, fromSeq, toSeq uint64) (map[uint64][32]byte, error) {
	type row struct {
		Seq       uint64 `db:"seq"`
		EventHash []byte `db:"event_hash"`
	}
	var rows []row
	err := s.DB.SelectContext(ctx, &rows,
		`SELECT seq, event_hash FROM ledger_analytical WHERE shard = $1 AND seq BETWEEN $2 AND $3`,
		shard, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("pgstore: event hashes in range: %w", err)
	}
	out := make(map[uint64][32]byte, len(rows))
	for _, r := range rows {
		var h [32]byte
		copy(h[:], r.EventHash)
		out[r.Seq] = h
	}
	return out, nil
}
