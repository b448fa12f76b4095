package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" sql driver, mirroring pkg/ledger/pgstore

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Sink is the pipeline's idempotent emission target, keyed by
// (session_id, window_start_ns) (spec.md §4.6: "idempotent Sink keyed by
// (session_id, window_start_ns)").
type Sink interface {
	Put(ctx context.Context, frame *Frame) error
}

// LedgerRecorder is the subset of pkg/ledger.Recorder the pipeline needs,
// narrowed for testability.
type LedgerRecorder interface {
	RecordFeaturesComputed(sessionID string, windowStartNs, windowEndNs int64, featuresHash [32]byte) error
}

// RecordingSink wraps an underlying Sink and records a features_computed
// ledger event (metadata only, plus features_hash) for every frame it
// successfully writes (spec.md §4.6). The ledger write happens after the
// store write so a failed store write never produces an orphaned ledger
// event with no backing data.
type RecordingSink struct {
	Store  Sink
	Ledger LedgerRecorder
}

func (s *RecordingSink) Put(ctx context.Context, frame *Frame) error {
	if err := s.Store.Put(ctx, frame); err != nil {
		return err
	}
	if s.Ledger == nil {
		return nil
	}
	return s.Ledger.RecordFeaturesComputed(frame.SessionID, frame.WindowStartNs, frame.WindowEndNs, frame.Hash())
}

// frameRow mirrors the pipeline_features table: the row-oriented store
// for recently-computed frames (spec.md's "derived store, row-oriented
// for recent ... for long-term"), following pkg/ledger/pgstore's
// jmoiron/sqlx-over-jackc/pgx/v5/stdlib pairing so the two Postgres-backed
// stores in this module share one driver idiom.
type frameRow struct {
	SessionID     string `db:"session_id"`
	WindowStartNs int64  `db:"window_start_ns"`
	WindowEndNs   int64  `db:"window_end_ns"`
	DataType      string `db:"data_type"`
	Payload       []byte `db:"payload"`
}

const frameSchema = `
CREATE TABLE IF NOT EXISTS pipeline_features (
	session_id      TEXT NOT NULL,
	window_start_ns BIGINT NOT NULL,
	window_end_ns   BIGINT NOT NULL,
	data_type       TEXT NOT NULL,
	payload         JSONB NOT NULL,
	PRIMARY KEY (session_id, window_start_ns)
)`

// RowStore is the recent-window row store: one row per (session_id,
// window_start_ns), upserted so re-delivery of the same window is a
// no-op overwrite rather than a duplicate (spec.md's idempotent Sink
// requirement).
type RowStore struct {
	DB *sqlx.DB
}

// OpenRowStore connects to PostgreSQL using the pgx stdlib driver, the
// same pairing pkg/ledger/pgstore.Open uses.
func OpenRowStore(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pipeline: connect: %w", err)
	}
	return db, nil
}

// EnsureSchema creates pipeline_features if it does not already exist.
func (s *RowStore) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, frameSchema)
	return err
}

func (s *RowStore) Put(ctx context.Context, frame *Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("pipeline: marshal frame: %w", err)
	}
	row := frameRow{
		SessionID:     frame.SessionID,
		WindowStartNs: frame.WindowStartNs,
		WindowEndNs:   frame.WindowEndNs,
		DataType:      string(frame.DataType),
		Payload:       payload,
	}
	_, err = s.DB.NamedExecContext(ctx, `
		INSERT INTO pipeline_features (session_id, window_start_ns, window_end_ns, data_type, payload)
		VALUES (:session_id, :window_start_ns, :window_end_ns, :data_type, :payload)
		ON CONFLICT (session_id, window_start_ns) DO UPDATE SET
			window_end_ns = EXCLUDED.window_end_ns,
			data_type     = EXCLUDED.data_type,
			payload       = EXCLUDED.payload`,
		row)
	if err != nil {
		return fmt.Errorf("pipeline: put frame: %w", err)
	}
	return nil
}

// S3PutObjectClient is the subset of *s3.Client this store needs,
// mirroring pkg/devicemanager.S3PutObjectClient's narrowing.
type S3PutObjectClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ColumnarStore is the long-term archive: one object per frame, keyed
// deterministically by (session_id, window_start_ns) so re-delivery
// overwrites the same key instead of accumulating duplicates (spec.md's
// "columnar for long-term" half of the derived store).
type ColumnarStore struct {
	Client S3PutObjectClient
	Bucket string
	Prefix string
}

func (s *ColumnarStore) Put(ctx context.Context, frame *Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("pipeline: marshal frame: %w", err)
	}
	key := fmt.Sprintf("%s/%s/%020d.json", s.Prefix, frame.SessionID, frame.WindowStartNs)
	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.Bucket,
		Key:    &key,
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return fmt.Errorf("pipeline: upload frame: %w", err)
	}
	return nil
}

// FanoutSink writes a frame to every registered Sink, stopping at the
// first error. Used to feed both the recent row store and the long-term
// columnar store from one window close, mirroring
// pkg/ledger/bufferedstore.Fanout's multi-sink shape.
type FanoutSink struct {
	Sinks []Sink
}

func (f *FanoutSink) Put(ctx context.Context, frame *Frame) error {
	for _, sink := range f.Sinks {
		if err := sink.Put(ctx, frame); err != nil {
			return err
		}
	}
	return nil
}
