package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// LedgerAppendedChannel is the Postgres NOTIFY channel ChainStore
// announces on after each append (spec.md §4.8 step 7: "Publishes
// ledger_appended for consumers"). The teacher repo migrated away from
// lib/pq for driver registration (DD-010, favoring jackc/pgx/v5), but
// never replaced its LISTEN/NOTIFY use case — pq.Listener is kept here
// for exactly that: a lightweight in-database notification channel for
// consumers (e.g. the document-index updater, or an operator dashboard)
// that don't need full durable-stream semantics.
const LedgerAppendedChannel = "ledger_appended"

// Notify announces seq/shard on LedgerAppendedChannel. Call this after
// ChainStore.Append succeeds.
func (s *ChainStore) Notify(ctx context.Context, shard int, seq uint64) error {
	payload := fmt.Sprintf("%d:%d", shard, seq)
	_, err := s.DB.ExecContext(ctx, `SELECT pg_notify($1, $2)`, LedgerAppendedChannel, payload)
	if err != nil {
		return fmt.Errorf("pgstore: notify: %w", err)
	}
	return nil
}

// Subscriber listens for LedgerAppendedChannel notifications using
// lib/pq's dedicated Listener connection (distinct from the sqlx/pgx
// pool used for normal queries, since LISTEN requires a held
// connection).
type Subscriber struct {
	listener *pq.Listener
	Notices  chan string
}

// NewSubscriber opens a lib/pq Listener against dsn and subscribes to
// LedgerAppendedChannel.
func NewSubscriber(dsn string) (*Subscriber, error) {
	notices := make(chan string, 64)
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if ev == pq.ListenerEventConnectionAttemptFailed && err != nil {
			return
		}
	})
	if err := listener.Listen(LedgerAppendedChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("pgstore: listen: %w", err)
	}

	sub := &Subscriber{listener: listener, Notices: notices}
	go sub.pump()
	return sub, nil
}

func (s *Subscriber) pump() {
	for n := range s.listener.Notify {
		if n == nil {
			continue
		}
		select {
		case s.Notices <- n.Extra:
		default:
		}
	}
}

func (s *Subscriber) Close() error {
	return s.listener.Close()
}
