// Package reconstruction rebuilds the full event timeline for one
// correlation ID (typically a session or a single ingestion batch) from
// the neural ledger, for incident review and control-plane "explain this
// session" queries.
package reconstruction

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// LedgerEvent is the subset of a ledger entry reconstruction needs.
type LedgerEvent struct {
	EventType     string
	CorrelationID string
	Timestamp     time.Time
}

// EventStore looks up ledger events by correlation ID. The ledger's
// document store implements this for reconstruction queries.
type EventStore interface {
	EventsByCorrelationID(ctx context.Context, correlationID string) ([]LedgerEvent, error)
}

// reconstructionRelevantTypes are the event types that make up a
// session's causal timeline. Ambient events (heartbeats, notifications,
// metrics) are noise for reconstruction and are filtered out.
var reconstructionRelevantTypes = map[string]bool{
	"device.connected":  true,
	"session.started":   true,
	"sample.ingested":   true,
	"feature.extracted": true,
	"session.completed": true,
}

// IsReconstructionRelevant reports whether eventType belongs in a
// reconstructed session timeline.
func IsReconstructionRelevant(eventType string) bool {
	return reconstructionRelevantTypes[eventType]
}

// QueryEventsForReconstruction returns every reconstruction-relevant
// ledger event for correlationID, ordered oldest first.
func QueryEventsForReconstruction(ctx context.Context, store EventStore, correlationID string) ([]LedgerEvent, error) {
	if store == nil {
		return nil, fmt.Errorf("reconstruction: event store is nil")
	}

	events, err := store.EventsByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("reconstruction: query events for %s: %w", correlationID, err)
	}

	relevant := make([]LedgerEvent, 0, len(events))
	for _, e := range events {
		if IsReconstructionRelevant(e.EventType) {
			relevant = append(relevant, e)
		}
	}

	sort.Slice(relevant, func(i, j int) bool {
		return relevant[i].Timestamp.Before(relevant[j].Timestamp)
	})

	return relevant, nil
}
