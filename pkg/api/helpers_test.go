package api_test

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/neurascale/neural-engine/pkg/ledger"
)

func testLogger() logr.Logger {
	return logr.Discard()
}

// memChainStore is a minimal in-memory ledger.ChainStore, enough to
// exercise Chain.Append/Verify/Locked without a real backing store.
type memChainStore struct {
	mu     sync.Mutex
	events map[int][]*ledger.Event
}

func newMemChainStore() *memChainStore {
	return &memChainStore{events: make(map[int][]*ledger.Event)}
}

func (s *memChainStore) Tip(_ context.Context, shard int) (*ledger.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := s.events[shard]
	if len(evs) == 0 {
		return nil, false, nil
	}
	return evs[len(evs)-1], true, nil
}

func (s *memChainStore) Append(_ context.Context, ev *ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.Shard] = append(s.events[ev.Shard], ev)
	return nil
}

func (s *memChainStore) Range(_ context.Context, shard int, fromSeq, toSeq uint64) ([]*ledger.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ledger.Event
	for _, ev := range s.events[shard] {
		if ev.Seq >= fromSeq && ev.Seq <= toSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

type memAnalyticalStore struct{}

func (memAnalyticalStore) Append(_ context.Context, _ *ledger.Event) error { return nil }

type memDocumentIndex struct{}

func (memDocumentIndex) Index(_ context.Context, _ *ledger.Event) error { return nil }
func (memDocumentIndex) BySession(_ context.Context, _ string) ([]*ledger.Event, error) {
	return nil, nil
}
func (memDocumentIndex) ByUser(_ context.Context, _ string) ([]*ledger.Event, error) {
	return nil, nil
}

type memIntentStore struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newMemIntentStore() *memIntentStore {
	return &memIntentStore{claimed: make(map[string]bool)}
}

func (s *memIntentStore) Claim(_ context.Context, intentID string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[intentID] {
		return false, nil
	}
	s.claimed[intentID] = true
	return true, nil
}

func newTestChain(shard int) *ledger.Chain {
	return &ledger.Chain{
		Shard:      shard,
		ChainStore: newMemChainStore(),
		Analytical: memAnalyticalStore{},
		Document:   memDocumentIndex{},
		Intents:    newMemIntentStore(),
		Logger:     testLogger(),
	}
}
