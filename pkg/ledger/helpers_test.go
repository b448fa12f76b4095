package ledger_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/neurascale/neural-engine/pkg/ledger"
)

var (
	errSignFailed       = errors.New("sign failed")
	errSignatureInvalid = errors.New("signature invalid")
)

func testLogger() logr.Logger {
	return logr.Discard()
}

type memChainStore struct {
	mu     sync.Mutex
	events map[int][]*ledger.Event // shard -> events in append order
}

func newMemChainStore() *memChainStore {
	return &memChainStore{events: make(map[int][]*ledger.Event)}
}

func (s *memChainStore) Tip(_ context.Context, shard int) (*ledger.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.events[shard]
	if len(list) == 0 {
		return nil, false, nil
	}
	return list[len(list)-1], true, nil
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

// corrupt mutates the metadata of the event at seq in shard, simulating
// an out-of-band tamper (spec.md S3 scenario).
func (s *memChainStore) corrupt(shard int, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events[shard] {
		if ev.Seq == seq {
			if ev.Metadata == nil {
				ev.Metadata = map[string]string{}
			}
			ev.Metadata["tampered"] = "true"
			return
		}
	}
}

type memAnalyticalStore struct {
	mu     sync.Mutex
	events []*ledger.Event
}

func (s *memAnalyticalStore) Append(_ context.Context, ev *ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *ev // analytical store keeps its own copy, independent of the chain store's pointer
	s.events = append(s.events, &clone)
	return nil
}

func (s *memAnalyticalStore) EventHashesInRange(_ context.Context, shard int, fromSeq, toSeq uint64) (map[uint64][32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint64][32]byte)
	for _, ev := range s.events {
		if ev.Shard == shard && ev.Seq >= fromSeq && ev.Seq <= toSeq {
			out[ev.Seq] = ev.EventHash
		}
	}
	return out, nil
}

type memDocumentIndex struct {
	mu    sync.Mutex
	byRef []*ledger.Event
}

func (s *memDocumentIndex) Index(_ context.Context, ev *ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRef = append(s.byRef, ev)
	return nil
}

func (s *memDocumentIndex) BySession(_ context.Context, sessionID string) ([]*ledger.Event, error) {
	return s.filtered(func(ev *ledger.Event) bool { return ev.SessionID == sessionID })
}

func (s *memDocumentIndex) ByUser(_ context.Context, userIDAnon string) ([]*ledger.Event, error) {
	return s.filtered(func(ev *ledger.Event) bool { return ev.UserIDAnon == userIDAnon })
}

func (s *memDocumentIndex) filtered(pred func(*ledger.Event) bool) ([]*ledger.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ledger.Event
	for _, ev := range s.byRef {
		if pred(ev) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TsNs > out[j].TsNs })
	return out, nil
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

type fakeSigner struct {
	fail bool
}

func (s *fakeSigner) Sign(_ context.Context, hash [32]byte) ([]byte, string, error) {
	if s.fail {
		return nil, "", errSignFailed
	}
	sig := make([]byte, len(hash))
	copy(sig, hash[:])
	return sig, "key-1", nil
}

func (s *fakeSigner) Verify(_ context.Context, hash [32]byte, signature []byte, _ string) error {
	for i, b := range hash {
		if i >= len(signature) || signature[i] != b {
			return errSignatureInvalid
		}
	}
	return nil
}
