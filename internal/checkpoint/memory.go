package checkpoint

import (
	"context"
	"sync"

	"github.com/GoSim-25-26J-441/bench-core/internal/aggregator"
)

// MemoryStore keeps records in process. It serves local runs without etcd
// and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]aggregator.Entry
	order   []string
	missing map[string]aggregator.Missing
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]aggregator.Entry),
		missing: make(map[string]aggregator.Missing),
	}
}

func (s *MemoryStore) PutEntry(e aggregator.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := e.Key.String()
	if _, ok := s.entries[k]; !ok {
		s.order = append(s.order, k)
	}
	s.entries[k] = e
	delete(s.missing, k)
	return nil
}

func (s *MemoryStore) PutMissing(m aggregator.Missing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing[m.Key.String()] = m
	return nil
}

func (s *MemoryStore) Load(ctx context.Context) ([]aggregator.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]aggregator.Entry, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.entries[k])
	}
	return out, nil
}

// Missing returns the number of missing records
func (s *MemoryStore) Missing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.missing)
}

func (s *MemoryStore) Close() error { return nil }
