package conversation

import (
	"context"
	"sync"
)

// MemoryStore keeps threads for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[int64][]Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[int64][]Turn)}
}

func (s *MemoryStore) History(_ context.Context, threadID int64) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, ok := s.threads[threadID]
	if !ok {
		s.threads[threadID] = []Turn{}
		return []Turn{}, nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, threadID int64, turns ...Turn) error {
	if err := validateTurns(turns); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = append(s.threads[threadID], turns...)
	return nil
}

// Threads reports how many threads exist.
func (s *MemoryStore) Threads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

func (s *MemoryStore) Close() error { return nil }
