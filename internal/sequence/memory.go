package sequence

import (
	"context"
	"sync"
)

// MemoryCounterStore is a mutex-guarded counter for single-process use.
// Bootstrap mirrors the Postgres store: the seed callback supplies the
// highest existing ticket id the first time the counter is touched.
type MemoryCounterStore struct {
	mu          sync.Mutex
	value       uint64
	initialized bool
	seed        func(ctx context.Context) (uint64, error)
}

// NewMemoryCounterStore builds the store. seed may be nil, in which case
// the counter starts at zero.
func NewMemoryCounterStore(seed func(ctx context.Context) (uint64, error)) *MemoryCounterStore {
	return &MemoryCounterStore{seed: seed}
}

// Increment advances the counter under the mutex.
func (s *MemoryCounterStore) Increment(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		if s.seed != nil {
			seeded, err := s.seed(ctx)
			if err != nil {
				return 0, err
			}
			s.value = seeded
		}
		s.initialized = true
	}
	s.value++
	return s.value, nil
}
