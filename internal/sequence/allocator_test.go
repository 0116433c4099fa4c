package sequence

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-core/pkg/util"
)

// flakyStore fails with ErrConflict a fixed number of times before
// delegating to the wrapped store.
type flakyStore struct {
	inner     CounterStore
	conflicts int
	mu        sync.Mutex
}

func (f *flakyStore) Increment(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	remaining := f.conflicts
	if remaining > 0 {
		f.conflicts--
	}
	f.mu.Unlock()
	if remaining > 0 {
		return 0, ErrConflict
	}
	return f.inner.Increment(ctx)
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "0000000001", FormatID(1))
	assert.Equal(t, "0000000042", FormatID(42))
	assert.Equal(t, "1234567890", FormatID(1234567890))
}

func TestNextBootstrapsFromExistingTickets(t *testing.T) {
	store := NewMemoryCounterStore(func(ctx context.Context) (uint64, error) {
		return 5, nil // highest existing ticket is 0000000005
	})
	alloc := NewAllocator(store, 3, nil)

	id, err := alloc.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0000000006", id)
}

func TestNextUniqueUnderConcurrency(t *testing.T) {
	const n = 200
	store := NewMemoryCounterStore(nil)
	alloc := NewAllocator(store, 3, nil)

	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := alloc.Next(context.Background())
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, n)
	for id := range ids {
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestNextRetriesConflicts(t *testing.T) {
	store := &flakyStore{inner: NewMemoryCounterStore(nil), conflicts: 2}
	alloc := NewAllocator(store, 5, nil)

	id, err := alloc.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0000000001", id)
}

func TestNextSurfacesConflictAfterExhaustedRetries(t *testing.T) {
	store := &flakyStore{inner: NewMemoryCounterStore(nil), conflicts: 100}
	alloc := NewAllocator(store, 3, nil)

	_, err := alloc.Next(context.Background())
	require.Error(t, err)
	assert.True(t, util.IsCode(err, util.CodeConflict))
}

func TestNextHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	alloc := NewAllocator(NewMemoryCounterStore(nil), 3, nil)
	_, err := alloc.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
