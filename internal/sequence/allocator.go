// Package sequence issues the globally unique, monotonically increasing
// ticket identifiers. The counter is the only piece of shared state in
// the system that needs true mutual exclusion across processes.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/pkg/util"
)

// ErrConflict signals the counter read-modify-write lost a race and may
// be retried.
var ErrConflict = errors.New("sequence: counter update conflict")

// CounterStore atomically advances the shared ticket counter.
//
// Increment must behave as a single atomic unit: read the current count
// (bootstrapping from the highest existing ticket id when no counter
// record exists), add one, persist, and return the new count. A lost
// race is reported as ErrConflict.
type CounterStore interface {
	Increment(ctx context.Context) (uint64, error)
}

// Allocator wraps a CounterStore with bounded retries and id formatting.
type Allocator struct {
	store      CounterStore
	maxRetries int
	logger     *zap.Logger
}

// NewAllocator builds an allocator. maxRetries bounds how many conflict
// retries a single Next call may consume.
func NewAllocator(store CounterStore, maxRetries int, logger *zap.Logger) *Allocator {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{store: store, maxRetries: maxRetries, logger: logger}
}

// Next returns the next ticket id as a 10-digit zero-padded decimal.
// It never returns the same value twice; when retries are exhausted the
// allocation fails and no id is consumed.
func (a *Allocator) Next(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		value, err := a.store.Increment(ctx)
		if err == nil {
			return FormatID(value), nil
		}
		if !errors.Is(err, ErrConflict) {
			return "", err
		}
		lastErr = err
		a.logger.Debug("ticket id allocation conflict, retrying",
			zap.Int("attempt", attempt+1))
	}
	return "", util.NewConflict("ticket id allocation failed after retries",
		map[string]any{"attempts": a.maxRetries, "cause": lastErr.Error()})
}

// FormatID renders a counter value as the canonical 10-digit ticket id.
func FormatID(value uint64) string {
	return fmt.Sprintf("%010d", value)
}
