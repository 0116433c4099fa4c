package realtime

import (
	"context"
	"sync"
)

// MemoryBroker delivers change markers synchronously within a single
// process. Used when Redis is not configured and by tests.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[int]*memorySub
	next int
}

type memorySub struct {
	deliver Deliver
	ctx     context.Context
}

// NewMemoryBroker builds the broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[int]*memorySub)}
}

// Notify synchronously invokes every live subscriber on the channel.
func (b *MemoryBroker) Notify(ctx context.Context, channel string) {
	b.mu.RLock()
	targets := make([]*memorySub, 0, len(b.subs[channel]))
	for _, sub := range b.subs[channel] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if sub.ctx.Err() != nil {
			continue
		}
		sub.deliver(sub.ctx)
	}
}

// Subscribe registers deliver until the subscription is cancelled.
func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, deliver Deliver) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	id := b.next
	b.next++
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]*memorySub)
	}
	b.subs[channel][id] = &memorySub{deliver: deliver, ctx: subCtx}
	b.mu.Unlock()

	return NewSubscription(func() {
		cancel()
		b.mu.Lock()
		delete(b.subs[channel], id)
		b.mu.Unlock()
	}), nil
}
