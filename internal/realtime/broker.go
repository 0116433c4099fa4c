// Package realtime provides the push subscription primitive: register a
// callback on a logical channel and get invoked after every committed
// change until the subscription is cancelled. Deliveries carry no data;
// subscribers re-read the full snapshot from the store, so listeners
// always observe complete state rather than diffs.
package realtime

import (
	"context"
	"sync"
)

// Deliver is invoked once per observed change notification.
type Deliver func(ctx context.Context)

// Broker propagates change markers between writers and subscribers.
type Broker interface {
	// Notify signals that the state behind the channel changed. Failures
	// are logged, never surfaced to the mutating caller.
	Notify(ctx context.Context, channel string)
	// Subscribe registers deliver on the channel until Cancel is called.
	Subscribe(ctx context.Context, channel string, deliver Deliver) (*Subscription, error)
}

// Subscription is a cancellable registration handle.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// NewSubscription wraps a teardown closure.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Cancel tears the subscription down; safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

// TicketChannel names the per-ticket state channel.
func TicketChannel(ticketID string) string {
	return "ticket:" + ticketID
}

// ChatChannel names the per-ticket message log channel.
func ChatChannel(ticketID string) string {
	return "chat:" + ticketID
}
