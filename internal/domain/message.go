package domain

import "time"

// Message is one entry in a ticket's chat channel.
//
// Messages are append-only and never reordered. SenderName is a snapshot
// of the author's display name at send time; it is the only mutable field
// and is rewritten in place when the author renames themselves.
type Message struct {
	ID         string
	TicketID   string
	SenderID   string
	SenderName string
	Text       string
	CreatedAt  time.Time
}
