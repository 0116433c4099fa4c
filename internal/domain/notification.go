package domain

import "time"

// Notification is a single recipient's copy of a fan-out event.
//
// Rows are written one per recipient, independently; only the recipient
// may flip the read flag or delete the row.
type Notification struct {
	ID              string
	RecipientUserID string
	Message         string
	RelatedTicketID *string
	Read            bool
	CreatedAt       time.Time
}
