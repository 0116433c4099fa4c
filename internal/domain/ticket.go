package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
)

// TicketType differentiates service requests from incidents.
type TicketType string

const (
	TicketTypeRequest  TicketType = "REQUEST"
	TicketTypeIncident TicketType = "INCIDENT"
)

// ValidStatus reports whether the value is a known status.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// ValidPriority reports whether the value is a known priority.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// ValidType reports whether the value is a known ticket type.
func ValidType(t TicketType) bool {
	switch t {
	case TicketTypeRequest, TicketTypeIncident:
		return true
	}
	return false
}

// Attendant records a staff member working a ticket.
type Attendant struct {
	UserID   string
	JoinedAt time.Time
}

// Ticket is the aggregate for equipment service requests.
//
// The id is a 10-digit zero-padded decimal issued by the sequence
// allocator and is immutable once assigned. Sector is snapshotted from
// the referenced equipment at creation time and never re-synced.
type Ticket struct {
	ID                   string
	Title                string
	Description          string
	EquipmentCode        string
	Sector               *string
	Type                 TicketType
	Priority             TicketPriority
	Status               TicketStatus
	ClosureJustification *string
	Attendants           []Attendant
	CreatorUsername      string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasAttendant reports whether the user is already registered on the ticket.
func (t *Ticket) HasAttendant(userID string) bool {
	for _, a := range t.Attendants {
		if a.UserID == userID {
			return true
		}
	}
	return false
}
