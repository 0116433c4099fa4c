package events

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketTypeChanged     EventType = "ticket_type_changed"
	EventTicketAttended        EventType = "ticket_attended"
	EventTicketMessageAdded    EventType = "ticket_message_added"
	EventAccountRegistered     EventType = "account_registered"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title         string                `json:"title"`
	EquipmentCode string                `json:"equipment_code"`
	Sector        *string               `json:"sector,omitempty"`
	Type          domain.TicketType     `json:"type"`
	Priority      domain.TicketPriority `json:"priority"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus     domain.TicketStatus `json:"old_status"`
	NewStatus     domain.TicketStatus `json:"new_status"`
	Justification string              `json:"justification,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketTypeChangedPayload payload.
type TicketTypeChangedPayload struct {
	OldType domain.TicketType `json:"old_type"`
	NewType domain.TicketType `json:"new_type"`
}

// TicketAttendedPayload payload.
type TicketAttendedPayload struct {
	AttendantUserID string `json:"attendant_user_id"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   string `json:"message_id"`
	SenderID    string `json:"sender_id"`
	BodyPreview string `json:"body_preview"`
}

// AccountRegisteredPayload payload.
type AccountRegisteredPayload struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}
