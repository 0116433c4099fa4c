package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// CreateTicketRequest is the ticket creation payload.
type CreateTicketRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	EquipmentCode string `json:"equipment_code"`
	Type          string `json:"type"`
}

// SetStatusRequest changes ticket status.
type SetStatusRequest struct {
	Status        string `json:"status"`
	Justification string `json:"justification,omitempty"`
}

// SetPriorityRequest changes ticket priority.
type SetPriorityRequest struct {
	Priority string `json:"priority"`
}

// SetTypeRequest changes ticket type.
type SetTypeRequest struct {
	Type string `json:"type"`
}

// AttendantResponse is one attendant entry.
type AttendantResponse struct {
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// TicketResponse is the wire shape of a ticket.
type TicketResponse struct {
	ID                   string              `json:"id"`
	Title                string              `json:"title"`
	Description          string              `json:"description"`
	EquipmentCode        string              `json:"equipment_code"`
	Sector               *string             `json:"sector,omitempty"`
	Type                 string              `json:"type"`
	Priority             string              `json:"priority"`
	Status               string              `json:"status"`
	ClosureJustification *string             `json:"closure_justification,omitempty"`
	Attendants           []AttendantResponse `json:"attendants"`
	CreatorUsername      string              `json:"creator_username"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// TicketFromDomain maps a domain ticket to its response shape.
func TicketFromDomain(t *domain.Ticket) TicketResponse {
	attendants := make([]AttendantResponse, 0, len(t.Attendants))
	for _, a := range t.Attendants {
		attendants = append(attendants, AttendantResponse{UserID: a.UserID, JoinedAt: a.JoinedAt})
	}
	return TicketResponse{
		ID:                   t.ID,
		Title:                t.Title,
		Description:          t.Description,
		EquipmentCode:        t.EquipmentCode,
		Sector:               t.Sector,
		Type:                 string(t.Type),
		Priority:             string(t.Priority),
		Status:               string(t.Status),
		ClosureJustification: t.ClosureJustification,
		Attendants:           attendants,
		CreatorUsername:      t.CreatorUsername,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

// TicketsFromDomain maps a ticket slice.
func TicketsFromDomain(tickets []domain.Ticket) []TicketResponse {
	result := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		result = append(result, TicketFromDomain(&tickets[i]))
	}
	return result
}
