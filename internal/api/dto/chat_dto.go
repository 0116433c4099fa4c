package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// SendMessageRequest appends a chat message.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse is the wire shape of a chat message.
type MessageResponse struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// MessageFromDomain maps a domain message.
func MessageFromDomain(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		TicketID:   m.TicketID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
}

// MessagesFromDomain maps a message slice.
func MessagesFromDomain(msgs []domain.Message) []MessageResponse {
	result := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		result = append(result, MessageFromDomain(&msgs[i]))
	}
	return result
}
