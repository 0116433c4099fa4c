package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// RegisterRequest creates a directory account.
type RegisterRequest struct {
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	Sector      *string `json:"sector,omitempty"`
}

// LoginRequest authenticates a directory account.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateDisplayNameRequest renames the caller.
type UpdateDisplayNameRequest struct {
	DisplayName string `json:"display_name"`
}

// AccountResponse is the wire shape of a directory entry.
type AccountResponse struct {
	UID         string  `json:"uid"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email"`
	Role        string  `json:"role"`
	Sector      *string `json:"sector,omitempty"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token   string          `json:"token"`
	Account AccountResponse `json:"account"`
}

// NotificationResponse is the wire shape of a notification.
type NotificationResponse struct {
	ID              string    `json:"id"`
	Message         string    `json:"message"`
	RelatedTicketID *string   `json:"related_ticket_id,omitempty"`
	Read            bool      `json:"read"`
	CreatedAt       time.Time `json:"created_at"`
}

// AccountFromDomain maps a directory account.
func AccountFromDomain(acc *domain.Account) AccountResponse {
	return AccountResponse{
		UID:         acc.UID,
		Username:    acc.Username,
		DisplayName: acc.DisplayName,
		Email:       acc.Email,
		Role:        string(acc.Role),
		Sector:      acc.Sector,
	}
}

// NotificationsFromDomain maps a notification slice.
func NotificationsFromDomain(notifications []domain.Notification) []NotificationResponse {
	result := make([]NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		result = append(result, NotificationResponse{
			ID:              n.ID,
			Message:         n.Message,
			RelatedTicketID: n.RelatedTicketID,
			Read:            n.Read,
			CreatedAt:       n.CreatedAt,
		})
	}
	return result
}
