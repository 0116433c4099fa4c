package handlers

import (
	"bufio"
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-core/internal/api/dto"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/service"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// ChatHandler exposes the per-ticket message channel over HTTP.
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler constructs the handler.
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Send handles POST /tickets/:id/messages.
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	msg, err := h.chat.Send(c.UserContext(), caller, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.MessageFromDomain(msg))
}

// History handles GET /tickets/:id/messages.
func (h *ChatHandler) History(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	msgs, err := h.chat.History(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.MessagesFromDomain(msgs))
}

// Stream handles GET /tickets/:id/messages/stream: a server-sent-events
// feed delivering the full ordered message list on every append.
func (h *ChatHandler) Stream(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticketID := c.Params("id")
	if _, err := h.chat.History(c.UserContext(), caller, ticketID); err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		streamSnapshots(w, func(push func([]byte)) (cancellable, error) {
			return h.chat.Subscribe(context.Background(), caller, ticketID, func(msgs []domain.Message) {
				payload, err := json.Marshal(dto.MessagesFromDomain(msgs))
				if err != nil {
					return
				}
				push(payload)
			})
		})
	})
	return nil
}
