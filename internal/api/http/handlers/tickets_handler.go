package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-core/internal/api/dto"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/service"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// TicketsHandler exposes the ticket lifecycle over HTTP.
type TicketsHandler struct {
	tickets *service.TicketService
}

// NewTicketsHandler constructs the handler.
func NewTicketsHandler(tickets *service.TicketService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets}
}

// Create handles POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	ticket, err := h.tickets.Create(c.UserContext(), caller, service.TicketCreateInput{
		Title:         req.Title,
		Description:   req.Description,
		EquipmentCode: req.EquipmentCode,
		Type:          domain.TicketType(req.Type),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.TicketFromDomain(ticket))
}

// List handles GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	filter := service.TicketListFilter{
		Limit:  c.QueryInt("limit", 20),
		Offset: c.QueryInt("offset", 0),
	}
	if status := c.Query("status"); status != "" {
		filter.Statuses = []domain.TicketStatus{domain.TicketStatus(status)}
	}
	if priority := c.Query("priority"); priority != "" {
		filter.Priorities = []domain.TicketPriority{domain.TicketPriority(priority)}
	}
	if ticketType := c.Query("type"); ticketType != "" {
		filter.Types = []domain.TicketType{domain.TicketType(ticketType)}
	}

	tickets, err := h.tickets.List(c.UserContext(), caller, filter)
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketsFromDomain(tickets))
}

// Get handles GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.tickets.Get(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketFromDomain(ticket))
}

// SetStatus handles PATCH /tickets/:id/status.
func (h *TicketsHandler) SetStatus(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.SetStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	ticket, err := h.tickets.SetStatus(c.UserContext(), caller, c.Params("id"),
		domain.TicketStatus(req.Status), req.Justification)
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketFromDomain(ticket))
}

// SetPriority handles PATCH /tickets/:id/priority.
func (h *TicketsHandler) SetPriority(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.SetPriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	ticket, err := h.tickets.SetPriority(c.UserContext(), caller, c.Params("id"),
		domain.TicketPriority(req.Priority))
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketFromDomain(ticket))
}

// SetType handles PATCH /tickets/:id/type.
func (h *TicketsHandler) SetType(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.SetTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	ticket, err := h.tickets.SetType(c.UserContext(), caller, c.Params("id"),
		domain.TicketType(req.Type))
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketFromDomain(ticket))
}

// Attend handles POST /tickets/:id/attend.
func (h *TicketsHandler) Attend(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.tickets.Attend(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketFromDomain(ticket))
}

// Stream handles GET /tickets/:id/stream: a server-sent-events feed of
// full ticket snapshots, one per committed change.
func (h *TicketsHandler) Stream(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticketID := c.Params("id")
	// Check access before committing to the stream so failures surface
	// as a proper HTTP status.
	if _, err := h.tickets.Get(c.UserContext(), caller, ticketID); err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		streamSnapshots(w, func(push func([]byte)) (cancellable, error) {
			return h.tickets.Subscribe(context.Background(), caller, ticketID, func(t *domain.Ticket) {
				payload, err := json.Marshal(dto.TicketFromDomain(t))
				if err != nil {
					return
				}
				push(payload)
			})
		})
	})
	return nil
}

type cancellable interface {
	Cancel()
}

// enqueueLatest appends to a bounded buffer, evicting the oldest entry
// when full. Deliveries are full snapshots, so a slow client skipping
// intermediate states still converges on the newest one.
func enqueueLatest(updates chan []byte, payload []byte) {
	for {
		select {
		case updates <- payload:
			return
		default:
			select {
			case <-updates:
			default:
			}
		}
	}
}

// streamSnapshots pumps pushed snapshots into an SSE body. A heartbeat
// comment detects dropped clients so the subscription gets released.
func streamSnapshots(w *bufio.Writer, subscribe func(push func([]byte)) (cancellable, error)) {
	updates := make(chan []byte, 8)
	sub, err := subscribe(func(payload []byte) {
		enqueueLatest(updates, payload)
	})
	if err != nil {
		return
	}
	defer sub.Cancel()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case payload := <-updates:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}
