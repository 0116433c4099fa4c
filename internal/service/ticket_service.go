package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/authz"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/realtime"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/internal/sequence"
	"github.com/spec-kit/helpdesk-core/pkg/util"
)

// TicketService owns the ticket lifecycle state machine.
type TicketService struct {
	tickets   repository.TicketRepository
	equipment repository.EquipmentRepository
	allocator *sequence.Allocator
	dispatch  events.Dispatcher
	broker    realtime.Broker
	logger    *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo    repository.TicketRepository
	EquipmentRepo repository.EquipmentRepository
	Allocator     *sequence.Allocator
	Dispatcher    events.Dispatcher
	Broker        realtime.Broker
	Logger        *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title         string
	Description   string
	EquipmentCode string
	Type          domain.TicketType
}

// TicketListFilter describes listing filters; visibility scoping is
// applied on top of it from the caller's role.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Types      []domain.TicketType
	Limit      int
	Offset     int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:   deps.TicketRepo,
		equipment: deps.EquipmentRepo,
		allocator: deps.Allocator,
		dispatch:  deps.Dispatcher,
		broker:    deps.Broker,
		logger:    logger,
	}
}

// Create validates the request, allocates the next ticket id and
// persists the ticket with status Open and priority Medium. The sector
// is snapshotted from the referenced equipment and never re-synced.
func (s *TicketService) Create(ctx context.Context, caller domain.Caller, input TicketCreateInput) (*domain.Ticket, error) {
	if !authz.Allowed(caller.Role, authz.CanCreateTicket) {
		return nil, util.NewForbidden("caller may not create tickets")
	}

	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	equipmentCode := strings.TrimSpace(input.EquipmentCode)
	switch {
	case title == "":
		return nil, util.NewValidationError("title is required", nil)
	case description == "":
		return nil, util.NewValidationError("description is required", nil)
	case equipmentCode == "":
		return nil, util.NewValidationError("equipment code is required", nil)
	case !domain.ValidType(input.Type):
		return nil, util.NewValidationError("unknown ticket type", map[string]any{"type": input.Type})
	}

	eq, err := s.equipment.GetByCode(ctx, equipmentCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("equipment", map[string]any{"code": equipmentCode})
		}
		return nil, util.MapError(err)
	}

	// Allocation happens before the insert; when it fails no id is
	// consumed and no partial ticket persists.
	id, err := s.allocator.Next(ctx)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		ID:              id,
		Title:           title,
		Description:     description,
		EquipmentCode:   eq.Code,
		Sector:          eq.Sector,
		Type:            input.Type,
		Priority:        domain.TicketPriorityMedium,
		Status:          domain.TicketStatusOpen,
		CreatorUsername: caller.Username,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, util.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorFromCaller(caller),
		Payload: events.TicketCreatedPayload{
			Title:         ticket.Title,
			EquipmentCode: ticket.EquipmentCode,
			Sector:        ticket.Sector,
			Type:          ticket.Type,
			Priority:      ticket.Priority,
		},
	})
	return ticket, nil
}

// SetStatus applies the permissive state machine: any status may follow
// any other. Closing requires a non-empty justification; any transition
// away from Closed clears it.
func (s *TicketService) SetStatus(ctx context.Context, caller domain.Caller, ticketID string, newStatus domain.TicketStatus, justification string) (*domain.Ticket, error) {
	if !authz.Allowed(caller.Role, authz.CanEditStatus) {
		return nil, util.NewForbidden("caller may not edit ticket status")
	}
	if !domain.ValidStatus(newStatus) {
		return nil, util.NewValidationError("unknown status", map[string]any{"status": newStatus})
	}
	if newStatus == domain.TicketStatusClosed && !authz.Allowed(caller.Role, authz.CanClose) {
		return nil, util.NewForbidden("caller may not close tickets")
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	oldStatus := ticket.Status
	justification = strings.TrimSpace(justification)
	var closure *string
	if newStatus == domain.TicketStatusClosed {
		if justification == "" {
			return nil, util.NewValidationError("closure justification is required", nil)
		}
		closure = &justification
	}
	ticket.Status = newStatus
	ticket.ClosureJustification = closure

	// The write names only the status pair; a concurrent priority or
	// type change is never clobbered by this snapshot.
	if err := s.tickets.UpdateStatus(ctx, ticket.ID, newStatus, closure); err != nil {
		return nil, util.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actorFromCaller(caller),
		Payload: events.TicketStatusChangedPayload{
			OldStatus:     oldStatus,
			NewStatus:     newStatus,
			Justification: justification,
		},
	})
	s.notifyTicket(ctx, ticket.ID)
	return ticket, nil
}

// SetPriority changes ticket priority.
func (s *TicketService) SetPriority(ctx context.Context, caller domain.Caller, ticketID string, newPriority domain.TicketPriority) (*domain.Ticket, error) {
	if !authz.Allowed(caller.Role, authz.CanEditStatus) {
		return nil, util.NewForbidden("caller may not edit ticket priority")
	}
	if !domain.ValidPriority(newPriority) {
		return nil, util.NewValidationError("unknown priority", map[string]any{"priority": newPriority})
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	oldPriority := ticket.Priority
	ticket.Priority = newPriority
	if err := s.tickets.UpdatePriority(ctx, ticket.ID, newPriority); err != nil {
		return nil, util.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		Actor:    actorFromCaller(caller),
		Payload: events.TicketPriorityChangedPayload{
			OldPriority: oldPriority,
			NewPriority: newPriority,
		},
	})
	s.notifyTicket(ctx, ticket.ID)
	return ticket, nil
}

// SetType changes the ticket type.
func (s *TicketService) SetType(ctx context.Context, caller domain.Caller, ticketID string, newType domain.TicketType) (*domain.Ticket, error) {
	if !authz.Allowed(caller.Role, authz.CanEditStatus) {
		return nil, util.NewForbidden("caller may not edit ticket type")
	}
	if !domain.ValidType(newType) {
		return nil, util.NewValidationError("unknown ticket type", map[string]any{"type": newType})
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	oldType := ticket.Type
	ticket.Type = newType
	if err := s.tickets.UpdateType(ctx, ticket.ID, newType); err != nil {
		return nil, util.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketTypeChanged,
		TicketID: ticket.ID,
		Actor:    actorFromCaller(caller),
		Payload: events.TicketTypeChangedPayload{
			OldType: oldType,
			NewType: newType,
		},
	})
	s.notifyTicket(ctx, ticket.ID)
	return ticket, nil
}

// Attend registers the caller as an attendant with set semantics:
// repeating the call is a no-op, never an error.
func (s *TicketService) Attend(ctx context.Context, caller domain.Caller, ticketID string) (*domain.Ticket, error) {
	if !authz.Allowed(caller.Role, authz.CanAttend) {
		return nil, util.NewForbidden("caller may not attend tickets")
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.HasAttendant(caller.UserID) {
		return ticket, nil
	}

	if err := s.tickets.AddAttendant(ctx, ticketID, caller.UserID); err != nil {
		return nil, util.MapError(err)
	}
	ticket.Attendants = append(ticket.Attendants, domain.Attendant{
		UserID:   caller.UserID,
		JoinedAt: time.Now(),
	})

	s.publish(ctx, events.Event{
		Type:     events.EventTicketAttended,
		TicketID: ticket.ID,
		Actor:    actorFromCaller(caller),
		Payload: events.TicketAttendedPayload{
			AttendantUserID: caller.UserID,
		},
	})
	s.notifyTicket(ctx, ticket.ID)
	return ticket, nil
}

// Get fetches a ticket, enforcing the visibility rule for ordinary
// users: own tickets, or tickets in the caller's sector.
func (s *TicketService) Get(ctx context.Context, caller domain.Caller, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.CanView(caller, ticket) {
		return nil, util.NewForbidden("ticket not visible to caller")
	}
	return ticket, nil
}

// List returns tickets scoped to the caller's visibility.
func (s *TicketService) List(ctx context.Context, caller domain.Caller, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Types:      filter.Types,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	if !authz.Allowed(caller.Role, authz.CanViewAll) {
		username := caller.Username
		repoFilter.VisibleToUsername = &username
		repoFilter.VisibleToSector = caller.Sector
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, util.MapError(err)
	}
	return tickets, nil
}

// Subscribe registers fn to receive the full ticket snapshot after every
// change, starting with the current state. The returned handle must be
// cancelled by the caller.
func (s *TicketService) Subscribe(ctx context.Context, caller domain.Caller, ticketID string, fn func(*domain.Ticket)) (*realtime.Subscription, error) {
	ticket, err := s.Get(ctx, caller, ticketID)
	if err != nil {
		return nil, err
	}
	fn(ticket)

	return s.broker.Subscribe(ctx, realtime.TicketChannel(ticketID), func(deliverCtx context.Context) {
		current, err := s.tickets.GetByID(deliverCtx, ticketID)
		if err != nil {
			s.logger.Warn("ticket snapshot refresh failed",
				zap.String("ticket_id", ticketID), zap.Error(err))
			return
		}
		fn(current)
	})
}

// CanView reports whether the caller may read the ticket.
func (s *TicketService) CanView(caller domain.Caller, ticket *domain.Ticket) bool {
	if authz.Allowed(caller.Role, authz.CanViewAll) {
		return true
	}
	if ticket.CreatorUsername == caller.Username {
		return true
	}
	if caller.Sector != nil && ticket.Sector != nil && *caller.Sector == *ticket.Sector {
		return true
	}
	return false
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, util.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) notifyTicket(ctx context.Context, ticketID string) {
	if s.broker == nil {
		return
	}
	s.broker.Notify(ctx, realtime.TicketChannel(ticketID))
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatch == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatch.Publish(ctx, event)
}

func actorFromCaller(caller domain.Caller) events.Actor {
	return events.Actor{
		UserID:   caller.UserID,
		Username: caller.Username,
		Role:     caller.Role,
	}
}
