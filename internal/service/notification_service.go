package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/observability"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/pkg/util"
)

// NotificationService turns lifecycle events into per-recipient
// notification rows.
//
// Fan-out is best-effort and at-most-once per recipient: each row is an
// independent write, a failed write is logged and does not roll back or
// block sibling writes, and the originating ticket mutation is treated
// as already committed.
type NotificationService struct {
	notifications repository.NotificationRepository
	directory     repository.DirectoryRepository
	dispatch      events.Dispatcher
	logger        *zap.Logger
	metrics       *observability.Metrics
}

// NewNotificationService creates the service.
func NewNotificationService(notifications repository.NotificationRepository, directory repository.DirectoryRepository, dispatch events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		notifications: notifications,
		directory:     directory,
		dispatch:      dispatch,
		logger:        logger,
		metrics:       metrics,
	}
}

// RegisterHandlers subscribes to the dispatcher.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatch == nil {
		return
	}
	n.dispatch.Subscribe(events.EventTicketCreated, n.handleTicketEvent)
	n.dispatch.Subscribe(events.EventTicketStatusChanged, n.handleTicketEvent)
	n.dispatch.Subscribe(events.EventTicketPriorityChanged, n.handleTicketEvent)
	n.dispatch.Subscribe(events.EventTicketTypeChanged, n.handleTicketEvent)
	n.dispatch.Subscribe(events.EventTicketAttended, n.handleTicketEvent)
	n.dispatch.Subscribe(events.EventTicketMessageAdded, n.handleMessageAdded)
	n.dispatch.Subscribe(events.EventAccountRegistered, n.handleAccountRegistered)
}

// Emit resolves every staff recipient and writes one notification row
// per resolved account.
func (n *NotificationService) Emit(ctx context.Context, text string, relatedTicketID *string) {
	n.fanout(ctx, []domain.Role{domain.RoleTechnician, domain.RoleAdmin}, text, relatedTicketID)
}

// EmitToAdmins restricts fan-out to administrators; used for account
// registration events.
func (n *NotificationService) EmitToAdmins(ctx context.Context, text string) {
	n.fanout(ctx, []domain.Role{domain.RoleAdmin}, text, nil)
}

// ListForRecipient returns the caller's own notifications.
func (n *NotificationService) ListForRecipient(ctx context.Context, caller domain.Caller, limit, offset int) ([]domain.Notification, error) {
	result, err := n.notifications.ListByRecipient(ctx, caller.UserID, limit, offset)
	if err != nil {
		return nil, util.MapError(err)
	}
	return result, nil
}

// MarkRead flips the read flag on the caller's own notification.
func (n *NotificationService) MarkRead(ctx context.Context, caller domain.Caller, notificationID string) error {
	if err := n.ensureOwner(ctx, caller, notificationID); err != nil {
		return err
	}
	if err := n.notifications.MarkRead(ctx, notificationID); err != nil {
		return util.MapError(err)
	}
	return nil
}

// Delete removes the caller's own notification.
func (n *NotificationService) Delete(ctx context.Context, caller domain.Caller, notificationID string) error {
	if err := n.ensureOwner(ctx, caller, notificationID); err != nil {
		return err
	}
	if err := n.notifications.Delete(ctx, notificationID); err != nil {
		return util.MapError(err)
	}
	return nil
}

func (n *NotificationService) ensureOwner(ctx context.Context, caller domain.Caller, notificationID string) error {
	existing, err := n.notifications.GetByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("notification", map[string]any{"id": notificationID})
		}
		return util.MapError(err)
	}
	if existing.RecipientUserID != caller.UserID {
		return util.NewForbidden("notification belongs to another recipient")
	}
	return nil
}

func (n *NotificationService) fanout(ctx context.Context, roles []domain.Role, text string, relatedTicketID *string) {
	recipients, err := n.directory.ListByRoles(ctx, roles)
	if err != nil {
		n.logger.Error("fanout recipient resolution failed", zap.Error(err))
		return
	}
	delivered := 0
	for _, recipient := range recipients {
		record := &domain.Notification{
			ID:              uuid.NewString(),
			RecipientUserID: recipient.UID,
			Message:         text,
			RelatedTicketID: relatedTicketID,
		}
		if err := n.notifications.Create(ctx, record); err != nil {
			n.metrics.RecordFanoutFailure()
			n.logger.Error("fanout write failed",
				zap.String("recipient", recipient.UID),
				zap.Error(err))
			continue
		}
		delivered++
	}
	n.logger.Info("fanout complete",
		zap.String("text", text),
		zap.Int("recipients", len(recipients)),
		zap.Int("delivered", delivered))
}

func (n *NotificationService) handleTicketEvent(ctx context.Context, event events.Event) error {
	ticketID := event.TicketID
	n.Emit(ctx, eventText(event), &ticketID)
	return nil
}

// Chat traffic is observed but does not fan out; the channel itself is
// the delivery mechanism for its participants.
func (n *NotificationService) handleMessageAdded(ctx context.Context, event events.Event) error {
	n.logger.Debug("ticket message added",
		zap.String("ticket_id", event.TicketID),
		zap.String("actor", event.Actor.Username))
	return nil
}

func (n *NotificationService) handleAccountRegistered(ctx context.Context, event events.Event) error {
	n.EmitToAdmins(ctx, eventText(event))
	return nil
}

func eventText(event events.Event) string {
	switch payload := event.Payload.(type) {
	case events.TicketCreatedPayload:
		return fmt.Sprintf("Ticket %s created by %s: %s", event.TicketID, event.Actor.Username, payload.Title)
	case events.TicketStatusChangedPayload:
		return fmt.Sprintf("Ticket %s moved from %s to %s", event.TicketID, payload.OldStatus, payload.NewStatus)
	case events.TicketPriorityChangedPayload:
		return fmt.Sprintf("Ticket %s priority changed from %s to %s", event.TicketID, payload.OldPriority, payload.NewPriority)
	case events.TicketTypeChangedPayload:
		return fmt.Sprintf("Ticket %s reclassified from %s to %s", event.TicketID, payload.OldType, payload.NewType)
	case events.TicketAttendedPayload:
		return fmt.Sprintf("Ticket %s is being attended by %s", event.TicketID, event.Actor.Username)
	case events.AccountRegisteredPayload:
		return fmt.Sprintf("New account registered: %s (%s)", payload.Username, payload.Role)
	}
	return fmt.Sprintf("Ticket %s updated", event.TicketID)
}
