package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/authz"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/realtime"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/pkg/util"
)

// ChatService drives the per-ticket message channel.
type ChatService struct {
	tickets  *TicketService
	messages repository.MessageRepository
	dispatch events.Dispatcher
	broker   realtime.Broker
	logger   *zap.Logger
}

// NewChatService constructs the service.
func NewChatService(tickets *TicketService, messages repository.MessageRepository, dispatch events.Dispatcher, broker realtime.Broker, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		tickets:  tickets,
		messages: messages,
		dispatch: dispatch,
		broker:   broker,
		logger:   logger,
	}
}

// Send appends a message to the ticket's channel. The ticket status is
// re-read here, at commit time, so a send racing a closure is rejected
// rather than delivered into a closed channel. Staff must have attended
// the ticket first; ordinary requesters only need visibility.
func (s *ChatService) Send(ctx context.Context, caller domain.Caller, ticketID, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, util.NewValidationError("message text is required", nil)
	}

	ticket, err := s.tickets.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, util.NewPreconditionFailed("ticket is closed", map[string]any{"ticket_id": ticketID})
	}
	if authz.IsStaff(caller.Role) {
		if !ticket.HasAttendant(caller.UserID) {
			return nil, util.NewPreconditionFailed("attend the ticket before sending messages",
				map[string]any{"ticket_id": ticketID})
		}
	} else if !s.tickets.CanView(caller, ticket) {
		return nil, util.NewForbidden("ticket not visible to caller")
	}

	msg := &domain.Message{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		SenderID:   caller.UserID,
		SenderName: caller.DisplayName,
		Text:       text,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, util.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		Actor:    actorFromCaller(caller),
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			SenderID:    msg.SenderID,
			BodyPreview: preview(msg.Text, 120),
		},
	})
	if s.broker != nil {
		s.broker.Notify(ctx, realtime.ChatChannel(ticket.ID))
	}
	return msg, nil
}

// History returns the full ordered message list for a visible ticket.
func (s *ChatService) History(ctx context.Context, caller domain.Caller, ticketID string) ([]domain.Message, error) {
	ticket, err := s.tickets.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.tickets.CanView(caller, ticket) {
		return nil, util.NewForbidden("ticket not visible to caller")
	}
	msgs, err := s.messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, util.MapError(err)
	}
	return msgs, nil
}

// Subscribe registers fn to receive the full ordered message list on
// every append, starting with the current history.
func (s *ChatService) Subscribe(ctx context.Context, caller domain.Caller, ticketID string, fn func([]domain.Message)) (*realtime.Subscription, error) {
	msgs, err := s.History(ctx, caller, ticketID)
	if err != nil {
		return nil, err
	}
	fn(msgs)

	return s.broker.Subscribe(ctx, realtime.ChatChannel(ticketID), func(deliverCtx context.Context) {
		current, err := s.messages.ListByTicket(deliverCtx, ticketID)
		if err != nil {
			s.logger.Warn("chat history refresh failed",
				zap.String("ticket_id", ticketID), zap.Error(err))
			return
		}
		fn(current)
	})
}

// RepairSenderName rewrites the display-name snapshot on every message
// the user ever sent, in every channel. Best-effort: not transactional
// with the directory update that triggers it.
func (s *ChatService) RepairSenderName(ctx context.Context, userID, newName string) error {
	repaired, err := s.messages.RepairSenderName(ctx, userID, newName)
	if err != nil {
		return util.MapError(err)
	}
	s.logger.Info("sender name repaired",
		zap.String("user_id", userID),
		zap.Int64("messages", repaired))
	return nil
}

func (s *ChatService) publish(ctx context.Context, event events.Event) {
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

// preview truncates body for event payloads, backing up to a rune
// boundary so multi-byte characters are never split.
func preview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	cut := max - 3
	suffix := "..."
	if max <= 3 {
		cut = max
		suffix = ""
	}
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + suffix
}
