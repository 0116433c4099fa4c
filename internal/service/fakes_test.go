package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/observability"
	"github.com/spec-kit/helpdesk-core/internal/realtime"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/internal/sequence"
)

// errDuplicateUsername mimics the unique-violation the directory table
// raises on a taken username.
var errDuplicateUsername = &pgconn.PgError{Code: "23505", ConstraintName: "directory_username_key"}

// In-memory fakes for the repository interfaces. They mirror the store's
// per-document consistency: single operations are atomic, nothing spans
// documents.

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	// afterGet, when set, runs after a GetByID returns its snapshot;
	// used to interleave a competing writer between a service's read
	// and its write.
	afterGet func()
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, justification *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	existing.Status = status
	existing.ClosureJustification = justification
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *fakeTicketRepo) UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	existing.Priority = priority
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *fakeTicketRepo) UpdateType(ctx context.Context, id string, ticketType domain.TicketType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	existing.Type = ticketType
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	existing, ok := r.tickets[id]
	var clone domain.Ticket
	if ok {
		clone = *existing
		clone.Attendants = append([]domain.Attendant(nil), existing.Attendants...)
	}
	hook := r.afterGet
	r.mu.Unlock()

	if !ok {
		return nil, pgx.ErrNoRows
	}
	if hook != nil {
		hook()
	}
	return &clone, nil
}

func (r *fakeTicketRepo) AddAttendant(ctx context.Context, ticketID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	for _, a := range existing.Attendants {
		if a.UserID == userID {
			return nil
		}
	}
	existing.Attendants = append(existing.Attendants, domain.Attendant{
		UserID:   userID,
		JoinedAt: time.Now(),
	})
	return nil
}

func (r *fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, t := range r.tickets {
		if filter.CreatorUsername != nil && t.CreatorUsername != *filter.CreatorUsername {
			continue
		}
		if filter.VisibleToUsername != nil {
			visible := t.CreatorUsername == *filter.VisibleToUsername
			if !visible && filter.VisibleToSector != nil && t.Sector != nil {
				visible = *t.Sector == *filter.VisibleToSector
			}
			if !visible {
				continue
			}
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, t.Priority) {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, t.Type) {
			continue
		}
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func containsStatus(list []domain.TicketStatus, v domain.TicketStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, v domain.TicketPriority) bool {
	for _, p := range list {
		if p == v {
			return true
		}
	}
	return false
}

func containsType(list []domain.TicketType, v domain.TicketType) bool {
	for _, t := range list {
		if t == v {
			return true
		}
	}
	return false
}

type fakeEquipmentRepo struct {
	equipment map[string]*domain.Equipment
}

func newFakeEquipmentRepo(items ...*domain.Equipment) *fakeEquipmentRepo {
	repo := &fakeEquipmentRepo{equipment: make(map[string]*domain.Equipment)}
	for _, item := range items {
		repo.equipment[item.Code] = item
	}
	return repo
}

func (r *fakeEquipmentRepo) GetByCode(ctx context.Context, code string) (*domain.Equipment, error) {
	eq, ok := r.equipment[code]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *eq
	return &clone, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []domain.Message
	clock    time.Time
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{clock: time.Now()}
}

func (r *fakeMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Strictly monotonic per repo, matching the server-assigned
	// timestamp contract.
	r.clock = r.clock.Add(time.Millisecond)
	msg.CreatedAt = r.clock
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Message
	for _, m := range r.messages {
		if m.TicketID == ticketID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *fakeMessageRepo) RepairSenderName(ctx context.Context, senderID, newName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var repaired int64
	for i := range r.messages {
		if r.messages[i].SenderID == senderID && r.messages[i].SenderName != newName {
			r.messages[i].SenderName = newName
			repaired++
		}
	}
	return repaired, nil
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications map[string]*domain.Notification
	order         []string
	failFor       map[string]error
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{
		notifications: make(map[string]*domain.Notification),
		failFor:       make(map[string]error),
	}
}

func (r *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failFor[n.RecipientUserID]; ok {
		return err
	}
	n.CreatedAt = time.Now()
	clone := *n
	r.notifications[n.ID] = &clone
	r.order = append(r.order, n.ID)
	return nil
}

func (r *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *n
	return &clone, nil
}

func (r *fakeNotificationRepo) ListByRecipient(ctx context.Context, recipientUserID string, limit, offset int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Notification
	for _, id := range r.order {
		n := r.notifications[id]
		if n != nil && n.RecipientUserID == recipientUserID {
			result = append(result, *n)
		}
	}
	return result, nil
}

func (r *fakeNotificationRepo) MarkRead(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return pgx.ErrNoRows
	}
	n.Read = true
	return nil
}

func (r *fakeNotificationRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notifications[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.notifications, id)
	return nil
}

func (r *fakeNotificationRepo) all() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Notification
	for _, id := range r.order {
		if n, ok := r.notifications[id]; ok {
			result = append(result, *n)
		}
	}
	return result
}

type fakeDirectoryRepo struct {
	mu    sync.Mutex
	byUID map[string]*domain.Account
}

func newFakeDirectoryRepo(accounts ...*domain.Account) *fakeDirectoryRepo {
	repo := &fakeDirectoryRepo{byUID: make(map[string]*domain.Account)}
	for _, acc := range accounts {
		repo.byUID[acc.UID] = acc
	}
	return repo
}

func (r *fakeDirectoryRepo) Create(ctx context.Context, acc *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byUID {
		if existing.Username == acc.Username {
			return errDuplicateUsername
		}
	}
	now := time.Now()
	acc.CreatedAt = now
	acc.UpdatedAt = now
	clone := *acc
	r.byUID[acc.UID] = &clone
	return nil
}

func (r *fakeDirectoryRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.byUID {
		if acc.Username == username {
			clone := *acc
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeDirectoryRepo) GetByUID(ctx context.Context, uid string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.byUID[uid]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *acc
	return &clone, nil
}

func (r *fakeDirectoryRepo) ListByRoles(ctx context.Context, roles []domain.Role) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Account
	for _, acc := range r.byUID {
		for _, role := range roles {
			if acc.Role == role {
				result = append(result, *acc)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func (r *fakeDirectoryRepo) UpdateDisplayName(ctx context.Context, uid, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.byUID[uid]
	if !ok {
		return pgx.ErrNoRows
	}
	acc.DisplayName = displayName
	acc.UpdatedAt = time.Now()
	return nil
}

// testEnv wires the services together the way main does, with every
// external collaborator replaced by an in-memory fake.
type testEnv struct {
	tickets       *fakeTicketRepo
	equipment     *fakeEquipmentRepo
	messages      *fakeMessageRepo
	notifications *fakeNotificationRepo
	directory     *fakeDirectoryRepo
	dispatcher    events.Dispatcher
	broker        *realtime.MemoryBroker
	ticketSvc     *TicketService
	chatSvc       *ChatService
	notifySvc     *NotificationService
}

func newTestEnv(equipment []*domain.Equipment, accounts ...*domain.Account) *testEnv {
	env := &testEnv{
		tickets:       newFakeTicketRepo(),
		equipment:     newFakeEquipmentRepo(equipment...),
		messages:      newFakeMessageRepo(),
		notifications: newFakeNotificationRepo(),
		directory:     newFakeDirectoryRepo(accounts...),
		dispatcher:    events.NewInMemoryDispatcher(),
		broker:        realtime.NewMemoryBroker(),
	}
	env.ticketSvc = NewTicketService(TicketDependencies{
		TicketRepo:    env.tickets,
		EquipmentRepo: env.equipment,
		Allocator:     sequence.NewAllocator(sequence.NewMemoryCounterStore(nil), 3, zap.NewNop()),
		Dispatcher:    env.dispatcher,
		Broker:        env.broker,
	})
	env.chatSvc = NewChatService(env.ticketSvc, env.messages, env.dispatcher, env.broker, nil)
	env.notifySvc = NewNotificationService(env.notifications, env.directory, env.dispatcher, nil, observability.NewMetrics())
	env.notifySvc.RegisterHandlers()
	return env
}

func strPtr(s string) *string { return &s }

func userCaller(id, username string, sector *string) domain.Caller {
	return domain.Caller{UserID: id, Username: username, DisplayName: username, Role: domain.RoleUser, Sector: sector}
}

func techCaller(id, username string) domain.Caller {
	return domain.Caller{UserID: id, Username: username, DisplayName: username, Role: domain.RoleTechnician}
}

func adminCaller(id, username string) domain.Caller {
	return domain.Caller{UserID: id, Username: username, DisplayName: username, Role: domain.RoleAdmin}
}
