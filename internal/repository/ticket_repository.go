package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// TicketFilter captures listing parameters. VisibleToUsername and
// VisibleToSector combine into a single OR clause implementing the
// ordinary-user visibility rule (own tickets, or same sector).
type TicketFilter struct {
	CreatorUsername   *string
	Statuses          []domain.TicketStatus
	Priorities        []domain.TicketPriority
	Types             []domain.TicketType
	VisibleToUsername *string
	VisibleToSector   *string
	Limit             int
	Offset            int
}

// TicketRepository encapsulates ticket persistence.
//
// Mutations are per-field on purpose: concurrent writers touching
// different fields of the same ticket must not overwrite each other, so
// each update statement names only the columns it owns.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, justification *string) error
	UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority) error
	UpdateType(ctx context.Context, id string, ticketType domain.TicketType) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	AddAttendant(ctx context.Context, ticketID, userID string) error
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, title, description, equipment_code, sector, type, priority, status, creator_username)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Description,
		ticket.EquipmentCode,
		ticket.Sector,
		ticket.Type,
		ticket.Priority,
		ticket.Status,
		ticket.CreatorUsername,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
}

// UpdateStatus writes the status and its justification in one statement
// so the pair can never diverge, and leaves every other column alone.
func (r *ticketRepository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, justification *string) error {
	const query = `
        UPDATE tickets SET status=$1, closure_justification=$2, updated_at=NOW()
        WHERE id=$3`
	return r.execOne(ctx, query, status, justification, id)
}

func (r *ticketRepository) UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority) error {
	return r.execOne(ctx, `UPDATE tickets SET priority=$1, updated_at=NOW() WHERE id=$2`, priority, id)
}

func (r *ticketRepository) UpdateType(ctx context.Context, id string, ticketType domain.TicketType) error {
	return r.execOne(ctx, `UPDATE tickets SET type=$1, updated_at=NOW() WHERE id=$2`, ticketType, id)
}

func (r *ticketRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, title, description, equipment_code, sector, type, priority, status,
               closure_justification, creator_username, created_at, updated_at
        FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.EquipmentCode,
		&ticket.Sector,
		&ticket.Type,
		&ticket.Priority,
		&ticket.Status,
		&ticket.ClosureJustification,
		&ticket.CreatorUsername,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	attendants, err := r.listAttendants(ctx, id)
	if err != nil {
		return nil, err
	}
	ticket.Attendants = attendants
	return &ticket, nil
}

// AddAttendant registers the user with set semantics: repeating the call
// for the same pair is a no-op, never an error.
func (r *ticketRepository) AddAttendant(ctx context.Context, ticketID, userID string) error {
	const query = `
        INSERT INTO ticket_attendants (ticket_id, user_id)
        VALUES ($1,$2)
        ON CONFLICT (ticket_id, user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, ticketID, userID)
	return err
}

func (r *ticketRepository) listAttendants(ctx context.Context, ticketID string) ([]domain.Attendant, error) {
	const query = `
        SELECT user_id, joined_at FROM ticket_attendants
        WHERE ticket_id=$1 ORDER BY joined_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Attendant
	for rows.Next() {
		var a domain.Attendant
		if err := rows.Scan(&a.UserID, &a.JoinedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT id, title, description, equipment_code, sector, type, priority, status,
                    closure_justification, creator_username, created_at, updated_at
             FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatorUsername != nil {
		args = append(args, *filter.CreatorUsername)
		clauses = append(clauses, fmt.Sprintf("creator_username=$%d", len(args)))
	}
	if filter.VisibleToUsername != nil {
		args = append(args, *filter.VisibleToUsername)
		creatorPlaceholder := fmt.Sprintf("$%d", len(args))
		if filter.VisibleToSector != nil {
			args = append(args, *filter.VisibleToSector)
			clauses = append(clauses, fmt.Sprintf("(creator_username=%s OR sector=$%d)", creatorPlaceholder, len(args)))
		} else {
			clauses = append(clauses, fmt.Sprintf("creator_username=%s", creatorPlaceholder))
		}
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, tt := range filter.Types {
			args = append(args, tt)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY id DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Title,
			&ticket.Description,
			&ticket.EquipmentCode,
			&ticket.Sector,
			&ticket.Type,
			&ticket.Priority,
			&ticket.Status,
			&ticket.ClosureJustification,
			&ticket.CreatorUsername,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
