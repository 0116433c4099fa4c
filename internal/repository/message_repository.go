package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// MessageRepository manages per-ticket chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error)
	// RepairSenderName rewrites the stored display-name snapshot on every
	// message authored by the user, across all channels. Returns the
	// number of rows touched.
	RepairSenderName(ctx context.Context, senderID, newName string) (int64, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (id, ticket_id, sender_id, sender_name, body)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.SenderID,
		msg.SenderName,
		msg.Text,
	).Scan(&msg.CreatedAt)
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	const query = `
        SELECT id, ticket_id, sender_id, sender_name, body, created_at
        FROM messages WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.Text,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *messageRepository) RepairSenderName(ctx context.Context, senderID, newName string) (int64, error) {
	const query = `UPDATE messages SET sender_name=$1 WHERE sender_id=$2 AND sender_name<>$1`
	cmd, err := r.pool.Exec(ctx, query, newName, senderID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
