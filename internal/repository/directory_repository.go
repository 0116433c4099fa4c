package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// DirectoryRepository resolves and maintains directory accounts.
type DirectoryRepository interface {
	Create(ctx context.Context, acc *domain.Account) error
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetByUID(ctx context.Context, uid string) (*domain.Account, error)
	ListByRoles(ctx context.Context, roles []domain.Role) ([]domain.Account, error)
	UpdateDisplayName(ctx context.Context, uid, displayName string) error
}

type directoryRepository struct {
	pool *pgxpool.Pool
}

// NewDirectoryRepository builds repository.
func NewDirectoryRepository(pool *pgxpool.Pool) DirectoryRepository {
	return &directoryRepository{pool: pool}
}

const accountColumns = `uid, username, display_name, email, password_hash, role, sector, created_at, updated_at`

func (r *directoryRepository) Create(ctx context.Context, acc *domain.Account) error {
	const query = `
        INSERT INTO directory (uid, username, display_name, email, password_hash, role, sector)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		acc.UID,
		acc.Username,
		acc.DisplayName,
		acc.Email,
		acc.PasswordHash,
		acc.Role,
		acc.Sector,
	).Scan(&acc.CreatedAt, &acc.UpdatedAt)
}

func (r *directoryRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM directory WHERE username=$1`, accountColumns)
	return r.fetchSingle(ctx, query, username)
}

func (r *directoryRepository) GetByUID(ctx context.Context, uid string) (*domain.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM directory WHERE uid=$1`, accountColumns)
	return r.fetchSingle(ctx, query, uid)
}

func (r *directoryRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var acc domain.Account
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&acc.UID,
		&acc.Username,
		&acc.DisplayName,
		&acc.Email,
		&acc.PasswordHash,
		&acc.Role,
		&acc.Sector,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *directoryRepository) ListByRoles(ctx context.Context, roles []domain.Role) ([]domain.Account, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(roles))
	args := make([]any, len(roles))
	for i, role := range roles {
		args[i] = role
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`SELECT %s FROM directory WHERE role IN (%s) ORDER BY username ASC`,
		accountColumns, strings.Join(placeholders, ","))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Account
	for rows.Next() {
		var acc domain.Account
		if err := rows.Scan(
			&acc.UID,
			&acc.Username,
			&acc.DisplayName,
			&acc.Email,
			&acc.PasswordHash,
			&acc.Role,
			&acc.Sector,
			&acc.CreatedAt,
			&acc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, acc)
	}
	return result, rows.Err()
}

func (r *directoryRepository) UpdateDisplayName(ctx context.Context, uid, displayName string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE directory SET display_name=$1, updated_at=NOW() WHERE uid=$2`,
		displayName, uid)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
