package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// EquipmentRepository reads the equipment catalog. The ticket core never
// writes it; catalog maintenance is a separate concern.
type EquipmentRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Equipment, error)
}

type equipmentRepository struct {
	pool *pgxpool.Pool
}

// NewEquipmentRepository builds repository.
func NewEquipmentRepository(pool *pgxpool.Pool) EquipmentRepository {
	return &equipmentRepository{pool: pool}
}

func (r *equipmentRepository) GetByCode(ctx context.Context, code string) (*domain.Equipment, error) {
	const query = `SELECT code, name, sector, created_at FROM equipment WHERE code=$1`
	var eq domain.Equipment
	if err := r.pool.QueryRow(ctx, query, code).Scan(
		&eq.Code,
		&eq.Name,
		&eq.Sector,
		&eq.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &eq, nil
}
