package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/condo-service/internal/domain"
)

// UnitRepository looks up units referenced by tickets.
type UnitRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Unit, error)
}

type unitRepository struct {
	pool *pgxpool.Pool
}

// NewUnitRepository builds repository.
func NewUnitRepository(pool *pgxpool.Pool) UnitRepository {
	return &unitRepository{pool: pool}
}

func (r *unitRepository) FindByID(ctx context.Context, id string) (*domain.Unit, error) {
	const query = `
        SELECT id, organization_id, block, number, is_active, created_at, updated_at
        FROM units WHERE id=$1`

	var unit domain.Unit
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&unit.ID,
		&unit.OrganizationID,
		&unit.Block,
		&unit.Number,
		&unit.IsActive,
		&unit.CreatedAt,
		&unit.UpdatedAt,
	); err != nil {
		return nil, notFoundOr(err)
	}
	return &unit, nil
}
