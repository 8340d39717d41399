package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/condo-service/internal/domain"
)

// MembershipRepository is a read-only view over memberships.
type MembershipRepository interface {
	// FindActive returns the single active membership of userID in organizationID, or ErrNotFound.
	FindActive(ctx context.Context, userID, organizationID string) (*domain.Membership, error)
	// FilterActiveMembers returns the subset of userIDs holding an active membership in organizationID.
	FilterActiveMembers(ctx context.Context, organizationID string, userIDs []string) ([]string, error)
	// HasActiveRole reports whether userID holds role through an active membership in any organization.
	HasActiveRole(ctx context.Context, userID string, role domain.Role) (bool, error)
}

type membershipRepository struct {
	pool *pgxpool.Pool
}

// NewMembershipRepository builds repository.
func NewMembershipRepository(pool *pgxpool.Pool) MembershipRepository {
	return &membershipRepository{pool: pool}
}

func (r *membershipRepository) FindActive(ctx context.Context, userID, organizationID string) (*domain.Membership, error) {
	const query = `
        SELECT id, user_id, organization_id, role, is_active, created_at, updated_at
        FROM memberships WHERE user_id=$1 AND organization_id=$2 AND is_active`

	var m domain.Membership
	if err := r.pool.QueryRow(ctx, query, userID, organizationID).Scan(
		&m.ID,
		&m.UserID,
		&m.OrganizationID,
		&m.Role,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, notFoundOr(err)
	}
	return &m, nil
}

func (r *membershipRepository) FilterActiveMembers(ctx context.Context, organizationID string, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	const query = `
        SELECT user_id::text FROM memberships
        WHERE organization_id=$1 AND is_active AND user_id = ANY($2::uuid[])`
	rows, err := r.pool.Query(ctx, query, organizationID, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

func (r *membershipRepository) HasActiveRole(ctx context.Context, userID string, role domain.Role) (bool, error) {
	const query = `
        SELECT EXISTS(
            SELECT 1 FROM memberships WHERE user_id=$1 AND role=$2 AND is_active
        )`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID, role).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
