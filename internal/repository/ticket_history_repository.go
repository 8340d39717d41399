package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/condo-service/internal/domain"
)

// TicketHistoryRepository reads audit entries. Rows are only written by TicketRepository,
// inside the transaction that moves the ticket status.
type TicketHistoryRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketStatusHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func insertHistory(ctx context.Context, tx pgx.Tx, history domain.TicketStatusHistory) error {
	const query = `
        INSERT INTO ticket_status_history (id, ticket_id, from_status, to_status, by_user_id, note, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := tx.Exec(ctx, query,
		history.ID,
		history.TicketID,
		history.FromStatus,
		history.ToStatus,
		history.ByUserID,
		history.Note,
		history.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert ticket history: %w", err)
	}
	return nil
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketStatusHistory, error) {
	const query = `
        SELECT id, ticket_id, from_status, to_status, by_user_id, note, created_at
        FROM ticket_status_history WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketStatusHistory
	for rows.Next() {
		var history domain.TicketStatusHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.FromStatus,
			&history.ToStatus,
			&history.ByUserID,
			&history.Note,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
