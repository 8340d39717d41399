package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/condo-service/internal/domain"
)

// TicketFilter captures list parameters. OrganizationID is mandatory.
type TicketFilter struct {
	OrganizationID string
	OpenedBy       *string
	AssignedTo     *string
	UnitID         *string
	Statuses       []domain.TicketStatus
	Priorities     []domain.TicketPriority
	Categories     []domain.TicketCategory
	SearchTerm     *string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	Limit          int
	Offset         int
}

// TicketPatch holds the descriptive fields of a partial update; nil means unchanged.
type TicketPatch struct {
	Title       *string
	Description *string
	Category    *domain.TicketCategory
	Location    *string
	Tags        *[]string
	Checklist   *[]byte
	Priority    *domain.TicketPriority
	SLAHours    *int
	UpdatedAt   time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p TicketPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Location == nil &&
		p.Tags == nil && p.Checklist == nil && p.Priority == nil && p.SLAHours == nil
}

// StatusChange is a conditional transition: it applies only while the ticket is still in Expected.
type StatusChange struct {
	TicketID string
	Expected domain.TicketStatus
	Next     domain.TicketStatus
	ClosedAt *time.Time
	History  domain.TicketStatusHistory
	At       time.Time
}

// AssigneeChange sets the assignee while the ticket is still in Expected. When Advance is set
// the status moves too and History must describe that transition.
type AssigneeChange struct {
	TicketID   string
	Expected   domain.TicketStatus
	AssigneeID string
	Advance    *domain.TicketStatus
	History    *domain.TicketStatusHistory
	At         time.Time
}

// TicketRepository encapsulates ticket persistence. Every mutation that touches status writes the
// ticket row and its history row in one transaction.
type TicketRepository interface {
	Insert(ctx context.Context, ticket *domain.Ticket, initial domain.TicketStatusHistory) error
	FindByID(ctx context.Context, id string) (*domain.Ticket, error)
	FindMany(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error)
	FindAllVisible(ctx context.Context, organizationID string, openedBy *string) ([]domain.Ticket, error)
	UpdateStatus(ctx context.Context, change StatusChange) (*domain.Ticket, error)
	UpdateFields(ctx context.Context, id string, expected *domain.TicketStatus, patch TicketPatch) (*domain.Ticket, error)
	SetAssignee(ctx context.Context, change AssigneeChange) (*domain.Ticket, error)
	SetSatisfaction(ctx context.Context, id string, score int, at time.Time, comment *domain.TicketComment) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, organization_id, unit_id, title, description, category, location, tags, checklist,
    status, priority, opened_by, assigned_to, sla_hours, closed_at, satisfaction_score, created_at, updated_at`

func (r *ticketRepository) Insert(ctx context.Context, ticket *domain.Ticket, initial domain.TicketStatusHistory) error {
	const query = `
        INSERT INTO tickets (id, organization_id, unit_id, title, description, category, location, tags, checklist,
            status, priority, opened_by, assigned_to, sla_hours, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query,
			ticket.ID,
			ticket.OrganizationID,
			ticket.UnitID,
			ticket.Title,
			ticket.Description,
			ticket.Category,
			ticket.Location,
			nonNilTags(ticket.Tags),
			checklistParam(ticket.Checklist),
			ticket.Status,
			ticket.Priority,
			ticket.OpenedBy,
			ticket.AssignedTo,
			ticket.SLAHours,
			ticket.CreatedAt,
			ticket.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		return insertHistory(ctx, tx, initial)
	})
}

func (r *ticketRepository) FindByID(ctx context.Context, id string) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
	ticket, err := scanTicket(row)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return ticket, nil
}

func (r *ticketRepository) FindMany(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	clauses, args := filterClauses(filter)
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tickets: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

// FindAllVisible reads every ticket of the organization in one statement, optionally restricted to an opener.
func (r *ticketRepository) FindAllVisible(ctx context.Context, organizationID string, openedBy *string) ([]domain.Ticket, error) {
	clauses, args := filterClauses(TicketFilter{OrganizationID: organizationID, OpenedBy: openedBy})
	rows, err := r.pool.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE `+strings.Join(clauses, " AND ")+` ORDER BY created_at DESC, id DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("snapshot tickets: %w", err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, change StatusChange) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET status=$3, closed_at=$4, updated_at=$5
        WHERE id=$1 AND status=$2
        RETURNING ` + ticketColumns

	var updated *domain.Ticket
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		ticket, err := scanTicket(tx.QueryRow(ctx, query, change.TicketID, change.Expected, change.Next, change.ClosedAt, change.At))
		if errors.Is(err, pgx.ErrNoRows) {
			return missOutcome(ctx, tx, "tickets", change.TicketID)
		}
		if err != nil {
			return fmt.Errorf("update ticket status: %w", err)
		}
		if err := insertHistory(ctx, tx, change.History); err != nil {
			return err
		}
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *ticketRepository) UpdateFields(ctx context.Context, id string, expected *domain.TicketStatus, patch TicketPatch) (*domain.Ticket, error) {
	sets := []string{}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Location != nil {
		add("location", *patch.Location)
	}
	if patch.Tags != nil {
		add("tags", nonNilTags(*patch.Tags))
	}
	if patch.Checklist != nil {
		add("checklist", checklistParam(*patch.Checklist))
	}
	if patch.Priority != nil {
		add("priority", *patch.Priority)
	}
	if patch.SLAHours != nil {
		add("sla_hours", *patch.SLAHours)
	}
	add("updated_at", patch.UpdatedAt)

	where := "id=$1"
	if expected != nil {
		args = append(args, *expected)
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}
	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE %s RETURNING %s`, strings.Join(sets, ", "), where, ticketColumns)

	var updated *domain.Ticket
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		ticket, err := scanTicket(tx.QueryRow(ctx, query, args...))
		if errors.Is(err, pgx.ErrNoRows) {
			return missOutcome(ctx, tx, "tickets", id)
		}
		if err != nil {
			return fmt.Errorf("update ticket fields: %w", err)
		}
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *ticketRepository) SetAssignee(ctx context.Context, change AssigneeChange) (*domain.Ticket, error) {
	next := change.Expected
	if change.Advance != nil {
		next = *change.Advance
	}
	const query = `
        UPDATE tickets SET assigned_to=$3, status=$4, updated_at=$5
        WHERE id=$1 AND status=$2
        RETURNING ` + ticketColumns

	var updated *domain.Ticket
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		ticket, err := scanTicket(tx.QueryRow(ctx, query, change.TicketID, change.Expected, change.AssigneeID, next, change.At))
		if errors.Is(err, pgx.ErrNoRows) {
			return missOutcome(ctx, tx, "tickets", change.TicketID)
		}
		if err != nil {
			return fmt.Errorf("assign ticket: %w", err)
		}
		if change.History != nil {
			if err := insertHistory(ctx, tx, *change.History); err != nil {
				return err
			}
		}
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetSatisfaction records the score once, only while the ticket is RESOLVED and unrated.
func (r *ticketRepository) SetSatisfaction(ctx context.Context, id string, score int, at time.Time, comment *domain.TicketComment) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET satisfaction_score=$2, updated_at=$3
        WHERE id=$1 AND status='RESOLVED' AND satisfaction_score IS NULL
        RETURNING ` + ticketColumns

	var updated *domain.Ticket
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		ticket, err := scanTicket(tx.QueryRow(ctx, query, id, score, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return missOutcome(ctx, tx, "tickets", id)
		}
		if err != nil {
			return fmt.Errorf("rate ticket: %w", err)
		}
		if comment != nil {
			if err := insertComment(ctx, tx, comment); err != nil {
				return err
			}
		}
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func filterClauses(filter TicketFilter) ([]string, []any) {
	args := []any{filter.OrganizationID}
	clauses := []string{"organization_id=$1"}

	if filter.OpenedBy != nil {
		args = append(args, *filter.OpenedBy)
		clauses = append(clauses, fmt.Sprintf("opened_by=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.UnitID != nil {
		args = append(args, *filter.UnitID)
		clauses = append(clauses, fmt.Sprintf("unit_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, enumStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filter.Priorities) > 0 {
		args = append(args, enumStrings(filter.Priorities))
		clauses = append(clauses, fmt.Sprintf("priority = ANY($%d)", len(args)))
	}
	if len(filter.Categories) > 0 {
		args = append(args, enumStrings(filter.Categories))
		clauses = append(clauses, fmt.Sprintf("category = ANY($%d)", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s OR LOWER(location) LIKE %s)",
			placeholder, placeholder, placeholder))
	}
	return clauses, args
}

func enumStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func checklistParam(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket    domain.Ticket
		checklist []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.OrganizationID,
		&ticket.UnitID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Location,
		&ticket.Tags,
		&checklist,
		&ticket.Status,
		&ticket.Priority,
		&ticket.OpenedBy,
		&ticket.AssignedTo,
		&ticket.SLAHours,
		&ticket.ClosedAt,
		&ticket.SatisfactionScore,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(checklist) > 0 {
		ticket.Checklist = checklist
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
