package service

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/spec-kit/condo-service/internal/domain"
	"github.com/spec-kit/condo-service/internal/policy"
	apperrors "github.com/spec-kit/condo-service/pkg/util/errorutil"
)

// KanbanColumn is one status bucket of the board.
type KanbanColumn struct {
	Status  domain.TicketStatus
	Count   int
	Tickets []domain.Ticket
}

// KanbanBoard holds one column per status, in workflow order.
type KanbanBoard struct {
	Columns []KanbanColumn
}

// TicketStats aggregates the visible tickets of an organization.
type TicketStats struct {
	Total               int
	Open                int
	Resolved            int
	Canceled            int
	ClosedOrCanceled    int
	Overdue             int
	OverSLA             int
	RatedCount          int
	AverageSatisfaction *float64
	ByCategory          map[domain.TicketCategory]int
	ByPriority          map[domain.TicketPriority]int
	ByStatus            map[domain.TicketStatus]int
}

// Kanban groups every visible ticket by status from a single read.
func (s *TicketService) Kanban(ctx context.Context, principal domain.Principal, organizationID string) (_ *KanbanBoard, err error) {
	ctx, span := s.startSpan(ctx, "tickets.Kanban", attribute.String("organization.id", organizationID))
	defer func() { endSpan(span, err) }()

	tickets, err := s.visibleSnapshot(ctx, principal, organizationID)
	if err != nil {
		return nil, err
	}
	return buildKanban(tickets), nil
}

// Stats summarizes every visible ticket from a single read.
func (s *TicketService) Stats(ctx context.Context, principal domain.Principal, organizationID string) (_ *TicketStats, err error) {
	ctx, span := s.startSpan(ctx, "tickets.Stats", attribute.String("organization.id", organizationID))
	defer func() { endSpan(span, err) }()

	tickets, err := s.visibleSnapshot(ctx, principal, organizationID)
	if err != nil {
		return nil, err
	}
	return buildStats(tickets, s.now().UTC()), nil
}

func (s *TicketService) visibleSnapshot(ctx context.Context, principal domain.Principal, organizationID string) ([]domain.Ticket, error) {
	decision, actor, err := s.authorizeOrganization(ctx, principal, organizationID, policy.OpList)
	if err != nil {
		return nil, err
	}
	var openedBy *string
	if decision.OwnTicketsOnly() {
		openedBy = &actor.UserID
	}
	tickets, err := s.tickets.FindAllVisible(ctx, organizationID, openedBy)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

func buildKanban(tickets []domain.Ticket) *KanbanBoard {
	buckets := make(map[domain.TicketStatus][]domain.Ticket, len(domain.TicketStatuses))
	for _, t := range tickets {
		buckets[t.Status] = append(buckets[t.Status], t)
	}

	board := &KanbanBoard{Columns: make([]KanbanColumn, 0, len(domain.TicketStatuses))}
	for _, status := range domain.TicketStatuses {
		column := buckets[status]
		if column == nil {
			column = []domain.Ticket{}
		}
		sort.SliceStable(column, func(i, j int) bool {
			ri, rj := column[i].Priority.Rank(), column[j].Priority.Rank()
			if ri != rj {
				return ri > rj
			}
			if !column[i].CreatedAt.Equal(column[j].CreatedAt) {
				return column[i].CreatedAt.After(column[j].CreatedAt)
			}
			return column[i].ID > column[j].ID
		})
		board.Columns = append(board.Columns, KanbanColumn{Status: status, Count: len(column), Tickets: column})
	}
	return board
}

func buildStats(tickets []domain.Ticket, now time.Time) *TicketStats {
	stats := &TicketStats{
		ByCategory: make(map[domain.TicketCategory]int, len(domain.TicketCategories)),
		ByPriority: make(map[domain.TicketPriority]int, len(domain.TicketPriorities)),
		ByStatus:   make(map[domain.TicketStatus]int, len(domain.TicketStatuses)),
	}
	for _, c := range domain.TicketCategories {
		stats.ByCategory[c] = 0
	}
	for _, p := range domain.TicketPriorities {
		stats.ByPriority[p] = 0
	}
	for _, st := range domain.TicketStatuses {
		stats.ByStatus[st] = 0
	}

	scoreSum := 0
	for _, t := range tickets {
		stats.Total++
		stats.ByCategory[t.Category]++
		stats.ByPriority[t.Priority]++
		stats.ByStatus[t.Status]++

		switch {
		case t.Status.IsOpen():
			stats.Open++
			age := now.Sub(t.CreatedAt)
			if age > overdueAfter {
				stats.Overdue++
			}
			if age > time.Duration(t.SLAHours)*time.Hour {
				stats.OverSLA++
			}
		case t.Status == domain.TicketStatusResolved:
			stats.Resolved++
			if t.SatisfactionScore != nil {
				stats.RatedCount++
				scoreSum += *t.SatisfactionScore
			}
		case t.Status == domain.TicketStatusCanceled:
			stats.Canceled++
		}
	}
	stats.ClosedOrCanceled = stats.Resolved + stats.Canceled
	if stats.RatedCount > 0 {
		avg := float64(scoreSum) / float64(stats.RatedCount)
		stats.AverageSatisfaction = &avg
	}
	return stats
}
