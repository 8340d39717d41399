package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/spec-kit/condo-service/internal/domain"
	"github.com/spec-kit/condo-service/internal/events"
	"github.com/spec-kit/condo-service/internal/policy"
	"github.com/spec-kit/condo-service/internal/repository"
	apperrors "github.com/spec-kit/condo-service/pkg/util/errorutil"
)

// ChangeStatus moves the ticket to next, recording the transition in the same write.
func (s *TicketService) ChangeStatus(ctx context.Context, principal domain.Principal, ticketID string, next domain.TicketStatus, note string) (_ *domain.Ticket, err error) {
	ctx, span := s.startSpan(ctx, "tickets.ChangeStatus",
		attribute.String("ticket.id", ticketID),
		attribute.String("ticket.requested_status", string(next)))
	defer func() { endSpan(span, err) }()

	return s.applyTransition(ctx, principal, ticketID, next, note)
}

// Close resolves the ticket.
func (s *TicketService) Close(ctx context.Context, principal domain.Principal, ticketID string, note string) (_ *domain.Ticket, err error) {
	ctx, span := s.startSpan(ctx, "tickets.Close", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()

	return s.applyTransition(ctx, principal, ticketID, domain.TicketStatusResolved, note)
}

func (s *TicketService) applyTransition(ctx context.Context, principal domain.Principal, ticketID string, next domain.TicketStatus, note string) (*domain.Ticket, error) {
	if !next.IsValid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{
			"status":  next,
			"allowed": domain.TicketStatuses,
		})
	}

	ticket, actor, err := s.loadTicket(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}
	snapshot := policy.Snapshot(ticket)
	if view := policy.Evaluate(actor, policy.Request{Operation: policy.OpView, Ticket: snapshot}); !view.Allowed {
		// an assignee may move a ticket they cannot otherwise see
		if d := policy.Evaluate(actor, policy.Request{Operation: policy.OpChangeStatus, Ticket: snapshot}); !d.Allowed {
			return nil, withReason(ticketNotFound(ticket.ID), view.Reason)
		}
	}
	if !ticket.Status.CanTransitionTo(next) {
		return nil, invalidTransition(ticket.Status, next)
	}
	decision := policy.Evaluate(actor, policy.Request{Operation: policy.OpChangeStatus, Ticket: snapshot})
	if !decision.Allowed {
		return nil, forbidden(policy.OpChangeStatus, decision)
	}

	now := s.now().UTC()
	change := repository.StatusChange{
		TicketID: ticket.ID,
		Expected: ticket.Status,
		Next:     next,
		At:       now,
		History: domain.TicketStatusHistory{
			ID:         uuid.NewString(),
			TicketID:   ticket.ID,
			FromStatus: statusPtr(ticket.Status),
			ToStatus:   next,
			ByUserID:   principal.UserID,
			Note:       s.optionalText(note),
			CreatedAt:  now,
		},
	}
	if next == domain.TicketStatusResolved {
		change.ClosedAt = &now
	}

	updated, err := s.tickets.UpdateStatus(context.WithoutCancel(ctx), change)
	if err != nil {
		return nil, s.mapWriteError(err, ticket, next)
	}
	s.metrics.TicketTransition(ticket.Status, next)

	s.publishEvent(ctx, updated, events.EventTicketStatusChanged, principal.UserID, events.TicketStatusChangedPayload{
		OldStatus: ticket.Status,
		NewStatus: next,
		Note:      stringOrEmpty(change.History.Note),
	})
	if next == domain.TicketStatusResolved && updated.AssignedTo != nil {
		s.publishAward(ctx, updated, principal.UserID, *updated.AssignedTo, events.AwardTicketCompleted)
	}
	return updated, nil
}

// Assign sets the assignee. A NEW ticket advances to UNDER_REVIEW in the same write.
func (s *TicketService) Assign(ctx context.Context, principal domain.Principal, ticketID, assigneeID string) (_ *domain.Ticket, err error) {
	ctx, span := s.startSpan(ctx, "tickets.Assign",
		attribute.String("ticket.id", ticketID),
		attribute.String("ticket.assignee_id", assigneeID))
	defer func() { endSpan(span, err) }()

	ticket, actor, err := s.loadTicket(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}
	var assignee *domain.Membership
	if isUUID(assigneeID) {
		assignee, err = s.memberships.FindActive(ctx, assigneeID, ticket.OrganizationID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewInternalError(err)
		}
	}
	decision := policy.Evaluate(actor, policy.Request{Operation: policy.OpAssign, Ticket: policy.Snapshot(ticket), Assignee: assignee})
	if !decision.Allowed {
		return nil, s.denied(actor, ticket, policy.OpAssign, decision)
	}
	if !ticket.Status.IsOpen() {
		return nil, apperrors.NewInvalidState("TICKET_CLOSED",
			fmt.Sprintf("ticket is %s and can no longer be assigned", ticket.Status),
			map[string]any{"current_status": ticket.Status})
	}

	now := s.now().UTC()
	change := repository.AssigneeChange{
		TicketID:   ticket.ID,
		Expected:   ticket.Status,
		AssigneeID: assignee.UserID,
		At:         now,
	}
	if ticket.Status == domain.TicketStatusNew {
		advance := domain.TicketStatusUnderReview
		note := "assigned to " + s.displayName(ctx, assignee.UserID)
		change.Advance = &advance
		change.History = &domain.TicketStatusHistory{
			ID:         uuid.NewString(),
			TicketID:   ticket.ID,
			FromStatus: statusPtr(ticket.Status),
			ToStatus:   advance,
			ByUserID:   principal.UserID,
			Note:       &note,
			CreatedAt:  now,
		}
	}

	updated, err := s.tickets.SetAssignee(context.WithoutCancel(ctx), change)
	if err != nil {
		requested := ticket.Status
		if change.Advance != nil {
			requested = *change.Advance
		}
		return nil, s.mapWriteError(err, ticket, requested)
	}

	s.publishEvent(ctx, updated, events.EventTicketAssigned, principal.UserID, events.TicketAssignedPayload{
		AssigneeID: assignee.UserID,
		Status:     updated.Status,
		Advanced:   change.Advance != nil,
	})
	if change.Advance != nil {
		s.metrics.TicketTransition(ticket.Status, *change.Advance)
		s.publishEvent(ctx, updated, events.EventTicketStatusChanged, principal.UserID, events.TicketStatusChangedPayload{
			OldStatus: ticket.Status,
			NewStatus: *change.Advance,
			Note:      *change.History.Note,
		})
	}
	return updated, nil
}

// mapWriteError translates a failed conditional write. A precondition miss means another
// request moved the ticket first.
func (s *TicketService) mapWriteError(err error, ticket *domain.Ticket, requested domain.TicketStatus) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ticketNotFound(ticket.ID)
	case errors.Is(err, repository.ErrPreconditionFailed):
		return apperrors.NewInvalidTransition(
			fmt.Sprintf("ticket is no longer %s; it was changed concurrently, reload and retry", ticket.Status),
			map[string]any{
				"expected_status":  ticket.Status,
				"requested_status": requested,
			})
	default:
		return apperrors.NewInternalError(err)
	}
}

func invalidTransition(current, requested domain.TicketStatus) error {
	allowed := current.AllowedTransitions()
	return apperrors.NewInvalidTransition(
		fmt.Sprintf("cannot move ticket from %s to %s; allowed: %v", current, requested, allowed),
		map[string]any{
			"current_status":   current,
			"requested_status": requested,
			"allowed":          allowed,
		})
}

func (s *TicketService) displayName(ctx context.Context, userID string) string {
	if s.users == nil {
		return userID
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil || user.Name == "" {
		return userID
	}
	return user.Name
}

func (s *TicketService) optionalText(v string) *string {
	v = s.clean(v)
	if v == "" {
		return nil
	}
	return &v
}

func statusPtr(status domain.TicketStatus) *domain.TicketStatus {
	return &status
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
