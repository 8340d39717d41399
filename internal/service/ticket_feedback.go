package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/spec-kit/condo-service/internal/domain"
	"github.com/spec-kit/condo-service/internal/events"
	"github.com/spec-kit/condo-service/internal/policy"
	"github.com/spec-kit/condo-service/internal/repository"
	apperrors "github.com/spec-kit/condo-service/pkg/util/errorutil"
)

const (
	minSatisfactionScore = 1
	maxSatisfactionScore = 5
	previewLength        = 120
)

// AddCommentInput is a new thread message.
type AddCommentInput struct {
	Message     string
	Mentions    []string
	Attachments []string
}

// RateSatisfaction records the opener's score on a resolved ticket. A ticket is rated once.
func (s *TicketService) RateSatisfaction(ctx context.Context, principal domain.Principal, ticketID string, score int, comment string) (_ *domain.Ticket, err error) {
	ctx, span := s.startSpan(ctx, "tickets.RateSatisfaction",
		attribute.String("ticket.id", ticketID),
		attribute.Int("ticket.satisfaction_score", score))
	defer func() { endSpan(span, err) }()

	if score < minSatisfactionScore || score > maxSatisfactionScore {
		return nil, apperrors.NewValidationError("invalid satisfaction score", map[string]any{
			"score": fmt.Sprintf("must be between %d and %d", minSatisfactionScore, maxSatisfactionScore),
		})
	}
	ticket, _, _, err := s.authorizeTicket(ctx, principal, ticketID, policy.OpRateSatisfaction, nil)
	if err != nil {
		return nil, err
	}
	if ticket.SatisfactionScore != nil {
		return nil, alreadyRated(*ticket.SatisfactionScore)
	}

	now := s.now().UTC()
	var systemComment *domain.TicketComment
	if text := s.clean(comment); text != "" {
		systemComment = &domain.TicketComment{
			ID:        uuid.NewString(),
			TicketID:  ticket.ID,
			AuthorID:  principal.UserID,
			Message:   fmt.Sprintf("Satisfaction rating: %d/%d. %s", score, maxSatisfactionScore, text),
			System:    true,
			CreatedAt: now,
		}
	}

	updated, err := s.tickets.SetSatisfaction(context.WithoutCancel(ctx), ticket.ID, score, now, systemComment)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ticketNotFound(ticketID)
	case errors.Is(err, repository.ErrPreconditionFailed):
		return nil, s.ratingConflict(ctx, ticket.ID)
	case err != nil:
		return nil, apperrors.NewInternalError(err)
	}

	s.publishEvent(ctx, updated, events.EventTicketRated, principal.UserID, events.TicketRatedPayload{Score: score})
	if systemComment != nil {
		s.publishEvent(ctx, updated, events.EventTicketCommentAdded, principal.UserID, events.TicketCommentAddedPayload{
			CommentID:   systemComment.ID,
			AuthorID:    systemComment.AuthorID,
			BodyPreview: stringPreview(systemComment.Message, previewLength),
		})
	}
	return updated, nil
}

// ratingConflict re-reads the ticket to explain why a conditional rating write missed.
func (s *TicketService) ratingConflict(ctx context.Context, ticketID string) error {
	current, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if current.SatisfactionScore != nil {
		return alreadyRated(*current.SatisfactionScore)
	}
	return apperrors.NewInvalidState(string(policy.ReasonTicketNotResolved),
		fmt.Sprintf("ticket must be %s to be rated; current status is %s", domain.TicketStatusResolved, current.Status),
		map[string]any{"current_status": current.Status})
}

func alreadyRated(score int) error {
	return apperrors.NewInvalidState("ALREADY_RATED", "ticket satisfaction was already rated",
		map[string]any{"satisfaction_score": score})
}

// AddComment appends a message to the thread of a visible ticket.
func (s *TicketService) AddComment(ctx context.Context, principal domain.Principal, ticketID string, input AddCommentInput) (_ *domain.TicketComment, err error) {
	ctx, span := s.startSpan(ctx, "tickets.AddComment", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()

	message := s.clean(input.Message)
	if message == "" {
		return nil, apperrors.NewValidationError("invalid comment", map[string]any{"message": "required"})
	}
	attachments, err := normalizeAttachments(input.Attachments)
	if err != nil {
		return nil, err
	}
	ticket, _, _, err := s.authorizeTicket(ctx, principal, ticketID, policy.OpComment, nil)
	if err != nil {
		return nil, err
	}
	mentions, err := s.resolveMentions(ctx, ticket.OrganizationID, input.Mentions)
	if err != nil {
		return nil, err
	}

	comment := &domain.TicketComment{
		ID:          uuid.NewString(),
		TicketID:    ticket.ID,
		AuthorID:    principal.UserID,
		Message:     message,
		Mentions:    mentions,
		Attachments: attachments,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.comments.Create(context.WithoutCancel(ctx), comment); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	event := events.Event{
		Type:           events.EventTicketCommentAdded,
		OrganizationID: ticket.OrganizationID,
		TicketID:       ticket.ID,
		ActorID:        principal.UserID,
		Audience:       viewersOf(ticket),
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			AuthorID:    comment.AuthorID,
			BodyPreview: stringPreview(comment.Message, previewLength),
			Mentions:    mentions,
		},
	}
	s.publish(ctx, event)
	return comment, nil
}

// resolveMentions keeps distinct, well-formed ids of active members, in input order.
func (s *TicketService) resolveMentions(ctx context.Context, organizationID string, raw []string) ([]string, error) {
	candidates := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if !isUUID(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		return []string{}, nil
	}

	active, err := s.memberships.FilterActiveMembers(ctx, organizationID, candidates)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	members := make(map[string]struct{}, len(active))
	for _, id := range active {
		members[id] = struct{}{}
	}
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if _, ok := members[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func normalizeAttachments(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		u, err := url.ParseRequestURI(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, apperrors.NewValidationError("invalid comment", map[string]any{
				"attachments": fmt.Sprintf("%q is not an http(s) URL", v),
			})
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}
