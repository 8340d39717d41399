package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/condo-service/internal/domain"
	"github.com/spec-kit/condo-service/internal/events"
	"github.com/spec-kit/condo-service/internal/policy"
	"github.com/spec-kit/condo-service/internal/repository"
	apperrors "github.com/spec-kit/condo-service/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	overdueAfter    = 24 * time.Hour
)

var tracer = otel.Tracer("github.com/spec-kit/condo-service/internal/service")

// TransitionRecorder counts applied status transitions.
type TransitionRecorder interface {
	TicketTransition(from, to domain.TicketStatus)
}

type nopTransitionRecorder struct{}

func (nopTransitionRecorder) TicketTransition(domain.TicketStatus, domain.TicketStatus) {}

// TicketService is the ticket workflow engine. Every operation authorizes through policy.Evaluate,
// writes status and history together, then hands side effects to the dispatcher.
type TicketService struct {
	tickets       repository.TicketRepository
	history       repository.TicketHistoryRepository
	comments      repository.TicketCommentRepository
	memberships   repository.MembershipRepository
	units         repository.UnitRepository
	organizations repository.OrganizationRepository
	users         repository.UserRepository
	dispatcher    events.Dispatcher
	metrics       TransitionRecorder
	logger        *zap.Logger
	sanitizer     *bluemonday.Policy
	now           func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo       repository.TicketRepository
	HistoryRepo      repository.TicketHistoryRepository
	CommentRepo      repository.TicketCommentRepository
	MembershipRepo   repository.MembershipRepository
	UnitRepo         repository.UnitRepository
	OrganizationRepo repository.OrganizationRepository
	UserRepo         repository.UserRepository
	Dispatcher       events.Dispatcher
	Metrics          TransitionRecorder
	Logger           *zap.Logger
	Clock            func() time.Time
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	UnitID      *string
	Title       string
	Description string
	Category    domain.TicketCategory
	Location    string
	Tags        []string
	Checklist   json.RawMessage
	Priority    domain.TicketPriority
	SLAHours    *int
}

// UpdateTicketInput is a partial edit; nil fields are left untouched.
type UpdateTicketInput struct {
	Title       *string
	Description *string
	Category    *domain.TicketCategory
	Location    *string
	Tags        *[]string
	Checklist   *json.RawMessage
	Priority    *domain.TicketPriority
	SLAHours    *int
}

// ListTicketsInput describes caller-supplied list filters.
type ListTicketsInput struct {
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	Categories  []domain.TicketCategory
	AssignedTo  *string
	OpenedBy    *string
	UnitID      *string
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketPage is one page of a list result.
type TicketPage struct {
	Items  []domain.Ticket
	Total  int
	Limit  int
	Offset int
}

// TicketDetail is a ticket together with its thread and audit trail.
type TicketDetail struct {
	Ticket   *domain.Ticket
	Comments []domain.TicketComment
	History  []domain.TicketStatusHistory
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:       deps.TicketRepo,
		history:       deps.HistoryRepo,
		comments:      deps.CommentRepo,
		memberships:   deps.MembershipRepo,
		units:         deps.UnitRepo,
		organizations: deps.OrganizationRepo,
		users:         deps.UserRepo,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		sanitizer:     bluemonday.StrictPolicy(),
		now:           deps.Clock,
	}
	if s.metrics == nil {
		s.metrics = nopTransitionRecorder{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Create opens a ticket in organizationID on behalf of the caller.
func (s *TicketService) Create(ctx context.Context, principal domain.Principal, organizationID string, input CreateTicketInput) (_ *domain.Ticket, err error) {
	ctx, span := s.startSpan(ctx, "tickets.Create", attribute.String("organization.id", organizationID))
	defer func() { endSpan(span, err) }()

	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	if !isUUID(organizationID) {
		return nil, apperrors.NewNotFound("organization", map[string]any{"organization_id": organizationID})
	}
	ticket, err := s.buildTicket(organizationID, principal.UserID, input)
	if err != nil {
		return nil, err
	}

	actor, err := s.actorFor(ctx, principal, organizationID)
	if err != nil {
		return nil, err
	}
	if decision := policy.Evaluate(actor, policy.Request{Operation: policy.OpCreate, OrganizationID: organizationID}); !decision.Allowed {
		return nil, forbidden(policy.OpCreate, decision)
	}

	org, err := s.organizations.FindByID(ctx, organizationID)
	if err != nil || !org.IsActive {
		if err == nil || errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("organization", map[string]any{"organization_id": organizationID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if ticket.UnitID != nil {
		if err := s.checkUnit(ctx, organizationID, *ticket.UnitID); err != nil {
			return nil, err
		}
	}

	initial := domain.TicketStatusHistory{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		ToStatus:  domain.TicketStatusNew,
		ByUserID:  principal.UserID,
		CreatedAt: ticket.CreatedAt,
	}
	if err := s.tickets.Insert(context.WithoutCancel(ctx), ticket, initial); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.publishEvent(ctx, ticket, events.EventTicketCreated, principal.UserID, events.TicketCreatedPayload{
		Title:    ticket.Title,
		Category: ticket.Category,
		Priority: ticket.Priority,
		UnitID:   ticket.UnitID,
		OpenedBy: ticket.OpenedBy,
	})
	s.publishAward(ctx, ticket, principal.UserID, ticket.OpenedBy, events.AwardTicketOpened)
	return ticket, nil
}

// Update merges the provided descriptive fields into the ticket. It never writes history.
func (s *TicketService) Update(ctx context.Context, principal domain.Principal, ticketID string, input UpdateTicketInput) (_ *domain.Ticket, err error) {
	ctx, span := s.startSpan(ctx, "tickets.Update", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()

	patch, fields, err := s.buildPatch(input)
	if err != nil {
		return nil, err
	}
	ticket, _, decision, err := s.authorizeTicket(ctx, principal, ticketID, policy.OpEditFields, nil)
	if err != nil {
		return nil, err
	}

	var expected *domain.TicketStatus
	if decision.Condition == policy.CondOpenerWhileNew {
		status := domain.TicketStatusNew
		expected = &status
	}
	patch.UpdatedAt = s.now().UTC()

	updated, err := s.tickets.UpdateFields(context.WithoutCancel(ctx), ticket.ID, expected, patch)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ticketNotFound(ticketID)
	case errors.Is(err, repository.ErrPreconditionFailed):
		return nil, apperrors.NewForbidden(string(policy.ReasonEditNotAllowed),
			"ticket left NEW before the edit was applied; only management roles may edit it now",
			map[string]any{"required_roles": policy.ManagementRoles})
	case err != nil:
		return nil, apperrors.NewInternalError(err)
	}

	s.publishEvent(ctx, updated, events.EventTicketUpdated, principal.UserID, events.TicketUpdatedPayload{Fields: fields})
	return updated, nil
}

// Get returns a visible ticket with its comments and status history.
func (s *TicketService) Get(ctx context.Context, principal domain.Principal, ticketID string) (_ *TicketDetail, err error) {
	ctx, span := s.startSpan(ctx, "tickets.Get", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()

	ticket, _, _, err := s.authorizeTicket(ctx, principal, ticketID, policy.OpView, nil)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &TicketDetail{Ticket: ticket, Comments: comments, History: history}, nil
}

// History returns the status audit trail of a visible ticket, oldest first.
func (s *TicketService) History(ctx context.Context, principal domain.Principal, ticketID string) (_ []domain.TicketStatusHistory, err error) {
	ctx, span := s.startSpan(ctx, "tickets.History", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()

	ticket, _, _, err := s.authorizeTicket(ctx, principal, ticketID, policy.OpView, nil)
	if err != nil {
		return nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return history, nil
}

// List returns a page of visible tickets, newest first.
func (s *TicketService) List(ctx context.Context, principal domain.Principal, organizationID string, input ListTicketsInput) (_ *TicketPage, err error) {
	ctx, span := s.startSpan(ctx, "tickets.List", attribute.String("organization.id", organizationID))
	defer func() { endSpan(span, err) }()

	if err := validateListInput(input); err != nil {
		return nil, err
	}
	decision, actor, err := s.authorizeOrganization(ctx, principal, organizationID, policy.OpList)
	if err != nil {
		return nil, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}
	page := &TicketPage{Items: []domain.Ticket{}, Limit: limit, Offset: offset}

	filter := repository.TicketFilter{
		OrganizationID: organizationID,
		OpenedBy:       input.OpenedBy,
		AssignedTo:     input.AssignedTo,
		UnitID:         input.UnitID,
		Statuses:       input.Statuses,
		Priorities:     input.Priorities,
		Categories:     input.Categories,
		SearchTerm:     input.SearchTerm,
		CreatedFrom:    input.CreatedFrom,
		CreatedTo:      input.CreatedTo,
		Limit:          limit,
		Offset:         offset,
	}
	if decision.OwnTicketsOnly() {
		if input.OpenedBy != nil && *input.OpenedBy != actor.UserID {
			return page, nil
		}
		filter.OpenedBy = &actor.UserID
	}
	for _, id := range []*string{filter.OpenedBy, filter.AssignedTo, filter.UnitID} {
		if id != nil && !isUUID(*id) {
			return page, nil
		}
	}

	items, total, err := s.tickets.FindMany(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if items != nil {
		page.Items = items
	}
	page.Total = total
	return page, nil
}

func (s *TicketService) buildTicket(organizationID, openedBy string, input CreateTicketInput) (*domain.Ticket, error) {
	details := map[string]any{}

	title := s.clean(input.Title)
	if title == "" {
		details["title"] = "required"
	}
	category := input.Category
	if category == "" {
		category = domain.TicketCategoryOther
	}
	if !category.IsValid() {
		details["category"] = fmt.Sprintf("must be one of %v", domain.TicketCategories)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.IsValid() {
		details["priority"] = fmt.Sprintf("must be one of %v", domain.TicketPriorities)
	}
	sla := domain.DefaultSLAHours
	if input.SLAHours != nil {
		sla = *input.SLAHours
		if !validSLA(sla) {
			details["sla_hours"] = fmt.Sprintf("must be between %d and %d", domain.MinSLAHours, domain.MaxSLAHours)
		}
	}
	if len(input.Checklist) > 0 && !json.Valid(input.Checklist) {
		details["checklist"] = "must be valid JSON"
	}
	var unitID *string
	if input.UnitID != nil && strings.TrimSpace(*input.UnitID) != "" {
		id := strings.TrimSpace(*input.UnitID)
		unitID = &id
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}

	now := s.now().UTC()
	return &domain.Ticket{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		UnitID:         unitID,
		Title:          title,
		Description:    s.clean(input.Description),
		Category:       category,
		Location:       s.clean(input.Location),
		Tags:           s.cleanSet(input.Tags),
		Checklist:      input.Checklist,
		Status:         domain.TicketStatusNew,
		Priority:       priority,
		OpenedBy:       openedBy,
		SLAHours:       sla,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *TicketService) buildPatch(input UpdateTicketInput) (repository.TicketPatch, []string, error) {
	var (
		patch  repository.TicketPatch
		fields []string
	)
	details := map[string]any{}

	if input.Title != nil {
		title := s.clean(*input.Title)
		if title == "" {
			details["title"] = "must not be empty"
		}
		patch.Title = &title
		fields = append(fields, "title")
	}
	if input.Description != nil {
		description := s.clean(*input.Description)
		patch.Description = &description
		fields = append(fields, "description")
	}
	if input.Category != nil {
		if !input.Category.IsValid() {
			details["category"] = fmt.Sprintf("must be one of %v", domain.TicketCategories)
		}
		patch.Category = input.Category
		fields = append(fields, "category")
	}
	if input.Location != nil {
		location := s.clean(*input.Location)
		patch.Location = &location
		fields = append(fields, "location")
	}
	if input.Tags != nil {
		tags := s.cleanSet(*input.Tags)
		patch.Tags = &tags
		fields = append(fields, "tags")
	}
	if input.Checklist != nil {
		if len(*input.Checklist) > 0 && !json.Valid(*input.Checklist) {
			details["checklist"] = "must be valid JSON"
		}
		raw := []byte(*input.Checklist)
		patch.Checklist = &raw
		fields = append(fields, "checklist")
	}
	if input.Priority != nil {
		if !input.Priority.IsValid() {
			details["priority"] = fmt.Sprintf("must be one of %v", domain.TicketPriorities)
		}
		patch.Priority = input.Priority
		fields = append(fields, "priority")
	}
	if input.SLAHours != nil {
		if !validSLA(*input.SLAHours) {
			details["sla_hours"] = fmt.Sprintf("must be between %d and %d", domain.MinSLAHours, domain.MaxSLAHours)
		}
		patch.SLAHours = input.SLAHours
		fields = append(fields, "sla_hours")
	}

	if len(details) > 0 {
		return patch, nil, apperrors.NewValidationError("invalid ticket update", details)
	}
	if patch.IsEmpty() {
		return patch, nil, apperrors.NewValidationError("no fields to update", nil)
	}
	return patch, fields, nil
}

func validateListInput(input ListTicketsInput) error {
	details := map[string]any{}
	for _, status := range input.Statuses {
		if !status.IsValid() {
			details["status"] = fmt.Sprintf("unknown status %q", status)
		}
	}
	for _, priority := range input.Priorities {
		if !priority.IsValid() {
			details["priority"] = fmt.Sprintf("unknown priority %q", priority)
		}
	}
	for _, category := range input.Categories {
		if !category.IsValid() {
			details["category"] = fmt.Sprintf("unknown category %q", category)
		}
	}
	if input.CreatedFrom != nil && input.CreatedTo != nil && input.CreatedTo.Before(*input.CreatedFrom) {
		details["created_to"] = "must not be before created_from"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid list filter", details)
	}
	return nil
}

func (s *TicketService) checkUnit(ctx context.Context, organizationID, unitID string) error {
	notFound := apperrors.NewNotFound("unit", map[string]any{"unit_id": unitID})
	if !isUUID(unitID) {
		return notFound
	}
	unit, err := s.units.FindByID(ctx, unitID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if unit.OrganizationID != organizationID || !unit.IsActive {
		return notFound
	}
	return nil
}

// actorFor resolves the caller's membership in organizationID. A missing membership is not an error;
// the evaluator turns it into a denial. An active ADMIN_GLOBAL membership in any organization grants
// the same cross-organization exemption as the platform_admin claim.
func (s *TicketService) actorFor(ctx context.Context, principal domain.Principal, organizationID string) (policy.Actor, error) {
	actor := policy.Actor{UserID: principal.UserID, PlatformAdmin: principal.PlatformAdmin}
	if principal.PlatformAdmin {
		return actor, nil
	}
	membership, err := s.memberships.FindActive(ctx, principal.UserID, organizationID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return actor, apperrors.NewInternalError(err)
	case membership.Role == domain.RoleAdminGlobal:
		actor.Membership = membership
		return actor, nil
	default:
		actor.Membership = membership
	}

	admin, err := s.memberships.HasActiveRole(ctx, principal.UserID, domain.RoleAdminGlobal)
	if err != nil {
		return actor, apperrors.NewInternalError(err)
	}
	actor.PlatformAdmin = admin
	return actor, nil
}

func (s *TicketService) authorizeOrganization(ctx context.Context, principal domain.Principal, organizationID string, op policy.Operation) (policy.Decision, policy.Actor, error) {
	if err := requirePrincipal(principal); err != nil {
		return policy.Decision{}, policy.Actor{}, err
	}
	if !isUUID(organizationID) {
		return policy.Decision{}, policy.Actor{}, apperrors.NewNotFound("organization", map[string]any{"organization_id": organizationID})
	}
	actor, err := s.actorFor(ctx, principal, organizationID)
	if err != nil {
		return policy.Decision{}, actor, err
	}
	decision := policy.Evaluate(actor, policy.Request{Operation: op, OrganizationID: organizationID})
	if !decision.Allowed {
		return decision, actor, forbidden(op, decision)
	}
	return decision, actor, nil
}

// authorizeTicket loads the ticket and evaluates op. Denials on tickets the caller cannot view
// surface as NotFound so their existence is not disclosed.
func (s *TicketService) authorizeTicket(ctx context.Context, principal domain.Principal, ticketID string, op policy.Operation, assignee *domain.Membership) (*domain.Ticket, policy.Actor, policy.Decision, error) {
	ticket, actor, err := s.loadTicket(ctx, principal, ticketID)
	if err != nil {
		return nil, actor, policy.Decision{}, err
	}
	decision := policy.Evaluate(actor, policy.Request{Operation: op, Ticket: policy.Snapshot(ticket), Assignee: assignee})
	if !decision.Allowed {
		return nil, actor, decision, s.denied(actor, ticket, op, decision)
	}
	return ticket, actor, decision, nil
}

func (s *TicketService) loadTicket(ctx context.Context, principal domain.Principal, ticketID string) (*domain.Ticket, policy.Actor, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, policy.Actor{}, err
	}
	if !isUUID(ticketID) {
		return nil, policy.Actor{}, ticketNotFound(ticketID)
	}
	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, policy.Actor{}, ticketNotFound(ticketID)
	}
	if err != nil {
		return nil, policy.Actor{}, apperrors.NewInternalError(err)
	}
	actor, err := s.actorFor(ctx, principal, ticket.OrganizationID)
	if err != nil {
		return nil, actor, err
	}
	return ticket, actor, nil
}

func (s *TicketService) denied(actor policy.Actor, ticket *domain.Ticket, op policy.Operation, decision policy.Decision) error {
	if op == policy.OpView {
		return withReason(ticketNotFound(ticket.ID), decision.Reason)
	}
	view := policy.Evaluate(actor, policy.Request{Operation: policy.OpView, Ticket: policy.Snapshot(ticket)})
	if !view.Allowed {
		return withReason(ticketNotFound(ticket.ID), view.Reason)
	}

	switch decision.Reason {
	case policy.ReasonAssigneeNotMember:
		return withReason(apperrors.NewNotFound("assignee", nil), decision.Reason)
	case policy.ReasonTicketNotResolved:
		return apperrors.NewInvalidState(string(decision.Reason),
			fmt.Sprintf("ticket must be %s to be rated; current status is %s", domain.TicketStatusResolved, ticket.Status),
			map[string]any{"current_status": ticket.Status})
	default:
		return forbidden(op, decision)
	}
}

func forbidden(op policy.Operation, decision policy.Decision) error {
	required := requiredFor(op)
	role := string(decision.Role)
	if role == "" {
		role = "none"
	}
	return apperrors.NewForbidden(string(decision.Reason),
		fmt.Sprintf("%s denied for role %s; allowed: %s", op, role, required),
		map[string]any{"operation": op, "role": role, "allowed": required})
}

func requiredFor(op policy.Operation) string {
	switch op {
	case policy.OpEditFields:
		return "ADMIN_GLOBAL, SINDICO, ZELADOR, or the opener while NEW"
	case policy.OpAssign:
		return "ADMIN_GLOBAL, SINDICO, ZELADOR"
	case policy.OpChangeStatus:
		return "ADMIN_GLOBAL, SINDICO, ZELADOR, or the assignee"
	case policy.OpRateSatisfaction:
		return "the opener of a RESOLVED ticket"
	default:
		return "an active member of the organization"
	}
}

func withReason(err error, reason policy.Reason) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		domainErr.Reason = string(reason)
	}
	return err
}

func ticketNotFound(ticketID string) error {
	return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
}

func requirePrincipal(principal domain.Principal) error {
	if strings.TrimSpace(principal.UserID) == "" {
		return apperrors.NewUnauthorized("authenticated user required")
	}
	return nil
}

func isUUID(v string) bool {
	return uuid.Validate(v) == nil
}

func validSLA(hours int) bool {
	return hours >= domain.MinSLAHours && hours <= domain.MaxSLAHours
}

// clean strips markup from user supplied text.
func (s *TicketService) clean(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(v)))
}

func (s *TicketService) cleanSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = s.clean(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func viewersOf(ticket *domain.Ticket) events.Audience {
	return events.Audience{
		Roles:   []domain.Role{domain.RoleAdminGlobal, domain.RoleSindico, domain.RoleZelador, domain.RolePortaria},
		UserIDs: []string{ticket.OpenedBy},
	}
}

func (s *TicketService) publishEvent(ctx context.Context, ticket *domain.Ticket, eventType events.EventType, actorID string, payload any) {
	s.publish(ctx, events.Event{
		Type:           eventType,
		OrganizationID: ticket.OrganizationID,
		TicketID:       ticket.ID,
		ActorID:        actorID,
		Audience:       viewersOf(ticket),
		Payload:        payload,
	})
}

func (s *TicketService) publishAward(ctx context.Context, ticket *domain.Ticket, actorID, userID string, kind events.AwardKind) {
	s.publish(ctx, events.Event{
		Type:           events.EventGamificationAward,
		OrganizationID: ticket.OrganizationID,
		TicketID:       ticket.ID,
		ActorID:        actorID,
		Audience:       events.Audience{UserIDs: []string{userID}},
		Payload: events.AwardPayload{
			UserID:         userID,
			OrganizationID: ticket.OrganizationID,
			Kind:           kind,
			TicketID:       ticket.ID,
		},
	})
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("side effect not enqueued",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

func (s *TicketService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if domainErr := apperrors.ToDomainError(err); domainErr != nil {
			span.SetAttributes(attribute.String("error.code", domainErr.Code))
		}
	}
	span.End()
}
