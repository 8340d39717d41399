package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/condo-service/internal/domain"
	"github.com/spec-kit/condo-service/internal/service"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	UnitID      *string               `json:"unit_id"`
	Title       string                `json:"title" validate:"required,max=200"`
	Description string                `json:"description" validate:"max=10000"`
	Category    domain.TicketCategory `json:"category" validate:"omitempty,oneof=ELECTRICAL PLUMBING CLEANING SECURITY OTHER"`
	Location    string                `json:"location" validate:"max=200"`
	Tags        []string              `json:"tags" validate:"max=20,dive,max=50"`
	Checklist   json.RawMessage       `json:"checklist"`
	Priority    domain.TicketPriority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	SLAHours    *int                  `json:"sla_hours" validate:"omitempty,min=1,max=720"`
}

// ToInput maps the payload onto the engine input.
func (r CreateTicketRequest) ToInput() service.CreateTicketInput {
	return service.CreateTicketInput{
		UnitID:      r.UnitID,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Location:    r.Location,
		Tags:        r.Tags,
		Checklist:   r.Checklist,
		Priority:    r.Priority,
		SLAHours:    r.SLAHours,
	}
}

// UpdateTicketRequest is a partial edit; absent fields are untouched.
type UpdateTicketRequest struct {
	Title       *string                `json:"title" validate:"omitempty,max=200"`
	Description *string                `json:"description" validate:"omitempty,max=10000"`
	Category    *domain.TicketCategory `json:"category" validate:"omitempty,oneof=ELECTRICAL PLUMBING CLEANING SECURITY OTHER"`
	Location    *string                `json:"location" validate:"omitempty,max=200"`
	Tags        *[]string              `json:"tags" validate:"omitempty,max=20,dive,max=50"`
	Checklist   *json.RawMessage       `json:"checklist"`
	Priority    *domain.TicketPriority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	SLAHours    *int                   `json:"sla_hours" validate:"omitempty,min=1,max=720"`
}

// ToInput maps the payload onto the engine input.
func (r UpdateTicketRequest) ToInput() service.UpdateTicketInput {
	return service.UpdateTicketInput{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Location:    r.Location,
		Tags:        r.Tags,
		Checklist:   r.Checklist,
		Priority:    r.Priority,
		SLAHours:    r.SLAHours,
	}
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AssigneeID string `json:"assignee_id" validate:"required"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status domain.TicketStatus `json:"status" validate:"required,oneof=NEW UNDER_REVIEW IN_PROGRESS AWAITING_RESIDENT RESOLVED CANCELED"`
	Note   string              `json:"note" validate:"max=2000"`
}

// CloseTicketRequest payload.
type CloseTicketRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

// RateSatisfactionRequest payload.
type RateSatisfactionRequest struct {
	Score   int    `json:"score" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Message     string   `json:"message" validate:"required,max=5000"`
	Mentions    []string `json:"mentions" validate:"max=50"`
	Attachments []string `json:"attachments" validate:"max=20,dive,http_url"`
}

// ToInput maps the payload onto the engine input.
func (r CreateCommentRequest) ToInput() service.AddCommentInput {
	return service.AddCommentInput{
		Message:     r.Message,
		Mentions:    r.Mentions,
		Attachments: r.Attachments,
	}
}

// TicketListQuery captures query filters for list endpoints.
type TicketListQuery struct {
	Statuses    []string `query:"status" validate:"dive,oneof=NEW UNDER_REVIEW IN_PROGRESS AWAITING_RESIDENT RESOLVED CANCELED"`
	Priorities  []string `query:"priority" validate:"dive,oneof=LOW MEDIUM HIGH"`
	Categories  []string `query:"category" validate:"dive,oneof=ELECTRICAL PLUMBING CLEANING SECURITY OTHER"`
	AssignedTo  *string  `query:"assigned_to"`
	OpenedBy    *string  `query:"opened_by"`
	UnitID      *string  `query:"unit_id"`
	Search      *string  `query:"q" validate:"omitempty,max=200"`
	CreatedFrom string   `query:"created_from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	CreatedTo   string   `query:"created_to" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit       int      `query:"limit" validate:"min=0"`
	Offset      int      `query:"offset" validate:"min=0"`
}

// ToInput maps the query onto the engine input.
func (q TicketListQuery) ToInput() service.ListTicketsInput {
	return service.ListTicketsInput{
		Statuses:    enumSlice[domain.TicketStatus](q.Statuses),
		Priorities:  enumSlice[domain.TicketPriority](q.Priorities),
		Categories:  enumSlice[domain.TicketCategory](q.Categories),
		AssignedTo:  q.AssignedTo,
		OpenedBy:    q.OpenedBy,
		UnitID:      q.UnitID,
		SearchTerm:  q.Search,
		CreatedFrom: parseTime(q.CreatedFrom),
		CreatedTo:   parseTime(q.CreatedTo),
		Limit:       q.Limit,
		Offset:      q.Offset,
	}
}

// TicketResponse is the wire shape of a ticket.
type TicketResponse struct {
	ID                string                `json:"id"`
	OrganizationID    string                `json:"organization_id"`
	UnitID            *string               `json:"unit_id"`
	Title             string                `json:"title"`
	Description       string                `json:"description"`
	Category          domain.TicketCategory `json:"category"`
	Location          string                `json:"location"`
	Tags              []string              `json:"tags"`
	Checklist         json.RawMessage       `json:"checklist,omitempty"`
	Status            domain.TicketStatus   `json:"status"`
	Priority          domain.TicketPriority `json:"priority"`
	OpenedBy          string                `json:"opened_by"`
	AssignedTo        *string               `json:"assigned_to"`
	SLAHours          int                   `json:"sla_hours"`
	ClosedAt          *time.Time            `json:"closed_at"`
	SatisfactionScore *int                  `json:"satisfaction_score"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return TicketResponse{
		ID:                t.ID,
		OrganizationID:    t.OrganizationID,
		UnitID:            t.UnitID,
		Title:             t.Title,
		Description:       t.Description,
		Category:          t.Category,
		Location:          t.Location,
		Tags:              tags,
		Checklist:         t.Checklist,
		Status:            t.Status,
		Priority:          t.Priority,
		OpenedBy:          t.OpenedBy,
		AssignedTo:        t.AssignedTo,
		SLAHours:          t.SLAHours,
		ClosedAt:          t.ClosedAt,
		SatisfactionScore: t.SatisfactionScore,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func newTicketResponses(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketResponse(&tickets[i]))
	}
	return out
}

// TicketPageResponse is one page of tickets.
type TicketPageResponse struct {
	Items  []TicketResponse `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// NewTicketPageResponse maps a list page.
func NewTicketPageResponse(page *service.TicketPage) TicketPageResponse {
	return TicketPageResponse{
		Items:  newTicketResponses(page.Items),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
}

// CommentResponse represents a thread message.
type CommentResponse struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id"`
	Message     string    `json:"message"`
	Mentions    []string  `json:"mentions"`
	Attachments []string  `json:"attachments"`
	System      bool      `json:"system"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewCommentResponse maps a domain comment.
func NewCommentResponse(c *domain.TicketComment) CommentResponse {
	return CommentResponse{
		ID:          c.ID,
		AuthorID:    c.AuthorID,
		Message:     c.Message,
		Mentions:    nonNil(c.Mentions),
		Attachments: nonNil(c.Attachments),
		System:      c.System,
		CreatedAt:   c.CreatedAt,
	}
}

// HistoryResponse is one status transition.
type HistoryResponse struct {
	ID         string               `json:"id"`
	FromStatus *domain.TicketStatus `json:"from_status"`
	ToStatus   domain.TicketStatus  `json:"to_status"`
	ByUserID   string               `json:"by_user_id"`
	Note       *string              `json:"note"`
	CreatedAt  time.Time            `json:"created_at"`
}

// NewHistoryResponses maps a history chain.
func NewHistoryResponses(entries []domain.TicketStatusHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(entries))
	for _, h := range entries {
		out = append(out, HistoryResponse{
			ID:         h.ID,
			FromStatus: h.FromStatus,
			ToStatus:   h.ToStatus,
			ByUserID:   h.ByUserID,
			Note:       h.Note,
			CreatedAt:  h.CreatedAt,
		})
	}
	return out
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketResponse
	Comments []CommentResponse `json:"comments"`
	History  []HistoryResponse `json:"history"`
}

// NewTicketDetailResponse maps a ticket with its thread and history.
func NewTicketDetailResponse(d *service.TicketDetail) TicketDetailResponse {
	comments := make([]CommentResponse, 0, len(d.Comments))
	for i := range d.Comments {
		comments = append(comments, NewCommentResponse(&d.Comments[i]))
	}
	return TicketDetailResponse{
		TicketResponse: NewTicketResponse(d.Ticket),
		Comments:       comments,
		History:        NewHistoryResponses(d.History),
	}
}

// KanbanColumnResponse is one status bucket.
type KanbanColumnResponse struct {
	Status  domain.TicketStatus `json:"status"`
	Count   int                 `json:"count"`
	Tickets []TicketResponse    `json:"tickets"`
}

// KanbanResponse is the full board.
type KanbanResponse struct {
	Columns []KanbanColumnResponse `json:"columns"`
}

// NewKanbanResponse maps the board.
func NewKanbanResponse(b *service.KanbanBoard) KanbanResponse {
	cols := make([]KanbanColumnResponse, 0, len(b.Columns))
	for _, col := range b.Columns {
		cols = append(cols, KanbanColumnResponse{
			Status:  col.Status,
			Count:   col.Count,
			Tickets: newTicketResponses(col.Tickets),
		})
	}
	return KanbanResponse{Columns: cols}
}

// StatsResponse aggregates visible tickets.
type StatsResponse struct {
	Total               int                           `json:"total"`
	Open                int                           `json:"open"`
	Resolved            int                           `json:"resolved"`
	Canceled            int                           `json:"canceled"`
	ClosedOrCanceled    int                           `json:"closed_or_canceled"`
	Overdue             int                           `json:"overdue"`
	OverSLA             int                           `json:"over_sla"`
	RatedCount          int                           `json:"rated_count"`
	AverageSatisfaction *float64                      `json:"average_satisfaction"`
	ByCategory          map[domain.TicketCategory]int `json:"by_category"`
	ByPriority          map[domain.TicketPriority]int `json:"by_priority"`
	ByStatus            map[domain.TicketStatus]int   `json:"by_status"`
}

// NewStatsResponse maps the aggregates.
func NewStatsResponse(s *service.TicketStats) StatsResponse {
	return StatsResponse{
		Total:               s.Total,
		Open:                s.Open,
		Resolved:            s.Resolved,
		Canceled:            s.Canceled,
		ClosedOrCanceled:    s.ClosedOrCanceled,
		Overdue:             s.Overdue,
		OverSLA:             s.OverSLA,
		RatedCount:          s.RatedCount,
		AverageSatisfaction: s.AverageSatisfaction,
		ByCategory:          s.ByCategory,
		ByPriority:          s.ByPriority,
		ByStatus:            s.ByStatus,
	}
}

func enumSlice[T ~string](values []string) []T {
	if len(values) == 0 {
		return nil
	}
	out := make([]T, 0, len(values))
	for _, v := range values {
		out = append(out, T(v))
	}
	return out
}

// parseTime reads an RFC 3339 bound; Validate has already rejected malformed values.
func parseTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
