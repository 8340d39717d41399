package events

import (
	"time"

	"github.com/spec-kit/condo-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketUpdated       EventType = "ticket_updated"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketCommentAdded  EventType = "ticket_comment_added"
	EventTicketRated         EventType = "ticket_rated"
	EventGamificationAward   EventType = "gamification_award"
)

// AwardKind names a gamification achievement trigger.
type AwardKind string

const (
	AwardTicketOpened    AwardKind = "ticket_opened"
	AwardTicketCompleted AwardKind = "ticket_completed"
)

// Audience scopes a realtime event: members holding any of Roles see it, and so do UserIDs.
type Audience struct {
	Roles   []domain.Role `json:"roles"`
	UserIDs []string      `json:"user_ids"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	OrganizationID string    `json:"organization_id"`
	TicketID       string    `json:"ticket_id"`
	ActorID        string    `json:"actor_id"`
	Timestamp      time.Time `json:"timestamp"`
	Audience       Audience  `json:"audience"`
	Payload        any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title    string                `json:"title"`
	Category domain.TicketCategory `json:"category"`
	Priority domain.TicketPriority `json:"priority"`
	UnitID   *string               `json:"unit_id,omitempty"`
	OpenedBy string                `json:"opened_by"`
}

// TicketUpdatedPayload lists the fields an edit changed.
type TicketUpdatedPayload struct {
	Fields []string `json:"fields"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID string              `json:"assignee_id"`
	Status     domain.TicketStatus `json:"status"`
	Advanced   bool                `json:"advanced"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Note      string              `json:"note,omitempty"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	CommentID   string   `json:"comment_id"`
	AuthorID    string   `json:"author_id"`
	BodyPreview string   `json:"body_preview"`
	Mentions    []string `json:"mentions,omitempty"`
}

// TicketRatedPayload payload.
type TicketRatedPayload struct {
	Score int `json:"score"`
}

// AwardPayload is the argument set of a gamification award.
type AwardPayload struct {
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	Kind           AwardKind `json:"kind"`
	TicketID       string    `json:"ticket_id"`
}
