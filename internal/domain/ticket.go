package domain

import (
	"encoding/json"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew              TicketStatus = "NEW"
	TicketStatusUnderReview      TicketStatus = "UNDER_REVIEW"
	TicketStatusInProgress       TicketStatus = "IN_PROGRESS"
	TicketStatusAwaitingResident TicketStatus = "AWAITING_RESIDENT"
	TicketStatusResolved         TicketStatus = "RESOLVED"
	TicketStatusCanceled         TicketStatus = "CANCELED"
)

// TicketStatuses lists every status in board order.
var TicketStatuses = []TicketStatus{
	TicketStatusNew,
	TicketStatusUnderReview,
	TicketStatusInProgress,
	TicketStatusAwaitingResident,
	TicketStatusResolved,
	TicketStatusCanceled,
}

// TicketPriority enumerates resolution urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
)

// TicketPriorities lists priorities from highest to lowest.
var TicketPriorities = []TicketPriority{
	TicketPriorityHigh,
	TicketPriorityMedium,
	TicketPriorityLow,
}

// TicketCategory classifies the kind of maintenance requested.
type TicketCategory string

const (
	TicketCategoryElectrical TicketCategory = "ELECTRICAL"
	TicketCategoryPlumbing   TicketCategory = "PLUMBING"
	TicketCategoryCleaning   TicketCategory = "CLEANING"
	TicketCategorySecurity   TicketCategory = "SECURITY"
	TicketCategoryOther      TicketCategory = "OTHER"
)

// TicketCategories lists every category.
var TicketCategories = []TicketCategory{
	TicketCategoryElectrical,
	TicketCategoryPlumbing,
	TicketCategoryCleaning,
	TicketCategorySecurity,
	TicketCategoryOther,
}

const (
	DefaultSLAHours = 24
	MinSLAHours     = 1
	MaxSLAHours     = 720
)

// Ticket is the aggregate for maintenance and support requests.
type Ticket struct {
	ID                string
	OrganizationID    string
	UnitID            *string
	Title             string
	Description       string
	Category          TicketCategory
	Location          string
	Tags              []string
	Checklist         json.RawMessage
	Status            TicketStatus
	Priority          TicketPriority
	OpenedBy          string
	AssignedTo        *string
	SLAHours          int
	ClosedAt          *time.Time
	SatisfactionScore *int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusNew:              {TicketStatusUnderReview, TicketStatusInProgress, TicketStatusCanceled},
	TicketStatusUnderReview:      {TicketStatusInProgress, TicketStatusAwaitingResident, TicketStatusNew, TicketStatusCanceled},
	TicketStatusInProgress:       {TicketStatusAwaitingResident, TicketStatusResolved, TicketStatusCanceled},
	TicketStatusAwaitingResident: {TicketStatusInProgress, TicketStatusResolved, TicketStatusCanceled},
	TicketStatusResolved:         {},
	TicketStatusCanceled:         {TicketStatusNew},
}

// IsValid reports whether s is a known status.
func (s TicketStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// AllowedTransitions returns the statuses reachable from s in one step.
func (s TicketStatus) AllowedTransitions() []TicketStatus {
	next := allowedTransitions[s]
	out := make([]TicketStatus, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether next is reachable from s. Self-loops are never allowed.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsOpen reports whether the status is neither RESOLVED nor CANCELED.
func (s TicketStatus) IsOpen() bool {
	return s != TicketStatusResolved && s != TicketStatusCanceled
}

// IsValid reports whether p is a known priority.
func (p TicketPriority) IsValid() bool {
	return p == TicketPriorityLow || p == TicketPriorityMedium || p == TicketPriorityHigh
}

// Rank orders priorities; higher is more urgent.
func (p TicketPriority) Rank() int {
	switch p {
	case TicketPriorityHigh:
		return 3
	case TicketPriorityMedium:
		return 2
	case TicketPriorityLow:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether c is a known category.
func (c TicketCategory) IsValid() bool {
	for _, known := range TicketCategories {
		if known == c {
			return true
		}
	}
	return false
}

// IsValidWalk reports whether statuses, in order, start at NEW and follow the transition table.
func IsValidWalk(statuses []TicketStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	if statuses[0] != TicketStatusNew {
		return false
	}
	for i := 1; i < len(statuses); i++ {
		if !statuses[i-1].CanTransitionTo(statuses[i]) {
			return false
		}
	}
	return true
}
