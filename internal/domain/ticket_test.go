package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicketStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from TicketStatus
		to   []TicketStatus
	}{
		{TicketStatusNew, []TicketStatus{TicketStatusUnderReview, TicketStatusInProgress, TicketStatusCanceled}},
		{TicketStatusUnderReview, []TicketStatus{TicketStatusInProgress, TicketStatusAwaitingResident, TicketStatusNew, TicketStatusCanceled}},
		{TicketStatusInProgress, []TicketStatus{TicketStatusAwaitingResident, TicketStatusResolved, TicketStatusCanceled}},
		{TicketStatusAwaitingResident, []TicketStatus{TicketStatusInProgress, TicketStatusResolved, TicketStatusCanceled}},
		{TicketStatusResolved, nil},
		{TicketStatusCanceled, []TicketStatus{TicketStatusNew}},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			allowed := map[TicketStatus]bool{}
			for _, s := range tt.to {
				allowed[s] = true
			}
			for _, candidate := range TicketStatuses {
				assert.Equal(t, allowed[candidate], tt.from.CanTransitionTo(candidate), "%s -> %s", tt.from, candidate)
			}
			assert.ElementsMatch(t, tt.to, tt.from.AllowedTransitions())
		})
	}
}

func TestTicketStatus_NoSelfLoops(t *testing.T) {
	for _, s := range TicketStatuses {
		assert.False(t, s.CanTransitionTo(s), string(s))
	}
}

func TestTicketStatus_AllowedTransitionsIsACopy(t *testing.T) {
	next := TicketStatusNew.AllowedTransitions()
	next[0] = TicketStatusResolved
	assert.False(t, TicketStatusNew.CanTransitionTo(TicketStatusResolved))
}

func TestTicketStatus_IsOpen(t *testing.T) {
	assert.True(t, TicketStatusNew.IsOpen())
	assert.True(t, TicketStatusAwaitingResident.IsOpen())
	assert.False(t, TicketStatusResolved.IsOpen())
	assert.False(t, TicketStatusCanceled.IsOpen())
	assert.False(t, TicketStatus("ARCHIVED").IsValid())
}

func TestTicketPriority_Rank(t *testing.T) {
	assert.Greater(t, TicketPriorityHigh.Rank(), TicketPriorityMedium.Rank())
	assert.Greater(t, TicketPriorityMedium.Rank(), TicketPriorityLow.Rank())
	assert.Zero(t, TicketPriority("URGENT").Rank())
	assert.False(t, TicketPriority("URGENT").IsValid())
}

func TestTicketCategory_IsValid(t *testing.T) {
	for _, c := range TicketCategories {
		assert.True(t, c.IsValid())
	}
	assert.False(t, TicketCategory("GARDEN").IsValid())
}

func TestIsValidWalk(t *testing.T) {
	tests := []struct {
		name string
		walk []TicketStatus
		want bool
	}{
		{"empty", nil, true},
		{"created only", []TicketStatus{TicketStatusNew}, true},
		{"happy path", []TicketStatus{TicketStatusNew, TicketStatusUnderReview, TicketStatusInProgress, TicketStatusAwaitingResident, TicketStatusResolved}, true},
		{"reopened", []TicketStatus{TicketStatusNew, TicketStatusCanceled, TicketStatusNew, TicketStatusInProgress}, true},
		{"does not start at new", []TicketStatus{TicketStatusUnderReview}, false},
		{"skips review to resolved", []TicketStatus{TicketStatusNew, TicketStatusResolved}, false},
		{"leaves resolved", []TicketStatus{TicketStatusNew, TicketStatusInProgress, TicketStatusResolved, TicketStatusInProgress}, false},
		{"self loop", []TicketStatus{TicketStatusNew, TicketStatusNew}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidWalk(tt.walk))
		})
	}
}

func TestStatusWalk(t *testing.T) {
	from := TicketStatusNew
	entries := []TicketStatusHistory{
		{ToStatus: TicketStatusNew},
		{FromStatus: &from, ToStatus: TicketStatusUnderReview},
	}
	assert.Equal(t, []TicketStatus{TicketStatusNew, TicketStatusUnderReview}, StatusWalk(entries))
}
