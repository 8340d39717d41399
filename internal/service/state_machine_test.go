package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/condo-service/internal/domain"
	"github.com/spec-kit/condo-service/internal/events"
	apperrors "github.com/spec-kit/condo-service/pkg/util/errorutil"
)

func TestAssign_AdvancesNewTicket(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(f.morador, "Elevador parado", domain.TicketPriorityHigh)
	f.dispatcher.reset()

	updated, err := f.svc.Assign(context.Background(), f.as(f.zelador), ticket.ID, f.zelador2)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusUnderReview, updated.Status)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, f.zelador2, *updated.AssignedTo)

	history := f.db.historyOf(ticket.ID)
	require.Len(t, history, 2)
	last := history[1]
	require.NotNil(t, last.FromStatus)
	assert.Equal(t, domain.TicketStatusNew, *last.FromStatus)
	assert.Equal(t, domain.TicketStatusUnderReview, last.ToStatus)
	assert.Equal(t, f.zelador, last.ByUserID)
	require.NotNil(t, last.Note)
	assert.Equal(t, "assigned to Zelador Pedro", *last.Note)

	assigned := f.dispatcher.ofType(events.EventTicketAssigned)
	require.Len(t, assigned, 1)
	payload := assigned[0].Payload.(events.TicketAssignedPayload)
	assert.Equal(t, f.zelador2, payload.AssigneeID)
	assert.True(t, payload.Advanced)
	assert.Len(t, f.dispatcher.ofType(events.EventTicketStatusChanged), 1)
	assert.Equal(t, 1, f.metrics.count(domain.TicketStatusNew, domain.TicketStatusUnderReview))
	assertConsistent(t, f)
}

func TestAssign_KeepsStatusPastNew(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(f.morador, "Elevador parado", domain.TicketPriorityHigh)
	f.walk(ticket.ID, domain.TicketStatusInProgress)
	f.dispatcher.reset()

	updated, err := f.svc.Assign(context.Background(), f.as(f.sindico), ticket.ID, f.portaria)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	assert.Equal(t, f.portaria, *updated.AssignedTo)
	assert.Len(t, f.db.historyOf(ticket.ID), 2)
	assert.Empty(t, f.dispatcher.ofType(events.EventTicketStatusChanged))
	assert.False(t, f.dispatcher.ofType(events.EventTicketAssigned)[0].Payload.(events.TicketAssignedPayload).Advanced)
}

func TestAssign_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.open(f.morador, "Elevador parado", domain.TicketPriorityHigh)
	resolved := f.open(f.sindico, "Trocar lampada", domain.TicketPriorityLow)
	f.walk(resolved.ID, domain.TicketStatusInProgress, domain.TicketStatusResolved)

	cases := []struct {
		name     string
		actor    string
		ticketID string
		assignee string
		code     string
		reason   string
	}{
		{"assignee outside organization", f.zelador, ticket.ID, f.outsider, apperrors.CodeNotFound, "ASSIGNEE_NOT_MEMBER"},
		{"malformed assignee", f.zelador, ticket.ID, "joao", apperrors.CodeNotFound, "ASSIGNEE_NOT_MEMBER"},
		{"resident opener", f.morador, ticket.ID, f.zelador, apperrors.CodeForbidden, "ASSIGN_NOT_ALLOWED"},
		{"doorman", f.portaria, ticket.ID, f.zelador, apperrors.CodeForbidden, "ASSIGN_NOT_ALLOWED"},
		{"resident who cannot see the ticket", f.morador2, ticket.ID, f.zelador, apperrors.CodeNotFound, "TICKET_NOT_VISIBLE"},
		{"terminal ticket", f.sindico, resolved.ID, f.zelador, apperrors.CodeInvalidState, "TICKET_CLOSED"},
		{"unknown ticket", f.sindico, uuid.NewString(), f.zelador, apperrors.CodeNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Assign(ctx, f.as(tc.actor), tc.ticketID, tc.assignee)
			requireDomainError(t, err, tc.code, tc.reason)
		})
	}

	assert.Nil(t, f.db.ticket(ticket.ID).AssignedTo)
	assert.Equal(t, domain.TicketStatusNew, f.db.ticket(ticket.ID).Status)
}

func TestChangeStatus_AssigneeResolves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.open(f.morador, "Curto na bomba", domain.TicketPriorityHigh)

	_, err := f.svc.Assign(ctx, f.as(f.sindico), ticket.ID, f.portaria)
	require.NoError(t, err)
	_, err = f.svc.ChangeStatus(ctx, f.as(f.portaria), ticket.ID, domain.TicketStatusInProgress, "")
	require.NoError(t, err)

	f.advance(3 * time.Hour)
	f.dispatcher.reset()
	resolved, err := f.svc.Close(ctx, f.as(f.portaria), ticket.ID, "bomba trocada")
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ClosedAt)
	assert.True(t, f.now.Equal(*resolved.ClosedAt))

	history := f.db.historyOf(ticket.ID)
	last := history[len(history)-1]
	assert.Equal(t, domain.TicketStatusInProgress, *last.FromStatus)
	assert.Equal(t, domain.TicketStatusResolved, last.ToStatus)
	assert.Equal(t, "bomba trocada", *last.Note)
	assert.Equal(t, []domain.TicketStatus{
		domain.TicketStatusNew,
		domain.TicketStatusUnderReview,
		domain.TicketStatusInProgress,
		domain.TicketStatusResolved,
	}, domain.StatusWalk(history))

	awards := f.dispatcher.ofType(events.EventGamificationAward)
	require.Len(t, awards, 1)
	award := awards[0].Payload.(events.AwardPayload)
	assert.Equal(t, events.AwardTicketCompleted, award.Kind)
	assert.Equal(t, f.portaria, award.UserID)

	changed := f.dispatcher.ofType(events.EventTicketStatusChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, domain.TicketStatusInProgress, changed[0].Payload.(events.TicketStatusChangedPayload).OldStatus)
	assert.Equal(t, 1, f.metrics.count(domain.TicketStatusInProgress, domain.TicketStatusResolved))
	assertConsistent(t, f)
}

func TestChangeStatus_ResidentAssigneeMayMoveHiddenTicket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.open(f.morador, "Cano estourado", domain.TicketPriorityHigh)
	_, err := f.svc.Assign(ctx, f.as(f.sindico), ticket.ID, f.morador2)
	require.NoError(t, err)

	moved, err := f.svc.ChangeStatus(ctx, f.as(f.morador2), ticket.ID, domain.TicketStatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, moved.Status)

	_, err = f.svc.Get(ctx, f.as(f.morador2), ticket.ID)
	requireDomainError(t, err, apperrors.CodeNotFound, "")
}

func TestChangeStatus_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.open(f.morador, "Portao quebrado", domain.TicketPriorityMedium)

	cases := []struct {
		name   string
		actor  string
		next   domain.TicketStatus
		code   string
		reason string
	}{
		{"self transition", f.sindico, domain.TicketStatusNew, apperrors.CodeInvalidTransition, ""},
		{"skips the workflow", f.sindico, domain.TicketStatusResolved, apperrors.CodeInvalidTransition, ""},
		{"unknown status", f.sindico, "DONE", apperrors.CodeValidation, ""},
		{"transition is checked before the role", f.morador, domain.TicketStatusResolved, apperrors.CodeInvalidTransition, ""},
		{"opener without assignment", f.morador, domain.TicketStatusCanceled, apperrors.CodeForbidden, "STATUS_CHANGE_NOT_ALLOWED"},
		{"doorman without assignment", f.portaria, domain.TicketStatusCanceled, apperrors.CodeForbidden, "STATUS_CHANGE_NOT_ALLOWED"},
		{"resident who cannot see the ticket", f.morador2, domain.TicketStatusCanceled, apperrors.CodeNotFound, "TICKET_NOT_VISIBLE"},
		{"non member", f.outsider, domain.TicketStatusCanceled, apperrors.CodeNotFound, "NOT_A_MEMBER"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.ChangeStatus(ctx, f.as(tc.actor), ticket.ID, tc.next, "")
			requireDomainError(t, err, tc.code, tc.reason)
		})
	}

	assert.Equal(t, domain.TicketStatusNew, f.db.ticket(ticket.ID).Status)
	assert.Len(t, f.db.historyOf(ticket.ID), 1)
}

func TestChangeStatus_InvalidTransitionDetails(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(f.sindico, "Portao quebrado", domain.TicketPriorityMedium)
	f.walk(ticket.ID, domain.TicketStatusInProgress, domain.TicketStatusResolved)

	_, err := f.svc.ChangeStatus(context.Background(), f.as(f.sindico), ticket.ID, domain.TicketStatusCanceled, "")
	domainErr := requireDomainError(t, err, apperrors.CodeInvalidTransition, "")
	assert.Equal(t, domain.TicketStatusResolved, domainErr.Details["current_status"])
	assert.Equal(t, domain.TicketStatusCanceled, domainErr.Details["requested_status"])
	assert.Empty(t, domainErr.Details["allowed"])
}

func TestChangeStatus_ReopenKeepsAssignee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.open(f.morador, "Portao quebrado", domain.TicketPriorityMedium)
	_, err := f.svc.Assign(ctx, f.as(f.sindico), ticket.ID, f.zelador)
	require.NoError(t, err)

	f.walk(ticket.ID, domain.TicketStatusCanceled)
	reopened := f.walk(ticket.ID, domain.TicketStatusNew)

	assert.Equal(t, domain.TicketStatusNew, reopened.Status)
	require.NotNil(t, reopened.AssignedTo)
	assert.Equal(t, f.zelador, *reopened.AssignedTo)
	assert.Nil(t, reopened.ClosedAt)
	assertConsistent(t, f)
}

func TestChangeStatus_LostConditionalWrite(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(f.sindico, "Portao quebrado", domain.TicketPriorityMedium)
	f.walk(ticket.ID, domain.TicketStatusInProgress)
	f.db.beforeWrite = func() {
		f.db.beforeWrite = nil
		f.db.setStatus(ticket.ID, domain.TicketStatusAwaitingResident)
	}

	_, err := f.svc.Close(context.Background(), f.as(f.sindico), ticket.ID, "")
	domainErr := requireDomainError(t, err, apperrors.CodeInvalidTransition, "")
	assert.Equal(t, domain.TicketStatusInProgress, domainErr.Details["expected_status"])
	assert.Nil(t, f.db.ticket(ticket.ID).ClosedAt)
	assert.Len(t, f.db.historyOf(ticket.ID), 2)
}

func TestChangeStatus_ConcurrentTerminalMoves(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 25; i++ {
		ticket := f.open(f.sindico, "Vazamento", domain.TicketPriorityMedium)
		f.walk(ticket.ID, domain.TicketStatusInProgress)

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, 2)
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, errs[0] = f.svc.Close(context.Background(), f.as(f.sindico), ticket.ID, "")
		}()
		go func() {
			defer wg.Done()
			<-start
			_, errs[1] = f.svc.ChangeStatus(context.Background(), f.as(f.zelador), ticket.ID, domain.TicketStatusCanceled, "")
		}()
		close(start)
		wg.Wait()

		failures := 0
		for _, err := range errs {
			if err != nil {
				failures++
				requireDomainError(t, err, apperrors.CodeInvalidTransition, "")
			}
		}
		require.Equal(t, 1, failures)

		final := f.db.ticket(ticket.ID)
		assert.False(t, final.Status.IsOpen())
		assert.Len(t, f.db.historyOf(ticket.ID), 3)
	}
	assertConsistent(t, f)
}

func TestChangeStatus_FailedWriteLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ticket := f.open(f.sindico, "Vazamento", domain.TicketPriorityMedium)
	f.dispatcher.reset()
	f.db.failWrites = true

	_, err := f.svc.ChangeStatus(context.Background(), f.as(f.sindico), ticket.ID, domain.TicketStatusInProgress, "")
	requireDomainError(t, err, apperrors.CodeInternal, "")

	assert.Equal(t, domain.TicketStatusNew, f.db.ticket(ticket.ID).Status)
	assert.Len(t, f.db.historyOf(ticket.ID), 1)
	assert.Empty(t, f.dispatcher.ofType(events.EventTicketStatusChanged))
	assert.Zero(t, f.metrics.count(domain.TicketStatusNew, domain.TicketStatusInProgress))
}
