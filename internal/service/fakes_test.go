package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/condo-service/internal/domain"
	"github.com/spec-kit/condo-service/internal/events"
	"github.com/spec-kit/condo-service/internal/repository"
)

var errStoreDown = errors.New("store unavailable")

// memDB is an in-memory stand-in for Postgres. Conditional writes follow the same
// NotFound / PreconditionFailed contract as the pgx repositories.
type memDB struct {
	mu          sync.Mutex
	tickets     map[string]domain.Ticket
	history     []domain.TicketStatusHistory
	comments    []domain.TicketComment
	memberships []domain.Membership
	units       map[string]domain.Unit
	orgs        map[string]domain.Organization
	users       map[string]domain.User

	// beforeWrite runs ahead of every conditional write, outside the lock.
	beforeWrite func()
	failWrites  bool
}

func newMemDB() *memDB {
	return &memDB{
		tickets: map[string]domain.Ticket{},
		units:   map[string]domain.Unit{},
		orgs:    map[string]domain.Organization{},
		users:   map[string]domain.User{},
	}
}

func (db *memDB) hook() {
	if db.beforeWrite != nil {
		db.beforeWrite()
	}
}

func (db *memDB) ticket(id string) domain.Ticket {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tickets[id]
}

func (db *memDB) historyOf(id string) []domain.TicketStatusHistory {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.TicketStatusHistory
	for _, h := range db.history {
		if h.TicketID == id {
			out = append(out, h)
		}
	}
	return out
}

func (db *memDB) commentsOf(id string) []domain.TicketComment {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.TicketComment
	for _, c := range db.comments {
		if c.TicketID == id {
			out = append(out, c)
		}
	}
	return out
}

func (db *memDB) setStatus(id string, status domain.TicketStatus) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t := db.tickets[id]
	t.Status = status
	db.tickets[id] = t
}

type memTickets struct{ db *memDB }

func (r memTickets) Insert(_ context.Context, ticket *domain.Ticket, initial domain.TicketStatusHistory) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failWrites {
		return errStoreDown
	}
	r.db.tickets[ticket.ID] = *ticket
	r.db.history = append(r.db.history, initial)
	return nil
}

func (r memTickets) FindByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r memTickets) FindMany(_ context.Context, f repository.TicketFilter) ([]domain.Ticket, int, error) {
	all := r.matching(f)
	total := len(all)
	start := min(f.Offset, total)
	end := min(start+f.Limit, total)
	return all[start:end], total, nil
}

func (r memTickets) FindAllVisible(_ context.Context, organizationID string, openedBy *string) ([]domain.Ticket, error) {
	return r.matching(repository.TicketFilter{OrganizationID: organizationID, OpenedBy: openedBy}), nil
}

func (r memTickets) matching(f repository.TicketFilter) []domain.Ticket {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []domain.Ticket
	for _, t := range r.db.tickets {
		if t.OrganizationID != f.OrganizationID {
			continue
		}
		if f.OpenedBy != nil && t.OpenedBy != *f.OpenedBy {
			continue
		}
		if f.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *f.AssignedTo) {
			continue
		}
		if f.UnitID != nil && (t.UnitID == nil || *t.UnitID != *f.UnitID) {
			continue
		}
		if len(f.Statuses) > 0 && !contains(f.Statuses, t.Status) {
			continue
		}
		if len(f.Priorities) > 0 && !contains(f.Priorities, t.Priority) {
			continue
		}
		if len(f.Categories) > 0 && !contains(f.Categories, t.Category) {
			continue
		}
		if f.SearchTerm != nil {
			term := strings.ToLower(*f.SearchTerm)
			if !strings.Contains(strings.ToLower(t.Title), term) && !strings.Contains(strings.ToLower(t.Description), term) {
				continue
			}
		}
		if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// current returns the row for a conditional write or the repository miss outcome.
func (r memTickets) current(id string, expected *domain.TicketStatus) (domain.Ticket, error) {
	if r.db.failWrites {
		return domain.Ticket{}, errStoreDown
	}
	t, ok := r.db.tickets[id]
	if !ok {
		return t, repository.ErrNotFound
	}
	if expected != nil && t.Status != *expected {
		return t, repository.ErrPreconditionFailed
	}
	return t, nil
}

func (r memTickets) UpdateStatus(_ context.Context, change repository.StatusChange) (*domain.Ticket, error) {
	r.db.hook()
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	t, err := r.current(change.TicketID, &change.Expected)
	if err != nil {
		return nil, err
	}
	t.Status = change.Next
	t.ClosedAt = change.ClosedAt
	t.UpdatedAt = change.At
	r.db.tickets[t.ID] = t
	r.db.history = append(r.db.history, change.History)
	return &t, nil
}

func (r memTickets) UpdateFields(_ context.Context, id string, expected *domain.TicketStatus, p repository.TicketPatch) (*domain.Ticket, error) {
	r.db.hook()
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	t, err := r.current(id, expected)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Location != nil {
		t.Location = *p.Location
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
	if p.Checklist != nil {
		t.Checklist = *p.Checklist
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.SLAHours != nil {
		t.SLAHours = *p.SLAHours
	}
	t.UpdatedAt = p.UpdatedAt
	r.db.tickets[id] = t
	return &t, nil
}

func (r memTickets) SetAssignee(_ context.Context, change repository.AssigneeChange) (*domain.Ticket, error) {
	r.db.hook()
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	t, err := r.current(change.TicketID, &change.Expected)
	if err != nil {
		return nil, err
	}
	assignee := change.AssigneeID
	t.AssignedTo = &assignee
	if change.Advance != nil {
		t.Status = *change.Advance
		r.db.history = append(r.db.history, *change.History)
	}
	t.UpdatedAt = change.At
	r.db.tickets[t.ID] = t
	return &t, nil
}

func (r memTickets) SetSatisfaction(_ context.Context, id string, score int, at time.Time, comment *domain.TicketComment) (*domain.Ticket, error) {
	r.db.hook()
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	t, err := r.current(id, nil)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.TicketStatusResolved || t.SatisfactionScore != nil {
		return nil, repository.ErrPreconditionFailed
	}
	t.SatisfactionScore = &score
	t.UpdatedAt = at
	r.db.tickets[id] = t
	if comment != nil {
		r.db.comments = append(r.db.comments, *comment)
	}
	return &t, nil
}

type memHistory struct{ db *memDB }

func (r memHistory) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketStatusHistory, error) {
	return r.db.historyOf(ticketID), nil
}

type memComments struct{ db *memDB }

func (r memComments) Create(_ context.Context, comment *domain.TicketComment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.comments = append(r.db.comments, *comment)
	return nil
}

func (r memComments) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketComment, error) {
	return r.db.commentsOf(ticketID), nil
}

type memMemberships struct{ db *memDB }

func (r memMemberships) FindActive(_ context.Context, userID, organizationID string) (*domain.Membership, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, m := range r.db.memberships {
		if m.UserID == userID && m.OrganizationID == organizationID && m.IsActive {
			m := m
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memMemberships) FilterActiveMembers(_ context.Context, organizationID string, userIDs []string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []string
	for _, m := range r.db.memberships {
		if m.OrganizationID == organizationID && m.IsActive && contains(userIDs, m.UserID) {
			out = append(out, m.UserID)
		}
	}
	return out, nil
}

func (r memMemberships) HasActiveRole(_ context.Context, userID string, role domain.Role) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, m := range r.db.memberships {
		if m.UserID == userID && m.Role == role && m.IsActive {
			return true, nil
		}
	}
	return false, nil
}

type memUnits struct{ db *memDB }

func (r memUnits) FindByID(_ context.Context, id string) (*domain.Unit, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.units[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

type memOrgs struct{ db *memDB }

func (r memOrgs) FindByID(_ context.Context, id string) (*domain.Organization, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.orgs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

type memUsers struct{ db *memDB }

func (r memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// recordingDispatcher captures published events instead of delivering them.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, string, events.EventHandler) {}

func (d *recordingDispatcher) ofType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, e := range d.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (d *recordingDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}

type transitionCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *transitionCounter) TicketTransition(from, to domain.TicketStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[string(from)+"->"+string(to)]++
}

func (c *transitionCounter) count(from, to domain.TicketStatus) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[string(from)+"->"+string(to)]
}

// fixture is one organization with a member of every role plus an outsider.
type fixture struct {
	t          *testing.T
	db         *memDB
	dispatcher *recordingDispatcher
	metrics    *transitionCounter
	svc        *TicketService
	now        time.Time

	org      string
	otherOrg string
	unit     string
	admin    string
	sindico  string
	zelador  string
	zelador2 string
	portaria string
	morador  string
	morador2 string
	outsider string
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLogger(t, zap.NewNop())
}

func newFixtureWithLogger(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()
	f := &fixture{
		t:          t,
		db:         newMemDB(),
		dispatcher: &recordingDispatcher{},
		metrics:    &transitionCounter{},
		now:        time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		org:        uuid.NewString(),
		otherOrg:   uuid.NewString(),
		unit:       uuid.NewString(),
	}
	f.db.orgs[f.org] = domain.Organization{ID: f.org, Name: "Residencial Aurora", IsActive: true}
	f.db.orgs[f.otherOrg] = domain.Organization{ID: f.otherOrg, Name: "Edificio Solar", IsActive: true}
	f.db.units[f.unit] = domain.Unit{ID: f.unit, OrganizationID: f.org, Block: "A", Number: "101", IsActive: true}

	f.admin = f.addUser("Platform Admin")
	f.sindico = f.member("Sindica Ana", domain.RoleSindico)
	f.zelador = f.member("Zelador Joao", domain.RoleZelador)
	f.zelador2 = f.member("Zelador Pedro", domain.RoleZelador)
	f.portaria = f.member("Portaria Rita", domain.RolePortaria)
	f.morador = f.member("Morador Caio", domain.RoleMorador)
	f.morador2 = f.member("Moradora Bia", domain.RoleMorador)
	f.outsider = f.addUser("Visitante")
	f.db.memberships = append(f.db.memberships, domain.Membership{
		ID: uuid.NewString(), UserID: f.outsider, OrganizationID: f.otherOrg, Role: domain.RoleSindico, IsActive: true,
	})

	f.svc = NewTicketService(TicketDependencies{
		TicketRepo:       memTickets{f.db},
		HistoryRepo:      memHistory{f.db},
		CommentRepo:      memComments{f.db},
		MembershipRepo:   memMemberships{f.db},
		UnitRepo:         memUnits{f.db},
		OrganizationRepo: memOrgs{f.db},
		UserRepo:         memUsers{f.db},
		Dispatcher:       f.dispatcher,
		Metrics:          f.metrics,
		Logger:           logger,
		Clock:            func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) addUser(name string) string {
	id := uuid.NewString()
	f.db.users[id] = domain.User{ID: id, Name: name, Status: domain.UserStatusActive}
	return id
}

func (f *fixture) member(name string, role domain.Role) string {
	id := f.addUser(name)
	f.db.memberships = append(f.db.memberships, domain.Membership{
		ID: uuid.NewString(), UserID: id, OrganizationID: f.org, Role: role, IsActive: true,
	})
	return id
}

func (f *fixture) as(userID string) domain.Principal {
	return domain.Principal{UserID: userID}
}

func (f *fixture) asAdmin() domain.Principal {
	return domain.Principal{UserID: f.admin, PlatformAdmin: true}
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// open creates a ticket as userID and fails the test on error.
func (f *fixture) open(userID, title string, priority domain.TicketPriority) *domain.Ticket {
	f.t.Helper()
	ticket, err := f.svc.Create(context.Background(), f.as(userID), f.org, CreateTicketInput{
		Title:    title,
		Priority: priority,
	})
	if err != nil {
		f.t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

// walk drives a ticket through statuses as the sindico.
func (f *fixture) walk(ticketID string, statuses ...domain.TicketStatus) *domain.Ticket {
	f.t.Helper()
	var ticket *domain.Ticket
	for _, st := range statuses {
		var err error
		ticket, err = f.svc.ChangeStatus(context.Background(), f.as(f.sindico), ticketID, st, "")
		if err != nil {
			f.t.Fatalf("move ticket to %s: %v", st, err)
		}
	}
	return ticket
}
