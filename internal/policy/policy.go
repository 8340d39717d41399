// Package policy decides whether an actor may perform a ticket operation.
// Evaluate is a pure function: it performs no I/O and keeps no state.
package policy

import (
	"github.com/spec-kit/condo-service/internal/domain"
)

// Operation identifies what the actor is attempting.
type Operation string

const (
	OpCreate           Operation = "CREATE"
	OpList             Operation = "LIST"
	OpView             Operation = "VIEW"
	OpEditFields       Operation = "EDIT_FIELDS"
	OpAssign           Operation = "ASSIGN"
	OpChangeStatus     Operation = "CHANGE_STATUS"
	OpRateSatisfaction Operation = "RATE_SATISFACTION"
	OpComment          Operation = "COMMENT"
)

// Reason is the stable code attached to a denial.
type Reason string

const (
	ReasonNotAMember             Reason = "NOT_A_MEMBER"
	ReasonNotVisible             Reason = "TICKET_NOT_VISIBLE"
	ReasonEditNotAllowed         Reason = "EDIT_NOT_ALLOWED"
	ReasonAssignNotAllowed       Reason = "ASSIGN_NOT_ALLOWED"
	ReasonAssigneeNotMember      Reason = "ASSIGNEE_NOT_MEMBER"
	ReasonStatusChangeNotAllowed Reason = "STATUS_CHANGE_NOT_ALLOWED"
	ReasonRatingNotAllowed       Reason = "RATING_NOT_ALLOWED"
	ReasonTicketNotResolved      Reason = "TICKET_NOT_RESOLVED"
	ReasonUnknownOperation       Reason = "UNKNOWN_OPERATION"
)

// Condition names the rule that justified an allow.
type Condition string

const (
	CondPlatformAdmin  Condition = "PLATFORM_ADMIN"
	CondManagementRole Condition = "MANAGEMENT_ROLE"
	CondMember         Condition = "MEMBER"
	CondOwnTicketsOnly Condition = "OWN_TICKETS_ONLY"
	CondOpener         Condition = "OPENER"
	CondOpenerWhileNew Condition = "OPENER_WHILE_NEW"
	CondAssignee       Condition = "ASSIGNEE"
)

// Actor is the caller together with its membership in the target organization.
// Membership is nil when the caller holds no membership there.
type Actor struct {
	UserID        string
	PlatformAdmin bool
	Membership    *domain.Membership
}

// TicketSnapshot carries the ticket fields the rules depend on.
type TicketSnapshot struct {
	OrganizationID string
	OpenedBy       string
	AssignedTo     *string
	Status         domain.TicketStatus
}

// Request describes one authorization question.
// OrganizationID is used when Ticket is nil (create, list).
type Request struct {
	Operation      Operation
	OrganizationID string
	Ticket         *TicketSnapshot
	Assignee       *domain.Membership
}

// Decision is the evaluator's answer.
type Decision struct {
	Allowed   bool
	Reason    Reason
	Condition Condition
	Role      domain.Role
}

// OwnTicketsOnly reports whether a list/view decision is restricted to tickets the actor opened.
func (d Decision) OwnTicketsOnly() bool {
	return d.Allowed && d.Condition == CondOwnTicketsOnly
}

// Snapshot extracts the policy-relevant fields of a ticket.
func Snapshot(t *domain.Ticket) *TicketSnapshot {
	return &TicketSnapshot{
		OrganizationID: t.OrganizationID,
		OpenedBy:       t.OpenedBy,
		AssignedTo:     t.AssignedTo,
		Status:         t.Status,
	}
}

// ManagementRoles are the roles with unconditional edit, assign and status rights.
var ManagementRoles = []domain.Role{domain.RoleAdminGlobal, domain.RoleSindico, domain.RoleZelador}

// Evaluate applies the rules in precedence order; the first match wins.
func Evaluate(actor Actor, req Request) Decision {
	orgID := req.OrganizationID
	if req.Ticket != nil {
		orgID = req.Ticket.OrganizationID
	}

	role, scoped := effectiveRole(actor, orgID)
	if !scoped {
		return deny(ReasonNotAMember, "")
	}

	switch req.Operation {
	case OpCreate:
		return allow(CondMember, role)
	case OpList:
		if role == domain.RoleMorador {
			return allow(CondOwnTicketsOnly, role)
		}
		return allow(membershipCondition(actor, role), role)
	case OpView, OpComment:
		return evaluateView(actor, role, req.Ticket)
	case OpEditFields:
		return evaluateEdit(actor, role, req.Ticket)
	case OpAssign:
		return evaluateAssign(role, req)
	case OpChangeStatus:
		return evaluateStatusChange(actor, role, req.Ticket)
	case OpRateSatisfaction:
		return evaluateRating(actor, role, req.Ticket)
	default:
		return deny(ReasonUnknownOperation, role)
	}
}

func effectiveRole(actor Actor, orgID string) (domain.Role, bool) {
	if actor.PlatformAdmin {
		return domain.RoleAdminGlobal, true
	}
	m := actor.Membership
	if m == nil || !m.IsActive || m.UserID != actor.UserID || m.OrganizationID != orgID {
		return "", false
	}
	return m.Role, true
}

func membershipCondition(actor Actor, role domain.Role) Condition {
	if actor.PlatformAdmin {
		return CondPlatformAdmin
	}
	if role.IsManagement() {
		return CondManagementRole
	}
	return CondMember
}

func evaluateView(actor Actor, role domain.Role, t *TicketSnapshot) Decision {
	if t == nil {
		return deny(ReasonNotVisible, role)
	}
	if role == domain.RoleMorador {
		if t.OpenedBy != actor.UserID {
			return deny(ReasonNotVisible, role)
		}
		return allow(CondOpener, role)
	}
	return allow(membershipCondition(actor, role), role)
}

func evaluateEdit(actor Actor, role domain.Role, t *TicketSnapshot) Decision {
	if t == nil {
		return deny(ReasonEditNotAllowed, role)
	}
	if role.IsManagement() {
		return allow(membershipCondition(actor, role), role)
	}
	if t.OpenedBy == actor.UserID && t.Status == domain.TicketStatusNew {
		return allow(CondOpenerWhileNew, role)
	}
	return deny(ReasonEditNotAllowed, role)
}

func evaluateAssign(role domain.Role, req Request) Decision {
	if !role.IsManagement() || req.Ticket == nil {
		return deny(ReasonAssignNotAllowed, role)
	}
	a := req.Assignee
	if a == nil || !a.IsActive || a.OrganizationID != req.Ticket.OrganizationID {
		return deny(ReasonAssigneeNotMember, role)
	}
	return allow(CondManagementRole, role)
}

func evaluateStatusChange(actor Actor, role domain.Role, t *TicketSnapshot) Decision {
	if t == nil {
		return deny(ReasonStatusChangeNotAllowed, role)
	}
	if role.IsManagement() {
		return allow(membershipCondition(actor, role), role)
	}
	if t.AssignedTo != nil && *t.AssignedTo == actor.UserID {
		return allow(CondAssignee, role)
	}
	return deny(ReasonStatusChangeNotAllowed, role)
}

func evaluateRating(actor Actor, role domain.Role, t *TicketSnapshot) Decision {
	if t == nil || t.OpenedBy != actor.UserID {
		return deny(ReasonRatingNotAllowed, role)
	}
	if t.Status != domain.TicketStatusResolved {
		return deny(ReasonTicketNotResolved, role)
	}
	return allow(CondOpener, role)
}

func allow(cond Condition, role domain.Role) Decision {
	return Decision{Allowed: true, Condition: cond, Role: role}
}

func deny(reason Reason, role domain.Role) Decision {
	return Decision{Allowed: false, Reason: reason, Role: role}
}
