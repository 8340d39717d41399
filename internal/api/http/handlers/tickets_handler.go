package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/condo-service/internal/api/dto"
	"github.com/spec-kit/condo-service/internal/auth"
	"github.com/spec-kit/condo-service/internal/domain"
	"github.com/spec-kit/condo-service/internal/service"
	apperrors "github.com/spec-kit/condo-service/pkg/util/errorutil"
)

// TicketEngine is the workflow surface the handlers drive.
type TicketEngine interface {
	Create(ctx context.Context, principal domain.Principal, organizationID string, input service.CreateTicketInput) (*domain.Ticket, error)
	Update(ctx context.Context, principal domain.Principal, ticketID string, input service.UpdateTicketInput) (*domain.Ticket, error)
	Get(ctx context.Context, principal domain.Principal, ticketID string) (*service.TicketDetail, error)
	History(ctx context.Context, principal domain.Principal, ticketID string) ([]domain.TicketStatusHistory, error)
	List(ctx context.Context, principal domain.Principal, organizationID string, input service.ListTicketsInput) (*service.TicketPage, error)
	Assign(ctx context.Context, principal domain.Principal, ticketID, assigneeID string) (*domain.Ticket, error)
	ChangeStatus(ctx context.Context, principal domain.Principal, ticketID string, next domain.TicketStatus, note string) (*domain.Ticket, error)
	Close(ctx context.Context, principal domain.Principal, ticketID, note string) (*domain.Ticket, error)
	RateSatisfaction(ctx context.Context, principal domain.Principal, ticketID string, score int, comment string) (*domain.Ticket, error)
	AddComment(ctx context.Context, principal domain.Principal, ticketID string, input service.AddCommentInput) (*domain.TicketComment, error)
	Kanban(ctx context.Context, principal domain.Principal, organizationID string) (*service.KanbanBoard, error)
	Stats(ctx context.Context, principal domain.Principal, organizationID string) (*service.TicketStats, error)
}

// TicketsHandler exposes the ticket workflow over HTTP.
type TicketsHandler struct {
	engine TicketEngine
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(engine TicketEngine) *TicketsHandler {
	return &TicketsHandler{engine: engine}
}

// CreateTicket POST /organizations/:orgId/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.engine.Create(c.UserContext(), principal, c.Params("orgId"), req.ToInput())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTickets GET /organizations/:orgId/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var query dto.TicketListQuery
	if err := c.QueryParser(&query); err != nil {
		return apperrors.NewValidationError("invalid query", map[string]any{"error": err.Error()})
	}
	if err := dto.Validate(query); err != nil {
		return err
	}
	page, err := h.engine.List(c.UserContext(), principal, c.Params("orgId"), query.ToInput())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketPageResponse(page)})
}

// Kanban GET /organizations/:orgId/tickets/kanban.
func (h *TicketsHandler) Kanban(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	board, err := h.engine.Kanban(c.UserContext(), principal, c.Params("orgId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewKanbanResponse(board)})
}

// Stats GET /organizations/:orgId/tickets/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	stats, err := h.engine.Stats(c.UserContext(), principal, c.Params("orgId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStatsResponse(stats)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	detail, err := h.engine.Get(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetailResponse(detail)})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	entries, err := h.engine.History(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponses(entries)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.engine.Update(c.UserContext(), principal, c.Params("id"), req.ToInput())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.engine.Assign(c.UserContext(), principal, c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ChangeStatus POST /tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.engine.ChangeStatus(c.UserContext(), principal, c.Params("id"), req.Status, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Close POST /tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.CloseTicketRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	ticket, err := h.engine.Close(c.UserContext(), principal, c.Params("id"), req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// RateSatisfaction POST /tickets/:id/satisfaction.
func (h *TicketsHandler) RateSatisfaction(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.RateSatisfactionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.engine.RateSatisfaction(c.UserContext(), principal, c.Params("id"), req.Score, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	comment, err := h.engine.AddComment(c.UserContext(), principal, c.Params("id"), req.ToInput())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewCommentResponse(comment)})
}

func principalOf(c *fiber.Ctx) (domain.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal == nil {
		return domain.Principal{}, apperrors.NewUnauthorized("authentication required")
	}
	return *principal, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return dto.Validate(out)
}
