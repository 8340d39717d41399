package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/condo-service/internal/events"
)

// LogNotifier records notifications in the service log when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds the sink.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (n *LogNotifier) Notify(_ context.Context, event events.Event) error {
	n.logger.Info("ticket notification",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("organization_id", event.OrganizationID),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload))
	return nil
}

// LogGamification records awards in the service log when no broker is configured.
type LogGamification struct {
	logger *zap.Logger
}

// NewLogGamification builds the sink.
func NewLogGamification(logger *zap.Logger) *LogGamification {
	return &LogGamification{logger: logger}
}

// Award logs the award.
func (g *LogGamification) Award(_ context.Context, userID, organizationID string, kind events.AwardKind, ticketID string) error {
	g.logger.Info("gamification award",
		zap.String("user_id", userID),
		zap.String("organization_id", organizationID),
		zap.String("kind", string(kind)),
		zap.String("ticket_id", ticketID))
	return nil
}
