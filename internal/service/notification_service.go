package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/condo-service/internal/events"
)

// NotificationSink delivers ticket events to people. Delivery is best effort.
type NotificationSink interface {
	Notify(ctx context.Context, event events.Event) error
}

// GamificationSink credits achievements. Delivery is best effort.
type GamificationSink interface {
	Award(ctx context.Context, userID, organizationID string, kind events.AwardKind, ticketID string) error
}

// RealtimePublisher fans events out to connected viewers of an organization.
type RealtimePublisher interface {
	PublishRealtime(ctx context.Context, event events.Event) error
}

var notifiedEvents = []events.EventType{
	events.EventTicketCreated,
	events.EventTicketUpdated,
	events.EventTicketAssigned,
	events.EventTicketStatusChanged,
	events.EventTicketCommentAdded,
	events.EventTicketRated,
}

var realtimeEvents = []events.EventType{
	events.EventTicketCreated,
	events.EventTicketUpdated,
	events.EventTicketAssigned,
	events.EventTicketStatusChanged,
	events.EventTicketCommentAdded,
}

// NotificationService routes dispatched events to the notification, gamification and realtime sinks.
type NotificationService struct {
	dispatcher   events.Dispatcher
	notifier     NotificationSink
	gamification GamificationSink
	realtime     RealtimePublisher
	logger       *zap.Logger
}

// NotificationDependencies bundles sinks; nil sinks are skipped.
type NotificationDependencies struct {
	Dispatcher   events.Dispatcher
	Notifier     NotificationSink
	Gamification GamificationSink
	Realtime     RealtimePublisher
	Logger       *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher:   deps.Dispatcher,
		notifier:     deps.Notifier,
		gamification: deps.Gamification,
		realtime:     deps.Realtime,
		logger:       logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	if n.notifier != nil {
		for _, eventType := range notifiedEvents {
			n.dispatcher.Subscribe(eventType, "notification", n.handleNotify)
		}
	}
	if n.realtime != nil {
		for _, eventType := range realtimeEvents {
			n.dispatcher.Subscribe(eventType, "realtime", n.handleRealtime)
		}
	}
	if n.gamification != nil {
		n.dispatcher.Subscribe(events.EventGamificationAward, "gamification", n.handleAward)
	}
}

func (n *NotificationService) handleNotify(ctx context.Context, event events.Event) error {
	n.logger.Debug("notifying",
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
	return n.notifier.Notify(ctx, event)
}

func (n *NotificationService) handleRealtime(ctx context.Context, event events.Event) error {
	return n.realtime.PublishRealtime(ctx, event)
}

func (n *NotificationService) handleAward(ctx context.Context, event events.Event) error {
	award, ok := event.Payload.(events.AwardPayload)
	if !ok {
		return fmt.Errorf("unexpected award payload %T", event.Payload)
	}
	n.logger.Debug("awarding",
		zap.String("ticket_id", award.TicketID),
		zap.String("user_id", award.UserID),
		zap.String("kind", string(award.Kind)))
	return n.gamification.Award(ctx, award.UserID, award.OrganizationID, award.Kind, award.TicketID)
}
