package worker

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/spec-kit/condo-service/internal/events"
	"github.com/spec-kit/condo-service/internal/service"
)

// Queue is the part of the dispatcher the worker drives.
type Queue interface {
	Start()
	Stop(ctx context.Context) error
	QueueDepth() int
}

// NotificationWorker owns the side-effect pipeline lifecycle.
type NotificationWorker struct {
	queue        Queue
	notification *service.NotificationService
	logger       *zap.Logger
	gauge        metric.Registration
}

// NewNotificationWorker wires the handlers of notificationService to queue.
func NewNotificationWorker(queue Queue, notificationService *service.NotificationService, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{queue: queue, notification: notificationService, logger: logger}
}

// Start registers handlers, exposes the queue depth gauge and starts the workers.
func (w *NotificationWorker) Start() error {
	if w.notification != nil {
		w.notification.RegisterHandlers()
	}

	meter := otel.Meter("github.com/spec-kit/condo-service/internal/worker")
	depth, err := meter.Int64ObservableGauge(
		"ticket_event_queue_depth",
		metric.WithDescription("Events waiting for a side-effect worker."),
	)
	if err != nil {
		return fmt.Errorf("create queue depth gauge: %w", err)
	}
	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(depth, int64(w.queue.QueueDepth()))
		return nil
	}, depth)
	if err != nil {
		return fmt.Errorf("register queue depth callback: %w", err)
	}
	w.gauge = reg

	w.queue.Start()
	return nil
}

// Stop drains the queue within ctx.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	if w.gauge != nil {
		if err := w.gauge.Unregister(); err != nil {
			w.logger.Warn("unregister queue depth gauge", zap.Error(err))
		}
	}
	if err := w.queue.Stop(ctx); err != nil {
		return err
	}
	w.logger.Info("notification worker stopped")
	return nil
}

var _ Queue = (*events.AsyncDispatcher)(nil)
