package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/condo-service/internal/api/http"
	"github.com/spec-kit/condo-service/internal/api/http/handlers"
	"github.com/spec-kit/condo-service/internal/auth"
	"github.com/spec-kit/condo-service/internal/config"
	"github.com/spec-kit/condo-service/internal/events"
	"github.com/spec-kit/condo-service/internal/notify"
	"github.com/spec-kit/condo-service/internal/observability"
	"github.com/spec-kit/condo-service/internal/persistence"
	"github.com/spec-kit/condo-service/internal/repository"
	"github.com/spec-kit/condo-service/internal/service"
	"github.com/spec-kit/condo-service/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and side-effect workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := observability.NewMetrics()
	telemetry, err := observability.NewTelemetry(ctx, cfg.Tracing, cfg.App.Version, metrics.Registry(), logger)
	if err != nil {
		return err
	}
	defer telemetry.Shutdown(context.Background())

	db, err := persistence.OpenDatabase(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	pubsub := persistence.OpenPubSub(ctx, cfg.Redis, logger)
	defer pubsub.Close()

	dispatcher := events.NewAsyncDispatcher(events.AsyncOptions{
		Workers:        cfg.Dispatcher.Workers,
		QueueSize:      cfg.Dispatcher.QueueSize,
		HandlerTimeout: cfg.Dispatcher.HandlerTimeout(),
		Logger:         logger.Named("events"),
		Recorder:       metrics,
	})

	notificationDeps := service.NotificationDependencies{
		Dispatcher:   dispatcher,
		Notifier:     notify.NewLogNotifier(logger.Named("notify")),
		Gamification: notify.NewLogGamification(logger.Named("gamification")),
		Logger:       logger,
	}
	if cfg.AMQP.URL != "" {
		rabbit, err := notify.NewRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger.Named("amqp"))
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		defer rabbit.Close()
		notificationDeps.Notifier = notify.NewAMQPNotifier(rabbit)
		notificationDeps.Gamification = notify.NewAMQPGamification(rabbit)
	}
	if pubsub != nil {
		notificationDeps.Realtime = notify.NewRedisRealtime(pubsub.Client, pubsub.Prefix)
	}

	notificationWorker := worker.NewNotificationWorker(dispatcher, service.NewNotificationService(notificationDeps), logger)
	if err := notificationWorker.Start(); err != nil {
		return err
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:       repository.NewTicketRepository(pool),
		HistoryRepo:      repository.NewTicketHistoryRepository(pool),
		CommentRepo:      repository.NewTicketCommentRepository(pool),
		MembershipRepo:   repository.NewMembershipRepository(pool),
		UnitRepo:         repository.NewUnitRepository(pool),
		OrganizationRepo: repository.NewOrganizationRepository(pool),
		UserRepo:         userRepo,
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		Logger:           logger.Named("tickets"),
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
	authMiddleware := auth.NewAuthMiddleware(tokens, userRepo)

	readiness := map[string]handlers.Pinger{"postgres": db}
	if pubsub != nil {
		readiness["redis"] = pubsub
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Metrics:        metrics,
		AuthMiddleware: authMiddleware.Handle,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			logger.Error("fiber listen", zap.Error(err))
		}
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := notificationWorker.Stop(drainCtx); err != nil {
		logger.Warn("notification worker stop", zap.Error(err))
	}
	return nil
}

func shutdownSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
