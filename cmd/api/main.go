package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-core/internal/api/http"
	"github.com/spec-kit/helpdesk-core/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/config"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/observability"
	"github.com/spec-kit/helpdesk-core/internal/persistence"
	"github.com/spec-kit/helpdesk-core/internal/realtime"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/internal/sequence"
	"github.com/spec-kit/helpdesk-core/internal/service"
	"github.com/spec-kit/helpdesk-core/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	equipmentRepo := repository.NewEquipmentRepository(pool)
	directoryRepo := repository.NewDirectoryRepository(pool)

	allocator := sequence.NewAllocator(
		sequence.NewPostgresCounterStore(pool),
		cfg.Allocator.MaxRetries,
		logger,
	)

	dispatcher := events.NewInMemoryDispatcher()
	broker := realtime.NewRedisBroker(redis.Client, logger)
	metrics := observability.NewMetrics()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:    ticketRepo,
		EquipmentRepo: equipmentRepo,
		Allocator:     allocator,
		Dispatcher:    dispatcher,
		Broker:        broker,
		Logger:        logger,
	})
	chatService := service.NewChatService(ticketService, messageRepo, dispatcher, broker, logger)
	notificationService := service.NewNotificationService(notificationRepo, directoryRepo, dispatcher, logger, metrics)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	identityService := service.NewIdentityService(directoryRepo, tokenManager, chatService, dispatcher, cfg.Auth.BcryptCost, logger)
	authMiddleware := auth.NewAuthMiddleware(tokenManager, directoryRepo)

	worker.StartNotificationWorker(notificationService)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(identityService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Chat:           handlers.NewChatHandler(chatService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
