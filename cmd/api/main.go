package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/geonhos/poc-voc-auto-processing/internal/api/http"
	"github.com/geonhos/poc-voc-auto-processing/internal/api/http/handlers"
	"github.com/geonhos/poc-voc-auto-processing/internal/config"
	"github.com/geonhos/poc-voc-auto-processing/internal/engine"
	"github.com/geonhos/poc-voc-auto-processing/internal/events"
	"github.com/geonhos/poc-voc-auto-processing/internal/observability"
	"github.com/geonhos/poc-voc-auto-processing/internal/persistence"
	"github.com/geonhos/poc-voc-auto-processing/internal/repository"
	"github.com/geonhos/poc-voc-auto-processing/internal/sequence"
	"github.com/geonhos/poc-voc-auto-processing/internal/service"
	"github.com/geonhos/poc-voc-auto-processing/internal/worker"
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

	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var ticketRepo repository.TicketRepository
	if pool := pg.PoolHandle(); pool != nil {
		ticketRepo = repository.NewPostgresTicketRepository(pool)
	} else {
		logger.Warn("running with in-memory ticket store; data is not durable")
		ticketRepo = repository.NewMemoryTicketRepository()
	}

	var ids sequence.Generator
	if redis.Ping(ctx) == nil {
		ids = sequence.NewRedisGenerator(redis.Client)
	} else {
		logger.Warn("redis unreachable; using process-local ticket sequence")
		ids = sequence.NewLocalGenerator()
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notificationService.RegisterHandlers()

	orchestrator := service.NewOrchestrator(service.OrchestratorDependencies{
		TicketRepo:      ticketRepo,
		IDGenerator:     ids,
		Events:          dispatcher,
		Metrics:         metrics,
		Logger:          logger,
		ConfidenceFloor: cfg.Engine.ConfidenceFloor,
	})
	queryService := service.NewQueryService(ticketRepo, cfg.Query.DefaultPageSize, cfg.Query.MaxPageSize)

	pool, err := worker.NewPool(ctx, cfg.Analysis.PoolSize, logger)
	if err != nil {
		logger.Fatal("failed to create worker pool", zap.Error(err))
	}
	defer pool.Shutdown()

	if cfg.Engine.BaseURL != "" {
		analyzer := engine.NewHTTPClient(cfg.Engine.BaseURL, cfg.Engine.Timeout())
		analysisDispatcher := worker.NewAnalysisDispatcher(pool, analyzer, orchestrator, cfg.Engine.Timeout(), logger)
		orchestrator.BindDispatcher(analysisDispatcher)
	} else {
		logger.Warn("ENGINE_BASE_URL not set; analysis results must arrive via the report endpoint")
	}

	if err := worker.StartSweep(pool, orchestrator, cfg.Analysis.SweepInterval(), cfg.Analysis.StuckDeadline(), logger); err != nil {
		logger.Fatal("failed to start reconciliation sweep", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(pg, redis),
		VOC:      handlers.NewVOCHandler(orchestrator),
		Tickets:  handlers.NewTicketsHandler(orchestrator, queryService),
		Analysis: handlers.NewAnalysisHandler(orchestrator),
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
