package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hireline_backend/internal/adapters"
	"hireline_backend/internal/calls"
	"hireline_backend/internal/events"
	apphttp "hireline_backend/internal/http"
	"hireline_backend/internal/http/router"
	"hireline_backend/internal/notification"
	"hireline_backend/internal/notification/outbox"
	"hireline_backend/internal/places"
	"hireline_backend/internal/ranking"
	"hireline_backend/internal/ranking/agent"
	"hireline_backend/internal/requests"
	requestsrepo "hireline_backend/internal/requests/repository"
	"hireline_backend/internal/scheduler"
	"hireline_backend/platform/config"
	"hireline_backend/platform/db"
	"hireline_backend/platform/logger"
	"hireline_backend/platform/tasks"
	"hireline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	cacheSweepInterval = time.Minute
	shutdownGrace      = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Supervisor for background work spawned by requests (lifecycles,
	// enrichment, async dispatch). Drained on shutdown.
	supervisor := tasks.NewSupervisor(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// The requests repository is built here because the calls module's
	// progress marker and the timeline bridge write to the same tables.
	requestsRepo := requestsrepo.New(pool)

	progressMarker := adapters.NewCallProgressMarker(requestsRepo, log)
	callsModule := calls.NewModule(pool, cfg, val, eventBus, supervisor, progressMarker, log)

	// Provider discovery is optional; without it the lifecycle relies on
	// candidates supplied with the request.
	var finder requests.ProviderFinder
	if placesClient := places.New(cfg, log); placesClient != nil {
		finder = adapters.NewPlacesProviderFinder(placesClient)
		log.Info("provider discovery enabled", "limit", cfg.GetProviderSearchLimit())
	} else {
		log.Info("provider discovery disabled (PLACES_API_URL not set)")
	}

	placer := adapters.NewProviderCallPlacer(callsModule.Dispatcher(), callsModule.Service(), cfg, log)

	var reasoner ranking.Reasoner
	if cfg.IsRankingAgentEnabled() {
		agentRanker, err := agent.NewRanker(cfg.GetMoonshotAPIKey())
		if err != nil {
			log.Error("failed to initialize ranking agent", "error", err)
			panic("failed to initialize ranking agent: " + err.Error())
		}
		reasoner = agentRanker
	} else {
		log.Warn("ranking agent disabled (MOONSHOT_API_KEY not set); ranking depends on the engine tier")
	}

	var engineRanker ranking.EngineClient
	if callsModule.Engine() != nil {
		engineRanker = callsModule.Engine()
	}
	rankingService := ranking.New(engineRanker, reasoner, callsModule.Service(), log)

	requestsModule := requests.NewModule(requestsRepo, cfg, val, eventBus, supervisor, requests.Deps{
		Finder: finder,
		Placer: placer,
		Ranker: rankingService,
	}, log)

	// Bridge call result events onto provider rows and the interaction log.
	timelineBridge := adapters.NewCallTimelineBridge(requestsRepo, requestsRepo, callsModule.Service(), eventBus, log)
	timelineBridge.Register(eventBus)

	// Notifications: durable outbox rows plus the live SSE stream.
	outboxRepo := outbox.New(pool)
	notificationModule := notification.NewModule(outboxRepo, eventBus, log)
	notificationModule.RegisterHandlers(eventBus)

	// Task queue nudge: forwards outbox rows and archive work to the worker
	// process. With no queue configured the worker-side tickers own the rows.
	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	if queueClient.Enabled() {
		defer func() { _ = queueClient.Close() }()
		log.Info("task queue client initialized")
	} else {
		log.Warn("REDIS_URL not configured; outbox rows wait for a queue-backed worker")
	}
	eventBridge := scheduler.NewEventBridge(queueClient, outboxRepo, cfg.IsArchiveEnabled(), log)
	eventBridge.RegisterHandlers(eventBus)

	// Expired result cache entries are also dropped lazily on access; the
	// sweeper keeps memory bounded when nobody reads.
	go func() {
		_ = callsModule.Cache().RunSweeper(ctx, cacheSweepInterval, log)
	}()

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			callsModule,
			requestsModule,
			notificationModule,
		},
	}

	engine := router.New(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	notificationModule.Stream().Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	if err := supervisor.Wait(shutdownCtx); err != nil {
		log.Warn("background tasks still running at shutdown", "error", err)
	}
	log.Info("server stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
