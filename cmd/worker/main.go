package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hireline_backend/internal/adapters"
	"hireline_backend/internal/archive"
	"hireline_backend/internal/calls"
	callsrepo "hireline_backend/internal/calls/repository"
	"hireline_backend/internal/events"
	"hireline_backend/internal/notification"
	"hireline_backend/internal/notification/email"
	"hireline_backend/internal/notification/outbox"
	"hireline_backend/internal/places"
	"hireline_backend/internal/ranking"
	"hireline_backend/internal/ranking/agent"
	"hireline_backend/internal/requests"
	requestsrepo "hireline_backend/internal/requests/repository"
	"hireline_backend/internal/replies"
	"hireline_backend/internal/scheduler"
	"hireline_backend/platform/config"
	"hireline_backend/platform/db"
	"hireline_backend/platform/logger"
	"hireline_backend/platform/tasks"
	"hireline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const replyPollInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	supervisor := tasks.NewSupervisor(log)
	val := validator.New()

	// The reply channel accepts selections, and a selection starts a booking
	// call, so the worker carries the same lifecycle stack as the API.
	requestsRepo := requestsrepo.New(pool)
	progressMarker := adapters.NewCallProgressMarker(requestsRepo, log)
	callsModule := calls.NewModule(pool, cfg, val, eventBus, supervisor, progressMarker, log)

	var finder requests.ProviderFinder
	if placesClient := places.New(cfg, log); placesClient != nil {
		finder = adapters.NewPlacesProviderFinder(placesClient)
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

	timelineBridge := adapters.NewCallTimelineBridge(requestsRepo, requestsRepo, callsModule.Service(), eventBus, log)
	timelineBridge.Register(eventBus)

	outboxRepo := outbox.New(pool)
	notificationModule := notification.NewModule(outboxRepo, eventBus, log)
	notificationModule.RegisterHandlers(eventBus)

	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer func() { _ = queueClient.Close() }()

	eventBridge := scheduler.NewEventBridge(queueClient, outboxRepo, cfg.IsArchiveEnabled(), log)
	eventBridge.RegisterHandlers(eventBus)

	// Transcript archive (optional).
	callsRepo := callsrepo.New(pool)
	archiver, err := archive.New(cfg, callsRepo, log)
	if err != nil {
		log.Error("failed to initialize transcript archive", "error", err)
		panic("failed to initialize transcript archive: " + err.Error())
	}
	if archiver != nil {
		if err := withRetry(ctx, log, "ensure archive bucket", 5, 2*time.Second, func() error {
			return archiver.EnsureBucket(ctx)
		}); err != nil {
			log.Error("failed to ensure archive bucket exists", "error", err)
			panic("failed to ensure archive bucket exists: " + err.Error())
		}
		log.Info("transcript archive initialized", "bucket", cfg.GetArchiveBucket())
	}

	sender := email.NewSender(cfg)
	deliverer := notification.NewDeliverer(outboxRepo, sender, cfg, log)

	// Built before the tickers start: NewWorker is also the Redis check, and
	// the outbox dispatcher must not claim rows it cannot enqueue.
	worker, err := scheduler.NewWorker(cfg, deliverer, callsRepo, archiver, log)
	if err != nil {
		log.Error("failed to initialize task worker", "error", err)
		panic("failed to initialize task worker: " + err.Error())
	}

	if archiver != nil {
		archiveSweep := scheduler.NewArchiveSweep(archiver, log)
		go archiveSweep.Run(ctx)
	}

	// Outbox safety-net ticker: claims due rows the per-event nudge missed.
	outboxDispatcher := scheduler.NewOutboxDispatcher(queueClient, outboxRepo, log)
	go outboxDispatcher.Run(ctx)

	// Stale-request reaper: fails requests stuck mid-lifecycle.
	reaper := scheduler.NewStaleReaper(requestsRepo, eventBus, cfg.GetStaleRequestAfter(), log)
	go reaper.Run(ctx)

	// Reply-channel selection intake (no-op when IMAP is not configured).
	poller := replies.NewPoller(cfg, requestsModule.Service(), log)
	go poller.Run(ctx, replyPollInterval)

	worker.Run(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := supervisor.Wait(drainCtx); err != nil {
		log.Warn("background tasks still running at shutdown", "error", err)
	}
	log.Info("worker stopped")
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
