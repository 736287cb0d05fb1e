// Package calls provides the call execution and result reconciliation
// bounded context: dispatching outbound AI calls, ingesting completion
// webhooks, caching results and enriching them until complete.
package calls

import (
	"hireline_backend/internal/calls/cache"
	"hireline_backend/internal/calls/dispatch"
	"hireline_backend/internal/calls/enrich"
	"hireline_backend/internal/calls/handler"
	"hireline_backend/internal/calls/repository"
	"hireline_backend/internal/calls/service"
	apphttp "hireline_backend/internal/http"
	"hireline_backend/internal/voice"
	"hireline_backend/internal/workflow"
	"hireline_backend/platform/config"
	"hireline_backend/platform/events"
	"hireline_backend/platform/httpkit"
	"hireline_backend/platform/logger"
	"hireline_backend/platform/tasks"
	"hireline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the calls bounded context module implementing http.Module.
type Module struct {
	handler       *handler.Handler
	service       *service.Service
	dispatcher    *dispatch.Dispatcher
	cache         *cache.Cache
	engine        *workflow.Client
	webhookSecret string
}

// NewModule creates and initializes the calls module with all its
// dependencies. The progress marker lets another module observe queued
// dispatch items; nil disables marking.
func NewModule(pool *pgxpool.Pool, cfg *config.Config, val *validator.Validator, bus events.Bus, sup *tasks.Supervisor, marker dispatch.ProgressMarker, log *logger.Logger) *Module {
	resultCache := cache.New(cfg.GetResultCacheTTL())
	repo := repository.New(pool)
	voiceBackend := voice.New(cfg, log)
	engineClient := workflow.NewClient(cfg, log)

	var source enrich.RecordSource
	if voiceBackend != nil {
		source = voiceBackend
	}
	fetcher := enrich.NewFetcher(cfg, resultCache, source, repo, bus, sup, log)
	svc := service.New(resultCache, repo, fetcher, bus, log)

	var engine dispatch.EngineBackend
	if engineClient != nil {
		engine = engineClient
	}
	var direct dispatch.DirectCaller
	if voiceBackend != nil {
		direct = voiceBackend
	}
	dispatcher := dispatch.New(cfg, engine, direct, svc, marker, sup, log)

	return &Module{
		handler:       handler.NewHandler(svc, dispatcher, val, log),
		service:       svc,
		dispatcher:    dispatcher,
		cache:         resultCache,
		engine:        engineClient,
		webhookSecret: cfg.GetVoiceWebhookSecret(),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "calls"
}

// Service returns the call result service for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Dispatcher returns the call dispatcher for external use.
func (m *Module) Dispatcher() *dispatch.Dispatcher {
	return m.dispatcher
}

// Cache returns the result cache so the composition root can run the sweeper.
func (m *Module) Cache() *cache.Cache {
	return m.cache
}

// Engine returns the workflow engine client, or nil when not configured.
func (m *Module) Engine() *workflow.Client {
	return m.engine
}

// RegisterRoutes mounts call routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Provider completion notifications. The provider signs nothing; when a
	// shared secret is configured it must be echoed in X-Webhook-Secret.
	// Past that gate the handler validates the payload itself and always
	// acknowledges.
	ctx.Webhook.POST("/calls",
		httpkit.SharedSecret("X-Webhook-Secret", m.webhookSecret),
		m.handler.HandleCallWebhook,
	)

	calls := ctx.Protected.Group("/calls")
	calls.GET("/:callId", m.handler.HandleGetCall)

	// Mounted outside /calls: gin rejects a static sibling next to the
	// :callId wildcard in the same method tree.
	ctx.Protected.GET("/dispatches/:executionId", m.handler.HandleGetExecution)

	// Dispatch endpoints place real phone calls, so they sit behind the
	// stricter rate limit.
	dispatchGroup := calls.Group("/batch", ctx.DispatchRateLimiter.RateLimit())
	dispatchGroup.POST("", m.handler.HandleDispatchBatch)
	dispatchGroup.POST("/async", m.handler.HandleDispatchBatchAsync)

	cacheAdmin := ctx.Admin.Group("/cache")
	cacheAdmin.GET("/stats", m.handler.HandleCacheStats)
	cacheAdmin.DELETE("/:callId", m.handler.HandleDeleteCacheEntry)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
