package requests

import (
	apphttp "hireline_backend/internal/http"
	"hireline_backend/internal/requests/handler"
	"hireline_backend/internal/requests/repository"
	"hireline_backend/internal/requests/service"
	"hireline_backend/platform/config"
	"hireline_backend/platform/events"
	"hireline_backend/platform/logger"
	"hireline_backend/platform/tasks"
	"hireline_backend/platform/validator"
)

// Deps carries the cross-context collaborators the requests module uses but
// does not own. Finder may be nil when provider discovery is not configured.
type Deps struct {
	Finder ProviderFinder
	Placer CallPlacer
	Ranker Ranker
}

// Module is the requests bounded context module implementing http.Module.
type Module struct {
	handler      *handler.Handler
	service      *service.Service
	orchestrator *Orchestrator
	repo         *repository.Repository
}

// NewModule wires the requests module. The repository is passed in rather
// than built here because the composition root shares it with the dispatch
// progress-marker and timeline adapters.
func NewModule(repo *repository.Repository, cfg *config.Config, val *validator.Validator, bus events.Bus, sup *tasks.Supervisor, deps Deps, log *logger.Logger) *Module {
	orch := NewOrchestrator(cfg, repo, deps.Finder, deps.Placer, deps.Ranker, bus, sup, log)
	svc := service.New(repo, orch, cfg, bus, log)

	return &Module{
		handler:      handler.NewHandler(svc, val, log),
		service:      svc,
		orchestrator: orch,
		repo:         repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "requests"
}

// Service returns the requests service for external use (reply-channel
// selection intake).
func (m *Module) Service() *service.Service {
	return m.service
}

// Orchestrator returns the lifecycle orchestrator.
func (m *Module) Orchestrator() *Orchestrator {
	return m.orchestrator
}

// Repo returns the requests repository for adapters and background workers.
func (m *Module) Repo() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts request routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/requests")

	// Creating a request fans out real phone calls, so it sits behind the
	// stricter dispatch rate limit.
	group.POST("", ctx.DispatchRateLimiter.RateLimit(), m.handler.HandleCreate)
	group.GET("/:requestId", m.handler.HandleGet)
	group.GET("/:requestId/status", m.handler.HandleStatus)
	group.POST("/:requestId/selection", m.handler.HandleSelect)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
