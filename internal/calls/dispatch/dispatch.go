// Package dispatch routes outbound call batches to an execution backend:
// the workflow engine when healthy, the direct voice backend otherwise.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hireline_backend/internal/calls/domain"
	"hireline_backend/platform/apperr"
	"hireline_backend/platform/config"
	"hireline_backend/platform/logger"
	"hireline_backend/platform/phone"
	"hireline_backend/platform/tasks"
)

// Concurrency bounds for the direct-path worker pool.
const (
	minConcurrency = 1
	maxConcurrency = 10
)

// Config is the configuration surface the dispatcher needs.
type Config interface {
	config.DispatchConfig
	config.PhoneConfig
}

// Options tune one dispatch. The zero value uses configured defaults.
type Options struct {
	// MaxConcurrent overrides the direct-path concurrency for this batch.
	// Zero means use the configured default; values are clamped to [1,10].
	MaxConcurrent int
	// Urgency is applied to items that do not carry their own.
	Urgency domain.Urgency
}

// Dispatcher validates batch items, picks an execution backend, and fans
// calls out with bounded concurrency. Item-level failures (bad numbers,
// missing names) never abort a batch; backend unavailability can, depending
// on strict mode.
type Dispatcher struct {
	cfg    Config
	engine EngineBackend  // nil when no engine is configured
	direct DirectCaller   // nil when no direct backend is configured
	sink   ResultSink     // nil disables outcome delivery
	marker ProgressMarker // nil disables queued marking
	sup    *tasks.Supervisor
	log    *logger.Logger
	ring   *testNumberRing
	execs  *executionLog
}

func New(cfg Config, engine EngineBackend, direct DirectCaller, sink ResultSink, marker ProgressMarker, sup *tasks.Supervisor, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		engine: engine,
		direct: direct,
		sink:   sink,
		marker: marker,
		sup:    sup,
		log:    log,
		ring:   newTestNumberRing(cfg.GetTestCallNumbers()),
		execs:  newExecutionLog(),
	}
}

// DispatchBatch places all requests and blocks until every accepted item has
// a terminal outcome. The returned batch carries one result per placed call
// plus one error per rejected item.
func (d *Dispatcher) DispatchBatch(ctx context.Context, reqs []domain.CallRequest, opts Options) (domain.BatchResult, error) {
	accepted, rejected := d.prepare(reqs, opts)

	if len(accepted) == 0 {
		return domain.BatchResult{Errors: rejected}, nil
	}

	batch, err := d.execute(ctx, accepted, opts)
	if err != nil {
		return domain.BatchResult{Errors: rejected}, err
	}
	batch.Errors = append(batch.Errors, rejected...)
	return batch, nil
}

// DispatchOne places a single call and blocks until it ends. Item rejection
// surfaces as a validation error here since there is no batch to absorb it.
func (d *Dispatcher) DispatchOne(ctx context.Context, req domain.CallRequest) (domain.CallResult, error) {
	batch, err := d.DispatchBatch(ctx, []domain.CallRequest{req}, Options{})
	if err != nil {
		return domain.CallResult{}, err
	}
	if len(batch.Errors) > 0 {
		return domain.CallResult{}, apperr.Validation(batch.Errors[0].Reason)
	}
	if len(batch.Results) == 0 {
		return domain.CallResult{}, apperr.Internal("dispatch produced no result")
	}
	return batch.Results[0], nil
}

// DispatchBatchAsync marks accepted items queued, starts the batch on a
// supervised background task detached from the caller's request context, and
// returns an execution ID the caller can correlate with later results.
func (d *Dispatcher) DispatchBatchAsync(ctx context.Context, reqs []domain.CallRequest, opts Options) (string, error) {
	// Validate up front so an entirely rejected batch fails the API call
	// instead of dying silently in the background.
	accepted, rejected := d.prepare(reqs, opts)
	if len(accepted) == 0 {
		if len(rejected) > 0 {
			return "", apperr.Validation(rejected[0].Reason)
		}
		return "", apperr.Validation("batch is empty")
	}

	if d.marker != nil {
		d.marker.MarkQueued(ctx, accepted)
	}

	executionID := uuid.NewString()
	d.execs.start(executionID)
	d.sup.Go(ctx, "dispatch:"+executionID, func(taskCtx context.Context) error {
		batch, err := d.execute(taskCtx, accepted, opts)
		batch.Errors = append(batch.Errors, rejected...)
		d.execs.finish(executionID, batch, err)
		if err != nil {
			return fmt.Errorf("async dispatch %s: %w", executionID, err)
		}
		d.log.Info("async dispatch finished",
			"execution_id", executionID,
			"requested", batch.Requested(),
			"succeeded", batch.Succeeded(),
			"failed", batch.Failed(),
		)
		return nil
	})

	d.log.Info("async dispatch started", "execution_id", executionID, "calls", len(accepted), "rejected", len(rejected))
	return executionID, nil
}

// Execution returns the status snapshot of one async dispatch, or false when
// the id is unknown or the record aged out.
func (d *Dispatcher) Execution(id string) (Execution, bool) {
	return d.execs.get(id)
}

// prepare normalizes and validates items, then applies the test-number
// override outside production. Rejected items are returned separately.
func (d *Dispatcher) prepare(reqs []domain.CallRequest, opts Options) ([]domain.CallRequest, []domain.DispatchError) {
	region := d.cfg.GetPhoneDefaultRegion()
	override := !d.cfg.IsProduction() && d.ring.active()

	accepted := make([]domain.CallRequest, 0, len(reqs))
	var rejected []domain.DispatchError

	for _, req := range reqs {
		req.ProviderName = strings.TrimSpace(req.ProviderName)
		if req.ProviderName == "" {
			rejected = append(rejected, domain.DispatchError{
				Phone:  req.Phone,
				Reason: "provider name is required",
			})
			continue
		}

		normalized, err := phone.ParseE164(req.Phone, region)
		if err != nil {
			rejected = append(rejected, domain.DispatchError{
				ProviderName: req.ProviderName,
				Phone:        req.Phone,
				Reason:       fmt.Sprintf("invalid phone number: %v", err),
			})
			d.log.DispatchEvent("item_rejected", "", req.Phone, false, err.Error())
			continue
		}
		req.Phone = normalized

		if req.Urgency == "" {
			req.Urgency = opts.Urgency
		}
		req.Urgency = domain.NormalizeUrgency(string(req.Urgency))

		if override {
			testNumber := d.ring.take()
			d.log.Info("test number override",
				"provider", req.ProviderName,
				"original", req.Phone,
				"override", testNumber,
			)
			req.Phone = testNumber
		}

		accepted = append(accepted, req)
	}

	return accepted, rejected
}

// execute picks the backend and runs the batch. Selection order: a healthy
// preferred engine wins; strict mode refuses to fall back; otherwise the
// direct backend takes the batch, with the engine as last resort when no
// direct backend exists.
func (d *Dispatcher) execute(ctx context.Context, reqs []domain.CallRequest, opts Options) (domain.BatchResult, error) {
	engineHealthy := false
	if d.engine != nil && (d.cfg.IsEngineRequired() || d.cfg.IsEnginePreferred() || d.direct == nil) {
		engineHealthy = d.engine.Healthy(ctx)
	}

	if d.cfg.IsEngineRequired() {
		if !engineHealthy {
			return domain.BatchResult{}, apperr.Unavailable("call engine is unavailable and fallback is disabled")
		}
		batch, err := d.engine.ExecuteBatch(ctx, reqs)
		if err != nil {
			return domain.BatchResult{}, apperr.Unavailable(fmt.Sprintf("call engine failed: %v", err))
		}
		d.deliver(ctx, batch)
		return batch, nil
	}

	if engineHealthy && d.cfg.IsEnginePreferred() {
		batch, err := d.engine.ExecuteBatch(ctx, reqs)
		if err == nil {
			d.deliver(ctx, batch)
			return batch, nil
		}
		d.log.Warn("engine batch failed, falling back to direct calls", "error", err)
	}

	if d.direct != nil {
		return d.runDirect(ctx, reqs, opts), nil
	}

	if engineHealthy {
		batch, err := d.engine.ExecuteBatch(ctx, reqs)
		if err != nil {
			return domain.BatchResult{}, err
		}
		d.deliver(ctx, batch)
		return batch, nil
	}

	return domain.BatchResult{}, apperr.Unavailable("no call execution backend available")
}

// runDirect fans individual calls out with bounded concurrency. Outcomes are
// handed to the sink as each call ends so status polling sees progress. A
// failed placement becomes a batch error entry; it never cancels siblings.
func (d *Dispatcher) runDirect(ctx context.Context, reqs []domain.CallRequest, opts Options) domain.BatchResult {
	batch := domain.BatchResult{ExecutionMethod: d.direct.Method()}

	var mu sync.Mutex
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrencyFor(opts))

	for _, req := range reqs {
		g.Go(func() error {
			res, err := d.direct.Call(groupCtx, req)
			if err != nil {
				mu.Lock()
				batch.Errors = append(batch.Errors, domain.DispatchError{
					ProviderName: req.ProviderName,
					Phone:        req.Phone,
					Reason:       err.Error(),
				})
				mu.Unlock()
				d.log.DispatchEvent("call_failed", res.CallID, req.Phone, false, err.Error())
				return nil
			}

			res.ProviderName = req.ProviderName
			res.ProviderID = req.ProviderID
			res.RequestID = req.RequestID
			if d.sink != nil {
				d.sink.RecordOutcome(groupCtx, res)
			}

			mu.Lock()
			batch.Results = append(batch.Results, res)
			mu.Unlock()
			d.log.DispatchEvent("call_finished", res.CallID, req.Phone, !domain.IsFailedStatus(res.Status), string(res.Status))
			return nil
		})
	}

	// Workers only ever return nil; the group is used for its limit.
	_ = g.Wait()
	return batch
}

func (d *Dispatcher) concurrencyFor(opts Options) int {
	limit := d.cfg.GetMaxConcurrency()
	if opts.MaxConcurrent > 0 {
		limit = opts.MaxConcurrent
	}
	if limit < minConcurrency {
		return minConcurrency
	}
	if limit > maxConcurrency {
		return maxConcurrency
	}
	return limit
}

// deliver hands every result of an engine batch to the sink. The engine
// reports outcomes all at once; the direct path delivers per call instead.
func (d *Dispatcher) deliver(ctx context.Context, batch domain.BatchResult) {
	if d.sink == nil {
		return
	}
	for i := range batch.Results {
		d.sink.RecordOutcome(ctx, batch.Results[i])
	}
}
