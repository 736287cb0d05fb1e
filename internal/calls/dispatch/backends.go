package dispatch

import (
	"context"

	"hireline_backend/internal/calls/domain"
)

// EngineBackend executes whole batches on the workflow engine.
type EngineBackend interface {
	// Healthy probes the engine before a batch is routed to it.
	Healthy(ctx context.Context) bool
	ExecuteBatch(ctx context.Context, reqs []domain.CallRequest) (domain.BatchResult, error)
}

// DirectCaller places individual calls against the voice provider. Call
// blocks until the call reaches a terminal status.
type DirectCaller interface {
	Method() domain.ExecutionMethod
	Call(ctx context.Context, req domain.CallRequest) (domain.CallResult, error)
}

// ResultSink receives call outcomes as the dispatcher produces them, one at
// a time, so downstream consumers see progress before the batch finishes.
type ResultSink interface {
	RecordOutcome(ctx context.Context, res domain.CallResult)
}

// ProgressMarker flags accepted batch items as queued in durable storage
// before an asynchronous dispatch starts, so status polling sees them
// immediately. Marking is best-effort.
type ProgressMarker interface {
	MarkQueued(ctx context.Context, reqs []domain.CallRequest)
}
