package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	calldomain "hireline_backend/internal/calls/domain"
	"hireline_backend/platform/apperr"
	"hireline_backend/platform/config"
	"hireline_backend/platform/logger"
)

const defaultWorkerConcurrency = 10

// Deliverer performs one notification delivery attempt and records the
// outcome on the outbox row.
type Deliverer interface {
	Deliver(ctx context.Context, outboxID uuid.UUID) error
}

// CallSource loads persisted call records for archival.
type CallSource interface {
	GetResult(ctx context.Context, callID string) (calldomain.CallResult, error)
}

// TranscriptArchiver uploads one call record to the archive.
type TranscriptArchiver interface {
	ArchiveCall(ctx context.Context, res calldomain.CallResult) (string, error)
}

// Worker consumes queued tasks: notification deliveries and call archivals.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	deliverer Deliverer
	calls     CallSource
	archiver  TranscriptArchiver
	log       *logger.Logger
}

// NewWorker builds the task consumer. Unlike the enqueue side, the worker
// cannot run without Redis and reports it as an error.
func NewWorker(cfg config.SchedulerConfig, deliverer Deliverer, calls CallSource, archiver TranscriptArchiver, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: defaultWorkerConcurrency,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
			QueueLow:      1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		deliverer: deliverer,
		calls:     calls,
		archiver:  archiver,
		log:       log,
	}

	mux.HandleFunc(TaskOutboxDelivery, w.handleOutboxDelivery)
	mux.HandleFunc(TaskCallArchive, w.handleCallArchive)

	return w, nil
}

// Run serves tasks until the context ends.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("task worker stopped", "error", err)
	}
}

func (w *Worker) handleOutboxDelivery(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOutboxDeliveryPayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	return w.deliverer.Deliver(ctx, outboxID)
}

func (w *Worker) handleCallArchive(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCallArchivePayload(task)
	if err != nil {
		return err
	}

	res, err := w.calls.GetResult(ctx, payload.CallID)
	if err != nil {
		// A purged record has nothing left to archive.
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}
	if res.Transcript == "" {
		return nil
	}

	key, err := w.archiver.ArchiveCall(ctx, res)
	if err != nil {
		return err
	}
	if key != "" {
		w.log.Debug("call archived", "callId", payload.CallID, "key", key)
	}
	return nil
}
