package scheduler

import (
	"context"
	"time"

	"hireline_backend/platform/logger"
)

const (
	archiveSweepInterval = 10 * time.Minute
	archiveSweepBatch    = 100
)

// BatchArchiver archives a batch of unarchived call records.
type BatchArchiver interface {
	ArchiveBatch(ctx context.Context, limit int) (int, error)
}

// ArchiveSweep periodically archives finalized call records whose per-call
// task never ran: the queue was down, or the records predate archival being
// switched on.
type ArchiveSweep struct {
	archiver BatchArchiver
	log      *logger.Logger
}

func NewArchiveSweep(archiver BatchArchiver, log *logger.Logger) *ArchiveSweep {
	return &ArchiveSweep{archiver: archiver, log: log}
}

// Run sweeps immediately and then on a slow tick until the context ends.
func (s *ArchiveSweep) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(archiveSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ArchiveSweep) sweep(ctx context.Context) {
	archived, err := s.archiver.ArchiveBatch(ctx, archiveSweepBatch)
	if err != nil {
		s.log.Warn("archive sweep incomplete", "archived", archived, "error", err)
		return
	}
	if archived > 0 {
		s.log.Info("archive sweep", "archived", archived)
	}
}
