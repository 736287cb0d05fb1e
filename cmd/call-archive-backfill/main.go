package main

import (
	"context"
	"flag"

	"hireline_backend/internal/archive"
	callsrepo "hireline_backend/internal/calls/repository"
	"hireline_backend/platform/config"
	"hireline_backend/platform/db"
	"hireline_backend/platform/logger"
)

const batchSize = 100

func main() {
	dryRun := flag.Bool("dry-run", false, "list records that would be archived without uploading")
	limit := flag.Int("limit", 0, "stop after this many records (0 = no limit)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting call archive backfill", "dryRun", *dryRun, "limit", *limit)

	if !cfg.IsArchiveEnabled() {
		log.Warn("transcript archive disabled (MINIO_ENDPOINT not set), nothing to do")
		return
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	repo := callsrepo.New(pool)
	archiver, err := archive.New(cfg, repo, log)
	if err != nil {
		log.Error("failed to initialize transcript archive", "error", err)
		panic("failed to initialize transcript archive: " + err.Error())
	}

	if *dryRun {
		listPending(ctx, archiver, *limit, log)
		return
	}

	if err := archiver.EnsureBucket(ctx); err != nil {
		log.Error("failed to ensure archive bucket exists", "error", err)
		panic("failed to ensure archive bucket exists: " + err.Error())
	}

	var archived int
	for {
		batch := batchSize
		if *limit > 0 && *limit-archived < batch {
			batch = *limit - archived
		}
		if batch <= 0 {
			break
		}

		n, err := archiver.ArchiveBatch(ctx, batch)
		archived += n
		if err != nil {
			// Partial batches repeat the same failures on the next pass, so
			// stop here rather than loop on them.
			log.Error("backfill stopped on incomplete batch", "archived", archived, "error", err)
			return
		}
		if n == 0 {
			break
		}
		log.Info("batch archived", "count", n, "total", archived)
	}

	log.Info("call archive backfill completed", "archived", archived)
}

func listPending(ctx context.Context, archiver *archive.Archiver, limit int, log *logger.Logger) {
	if limit <= 0 {
		limit = batchSize
	}

	pending, err := archiver.Pending(ctx, limit)
	if err != nil {
		log.Error("failed to list unarchived call records", "error", err)
		panic("failed to list unarchived call records: " + err.Error())
	}

	for _, rec := range pending {
		log.Info("would archive", "callId", rec.CallID, "status", string(rec.Status), "key", archive.ObjectKey(rec.CallID))
	}
	log.Info("dry run complete", "pending", len(pending))
}
