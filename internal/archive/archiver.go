// Package archive copies finalized call records to S3-compatible object
// storage. The database keeps the operational snapshot; the archive holds the
// full JSON document per call so transcripts survive table cleanups.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"hireline_backend/internal/calls/domain"
	"hireline_backend/internal/calls/repository"
	"hireline_backend/platform/config"
	"hireline_backend/platform/logger"
)

const contentTypeJSON = "application/json"

// ObjectStore is the slice of the MinIO client the archiver uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// CallStore is the slice of the call records repository the archiver uses.
type CallStore interface {
	ListUnarchived(ctx context.Context, limit int) ([]domain.CallResult, error)
	SetArchiveKey(ctx context.Context, callID, key string) error
}

// Archiver uploads call record documents and marks them archived.
type Archiver struct {
	store  ObjectStore
	calls  CallStore
	bucket string
	log    *logger.Logger
}

// New creates an archiver from configuration. Returns nil when archival is
// not configured; callers treat a nil archiver as disabled.
func New(cfg config.ArchiveConfig, calls CallStore, log *logger.Logger) (*Archiver, error) {
	if !cfg.IsArchiveEnabled() {
		log.Info("transcript archive disabled (MINIO_ENDPOINT not set)")
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Archiver{
		store:  client,
		calls:  calls,
		bucket: cfg.GetArchiveBucket(),
		log:    log,
	}, nil
}

// EnsureBucket creates the archive bucket if it does not exist. A nil
// archiver is a no-op.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	if a == nil {
		return nil
	}
	exists, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// ObjectKey returns the deterministic archive key for a call. Re-archiving
// the same call overwrites the same object.
func ObjectKey(callID string) string {
	return "calls/" + callID + ".json"
}

// ArchiveCall uploads the record's JSON document and stores the object key
// on the call record. Returns the key; a nil archiver returns the empty key.
func (a *Archiver) ArchiveCall(ctx context.Context, res domain.CallResult) (string, error) {
	if a == nil {
		return "", nil
	}
	doc, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal call %s: %w", res.CallID, err)
	}

	key := ObjectKey(res.CallID)
	_, err = a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(doc), int64(len(doc)), minio.PutObjectOptions{
		ContentType: contentTypeJSON,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	if err := a.calls.SetArchiveKey(ctx, res.CallID, key); err != nil {
		return "", fmt.Errorf("record archive key for %s: %w", res.CallID, err)
	}
	return key, nil
}

// ArchiveBatch archives up to limit unarchived records, oldest first.
// Per-record failures are logged and skipped; the record stays unarchived
// and is picked up again by the next scan. Returns the number archived and
// an error when the batch did not fully succeed, so a task runner retries.
func (a *Archiver) ArchiveBatch(ctx context.Context, limit int) (int, error) {
	if a == nil {
		return 0, nil
	}
	records, err := a.calls.ListUnarchived(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unarchived: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	archived := 0
	for _, rec := range records {
		key, err := a.ArchiveCall(ctx, rec)
		if err != nil {
			a.log.Warn("call archive failed", "callId", rec.CallID, "error", err)
			continue
		}
		a.log.Debug("call archived", "callId", rec.CallID, "key", key)
		archived++
	}

	if archived < len(records) {
		return archived, fmt.Errorf("archived %d of %d call records", archived, len(records))
	}
	return archived, nil
}

// Pending reports the records the next batch would archive, capped at limit.
// Used by the backfill binary's dry-run mode.
func (a *Archiver) Pending(ctx context.Context, limit int) ([]domain.CallResult, error) {
	if a == nil {
		return nil, nil
	}
	return a.calls.ListUnarchived(ctx, limit)
}

// Compile-time checks.
var (
	_ ObjectStore = (*minio.Client)(nil)
	_ CallStore   = (*repository.Repo)(nil)
)
