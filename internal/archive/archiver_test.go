package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"hireline_backend/internal/calls/domain"
	"hireline_backend/platform/logger"
)

type fakeObjectStore struct {
	exists    bool
	made      []string
	objects   map[string][]byte
	putErrFor map[string]error
	putCount  int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}, putErrFor: map[string]error{}}
}

func (s *fakeObjectStore) BucketExists(_ context.Context, _ string) (bool, error) {
	return s.exists, nil
}

func (s *fakeObjectStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	s.made = append(s.made, bucket)
	return nil
}

func (s *fakeObjectStore) PutObject(_ context.Context, _, key string, reader io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	s.putCount++
	if err := s.putErrFor[key]; err != nil {
		return minio.UploadInfo{}, err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	s.objects[key] = data
	return minio.UploadInfo{Key: key, Size: int64(len(data))}, nil
}

type fakeCallStore struct {
	unarchived []domain.CallResult
	listErr    error
	keys       map[string]string
	setErr     error
}

func newFakeCallStore(records ...domain.CallResult) *fakeCallStore {
	return &fakeCallStore{unarchived: records, keys: map[string]string{}}
}

func (s *fakeCallStore) ListUnarchived(_ context.Context, limit int) ([]domain.CallResult, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if limit < len(s.unarchived) {
		return s.unarchived[:limit], nil
	}
	return s.unarchived, nil
}

func (s *fakeCallStore) SetArchiveKey(_ context.Context, callID, key string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.keys[callID] = key
	return nil
}

func completedCall(callID string) domain.CallResult {
	return domain.CallResult{
		CallID:       callID,
		ProviderName: "Alpha Plumbing",
		Phone:        "+15125550100",
		Status:       domain.CallStatusCompleted,
		Transcript:   "We can come tomorrow at nine.",
		Analysis:     &domain.Analysis{Summary: "available tomorrow"},
		Completeness: domain.CompletenessComplete,
		ReceivedAt:   time.Now(),
	}
}

func newArchiver(store ObjectStore, calls CallStore) *Archiver {
	return &Archiver{store: store, calls: calls, bucket: "call-transcripts", log: logger.New("development")}
}

func TestArchiveCallUploadsDocumentAndRecordsKey(t *testing.T) {
	store := newFakeObjectStore()
	calls := newFakeCallStore()
	a := newArchiver(store, calls)

	key, err := a.ArchiveCall(context.Background(), completedCall("c-100"))
	if err != nil {
		t.Fatalf("ArchiveCall: %v", err)
	}
	if key != "calls/c-100.json" {
		t.Errorf("key = %q, want calls/c-100.json", key)
	}

	data, ok := store.objects[key]
	if !ok {
		t.Fatalf("no object uploaded under %q", key)
	}
	var doc domain.CallResult
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("uploaded document is not valid JSON: %v", err)
	}
	if doc.Transcript != "We can come tomorrow at nine." {
		t.Errorf("archived transcript = %q", doc.Transcript)
	}
	if calls.keys["c-100"] != key {
		t.Errorf("recorded key = %q, want %q", calls.keys["c-100"], key)
	}
}

func TestArchiveBatchArchivesAllRecords(t *testing.T) {
	store := newFakeObjectStore()
	calls := newFakeCallStore(completedCall("c-1"), completedCall("c-2"))
	a := newArchiver(store, calls)

	n, err := a.ArchiveBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("ArchiveBatch: %v", err)
	}
	if n != 2 {
		t.Errorf("archived = %d, want 2", n)
	}
	if len(store.objects) != 2 {
		t.Errorf("uploaded objects = %d, want 2", len(store.objects))
	}
}

func TestArchiveBatchSkipsFailedUploads(t *testing.T) {
	store := newFakeObjectStore()
	store.putErrFor["calls/c-1.json"] = errors.New("connection reset")
	calls := newFakeCallStore(completedCall("c-1"), completedCall("c-2"))
	a := newArchiver(store, calls)

	n, err := a.ArchiveBatch(context.Background(), 10)
	if err == nil {
		t.Fatal("expected error for a partially failed batch")
	}
	if !strings.Contains(err.Error(), "archived 1 of 2") {
		t.Errorf("err = %v, want archived 1 of 2", err)
	}
	if n != 1 {
		t.Errorf("archived = %d, want 1", n)
	}
	if _, ok := calls.keys["c-1"]; ok {
		t.Error("failed upload must not record an archive key")
	}
	if calls.keys["c-2"] != "calls/c-2.json" {
		t.Errorf("c-2 key = %q", calls.keys["c-2"])
	}
}

func TestArchiveBatchEmptyIsNoop(t *testing.T) {
	store := newFakeObjectStore()
	a := newArchiver(store, newFakeCallStore())

	n, err := a.ArchiveBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("ArchiveBatch: %v", err)
	}
	if n != 0 || store.putCount != 0 {
		t.Errorf("archived = %d, uploads = %d, want 0 and 0", n, store.putCount)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	store := newFakeObjectStore()
	a := newArchiver(store, newFakeCallStore())

	if err := a.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	if len(store.made) != 1 || store.made[0] != "call-transcripts" {
		t.Errorf("made buckets = %v, want [call-transcripts]", store.made)
	}

	store.exists = true
	store.made = nil
	if err := a.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("EnsureBucket (existing): %v", err)
	}
	if len(store.made) != 0 {
		t.Errorf("existing bucket must not be recreated, made %v", store.made)
	}
}

type archiveConfig struct {
	endpoint string
}

func (c archiveConfig) GetMinIOEndpoint() string  { return c.endpoint }
func (c archiveConfig) GetMinIOAccessKey() string { return "access" }
func (c archiveConfig) GetMinIOSecretKey() string { return "secret" }
func (c archiveConfig) GetMinIOUseSSL() bool      { return false }
func (c archiveConfig) GetArchiveBucket() string  { return "call-transcripts" }
func (c archiveConfig) IsArchiveEnabled() bool    { return c.endpoint != "" }

func TestNewDisabledWithoutEndpoint(t *testing.T) {
	a, err := New(archiveConfig{}, newFakeCallStore(), logger.New("development"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a != nil {
		t.Error("unconfigured archiver should be nil")
	}
}
