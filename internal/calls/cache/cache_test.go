package cache

import (
	"sync"
	"testing"
	"time"

	"hireline_backend/internal/calls/domain"
)

func newTestCache(ttl time.Duration) (*Cache, *time.Time) {
	c := New(ttl)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCacheUpsertAndGet(t *testing.T) {
	c, _ := newTestCache(30 * time.Minute)

	stored := c.Upsert("call-1", func(r *domain.CallResult) {
		r.Status = domain.CallStatusCompleted
		r.Transcript = "hello"
	})
	if stored.CallID != "call-1" {
		t.Fatalf("CallID = %q", stored.CallID)
	}
	if stored.Completeness != domain.CompletenessPartial {
		t.Fatalf("new entry completeness = %q, want partial", stored.Completeness)
	}

	got, ok := c.Get("call-1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Transcript != "hello" || got.Status != domain.CallStatusCompleted {
		t.Fatalf("unexpected result: %+v", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss for unknown id")
	}
}

func TestCacheExpiry(t *testing.T) {
	c, now := newTestCache(30 * time.Minute)

	c.Upsert("call-1", func(r *domain.CallResult) { r.Status = domain.CallStatusCompleted })

	*now = now.Add(29 * time.Minute)
	if _, ok := c.Get("call-1"); !ok {
		t.Fatal("entry expired too early")
	}

	// Reading renews nothing; only writes reset the TTL.
	*now = now.Add(2 * time.Minute)
	if _, ok := c.Get("call-1"); ok {
		t.Fatal("entry should have expired")
	}

	// A write renews the TTL.
	c.Upsert("call-2", func(r *domain.CallResult) {})
	*now = now.Add(20 * time.Minute)
	c.Update("call-2", func(r *domain.CallResult) { r.Cost = 0.5 })
	*now = now.Add(20 * time.Minute)
	if _, ok := c.Get("call-2"); !ok {
		t.Fatal("update should have renewed the TTL")
	}
}

func TestCacheUpdateMissReportsEviction(t *testing.T) {
	c, now := newTestCache(time.Minute)
	c.Upsert("call-1", func(r *domain.CallResult) {})
	*now = now.Add(2 * time.Minute)

	if _, ok := c.Update("call-1", func(r *domain.CallResult) { r.Cost = 1 }); ok {
		t.Fatal("update on expired entry should miss")
	}
}

func TestCacheUpsertAfterExpiryStartsFresh(t *testing.T) {
	c, now := newTestCache(time.Minute)
	c.Upsert("call-1", func(r *domain.CallResult) {
		r.Transcript = "stale"
		r.SetCompleteness(domain.CompletenessComplete)
	})
	*now = now.Add(2 * time.Minute)

	fresh := c.Upsert("call-1", func(r *domain.CallResult) { r.Status = domain.CallStatusCompleted })
	if fresh.Transcript != "" {
		t.Fatalf("expected fresh entry, got transcript %q", fresh.Transcript)
	}
	if fresh.Completeness != domain.CompletenessPartial {
		t.Fatalf("expected partial completeness on fresh entry, got %q", fresh.Completeness)
	}
}

func TestCacheSweep(t *testing.T) {
	c, now := newTestCache(time.Minute)
	c.Upsert("a", func(r *domain.CallResult) {})
	c.Upsert("b", func(r *domain.CallResult) {})
	*now = now.Add(30 * time.Second)
	c.Upsert("c", func(r *domain.CallResult) {})
	*now = now.Add(45 * time.Second)

	if dropped := c.Sweep(); dropped != 2 {
		t.Fatalf("Sweep() dropped %d, want 2", dropped)
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("sweep removed a live entry")
	}
}

func TestCacheStats(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Upsert("a", func(r *domain.CallResult) { r.Status = domain.CallStatusCompleted })
	c.Upsert("b", func(r *domain.CallResult) {
		r.Status = domain.CallStatusCompleted
		r.SetCompleteness(domain.CompletenessComplete)
	})
	c.Upsert("x", func(r *domain.CallResult) { r.Status = domain.CallStatusNoAnswer })

	s := c.Stats()
	if s.Entries != 3 {
		t.Fatalf("Entries = %d, want 3", s.Entries)
	}
	if s.ByCompleteness["partial"] != 2 || s.ByCompleteness["complete"] != 1 {
		t.Fatalf("ByCompleteness = %v", s.ByCompleteness)
	}
	if s.ByStatus["completed"] != 2 || s.ByStatus["no_answer"] != 1 {
		t.Fatalf("ByStatus = %v", s.ByStatus)
	}
}

func TestCacheFlushAndDelete(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Upsert("a", func(r *domain.CallResult) {})
	c.Upsert("b", func(r *domain.CallResult) {})

	if !c.Delete("a") {
		t.Fatal("delete existing entry should report true")
	}
	if c.Delete("a") {
		t.Fatal("second delete should report false")
	}
	if n := c.Flush(); n != 1 {
		t.Fatalf("Flush() = %d, want 1", n)
	}
	if s := c.Stats(); s.Entries != 0 {
		t.Fatalf("entries after flush = %d", s.Entries)
	}
}

func TestCacheGetReturnsCopy(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Upsert("a", func(r *domain.CallResult) {
		r.Analysis = &domain.Analysis{StructuredData: map[string]any{"price": "100"}}
	})

	got, _ := c.Get("a")
	got.Analysis.StructuredData["price"] = "tampered"
	got.Transcript = "tampered"

	again, _ := c.Get("a")
	if again.Analysis.StructuredData["price"] != "100" {
		t.Fatal("Get must return a copy of structured data")
	}
	if again.Transcript != "" {
		t.Fatal("Get must return a copy of the result")
	}
}

func TestCacheConcurrentUpsertsSerialize(t *testing.T) {
	c := New(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Upsert("call-1", func(r *domain.CallResult) {
				r.DurationSeconds++
			})
		}()
	}
	wg.Wait()

	got, ok := c.Get("call-1")
	if !ok {
		t.Fatal("expected entry")
	}
	if got.DurationSeconds != 50 {
		t.Fatalf("DurationSeconds = %d, want 50 (lost updates)", got.DurationSeconds)
	}
}
