package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

func TestCartStorage_SaveLoadDelete(t *testing.T) {
	storage := NewCartStorage()
	ctx := context.Background()

	if _, err := storage.Load(ctx, "s1"); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}

	blob := []byte(`{"version":1,"items":[]}`)
	if err := storage.Save(ctx, "s1", blob); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	blob[0] = 'X'

	got, err := storage.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if string(got) != `{"version":1,"items":[]}` {
		t.Fatalf("stored blob must not alias caller buffer, got %q", got)
	}

	if err := storage.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := storage.Delete(ctx, "s1"); err != nil {
		t.Fatalf("repeated delete must succeed, got %v", err)
	}
	if _, err := storage.Load(ctx, "s1"); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound after delete, got %v", err)
	}
}

func TestCartStorage_DeleteStale(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	current := now.Add(-48 * time.Hour)
	storage := newCartStorage(func() time.Time { return current })
	ctx := context.Background()

	for _, id := range []string{"old-1", "old-2", "old-3"} {
		if err := storage.Save(ctx, id, []byte("{}")); err != nil {
			t.Fatalf("save %s failed: %v", id, err)
		}
	}
	current = now
	if err := storage.Save(ctx, "fresh", []byte("{}")); err != nil {
		t.Fatalf("save fresh failed: %v", err)
	}

	removed, err := storage.DeleteStale(ctx, now.Add(-24*time.Hour), 2)
	if err != nil {
		t.Fatalf("delete stale failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected limit of 2 removals, got %d", removed)
	}

	removed, err = storage.DeleteStale(ctx, now.Add(-24*time.Hour), 0)
	if err != nil {
		t.Fatalf("delete stale failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected remaining stale blob removed, got %d", removed)
	}

	if _, err := storage.Load(ctx, "fresh"); err != nil {
		t.Fatalf("fresh blob must survive, got %v", err)
	}
}
