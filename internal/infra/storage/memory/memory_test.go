package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/imagematch/internal/core/domain"
	"github.com/vietddude/imagematch/internal/infra/storage"
)

func TestResultRepo_SaveAndGet(t *testing.T) {
	repo := NewResultRepo()
	ctx := context.Background()

	res := &domain.SearchResult{
		Query:         "red car",
		ImageFileName: "car.jpg",
		MatchScore:    88,
		MatchReason:   "A red car.",
		Metadata:      map[string]any{"size": 1024},
	}
	if err := repo.Save(ctx, res); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if res.ID == "" || res.CreatedAt.IsZero() {
		t.Fatal("Save should assign an id and timestamps")
	}
	if res.ImageMIMEType != domain.DefaultImageMIMEType || res.Source != domain.SourceUpload {
		t.Errorf("unexpected defaults %q %q", res.ImageMIMEType, res.Source)
	}

	got, err := repo.GetByID(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	got.Metadata["size"] = 0
	again, _ := repo.GetByID(ctx, res.ID)
	if again.Metadata["size"] != 1024 {
		t.Error("returned results must be copies")
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResultRepo_ListSearchDelete(t *testing.T) {
	repo := NewResultRepo()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	queries := []string{"Red car", "blue sky", "red dress"}
	for i, q := range queries {
		_ = repo.Save(ctx, &domain.SearchResult{
			ID:        fmt.Sprintf("r%d", i),
			Query:     q,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	all, _ := repo.List(ctx, 0)
	if len(all) != 3 || all[0].ID != "r2" {
		t.Fatalf("expected newest first, got %d results starting %v", len(all), all[0].ID)
	}

	limited, _ := repo.List(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}

	red, _ := repo.Search(ctx, "RED", 0)
	if len(red) != 2 {
		t.Errorf("expected 2 case-insensitive matches, got %d", len(red))
	}

	if err := repo.Delete(ctx, "r0"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := repo.Delete(ctx, "r0"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestResultRepo_Statistics(t *testing.T) {
	repo := NewResultRepo()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = repo.Save(ctx, &domain.SearchResult{Query: "cat"})
	}
	_ = repo.Save(ctx, &domain.SearchResult{Query: "dog"})
	for i := 0; i < 12; i++ {
		_ = repo.Save(ctx, &domain.SearchResult{Query: fmt.Sprintf("q%02d", i)})
	}

	stats, err := repo.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if stats.TotalResults != 16 {
		t.Errorf("expected 16 results, got %d", stats.TotalResults)
	}
	if len(stats.TopQueries) != storage.TopQueriesLimit {
		t.Fatalf("expected %d top queries, got %d", storage.TopQueriesLimit, len(stats.TopQueries))
	}
	if stats.TopQueries[0].Query != "cat" || stats.TopQueries[0].Count != 3 {
		t.Errorf("unexpected top query %+v", stats.TopQueries[0])
	}
}

func TestResultRepo_DeleteOlderThan(t *testing.T) {
	repo := NewResultRepo()
	ctx := context.Background()

	now := time.Now().UTC()
	old := &domain.SearchResult{Query: "q", ImageFileName: "old.jpg", CreatedAt: now.Add(-48 * time.Hour)}
	fresh := &domain.SearchResult{Query: "q", ImageFileName: "new.jpg"}
	_ = repo.Save(ctx, old)
	_ = repo.Save(ctx, fresh)

	n, err := repo.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	if _, err := repo.GetByID(ctx, old.ID); err == nil {
		t.Error("expected old result to be gone")
	}
	if _, err := repo.GetByID(ctx, fresh.ID); err != nil {
		t.Errorf("expected fresh result to remain: %v", err)
	}
}
