package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/vietddude/imagematch/internal/core/domain"
	"github.com/vietddude/imagematch/internal/infra/storage"
)

// Requires a disposable database; set IMAGEMATCH_TEST_DB to its URL.
func setupDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("IMAGEMATCH_TEST_DB")
	if url == "" {
		t.Skip("IMAGEMATCH_TEST_DB not set")
	}

	ctx := context.Background()
	db, err := NewDB(ctx, Config{URL: url})
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE search_results`); err != nil {
		t.Fatalf("Failed to truncate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestResultRepo_Integration(t *testing.T) {
	db := setupDB(t)
	repo := NewResultRepo(db)
	ctx := context.Background()

	res := &domain.SearchResult{
		Query:         "red car",
		ImageFileName: "car.jpg",
		MatchScore:    91.5,
		MatchReason:   "A red car in the street.",
		Source:        domain.SourceGoogleDrive,
		DriveFileID:   "drive-123",
		Metadata:      map[string]any{"width": float64(640)},
	}
	if err := repo.Save(ctx, res); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	_ = repo.Save(ctx, &domain.SearchResult{Query: "red car", ImageFileName: "b.jpg"})
	_ = repo.Save(ctx, &domain.SearchResult{Query: "blue sky", ImageFileName: "c.jpg"})

	got, err := repo.GetByID(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.DriveFileID != "drive-123" || got.Metadata["width"] != float64(640) {
		t.Errorf("unexpected result %+v", got)
	}

	found, err := repo.Search(ctx, "RED", 0)
	if err != nil || len(found) != 2 {
		t.Fatalf("expected 2 matches, got %d (%v)", len(found), err)
	}

	stats, err := repo.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if stats.TotalResults != 3 || stats.TopQueries[0].Query != "red car" || stats.TopQueries[0].Count != 2 {
		t.Errorf("unexpected statistics %+v", stats)
	}

	if err := repo.Delete(ctx, res.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.GetByID(ctx, res.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "not-a-uuid"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for malformed id, got %v", err)
	}

	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 pruned, got %d", n)
	}
}
