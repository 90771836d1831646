package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/imagematch/internal/core/domain"
)

var (
	// ErrNotFound is returned when a search result doesn't exist
	ErrNotFound = errors.New("search result not found")
)

// DefaultListLimit bounds List and Search when the caller passes no limit.
const DefaultListLimit = 100

// TopQueriesLimit is the number of rows in Statistics.TopQueries.
const TopQueriesLimit = 10

// SearchResultRepository archives matched images.
type SearchResultRepository interface {
	// Save inserts a result, assigning ID and timestamps when empty
	Save(ctx context.Context, result *domain.SearchResult) error

	// GetByID retrieves a result by id
	GetByID(ctx context.Context, id string) (*domain.SearchResult, error)

	// List returns the newest results first
	List(ctx context.Context, limit int) ([]*domain.SearchResult, error)

	// Search returns results whose query contains q, case-insensitively
	Search(ctx context.Context, q string, limit int) ([]*domain.SearchResult, error)

	// Delete removes a result
	Delete(ctx context.Context, id string) error

	// Statistics aggregates the archive
	Statistics(ctx context.Context) (*domain.Statistics, error)

	// DeleteOlderThan removes results created before cutoff and returns how
	// many were removed
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
