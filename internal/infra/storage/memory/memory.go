package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/imagematch/internal/core/domain"
	"github.com/vietddude/imagematch/internal/infra/storage"
)

// ResultRepo is an in-memory storage.SearchResultRepository, used when no
// database is configured.
type ResultRepo struct {
	mu      sync.RWMutex
	results map[string]*domain.SearchResult
}

var _ storage.SearchResultRepository = (*ResultRepo)(nil)

func NewResultRepo() *ResultRepo {
	return &ResultRepo{results: make(map[string]*domain.SearchResult)}
}

func clone(r *domain.SearchResult) *domain.SearchResult {
	c := *r
	if r.Metadata != nil {
		c.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func (r *ResultRepo) Save(ctx context.Context, result *domain.SearchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = now
	}
	result.UpdatedAt = now
	if result.ImageMIMEType == "" {
		result.ImageMIMEType = domain.DefaultImageMIMEType
	}
	if result.Source == "" {
		result.Source = domain.SourceUpload
	}

	r.results[result.ID] = clone(result)
	return nil
}

func (r *ResultRepo) GetByID(ctx context.Context, id string) (*domain.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.results[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(res), nil
}

func (r *ResultRepo) List(ctx context.Context, limit int) ([]*domain.SearchResult, error) {
	return r.filter(func(*domain.SearchResult) bool { return true }, limit), nil
}

func (r *ResultRepo) Search(ctx context.Context, q string, limit int) ([]*domain.SearchResult, error) {
	needle := strings.ToLower(q)
	return r.filter(func(res *domain.SearchResult) bool {
		return strings.Contains(strings.ToLower(res.Query), needle)
	}, limit), nil
}

func (r *ResultRepo) filter(match func(*domain.SearchResult) bool, limit int) []*domain.SearchResult {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.SearchResult, 0, len(r.results))
	for _, res := range r.results {
		if match(res) {
			out = append(out, clone(res))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *ResultRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.results[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.results, id)
	return nil
}

func (r *ResultRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, res := range r.results {
		if res.CreatedAt.Before(cutoff) {
			delete(r.results, id)
			n++
		}
	}
	return n, nil
}

func (r *ResultRepo) Statistics(ctx context.Context) (*domain.Statistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, res := range r.results {
		counts[res.Query]++
	}

	top := make([]domain.QueryCount, 0, len(counts))
	for q, n := range counts {
		top = append(top, domain.QueryCount{Query: q, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count == top[j].Count {
			return top[i].Query < top[j].Query
		}
		return top[i].Count > top[j].Count
	})
	if len(top) > storage.TopQueriesLimit {
		top = top[:storage.TopQueriesLimit]
	}

	return &domain.Statistics{
		TotalResults: len(r.results),
		TopQueries:   top,
	}, nil
}
