package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/imagematch/internal/core/domain"
	"github.com/vietddude/imagematch/internal/infra/storage"
)

// ResultRepo implements storage.SearchResultRepository using PostgreSQL.
type ResultRepo struct {
	db *DB
}

var _ storage.SearchResultRepository = (*ResultRepo)(nil)

// NewResultRepo creates a new PostgreSQL search result repository.
func NewResultRepo(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

type resultRow struct {
	ID            string    `db:"id"`
	Query         string    `db:"query"`
	ImageFileName string    `db:"image_file_name"`
	ImageURL      string    `db:"image_url"`
	MatchScore    float64   `db:"match_score"`
	MatchReason   string    `db:"match_reason"`
	ImageMIMEType string    `db:"image_mime_type"`
	Source        string    `db:"source"`
	DriveFileID   string    `db:"drive_file_id"`
	Metadata      []byte    `db:"metadata"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (row resultRow) toDomain() (*domain.SearchResult, error) {
	res := &domain.SearchResult{
		ID:            row.ID,
		Query:         row.Query,
		ImageFileName: row.ImageFileName,
		ImageURL:      row.ImageURL,
		MatchScore:    row.MatchScore,
		MatchReason:   row.MatchReason,
		ImageMIMEType: row.ImageMIMEType,
		Source:        domain.ResultSource(row.Source),
		DriveFileID:   row.DriveFileID,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &res.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", row.ID, err)
		}
		if len(res.Metadata) == 0 {
			res.Metadata = nil
		}
	}
	return res, nil
}

const selectColumns = `id, query, image_file_name, image_url, match_score, match_reason,
	image_mime_type, source, drive_file_id, metadata, created_at, updated_at`

// Save inserts a search result.
func (r *ResultRepo) Save(ctx context.Context, result *domain.SearchResult) error {
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

	meta := []byte("{}")
	if len(result.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(result.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO search_results (`+selectColumns+`)
		VALUES (:id, :query, :image_file_name, :image_url, :match_score, :match_reason,
			:image_mime_type, :source, :drive_file_id, :metadata, :created_at, :updated_at)`,
		resultRow{
			ID:            result.ID,
			Query:         result.Query,
			ImageFileName: result.ImageFileName,
			ImageURL:      result.ImageURL,
			MatchScore:    result.MatchScore,
			MatchReason:   result.MatchReason,
			ImageMIMEType: result.ImageMIMEType,
			Source:        string(result.Source),
			DriveFileID:   result.DriveFileID,
			Metadata:      meta,
			CreatedAt:     result.CreatedAt,
			UpdatedAt:     result.UpdatedAt,
		})
	if err != nil {
		return fmt.Errorf("failed to save search result: %w", err)
	}
	return nil
}

// GetByID retrieves a search result by id.
func (r *ResultRepo) GetByID(ctx context.Context, id string) (*domain.SearchResult, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, storage.ErrNotFound
	}

	var row resultRow
	err := r.db.GetContext(ctx, &row, `SELECT `+selectColumns+` FROM search_results WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get search result: %w", err)
	}
	return row.toDomain()
}

// List returns the newest results first.
func (r *ResultRepo) List(ctx context.Context, limit int) ([]*domain.SearchResult, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	return r.query(ctx, `SELECT `+selectColumns+` FROM search_results
		ORDER BY created_at DESC, id LIMIT $1`, limit)
}

// Search returns results whose query contains q.
func (r *ResultRepo) Search(ctx context.Context, q string, limit int) ([]*domain.SearchResult, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	return r.query(ctx, `SELECT `+selectColumns+` FROM search_results
		WHERE query ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC, id LIMIT $2`, q, limit)
}

func (r *ResultRepo) query(ctx context.Context, q string, args ...any) ([]*domain.SearchResult, error) {
	var rows []resultRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to list search results: %w", err)
	}

	out := make([]*domain.SearchResult, 0, len(rows))
	for _, row := range rows {
		res, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Delete removes a search result.
func (r *ResultRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return storage.ErrNotFound
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM search_results WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete search result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete search result: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteOlderThan removes results created before cutoff.
func (r *ResultRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM search_results WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune search results: %w", err)
	}
	return res.RowsAffected()
}

// Statistics returns the total count and the most frequent queries.
func (r *ResultRepo) Statistics(ctx context.Context) (*domain.Statistics, error) {
	stats := &domain.Statistics{}
	if err := r.db.GetContext(ctx, &stats.TotalResults, `SELECT COUNT(*) FROM search_results`); err != nil {
		return nil, fmt.Errorf("failed to count search results: %w", err)
	}

	var top []struct {
		Query string `db:"query"`
		Count int    `db:"count"`
	}
	err := r.db.SelectContext(ctx, &top, `
		SELECT query, COUNT(*) AS count FROM search_results
		GROUP BY query ORDER BY count DESC, query LIMIT $1`, storage.TopQueriesLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate queries: %w", err)
	}

	stats.TopQueries = make([]domain.QueryCount, 0, len(top))
	for _, t := range top {
		stats.TopQueries = append(stats.TopQueries, domain.QueryCount{Query: t.Query, Count: t.Count})
	}
	return stats, nil
}
