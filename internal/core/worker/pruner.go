// Package worker holds background maintenance jobs.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/imagematch/internal/infra/storage"
)

// Pruner deletes archived search results older than the retention period.
type Pruner struct {
	retention time.Duration
	repo      storage.SearchResultRepository
	now       func() time.Time
}

// NewPruner creates a new Pruner worker. A zero retention disables it.
func NewPruner(retention time.Duration, repo storage.SearchResultRepository) *Pruner {
	return &Pruner{
		retention: retention,
		repo:      repo,
		now:       time.Now,
	}
}

// Interval is how often the pruner runs: a tenth of the retention period,
// clamped to 1m..1h.
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, time.Hour)
	return max(interval, time.Minute)
}

// Start runs the pruner loop until ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune removes expired results once and returns how many were removed.
func (p *Pruner) Prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention)
	n, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to prune search results", "cutoff", cutoff, "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("Pruned search results", "count", n, "cutoff", cutoff)
	}
	return n
}
