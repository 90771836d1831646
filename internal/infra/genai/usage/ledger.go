// Package usage counts successful model calls per API key per UTC day.
//
// This package contains:
//   - Ledger: interface shared by the memory and Redis implementations
//   - MemoryLedger: in-process ledger, used when Redis is not configured
package usage

import (
	"context"
	"sync"
	"time"
)

// Ledger records calls made with each credential index.
type Ledger interface {
	Record(ctx context.Context, index int) error
	Counts(ctx context.Context) (map[int]int64, error)
}

// DayKey formats the UTC day bucket t falls in.
func DayKey(t time.Time) string {
	return t.UTC().Format("20060102")
}

// MemoryLedger keeps today's counts in memory and drops them when the day
// changes.
type MemoryLedger struct {
	mu     sync.Mutex
	day    string
	counts map[int]int64
	now    func() time.Time
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		counts: make(map[int]int64),
		now:    time.Now,
	}
}

func (l *MemoryLedger) rollover() {
	day := DayKey(l.now())
	if day != l.day {
		l.day = day
		l.counts = make(map[int]int64)
	}
}

// Record increments today's count for index.
func (l *MemoryLedger) Record(_ context.Context, index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	l.counts[index]++
	return nil
}

// Counts returns a copy of today's counts.
func (l *MemoryLedger) Counts(_ context.Context) (map[int]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()

	out := make(map[int]int64, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out, nil
}
