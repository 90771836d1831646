package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/imagematch/internal/infra/genai/usage"
)

// usageTTL keeps yesterday's bucket around for late readers.
const usageTTL = 48 * time.Hour

// UsageLedger implements usage.Ledger with one hash per UTC day.
type UsageLedger struct {
	rdb *redis.Client
	now func() time.Time
}

var _ usage.Ledger = (*UsageLedger)(nil)

// NewUsageLedger creates a Redis-backed usage ledger.
func NewUsageLedger(client *Client) *UsageLedger {
	return &UsageLedger{rdb: client.rdb, now: time.Now}
}

func usageKey(day string) string {
	return fmt.Sprintf("genai_usage:%s", day)
}

// Record increments today's counter for index.
func (l *UsageLedger) Record(ctx context.Context, index int) error {
	key := usageKey(usage.DayKey(l.now()))

	pipe := l.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, strconv.Itoa(index), 1)
	pipe.Expire(ctx, key, usageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hincrby failed: %w", err)
	}
	return nil
}

// Counts returns today's counters keyed by credential index.
func (l *UsageLedger) Counts(ctx context.Context) (map[int]int64, error) {
	key := usageKey(usage.DayKey(l.now()))

	raw, err := l.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall failed: %w", err)
	}

	counts := make(map[int]int64, len(raw))
	for field, val := range raw {
		idx, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid counter %s=%q: %w", field, val, err)
		}
		counts[idx] = n
	}
	return counts, nil
}
