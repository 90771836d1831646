package redis

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestUsageKey(t *testing.T) {
	if got := usageKey("20260301"); got != "genai_usage:20260301" {
		t.Errorf("unexpected key %s", got)
	}
}

// Requires a disposable Redis; set IMAGEMATCH_TEST_REDIS=redis://localhost:6379/15.
func TestUsageLedger_Integration(t *testing.T) {
	url := os.Getenv("IMAGEMATCH_TEST_REDIS")
	if url == "" {
		t.Skip("IMAGEMATCH_TEST_REDIS not set")
	}

	client, err := NewClient(Config{URL: url})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	ledger := NewUsageLedger(client)
	ledger.now = func() time.Time { return time.Date(2001, 1, 1, 12, 0, 0, 0, time.UTC) }

	key := usageKey("20010101")
	client.rdb.Del(ctx, key)
	defer client.rdb.Del(ctx, key)

	for i := 0; i < 3; i++ {
		if err := ledger.Record(ctx, 1); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := ledger.Record(ctx, 0); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	counts, err := ledger.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[0] != 1 || counts[1] != 3 {
		t.Errorf("unexpected counts %v", counts)
	}

	ttl := client.rdb.TTL(ctx, key).Val()
	if ttl <= 0 || ttl > usageTTL {
		t.Errorf("expected ttl within %v, got %v", usageTTL, ttl)
	}
}
