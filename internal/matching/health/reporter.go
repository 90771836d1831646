package health

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/vietddude/imagematch/internal/core/domain"
	"github.com/vietddude/imagematch/internal/infra/genai/credential"
	"github.com/vietddude/imagematch/internal/infra/genai/routing"
	"github.com/vietddude/imagematch/internal/infra/genai/usage"
	"github.com/vietddude/imagematch/internal/matching/metrics"
)

// Reporter is the operator view of the key pool.
type Reporter struct {
	pool   *credential.Pool
	policy *routing.Policy
	ledger usage.Ledger
}

// NewReporter creates a reporter. ledger may be nil.
func NewReporter(pool *credential.Pool, policy *routing.Policy, ledger usage.Ledger) *Reporter {
	return &Reporter{pool: pool, policy: policy, ledger: ledger}
}

// Health returns the pool summary and refreshes the key gauges.
func (r *Reporter) Health() domain.KeyHealth {
	h := r.pool.Health()
	observe(h)
	return h
}

// Status returns the derived system status.
func (r *Reporter) Status() SystemStatus {
	return Evaluate(r.Health())
}

// IsWorking reports whether the active key is still below the threshold.
func (r *Reporter) IsWorking() bool {
	h := r.pool.Health()
	return h.TotalKeys > 0 && h.ActiveKeyStatus.FailureCount < h.Threshold
}

// Statuses returns a snapshot of every key.
func (r *Reporter) Statuses() []domain.CredentialStatus {
	return r.pool.Statuses()
}

// Usage returns the key statuses with today's call counts filled in.
func (r *Reporter) Usage(ctx context.Context) ([]domain.CredentialStatus, error) {
	statuses := r.pool.Statuses()
	if r.ledger == nil {
		return statuses, nil
	}

	counts, err := r.ledger.Counts(ctx)
	if err != nil {
		return statuses, err
	}
	for i := range statuses {
		statuses[i].CallsToday = counts[statuses[i].Index]
	}
	return statuses, nil
}

// SwitchToNext forces a rotation. It returns false when no other key is usable.
func (r *Reporter) SwitchToNext() bool {
	from := r.pool.ActiveIndex()
	ok := r.policy.SwitchToNext()
	if ok {
		metrics.KeyRotationsTotal.WithLabelValues("manual").Inc()
		slog.Info("Manually switched API key", "from", from, "to", r.pool.ActiveIndex())
	} else {
		slog.Warn("Manual API key switch failed: no usable key", "active", from)
	}
	observe(r.pool.Health())
	return ok
}

// ResetFailureCounts clears the failure counters of every key.
func (r *Reporter) ResetFailureCounts() {
	r.pool.ResetFailures()
	observe(r.pool.Health())
}

// ResetFailure clears the failure counter of one key.
func (r *Reporter) ResetFailure(index int) error {
	if err := r.pool.ResetFailure(index); err != nil {
		return err
	}
	observe(r.pool.Health())
	return nil
}

// Reload replaces the configured keys.
func (r *Reporter) Reload(keys []string) error {
	if err := r.pool.Reload(keys); err != nil {
		return err
	}
	metrics.KeyFailureCount.Reset()
	observe(r.pool.Health())
	return nil
}

func observe(h domain.KeyHealth) {
	if h.TotalKeys == 0 {
		return
	}
	metrics.ActiveKeyIndex.Set(float64(h.CurrentKeyIndex))
	metrics.KeyFailureCount.WithLabelValues(strconv.Itoa(h.ActiveKeyStatus.Index)).
		Set(float64(h.ActiveKeyStatus.FailureCount))
	for _, k := range h.BackupKeys {
		metrics.KeyFailureCount.WithLabelValues(strconv.Itoa(k.Index)).Set(float64(k.FailureCount))
	}
}
