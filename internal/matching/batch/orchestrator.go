// Package batch rates lists of images against a query, switching API keys
// when the active one runs out of quota or is rejected.
//
// This package contains:
//   - Orchestrator: sub-batched, key-rotating RateBatch with a per-query cache
//   - session: cached results for the current query
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/vietddude/imagematch/internal/core/domain"
	"github.com/vietddude/imagematch/internal/infra/genai/credential"
	"github.com/vietddude/imagematch/internal/infra/genai/gemini"
	"github.com/vietddude/imagematch/internal/infra/genai/routing"
	"github.com/vietddude/imagematch/internal/infra/genai/usage"
	"github.com/vietddude/imagematch/internal/matching/metrics"
)

// DefaultConcurrency is the number of calls in flight per sub-batch.
const DefaultConcurrency = 3

// Reasons given for items that did not get a real score.
const (
	ReasonInvalidFormat = "Invalid response format"
	ReasonExhausted     = "All API keys exhausted"
	ReasonRetryLimit    = "Retry limit reached"
	reasonFailedPrefix  = "Failed to process image: "
)

// Orchestrator runs RateBatch against the shared key pool.
type Orchestrator struct {
	// mu serializes RateBatch; the session is shared between calls.
	mu sync.Mutex

	pool    *credential.Pool
	policy  *routing.Policy
	invoker gemini.Invoker
	ledger  usage.Ledger

	concurrency int
	callTimeout time.Duration
	log         *slog.Logger

	sessMu  sync.Mutex
	session *session
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency sets the sub-batch size. Values below 1 are clamped to 1.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		o.concurrency = max(1, n)
	}
}

// WithCallTimeout bounds each model call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.callTimeout = d
	}
}

// WithLedger records every successful call in l.
func WithLedger(l usage.Ledger) Option {
	return func(o *Orchestrator) {
		o.ledger = l
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// NewOrchestrator creates an orchestrator over pool. The policy must wrap the
// same pool.
func NewOrchestrator(
	pool *credential.Pool,
	policy *routing.Policy,
	invoker gemini.Invoker,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		pool:        pool,
		policy:      policy,
		invoker:     invoker,
		concurrency: DefaultConcurrency,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Session returns a snapshot of the current session, if any.
func (o *Orchestrator) Session() (domain.SessionInfo, bool) {
	o.sessMu.Lock()
	defer o.sessMu.Unlock()
	if o.session == nil {
		return domain.SessionInfo{}, false
	}
	return o.session.info(), true
}

// callResult is the outcome of one model call.
type callResult struct {
	score  float64
	reason string
	err    error
}

// attemptOutcome says how one pass over the pending items ended.
type attemptOutcome int

const (
	attemptDone attemptOutcome = iota
	attemptRetry
	attemptExhausted
	attemptFailed
)

// RateBatch scores every item against query. The result has the same length
// and order as items. Per-item failures degrade to a zero score with a reason;
// an error is returned only when the key pool is unusable.
func (o *Orchestrator) RateBatch(ctx context.Context, items []domain.Item, query string) ([]domain.Score, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pool.ActiveIndex() < 0 {
		return nil, credential.ErrNoCredential
	}

	out := make([]domain.Score, len(items))
	if len(items) == 0 {
		return out, nil
	}

	start := time.Now()
	defer func() { metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()

	sess := o.beginSession(query, items)
	resolved := make([]bool, len(items))
	for i, it := range items {
		out[i].ID = it.ID
	}

	// Repeated ids share the call made for their first position.
	dupOf := make(map[int]int)
	first := make(map[string]int, len(items))
	for i, it := range items {
		if j, ok := first[it.ID]; ok {
			dupOf[i] = j
			resolved[i] = true
			continue
		}
		first[it.ID] = i
	}

	poolSize := o.pool.Size()
	var failReason string
	outcome := attemptDone

	for attempt := 0; attempt < poolSize; attempt++ {
		pending := o.fillFromCache(sess, items, out, resolved)
		if len(pending) == 0 {
			outcome = attemptDone
			break
		}

		var err error
		outcome, failReason, err = o.runAttempt(ctx, sess, items, pending, query, out, resolved)
		if err != nil {
			return nil, err
		}
		if outcome != attemptRetry {
			break
		}
		o.log.Info("Retrying batch with next API key",
			"attempt", attempt+1,
			"remaining", len(pending),
			"active", o.pool.ActiveIndex(),
		)
	}

	switch outcome {
	case attemptExhausted:
		o.fillRemaining(out, resolved, ReasonExhausted, "exhausted")
	case attemptFailed:
		o.fillRemaining(out, resolved, reasonFailedPrefix+failReason, "failed")
	default:
		o.fillFromCache(sess, items, out, resolved)
		o.fillRemaining(out, resolved, ReasonRetryLimit, "retry_limit")
	}
	for i, j := range dupOf {
		out[i] = domain.Score{ID: items[i].ID, Score: out[j].Score, Reason: out[j].Reason}
	}

	o.sessMu.Lock()
	if sess.complete() && sess.active {
		sess.end()
		o.log.Info("Batch session completed",
			"session", sess.id,
			"items", sess.totalItems,
			"duration", time.Since(start),
		)
	}
	o.sessMu.Unlock()

	return out, nil
}

// beginSession resumes the session for query or replaces it.
func (o *Orchestrator) beginSession(query string, items []domain.Item) *session {
	o.sessMu.Lock()
	defer o.sessMu.Unlock()

	if o.session == nil || o.session.query != query {
		if o.session != nil {
			o.log.Info("Discarding batch session for previous query",
				"session", o.session.id,
				"cached", len(o.session.results),
			)
		}
		o.session = newSession(query)
	}
	o.session.attach(items)
	return o.session
}

// fillFromCache resolves items already scored in sess and returns the
// positions still pending.
func (o *Orchestrator) fillFromCache(sess *session, items []domain.Item, out []domain.Score, resolved []bool) []int {
	o.sessMu.Lock()
	defer o.sessMu.Unlock()

	var pending []int
	for i, it := range items {
		if resolved[i] {
			continue
		}
		if r, ok := sess.get(it.ID); ok {
			out[i] = domain.Score{ID: it.ID, Score: r.score, Reason: r.reason}
			resolved[i] = true
			metrics.ItemsRatedTotal.WithLabelValues("cached").Inc()
			continue
		}
		pending = append(pending, i)
	}
	return pending
}

func (o *Orchestrator) fillRemaining(out []domain.Score, resolved []bool, reason, label string) {
	for i := range out {
		if resolved[i] {
			continue
		}
		out[i].Score = 0
		out[i].Reason = reason
		resolved[i] = true
		metrics.ItemsRatedTotal.WithLabelValues(label).Inc()
	}
}

// runAttempt rates pending items with the active key, one sub-batch at a
// time. It stops issuing sub-batches as soon as one of them ends in a failure.
// An item whose call failed without rotating keeps its own error as reason;
// when the same sub-batch also rotated, the rest are retried with the new key.
func (o *Orchestrator) runAttempt(
	ctx context.Context,
	sess *session,
	items []domain.Item,
	pending []int,
	query string,
	out []domain.Score,
	resolved []bool,
) (attemptOutcome, string, error) {
	cred, err := o.pool.Active()
	if err != nil {
		return attemptFailed, "", fmt.Errorf("failed to get active API key: %w", err)
	}
	keyLabel := strconv.Itoa(cred.Index)

	for start := 0; start < len(pending); start += o.concurrency {
		end := min(start+o.concurrency, len(pending))
		chunk := pending[start:end]

		if err := ctx.Err(); err != nil {
			return attemptFailed, err.Error(), nil
		}

		results := make([]callResult, len(chunk))
		var wg sync.WaitGroup
		for j, pos := range chunk {
			wg.Add(1)
			go func(j int, item domain.Item) {
				defer wg.Done()
				results[j] = o.rateOne(ctx, cred, item, query)
			}(j, items[pos])
		}
		wg.Wait()

		var (
			retry      bool
			exhausted  bool
			failReason string
		)
		for j, r := range results {
			pos := chunk[j]
			item := items[pos]

			if r.err == nil {
				out[pos] = domain.Score{ID: item.ID, Score: r.score, Reason: r.reason}
				resolved[pos] = true
				o.recordSuccess(ctx, sess, item.ID, cred.Index, r)
				continue
			}

			metrics.GenAICallsTotal.WithLabelValues(keyLabel, "error").Inc()

			// Cancellation by the caller says nothing about the key.
			if ctx.Err() != nil {
				if failReason == "" {
					failReason = r.err.Error()
				}
				continue
			}

			d := o.policy.HandleFailure(cred.Index, r.err)
			metrics.GenAIFailuresTotal.WithLabelValues(keyLabel, d.Class.String()).Inc()

			switch {
			case d.Stale, d.Rotated:
				if d.Rotated {
					metrics.KeyRotationsTotal.WithLabelValues(d.Class.String()).Inc()
				}
				retry = true
			case d.Exhausted:
				metrics.KeysExhaustedTotal.Inc()
				exhausted = true
			default:
				out[pos] = domain.Score{ID: item.ID, Score: 0, Reason: reasonFailedPrefix + r.err.Error()}
				resolved[pos] = true
				metrics.ItemsRatedTotal.WithLabelValues("failed").Inc()
				if failReason == "" {
					failReason = r.err.Error()
				}
			}

			o.log.Warn("Image rating failed",
				"item", item.ID,
				"key", cred.Index,
				"class", d.Class.String(),
				"rotated", d.Rotated,
				"stale", d.Stale,
				"error", r.err,
			)
		}
		metrics.ActiveKeyIndex.Set(float64(o.pool.ActiveIndex()))

		switch {
		case exhausted:
			o.log.Error("All API keys exhausted", "remaining", countUnresolved(resolved))
			return attemptExhausted, "", nil
		case retry:
			return attemptRetry, "", nil
		case failReason != "":
			return attemptFailed, failReason, nil
		}
	}

	return attemptDone, "", nil
}

func (o *Orchestrator) recordSuccess(ctx context.Context, sess *session, id string, index int, r callResult) {
	label := "scored"
	if r.reason == ReasonInvalidFormat {
		label = "invalid"
	}
	metrics.ItemsRatedTotal.WithLabelValues(label).Inc()
	metrics.GenAICallsTotal.WithLabelValues(strconv.Itoa(index), "success").Inc()

	o.sessMu.Lock()
	sess.record(id, cachedResult{
		score:           r.score,
		reason:          r.reason,
		credentialIndex: index,
		processedAt:     time.Now(),
	})
	o.sessMu.Unlock()

	if o.ledger != nil {
		if err := o.ledger.Record(ctx, index); err != nil {
			o.log.Warn("Failed to record API key usage", "key", index, "error", err)
		}
	}
}

// rateOne calls the model for one item. A malformed answer is a result, not
// an error.
func (o *Orchestrator) rateOne(ctx context.Context, cred credential.Credential, item domain.Item, query string) callResult {
	callCtx := ctx
	if o.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
	}

	o.pool.MarkUsed(cred.Index)
	start := time.Now()
	raw, err := o.invoker.Invoke(callCtx, cred.Key, item.Payload, query)
	metrics.GenAILatency.WithLabelValues(strconv.Itoa(cred.Index)).Observe(time.Since(start).Seconds())
	if err != nil {
		return callResult{err: err}
	}

	score, reason, ok := parseScore(raw)
	if !ok {
		o.log.Debug("Malformed model output", "item", item.ID, "output", string(raw))
		return callResult{score: 0, reason: ReasonInvalidFormat}
	}
	return callResult{score: score, reason: reason}
}

// parseScore decodes {"score": number, "reason": string} and clamps the score
// into 0..100.
func parseScore(raw []byte) (float64, string, bool) {
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, "", false
	}
	score, ok := v["score"].(float64)
	if !ok {
		return 0, "", false
	}
	reason, ok := v["reason"].(string)
	if !ok {
		return 0, "", false
	}
	return min(max(score, 0), 100), reason, true
}

func countUnresolved(resolved []bool) int {
	n := 0
	for _, r := range resolved {
		if !r {
			n++
		}
	}
	return n
}
