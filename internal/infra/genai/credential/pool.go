// Package credential implements the API key pool used in front of the
// generation API.
//
// This package contains:
//   - Pool: ordered keys, the active pointer and per-key failure accounting
//   - Credential: the secret handed to a single outbound call
package credential

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/imagematch/internal/core/domain"
)

// DefaultFailureThreshold is the failure count at which a key is skipped by Rotate.
const DefaultFailureThreshold = 3

var (
	// ErrConfiguration is returned when the pool is initialized without keys.
	ErrConfiguration = errors.New("no API keys configured")

	// ErrNoCredential is returned when the pool is used before Initialize.
	ErrNoCredential = errors.New("no API key available: pool not initialized")

	// ErrUnknownIndex is returned by targeted operations on a missing index.
	ErrUnknownIndex = errors.New("unknown API key index")
)

// Credential is the secret used for one call, together with its pool index.
type Credential struct {
	Index int
	Key   string
}

type keyState struct {
	key          string
	index        int
	isActive     bool
	failureCount int
	lastError    string
	lastUsed     time.Time
}

// Pool holds the configured keys and tracks which one is active.
type Pool struct {
	mu sync.Mutex

	keys        []*keyState
	current     int
	threshold   int
	initialized bool

	log *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithFailureThreshold sets the failure threshold. Values below 1 are clamped to 1.
func WithFailureThreshold(n int) Option {
	return func(p *Pool) {
		p.threshold = max(1, n)
	}
}

// WithLogger sets the logger used for pool events.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pool) {
		p.log = log
	}
}

// NewPool creates an empty pool. Initialize must be called before use.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		threshold: DefaultFailureThreshold,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize (re)populates the pool. The first key becomes active and all
// failure counters start at zero.
func (p *Pool) Initialize(keys []string) error {
	if len(keys) == 0 {
		return fmt.Errorf("initialize key pool: %w", ErrConfiguration)
	}

	states := make([]*keyState, len(keys))
	for i, key := range keys {
		states[i] = &keyState{
			key:      key,
			index:    i,
			isActive: i == 0,
		}
	}

	p.mu.Lock()
	p.keys = states
	p.current = 0
	p.initialized = true
	p.mu.Unlock()

	p.log.Info("API key pool initialized", "keys", len(keys), "threshold", p.threshold)
	return nil
}

// Reload replaces all keys. Failure counters and the active pointer are reset.
func (p *Pool) Reload(keys []string) error {
	p.log.Info("Reloading API keys", "keys", len(keys))
	return p.Initialize(keys)
}

// Active returns the active key and stamps its last-used time.
func (p *Pool) Active() (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return Credential{}, ErrNoCredential
	}

	k := p.keys[p.current]
	k.lastUsed = time.Now()
	return Credential{Index: k.index, Key: k.key}, nil
}

// MarkUsed stamps the last-used time of the key at index. Unknown indexes
// are ignored; the pool may have been reloaded since the key was handed out.
func (p *Pool) MarkUsed(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index >= 0 && index < len(p.keys) {
		p.keys[index].lastUsed = time.Now()
	}
}

// ActiveIndex returns the index of the active key, or -1 before Initialize.
func (p *Pool) ActiveIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return -1
	}
	return p.current
}

// Size returns the number of keys in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Threshold returns the configured failure threshold.
func (p *Pool) Threshold() int {
	return p.threshold
}

// RecordFailure charges a failure to the active key. It reports whether the
// key is now at or above the threshold.
func (p *Pool) RecordFailure(err error) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return false, ErrNoCredential
	}

	k := p.keys[p.current]
	k.failureCount++
	if err != nil {
		k.lastError = err.Error()
	}

	p.log.Warn("API key failed",
		"index", k.index,
		"failures", k.failureCount,
		"threshold", p.threshold,
		"error", k.lastError,
	)

	return k.failureCount >= p.threshold, nil
}

// Rotate moves the active pointer to the nearest following key (circularly)
// that is below the threshold. It returns false and leaves the pointer
// unchanged when every other key is exhausted.
func (p *Pool) Rotate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return false
	}

	previous := p.current
	total := len(p.keys)
	for i := 1; i < total; i++ {
		next := (previous + i) % total
		if p.keys[next].failureCount < p.threshold {
			p.keys[previous].isActive = false
			p.keys[next].isActive = true
			p.current = next

			p.log.Info("Switched API key", "from", previous, "to", next)
			return true
		}
	}

	p.log.Error("All API keys have exceeded the failure threshold", "keys", total)
	return false
}

// ResetFailures clears failure counters and last errors for every key.
// The active pointer is left untouched.
func (p *Pool) ResetFailures() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range p.keys {
		k.failureCount = 0
		k.lastError = ""
	}
	p.log.Info("All API key failure counts reset")
}

// ResetFailure clears the failure counter of a single key.
func (p *Pool) ResetFailure(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.keys) {
		return fmt.Errorf("reset key %d: %w", index, ErrUnknownIndex)
	}
	p.keys[index].failureCount = 0
	p.keys[index].lastError = ""
	return nil
}

// Statuses returns a copy of every key's state.
func (p *Pool) Statuses() []domain.CredentialStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.CredentialStatus, len(p.keys))
	for i, k := range p.keys {
		out[i] = k.status()
	}
	return out
}

// Exhausted reports whether every key is at or above the threshold.
func (p *Pool) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exhaustedLocked()
}

// Health returns the pool summary. Before Initialize it is the zero value
// with AllKeysFailed set.
func (p *Pool) Health() domain.KeyHealth {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := domain.KeyHealth{
		TotalKeys:     len(p.keys),
		Threshold:     p.threshold,
		AllKeysFailed: p.exhaustedLocked(),
		BackupKeys:    make([]domain.CredentialStatus, 0, max(0, len(p.keys)-1)),
	}
	if !p.initialized {
		return h
	}

	h.CurrentKeyIndex = p.current
	h.ActiveKeyStatus = p.keys[p.current].status()
	for i, k := range p.keys {
		if i != p.current {
			h.BackupKeys = append(h.BackupKeys, k.status())
		}
	}
	return h
}

func (p *Pool) exhaustedLocked() bool {
	if len(p.keys) == 0 {
		return true
	}
	for _, k := range p.keys {
		if k.failureCount < p.threshold {
			return false
		}
	}
	return true
}

func (k *keyState) status() domain.CredentialStatus {
	s := domain.CredentialStatus{
		Index:        k.index,
		KeyHint:      domain.MaskKey(k.key),
		IsActive:     k.isActive,
		FailureCount: k.failureCount,
		LastError:    k.lastError,
	}
	if !k.lastUsed.IsZero() {
		t := k.lastUsed
		s.LastUsed = &t
	}
	return s
}
