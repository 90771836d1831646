package routing

import (
	"log/slog"
	"sync"

	"github.com/vietddude/imagematch/internal/infra/genai/credential"
)

// Decision describes what the policy did with one failure.
type Decision struct {
	Class Class

	// Reached is set when the failure pushed the key to the threshold.
	Reached bool

	// Rotated is set when the active key changed.
	Rotated bool

	// Exhausted is set when a rotation was needed but no key was left.
	Exhausted bool

	// Stale is set when the key that failed was no longer active; the
	// failure was not recorded.
	Stale bool

	// ActiveIndex is the active key after the decision.
	ActiveIndex int
}

// Policy applies failures to the key pool.
type Policy struct {
	mu   sync.Mutex
	pool *credential.Pool
}

// NewPolicy creates a policy over pool.
func NewPolicy(pool *credential.Pool) *Policy {
	return &Policy{pool: pool}
}

// HandleFailure records err against the key at usedIndex and rotates when the
// failure is key-specific. Failures from a key that was rotated away while the
// call was in flight are ignored.
func (p *Policy) HandleFailure(usedIndex int, err error) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	d := Decision{Class: Classify(err)}

	if p.pool.ActiveIndex() != usedIndex {
		d.Stale = true
		d.ActiveIndex = p.pool.ActiveIndex()
		return d
	}

	reached, recErr := p.pool.RecordFailure(err)
	if recErr != nil {
		d.ActiveIndex = -1
		return d
	}
	d.Reached = reached

	if ShouldRotate(d.Class) {
		if p.pool.Rotate() {
			d.Rotated = true
		} else {
			d.Exhausted = true
		}
	}

	d.ActiveIndex = p.pool.ActiveIndex()

	slog.Debug("Handled API key failure",
		"class", d.Class.String(),
		"key", usedIndex,
		"rotated", d.Rotated,
		"exhausted", d.Exhausted,
		"active", d.ActiveIndex,
	)
	return d
}

// SwitchToNext forces a rotation regardless of the last failure.
func (p *Policy) SwitchToNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool.Rotate()
}
