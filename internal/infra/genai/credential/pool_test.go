package credential

import (
	"errors"
	"testing"
	"time"
)

func newTestPool(t *testing.T, threshold int, keys ...string) *Pool {
	t.Helper()
	p := NewPool(WithFailureThreshold(threshold))
	if err := p.Initialize(keys); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return p
}

func activeCount(p *Pool) (int, int) {
	count, idx := 0, -1
	for _, s := range p.Statuses() {
		if s.IsActive {
			count++
			idx = s.Index
		}
	}
	return count, idx
}

func TestPool_InitializeMarksFirstActive(t *testing.T) {
	for n := 1; n <= 5; n++ {
		keys := make([]string, n)
		for i := range keys {
			keys[i] = "key-secret-" + string(rune('a'+i))
		}
		p := newTestPool(t, 3, keys...)

		count, idx := activeCount(p)
		if count != 1 || idx != 0 {
			t.Errorf("n=%d: expected exactly one active key at 0, got %d active at %d", n, count, idx)
		}
	}
}

func TestPool_InitializeEmpty(t *testing.T) {
	p := NewPool()
	err := p.Initialize(nil)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestPool_UninitializedFailsFast(t *testing.T) {
	p := NewPool()
	if _, err := p.Active(); !errors.Is(err, ErrNoCredential) {
		t.Errorf("Active: expected ErrNoCredential, got %v", err)
	}
	if _, err := p.RecordFailure(errors.New("boom")); !errors.Is(err, ErrNoCredential) {
		t.Errorf("RecordFailure: expected ErrNoCredential, got %v", err)
	}
	if p.Rotate() {
		t.Error("Rotate on an uninitialized pool should fail")
	}
	if p.ActiveIndex() != -1 {
		t.Errorf("expected ActiveIndex -1, got %d", p.ActiveIndex())
	}
}

func TestPool_ActiveStampsLastUsed(t *testing.T) {
	p := newTestPool(t, 3, "key-one-secret", "key-two-secret")

	cred, err := p.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if cred.Index != 0 || cred.Key != "key-one-secret" {
		t.Errorf("unexpected credential %+v", cred)
	}

	st := p.Statuses()
	if st[0].LastUsed == nil {
		t.Error("expected lastUsed to be set on the active key")
	}
	if st[1].LastUsed != nil {
		t.Error("expected lastUsed to stay empty on the backup key")
	}
}

func TestPool_MarkUsedAdvancesLastUsed(t *testing.T) {
	p := newTestPool(t, 3, "key-one-secret", "key-two-secret")

	if _, err := p.Active(); err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	before := *p.Statuses()[0].LastUsed

	time.Sleep(5 * time.Millisecond)
	p.MarkUsed(0)
	after := *p.Statuses()[0].LastUsed
	if !after.After(before) {
		t.Errorf("expected lastUsed to advance, before %v after %v", before, after)
	}

	p.MarkUsed(7)
	p.MarkUsed(-1)
	if p.Statuses()[1].LastUsed != nil {
		t.Error("unknown indexes must not touch other keys")
	}
}

func TestPool_RecordFailureBelowThreshold(t *testing.T) {
	p := newTestPool(t, 3, "a-secret-key", "b-secret-key")

	for n := 1; n < 3; n++ {
		reached, err := p.RecordFailure(errors.New("quota exceeded"))
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if reached {
			t.Errorf("failure %d should not reach the threshold", n)
		}

		st := p.Statuses()
		if st[0].FailureCount != n {
			t.Errorf("expected failureCount %d, got %d", n, st[0].FailureCount)
		}
		if !st[0].IsActive {
			t.Error("active flag should not change on recordFailure")
		}
		if st[0].LastError != "quota exceeded" {
			t.Errorf("unexpected lastError %q", st[0].LastError)
		}
	}

	reached, _ := p.RecordFailure(errors.New("quota exceeded"))
	if !reached {
		t.Error("third failure should reach the threshold")
	}
}

func TestPool_RotateNearestNext(t *testing.T) {
	p := newTestPool(t, 1, "k0-secret", "k1-secret", "k2-secret", "k3-secret")

	// Walk forward, exhausting keys 1 and 2 on the way.
	p.Rotate() // 0 -> 1
	p.RecordFailure(errors.New("429"))
	p.Rotate() // 1 -> 2
	p.RecordFailure(errors.New("429"))
	if !p.Rotate() { // 2 -> 3
		t.Fatal("expected rotation to key 3")
	}
	if p.ActiveIndex() != 3 {
		t.Fatalf("expected active 3, got %d", p.ActiveIndex())
	}

	// From 3 the scan wraps to 0 (still healthy) rather than any higher index.
	p.RecordFailure(errors.New("429"))
	if !p.Rotate() {
		t.Fatal("expected rotation to wrap around")
	}
	if p.ActiveIndex() != 0 {
		t.Errorf("expected wrap to key 0, got %d", p.ActiveIndex())
	}

	count, idx := activeCount(p)
	if count != 1 || idx != 0 {
		t.Errorf("expected single active flag on 0, got %d active at %d", count, idx)
	}
}

func TestPool_RotateExhausted(t *testing.T) {
	p := newTestPool(t, 1, "k0-secret", "k1-secret")

	p.RecordFailure(errors.New("quota"))
	if !p.Rotate() {
		t.Fatal("expected first rotation to succeed")
	}
	p.RecordFailure(errors.New("quota"))

	if p.Rotate() {
		t.Error("rotation should fail when every key is exhausted")
	}
	if p.ActiveIndex() != 1 {
		t.Errorf("active pointer should stay at 1, got %d", p.ActiveIndex())
	}
	if !p.Health().AllKeysFailed {
		t.Error("expected allKeysFailed")
	}
}

func TestPool_SingleKeyNeverRotates(t *testing.T) {
	p := newTestPool(t, 3, "only-secret-key")
	if p.Rotate() {
		t.Error("a single-key pool cannot rotate")
	}
	if p.ActiveIndex() != 0 {
		t.Errorf("expected active 0, got %d", p.ActiveIndex())
	}
}

func TestPool_ResetFailuresKeepsPointer(t *testing.T) {
	p := newTestPool(t, 1, "k0-secret", "k1-secret", "k2-secret")

	p.RecordFailure(errors.New("quota"))
	p.Rotate()
	p.RecordFailure(errors.New("quota"))

	p.ResetFailures()

	for _, s := range p.Statuses() {
		if s.FailureCount != 0 || s.LastError != "" {
			t.Errorf("key %d not reset: %+v", s.Index, s)
		}
	}
	if p.ActiveIndex() != 1 {
		t.Errorf("reset should not move the pointer, got %d", p.ActiveIndex())
	}
}

func TestPool_ResetFailureTargeted(t *testing.T) {
	p := newTestPool(t, 3, "k0-secret", "k1-secret")
	p.RecordFailure(errors.New("quota"))

	if err := p.ResetFailure(0); err != nil {
		t.Fatalf("ResetFailure failed: %v", err)
	}
	if got := p.Statuses()[0].FailureCount; got != 0 {
		t.Errorf("expected 0 failures, got %d", got)
	}
	if err := p.ResetFailure(7); !errors.Is(err, ErrUnknownIndex) {
		t.Errorf("expected ErrUnknownIndex, got %v", err)
	}
}

func TestPool_StatusesAreCopies(t *testing.T) {
	p := newTestPool(t, 3, "k0-secret", "k1-secret")

	st := p.Statuses()
	st[0].FailureCount = 99
	st[0].IsActive = false

	again := p.Statuses()
	if again[0].FailureCount != 0 || !again[0].IsActive {
		t.Error("mutating a snapshot must not affect the pool")
	}
	if again[0].KeyHint == "k0-secret" {
		t.Error("statuses must not expose the raw key")
	}
}

func TestPool_Health(t *testing.T) {
	p := newTestPool(t, 2, "k0-secret", "k1-secret", "k2-secret")
	p.Rotate()

	h := p.Health()
	if h.CurrentKeyIndex != 1 || h.TotalKeys != 3 {
		t.Errorf("unexpected health header %+v", h)
	}
	if h.ActiveKeyStatus.Index != 1 || !h.ActiveKeyStatus.IsActive {
		t.Errorf("unexpected active status %+v", h.ActiveKeyStatus)
	}
	if len(h.BackupKeys) != 2 || h.BackupKeys[0].Index != 0 || h.BackupKeys[1].Index != 2 {
		t.Errorf("unexpected backup keys %+v", h.BackupKeys)
	}
	if h.AllKeysFailed {
		t.Error("fresh pool should not be exhausted")
	}
}

func TestPool_ThresholdClamped(t *testing.T) {
	p := NewPool(WithFailureThreshold(0))
	if p.Threshold() != 1 {
		t.Errorf("expected threshold clamped to 1, got %d", p.Threshold())
	}
	if NewPool().Threshold() != DefaultFailureThreshold {
		t.Errorf("expected default threshold %d", DefaultFailureThreshold)
	}
}

func TestPool_ReloadResets(t *testing.T) {
	p := newTestPool(t, 1, "k0-secret", "k1-secret")
	p.RecordFailure(errors.New("quota"))
	p.Rotate()

	if err := p.Reload([]string{"n0-secret", "n1-secret", "n2-secret"}); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if p.Size() != 3 || p.ActiveIndex() != 0 {
		t.Errorf("unexpected state after reload: size=%d active=%d", p.Size(), p.ActiveIndex())
	}
	if p.Statuses()[0].FailureCount != 0 {
		t.Error("reload should start with clean counters")
	}
}
