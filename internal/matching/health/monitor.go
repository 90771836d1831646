package health

import (
	"context"
	"log/slog"
	"time"
)

// MonitorConfig controls the background key monitor.
type MonitorConfig struct {
	Interval          time.Duration
	AutoReset         bool
	AutoResetInterval time.Duration
}

// Monitor periodically logs the key pool status and, when enabled, resets
// the failure counters once every key is exhausted.
type Monitor struct {
	reporter *Reporter
	cfg      MonitorConfig
}

// NewMonitor creates a new key monitor.
func NewMonitor(reporter *Reporter, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.AutoResetInterval <= 0 {
		cfg.AutoResetInterval = time.Hour
	}
	return &Monitor{reporter: reporter, cfg: cfg}
}

// Run blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	statusTicker := time.NewTicker(m.cfg.Interval)
	defer statusTicker.Stop()

	var resetC <-chan time.Time
	if m.cfg.AutoReset {
		resetTicker := time.NewTicker(m.cfg.AutoResetInterval)
		defer resetTicker.Stop()
		resetC = resetTicker.C
	}

	slog.Info("API key monitor started",
		"interval", m.cfg.Interval,
		"autoReset", m.cfg.AutoReset,
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-statusTicker.C:
			m.LogStatus()
		case <-resetC:
			m.CheckAutoReset()
		}
	}
}

// LogStatus writes one status line per key.
func (m *Monitor) LogStatus() {
	h := m.reporter.Health()
	if h.TotalKeys == 0 {
		slog.Warn("API key pool is not initialized")
		return
	}

	slog.Info("API key status",
		"status", string(Evaluate(h)),
		"current", h.CurrentKeyIndex,
		"total", h.TotalKeys,
		"failures", h.ActiveKeyStatus.FailureCount,
		"threshold", h.Threshold,
	)
	for _, k := range h.BackupKeys {
		slog.Debug("Backup API key",
			"index", k.Index,
			"failures", k.FailureCount,
			"lastError", k.LastError,
		)
	}
	if h.AllKeysFailed {
		slog.Error("All API keys have failed", "total", h.TotalKeys)
	}
}

// CheckAutoReset resets every failure counter when all keys are exhausted.
// It returns whether a reset happened.
func (m *Monitor) CheckAutoReset() bool {
	h := m.reporter.Health()
	if !h.AllKeysFailed {
		return false
	}
	slog.Warn("Auto-resetting failed API keys", "total", h.TotalKeys)
	m.reporter.ResetFailureCounts()
	return true
}
