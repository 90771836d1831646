// Package health exposes the API key pool to operators and monitors it in
// the background.
package health

import "github.com/vietddude/imagematch/internal/core/domain"

// SystemStatus represents the overall health state of the key pool.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Evaluate derives the status of the pool: critical when every key is
// exhausted, degraded when any key has failures, healthy otherwise.
func Evaluate(h domain.KeyHealth) SystemStatus {
	if h.TotalKeys == 0 || h.AllKeysFailed {
		return StatusCritical
	}
	if h.ActiveKeyStatus.FailureCount > 0 {
		return StatusDegraded
	}
	for _, k := range h.BackupKeys {
		if k.FailureCount > 0 {
			return StatusDegraded
		}
	}
	return StatusHealthy
}
