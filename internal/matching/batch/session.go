package batch

import (
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/imagematch/internal/core/domain"
)

type cachedResult struct {
	score           float64
	reason          string
	credentialIndex int
	processedAt     time.Time
}

// session caches results for one query. Guarded by Orchestrator.sessMu.
type session struct {
	id    string
	query string

	// items holds the distinct ids of the batch currently being rated.
	items          map[string]struct{}
	totalItems     int
	processedCount int

	results map[string]cachedResult

	active      bool
	startedAt   time.Time
	lastUpdated time.Time
	endedAt     time.Time
}

func newSession(query string) *session {
	now := time.Now()
	return &session{
		id:          uuid.NewString(),
		query:       query,
		results:     make(map[string]cachedResult),
		startedAt:   now,
		lastUpdated: now,
	}
}

// attach points the session at a new item list and recomputes progress.
func (s *session) attach(items []domain.Item) {
	s.items = make(map[string]struct{}, len(items))
	processed := 0
	for _, it := range items {
		if _, dup := s.items[it.ID]; dup {
			continue
		}
		s.items[it.ID] = struct{}{}
		if _, ok := s.results[it.ID]; ok {
			processed++
		}
	}
	s.totalItems = len(s.items)
	s.processedCount = processed
	s.active = true
	s.endedAt = time.Time{}
	s.lastUpdated = time.Now()
}

func (s *session) get(id string) (cachedResult, bool) {
	r, ok := s.results[id]
	return r, ok
}

func (s *session) record(id string, r cachedResult) {
	if _, seen := s.results[id]; !seen {
		if _, ok := s.items[id]; ok {
			s.processedCount++
		}
	}
	s.results[id] = r
	s.lastUpdated = r.processedAt
}

func (s *session) complete() bool {
	return s.processedCount >= s.totalItems
}

func (s *session) end() {
	s.active = false
	s.endedAt = time.Now()
}

func (s *session) info() domain.SessionInfo {
	return domain.SessionInfo{
		ID:             s.id,
		Query:          s.query,
		TotalItems:     s.totalItems,
		ProcessedCount: s.processedCount,
		CachedResults:  len(s.results),
		Active:         s.active,
		StartedAt:      s.startedAt,
		LastUpdated:    s.lastUpdated,
		EndedAt:        s.endedAt,
	}
}
