package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vietddude/imagematch/internal/infra/genai/credential"
	"github.com/vietddude/imagematch/internal/matching/health"
)

type healthResponse struct {
	Status    health.SystemStatus `json:"status"`
	Uptime    string              `json:"uptime"`
	Keys      int                 `json:"keys"`
	ActiveKey int                 `json:"activeKey"`
	Database  string              `json:"database,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.keys.Health()
	resp := healthResponse{
		Status:    health.Evaluate(h),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Keys:      h.TotalKeys,
		ActiveKey: h.CurrentKeyIndex,
	}

	if s.dbHealth != nil {
		resp.Database = "ok"
		if err := s.dbHealth(r.Context()); err != nil {
			resp.Database = "unavailable"
			resp.Status = health.StatusCritical
		}
	}

	status := http.StatusOK
	if resp.Status == health.StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeData(w, status, resp)
}

func (s *Server) handleKeyHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.keys.Health())
}

func (s *Server) handleKeyStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.keys.Usage(r.Context())
	if err != nil {
		// Usage counts are best effort; the statuses are still valid.
		writeJSON(w, http.StatusOK, envelope{
			Success: true,
			Data:    statuses,
			Error:   err.Error(),
		})
		return
	}
	writeList(w, statuses, len(statuses))
}

func (s *Server) handleKeySwitch(w http.ResponseWriter, r *http.Request) {
	if !s.keys.SwitchToNext() {
		writeMessage(w, http.StatusBadRequest, "All API keys exhausted, cannot switch")
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Switched to next API key",
		Data:    s.keys.Health(),
	})
}

func (s *Server) handleKeyReset(w http.ResponseWriter, r *http.Request) {
	s.keys.ResetFailureCounts()
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "All API key failure counts reset",
		Data:    s.keys.Health(),
	})
}

func (s *Server) handleKeyResetOne(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key index", err)
		return
	}
	if err := s.keys.ResetFailure(index); err != nil {
		if errors.Is(err, credential.ErrUnknownIndex) {
			writeError(w, http.StatusNotFound, "Unknown key index", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to reset key", err)
		return
	}
	writeMessage(w, http.StatusOK, "API key failure count reset")
}
