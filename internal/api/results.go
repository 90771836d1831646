package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vietddude/imagematch/internal/core/domain"
	"github.com/vietddude/imagematch/internal/infra/storage"
)

type createResultRequest struct {
	Query         string         `json:"query"         validate:"required,max=2000"`
	ImageFileName string         `json:"imageFileName" validate:"required,max=512"`
	ImageURL      string         `json:"imageUrl"      validate:"omitempty,url"`
	MatchScore    float64        `json:"matchScore"    validate:"gte=0,lte=100"`
	MatchReason   string         `json:"matchReason"`
	ImageMIMEType string         `json:"imageMimeType" validate:"omitempty,startswith=image/"`
	Source        string         `json:"source"        validate:"omitempty,oneof=upload google-drive"`
	DriveFileID   string         `json:"driveFileId"`
	Metadata      map[string]any `json:"metadata"`
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return storage.DefaultListLimit
	}
	return min(n, 1000)
}

func (s *Server) handleCreateResult(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[createResultRequest](r, s.maxBody)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid search result", err)
		return
	}

	res := &domain.SearchResult{
		Query:         req.Query,
		ImageFileName: req.ImageFileName,
		ImageURL:      req.ImageURL,
		MatchScore:    req.MatchScore,
		MatchReason:   req.MatchReason,
		ImageMIMEType: req.ImageMIMEType,
		Source:        domain.ResultSource(req.Source),
		DriveFileID:   req.DriveFileID,
		Metadata:      req.Metadata,
	}
	if err := s.results.Save(r.Context(), res); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save search result", err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Search result saved", Data: res})
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	list, err := s.results.List(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list search results", err)
		return
	}
	writeList(w, list, len(list))
}

func (s *Server) handleSearchResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeMessage(w, http.StatusBadRequest, "Query parameter q is required")
		return
	}
	list, err := s.results.Search(r.Context(), q, limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to search results", err)
		return
	}
	writeList(w, list, len(list))
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.results.GetByID(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Search result not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get search result", err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	err := s.results.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Search result not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete search result", err)
		return
	}
	writeMessage(w, http.StatusOK, "Search result deleted")
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.results.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get statistics", err)
		return
	}
	writeData(w, http.StatusOK, stats)
}
