package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vietddude/imagematch/internal/core/domain"
	"github.com/vietddude/imagematch/internal/infra/genai/credential"
)

type rateItem struct {
	ID       string `json:"id"       validate:"required,max=256"`
	Name     string `json:"name"     validate:"max=512"`
	MIMEType string `json:"mimeType" validate:"omitempty,startswith=image/"`
	Data     string `json:"data"     validate:"required"`
}

type rateRequest struct {
	Query string     `json:"query" validate:"required,max=2000"`
	Items []rateItem `json:"items" validate:"required,min=1,max=500,unique=ID,dive"`
}

type rateResponse struct {
	SessionID string         `json:"sessionId,omitempty"`
	Results   []domain.Score `json:"results"`
}

// decodeImage accepts raw base64 or a data URL and returns the bytes and the
// MIME type declared by the data URL, if any.
func decodeImage(data string) ([]byte, string, error) {
	mimeType := ""
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", errors.New("malformed data URL")
		}
		mimeType, _, _ = strings.Cut(header, ";")
		data = payload
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, "", err
	}
	if len(raw) == 0 {
		return nil, "", errors.New("empty image")
	}
	return raw, mimeType, nil
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[rateRequest](r, s.maxBody)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate request", err)
		return
	}

	items := make([]domain.Item, len(req.Items))
	for i, it := range req.Items {
		raw, declared, err := decodeImage(it.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid image data",
				fmt.Errorf("item %s: %w", it.ID, err))
			return
		}
		mimeType := it.MIMEType
		if mimeType == "" {
			mimeType = declared
		}
		if mimeType == "" {
			mimeType = http.DetectContentType(raw)
		}
		items[i] = domain.Item{
			ID:      it.ID,
			Name:    it.Name,
			Payload: domain.ImagePayload{Data: raw, MIMEType: mimeType},
		}
	}

	scores, err := s.rater.RateBatch(r.Context(), items, req.Query)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, credential.ErrNoCredential) {
			status = http.StatusServiceUnavailable
		}
		slog.Error("Rate batch failed", "error", err)
		writeError(w, status, "Failed to rate images", err)
		return
	}

	resp := rateResponse{Results: scores}
	if info, ok := s.rater.Session(); ok {
		resp.SessionID = info.ID
	}
	count := len(scores)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: resp, Count: &count})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	info, ok := s.rater.Session()
	if !ok {
		writeMessage(w, http.StatusNotFound, "No batch session")
		return
	}
	writeData(w, http.StatusOK, info)
}
