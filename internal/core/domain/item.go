package domain

import "time"

// DefaultImageMIMEType is assumed when an image arrives without a type.
const DefaultImageMIMEType = "image/jpeg"

// ImagePayload is the opaque image blob sent to the model.
type ImagePayload struct {
	Data     []byte
	MIMEType string
}

// Item is one image to be scored against a query.
type Item struct {
	ID      string
	Name    string
	Payload ImagePayload
}

// Score is the per-item outcome of a batch, in input order.
type Score struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// SessionInfo is a snapshot of the orchestrator's batch session.
type SessionInfo struct {
	ID             string    `json:"id"`
	Query          string    `json:"query"`
	TotalItems     int       `json:"totalItems"`
	ProcessedCount int       `json:"processedCount"`
	CachedResults  int       `json:"cachedResults"`
	Active         bool      `json:"active"`
	StartedAt      time.Time `json:"startedAt"`
	LastUpdated    time.Time `json:"lastUpdated"`
	EndedAt        time.Time `json:"endedAt,omitzero"`
}
