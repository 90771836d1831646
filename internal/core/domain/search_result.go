package domain

import "time"

// ResultSource tells where an archived image came from.
type ResultSource string

const (
	SourceUpload      ResultSource = "upload"
	SourceGoogleDrive ResultSource = "google-drive"
)

// SearchResult is a matched image archived for later browsing.
type SearchResult struct {
	ID            string         `json:"id"`
	Query         string         `json:"query"`
	ImageFileName string         `json:"imageFileName"`
	ImageURL      string         `json:"imageUrl,omitempty"`
	MatchScore    float64        `json:"matchScore"`
	MatchReason   string         `json:"matchReason"`
	ImageMIMEType string         `json:"imageMimeType"`
	Source        ResultSource   `json:"source"`
	DriveFileID   string         `json:"driveFileId,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// QueryCount is one row of the top-queries statistic.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// Statistics aggregates the archive.
type Statistics struct {
	TotalResults int          `json:"totalResults"`
	TopQueries   []QueryCount `json:"topQueries"`
}
