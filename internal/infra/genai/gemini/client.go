// Package gemini calls the generative language API to score an image against
// a text query.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/imagematch/internal/core/domain"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.5-flash"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20
)

var (
	ErrEmptyResponse = errors.New("gemini: response has no candidates")
	ErrBlocked       = errors.New("gemini: prompt blocked")
)

// Invoker scores one image against a query using the given API key and
// returns the raw JSON text produced by the model.
type Invoker interface {
	Invoke(ctx context.Context, key string, payload domain.ImagePayload, query string) ([]byte, error)
}

// Client implements Invoker over the REST generateContent endpoint.
type Client struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewClient creates a client. Empty endpoint or model fall back to defaults;
// a zero timeout leaves cancellation to the caller's context.
func NewClient(endpoint, model string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string { return c.model }

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type schemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type responseSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]schemaProperty `json:"properties"`
	Required   []string                  `json:"required"`
}

type generationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType"`
	ResponseSchema   *responseSchema `json:"responseSchema"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

var scoreSchema = &responseSchema{
	Type: "OBJECT",
	Properties: map[string]schemaProperty{
		"score": {
			Type:        "NUMBER",
			Description: "A score from 0 to 100 indicating how well the image matches the prompt. 100 is a perfect match.",
		},
		"reason": {
			Type:        "STRING",
			Description: "A short one-sentence explanation of the score.",
		},
	},
	Required: []string{"score", "reason"},
}

func prompt(query string) string {
	return fmt.Sprintf(
		"Analyze the image and the text. How well does the image match the description: %q? "+
			"Give a score and a short one-sentence reason.",
		query,
	)
}

// Invoke sends one image and the query to the model.
func (c *Client) Invoke(ctx context.Context, key string, payload domain.ImagePayload, query string) ([]byte, error) {
	mimeType := payload.MIMEType
	if mimeType == "" {
		mimeType = domain.DefaultImageMIMEType
	}

	reqBody := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MIMEType: mimeType, Data: payload.Data}},
				{Text: prompt(query)},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   scoreSchema,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if genResp.PromptFeedback != nil && genResp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, genResp.PromptFeedback.BlockReason)
	}
	if len(genResp.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}

	var sb strings.Builder
	for _, p := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return []byte(strings.TrimSpace(sb.String())), nil
}
