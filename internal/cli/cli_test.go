package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vietddude/imagematch/internal/core/domain"
)

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"Image", "Score"},
		[][]string{{"a.png", "90"}, {"b.png"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	for _, want := range []string{"Image", "Score", "a.png", "90", "b.png"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in table:\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("expected empty output without headers")
	}
}

func TestReadImages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pixel.png")
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nrest"), 0o644); err != nil {
		t.Fatal(err)
	}

	items, err := readImages([]string{path})
	if err != nil {
		t.Fatalf("readImages failed: %v", err)
	}
	if items[0].Name != "pixel.png" || items[0].Payload.MIMEType != "image/png" {
		t.Errorf("unexpected item %+v", items[0])
	}

	if _, err := readImages([]string{filepath.Join(dir, "missing.jpg")}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAPIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/api-key/health":
			_, _ = w.Write([]byte(`{"success": true, "data": {"currentKeyIndex": 1, "totalKeys": 2}}`))
		case "/api/api-key/switch":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success": false, "message": "All API keys exhausted, cannot switch"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`404 page not found`))
		}
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL + "/")
	ctx := context.Background()

	var h domain.KeyHealth
	if _, err := c.do(ctx, http.MethodGet, "/api/api-key/health", nil, &h); err != nil {
		t.Fatalf("health failed: %v", err)
	}
	if h.CurrentKeyIndex != 1 || h.TotalKeys != 2 {
		t.Errorf("unexpected health %+v", h)
	}

	_, err := c.do(ctx, http.MethodPost, "/api/api-key/switch", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "exhausted") {
		t.Errorf("expected exhausted error, got %v", err)
	}

	if _, err := c.do(ctx, http.MethodGet, "/nope", nil, nil); err == nil {
		t.Error("expected error for non-JSON response")
	}
}
