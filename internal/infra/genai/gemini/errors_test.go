package gemini

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"ascii", "abcdef", 3, "abc..."},
		// "é" is two bytes; cutting at 2 would split it.
		{"multibyte boundary", "aébc", 2, "a..."},
		{"multibyte kept", "aébc", 3, "aé..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestParseAPIError_LongUnstructuredBody(t *testing.T) {
	body := "x" + strings.Repeat("é", 200) // odd offset puts byte 256 mid-rune
	err := parseAPIError(http.StatusBadGateway, []byte(body))
	if !utf8.ValidString(err.Error()) {
		t.Errorf("error message is not valid UTF-8: %q", err.Error())
	}
}
