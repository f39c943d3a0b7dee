// pattern: Functional Core
package cli

import (
	"bytes"
	"os"
	"testing"
)

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"color", "\x1b[31mred text\x1b[0m", "red text"},
		{"bold and reset", "\x1b[1mBold\x1b[0m Normal", "Bold Normal"},
		{"truecolor", "\x1b[38;2;166;227;161m✓ done\x1b[0m", "✓ done"},
		{"osc title", "\x1b]0;title\x07text", "text"},
		{"plain", "no escapes here", "no escapes here"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripANSI(tt.input); got != tt.want {
				t.Errorf("StripANSI(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsTerminal_NonTTY(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}

	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Error("a regular file is not a terminal")
	}
}
