package process

import (
	"strings"
	"testing"
)

func TestLineScannerSplitsCarriageReturns(t *testing.T) {
	input := "banner\nframe=1 time=00:00:01.00\rframe=2 time=00:00:02.00\r\ntail"
	scanner := newLineScanner(strings.NewReader(input))

	var got []string
	for scanner.Scan() {
		if line := trimLine(scanner.Text()); line != "" {
			got = append(got, line)
		}
	}
	want := []string{"banner", "frame=1 time=00:00:01.00", "frame=2 time=00:00:02.00", "tail"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"ééé", 3, "é..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
