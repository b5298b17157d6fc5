package bitrate

import "testing"

func TestForwardAnchors(t *testing.T) {
	tests := []struct {
		position int
		want     int
	}{
		{0, 50},
		{10, 80},
		{50, 3790},
		{DefaultPosition, 5310},
		{100, 30000},
		{-5, 50},
		{140, 30000},
	}
	for _, tt := range tests {
		if got := Forward(tt.position); got != tt.want {
			t.Errorf("Forward(%d) = %d, want %d", tt.position, got, tt.want)
		}
	}
}

func TestForwardMonotonic(t *testing.T) {
	prev := Forward(0)
	for p := 1; p <= 100; p++ {
		got := Forward(p)
		if got < prev {
			t.Fatalf("Forward(%d) = %d < Forward(%d) = %d", p, got, p-1, prev)
		}
		if got%10 != 0 {
			t.Errorf("Forward(%d) = %d, not a multiple of 10", p, got)
		}
		prev = got
	}
}

func TestInverseClamps(t *testing.T) {
	tests := []struct {
		kbps int
		want int
	}{
		{0, 0},
		{49, 0},
		{50, 0},
		{5000, 55},
		{30000, 100},
		{100000, 100},
	}
	for _, tt := range tests {
		if got := Inverse(tt.kbps); got != tt.want {
			t.Errorf("Inverse(%d) = %d, want %d", tt.kbps, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	// Positions 1-5 all land on 50 kbps after rounding, so they collapse to 0.
	for p := 1; p <= 5; p++ {
		if Forward(p) != MinKbps {
			t.Errorf("Forward(%d) = %d, want %d", p, Forward(p), MinKbps)
		}
	}

	for _, p := range append([]int{0}, rangeInts(6, 100)...) {
		got := Inverse(Forward(p))
		if d := got - p; d < -1 || d > 1 {
			t.Errorf("Inverse(Forward(%d)) = %d, off by more than 1", p, got)
		}
	}
}

func rangeInts(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestFormatting(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"arg", Arg(5310), "5310k"},
		{"kbps below mbps", FormatKbps(860), "860 kbps"},
		{"mbps", FormatKbps(5310), "5.3 Mbps"},
		{"exact mbps", FormatKbps(1000), "1.0 Mbps"},
		{"kib", FormatSize(512), "512.00 KiB"},
		{"mib", FormatSize(2500), "2.50 MiB"},
		{"gib", FormatSize(1_500_000), "1.50 GiB"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
