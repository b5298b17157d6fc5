package ffmpeg

import (
	"log/slog"
	"math"
	"testing"
)

func TestParseProgressFullLine(t *testing.T) {
	line := "frame=100 fps=30 q=28.0 size=2048KiB time=00:01:30.50 bitrate=1024kbits/s speed=2.5x"
	p, ok := ParseProgress(line, 181.0)
	if !ok {
		t.Fatal("ParseProgress() ok = false")
	}
	if p.Elapsed != 90.5 {
		t.Errorf("Elapsed = %v, want 90.5", p.Elapsed)
	}
	if p.Speed != 2.5 {
		t.Errorf("Speed = %v, want 2.5", p.Speed)
	}
	if p.SizeKiB != 2048 {
		t.Errorf("SizeKiB = %v, want 2048", p.SizeKiB)
	}
	if math.Abs(p.Percent-50) > 1e-9 {
		t.Errorf("Percent = %v, want 50", p.Percent)
	}
	if !p.HasElapsed || !p.HasSpeed || !p.HasSize {
		t.Errorf("presence flags = %+v", p)
	}
}

func TestParseProgressPartialAndEmpty(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		ok      bool
		elapsed bool
		speed   bool
		size    bool
	}{
		{"banner", "ffmpeg version 7.1 Copyright (c) 2000-2024", false, false, false, false},
		{"stream mapping", "Stream #0:0 -> #0:0 (h264 (native) -> hevc (hevc_nvenc))", false, false, false, false},
		{"speed only", "speed=1.02x", true, false, true, false},
		{"size only old units", "size=     512kB", true, false, false, true},
		{"time na", "frame=0 fps=0.0 q=0.0 size=0KiB time=N/A bitrate=N/A speed=N/A", true, false, false, true},
		{"final line", "[out#0/mp4 @ 0x55] video:2048KiB audio:128KiB muxing overhead: 0.1%", false, false, false, false},
		{"lsize", "frame= 5430 fps=240 q=-1.0 Lsize=   20480KiB time=00:03:01.00 bitrate= 926.9kbits/s speed=8.01x", true, true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := ParseProgress(tt.line, 100)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if p.HasElapsed != tt.elapsed || p.HasSpeed != tt.speed || p.HasSize != tt.size {
				t.Errorf("flags = elapsed:%v speed:%v size:%v", p.HasElapsed, p.HasSpeed, p.HasSize)
			}
		})
	}
}

func TestParseProgressClampsPercent(t *testing.T) {
	p, _ := ParseProgress("time=00:10:00.00", 60)
	if p.Percent != 100 {
		t.Errorf("Percent = %v, want 100", p.Percent)
	}

	p, _ = ParseProgress("time=00:00:30.00", 0)
	if p.Percent != 0 {
		t.Errorf("Percent with unknown total = %v, want 0", p.Percent)
	}

	p, _ = ParseProgress("time=125:00:00.00", 1)
	if p.Elapsed != 450000 {
		t.Errorf("Elapsed = %v, want 450000", p.Elapsed)
	}
}

func TestProgressMerge(t *testing.T) {
	a, _ := ParseProgress("size=100KiB time=00:00:10.00 speed=1.5x", 20)
	b, _ := ParseProgress("speed=3x", 20)

	m := a.Merge(b)
	if m.Speed != 3 || m.Elapsed != 10 || m.SizeKiB != 100 || m.Percent != 50 {
		t.Errorf("Merge() = %+v", m)
	}
	if got := m.Remaining(20); got != 10.0/3 {
		t.Errorf("Remaining() = %v", got)
	}
	if got := b.Remaining(20); got != -1 {
		t.Errorf("Remaining() without elapsed = %v, want -1", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"[error] No such file", "error", "No such file"},
		{"[h264_nvenc @ 0x55d] [warning] B-frames ignored", "warning", "[h264_nvenc @ 0x55d] B-frames ignored"},
		{"[h264_nvenc @ 0x55d] OpenEncodeSessionEx failed", "info", "[h264_nvenc @ 0x55d] OpenEncodeSessionEx failed"},
		{"plain line", "info", "plain line"},
		{"[", "info", "["},
	}
	for _, tt := range tests {
		level, msg := ParseLogLevel(tt.line)
		if level != tt.wantLevel || msg != tt.wantMsg {
			t.Errorf("ParseLogLevel(%q) = (%q, %q), want (%q, %q)", tt.line, level, msg, tt.wantLevel, tt.wantMsg)
		}
	}
}

func TestLineLevel(t *testing.T) {
	tests := []struct {
		line string
		want slog.Level
	}{
		{"frame=  10 fps=0.0 q=28.0 size=0KiB time=00:00:00.33 bitrate=N/A speed=0.6x", slog.LevelDebug},
		{"[fatal] Conversion failed!", slog.LevelError},
		{"[warning] deprecated pixel format", slog.LevelWarn},
		{"Unrecognized option 'qp_i'.", slog.LevelError},
		{"Error splitting the argument list: Option not found", slog.LevelError},
		{"Input #0, matroska,webm, from 'in.mkv':", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got, _ := LineLevel(tt.line); got != tt.want {
			t.Errorf("LineLevel(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestFailureLine(t *testing.T) {
	lines := []string{
		"Input #0, mov,mp4 from 'in.mp4':",
		"[h264_amf @ 0x1] AMF failed to initialise",
		"Error while opening encoder - maybe incorrect parameters",
		"frame=0 fps=0 q=0 size=0KiB time=00:00:00.00 speed=0x",
		"",
	}
	if got := FailureLine(lines); got != "Error while opening encoder - maybe incorrect parameters" {
		t.Errorf("FailureLine() = %q", got)
	}
	if got := FailureLine([]string{"a", "b", " "}); got != "b" {
		t.Errorf("FailureLine() without error = %q, want b", got)
	}
	if got := FailureLine(nil); got != "" {
		t.Errorf("FailureLine(nil) = %q", got)
	}
}
