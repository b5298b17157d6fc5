package encoders

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		family Family
		codec  Codec
		known  bool
	}{
		{"h264_nvenc", FamilyNVENC, CodecH264, true},
		{"hevc_nvenc", FamilyNVENC, CodecHEVC, true},
		{"av1_nvenc", FamilyNVENC, CodecAV1, true},
		{"h264_amf", FamilyAMF, CodecH264, true},
		{"hevc_amf", FamilyAMF, CodecHEVC, true},
		{"av1_qsv", FamilyQSV, CodecAV1, true},
		{"h264_qsv", FamilyQSV, CodecH264, true},
		{"libx264", FamilySoftware, CodecH264, true},
		{"libx265", FamilySoftware, CodecHEVC, true},
		{"libsvtav1", FamilySoftware, CodecAV1, true},
		{"copy", FamilyPassthrough, CodecNone, true},
		{" libx264 ", FamilySoftware, CodecH264, true},
		{"h264_vaapi", FamilySoftware, CodecNone, false},
		{"mystery", FamilySoftware, CodecNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.name)
			if got.Family != tt.family {
				t.Errorf("Family = %q, want %q", got.Family, tt.family)
			}
			if got.Codec != tt.codec {
				t.Errorf("Codec = %q, want %q", got.Codec, tt.codec)
			}
			if got.Known != tt.known {
				t.Errorf("Known = %v, want %v", got.Known, tt.known)
			}
			if got.Name != strings.TrimSpace(tt.name) {
				t.Errorf("Name = %q", got.Name)
			}
		})
	}
}

func TestNeedsPixelFormatPin(t *testing.T) {
	pinned := map[string]bool{
		"h264_nvenc": true,
		"h264_amf":   true,
		"h264_qsv":   false,
		"hevc_nvenc": false,
		"av1_amf":    false,
		"libx264":    false,
		"copy":       false,
	}
	for name, want := range pinned {
		if got := Resolve(name).NeedsPixelFormatPin(); got != want {
			t.Errorf("Resolve(%q).NeedsPixelFormatPin() = %v, want %v", name, got, want)
		}
	}
}

func TestDefaultCandidatesOrder(t *testing.T) {
	want := []string{
		"av1_nvenc", "hevc_nvenc", "h264_nvenc",
		"av1_amf", "hevc_amf", "h264_amf",
		"av1_qsv", "hevc_qsv", "h264_qsv",
		"libsvtav1", "libx265", "libx264",
	}
	if got := DefaultCandidates(); !slices.Equal(got, want) {
		t.Errorf("DefaultCandidates() = %v, want %v", got, want)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry([]string{"hevc_nvenc", "copy", "libx264", "hevc_nvenc"})

	want := []string{"hevc_nvenc", "libx264", "copy"}
	if got := r.Names(); !slices.Equal(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}

	e, ok := r.Lookup("hevc_nvenc")
	if !ok || e.Family != FamilyNVENC {
		t.Errorf("Lookup(hevc_nvenc) = %+v, %v", e, ok)
	}
	if _, ok := r.Lookup("h264_amf"); ok {
		t.Error("Lookup of unregistered encoder should fail")
	}
	if got := r.ByFamily(FamilySoftware); len(got) != 1 || got[0].Name != "libx264" {
		t.Errorf("ByFamily(software) = %v", got)
	}
}

func TestEmptyRegistryHasPassthrough(t *testing.T) {
	r := NewRegistry(nil)
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	if e, ok := r.Lookup(Passthrough); !ok || e.Family != FamilyPassthrough {
		t.Errorf("Lookup(copy) = %+v, %v", e, ok)
	}
}

// writeFakeEngine creates a script accepting libx264, hanging on slow_qsv
// and failing everything else.
func writeFakeEngine(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := `#!/bin/sh
if [ "$1" = "-version" ]; then
  echo "ffmpeg version 7.1.1 Copyright (c) 2000-2025 the FFmpeg developers"
  exit 0
fi
for a in "$@"; do
  case "$a" in
    libx264) exit 0 ;;
    slow_qsv) exec sleep 5 ;;
  esac
done
echo "[vost#0:0 @ 0x5581] Unknown encoder '$9'" >&2
echo "Error selecting an encoder" >&2
exit 1
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProber(t *testing.T) {
	engine := writeFakeEngine(t)
	p := NewProber(engine, 300*time.Millisecond, testLogger())

	results := p.Probe(context.Background(), []string{"h264_nvenc", "libx264", "slow_qsv"})
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	if results[0].Working {
		t.Error("h264_nvenc should fail")
	}
	if !strings.Contains(results[0].Excerpt, "Error selecting an encoder") {
		t.Errorf("excerpt = %q", results[0].Excerpt)
	}
	if len(results[0].Excerpt) > probeExcerptBytes {
		t.Errorf("excerpt length %d exceeds %d", len(results[0].Excerpt), probeExcerptBytes)
	}

	if !results[1].Working {
		t.Errorf("libx264 should work, excerpt %q", results[1].Excerpt)
	}

	if results[2].Working || !results[2].TimedOut {
		t.Errorf("slow_qsv = %+v, want timed out", results[2])
	}

	if got := Working(results); !slices.Equal(got, []string{"libx264"}) {
		t.Errorf("Working() = %v", got)
	}
}

func TestProbeArgs(t *testing.T) {
	got := strings.Join(ProbeArgs("hevc_amf"), " ")
	want := "-y -f lavfi -i color=c=black:s=320x240 -vframes 1 -c:v hevc_amf -pix_fmt yuv420p -f null -"
	if got != want {
		t.Errorf("ProbeArgs() = %q, want %q", got, want)
	}
}

func TestEngineVersion(t *testing.T) {
	engine := writeFakeEngine(t)
	if got := EngineVersion(context.Background(), engine); got != "7.1.1" {
		t.Errorf("EngineVersion() = %q, want 7.1.1", got)
	}
	if got := EngineVersion(context.Background(), filepath.Join(t.TempDir(), "missing")); got != "unknown" {
		t.Errorf("EngineVersion(missing) = %q, want unknown", got)
	}
}

func TestResultsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultResultsFile)
	in := NewResults("7.1.1", []ProbeResult{
		{Encoder: "hevc_nvenc", Working: true},
		{Encoder: "h264_amf", Excerpt: "No device available"},
		{Encoder: "libx264", Working: true},
	})

	if err := SaveResults(path, in); err != nil {
		t.Fatalf("SaveResults() error = %v", err)
	}
	out, err := LoadResults(path)
	if err != nil {
		t.Fatalf("LoadResults() error = %v", err)
	}

	if !slices.Equal(out.Working, []string{"hevc_nvenc", "libx264"}) {
		t.Errorf("Working = %v", out.Working)
	}
	if len(out.Failed) != 1 || out.Failed[0].Reason != "No device available" {
		t.Errorf("Failed = %+v", out.Failed)
	}
	if got := out.Registry().Names(); !slices.Equal(got, []string{"hevc_nvenc", "libx264", "copy"}) {
		t.Errorf("Registry().Names() = %v", got)
	}
}
