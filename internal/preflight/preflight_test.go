package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckBinary(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	tests := []struct {
		name    string
		command string
		want    bool
	}{
		{"absolute path", present, true},
		{"missing", "clearly-not-present-binary", false},
		{"empty", "  ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := CheckBinary("Engine", tt.command)
			if r.Passed != tt.want {
				t.Errorf("Passed = %v (%s), want %v", r.Passed, r.Detail, tt.want)
			}
		})
	}
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if r := CheckDirectoryAccess("out", dir); !r.Passed {
		t.Errorf("temp dir failed: %s", r.Detail)
	}
	if r := CheckDirectoryAccess("out", filepath.Join(dir, "nope")); r.Passed || !strings.Contains(r.Detail, "does not exist") {
		t.Errorf("missing dir = %+v", r)
	}
	if r := CheckDirectoryAccess("out", file); r.Passed {
		t.Error("file accepted as directory")
	}
}

func TestCheckDirectoryAccess_ReadOnly(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses permission bits")
	}
	dir := filepath.Join(t.TempDir(), "ro")
	if err := os.Mkdir(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	if r := CheckDirectoryAccess("out", dir); r.Passed {
		t.Error("read-only directory passed")
	}
}

func TestEncode(t *testing.T) {
	dir := t.TempDir()
	engine := filepath.Join(dir, "ffmpeg")
	input := filepath.Join(dir, "in.mp4")
	for _, p := range []string{engine, input} {
		if err := os.WriteFile(p, []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	results := Encode(engine, input, filepath.Join(dir, "out.mp4"), filepath.Join(dir, "preview.jpg"))
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	if err := Failed(results); err != nil {
		t.Errorf("Failed() = %v", err)
	}

	results = Encode(engine, filepath.Join(dir, "missing.mp4"), filepath.Join(dir, "sub", "out.mp4"), "")
	err := Failed(results)
	if err == nil {
		t.Fatal("Failed() = nil for missing input and output dir")
	}
	for _, want := range []string{"Input", "Output directory"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
