package preview

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func jpeg(size int) []byte {
	data := bytes.Repeat([]byte{0x42}, size)
	copy(data, jpegStart)
	copy(data[size-2:], jpegEnd)
	return data
}

func TestValid(t *testing.T) {
	short := jpeg(MinFrameBytes - 1)
	noStart := jpeg(2048)
	noStart[0] = 0x00
	noEnd := jpeg(2048)
	noEnd[len(noEnd)-1] = 0x00

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"empty", nil, false},
		{"too short", short, false},
		{"minimum size", jpeg(MinFrameBytes), true},
		{"large", jpeg(64 * 1024), true},
		{"missing SOI", noStart, false},
		{"truncated tail", noEnd, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.data); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadFrame(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.jpg")
	if err := os.WriteFile(good, jpeg(2048), 0o644); err != nil {
		t.Fatal(err)
	}
	if data, err := ReadFrame(good); err != nil || len(data) != 2048 {
		t.Errorf("ReadFrame(good) = %d bytes, %v", len(data), err)
	}

	partial := filepath.Join(dir, "partial.jpg")
	if err := os.WriteFile(partial, jpeg(2048)[:1500], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFrame(partial); !errors.Is(err, ErrIncomplete) {
		t.Errorf("ReadFrame(partial) error = %v, want ErrIncomplete", err)
	}

	if _, err := ReadFrame(filepath.Join(dir, "missing.jpg")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadFrame(missing) error = %v, want not exist", err)
	}
}

type frameEvent struct {
	id    string
	frame Frame
}

func newTestWatcher(t *testing.T) (*Watcher, <-chan frameEvent) {
	t.Helper()
	ch := make(chan frameEvent, 16)
	w, err := NewWatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), func(id string, f Frame) {
		ch <- frameEvent{id, f}
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w, ch
}

func waitFrame(t *testing.T, ch <-chan frameEvent) frameEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
		return frameEvent{}
	}
}

func TestWatcher_DeliversCompleteFrames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job-1.jpg")

	w, frames := newTestWatcher(t)
	if err := w.Track("job-1", path); err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	if _, ok := w.Latest("job-1"); ok {
		t.Fatal("Latest() reported a frame before any write")
	}

	first := jpeg(4096)
	if err := os.WriteFile(path, first, 0o644); err != nil {
		t.Fatal(err)
	}
	ev := waitFrame(t, frames)
	if ev.id != "job-1" || !bytes.Equal(ev.frame.Data, first) {
		t.Fatalf("got frame for %q of %d bytes", ev.id, ev.frame.Size())
	}

	latest, ok := w.Latest("job-1")
	if !ok || latest.Size() != 4096 {
		t.Errorf("Latest() = %d bytes, %v", latest.Size(), ok)
	}
}

func TestWatcher_KeepsLastValidFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.jpg")

	w, frames := newTestWatcher(t)
	if err := w.Track("job", path); err != nil {
		t.Fatal(err)
	}

	good := jpeg(2048)
	if err := os.WriteFile(path, good, 0o644); err != nil {
		t.Fatal(err)
	}
	waitFrame(t, frames)

	// A truncated rewrite must not replace the frame.
	if err := os.WriteFile(path, good[:100], 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	latest, ok := w.Latest("job")
	if !ok || !bytes.Equal(latest.Data, good) {
		t.Errorf("Latest() changed after incomplete write: %d bytes", latest.Size())
	}
}

func TestWatcher_IgnoresUntrackedFiles(t *testing.T) {
	dir := t.TempDir()

	w, frames := newTestWatcher(t)
	if err := w.Track("job", filepath.Join(dir, "job.jpg")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "other.jpg"), jpeg(2048), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-frames:
		t.Fatalf("unexpected frame for %q", ev.id)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_UntrackAndForget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.jpg")
	if err := os.WriteFile(path, jpeg(2048), 0o644); err != nil {
		t.Fatal(err)
	}

	w, frames := newTestWatcher(t)
	if err := w.Track("job", path); err != nil {
		t.Fatal(err)
	}
	w.Refresh("job")
	waitFrame(t, frames)

	w.Untrack("job")
	if err := os.WriteFile(path, jpeg(3000), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-frames:
		t.Fatal("frame delivered after Untrack")
	case <-time.After(200 * time.Millisecond):
	}
	if f, ok := w.Latest("job"); !ok || f.Size() != 2048 {
		t.Errorf("Latest() after Untrack = %d bytes, %v", f.Size(), ok)
	}

	w.Forget("job")
	if _, ok := w.Latest("job"); ok {
		t.Error("Latest() still has a frame after Forget")
	}
}

func TestWatcher_SharedDirectory(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")

	w, frames := newTestWatcher(t)
	if err := w.Track("a", a); err != nil {
		t.Fatal(err)
	}
	if err := w.Track("b", b); err != nil {
		t.Fatal(err)
	}
	w.Untrack("a")

	if err := os.WriteFile(b, jpeg(2048), 0o644); err != nil {
		t.Fatal(err)
	}
	if ev := waitFrame(t, frames); ev.id != "b" {
		t.Errorf("frame for %q, want b", ev.id)
	}
}
