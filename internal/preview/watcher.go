package preview

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FrameHandler is called with every new complete frame of a job.
type FrameHandler func(id string, f Frame)

// Watcher tracks preview files of many jobs through one fsnotify watcher.
// Parent directories are watched, reference counted across jobs.
type Watcher struct {
	logger  *slog.Logger
	onFrame FrameHandler
	fsw     *fsnotify.Watcher

	mu     sync.Mutex
	paths  map[string]string // job id -> preview path
	owners map[string]string // preview path -> job id
	dirs   map[string]int
	frames map[string]Frame

	done chan struct{}
}

// NewWatcher starts a watcher. onFrame may be nil.
func NewWatcher(logger *slog.Logger, onFrame FrameHandler) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		logger:  logger,
		onFrame: onFrame,
		fsw:     fsw,
		paths:   make(map[string]string),
		owners:  make(map[string]string),
		dirs:    make(map[string]int),
		frames:  make(map[string]Frame),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Track starts following path for job id.
func (w *Watcher) Track(id, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if old, ok := w.paths[id]; ok {
		if old == abs {
			return nil
		}
		w.untrackLocked(id)
	}
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.paths[id] = abs
	w.owners[abs] = id
	w.logger.Debug("Tracking preview", "job_id", id, "path", abs)
	return nil
}

// Untrack stops following the preview of id. The last frame stays
// available until Forget.
func (w *Watcher) Untrack(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.untrackLocked(id)
}

func (w *Watcher) untrackLocked(id string) {
	path, ok := w.paths[id]
	if !ok {
		return
	}
	delete(w.paths, id)
	delete(w.owners, path)

	dir := filepath.Dir(path)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		if err := w.fsw.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			w.logger.Debug("Failed to remove preview watch", "dir", dir, "error", err)
		}
	}
}

// Forget untracks id and drops its last frame.
func (w *Watcher) Forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.untrackLocked(id)
	delete(w.frames, id)
}

// Latest returns the most recent complete frame of id.
func (w *Watcher) Latest(id string) (Frame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.frames[id]
	return f, ok
}

// Refresh reads the preview of id immediately.
func (w *Watcher) Refresh(id string) {
	w.mu.Lock()
	path, ok := w.paths[id]
	w.mu.Unlock()
	if ok {
		w.load(id, path)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(event.Name)
			w.mu.Lock()
			id, tracked := w.owners[path]
			w.mu.Unlock()
			if tracked {
				w.load(id, path)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Preview watcher error", "error", err)
		}
	}
}

// load validates the file and records it when it differs from the last
// accepted frame. Incomplete reads are dropped; a later write event will
// deliver the finished file.
func (w *Watcher) load(id, path string) {
	data, err := ReadFrame(path)
	if err != nil {
		if !errors.Is(err, ErrIncomplete) && !errors.Is(err, fs.ErrNotExist) {
			w.logger.Debug("Failed to read preview", "job_id", id, "error", err)
		}
		return
	}

	w.mu.Lock()
	if _, still := w.paths[id]; !still {
		w.mu.Unlock()
		return
	}
	if prev, ok := w.frames[id]; ok && bytes.Equal(prev.Data, data) {
		w.mu.Unlock()
		return
	}
	frame := Frame{Data: data, UpdatedAt: time.Now()}
	w.frames[id] = frame
	w.mu.Unlock()

	if w.onFrame != nil {
		w.onFrame(id, frame)
	}
}
