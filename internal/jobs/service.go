// Package jobs runs encode jobs: it resolves and compiles each request,
// spawns a supervised engine session, and fans lifecycle changes out to the
// event bus, metrics, and the preview watcher.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/encodenode/internal/encoders"
	"github.com/smazurov/encodenode/internal/events"
	"github.com/smazurov/encodenode/internal/ffmpeg"
	"github.com/smazurov/encodenode/internal/metrics"
	"github.com/smazurov/encodenode/internal/preflight"
	"github.com/smazurov/encodenode/internal/preview"
	"github.com/smazurov/encodenode/internal/process"
)

// DefaultMaxRetained is how many jobs are remembered when not configured.
const DefaultMaxRetained = 50

// finishTimeout bounds how long Stop waits for completion to be published.
const finishTimeout = 15 * time.Second

// DurationProber reports the length of an input, falling back to a fixed
// value when it cannot be probed.
type DurationProber interface {
	DurationOrDefault(ctx context.Context, path string) (seconds float64, fellBack bool)
}

// Options configures a Service.
type Options struct {
	// Engine is the ffmpeg binary.
	Engine string
	Prober DurationProber
	// Registry is the initial set of working encoders. Nil means
	// passthrough only until SetRegistry is called.
	Registry *encoders.Registry
	Bus      *events.Bus
	// PreviewDir holds preview frames. Defaults to a directory under
	// os.TempDir().
	PreviewDir   string
	Controller   process.Controller
	MaxRetained  int
	ExcerptLines int
	Logger       *slog.Logger
	EngineLogger *slog.Logger
}

// Service owns every encode job of the process.
type Service struct {
	opts       Options
	logger     *slog.Logger
	bus        *events.Bus
	pool       process.Pool
	previews   *preview.Watcher
	registry   atomic.Pointer[encoders.Registry]
	previewDir string

	mu    sync.RWMutex
	jobs  map[string]*entry
	order []string
	// reserved maps a cleaned output path to the job being created for it.
	reserved map[string]string

	warnedMu sync.Mutex
	warned   map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a service and its preview watcher.
func NewService(opts Options) (*Service, error) {
	if opts.Prober == nil {
		return nil, errors.New("jobs: duration prober is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxRetained <= 0 {
		opts.MaxRetained = DefaultMaxRetained
	}
	previewDir := opts.PreviewDir
	if previewDir == "" {
		previewDir = filepath.Join(os.TempDir(), "encodenode-preview")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		opts:       opts,
		logger:     logger,
		bus:        opts.Bus,
		previewDir: previewDir,
		jobs:       make(map[string]*entry),
		reserved:   make(map[string]string),
		warned:     make(map[string]bool),
		ctx:        ctx,
		cancel:     cancel,
	}

	registry := opts.Registry
	if registry == nil {
		registry = encoders.NewRegistry(nil)
	}
	s.registry.Store(registry)

	previews, err := preview.NewWatcher(logger.With("component", "preview"), s.onPreviewFrame)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("preview watcher: %w", err)
	}
	s.previews = previews

	s.pool = process.NewPool(&process.PoolOptions{
		Controller:    opts.Controller,
		OnStateChange: s.onStateChange,
		OnProgress:    s.onProgress,
		OnExit:        s.onExit,
		ExcerptLines:  opts.ExcerptLines,
		Logger:        logger,
		EngineLogger:  opts.EngineLogger,
	})
	return s, nil
}

// Registry returns the current set of working encoders.
func (s *Service) Registry() *encoders.Registry {
	return s.registry.Load()
}

// SetRegistry replaces the working encoder set, typically after a probe
// or a reload of saved results.
func (s *Service) SetRegistry(r *encoders.Registry) {
	if r == nil {
		return
	}
	s.registry.Store(r)
	s.logger.Info("Encoder registry updated", "encoders", r.Names())
}

// ResolveEncoder returns the registered encoder for name, or resolves an
// unregistered identifier. Unknown identifiers fall back to the software
// family; that is logged once per identifier.
func (s *Service) ResolveEncoder(name string) encoders.Encoder {
	name = strings.TrimSpace(name)
	if e, ok := s.Registry().Lookup(name); ok {
		return e
	}
	e := encoders.Resolve(name)
	if !e.Known && name != "" {
		s.warnedMu.Lock()
		first := !s.warned[name]
		s.warned[name] = true
		s.warnedMu.Unlock()
		if first {
			s.logger.Warn("Unknown encoder, using software rate control", "encoder", name)
		}
	}
	return e
}

// Compile resolves the encoder and compiles the directive without
// touching the filesystem or spawning anything.
func (s *Service) Compile(p CreateParams) (ffmpeg.EncodeConfig, ffmpeg.Directive, error) {
	cfg := p.EncodeConfig(s.ResolveEncoder(p.Encoder))
	d, err := ffmpeg.Compile(cfg)
	return cfg, d, err
}

// Create validates, probes and starts a job. Configuration errors and
// failed preflight checks are returned before any process exists. A spawn
// failure is returned together with the failed job's snapshot.
func (s *Service) Create(ctx context.Context, p CreateParams) (Snapshot, error) {
	if strings.TrimSpace(p.Input) == "" || strings.TrimSpace(p.Output) == "" {
		return Snapshot{}, newError(ErrCodeInvalidParams, "input and output are required", nil)
	}
	if filepath.Clean(p.Input) == filepath.Clean(p.Output) {
		return Snapshot{}, newError(ErrCodeInvalidParams, "output must differ from input", nil)
	}

	cfg, directive, err := s.Compile(p)
	if err != nil {
		return Snapshot{}, err
	}
	id := uuid.NewString()
	output := filepath.Clean(p.Output)
	if writer := s.reserveOutput(output, id); writer != "" {
		return Snapshot{}, newError(ErrCodeBusy, "output is being written by job "+writer, nil)
	}
	registered := false
	defer func() {
		if !registered {
			s.releaseOutput(output, id)
		}
	}()

	var previewPath string
	if p.Preview {
		if err := os.MkdirAll(s.previewDir, 0o755); err != nil {
			return Snapshot{}, newError(ErrCodePreflight, "create preview directory", err)
		}
		previewPath = filepath.Join(s.previewDir, id+".jpg")
	}

	if err := preflight.Failed(preflight.Encode(s.opts.Engine, p.Input, p.Output, previewPath)); err != nil {
		return Snapshot{}, newError(ErrCodePreflight, "encode cannot start", err)
	}

	duration, fellBack := s.opts.Prober.DurationOrDefault(ctx, p.Input)
	inv := ffmpeg.BuildCommand(s.opts.Engine, directive, p.Input, p.Output, previewPath)

	e := &entry{
		job: Job{
			ID:               id,
			Input:            p.Input,
			Output:           p.Output,
			Preview:          previewPath,
			Config:           cfg,
			Command:          inv.String(),
			Duration:         duration,
			DurationFallback: fellBack,
			CreatedAt:        time.Now(),
		},
		finished: make(chan struct{}),
	}

	s.mu.Lock()
	delete(s.reserved, output)
	s.jobs[id] = e
	s.order = append(s.order, id)
	s.mu.Unlock()
	registered = true

	s.logger.Info("Job created",
		"job_id", id,
		"encoder", cfg.Video.Name,
		"family", cfg.Video.Family,
		"duration_seconds", duration,
		"duration_fallback", fellBack)

	s.bus.Publish(events.JobCreatedEvent{
		JobID:     id,
		Input:     p.Input,
		Output:    p.Output,
		Encoder:   cfg.Video.Name,
		Command:   e.job.Command,
		Timestamp: time.Now().Format(time.RFC3339),
	})

	if previewPath != "" {
		if err := s.previews.Track(id, previewPath); err != nil {
			s.logger.Warn("Preview disabled for job", "job_id", id, "error", err)
		}
	}

	session, err := s.pool.Start(s.ctx, id, process.Request{Invocation: inv, Duration: duration})
	s.mu.Lock()
	e.session = session
	s.mu.Unlock()
	s.evict()

	return s.snapshot(e), err
}

// Get returns the snapshot of one job.
func (s *Service) Get(id string) (Snapshot, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(e), nil
}

// List returns every retained job, oldest first.
func (s *Service) List() []Snapshot {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.jobs[id])
	}
	s.mu.RUnlock()

	out := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.snapshot(e))
	}
	return out
}

// Pause suspends a running job. Pausing a job in any other state is a no-op.
func (s *Service) Pause(id string) (Snapshot, error) {
	return s.control(id, s.pool.Pause)
}

// Resume continues a paused job.
func (s *Service) Resume(id string) (Snapshot, error) {
	return s.control(id, s.pool.Resume)
}

// Stop cancels a job and waits for it to become terminal.
func (s *Service) Stop(id string) (Snapshot, error) {
	snap, err := s.control(id, s.pool.Stop)
	if err != nil {
		return snap, err
	}
	if e, lerr := s.lookup(id); lerr == nil && s.sessionOf(e) != nil {
		select {
		case <-e.finished:
		case <-time.After(finishTimeout):
			s.logger.Warn("Timeout waiting for job to finish", "job_id", id)
		}
		snap = s.snapshot(e)
	}
	return snap, nil
}

func (s *Service) control(id string, op func(string) error) (Snapshot, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	if s.sessionOf(e) == nil {
		return s.snapshot(e), nil
	}
	if err := op(id); err != nil {
		return s.snapshot(e), err
	}
	return s.snapshot(e), nil
}

// Delete forgets a job, stopping it first when it is still active. The
// preview file is removed; the encoded output is left alone.
func (s *Service) Delete(id string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if sess := s.sessionOf(e); sess != nil {
		if sess.State().IsActive() {
			if _, err := s.Stop(id); err != nil {
				return err
			}
		}
		<-e.finished
	}
	s.remove(id)
	return nil
}

// Wait blocks until the job is terminal and its completion has been
// published, or ctx is done.
func (s *Service) Wait(ctx context.Context, id string) (Snapshot, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	select {
	case <-e.finished:
		return s.snapshot(e), nil
	case <-ctx.Done():
		return s.snapshot(e), ctx.Err()
	}
}

// Preview returns the latest complete preview frame of a job.
func (s *Service) Preview(id string) (preview.Frame, error) {
	e, err := s.lookup(id)
	if err != nil {
		return preview.Frame{}, err
	}
	if e.job.Preview == "" {
		return preview.Frame{}, newError(ErrCodeInvalidParams, "preview not enabled for job "+id, nil)
	}
	f, ok := s.previews.Latest(id)
	if !ok {
		return preview.Frame{}, fmt.Errorf("%w: no frame yet for %s", preview.ErrIncomplete, id)
	}
	return f, nil
}

// PIDs returns the engine PID of every active job, keyed by job ID.
func (s *Service) PIDs() map[string]int {
	out := make(map[string]int)
	for _, info := range s.pool.List() {
		if info.State.IsActive() && info.PID > 0 {
			out[info.ID] = info.PID
		}
	}
	return out
}

// Active counts running and paused jobs.
func (s *Service) Active() int {
	return s.pool.Active()
}

// Close stops every active job and releases the preview watcher.
func (s *Service) Close() error {
	s.pool.StopAll()
	s.cancel()
	return s.previews.Close()
}

// reserveOutput claims output for job id until it is registered. It
// returns the job already writing or creating output instead, if any.
func (s *Service) reserveOutput(output, id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if writer, ok := s.reserved[output]; ok {
		return writer
	}
	for _, jid := range s.order {
		e := s.jobs[jid]
		if !e.isFinished() && filepath.Clean(e.job.Output) == output {
			return jid
		}
	}
	s.reserved[output] = id
	return ""
}

func (s *Service) releaseOutput(output, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserved[output] == id {
		delete(s.reserved, output)
	}
}

func (s *Service) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func (s *Service) sessionOf(e *entry) *process.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return e.session
}

func (s *Service) snapshot(e *entry) Snapshot {
	session := s.sessionOf(e)

	snap := Snapshot{Job: e.job, Remaining: -1}
	if session != nil {
		snap.Session = session.Info()
		if snap.Session.State.IsActive() {
			snap.Remaining = snap.Session.Progress.Remaining(e.job.Duration)
		}
	} else {
		snap.Session = process.Info{ID: e.job.ID, State: process.StateIdle}
	}
	if e.job.Preview != "" {
		_, snap.PreviewReady = s.previews.Latest(e.job.ID)
	}
	return snap
}

// evict drops the oldest terminal jobs beyond MaxRetained.
func (s *Service) evict() {
	s.mu.RLock()
	var victims []string
	excess := len(s.order) - s.opts.MaxRetained
	for _, id := range s.order {
		if excess <= 0 {
			break
		}
		if s.jobs[id].isFinished() {
			victims = append(victims, id)
			excess--
		}
	}
	s.mu.RUnlock()

	for _, id := range victims {
		s.logger.Debug("Evicting finished job", "job_id", id)
		s.remove(id)
	}
}

func (s *Service) remove(id string) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
		for i, o := range s.order {
			if o == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	if err := s.pool.Remove(id); err != nil && !errors.Is(err, process.ErrSessionNotFound) {
		s.logger.Debug("Pool remove failed", "job_id", id, "error", err)
	}
	s.previews.Forget(id)
	if e.job.Preview != "" {
		if err := os.Remove(e.job.Preview); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to remove preview file", "path", e.job.Preview, "error", err)
		}
	}
	metrics.DeleteJobMetrics(id)
	metrics.DeleteProcessMetrics(id)
	s.logger.Info("Job removed", "job_id", id)
}

func (s *Service) onStateChange(id string, old, next process.State) {
	metrics.SetActiveJobs(s.pool.Active())
	s.bus.Publish(events.JobStateChangedEvent{
		JobID:     id,
		From:      string(old),
		To:        string(next),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *Service) onProgress(id string, p ffmpeg.Progress) {
	e, err := s.lookup(id)
	if err != nil {
		return
	}
	metrics.SetJobProgress(id, p.Elapsed, p.Percent, p.Speed, p.SizeKiB, p.Remaining(e.job.Duration))
}

func (s *Service) onExit(id string, res process.Result) {
	metrics.SetActiveJobs(s.pool.Active())
	metrics.ObserveJobFinished(string(res.State), res.Elapsed.Seconds())
	metrics.DeleteProcessMetrics(id)

	e, err := s.lookup(id)
	if err != nil {
		return
	}
	if e.job.Preview != "" {
		s.previews.Refresh(id)
		s.previews.Untrack(id)
	}

	ev := events.JobFinishedEvent{
		JobID:     id,
		State:     string(res.State),
		ExitCode:  res.ExitCode,
		Excerpt:   res.Excerpt,
		Elapsed:   res.Elapsed.Seconds(),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if res.Err != nil && res.State != process.StateCancelled {
		ev.Error = res.Err.Error()
	}

	switch res.State {
	case process.StateCompleted:
		s.logger.Info("Job completed", "job_id", id, "elapsed", res.Elapsed)
	case process.StateCancelled:
		s.logger.Info("Job cancelled", "job_id", id, "elapsed", res.Elapsed)
	default:
		s.logger.Error("Job failed", "job_id", id, "exit_code", res.ExitCode, "error", res.Err)
	}

	s.bus.Publish(ev)
	close(e.finished)
}

func (s *Service) onPreviewFrame(id string, f preview.Frame) {
	s.bus.Publish(events.PreviewUpdatedEvent{
		JobID:     id,
		Size:      f.Size(),
		Timestamp: f.UpdatedAt.Format(time.RFC3339),
	})
}
