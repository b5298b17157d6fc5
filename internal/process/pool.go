package process

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/smazurov/encodenode/internal/ffmpeg"
)

// stopTimeout bounds how long Stop waits for a killed tree to be reaped.
const stopTimeout = 10 * time.Second

// Pool manages concurrent encode sessions by ID.
type Pool interface {
	// Start spawns a session. Returns ErrSessionExists if the ID is taken
	// by a session that is not terminal.
	Start(ctx context.Context, id string, req Request) (*Session, error)

	// Get returns the session for id.
	Get(id string) (*Session, bool)

	// Pause suspends a running session.
	Pause(id string) error

	// Resume continues a paused session.
	Resume(id string) error

	// Stop cancels a session and waits for it to become terminal.
	Stop(id string) error

	// Remove forgets a terminal session.
	Remove(id string) error

	// List returns a snapshot of every tracked session, oldest first.
	List() []Info

	// Active counts sessions that are running or paused.
	Active() int

	// StopAll cancels every active session and waits for them.
	StopAll()
}

type pool struct {
	opts     PoolOptions
	sessions map[string]*Session
	order    []string
	mu       sync.RWMutex
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewPool creates an empty session pool.
func NewPool(opts *PoolOptions) Pool {
	if opts == nil {
		opts = &PoolOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	o := *opts
	if o.Controller == nil {
		o.Controller = NewTreeController(logger)
	}
	return &pool{
		opts:     o,
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

func (p *pool) Start(ctx context.Context, id string, req Request) (*Session, error) {
	p.mu.Lock()
	if existing, ok := p.sessions[id]; ok {
		if !existing.State().IsTerminal() {
			p.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
		}
		p.dropLocked(id)
	}

	opts := p.sessionOptions(id)
	if p.opts.ConfigureSession != nil {
		p.opts.ConfigureSession(id, &opts)
	}
	s := NewSession(opts)
	p.sessions[id] = s
	p.order = append(p.order, id)
	p.evictLocked()
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		<-s.Done()
	}()

	if err := s.Start(ctx, req); err != nil {
		return s, err
	}
	return s, nil
}

func (p *pool) sessionOptions(id string) Options {
	opts := Options{
		ID:           id,
		Controller:   p.opts.Controller,
		Logger:       p.logger,
		EngineLogger: p.opts.EngineLogger,
		ExcerptLines: p.opts.ExcerptLines,
	}
	if cb := p.opts.OnStateChange; cb != nil {
		opts.OnStateChange = func(old, next State) { cb(id, old, next) }
	}
	if cb := p.opts.OnProgress; cb != nil {
		opts.OnProgress = func(pr ffmpeg.Progress) { cb(id, pr) }
	}
	if cb := p.opts.OnExit; cb != nil {
		opts.OnExit = func(res Result) { cb(id, res) }
	}
	return opts
}

func (p *pool) Get(id string) (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[id]
	return s, ok
}

func (p *pool) lookup(id string) (*Session, error) {
	s, ok := p.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (p *pool) Pause(id string) error {
	s, err := p.lookup(id)
	if err != nil {
		return err
	}
	return s.Pause()
}

func (p *pool) Resume(id string) error {
	s, err := p.lookup(id)
	if err != nil {
		return err
	}
	return s.Resume()
}

func (p *pool) Stop(id string) error {
	s, err := p.lookup(id)
	if err != nil {
		return err
	}
	if !s.State().IsActive() {
		return nil
	}

	p.logger.Info("Stopping session", "id", id)
	if err := s.Stop(); err != nil {
		return err
	}

	select {
	case <-s.Done():
	case <-time.After(stopTimeout):
		p.logger.Warn("Timeout waiting for session to stop", "id", id)
	}
	return nil
}

func (p *pool) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if st := s.State(); !st.IsTerminal() && st != StateIdle {
		return fmt.Errorf("session %s is %s", id, st)
	}
	p.dropLocked(id)
	return nil
}

func (p *pool) List() []Info {
	p.mu.RLock()
	out := make([]Info, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.sessions[id].Info())
	}
	p.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (p *pool) Active() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, s := range p.sessions {
		if s.State().IsActive() {
			n++
		}
	}
	return n
}

func (p *pool) StopAll() {
	p.logger.Info("Stopping all sessions")

	p.mu.RLock()
	ids := make([]string, 0, len(p.sessions))
	for id, s := range p.sessions {
		if s.State().IsActive() {
			ids = append(ids, id)
		}
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Go(func() {
			if err := p.Stop(id); err != nil {
				p.logger.Warn("Failed to stop session", "id", id, "error", err)
			}
		})
	}
	wg.Wait()

	p.wg.Wait()
	p.logger.Info("All sessions stopped")
}

// evictLocked drops the oldest terminal sessions beyond the retention limit.
func (p *pool) evictLocked() {
	limit := p.opts.MaxRetained
	if limit <= 0 {
		return
	}
	for i := 0; len(p.sessions) > limit && i < len(p.order); {
		id := p.order[i]
		if p.sessions[id].State().IsTerminal() {
			p.dropLocked(id)
			continue
		}
		i++
	}
}

func (p *pool) dropLocked(id string) {
	delete(p.sessions, id)
	for i, o := range p.order {
		if o == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}
