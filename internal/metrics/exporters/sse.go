package exporters

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/encodenode/internal/events"
	"github.com/smazurov/encodenode/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter turns per-line progress updates into at most one
// JobProgressEvent per job per interval.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher, interval time.Duration) *SSEExporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &SSEExporter{
		eventBus: eventBus,
		interval: interval,
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Flush publishes pending updates immediately.
func (s *SSEExporter) Flush() {
	s.publishProgress()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishProgress()
		}
	}
}

func (s *SSEExporter) publishProgress() {
	for jobID, m := range metrics.TakeDirtyJobMetrics() {
		s.eventBus.Publish(events.JobProgressEvent{
			JobID:     jobID,
			Elapsed:   m.Elapsed,
			Speed:     m.Speed,
			SizeKiB:   m.SizeKiB,
			Percent:   m.Percent,
			Remaining: m.Remaining,
		})
	}
}
