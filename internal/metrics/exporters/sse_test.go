package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/encodenode/internal/events"
	"github.com/smazurov/encodenode/internal/metrics"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{
		published: make(chan struct{}, 100),
	}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) progressFor(jobID string) []events.JobProgressEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.JobProgressEvent
	for _, ev := range m.events {
		if p, ok := ev.(events.JobProgressEvent); ok && p.JobID == jobID {
			out = append(out, p)
		}
	}
	return out
}

func TestSSEExporterPublishesProgress(t *testing.T) {
	jobID := "sse-test-job"
	metrics.DeleteJobMetrics(jobID)
	defer metrics.DeleteJobMetrics(jobID)

	metrics.SetJobProgress(jobID, 10, 25, 2, 512, 15)
	metrics.SetJobProgress(jobID, 20, 50, 2, 1024, 10)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock, 20*time.Millisecond)
	exporter.Start(context.Background())

	deadline := time.After(time.Second)
	for len(mock.progressFor(jobID)) == 0 {
		select {
		case <-mock.published:
		case <-deadline:
			t.Fatal("timeout waiting for progress publish")
		}
	}

	// Let a few more ticks pass without new updates.
	time.Sleep(80 * time.Millisecond)
	exporter.Stop()

	got := mock.progressFor(jobID)
	if len(got) != 1 {
		t.Fatalf("published %d events, want 1 coalesced event", len(got))
	}
	if got[0].Percent != 50 || got[0].SizeKiB != 1024 || got[0].Remaining != 10 {
		t.Errorf("event = %+v", got[0])
	}
}

func TestSSEExporterFlush(t *testing.T) {
	jobID := "sse-flush-job"
	metrics.DeleteJobMetrics(jobID)
	defer metrics.DeleteJobMetrics(jobID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock, time.Hour)

	exporter.Flush()
	if len(mock.progressFor(jobID)) != 0 {
		t.Fatal("published without updates")
	}

	metrics.SetJobProgress(jobID, 1, 99, 1, 1, 0)
	exporter.Flush()
	if got := mock.progressFor(jobID); len(got) != 1 || got[0].Percent != 99 {
		t.Errorf("events = %+v", got)
	}
}
