// Package collectors samples resource usage of running encoder processes.
package collectors

import (
	"context"
	"log/slog"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"

	"github.com/smazurov/encodenode/internal/logging"
	"github.com/smazurov/encodenode/internal/metrics"
)

// PIDSource returns the engine PID of every active job.
type PIDSource func() map[string]int

// ProcessCollector polls CPU and memory of engine processes.
type ProcessCollector struct {
	logger   *slog.Logger
	source   PIDSource
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc

	procs map[string]*gops.Process
}

// NewProcessCollector creates a collector sampling every interval.
func NewProcessCollector(source PIDSource, interval time.Duration) *ProcessCollector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ProcessCollector{
		logger:   logging.GetLogger("metrics"),
		source:   source,
		interval: interval,
		procs:    make(map[string]*gops.Process),
	}
}

// Start begins collecting.
func (c *ProcessCollector) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.run()
	return nil
}

// Stop stops the collector.
func (c *ProcessCollector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *ProcessCollector) run() {
	c.logger.Info("Starting process metrics collection", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *ProcessCollector) collect() {
	active := c.source()

	for id := range c.procs {
		if _, ok := active[id]; !ok {
			delete(c.procs, id)
			metrics.DeleteProcessMetrics(id)
		}
	}

	for id, pid := range active {
		proc, ok := c.procs[id]
		if !ok || proc.Pid != int32(pid) {
			p, err := gops.NewProcessWithContext(c.ctx, int32(pid))
			if err != nil {
				c.logger.Debug("Engine process not found", "job_id", id, "pid", pid, "error", err)
				continue
			}
			proc = p
			c.procs[id] = proc
		}
		sample, err := sampleProcess(c.ctx, proc)
		if err != nil {
			c.logger.Debug("Failed to sample engine process", "job_id", id, "pid", pid, "error", err)
			continue
		}
		metrics.SetProcessUsage(id, sample.cpuPercent, sample.rssBytes)
	}
}

type usage struct {
	cpuPercent float64
	rssBytes   uint64
}

// sampleProcess reads CPU since the previous call and resident memory.
func sampleProcess(ctx context.Context, p *gops.Process) (usage, error) {
	cpu, err := p.PercentWithContext(ctx, 0)
	if err != nil {
		return usage{}, err
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return usage{}, err
	}
	return usage{cpuPercent: cpu, rssBytes: mem.RSS}, nil
}
