// Package metrics provides Prometheus metrics for encode jobs and the host.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "encodenode"

var (
	jobPercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "job",
		Name:      "progress_percent",
		Help:      "Percent complete of a running encode",
	}, []string{"job_id"})

	jobSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "job",
		Name:      "speed",
		Help:      "Encode speed relative to realtime",
	}, []string{"job_id"})

	jobOutputKiB = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "job",
		Name:      "output_kib",
		Help:      "Output size written so far in KiB",
	}, []string{"job_id"})

	jobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "active",
		Help:      "Encodes currently running or paused",
	})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "finished_total",
		Help:      "Encodes that reached a terminal state",
	}, []string{"state"})

	jobWallSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "wall_seconds",
		Help:      "Wall clock time of finished encodes",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"state"})

	encodersWorking = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoders",
		Name:      "working",
		Help:      "Working encoders by family",
	}, []string{"family"})

	// Local cache for SSE exporter access.
	jobCache   = make(map[string]*JobMetrics)
	jobCacheMu sync.RWMutex
)

// JobMetrics holds current metric values for a job.
type JobMetrics struct {
	Elapsed   float64
	Percent   float64
	Speed     float64
	SizeKiB   float64
	Remaining float64
	// Dirty is set on every update and cleared by TakeDirtyJobMetrics.
	Dirty bool
}

// SetJobProgress records the latest progress sample of a job.
func SetJobProgress(jobID string, elapsed, percent, speed, sizeKiB, remaining float64) {
	jobPercent.WithLabelValues(jobID).Set(percent)
	jobSpeed.WithLabelValues(jobID).Set(speed)
	jobOutputKiB.WithLabelValues(jobID).Set(sizeKiB)
	updateCache(jobID, func(m *JobMetrics) {
		m.Elapsed = elapsed
		m.Percent = percent
		m.Speed = speed
		m.SizeKiB = sizeKiB
		m.Remaining = remaining
		m.Dirty = true
	})
}

// DeleteJobMetrics removes all per-job series.
func DeleteJobMetrics(jobID string) {
	jobPercent.DeleteLabelValues(jobID)
	jobSpeed.DeleteLabelValues(jobID)
	jobOutputKiB.DeleteLabelValues(jobID)

	jobCacheMu.Lock()
	delete(jobCache, jobID)
	jobCacheMu.Unlock()
}

// GetJobMetrics returns current metric values for a job.
func GetJobMetrics(jobID string) *JobMetrics {
	jobCacheMu.RLock()
	defer jobCacheMu.RUnlock()
	if m, ok := jobCache[jobID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// TakeDirtyJobMetrics returns jobs updated since the previous call and
// clears their dirty flag.
func TakeDirtyJobMetrics() map[string]JobMetrics {
	jobCacheMu.Lock()
	defer jobCacheMu.Unlock()
	result := make(map[string]JobMetrics)
	for id, m := range jobCache {
		if !m.Dirty {
			continue
		}
		m.Dirty = false
		result[id] = *m
	}
	return result
}

// SetActiveJobs sets the number of running or paused encodes.
func SetActiveJobs(n int) {
	jobsActive.Set(float64(n))
}

// ObserveJobFinished counts a terminal job and its wall time.
func ObserveJobFinished(state string, wallSeconds float64) {
	jobsFinished.WithLabelValues(state).Inc()
	jobWallSeconds.WithLabelValues(state).Observe(wallSeconds)
}

// SetWorkingEncoders replaces the per-family working encoder counts.
func SetWorkingEncoders(byFamily map[string]int) {
	encodersWorking.Reset()
	for family, n := range byFamily {
		encodersWorking.WithLabelValues(family).Set(float64(n))
	}
}

func updateCache(jobID string, update func(*JobMetrics)) {
	jobCacheMu.Lock()
	defer jobCacheMu.Unlock()
	m, ok := jobCache[jobID]
	if !ok {
		m = &JobMetrics{}
		jobCache[jobID] = m
	}
	update(m)
}

var (
	processCPU = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "cpu_percent",
		Help:      "CPU usage of the engine process of a job",
	}, []string{"job_id"})

	processRSS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "resident_bytes",
		Help:      "Resident memory of the engine process of a job",
	}, []string{"job_id"})
)

// SetProcessUsage records CPU and memory of a job's engine process.
func SetProcessUsage(jobID string, cpuPercent float64, rssBytes uint64) {
	processCPU.WithLabelValues(jobID).Set(cpuPercent)
	processRSS.WithLabelValues(jobID).Set(float64(rssBytes))
}

// DeleteProcessMetrics removes the engine usage series of a job.
func DeleteProcessMetrics(jobID string) {
	processCPU.DeleteLabelValues(jobID)
	processRSS.DeleteLabelValues(jobID)
}
