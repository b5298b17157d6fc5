package encoders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultProbeTimeout bounds a single encoder probe.
	DefaultProbeTimeout = 5 * time.Second
	// probeExcerptBytes is how much stderr a failed probe keeps.
	probeExcerptBytes = 100
)

// ProbeResult is the outcome of probing one encoder.
type ProbeResult struct {
	Encoder  string        `json:"encoder"`
	Working  bool          `json:"working"`
	Elapsed  time.Duration `json:"elapsed"`
	Excerpt  string        `json:"excerpt,omitempty"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

// Prober checks which encoders actually work by encoding a single
// synthetic frame with each one.
type Prober struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewProber creates a prober running binary; a non-positive timeout means
// DefaultProbeTimeout.
func NewProber(binary string, timeout time.Duration, logger *slog.Logger) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{binary: binary, timeout: timeout, logger: logger}
}

// ProbeArgs returns the engine arguments used to probe encoder.
func ProbeArgs(encoder string) []string {
	return []string{
		"-y",
		"-f", "lavfi",
		"-i", "color=c=black:s=320x240",
		"-vframes", "1",
		"-c:v", encoder,
		"-pix_fmt", "yuv420p",
		"-f", "null",
		"-",
	}
}

// Probe tests each candidate in order and returns one result per candidate.
// It stops early only when ctx is cancelled.
func (p *Prober) Probe(ctx context.Context, candidates []string) []ProbeResult {
	results := make([]ProbeResult, 0, len(candidates))
	for _, name := range candidates {
		if ctx.Err() != nil {
			break
		}
		res := p.ProbeOne(ctx, name)
		if res.Working {
			p.logger.Info("Encoder available", "encoder", name, "elapsed", res.Elapsed)
		} else {
			p.logger.Debug("Encoder unavailable", "encoder", name, "excerpt", res.Excerpt, "timed_out", res.TimedOut)
		}
		results = append(results, res)
	}
	return results
}

// ProbeOne runs a single bounded probe. Success is exit status zero.
func (p *Prober) ProbeOne(ctx context.Context, encoder string) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, ProbeArgs(encoder)...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	res := ProbeResult{Encoder: encoder, Elapsed: time.Since(start)}

	switch {
	case err == nil:
		res.Working = true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.Excerpt = fmt.Sprintf("timed out after %s", p.timeout)
	default:
		res.Excerpt = tailExcerpt(stderr.String(), probeExcerptBytes)
		if res.Excerpt == "" {
			res.Excerpt = err.Error()
		}
	}
	return res
}

// Working returns the names of the encoders whose probe succeeded, in order.
func Working(results []ProbeResult) []string {
	var out []string
	for _, r := range results {
		if r.Working {
			out = append(out, r.Encoder)
		}
	}
	return out
}

// EngineVersion returns the version token from "<binary> -version", or
// "unknown".
func EngineVersion(ctx context.Context, binary string) string {
	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "-version").Output()
	if err != nil {
		return "unknown"
	}
	first, _, _ := strings.Cut(string(out), "\n")
	// "ffmpeg version 7.1.1 Copyright ..."
	if fields := strings.Fields(first); len(fields) >= 3 {
		return fields[2]
	}
	return "unknown"
}

func tailExcerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[len(s)-n:])
}
