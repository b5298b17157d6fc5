package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBinary is looked up on PATH unless configured.
	DefaultBinary = "ffprobe"
	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 10 * time.Second
	// FallbackDuration is used when the duration cannot be probed.
	FallbackDuration = 1.0
)

// ProbeError reports a failed or timed-out probe.
type ProbeError struct {
	Path   string
	Probe  string
	Output string
	Cause  error
}

func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("%s probe of %s failed", e.Probe, e.Path)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// Prober runs ffprobe with a bounded timeout.
type Prober struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a prober. Empty binary and non-positive timeout take defaults.
func New(binary string, timeout time.Duration, logger *slog.Logger) *Prober {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{binary: binary, timeout: timeout, logger: logger}
}

func (p *Prober) run(ctx context.Context, probe, path string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, append(args, path)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w after %s", ctx.Err(), p.timeout)
		}
		return nil, &ProbeError{Path: path, Probe: probe, Output: strings.TrimSpace(stderr.String()), Cause: err}
	}
	return stdout.Bytes(), nil
}

// Duration returns the container duration in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.run(ctx, "duration", path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
	)
	if err != nil {
		return 0, err
	}

	text := strings.TrimSpace(string(out))
	d, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		if err == nil {
			err = errors.New("not a positive duration")
		}
		return 0, &ProbeError{Path: path, Probe: "duration", Output: text, Cause: err}
	}
	return d, nil
}

// DurationOrDefault returns the probed duration, or FallbackDuration with
// fellBack set when the probe fails. Failures are logged, never returned.
func (p *Prober) DurationOrDefault(ctx context.Context, path string) (seconds float64, fellBack bool) {
	d, err := p.Duration(ctx, path)
	if err != nil {
		p.logger.Warn("Duration probe failed, progress percentage will be unreliable",
			"path", path, "fallback_seconds", FallbackDuration, "error", err)
		return FallbackDuration, true
	}
	return d, false
}

// Result is the decoded "-show_format -show_streams -of json" output.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream is one stream entry.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
	BitRate    string `json:"bit_rate"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format is the container entry.
type Format struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// Inspect runs the full stream probe.
func (p *Prober) Inspect(ctx context.Context, path string) (Result, error) {
	out, err := p.run(ctx, "stream", path,
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
	)
	if err != nil {
		return Result{}, err
	}
	var r Result
	if err := json.Unmarshal(out, &r); err != nil {
		return Result{}, &ProbeError{Path: path, Probe: "stream", Cause: fmt.Errorf("decode json: %w", err)}
	}
	return r, nil
}

// FirstOfType returns the first stream with the given codec type.
func (r Result) FirstOfType(codecType string) (Stream, bool) {
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, codecType) {
			return s, true
		}
	}
	return Stream{}, false
}

// DurationSeconds returns the container duration, 0 when absent.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	return int64(parseFloat(s))
}
