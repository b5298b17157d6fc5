package ffmpeg

import (
	"regexp"
	"strconv"
)

var (
	timeRe  = regexp.MustCompile(`time=(\d{2,}):(\d{2}):(\d{2}(?:\.\d+)?)`)
	speedRe = regexp.MustCompile(`speed=\s*(\d+(?:\.\d+)?)x`)
	sizeRe  = regexp.MustCompile(`size=\s*(\d+(?:\.\d+)?)\s*(?:KiB|kB)`)
)

// Progress is one telemetry sample parsed from an engine status line.
// Fields without their Has flag were absent from the line.
type Progress struct {
	Elapsed    float64 `json:"elapsed_seconds" doc:"Encoded media time in seconds"`
	Speed      float64 `json:"speed" doc:"Encode speed as a multiple of realtime"`
	SizeKiB    float64 `json:"size_kib" doc:"Output size so far in KiB"`
	Percent    float64 `json:"percent" doc:"Completion percentage, 0-100"`
	HasElapsed bool    `json:"has_elapsed"`
	HasSpeed   bool    `json:"has_speed"`
	HasSize    bool    `json:"has_size"`
}

// ParseProgress extracts elapsed time, speed and size from line. total is
// the expected duration in seconds and drives Percent, which is clamped to
// [0,100]. ok is false when the line holds none of the tokens.
func ParseProgress(line string, total float64) (p Progress, ok bool) {
	if m := timeRe.FindStringSubmatch(line); m != nil {
		h, _ := strconv.ParseFloat(m[1], 64)
		mi, _ := strconv.ParseFloat(m[2], 64)
		s, _ := strconv.ParseFloat(m[3], 64)
		p.Elapsed = h*3600 + mi*60 + s
		p.HasElapsed = true
		if total > 0 {
			p.Percent = clampPercent(p.Elapsed / total * 100)
		}
	}
	if m := speedRe.FindStringSubmatch(line); m != nil {
		p.Speed, _ = strconv.ParseFloat(m[1], 64)
		p.HasSpeed = true
	}
	if m := sizeRe.FindStringSubmatch(line); m != nil {
		p.SizeKiB, _ = strconv.ParseFloat(m[1], 64)
		p.HasSize = true
	}
	return p, p.HasElapsed || p.HasSpeed || p.HasSize
}

// Merge overlays the fields present in next onto p.
func (p Progress) Merge(next Progress) Progress {
	if next.HasElapsed {
		p.Elapsed, p.Percent, p.HasElapsed = next.Elapsed, next.Percent, true
	}
	if next.HasSpeed {
		p.Speed, p.HasSpeed = next.Speed, true
	}
	if next.HasSize {
		p.SizeKiB, p.HasSize = next.SizeKiB, true
	}
	return p
}

// Remaining estimates wall-clock seconds left, or -1 when unknown.
func (p Progress) Remaining(total float64) float64 {
	if !p.HasElapsed || !p.HasSpeed || p.Speed <= 0 || total <= 0 {
		return -1
	}
	left := total - p.Elapsed
	if left < 0 {
		return 0
	}
	return left / p.Speed
}

func clampPercent(v float64) float64 {
	return min(max(v, 0), 100)
}
