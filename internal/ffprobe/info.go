package ffprobe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// StreamInfo is the summary a display layer renders for an input file.
// Zero values mean the probe did not report the field.
type StreamInfo struct {
	VideoCodec   string  `json:"video_codec" doc:"Video codec name"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	FrameRate    float64 `json:"frame_rate" doc:"Frames per second, rounded to 2 decimals"`
	BitRate      int64   `json:"bit_rate" doc:"Overall bit rate in bits/s, falling back to the video stream"`
	AudioCodec   string  `json:"audio_codec,omitempty"`
	SampleRate   int     `json:"sample_rate,omitempty" doc:"Audio sample rate in Hz"`
	AudioBitRate int64   `json:"audio_bit_rate,omitempty" doc:"Audio bit rate in bits/s"`
	Duration     float64 `json:"duration_seconds"`
}

// ErrNoVideo is the cause carried when a file has no video stream.
var ErrNoVideo = errors.New("no video stream")

// Info runs Inspect and reduces the result to a StreamInfo.
func (p *Prober) Info(ctx context.Context, path string) (StreamInfo, error) {
	r, err := p.Inspect(ctx, path)
	if err != nil {
		return StreamInfo{}, err
	}
	info, ok := r.StreamInfo()
	if !ok {
		return info, &ProbeError{Path: path, Probe: "stream", Cause: ErrNoVideo}
	}
	return info, nil
}

// StreamInfo summarises the first video and audio streams. ok is false when
// there is no video stream.
func (r Result) StreamInfo() (StreamInfo, bool) {
	v, ok := r.FirstOfType("video")
	if !ok {
		return StreamInfo{}, false
	}

	info := StreamInfo{
		VideoCodec: v.CodecName,
		Width:      v.Width,
		Height:     v.Height,
		FrameRate:  ParseFrameRate(v.RFrameRate),
		BitRate:    parseInt(r.Format.BitRate),
		Duration:   r.DurationSeconds(),
	}
	if info.BitRate == 0 {
		info.BitRate = parseInt(v.BitRate)
	}

	if a, ok := r.FirstOfType("audio"); ok {
		info.AudioCodec = a.CodecName
		info.SampleRate = int(parseInt(a.SampleRate))
		info.AudioBitRate = parseInt(a.BitRate)
	}
	return info, true
}

// ParseFrameRate converts "num/den" or a plain number to frames per second
// rounded to two decimals. A zero denominator yields 0.
func ParseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	num, den, isRatio := strings.Cut(s, "/")
	if !isRatio {
		return round2(parseFloat(s))
	}
	n, err1 := strconv.ParseInt(num, 10, 64)
	d, err2 := strconv.ParseInt(den, 10, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return round2(float64(n) / float64(d))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatBitRate renders bits/s as Mbps for video-scale rates and kbps below.
func FormatBitRate(bps int64) string {
	switch {
	case bps <= 0:
		return "unknown"
	case bps >= 1_000_000:
		return strconv.FormatFloat(round2(float64(bps)/1_000_000), 'f', -1, 64) + " Mbps"
	default:
		return strconv.FormatFloat(round2(float64(bps)/1000), 'f', -1, 64) + " kbps"
	}
}

// Rows returns label/value pairs for a two-column table.
func (s StreamInfo) Rows() [][2]string {
	rows := [][2]string{
		{"Video codec", strings.ToUpper(s.VideoCodec)},
		{"Resolution", fmt.Sprintf("%d x %d", s.Width, s.Height)},
		{"Frame rate", strconv.FormatFloat(s.FrameRate, 'f', -1, 64) + " fps"},
		{"Bit rate", FormatBitRate(s.BitRate)},
		{"Duration", strconv.FormatFloat(round2(s.Duration), 'f', -1, 64) + " s"},
	}
	if s.AudioCodec == "" {
		return append(rows, [2]string{"Audio", "none"})
	}
	return append(rows,
		[2]string{"Audio codec", strings.ToUpper(s.AudioCodec)},
		[2]string{"Sample rate", strconv.Itoa(s.SampleRate) + " Hz"},
		[2]string{"Audio bit rate", FormatBitRate(s.AudioBitRate)},
	)
}
