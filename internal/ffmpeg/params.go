package ffmpeg

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/smazurov/encodenode/internal/bitrate"
	"github.com/smazurov/encodenode/internal/encoders"
)

// RateControl selects how the encoder allocates bits.
type RateControl string

const (
	// RateControlCQP holds quality constant; the rate value is a 0-51 index.
	RateControlCQP RateControl = "cqp"
	// RateControlVBR lets bitrate vary; the rate value is a 0-100 control position.
	RateControlVBR RateControl = "vbr"
	// RateControlCBR holds bitrate constant; the rate value is a 0-100 control position.
	RateControlCBR RateControl = "cbr"
)

// Rate value bounds and defaults per mode.
const (
	MinQuality     = 0
	MaxQuality     = 51
	DefaultQuality = 32
)

// DefaultRateValue returns the rate value a mode starts from: the default
// quality index for cqp, the default control position otherwise.
func DefaultRateValue(rc RateControl) string {
	if rc == RateControlCQP {
		return strconv.Itoa(DefaultQuality)
	}
	return strconv.Itoa(bitrate.DefaultPosition)
}

// AudioMode selects what happens to the audio stream.
type AudioMode string

const (
	AudioCopy   AudioMode = "copy"
	AudioStrip  AudioMode = "strip"
	AudioEncode AudioMode = "encode"
)

// Heights lists the target heights the scaler accepts.
var Heights = []int{720, 1080, 1440, 2160}

// AudioPolicy describes the audio stream of the output.
type AudioPolicy struct {
	Mode AudioMode `json:"mode" toml:"mode" enum:"copy,strip,encode" doc:"Audio handling"`
	// Codec, Bitrate and SampleRate apply to AudioEncode only.
	Codec   string `json:"codec,omitempty" toml:"codec" doc:"Audio encoder" example:"aac"`
	Bitrate string `json:"bitrate,omitempty" toml:"bitrate" doc:"Audio bitrate" example:"192k"`
	// SampleRate of zero keeps the source rate.
	SampleRate int `json:"sample_rate,omitempty" toml:"sample_rate" doc:"Output sample rate in Hz, 0 keeps source" example:"48000"`
}

// EncodeConfig is one complete encode request. It is a value: build it,
// hand it to Compile, and do not share it for mutation.
type EncodeConfig struct {
	Video encoders.Encoder `json:"video"`
	// FrameRate of zero keeps the source frame rate.
	FrameRate int `json:"frame_rate,omitempty"`
	// Height of zero keeps the source resolution.
	Height      int         `json:"height,omitempty"`
	RateControl RateControl `json:"rate_control"`
	// RateValue is a quality index for cqp and a control position for vbr/cbr.
	RateValue string      `json:"rate_value"`
	Audio     AudioPolicy `json:"audio"`
}

var audioBitrateRe = regexp.MustCompile(`^\d+(\.\d+)?[kKmM]?$`)

// Validate checks every field Compile will read.
func (c EncodeConfig) Validate() error {
	if c.Video.Name == "" {
		return configErr("video", "", "encoder is required")
	}
	if c.Video.Family == "" {
		return configErr("video", c.Video.Name, "encoder family not resolved")
	}

	if c.Video.Family != encoders.FamilyPassthrough {
		if c.FrameRate < 0 {
			return configErr("frame_rate", strconv.Itoa(c.FrameRate), "must be positive, or 0 to keep source")
		}
		if c.Height != 0 && !slices.Contains(Heights, c.Height) {
			return configErr("height", strconv.Itoa(c.Height), "must be one of 720, 1080, 1440, 2160, or 0 to keep source")
		}
		if _, err := c.rateValue(); err != nil {
			return err
		}
	}

	switch c.Audio.Mode {
	case AudioCopy, AudioStrip:
	case AudioEncode:
		if strings.TrimSpace(c.Audio.Codec) == "" {
			return configErr("audio.codec", "", "required when encoding audio")
		}
		if !audioBitrateRe.MatchString(c.Audio.Bitrate) {
			return configErr("audio.bitrate", c.Audio.Bitrate, "must look like 192k")
		}
		if c.Audio.SampleRate < 0 {
			return configErr("audio.sample_rate", strconv.Itoa(c.Audio.SampleRate), "must be positive, or 0 to keep source")
		}
	default:
		return configErr("audio.mode", string(c.Audio.Mode), "must be copy, strip or encode")
	}
	return nil
}

// rateValue parses RateValue and checks it against the mode's range.
func (c EncodeConfig) rateValue() (int, error) {
	lo, hi := 0, 0
	switch c.RateControl {
	case RateControlCQP:
		lo, hi = MinQuality, MaxQuality
	case RateControlVBR, RateControlCBR:
		lo, hi = 0, 100
	default:
		return 0, configErr("rate_control", string(c.RateControl), "must be cqp, vbr or cbr")
	}

	v, err := strconv.Atoi(strings.TrimSpace(c.RateValue))
	if err != nil {
		return 0, &ConfigError{Field: "rate_value", Value: c.RateValue, Message: "must be an integer", Cause: err}
	}
	if v < lo || v > hi {
		return 0, configErr("rate_value", c.RateValue, "out of range "+strconv.Itoa(lo)+"-"+strconv.Itoa(hi))
	}
	return v, nil
}
