package ffmpeg

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/smazurov/encodenode/internal/bitrate"
	"github.com/smazurov/encodenode/internal/encoders"
)

// Directive is the ordered argument list Compile produces for the engine.
// The zero value is empty. Args returns a copy, so a Directive never changes.
type Directive struct {
	args []string
}

// NewDirective wraps args, copying them.
func NewDirective(args ...string) Directive {
	return Directive{args: slices.Clone(args)}
}

// Args returns a copy of the argument tokens.
func (d Directive) Args() []string {
	return slices.Clone(d.args)
}

// Len returns the number of tokens.
func (d Directive) Len() int {
	return len(d.args)
}

// Flags returns the flag tokens in order, without their values.
func (d Directive) Flags() []string {
	var out []string
	for _, a := range d.args {
		if strings.HasPrefix(a, "-") && len(a) > 1 {
			out = append(out, a)
		}
	}
	return out
}

// Value returns the token following the first occurrence of flag.
func (d Directive) Value(flag string) (string, bool) {
	i := slices.Index(d.args, flag)
	if i < 0 || i+1 >= len(d.args) {
		return "", false
	}
	return d.args[i+1], true
}

// Has reports whether flag appears in the directive.
func (d Directive) Has(flag string) bool {
	return slices.Contains(d.args, flag)
}

func (d Directive) String() string {
	return strings.Join(d.args, " ")
}

// rateControlKey addresses one cell of the family x mode matrix.
type rateControlKey struct {
	family encoders.Family
	mode   RateControl
}

// rateControlFlags maps each cell to its flags. For cqp the value is the
// quality index; for vbr/cbr it is the mapped bitrate such as "5310k".
// Quick Sync has no cbr mode flag and shares the software vocabulary.
var rateControlFlags = map[rateControlKey]func(v string) []string{
	{encoders.FamilyNVENC, RateControlCQP}: func(v string) []string {
		return []string{"-rc", "vbr", "-cq", v, "-b:v", "0"}
	},
	{encoders.FamilyAMF, RateControlCQP}: func(v string) []string {
		return []string{"-rc", "cqp", "-qp_i", v, "-qp_p", v}
	},
	{encoders.FamilyQSV, RateControlCQP}: func(v string) []string {
		return []string{"-global_quality", v}
	},
	{encoders.FamilySoftware, RateControlCQP}: func(v string) []string {
		return []string{"-crf", v}
	},

	{encoders.FamilyNVENC, RateControlVBR}: func(v string) []string {
		return []string{"-rc", "vbr", "-b:v", v, "-maxrate:v", v, "-bufsize:v", v}
	},
	{encoders.FamilyAMF, RateControlVBR}: func(v string) []string {
		return []string{"-rc", "vbr_peak", "-b:v", v}
	},
	{encoders.FamilyQSV, RateControlVBR}: func(v string) []string {
		return []string{"-b:v", v}
	},
	{encoders.FamilySoftware, RateControlVBR}: func(v string) []string {
		return []string{"-b:v", v}
	},

	{encoders.FamilyNVENC, RateControlCBR}: func(v string) []string {
		return []string{"-rc", "cbr", "-b:v", v, "-maxrate:v", v, "-bufsize:v", v}
	},
	{encoders.FamilyAMF, RateControlCBR}: func(v string) []string {
		return []string{"-rc", "cbr", "-b:v", v}
	},
	{encoders.FamilyQSV, RateControlCBR}: func(v string) []string {
		return []string{"-b:v", v, "-maxrate:v", v, "-bufsize:v", v}
	},
	{encoders.FamilySoftware, RateControlCBR}: func(v string) []string {
		return []string{"-b:v", v, "-maxrate:v", v, "-bufsize:v", v}
	},
}

// Compile turns cfg into engine arguments. It does no I/O: the same config
// always compiles to the same directive. A *ConfigError is returned for
// any field that cannot be compiled.
func Compile(cfg EncodeConfig) (Directive, error) {
	if err := cfg.Validate(); err != nil {
		return Directive{}, err
	}

	var args []string
	if cfg.Video.Family == encoders.FamilyPassthrough {
		args = append(args, "-c:v", "copy")
	} else {
		video, err := videoArgs(cfg)
		if err != nil {
			return Directive{}, err
		}
		args = append(args, video...)
	}

	args = append(args, audioArgs(cfg.Audio)...)
	return Directive{args: args}, nil
}

func videoArgs(cfg EncodeConfig) ([]string, error) {
	args := []string{"-c:v", cfg.Video.Name}

	if cfg.Video.NeedsPixelFormatPin() {
		args = append(args, "-pix_fmt", "yuv420p", "-profile:v", "high")
	}
	if cfg.FrameRate > 0 {
		args = append(args, "-r", strconv.Itoa(cfg.FrameRate))
	}
	if cfg.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=-1:%d", cfg.Height))
	}

	v, err := cfg.rateValue()
	if err != nil {
		return nil, err
	}
	value := strconv.Itoa(v)
	if cfg.RateControl != RateControlCQP {
		value = bitrate.Arg(bitrate.Forward(v))
	}

	family := cfg.Video.Family
	flags, ok := rateControlFlags[rateControlKey{family, cfg.RateControl}]
	if !ok {
		// Families outside the matrix take the software branch.
		flags = rateControlFlags[rateControlKey{encoders.FamilySoftware, cfg.RateControl}]
	}
	return append(args, flags(value)...), nil
}

func audioArgs(a AudioPolicy) []string {
	switch a.Mode {
	case AudioStrip:
		return []string{"-an"}
	case AudioCopy:
		return []string{"-c:a", "copy"}
	}

	args := []string{"-c:a", a.Codec, "-b:a", a.Bitrate}
	if a.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(a.SampleRate))
	}
	return args
}
