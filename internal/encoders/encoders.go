// Package encoders resolves encoder identifiers into typed backend families
// and keeps the registry of identifiers confirmed to work on this machine.
package encoders

import (
	"strings"
)

// Family groups encoder identifiers that share an engine flag vocabulary.
type Family string

const (
	// FamilyNVENC is NVIDIA hardware encoding (vendor A).
	FamilyNVENC Family = "nvenc"
	// FamilyAMF is AMD hardware encoding (vendor B).
	FamilyAMF Family = "amf"
	// FamilyQSV is Intel Quick Sync hardware encoding (vendor C).
	FamilyQSV Family = "qsv"
	// FamilySoftware covers CPU encoders and any identifier not recognised.
	FamilySoftware Family = "software"
	// FamilyPassthrough copies the video stream without re-encoding.
	FamilyPassthrough Family = "passthrough"
)

// IsHardware reports whether f is one of the GPU vendor families.
func (f Family) IsHardware() bool {
	switch f {
	case FamilyNVENC, FamilyAMF, FamilyQSV:
		return true
	}
	return false
}

// Codec is the output video codec an encoder produces.
type Codec string

const (
	CodecNone Codec = ""
	CodecH264 Codec = "h264"
	CodecHEVC Codec = "hevc"
	CodecAV1  Codec = "av1"
)

// Passthrough is the identifier that selects stream copy.
const Passthrough = "copy"

// Encoder is an accepted encoder identifier with its family resolved.
// Build one with Resolve and carry it; never re-derive the family from Name.
type Encoder struct {
	Name   string `json:"name" toml:"name" doc:"Engine encoder identifier" example:"h264_nvenc"`
	Family Family `json:"family" toml:"family" doc:"Backend family" enum:"nvenc,amf,qsv,software,passthrough"`
	Codec  Codec  `json:"codec,omitempty" toml:"codec" doc:"Output video codec"`
	// Known is false when Name matched no family and fell back to software.
	Known bool `json:"known" toml:"known" doc:"Whether the identifier matched a known family"`
}

// NeedsPixelFormatPin reports whether the encoder is one of the combinations
// that fail without an explicit yuv420p pixel format and high profile.
func (e Encoder) NeedsPixelFormatPin() bool {
	return e.Codec == CodecH264 && (e.Family == FamilyNVENC || e.Family == FamilyAMF)
}

type familyRule struct {
	family      Family
	suffix      string
	description string
	encoders    []string
}

// familyRules are checked in order; the software fallback is implicit.
var familyRules = []familyRule{
	{FamilyNVENC, "_nvenc", "NVIDIA NVENC", []string{"av1_nvenc", "hevc_nvenc", "h264_nvenc"}},
	{FamilyAMF, "_amf", "AMD AMF", []string{"av1_amf", "hevc_amf", "h264_amf"}},
	{FamilyQSV, "_qsv", "Intel Quick Sync Video", []string{"av1_qsv", "hevc_qsv", "h264_qsv"}},
}

var softwareCodecs = map[string]Codec{
	"libsvtav1":   CodecAV1,
	"libaom-av1":  CodecAV1,
	"librav1e":    CodecAV1,
	"libx265":     CodecHEVC,
	"libx264":     CodecH264,
	"libopenh264": CodecH264,
}

// softwareCandidates are the software encoders probed, best first.
var softwareCandidates = []string{"libsvtav1", "libx265", "libx264"}

// Resolve maps an identifier to its Encoder. Identifiers that match no
// hardware family and are not a known software encoder resolve to
// FamilySoftware with Known=false.
func Resolve(name string) Encoder {
	name = strings.TrimSpace(name)
	if name == Passthrough {
		return Encoder{Name: name, Family: FamilyPassthrough, Known: true}
	}

	for _, rule := range familyRules {
		if strings.HasSuffix(name, rule.suffix) {
			return Encoder{
				Name:   name,
				Family: rule.family,
				Codec:  codecFromPrefix(strings.TrimSuffix(name, rule.suffix)),
				Known:  true,
			}
		}
	}

	if codec, ok := softwareCodecs[name]; ok {
		return Encoder{Name: name, Family: FamilySoftware, Codec: codec, Known: true}
	}
	return Encoder{Name: name, Family: FamilySoftware}
}

func codecFromPrefix(prefix string) Codec {
	switch prefix {
	case "h264":
		return CodecH264
	case "hevc", "h265":
		return CodecHEVC
	case "av1":
		return CodecAV1
	}
	return CodecNone
}

// Describe returns a human-readable name for a family.
func Describe(f Family) string {
	for _, rule := range familyRules {
		if rule.family == f {
			return rule.description
		}
	}
	switch f {
	case FamilyPassthrough:
		return "Stream copy"
	default:
		return "Software (CPU)"
	}
}

// DefaultCandidates returns the probe order: hardware families first,
// newest codec first within each, then software.
func DefaultCandidates() []string {
	var out []string
	for _, rule := range familyRules {
		out = append(out, rule.encoders...)
	}
	return append(out, softwareCandidates...)
}
