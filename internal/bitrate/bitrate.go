// Package bitrate maps the 0-100 rate control onto a kbps range with a
// cubic curve, so the low end of the range gets most of the resolution.
package bitrate

import (
	"fmt"
	"math"
)

const (
	// MinKbps is the bitrate at control position 0.
	MinKbps = 50
	// MaxKbps is the bitrate at control position 100.
	MaxKbps = 30000

	// MinPosition and MaxPosition bound the control domain.
	MinPosition = 0
	MaxPosition = 100

	// DefaultPosition maps to roughly 5 Mbps.
	DefaultPosition = 56
)

// Forward converts a control position in [0,100] to kbps, rounded to the
// nearest multiple of 10. Positions outside the domain are clamped.
func Forward(position int) int {
	position = min(max(position, MinPosition), MaxPosition)
	ratio := float64(position) / MaxPosition
	kbps := MinKbps + (MaxKbps-MinKbps)*ratio*ratio*ratio
	return int(math.Round(kbps/10) * 10)
}

// Inverse converts kbps back to the nearest control position.
func Inverse(kbps int) int {
	if kbps <= MinKbps {
		return MinPosition
	}
	if kbps >= MaxKbps {
		return MaxPosition
	}
	ratio := math.Cbrt(float64(kbps-MinKbps) / (MaxKbps - MinKbps))
	return int(math.Round(ratio * MaxPosition))
}

// Arg renders kbps the way the engine expects a bitrate value, e.g. "5310k".
func Arg(kbps int) string {
	return fmt.Sprintf("%dk", kbps)
}

// FormatKbps renders kbps for display: "5.3 Mbps" from 1000 up, "860 kbps" below.
func FormatKbps(kbps int) string {
	if kbps >= 1000 {
		return fmt.Sprintf("%.1f Mbps", float64(kbps)/1000)
	}
	return fmt.Sprintf("%d kbps", kbps)
}

// FormatSize renders an output size reported in KiB using decimal steps,
// matching how the engine counts its own size column.
func FormatSize(kib float64) string {
	switch {
	case kib >= 1000*1000:
		return fmt.Sprintf("%.2f GiB", kib/(1000*1000))
	case kib >= 1000:
		return fmt.Sprintf("%.2f MiB", kib/1000)
	default:
		return fmt.Sprintf("%.2f KiB", kib)
	}
}
