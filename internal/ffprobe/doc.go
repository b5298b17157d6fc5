// Package ffprobe runs the engine's probe tool for the two facts an encode
// needs up front: the input duration, which scales progress to a
// percentage, and a stream summary for display.
//
// Both probes are bounded by a timeout. Duration failures are recoverable:
// DurationOrDefault logs the *ProbeError and returns FallbackDuration so
// progress math never divides by zero.
package ffprobe
