package ffmpeg

import (
	"log/slog"
	"strings"
)

// failureMarkers are phrases the engine prints when an encode cannot run,
// matched case-insensitively.
var failureMarkers = []string{
	"unrecognized option",
	"error splitting",
	"conversion failed",
}

// ParseLogLevel splits a "-loglevel level+..." prefix off an engine line.
// Lines look like "[error] msg" or "[h264_nvenc @ 0x55] [warning] msg"; the
// component is kept and only the level bracket removed. Lines without a
// level default to "info".
func ParseLogLevel(line string) (level, msg string) {
	if len(line) < 3 || line[0] != '[' {
		return "info", line
	}
	end := strings.Index(line, "] ")
	if end < 0 {
		return "info", line
	}
	if tag := line[1:end]; isLogLevel(tag) {
		return tag, line[end+2:]
	}

	component, rest := line[:end+2], line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if next := strings.Index(rest, "] "); next > 0 && isLogLevel(rest[1:next]) {
			return rest[1:next], component + rest[next+2:]
		}
	}
	return "info", line
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}

// IsStatusLine reports whether line is a periodic progress report.
func IsStatusLine(line string) bool {
	return strings.Contains(line, "time=") && (strings.HasPrefix(line, "frame=") ||
		strings.HasPrefix(line, "size=") || strings.Contains(line, "speed="))
}

// IsFailureLine reports whether line contains a known fatal phrase or the
// word "error".
func IsFailureLine(line string) bool {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "error") {
		return true
	}
	for _, m := range failureMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// LineLevel picks the slog level for an engine output line. Status lines
// are debug so they only show when the ffmpeg module is turned up.
func LineLevel(line string) (slog.Level, string) {
	if IsStatusLine(line) {
		return slog.LevelDebug, line
	}
	level, msg := ParseLogLevel(line)
	switch level {
	case "panic", "fatal", "error":
		return slog.LevelError, msg
	case "warning":
		return slog.LevelWarn, msg
	case "verbose", "debug", "trace":
		return slog.LevelDebug, msg
	}
	if IsFailureLine(msg) {
		return slog.LevelError, msg
	}
	return slog.LevelInfo, msg
}

// FailureLine picks the most useful line from an engine's output tail: the
// last one that looks like an error, else the last non-empty one.
func FailureLine(lines []string) string {
	last := ""
	for i := len(lines) - 1; i >= 0; i-- {
		l := strings.TrimSpace(lines[i])
		if l == "" || IsStatusLine(l) {
			continue
		}
		if IsFailureLine(l) {
			return l
		}
		if last == "" {
			last = l
		}
	}
	return last
}
