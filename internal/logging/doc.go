// Package logging wires log/slog for encodenode.
//
// Every package asks for a module logger once:
//
//	var logger = logging.GetLogger("session")
//
// Records go to stderr (text or json), to an in-memory history served by
// the API, and to the systemd journal when journald is reachable. Levels are
// set globally and may be overridden per module:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	session = "debug"
//	ffmpeg = "warn"
//
// Engine output is logged under the "ffmpeg" module, so raising that module
// to debug shows every progress line the engine prints.
//
// Journal entries carry SYSLOG_IDENTIFIER=encodenode:
//
//	journalctl -t encodenode MODULE=session JOB_ID=...
package logging
