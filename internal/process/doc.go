// Package process runs encode engines and controls their lifecycle.
//
// The package offers two levels of abstraction:
//
// Session owns one engine process:
//   - stdout and stderr merged into one stream, read by a single reader
//   - progress parsed from every line, split on '\r' as well as '\n'
//   - pause and resume of the whole process tree
//   - stop that kills the whole tree and always ends Cancelled
//   - exactly one terminal Result with a diagnostic excerpt on failure
//
// Pool manages concurrent sessions by ID:
//   - Start/Pause/Resume/Stop individual sessions
//   - callback hooks for state changes, progress and exit
//   - bounded retention of finished sessions
//   - StopAll for shutdown
//
// Example usage with Pool:
//
//	pool := process.NewPool(&process.PoolOptions{
//	    OnStateChange: func(id string, old, next process.State) {
//	        log.Printf("session %s: %s -> %s", id, old, next)
//	    },
//	})
//	inv := ffmpeg.BuildCommand("", directive, "in.mkv", "out.mp4", "")
//	pool.Start(ctx, "job1", process.Request{Invocation: inv, Duration: 181})
//	defer pool.StopAll()
package process
