package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/encodenode/internal/bitrate"
	"github.com/smazurov/encodenode/internal/ffmpeg"
	"github.com/smazurov/encodenode/internal/ffprobe"
	"github.com/smazurov/encodenode/internal/preflight"
	"github.com/smazurov/encodenode/internal/process"
)

// CreateEncodeCmd creates the encode command.
func CreateEncodeCmd() *cobra.Command {
	var (
		flags        encodeFlags
		engine       string
		probeBinary  string
		probeTimeout time.Duration
		previewPath  string
		verbose      bool
		logJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "encode INPUT OUTPUT",
		Short: "Encode one file in the foreground",
		Long: `Compiles the encode settings, runs the engine and reports progress until it exits. ` +
			`Ctrl+C stops the engine and every process it spawned. ` +
			`SIGUSR1 pauses a running encode and resumes a paused one.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			logger := initLogging(verbose, logJSON)
			input, output := args[0], args[1]

			if filepath.Clean(input) == filepath.Clean(output) {
				return errors.New("output must differ from input")
			}

			p := flags.params()
			cfg := p.EncodeConfig(flags.resolveEncoder(logger))
			directive, err := ffmpeg.Compile(cfg)
			if err != nil {
				return err
			}

			if err := preflight.Failed(preflight.Encode(engine, input, output, previewPath)); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			prober := ffprobe.New(probeBinary, probeTimeout, logger)
			duration, fellBack := prober.DurationOrDefault(ctx, input)
			if fellBack {
				fmt.Fprintln(os.Stderr, "warning: input duration unknown, percent complete will be wrong")
			}

			inv := ffmpeg.BuildCommand(engine, directive, input, output, previewPath)
			fmt.Fprintln(os.Stderr, inv.String())

			progress := newProgressPrinter(os.Stdout, stdoutIsTerminal(), duration)
			session := process.NewSession(process.Options{
				ID:         "cli",
				OnProgress: progress.update,
				OnStateChange: func(_, next process.State) {
					progress.state(next)
				},
			})

			if err := session.Start(ctx, process.Request{Invocation: inv, Duration: duration}); err != nil {
				return err
			}
			go togglePauseOnSignal(ctx, session, logger)

			res := session.Wait()
			progress.finish()
			return reportResult(res)
		},
	}

	flags.bind(cmd.Flags())
	cmd.Flags().StringVar(&engine, "ffmpeg", ffmpeg.DefaultBinary, "Engine binary")
	cmd.Flags().StringVar(&probeBinary, "ffprobe", ffmpeg.DefaultProbeBinary, "Probe binary used for the input duration")
	cmd.Flags().DurationVar(&probeTimeout, "probe-timeout", ffprobe.DefaultTimeout, "Duration probe timeout")
	cmd.Flags().StringVar(&previewPath, "preview", "", "Also write a preview JPEG once a second to this path")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log engine output")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log in JSON format")
	return cmd
}

func togglePauseOnSignal(ctx context.Context, session *process.Session, logger *slog.Logger) {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Done():
			return
		case <-usr1:
			var err error
			if session.State() == process.StatePaused {
				err = session.Resume()
			} else {
				err = session.Pause()
			}
			if err != nil {
				logger.Warn("Failed to toggle pause", "error", err)
			}
		}
	}
}

func reportResult(res process.Result) error {
	elapsed := res.Elapsed.Round(time.Second)
	switch res.State {
	case process.StateCompleted:
		fmt.Fprintf(os.Stderr, "completed in %s\n", elapsed)
		return nil
	case process.StateCancelled:
		return fmt.Errorf("cancelled after %s", elapsed)
	}

	var failure *process.RuntimeFailure
	if errors.As(res.Err, &failure) && len(failure.Excerpt) > 0 {
		fmt.Fprintln(os.Stderr, "engine output:")
		for _, line := range failure.Excerpt {
			fmt.Fprintln(os.Stderr, "  "+line)
		}
	}
	if res.Err != nil {
		return res.Err
	}
	return fmt.Errorf("encode %s with exit code %d", res.State, res.ExitCode)
}

// progressPrinter renders progress as one rewritten line on a terminal,
// and as a plain line every ten percent otherwise.
type progressPrinter struct {
	mu          sync.Mutex
	w           io.Writer
	interactive bool
	duration    float64
	lastDecile  int
	paused      bool
	drawn       bool
}

func newProgressPrinter(w io.Writer, interactive bool, duration float64) *progressPrinter {
	return &progressPrinter{w: w, interactive: interactive, duration: duration, lastDecile: -1}
}

func (p *progressPrinter) update(pr ffmpeg.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interactive {
		fmt.Fprintf(p.w, "\r\033[K%s", p.line(pr))
		p.drawn = true
		return
	}
	decile := int(pr.Percent / 10)
	if decile > p.lastDecile {
		p.lastDecile = decile
		fmt.Fprintln(p.w, p.line(pr))
	}
}

func (p *progressPrinter) line(pr ffmpeg.Progress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%5.1f%%", pr.Percent)
	if pr.HasSpeed {
		fmt.Fprintf(&b, "  %.2fx", pr.Speed)
	}
	if pr.HasSize {
		fmt.Fprintf(&b, "  %s", bitrate.FormatSize(pr.SizeKiB))
	}
	fmt.Fprintf(&b, "  eta %s", formatETA(pr.Remaining(p.duration)))
	if p.paused {
		b.WriteString("  [paused]")
	}
	return b.String()
}

func (p *progressPrinter) state(next process.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = next == process.StatePaused
	switch next {
	case process.StatePaused:
		p.message("paused")
	case process.StateRunning:
		if p.drawn || p.lastDecile >= 0 {
			p.message("resumed")
		}
	}
}

func (p *progressPrinter) message(msg string) {
	if p.interactive && p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
	fmt.Fprintln(p.w, msg)
}

func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interactive && p.drawn {
		fmt.Fprintln(p.w)
	}
}
