package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/encodenode/cmd"
	"github.com/smazurov/encodenode/internal/api"
	"github.com/smazurov/encodenode/internal/config"
	"github.com/smazurov/encodenode/internal/encoders"
	"github.com/smazurov/encodenode/internal/events"
	"github.com/smazurov/encodenode/internal/ffprobe"
	"github.com/smazurov/encodenode/internal/jobs"
	"github.com/smazurov/encodenode/internal/logging"
	"github.com/smazurov/encodenode/internal/metrics/collectors"
	"github.com/smazurov/encodenode/internal/metrics/exporters"
	"github.com/smazurov/encodenode/internal/systemd"
	"github.com/smazurov/encodenode/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port       string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigin string `help:"Allowed CORS origin" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Engine settings
	EngineFFmpeg       string        `help:"Engine binary" default:"ffmpeg" toml:"engine.ffmpeg" env:"ENGINE_FFMPEG"`
	EngineFFprobe      string        `help:"Probe binary" default:"ffprobe" toml:"engine.ffprobe" env:"ENGINE_FFPROBE"`
	EngineProbeTimeout time.Duration `help:"Duration probe timeout" default:"10s" toml:"engine.probe_timeout" env:"ENGINE_PROBE_TIMEOUT"`

	// Encoders settings
	EncodersResultsFile string `help:"Saved probe results, reloaded on change" default:"encoders.toml" toml:"encoders.results_file" env:"ENCODERS_RESULTS_FILE"`

	// Jobs settings
	JobsPreviewDir   string        `help:"Directory for preview frames (default: temp dir)" toml:"jobs.preview_dir" env:"JOBS_PREVIEW_DIR"`
	JobsMaxRetained  int           `help:"Finished jobs kept in memory" default:"100" toml:"jobs.max_retained" env:"JOBS_MAX_RETAINED"`
	JobsExcerptLines int           `help:"Engine lines kept for failure reports" default:"10" toml:"jobs.excerpt_lines" env:"JOBS_EXCERPT_LINES"`
	ProgressInterval time.Duration `help:"Progress event interval per job" default:"1s" toml:"jobs.progress_interval" env:"JOBS_PROGRESS_INTERVAL"`

	// Auth settings
	AuthUsername string `help:"Basic auth username, empty disables auth" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

func main() {
	var root *cobra.Command

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, root); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Module levels come from [logging.modules] or [logging] keys.
		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")
		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))

		var (
			ctx       context.Context
			cancel    context.CancelFunc
			service   *jobs.Service
			server    *api.Server
			watcher   interface{ Stop() error }
			collector *collectors.ProcessCollector
			progress  *exporters.SSEExporter
		)

		hooks.OnStart(func() {
			ctx, cancel = context.WithCancel(context.Background())
			eventBus := events.New()

			var seq atomic.Uint64
			logging.SetLogCallback(func(entry logging.LogEntry) {
				eventBus.Publish(events.LogEntryEvent{
					Seq:        seq.Add(1),
					Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
					Level:      entry.Level,
					Module:     entry.Module,
					Message:    entry.Message,
					Attributes: entry.Attributes,
				})
			})

			var err error
			service, err = jobs.NewService(jobs.Options{
				Engine:       opts.EngineFFmpeg,
				Prober:       ffprobe.New(opts.EngineFFprobe, opts.EngineProbeTimeout, logging.GetLogger("ffprobe")),
				Bus:          eventBus,
				PreviewDir:   opts.JobsPreviewDir,
				MaxRetained:  opts.JobsMaxRetained,
				ExcerptLines: opts.JobsExcerptLines,
				Logger:       logging.GetLogger("jobs"),
				EngineLogger: logging.GetLogger("ffmpeg"),
			})
			if err != nil {
				logger.Error("Failed to create job service", "error", err)
				os.Exit(1)
			}

			resultsFile := opts.EncodersResultsFile
			switch loadErr := service.LoadEncoderResults(resultsFile); {
			case loadErr == nil:
			case errors.Is(loadErr, os.ErrNotExist):
				logger.Warn("No saved probe results, only stream copy is registered until probe-encoders runs",
					"file", resultsFile)
				service.ApplyEncoderResults(encoders.NewResults("unknown", nil), jobs.SourceLoad)
			default:
				logger.Warn("Failed to load probe results", "file", resultsFile, "error", loadErr)
			}
			if w, watchErr := service.WatchEncoderResults(resultsFile); watchErr != nil {
				logger.Warn("Probe results will not be reloaded", "dir", filepath.Dir(resultsFile), "error", watchErr)
			} else {
				watcher = w
			}

			collector = collectors.NewProcessCollector(service.PIDs, 5*time.Second)
			if startErr := collector.Start(ctx); startErr != nil {
				logger.Warn("Failed to start process collector", "error", startErr)
			}
			progress = exporters.NewSSEExporter(eventBus, opts.ProgressInterval)
			progress.Start(ctx)

			server = api.NewServer(&api.Options{
				AuthUsername:      opts.AuthUsername,
				AuthPassword:      opts.AuthPassword,
				Engine:            opts.EngineFFmpeg,
				CORSOrigin:        opts.CORSOrigin,
				Jobs:              service,
				EventBus:          eventBus,
				PrometheusHandler: exporters.HTTPHandler(),
			})

			logger.Info("Starting HTTP server", "port", opts.Port, "version", version.String())
			notifier.Status("serving on " + opts.Port)
			notifier.Ready()
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			if server != nil {
				if stopErr := server.Stop(); stopErr != nil {
					logger.Error("Error stopping HTTP server", "error", stopErr)
				}
			}

			// Engines are stopped after the server stops accepting new jobs.
			if service != nil {
				logger.Info("Stopping all encode jobs", "active", service.Active())
				if closeErr := service.Close(); closeErr != nil {
					logger.Warn("Error closing job service", "error", closeErr)
				}
			}
			if watcher != nil {
				_ = watcher.Stop()
			}
			if progress != nil {
				progress.Flush()
				progress.Stop()
			}
			if collector != nil {
				_ = collector.Stop()
			}
			if cancel != nil {
				cancel()
			}
			logging.SetLogCallback(nil)
		})
	})

	root = cli.Root()
	root.Use = "encodenode"
	root.Short = "Compile, run and supervise transcoding engine jobs"
	root.Version = version.Get().Summary()

	root.AddCommand(cmd.CreateEncodeCmd())
	root.AddCommand(cmd.CreateCompileCmd())
	root.AddCommand(cmd.CreateProbeEncodersCmd())
	root.AddCommand(cmd.CreateInfoCmd())

	cli.Run()
}
