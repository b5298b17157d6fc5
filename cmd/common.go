package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/smazurov/encodenode/internal/encoders"
	"github.com/smazurov/encodenode/internal/ffmpeg"
	"github.com/smazurov/encodenode/internal/jobs"
	"github.com/smazurov/encodenode/internal/logging"
)

// initLogging sets up logging for one-shot commands. Engine output is only
// shown with --verbose.
func initLogging(verbose, logJSON bool) *slog.Logger {
	cfg := logging.Config{Level: "warn", Format: "text", Modules: map[string]string{}}
	if verbose {
		cfg.Level = "debug"
	}
	if logJSON {
		cfg.Format = "json"
	}
	logging.Initialize(cfg)
	return logging.GetLogger("cli")
}

// stdoutIsTerminal reports whether interactive rendering is possible.
func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// encodeFlags are the encode settings shared by encode and compile.
type encodeFlags struct {
	encoder      string
	frameRate    int
	height       int
	rateControl  string
	rateValue    string
	audio        string
	audioCodec   string
	audioBitrate string
	sampleRate   int
	resultsFile  string
}

func (f *encodeFlags) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&f.encoder, "encoder", "e", "libx264", "Video encoder identifier, or copy")
	fs.IntVar(&f.frameRate, "fps", 0, "Output frame rate, 0 keeps source")
	fs.IntVar(&f.height, "height", 0, "Output height (720, 1080, 1440, 2160), 0 keeps source")
	fs.StringVarP(&f.rateControl, "rate-control", "r", string(ffmpeg.RateControlCQP), "Rate control mode: cqp, vbr or cbr")
	fs.StringVarP(&f.rateValue, "rate-value", "q", "", "Quality 0-51 for cqp, control position 0-100 for vbr and cbr (default per mode)")
	fs.StringVar(&f.audio, "audio", string(ffmpeg.AudioCopy), "Audio handling: copy, strip or encode")
	fs.StringVar(&f.audioCodec, "audio-codec", "aac", "Audio encoder when --audio=encode")
	fs.StringVar(&f.audioBitrate, "audio-bitrate", "192k", "Audio bitrate when --audio=encode")
	fs.IntVar(&f.sampleRate, "sample-rate", 0, "Audio sample rate in Hz when --audio=encode, 0 keeps source")
	fs.StringVar(&f.resultsFile, "encoders-file", encoders.DefaultResultsFile, "Saved probe results used to check the encoder")
}

// params converts the flags into job parameters. An empty rate value takes
// the default of the chosen mode.
func (f *encodeFlags) params() jobs.CreateParams {
	rc := ffmpeg.RateControl(f.rateControl)
	value := f.rateValue
	if value == "" {
		value = ffmpeg.DefaultRateValue(rc)
	}
	audio := ffmpeg.AudioPolicy{Mode: ffmpeg.AudioMode(f.audio)}
	if audio.Mode == ffmpeg.AudioEncode {
		audio.Codec = f.audioCodec
		audio.Bitrate = f.audioBitrate
		audio.SampleRate = f.sampleRate
	}
	return jobs.CreateParams{
		Encoder:     f.encoder,
		FrameRate:   f.frameRate,
		Height:      f.height,
		RateControl: rc,
		RateValue:   value,
		Audio:       audio,
	}
}

// resolveEncoder resolves name and warns when saved probe results say it
// does not work here. Missing results are not an error.
func (f *encodeFlags) resolveEncoder(logger *slog.Logger) encoders.Encoder {
	enc := encoders.Resolve(f.encoder)
	if !enc.Known {
		logger.Warn("Unknown encoder, using software rate control", "encoder", f.encoder)
	}
	results, err := encoders.LoadResults(f.resultsFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		logger.Warn("Failed to read probe results", "file", f.resultsFile, "error", err)
	default:
		if _, ok := results.Registry().Lookup(enc.Name); !ok {
			fmt.Fprintf(os.Stderr, "warning: %s did not pass the last capability probe (%s)\n", enc.Name, f.resultsFile)
		}
	}
	return enc
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    60,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// formatETA renders seconds as "1h02m03s", "2m05s" or "42s".
func formatETA(seconds float64) string {
	if seconds < 0 {
		return "--"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
