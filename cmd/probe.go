package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/encodenode/internal/encoders"
	"github.com/smazurov/encodenode/internal/ffmpeg"
)

// CreateProbeEncodersCmd creates the probe-encoders command.
func CreateProbeEncodersCmd() *cobra.Command {
	var (
		output        string
		engine        string
		timeout       time.Duration
		matrix        bool
		matrixTimeout time.Duration
		candidates    []string
		quiet         bool
		verbose       bool
	)

	cmd := &cobra.Command{
		Use:   "probe-encoders",
		Short: "Find the video encoders that work on this host",
		Long: `Encodes a single synthetic frame with each candidate encoder and saves the ones that succeed. ` +
			`A running server reloads the saved file automatically. ` +
			`With --matrix every working encoder is also run once per rate control mode.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(c *cobra.Command, _ []string) error {
			logger := initLogging(verbose, false)

			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if len(candidates) == 0 {
				candidates = encoders.DefaultCandidates()
			}
			prober := encoders.NewProber(engine, timeout, logger)
			probes := prober.Probe(ctx, candidates)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			results := encoders.NewResults(encoders.EngineVersion(ctx, engine), probes)
			if err := encoders.SaveResults(output, results); err != nil {
				return err
			}

			if !quiet {
				fmt.Println(renderTable(
					[]string{"Encoder", "Family", "Result", "Time", "Detail"},
					probeRows(probes),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
			}
			fmt.Fprintf(os.Stderr, "%d of %d encoders working, saved to %s\n", len(results.Working), len(probes), output)

			if !matrix {
				return nil
			}
			cells := runMatrix(ctx, engine, results.Registry().Encoders(), matrixTimeout)
			headers := []string{"Encoder"}
			for _, m := range matrixModes {
				headers = append(headers, strings.ToUpper(string(m)))
			}
			fmt.Println(renderTable(headers, matrixRows(cells), nil))

			failed := 0
			for _, cell := range cells {
				if !cell.OK {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d encoder and mode combinations failed", failed, len(cells))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", encoders.DefaultResultsFile, "File the probe results are saved to")
	cmd.Flags().StringVar(&engine, "ffmpeg", ffmpeg.DefaultBinary, "Engine binary")
	cmd.Flags().DurationVar(&timeout, "timeout", encoders.DefaultProbeTimeout, "Timeout of a single encoder probe")
	cmd.Flags().BoolVar(&matrix, "matrix", false, "Also run every working encoder with every rate control mode")
	cmd.Flags().DurationVar(&matrixTimeout, "matrix-timeout", 30*time.Second, "Timeout of a single matrix run")
	cmd.Flags().StringSliceVar(&candidates, "encoders", nil, "Encoders to probe instead of the default candidates")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the summary")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	return cmd
}

func probeRows(probes []encoders.ProbeResult) [][]string {
	rows := make([][]string, 0, len(probes))
	for _, p := range probes {
		result := "ok"
		if !p.Working {
			result = "failed"
			if p.TimedOut {
				result = "timeout"
			}
		}
		rows = append(rows, []string{
			p.Encoder,
			string(encoders.Resolve(p.Encoder).Family),
			result,
			p.Elapsed.Round(time.Millisecond).String(),
			strings.Join(strings.Fields(p.Excerpt), " "),
		})
	}
	return rows
}
