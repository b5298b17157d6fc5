package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smazurov/encodenode/internal/bitrate"
	"github.com/smazurov/encodenode/internal/encoders"
	"github.com/smazurov/encodenode/internal/ffmpeg"
)

type compileOutput struct {
	Encoder     encoders.Encoder `json:"encoder"`
	Args        []string         `json:"args"`
	Command     string           `json:"command"`
	BitrateKbps int              `json:"bitrate_kbps,omitempty"`
}

// CreateCompileCmd creates the compile command.
func CreateCompileCmd() *cobra.Command {
	var (
		flags   encodeFlags
		engine  string
		input   string
		output  string
		asJSON  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:          "compile",
		Short:        "Print the engine command for encode settings",
		Long:         `Compiles encode settings into engine arguments without running anything.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := initLogging(verbose, false)

			p := flags.params()
			cfg := p.EncodeConfig(flags.resolveEncoder(logger))
			directive, err := ffmpeg.Compile(cfg)
			if err != nil {
				return err
			}
			inv := ffmpeg.BuildCommand(engine, directive, input, output, "")

			out := compileOutput{
				Encoder: cfg.Video,
				Args:    directive.Args(),
				Command: inv.String(),
			}
			if cfg.Video.Family != encoders.FamilyPassthrough && cfg.RateControl != ffmpeg.RateControlCQP {
				if pos, perr := strconv.Atoi(cfg.RateValue); perr == nil {
					out.BitrateKbps = bitrate.Forward(pos)
				}
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			fmt.Println(out.Command)
			if out.BitrateKbps > 0 {
				fmt.Fprintf(os.Stderr, "%s: %s (%s)\n", cfg.RateControl, bitrate.FormatKbps(out.BitrateKbps), bitrate.Arg(out.BitrateKbps))
			}
			return nil
		},
	}

	flags.bind(cmd.Flags())
	cmd.Flags().StringVar(&engine, "ffmpeg", ffmpeg.DefaultBinary, "Engine binary shown in the command")
	cmd.Flags().StringVarP(&input, "input", "i", "INPUT", "Input path shown in the command")
	cmd.Flags().StringVarP(&output, "output", "o", "OUTPUT", "Output path shown in the command")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the directive as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	return cmd
}
