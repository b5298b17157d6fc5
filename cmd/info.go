package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/encodenode/internal/ffprobe"
)

// CreateInfoCmd creates the info command.
func CreateInfoCmd() *cobra.Command {
	var (
		probeBinary string
		timeout     time.Duration
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:          "info FILE",
		Short:        "Show codec, resolution, frame rate and bit rates of a media file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			logger := initLogging(false, false)
			prober := ffprobe.New(probeBinary, timeout, logger)

			info, err := prober.Info(c.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			rows := make([][]string, 0, 8)
			for _, r := range info.Rows() {
				rows = append(rows, []string{r[0], r[1]})
			}
			fmt.Println(renderTable([]string{"Property", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().StringVar(&probeBinary, "ffprobe", ffprobe.DefaultBinary, "Probe binary")
	cmd.Flags().DurationVar(&timeout, "timeout", ffprobe.DefaultTimeout, "Probe timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
