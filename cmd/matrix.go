package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/smazurov/encodenode/internal/encoders"
	"github.com/smazurov/encodenode/internal/ffmpeg"
	"github.com/smazurov/encodenode/internal/process"
)

// matrixSource is the synthetic one second input of every matrix cell.
const matrixSource = "color=c=black:s=1280x720:d=1"

var matrixModes = []ffmpeg.RateControl{ffmpeg.RateControlCQP, ffmpeg.RateControlVBR, ffmpeg.RateControlCBR}

// matrixCell is the outcome of one encoder and rate control combination.
type matrixCell struct {
	Encoder string
	Mode    ffmpeg.RateControl
	OK      bool
	Detail  string
	Elapsed time.Duration
}

func matrixInvocation(binary string, d ffmpeg.Directive) ffmpeg.Invocation {
	args := []string{"-y", "-f", "lavfi", "-i", matrixSource}
	args = append(args, d.Args()...)
	args = append(args, "-f", "null", "-")
	return ffmpeg.Invocation{Binary: binary, Args: args}
}

// runMatrix compiles every encoder with every rate control mode at its
// default value and runs a short synthetic encode for each. Cells run one
// at a time; hardware encoders share a single device.
func runMatrix(ctx context.Context, binary string, list []encoders.Encoder, timeout time.Duration) []matrixCell {
	var cells []matrixCell
	for _, enc := range list {
		if enc.Family == encoders.FamilyPassthrough {
			continue
		}
		for _, mode := range matrixModes {
			if ctx.Err() != nil {
				return cells
			}
			cells = append(cells, runMatrixCell(ctx, binary, enc, mode, timeout))
		}
	}
	return cells
}

func runMatrixCell(ctx context.Context, binary string, enc encoders.Encoder, mode ffmpeg.RateControl, timeout time.Duration) matrixCell {
	cell := matrixCell{Encoder: enc.Name, Mode: mode}

	d, err := ffmpeg.Compile(ffmpeg.EncodeConfig{
		Video:       enc,
		RateControl: mode,
		RateValue:   ffmpeg.DefaultRateValue(mode),
		Audio:       ffmpeg.AudioPolicy{Mode: ffmpeg.AudioStrip},
	})
	if err != nil {
		cell.Detail = err.Error()
		return cell
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session := process.NewSession(process.Options{ID: enc.Name + "/" + string(mode)})
	if err := session.Start(ctx, process.Request{Invocation: matrixInvocation(binary, d), Duration: 1}); err != nil {
		cell.Detail = err.Error()
		return cell
	}
	res := session.Wait()
	cell.Elapsed = res.Elapsed

	switch res.State {
	case process.StateCompleted:
		cell.OK = true
	case process.StateCancelled:
		cell.Detail = "timed out after " + timeout.String()
	default:
		cell.Detail = ffmpeg.FailureLine(res.Excerpt)
		var failure *process.RuntimeFailure
		if cell.Detail == "" && errors.As(res.Err, &failure) {
			cell.Detail = failure.Error()
		}
	}
	return cell
}

// matrixRows lays cells out one row per encoder, one column per mode.
func matrixRows(cells []matrixCell) [][]string {
	var rows [][]string
	index := make(map[string]int)
	for _, c := range cells {
		i, ok := index[c.Encoder]
		if !ok {
			i = len(rows)
			index[c.Encoder] = i
			rows = append(rows, []string{c.Encoder, "", "", ""})
		}
		col := 1
		for j, m := range matrixModes {
			if m == c.Mode {
				col = j + 1
			}
		}
		if c.OK {
			rows[i][col] = "ok"
		} else {
			rows[i][col] = "FAIL: " + c.Detail
		}
	}
	return rows
}
