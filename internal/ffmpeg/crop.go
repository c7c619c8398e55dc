package ffmpeg

import (
	"context"
	"fmt"
)

// CropScaleOptions configures a static crop render
type CropScaleOptions struct {
	Output       string
	CropX        int
	CropY        int
	CropW        int
	CropH        int
	OutW         int
	OutH         int
	CRF          int
	Preset       string
	ProgressFunc ProgressFunc
}

// CropScale re-encodes a video cropped to a fixed rectangle and scaled
// to a constant output size. The crop aspect must equal the output
// aspect so the scale does not distort.
func (e *Executor) CropScale(ctx context.Context, input string, opts CropScaleOptions) error {
	if opts.CropW <= 0 || opts.CropH <= 0 {
		return fmt.Errorf("invalid crop rectangle %dx%d", opts.CropW, opts.CropH)
	}
	if opts.OutW <= 0 || opts.OutH <= 0 {
		return fmt.Errorf("invalid output size %dx%d", opts.OutW, opts.OutH)
	}

	vf := fmt.Sprintf("crop=%d:%d:%d:%d,scale=%d:%d",
		opts.CropW, opts.CropH, opts.CropX, opts.CropY, opts.OutW, opts.OutH)

	crf := opts.CRF
	if crf == 0 {
		crf = DefaultCRF
	}
	preset := opts.Preset
	if preset == "" {
		preset = DefaultPreset
	}

	e.logger.Info().
		Str("input", input).
		Str("output", opts.Output).
		Str("filter", vf).
		Msg("rendering static crop")

	args := []string{
		"-i", input,
		"-vf", vf,
		"-c:v", DefaultVideoCodec,
		"-c:a", DefaultAudioCodec,
		"-crf", fmt.Sprintf("%d", crf),
		"-preset", preset,
		"-movflags", "faststart",
		opts.Output,
	}

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("crop render")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("crop render failed: %w", err)
	}

	e.logger.Info().Str("output", opts.Output).Msg("crop render complete")
	return nil
}
