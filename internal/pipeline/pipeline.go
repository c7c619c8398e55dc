// Package pipeline sequences the stages of camera-trap footage
// processing: probe, strided detection, segment building, extraction
// and optional crop post-processing.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gocv.io/x/gocv"

	"github.com/keagan/trailclip/internal/config"
	"github.com/keagan/trailclip/internal/detect"
	"github.com/keagan/trailclip/internal/ffmpeg"
	"github.com/keagan/trailclip/internal/segment"
)

// Pipeline orchestrates the full processing workflow for one or more
// source videos
type Pipeline struct {
	logger zerolog.Logger
	cfg    *config.Config
	ffmpeg *ffmpeg.Executor
}

// New creates a pipeline instance
func New(logger zerolog.Logger, cfg *config.Config) (*Pipeline, error) {
	ffmpegExec, err := ffmpeg.New(logger, cfg.FFmpeg.Threads)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	return &Pipeline{
		logger: logger.With().Str("component", "pipeline").Logger(),
		cfg:    cfg,
		ffmpeg: ffmpegExec,
	}, nil
}

func (p *Pipeline) newDetector() (detect.Detector, error) {
	return detect.New(p.cfg.Detector.Backend, detect.Options{
		ModelPath:      p.cfg.Detector.ModelPath,
		Confidence:     p.cfg.Detector.ConfidenceThreshold,
		NMSIoU:         p.cfg.Detector.NMSIoU,
		AllowedClasses: p.cfg.Detector.AnimalClasses,
	}, p.logger)
}

// Process analyzes one source video and extracts all activity segments.
// Returns the paths of the files written. Per-segment failures are
// logged and skipped; only probe/detector setup errors abort the video.
func (p *Pipeline) Process(ctx context.Context, videoPath string) ([]string, error) {
	info, err := p.ffmpeg.ProbeVideo(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}

	p.logger.Info().
		Str("video", videoPath).
		Dur("duration", info.Duration).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Msg("analyzing video")

	det, err := p.newDetector()
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}
	defer det.Close()

	if err := det.Warmup(); err != nil {
		p.logger.Warn().Err(err).Msg("detector warmup failed")
	}

	times, err := p.scanActivity(ctx, videoPath, info, det)
	if err != nil {
		return nil, err
	}

	segments := segment.Merge(times, segment.Options{
		Preroll:        p.cfg.Segmenter.PrerollSec,
		Postroll:       p.cfg.Segmenter.PostrollSec,
		MergeGap:       p.cfg.Segmenter.MergeGapSec,
		MinDuration:    p.cfg.Segmenter.MinActivitySec,
		SourceDuration: info.Seconds(),
	})

	if len(segments) == 0 {
		p.logger.Info().Str("video", videoPath).Msg("no activity detected, nothing to extract")
		return nil, nil
	}

	p.logger.Info().
		Str("video", videoPath).
		Int("segments", len(segments)).
		Msg("activity segments computed")

	// Segments share no mutable state; output names are deterministic,
	// so parallel workers cannot collide in the output directory.
	outputs := make([]string, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, seg := range segments {
		g.Go(func() error {
			out, err := p.extractSegment(gctx, videoPath, seg, i+1)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.logger.Error().Err(err).
					Int("segment", i+1).
					Msg("segment extraction failed, skipping")
				return nil
			}

			final, err := p.postProcess(gctx, out, info)
			if err != nil {
				// the un-processed extracted segment stays on disk
				p.logger.Warn().Err(err).
					Str("segment", out).
					Msg("post-processing failed, keeping extracted segment")
			}
			outputs[i] = final
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	written := make([]string, 0, len(outputs))
	for _, out := range outputs {
		if out != "" {
			written = append(written, out)
		}
	}

	p.logger.Info().
		Str("video", videoPath).
		Int("written", len(written)).
		Msg("processing complete")

	return written, nil
}

// scanActivity runs the detector over strided frames and collects the
// timestamps of frames with at least one accepted detection. The pass
// is strictly sequential: activity accumulates in frame order.
func (p *Pipeline) scanActivity(ctx context.Context, videoPath string, info *ffmpeg.VideoInfo, det detect.Detector) ([]float64, error) {
	cap, err := gocv.VideoCaptureFile(videoPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open video %s: %w", videoPath, err)
	}
	defer cap.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	stride := p.cfg.Detector.FrameStride
	if stride < 1 {
		stride = 1
	}
	fps := info.FPS
	if fps <= 0 {
		fps = 25
	}

	var times []float64
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !cap.Read(&frame) {
			break
		}
		if idx%stride != 0 || frame.Empty() {
			continue
		}

		dets, err := det.Detect(frame)
		if err != nil {
			p.logger.Warn().Err(err).Int("frame", idx).Msg("detection failed on frame")
			continue
		}
		if len(dets) > 0 {
			times = append(times, float64(idx)/fps)
		}
	}

	p.logger.Debug().
		Int("activity_frames", len(times)).
		Msg("activity scan complete")

	return times, nil
}
