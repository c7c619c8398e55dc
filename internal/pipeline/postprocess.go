package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"github.com/keagan/trailclip/internal/detect"
	"github.com/keagan/trailclip/internal/ffmpeg"
	"github.com/keagan/trailclip/internal/tracking"
	"github.com/keagan/trailclip/pkg/util"
)

// postProcess applies zoom or tracking to an extracted segment and
// applies the retention policy. Returns the path of the file the
// caller should report. On any failure the un-processed extracted
// segment is left intact: the original is never removed before the
// replacement is confirmed written.
func (p *Pipeline) postProcess(ctx context.Context, segPath string, info *ffmpeg.VideoInfo) (string, error) {
	pp := p.cfg.PostProcess
	if !pp.ZoomEnabled && !pp.TrackingEnabled {
		return segPath, nil
	}

	// detectors are not shared across parallel segment workers
	det, err := p.newDetector()
	if err != nil {
		return segPath, err
	}
	defer det.Close()

	suffix := pp.ZoomSuffix
	if pp.TrackingEnabled {
		suffix = pp.TrackSuffix
	}
	ext := filepath.Ext(segPath)
	stem := strings.TrimSuffix(segPath, ext)
	tmp := tempName(stem + suffix + ext)

	p.logger.Info().
		Str("segment", segPath).
		Bool("tracking", pp.TrackingEnabled).
		Msg("post-processing segment")

	if pp.TrackingEnabled {
		err = p.trackingCrop(ctx, segPath, tmp, det)
	} else {
		err = p.staticZoom(ctx, segPath, tmp, det)
	}
	if err != nil {
		util.CleanupFiles(tmp)
		if errors.Is(err, tracking.ErrNoBoxes) {
			// segments exist because something was detected, so an
			// empty zoom pass is an invariant violation; keep the
			// plain segment and move on
			p.logger.Warn().Str("segment", segPath).
				Msg("zoom requested but segment has no detections")
			return segPath, nil
		}
		return segPath, err
	}

	if pp.KeepProcessed {
		processed := stem + suffix + ext
		if err := os.Rename(tmp, processed); err != nil {
			util.CleanupFiles(tmp)
			return segPath, fmt.Errorf("finalizing processed output: %w", err)
		}
		p.logger.Info().Str("output", processed).Msg("kept post-processed file alongside original")
		return processed, nil
	}

	if err := os.Rename(tmp, segPath); err != nil {
		util.CleanupFiles(tmp)
		return segPath, fmt.Errorf("replacing segment with processed output: %w", err)
	}
	p.logger.Info().Str("output", segPath).Msg("replaced segment with post-processed result")
	return segPath, nil
}

// staticZoom crops the whole segment to one rectangle covering every
// detection, then re-encodes via ffmpeg
func (p *Pipeline) staticZoom(ctx context.Context, input, output string, det detect.Detector) error {
	cap, err := gocv.VideoCaptureFile(input)
	if err != nil {
		return fmt.Errorf("cannot open video %s: %w", input, err)
	}

	frameW := cap.Get(gocv.VideoCaptureFrameWidth)
	frameH := cap.Get(gocv.VideoCaptureFrameHeight)

	boxes, err := p.collectBoxes(ctx, cap, det)
	cap.Close()
	if err != nil {
		return err
	}

	union, err := tracking.Union(boxes)
	if err != nil {
		return err
	}

	pp := p.cfg.PostProcess
	aspect := float64(pp.MinOutputWidth) / float64(pp.MinOutputHeight)
	crop := tracking.Expand(
		union.Inflate(p.cfg.Tracking.MarginFrac),
		float64(pp.MinOutputWidth), float64(pp.MinOutputHeight),
		aspect, frameW, frameH)
	r := crop.Rect()

	return p.ffmpeg.CropScale(ctx, input, ffmpeg.CropScaleOptions{
		Output: output,
		CropX:  r.Min.X,
		CropY:  r.Min.Y,
		CropW:  r.Dx(),
		CropH:  r.Dy(),
		OutW:   pp.MinOutputWidth,
		OutH:   pp.MinOutputHeight,
		CRF:    p.cfg.FFmpeg.CRF,
		Preset: p.cfg.FFmpeg.Preset,
	})
}

// collectBoxes runs the detector over strided frames and gathers every
// accepted detection box
func (p *Pipeline) collectBoxes(ctx context.Context, cap *gocv.VideoCapture, det detect.Detector) ([]tracking.Box, error) {
	frame := gocv.NewMat()
	defer frame.Close()

	stride := p.cfg.Detector.FrameStride
	if stride < 1 {
		stride = 1
	}

	var boxes []tracking.Box
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
		boxes = append(boxes, toBoxes(dets)...)
	}
	return boxes, nil
}

// trackingCrop re-renders the segment frame by frame, following the
// stabilized crop path. The pass is strictly sequential: each frame's
// crop depends on the previous frame's state.
func (p *Pipeline) trackingCrop(ctx context.Context, input, output string, det detect.Detector) error {
	cap, err := gocv.VideoCaptureFile(input)
	if err != nil {
		return fmt.Errorf("cannot open video %s: %w", input, err)
	}
	defer cap.Close()

	fps := cap.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = 25
	}
	frameW := int(cap.Get(gocv.VideoCaptureFrameWidth))
	frameH := int(cap.Get(gocv.VideoCaptureFrameHeight))

	pp := p.cfg.PostProcess
	outW, outH := pp.MinOutputWidth, pp.MinOutputHeight

	writer, err := gocv.VideoWriterFile(output, "mp4v", fps, outW, outH, true)
	if err != nil {
		return fmt.Errorf("cannot open video writer: %w", err)
	}
	defer writer.Close()

	tc := p.cfg.Tracking
	stab := tracking.NewStabilizer(tracking.Params{
		FrameW:             float64(frameW),
		FrameH:             float64(frameH),
		MinOutputW:         float64(outW),
		MinOutputH:         float64(outH),
		Aspect:             float64(outW) / float64(outH),
		CenterAlpha:        tc.CenterAlpha,
		SizeAlpha:          tc.SizeAlpha,
		MaxMoveFrac:        tc.MaxMoveFrac,
		MaxZoomFrac:        tc.MaxZoomFrac,
		CenterDeadzoneFrac: tc.CenterDeadzoneFrac,
		ZoomDeadzoneFrac:   tc.ZoomDeadzoneFrac,
		MarginFrac:         tc.MarginFrac,
	})

	stride := p.cfg.Detector.FrameStride
	if stride < 1 {
		stride = 1
	}

	frame := gocv.NewMat()
	defer frame.Close()
	resized := gocv.NewMat()
	defer resized.Close()

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !cap.Read(&frame) {
			break
		}
		if frame.Empty() {
			continue
		}

		var target *tracking.Box
		if idx%stride == 0 {
			dets, err := det.Detect(frame)
			if err != nil {
				p.logger.Warn().Err(err).Int("frame", idx).Msg("detection failed on frame")
			} else if len(dets) > 0 {
				if u, err := tracking.Union(toBoxes(dets)); err == nil {
					target = &u
				}
			}
		}

		crop := stab.Step(target)
		r := crop.Rect().Intersect(image.Rect(0, 0, frameW, frameH))
		if r.Empty() {
			r = image.Rect(0, 0, frameW, frameH)
		}

		region := frame.Region(r)
		gocv.Resize(region, &resized, image.Pt(outW, outH), 0, 0, gocv.InterpolationLinear)
		region.Close()

		if err := writer.Write(resized); err != nil {
			return fmt.Errorf("writing frame %d: %w", idx, err)
		}
	}

	if n := stab.Shrinks(); n > 0 {
		p.logger.Warn().
			Int("frames", n).
			Str("segment", input).
			Msg("crop fell below minimum output size on some frames")
	}

	return nil
}

func toBoxes(dets []detect.Detection) []tracking.Box {
	boxes := make([]tracking.Box, 0, len(dets))
	for _, d := range dets {
		if d.X2 <= d.X1 || d.Y2 <= d.Y1 {
			continue
		}
		boxes = append(boxes, tracking.Box{
			X: d.X1,
			Y: d.Y1,
			W: d.X2 - d.X1,
			H: d.Y2 - d.Y1,
		})
	}
	return boxes
}
