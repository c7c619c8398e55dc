package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/keagan/trailclip/internal/ffmpeg"
	"github.com/keagan/trailclip/internal/segment"
	"github.com/keagan/trailclip/pkg/util"
)

// SegmentFileName builds the deterministic output name for one
// extracted segment: source base, 1-based index and the span in
// milliseconds. Deterministic names keep parallel workers from
// colliding in the output directory.
func SegmentFileName(base string, idx int, seg segment.Segment, ext string) string {
	startMs := int(math.Round(seg.Start * 1000))
	endMs := int(math.Round(seg.End * 1000))
	return fmt.Sprintf("%s_seg%03d_%dms_%dms%s", base, idx, startMs, endMs, ext)
}

// tempName derives the in-progress name for an output file, preserving
// the extension so the muxer still recognizes the container
func tempName(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".tmp" + ext
}

// extractSegment cuts one segment from the source. Stream copy is
// attempted first; any cut failure is retried with a full re-encode,
// and a second failure abandons the segment. The clip is written under
// a temporary name and renamed once complete, so an interrupted run
// never leaves a partial file that looks finished.
func (p *Pipeline) extractSegment(ctx context.Context, source string, seg segment.Segment, idx int) (string, error) {
	if err := util.EnsureDir(p.cfg.OutputDir); err != nil {
		return "", fmt.Errorf("cannot create output directory: %w", err)
	}

	ext := filepath.Ext(source)
	if ext == "" {
		ext = ".mp4"
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	out := filepath.Join(p.cfg.OutputDir, SegmentFileName(base, idx, seg, ext))
	tmp := tempName(out)

	opts := ffmpeg.ClipOptions{
		Start:     util.Seconds(seg.Start),
		End:       util.Seconds(seg.End),
		Output:    tmp,
		CopyCodec: true,
	}

	if err := p.ffmpeg.ExtractClip(ctx, source, opts); err != nil {
		if ctx.Err() != nil {
			util.CleanupFiles(tmp)
			return "", err
		}

		p.logger.Warn().Err(err).
			Int("segment", idx).
			Msg("stream copy failed, retrying with re-encode")

		opts.CopyCodec = false
		opts.CRF = p.cfg.FFmpeg.CRF
		opts.Preset = p.cfg.FFmpeg.Preset
		if err := p.ffmpeg.ExtractClip(ctx, source, opts); err != nil {
			util.CleanupFiles(tmp)
			return "", fmt.Errorf("segment %d: %w", idx, err)
		}
	}

	if err := os.Rename(tmp, out); err != nil {
		util.CleanupFiles(tmp)
		return "", fmt.Errorf("segment %d: finalizing output: %w", idx, err)
	}

	p.logger.Info().Str("output", out).Msg("wrote segment")
	return out, nil
}
