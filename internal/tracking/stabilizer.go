package tracking

import "math"

// Params tune the crop-path stabilizer. Alphas are EMA easing factors
// in (0,1]; fractions are relative to the frame (center) or the current
// box size (zoom).
type Params struct {
	FrameW             float64
	FrameH             float64
	MinOutputW         float64
	MinOutputH         float64
	Aspect             float64 // locked output aspect, 0 = free
	CenterAlpha        float64
	SizeAlpha          float64
	MaxMoveFrac        float64
	MaxZoomFrac        float64
	CenterDeadzoneFrac float64
	ZoomDeadzoneFrac   float64
	MarginFrac         float64
}

// Stabilizer carries the smoothed crop state across one segment's
// frames. It owns its state exclusively for the segment's lifetime and
// must be stepped in strict frame order: each step depends on the
// previous one.
type Stabilizer struct {
	p Params

	initialized bool
	cx, cy      float64
	w, h        float64
	lastCrop    Box
	shrinks     int
}

// NewStabilizer creates a stabilizer with unset state; the first frame
// with a target initializes center and size directly, without
// smoothing.
func NewStabilizer(p Params) *Stabilizer {
	return &Stabilizer{p: p}
}

// Center returns the current smoothed center
func (s *Stabilizer) Center() (float64, float64) { return s.cx, s.cy }

// Size returns the current smoothed size
func (s *Stabilizer) Size() (float64, float64) { return s.w, s.h }

// Shrinks reports how many frames were forced below the minimum output
// size by frame-bound clamping. Non-fatal; callers log it as an
// anomaly.
func (s *Stabilizer) Shrinks() int { return s.shrinks }

// Step consumes one frame's raw target box (nil when the frame had no
// detections) and returns the crop rectangle to apply to that frame.
func (s *Stabilizer) Step(target *Box) Box {
	switch {
	case !s.initialized && target == nil:
		// nothing seen yet: crop the whole frame
		crop := Expand(
			Box{W: s.p.FrameW, H: s.p.FrameH},
			s.p.MinOutputW, s.p.MinOutputH, s.p.Aspect,
			s.p.FrameW, s.p.FrameH)
		s.lastCrop = crop
		return crop

	case !s.initialized:
		s.cx, s.cy = target.CX(), target.CY()
		s.w, s.h = target.W, target.H
		s.initialized = true

	case target != nil:
		s.advance(*target)
	}
	// initialized and no target: hold the previous state, no decay
	// toward frame center, so detection gaps don't cause jumps

	crop := Expand(
		Box{X: s.cx - s.w/2, Y: s.cy - s.h/2, W: s.w, H: s.h}.Inflate(s.p.MarginFrac),
		s.p.MinOutputW, s.p.MinOutputH, s.p.Aspect,
		s.p.FrameW, s.p.FrameH)
	if crop.W < s.p.MinOutputW-0.5 || crop.H < s.p.MinOutputH-0.5 {
		s.shrinks++
	}
	s.lastCrop = crop
	return crop
}

// advance runs one EMA + deadzone + rate-limit update toward the target
func (s *Stabilizer) advance(target Box) {
	ncx := s.cx + s.p.CenterAlpha*(target.CX()-s.cx)
	ncy := s.cy + s.p.CenterAlpha*(target.CY()-s.cy)
	nw := s.w + s.p.SizeAlpha*(target.W-s.w)
	nh := s.h + s.p.SizeAlpha*(target.H-s.h)

	// center deadzone: fraction of the frame diagonal
	diag := math.Hypot(s.p.FrameW, s.p.FrameH)
	if math.Hypot(ncx-s.cx, ncy-s.cy) < s.p.CenterDeadzoneFrac*diag {
		ncx, ncy = s.cx, s.cy
	}

	// zoom deadzone: relative size change
	if s.w > 0 && s.h > 0 {
		rel := math.Max(math.Abs(nw-s.w)/s.w, math.Abs(nh-s.h)/s.h)
		if rel < s.p.ZoomDeadzoneFrac {
			nw, nh = s.w, s.h
		}
	}

	// per-frame movement limit, per axis
	ncx = s.cx + clampAbs(ncx-s.cx, s.p.MaxMoveFrac*s.p.FrameW)
	ncy = s.cy + clampAbs(ncy-s.cy, s.p.MaxMoveFrac*s.p.FrameH)

	// per-frame relative zoom limit
	nw = clampRatio(nw, s.w, s.p.MaxZoomFrac)
	nh = clampRatio(nh, s.h, s.p.MaxZoomFrac)

	s.cx, s.cy = ncx, ncy
	s.w, s.h = nw, nh
}

func clampAbs(d, limit float64) float64 {
	if limit <= 0 {
		return d
	}
	if d > limit {
		return limit
	}
	if d < -limit {
		return -limit
	}
	return d
}

func clampRatio(next, prev, maxFrac float64) float64 {
	if maxFrac <= 0 || prev <= 0 {
		return next
	}
	lo := prev * (1 - maxFrac)
	hi := prev * (1 + maxFrac)
	if next < lo {
		return lo
	}
	if next > hi {
		return hi
	}
	return next
}
