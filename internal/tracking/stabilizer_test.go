package tracking

import (
	"math"
	"testing"
)

func testParams() Params {
	return Params{
		FrameW:      1920,
		FrameH:      1080,
		MinOutputW:  2,
		MinOutputH:  2,
		CenterAlpha: 0.5,
		SizeAlpha:   0.5,
		MaxMoveFrac: 1.0,
		MaxZoomFrac: 1.0,
	}
}

func TestStabilizerFirstTargetInitializesDirectly(t *testing.T) {
	s := NewStabilizer(testParams())
	s.Step(&Box{X: 400, Y: 200, W: 100, H: 50})
	cx, cy := s.Center()
	if cx != 450 || cy != 225 {
		t.Errorf("center = (%g,%g), want (450,225)", cx, cy)
	}
	w, h := s.Size()
	if w != 100 || h != 50 {
		t.Errorf("size = %gx%g, want 100x50", w, h)
	}
}

func TestStabilizerHoldsOnMissingTarget(t *testing.T) {
	s := NewStabilizer(testParams())
	s.Step(&Box{X: 400, Y: 200, W: 100, H: 50})
	first := s.Step(nil)
	second := s.Step(nil)
	if first != second {
		t.Errorf("crop changed across detection gap: %+v vs %+v", first, second)
	}
	cx, cy := s.Center()
	if cx != 450 || cy != 225 {
		t.Errorf("center drifted to (%g,%g) during gap", cx, cy)
	}
}

func TestStabilizerSpikeRateLimited(t *testing.T) {
	p := testParams()
	p.CenterAlpha = 1.0
	p.MaxMoveFrac = 10.0 / 1920.0 // 10 px per frame horizontally
	p.FrameH = 1080
	s := NewStabilizer(p)

	s.Step(&Box{X: 80, Y: 80, W: 40, H: 40}) // center (100,100)
	s.Step(&Box{X: 180, Y: 80, W: 40, H: 40}) // center jumps to (200,100)

	cx, cy := s.Center()
	if !approx(cx, 110, 1e-9) || !approx(cy, 100, 1e-9) {
		t.Errorf("center after spike = (%g,%g), want (110,100)", cx, cy)
	}
}

func TestStabilizerZoomRateLimited(t *testing.T) {
	p := testParams()
	p.SizeAlpha = 1.0
	p.MaxZoomFrac = 0.1
	s := NewStabilizer(p)

	s.Step(&Box{X: 0, Y: 0, W: 100, H: 100})
	s.Step(&Box{X: 0, Y: 0, W: 500, H: 500})

	w, h := s.Size()
	if !approx(w, 110, 1e-9) || !approx(h, 110, 1e-9) {
		t.Errorf("size after spike = %gx%g, want 110x110", w, h)
	}
}

func TestStabilizerConvergesThenDeadzoneHolds(t *testing.T) {
	p := testParams()
	p.CenterDeadzoneFrac = 0.02
	target := Box{X: 900, Y: 500, W: 100, H: 80}
	s := NewStabilizer(p)
	s.Step(&Box{X: 100, Y: 100, W: 100, H: 80})

	diag := math.Hypot(p.FrameW, p.FrameH)
	var prevX, prevY float64
	for i := 0; i < 50; i++ {
		s.Step(&target)
		cx, cy := s.Center()
		if cx == prevX && cy == prevY {
			// deadzone engaged: must stay fixed from here on
			for j := 0; j < 5; j++ {
				s.Step(&target)
			}
			fx, fy := s.Center()
			if fx != cx || fy != cy {
				t.Fatalf("center moved after deadzone engaged: (%g,%g) -> (%g,%g)", cx, cy, fx, fy)
			}
			dist := math.Hypot(cx-target.CX(), cy-target.CY())
			if dist > p.CenterDeadzoneFrac*diag/p.CenterAlpha {
				t.Fatalf("settled %g px from target, deadzone is %g px of residual",
					dist, p.CenterDeadzoneFrac*diag/p.CenterAlpha)
			}
			return
		}
		prevX, prevY = cx, cy
	}
	t.Fatal("center never settled within 50 frames")
}

func TestStabilizerDeterministic(t *testing.T) {
	targets := []*Box{
		{X: 100, Y: 100, W: 60, H: 40},
		nil,
		{X: 140, Y: 120, W: 80, H: 50},
		{X: 600, Y: 300, W: 70, H: 45},
		nil,
		{X: 620, Y: 310, W: 72, H: 44},
	}
	p := testParams()
	p.CenterDeadzoneFrac = 0.01
	p.ZoomDeadzoneFrac = 0.05
	p.MaxMoveFrac = 0.05
	p.MaxZoomFrac = 0.06
	p.MarginFrac = 0.2
	p.MinOutputW = 640
	p.MinOutputH = 360
	p.Aspect = 16.0 / 9.0

	run := func() []Box {
		s := NewStabilizer(p)
		out := make([]Box, 0, len(targets))
		for _, tg := range targets {
			out = append(out, s.Step(tg))
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("frame %d differs between runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestStabilizerCropRespectsMinimumAndBounds(t *testing.T) {
	p := testParams()
	p.MinOutputW = 640
	p.MinOutputH = 360
	p.Aspect = 16.0 / 9.0
	p.MarginFrac = 0.2
	s := NewStabilizer(p)

	crop := s.Step(&Box{X: 1890, Y: 1050, W: 20, H: 20})
	if crop.W < 640 || crop.H < 360 {
		t.Errorf("crop %gx%g below minimum output size", crop.W, crop.H)
	}
	if crop.X < 0 || crop.Y < 0 || crop.X+crop.W > 1920 || crop.Y+crop.H > 1080 {
		t.Errorf("crop out of frame: %+v", crop)
	}
	if s.Shrinks() != 0 {
		t.Errorf("unexpected shrink anomaly: %d", s.Shrinks())
	}
}

func TestStabilizerFullFrameBeforeFirstTarget(t *testing.T) {
	p := testParams()
	s := NewStabilizer(p)
	crop := s.Step(nil)
	if crop.X != 0 || crop.Y != 0 || crop.W != p.FrameW || crop.H != p.FrameH {
		t.Errorf("pre-target crop = %+v, want full frame", crop)
	}
}
