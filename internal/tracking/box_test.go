package tracking

import (
	"errors"
	"math"
	"testing"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestUnionCoversAllBoxes(t *testing.T) {
	boxes := []Box{
		{X: 100, Y: 50, W: 40, H: 30},
		{X: 80, Y: 70, W: 20, H: 60},
		{X: 150, Y: 40, W: 10, H: 10},
	}
	u, err := Union(boxes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.X != 80 || u.Y != 40 {
		t.Errorf("union origin = (%g,%g), want (80,40)", u.X, u.Y)
	}
	if u.X+u.W != 160 || u.Y+u.H != 130 {
		t.Errorf("union extent = (%g,%g), want (160,130)", u.X+u.W, u.Y+u.H)
	}
}

func TestUnionEmptyRejected(t *testing.T) {
	if _, err := Union(nil); !errors.Is(err, ErrNoBoxes) {
		t.Errorf("expected ErrNoBoxes, got %v", err)
	}
}

func TestUnionSingleBoxIdentity(t *testing.T) {
	b := Box{X: 5, Y: 6, W: 7, H: 8}
	u, err := Union([]Box{b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != b {
		t.Errorf("union of one box = %v, want %v", u, b)
	}
}

func TestExpandMeetsMinimums(t *testing.T) {
	b := Expand(Box{X: 900, Y: 500, W: 50, H: 40}, 960, 540, 0, 1920, 1080)
	if b.W < 960 || b.H < 540 {
		t.Errorf("expanded to %gx%g, want at least 960x540", b.W, b.H)
	}
	if b.X < 0 || b.Y < 0 || b.X+b.W > 1920 || b.Y+b.H > 1080 {
		t.Errorf("expanded box out of frame: %+v", b)
	}
}

func TestExpandLocksAspect(t *testing.T) {
	ar := 960.0 / 540.0
	b := Expand(Box{X: 900, Y: 500, W: 50, H: 40}, 960, 540, ar, 1920, 1080)
	if !approx(b.W/b.H, ar, 1e-6) {
		t.Errorf("aspect = %g, want %g", b.W/b.H, ar)
	}
	if b.W < 960 || b.H < 540 {
		t.Errorf("expanded to %gx%g, want at least 960x540", b.W, b.H)
	}
}

func TestExpandNeverShrinksSatisfyingDimension(t *testing.T) {
	// box already wider than the minimum; aspect lock must grow
	// height, not cut width
	b := Expand(Box{X: 100, Y: 100, W: 800, H: 100}, 320, 180, 16.0/9.0, 1920, 1080)
	if b.W < 800 {
		t.Errorf("width shrank from 800 to %g", b.W)
	}
	if !approx(b.W/b.H, 16.0/9.0, 1e-6) {
		t.Errorf("aspect = %g, want 16:9", b.W/b.H)
	}
}

func TestExpandShiftsBeforeShrinking(t *testing.T) {
	// a box hugging the right edge must slide left, keeping full size
	b := Expand(Box{X: 1900, Y: 1060, W: 10, H: 10}, 640, 360, 0, 1920, 1080)
	if b.W != 640 || b.H != 360 {
		t.Errorf("size = %gx%g, want 640x360", b.W, b.H)
	}
	if b.X+b.W > 1920 || b.Y+b.H > 1080 {
		t.Errorf("box exceeds frame: %+v", b)
	}
}

func TestExpandFitsWhenLargerThanFrame(t *testing.T) {
	ar := 1280.0 / 720.0
	b := Expand(Box{X: 0, Y: 0, W: 10, H: 10}, 1280, 720, ar, 640, 360)
	if b.W > 640 || b.H > 360 {
		t.Errorf("box %gx%g larger than 640x360 frame", b.W, b.H)
	}
	if !approx(b.W/b.H, ar, 1e-3) {
		t.Errorf("aspect = %g, want %g", b.W/b.H, ar)
	}
	// centered best-fit
	if !approx(b.X, (640-b.W)/2, 0.5) || !approx(b.Y, (360-b.H)/2, 0.5) {
		t.Errorf("box not centered: %+v", b)
	}
}

func TestInflateKeepsCenter(t *testing.T) {
	b := Box{X: 100, Y: 100, W: 50, H: 20}
	g := b.Inflate(0.2)
	if !approx(g.CX(), b.CX(), 1e-9) || !approx(g.CY(), b.CY(), 1e-9) {
		t.Errorf("center moved: (%g,%g) -> (%g,%g)", b.CX(), b.CY(), g.CX(), g.CY())
	}
	if !approx(g.W, 70, 1e-9) || !approx(g.H, 28, 1e-9) {
		t.Errorf("inflated size = %gx%g, want 70x28", g.W, g.H)
	}
}
