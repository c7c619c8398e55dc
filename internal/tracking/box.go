// Package tracking turns noisy per-frame detection boxes into stable
// crop rectangles.
package tracking

import (
	"errors"
	"image"
	"math"
)

// ErrNoBoxes is returned when a union is requested over zero boxes.
// Zoom mode treats this as an invariant violation: segments exist only
// because something was detected in them.
var ErrNoBoxes = errors.New("no boxes to aggregate")

// Box is an axis-aligned rectangle in source-frame pixel coordinates.
type Box struct {
	X float64
	Y float64
	W float64
	H float64
}

// CX returns the horizontal center
func (b Box) CX() float64 { return b.X + b.W/2 }

// CY returns the vertical center
func (b Box) CY() float64 { return b.Y + b.H/2 }

// Rect converts to an integer rectangle for cropping
func (b Box) Rect() image.Rectangle {
	x := int(math.Round(b.X))
	y := int(math.Round(b.Y))
	w := int(math.Round(b.W))
	h := int(math.Round(b.H))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return image.Rect(x, y, x+w, y+h)
}

// Inflate grows the box by frac of its size on each side, keeping the
// center fixed.
func (b Box) Inflate(frac float64) Box {
	if frac <= 0 {
		return b
	}
	dw := b.W * frac
	dh := b.H * frac
	return Box{X: b.X - dw, Y: b.Y - dh, W: b.W + 2*dw, H: b.H + 2*dh}
}

// Union computes the smallest box covering all given boxes. Errors on
// empty input rather than producing an undefined rectangle.
func Union(boxes []Box) (Box, error) {
	if len(boxes) == 0 {
		return Box{}, ErrNoBoxes
	}
	x1 := math.Inf(1)
	y1 := math.Inf(1)
	x2 := math.Inf(-1)
	y2 := math.Inf(-1)
	for _, b := range boxes {
		x1 = math.Min(x1, b.X)
		y1 = math.Min(y1, b.Y)
		x2 = math.Max(x2, b.X+b.W)
		y2 = math.Max(y2, b.Y+b.H)
	}
	return Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}, nil
}

// Expand grows a box to at least minW x minH about its center, locks
// the aspect ratio when aspect > 0 by growing the short side, then
// shifts the result back inside the frame. Only when the box cannot
// fit the frame at all is it shrunk to a centered best-fit.
func Expand(b Box, minW, minH, aspect, frameW, frameH float64) Box {
	cx, cy := b.CX(), b.CY()

	w := math.Max(b.W, minW)
	h := math.Max(b.H, minH)

	if aspect > 0 {
		if w/h < aspect {
			w = h * aspect
		} else {
			h = w / aspect
		}
	}

	x := cx - w/2
	y := cy - h/2

	// shift rather than shrink
	if x < 0 {
		x = 0
	}
	if x+w > frameW {
		x = frameW - w
	}
	if y < 0 {
		y = 0
	}
	if y+h > frameH {
		y = frameH - h
	}

	if w > frameW || h > frameH {
		if aspect > 0 {
			// centered best-fit preserving the locked aspect
			w = frameW
			h = w / aspect
			if h > frameH {
				h = frameH
				w = h * aspect
			}
			x = (frameW - w) / 2
			y = (frameH - h) / 2
		} else {
			x, y, w, h = 0, 0, frameW, frameH
		}
	}

	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return Box{X: x, Y: y, W: w, H: h}
}
