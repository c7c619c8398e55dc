package detect

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// YOLO export geometry: square network input, output0 shaped
// [1, 4+classes, anchors]
const (
	yoloInputSize = 640
	yoloChannels  = 4 + 80
	yoloAnchors   = 8400
)

// decodeYOLO converts a raw [1, 4+nc, n] output tensor into filtered,
// NMS-suppressed detections in source-frame coordinates. Data layout is
// channel-major: data[c*n+i] is channel c of anchor i; channels 0-3 are
// cx, cy, w, h in network-input pixels.
func decodeYOLO(data []float32, channels, n int, scaleX, scaleY, confidence, nmsIoU float64, allowed map[string]bool) []Detection {
	if len(data) < channels*n || channels <= 4 {
		return nil
	}

	var (
		rects   []image.Rectangle
		scores  []float32
		classes []string
	)

	numClasses := channels - 4
	for i := 0; i < n; i++ {
		best := -1
		bestScore := float32(0)
		for c := 0; c < numClasses; c++ {
			if s := data[(4+c)*n+i]; s > bestScore {
				bestScore = s
				best = c
			}
		}
		if best < 0 || float64(bestScore) < confidence {
			continue
		}

		name := "unknown"
		if best < len(cocoNames) {
			name = cocoNames[best]
		}
		if allowed != nil && !allowed[name] {
			continue
		}

		cx := float64(data[0*n+i]) * scaleX
		cy := float64(data[1*n+i]) * scaleY
		w := float64(data[2*n+i]) * scaleX
		h := float64(data[3*n+i]) * scaleY

		rects = append(rects, image.Rect(
			int(math.Round(cx-w/2)), int(math.Round(cy-h/2)),
			int(math.Round(cx+w/2)), int(math.Round(cy+h/2))))
		scores = append(scores, bestScore)
		classes = append(classes, name)
	}

	if len(rects) == 0 {
		return nil
	}

	keep := gocv.NMSBoxes(rects, scores, float32(confidence), float32(nmsIoU))

	dets := make([]Detection, 0, len(keep))
	for _, idx := range keep {
		if idx < 0 || idx >= len(rects) {
			continue
		}
		r := rects[idx]
		dets = append(dets, Detection{
			X1:    float64(r.Min.X),
			Y1:    float64(r.Min.Y),
			X2:    float64(r.Max.X),
			Y2:    float64(r.Max.Y),
			Score: float64(scores[idx]),
			Class: classes[idx],
		})
	}
	return dets
}
