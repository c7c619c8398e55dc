package detect

import (
	"testing"

	"github.com/rs/zerolog"
)

// buildTensor lays out anchors channel-major the way YOLO exports do
func buildTensor(n int, anchors [][4]float32, classScores map[int]map[int]float32) []float32 {
	data := make([]float32, yoloChannels*n)
	for i, box := range anchors {
		data[0*n+i] = box[0]
		data[1*n+i] = box[1]
		data[2*n+i] = box[2]
		data[3*n+i] = box[3]
	}
	for i, scores := range classScores {
		for cls, s := range scores {
			data[(4+cls)*n+i] = s
		}
	}
	return data
}

func TestDecodeYOLOFiltersByConfidenceAndClass(t *testing.T) {
	const n = 3
	// anchor 0: bird (class 14) at high confidence
	// anchor 1: bird below threshold
	// anchor 2: car (class 2) at high confidence, not an allowed class
	data := buildTensor(n,
		[][4]float32{
			{100, 100, 40, 40},
			{400, 300, 40, 40},
			{500, 200, 60, 30},
		},
		map[int]map[int]float32{
			0: {14: 0.9},
			1: {14: 0.1},
			2: {2: 0.95},
		})

	dets := decodeYOLO(data, yoloChannels, n, 1.0, 1.0, 0.25, 0.45,
		allowedSet([]string{"bird", "deer"}))

	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d: %v", len(dets), dets)
	}
	d := dets[0]
	if d.Class != "bird" {
		t.Errorf("class = %q, want bird", d.Class)
	}
	if d.X1 != 80 || d.Y1 != 80 || d.X2 != 120 || d.Y2 != 120 {
		t.Errorf("box = (%g,%g)-(%g,%g), want (80,80)-(120,120)", d.X1, d.Y1, d.X2, d.Y2)
	}
	if d.Score < 0.89 || d.Score > 0.91 {
		t.Errorf("score = %g, want ~0.9", d.Score)
	}
}

func TestDecodeYOLOSuppressesOverlaps(t *testing.T) {
	const n = 2
	// two near-identical bird boxes; NMS keeps the stronger one
	data := buildTensor(n,
		[][4]float32{
			{100, 100, 40, 40},
			{102, 101, 40, 40},
		},
		map[int]map[int]float32{
			0: {14: 0.9},
			1: {14: 0.6},
		})

	dets := decodeYOLO(data, yoloChannels, n, 1.0, 1.0, 0.25, 0.45, nil)

	if len(dets) != 1 {
		t.Fatalf("expected 1 detection after NMS, got %d", len(dets))
	}
	if dets[0].Score < 0.89 {
		t.Errorf("NMS kept the weaker box: score %g", dets[0].Score)
	}
}

func TestDecodeYOLOScalesToFrame(t *testing.T) {
	const n = 1
	data := buildTensor(n,
		[][4]float32{{320, 320, 100, 50}},
		map[int]map[int]float32{0: {14: 0.8}})

	// 1920x1080 frame fed through a 640x640 network input
	dets := decodeYOLO(data, yoloChannels, n, 3.0, 1080.0/640.0, 0.25, 0.45, nil)
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	d := dets[0]
	if d.X1 != 810 || d.X2 != 1110 {
		t.Errorf("x span = [%g,%g], want [810,1110]", d.X1, d.X2)
	}
}

func TestDecodeYOLOEmptyTensor(t *testing.T) {
	if dets := decodeYOLO(nil, yoloChannels, 10, 1, 1, 0.25, 0.45, nil); dets != nil {
		t.Errorf("expected nil for truncated data, got %v", dets)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New("tensorflow", Options{}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
