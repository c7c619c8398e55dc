// Package detect provides swappable animal-detection backends. The
// rest of the system only sees the Detector interface; any backend
// producing per-frame boxes is usable.
package detect

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Detection is one detected object in source-frame pixel coordinates
type Detection struct {
	X1    float64
	Y1    float64
	X2    float64
	Y2    float64
	Score float64
	Class string
}

// Detector finds animals in a single video frame. Implementations are
// not required to be thread-safe; create one per worker.
type Detector interface {
	Detect(frame gocv.Mat) ([]Detection, error)
	Warmup() error
	Close() error
}

// Options configures a detector backend
type Options struct {
	ModelPath      string
	Confidence     float64
	NMSIoU         float64
	AllowedClasses []string
}

// New creates a detector backend by name
func New(backend string, opts Options, logger zerolog.Logger) (Detector, error) {
	switch strings.ToLower(backend) {
	case "dnn":
		return newDNNDetector(opts, logger)
	case "onnx":
		return newONNXDetector(opts, logger)
	default:
		return nil, fmt.Errorf("unknown detector backend: %q", backend)
	}
}

func allowedSet(classes []string) map[string]bool {
	if len(classes) == 0 {
		return nil
	}
	m := make(map[string]bool, len(classes))
	for _, c := range classes {
		m[strings.ToLower(c)] = true
	}
	return m
}

// COCO class names, index-aligned with YOLO model outputs
var cocoNames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train",
	"truck", "boat", "traffic light", "fire hydrant", "stop sign",
	"parking meter", "bench", "bird", "cat", "dog", "horse", "sheep",
	"cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard",
	"sports ball", "kite", "baseball bat", "baseball glove", "skateboard",
	"surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork",
	"knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv",
	"laptop", "mouse", "remote", "keyboard", "cell phone", "microwave",
	"oven", "toaster", "sink", "refrigerator", "book", "clock", "vase",
	"scissors", "teddy bear", "hair drier", "toothbrush",
}
