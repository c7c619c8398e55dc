package detect

import (
	"fmt"
	"image"
	"os"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// dnnDetector runs a YOLO ONNX export through the OpenCV DNN module
type dnnDetector struct {
	logger  zerolog.Logger
	net     gocv.Net
	opts    Options
	allowed map[string]bool
}

func newDNNDetector(opts Options, logger zerolog.Logger) (Detector, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", opts.ModelPath)
	}

	net := gocv.ReadNetFromONNX(opts.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", opts.ModelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set dnn backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set dnn target: %w", err)
	}

	logger.Info().Str("model", opts.ModelPath).Msg("dnn detector loaded")

	return &dnnDetector{
		logger:  logger.With().Str("component", "detector-dnn").Logger(),
		net:     net,
		opts:    opts,
		allowed: allowedSet(opts.AllowedClasses),
	}, nil
}

func (d *dnnDetector) Detect(frame gocv.Mat) ([]Detection, error) {
	if frame.Empty() {
		return nil, nil
	}

	blob := gocv.BlobFromImage(frame, 1.0/255.0,
		image.Pt(yoloInputSize, yoloInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output rank %d", len(dims))
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading network output: %w", err)
	}

	scaleX := float64(frame.Cols()) / float64(yoloInputSize)
	scaleY := float64(frame.Rows()) / float64(yoloInputSize)

	return decodeYOLO(data, dims[1], dims[2], scaleX, scaleY,
		d.opts.Confidence, d.opts.NMSIoU, d.allowed), nil
}

func (d *dnnDetector) Warmup() error {
	dummy := gocv.NewMatWithSize(yoloInputSize, yoloInputSize, gocv.MatTypeCV8UC3)
	defer dummy.Close()
	_, err := d.Detect(dummy)
	return err
}

func (d *dnnDetector) Close() error {
	return d.net.Close()
}
