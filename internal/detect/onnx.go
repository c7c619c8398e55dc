package detect

import (
	"fmt"
	"os"
	"sync"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

var ortOnce sync.Once

// onnxDetector runs a YOLO export directly through onnxruntime,
// bypassing OpenCV's DNN module. Useful where the runtime's execution
// providers beat the cv backend.
type onnxDetector struct {
	logger     zerolog.Logger
	session    *ort.DynamicAdvancedSession
	opts       Options
	allowed    map[string]bool
	inputShape ort.Shape
}

func newONNXDetector(opts Options, logger zerolog.Logger) (Detector, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", opts.ModelPath)
	}

	var initErr error
	ortOnce.Do(func() {
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", initErr)
	}

	sess, err := ort.NewDynamicAdvancedSession(
		opts.ModelPath,
		[]string{"images"},
		[]string{"output0"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector session: %w", err)
	}

	logger.Info().Str("model", opts.ModelPath).Msg("onnx detector loaded")

	return &onnxDetector{
		logger:     logger.With().Str("component", "detector-onnx").Logger(),
		session:    sess,
		opts:       opts,
		allowed:    allowedSet(opts.AllowedClasses),
		inputShape: ort.NewShape(1, 3, yoloInputSize, yoloInputSize),
	}, nil
}

func (d *onnxDetector) Detect(frame gocv.Mat) ([]Detection, error) {
	if frame.Empty() {
		return nil, nil
	}

	input, err := d.preprocess(frame)
	if err != nil {
		return nil, fmt.Errorf("frame preprocessing failed: %w", err)
	}
	defer input.Destroy()

	outShape := ort.NewShape(1, yoloChannels, yoloAnchors)
	output, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	inputs := []ort.ArbitraryTensor{input}
	outputs := []ort.ArbitraryTensor{output}
	if err := d.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("detector inference failed: %w", err)
	}

	scaleX := float64(frame.Cols()) / float64(yoloInputSize)
	scaleY := float64(frame.Rows()) / float64(yoloInputSize)

	return decodeYOLO(output.GetData(), yoloChannels, yoloAnchors,
		scaleX, scaleY, d.opts.Confidence, d.opts.NMSIoU, d.allowed), nil
}

// preprocess -> images (float32[1,3,640,640]), RGB planes scaled to 0-1
func (d *onnxDetector) preprocess(frame gocv.Mat) (*ort.Tensor[float32], error) {
	img, err := frame.ToImage()
	if err != nil {
		return nil, err
	}

	resized := resize.Resize(yoloInputSize, yoloInputSize, img, resize.Bilinear)

	data := make([]float32, 3*yoloInputSize*yoloInputSize)
	bounds := resized.Bounds()
	idx := 0

	for ch := 0; ch < 3; ch++ {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := resized.At(x, y).RGBA()
				var v float32
				switch ch {
				case 0:
					v = float32(r >> 8)
				case 1:
					v = float32(g >> 8)
				case 2:
					v = float32(b >> 8)
				}
				data[idx] = v / 255.0
				idx++
			}
		}
	}

	return ort.NewTensor(d.inputShape, data)
}

func (d *onnxDetector) Warmup() error {
	dummy := gocv.NewMatWithSize(yoloInputSize, yoloInputSize, gocv.MatTypeCV8UC3)
	defer dummy.Close()
	_, err := d.Detect(dummy)
	return err
}

func (d *onnxDetector) Close() error {
	d.logger.Info().Msg("closing detector session")
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			return err
		}
	}
	return nil
}
