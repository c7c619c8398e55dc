package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	InputDir    string `yaml:"input_dir"`
	OutputDir   string `yaml:"output_dir"`
	Concurrency int    `yaml:"concurrency"`
	LogLevel    string `yaml:"log_level"`

	Detector    DetectorConfig    `yaml:"detector"`
	Segmenter   SegmenterConfig   `yaml:"segmenter"`
	Watcher     WatcherConfig     `yaml:"watcher"`
	FFmpeg      FFmpegConfig      `yaml:"ffmpeg"`
	PostProcess PostProcessConfig `yaml:"postprocess"`
	Tracking    TrackingConfig    `yaml:"tracking"`
}

type DetectorConfig struct {
	Backend             string   `yaml:"backend"` // dnn | onnx
	ModelPath           string   `yaml:"model_path"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	NMSIoU              float64  `yaml:"nms_iou"`
	FrameStride         int      `yaml:"frame_stride"`
	AnimalClasses       []string `yaml:"animal_classes"`
}

type SegmenterConfig struct {
	PrerollSec     float64 `yaml:"preroll_sec"`
	PostrollSec    float64 `yaml:"postroll_sec"`
	MergeGapSec    float64 `yaml:"merge_gap_sec"`
	MinActivitySec float64 `yaml:"min_activity_sec"`
}

type WatcherConfig struct {
	StabilitySeconds    float64 `yaml:"stability_seconds"`
	PollIntervalSeconds float64 `yaml:"poll_interval_seconds"`
}

type FFmpegConfig struct {
	Threads int    `yaml:"threads"`
	Preset  string `yaml:"preset"`
	CRF     int    `yaml:"crf"`
}

type PostProcessConfig struct {
	ZoomEnabled     bool   `yaml:"zoom_enabled"`
	TrackingEnabled bool   `yaml:"tracking_enabled"`
	KeepProcessed   bool   `yaml:"keep_processed"`
	MinOutputWidth  int    `yaml:"min_output_width"`
	MinOutputHeight int    `yaml:"min_output_height"`
	ZoomSuffix      string `yaml:"zoom_suffix"`
	TrackSuffix     string `yaml:"track_suffix"`
}

type TrackingConfig struct {
	CenterAlpha        float64 `yaml:"center_alpha"`
	SizeAlpha          float64 `yaml:"size_alpha"`
	MaxMoveFrac        float64 `yaml:"max_move_frac"`
	MaxZoomFrac        float64 `yaml:"max_zoom_frac"`
	CenterDeadzoneFrac float64 `yaml:"center_deadzone_frac"`
	ZoomDeadzoneFrac   float64 `yaml:"zoom_deadzone_frac"`
	MarginFrac         float64 `yaml:"margin_frac"`
}

// Load reads configuration from file or returns defaults, then applies
// overrides from a .env file in the input directory (if present).
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.InputDir != "" {
		if err := cfg.applyDotenv(filepath.Join(cfg.InputDir, ".env")); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// applyDotenv overlays settings from a .env file living next to the
// watched videos. Camera deployments ship tuning alongside the footage,
// so the file wins over the yaml config.
func (c *Config) applyDotenv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	setStr := func(key string, dst *string) {
		if v, ok := env[key]; ok && v != "" {
			*dst = v
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := env[key]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := env[key]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		v, ok := env[key]
		if !ok {
			return
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}

	setStr("OUTPUT_DIR", &c.OutputDir)
	setStr("LOG_LEVEL", &c.LogLevel)
	setInt("CONCURRENCY", &c.Concurrency)

	setStr("DETECTOR", &c.Detector.Backend)
	setStr("MODEL_PATH", &c.Detector.ModelPath)
	setFloat("CONFIDENCE_THRESHOLD", &c.Detector.ConfidenceThreshold)
	setFloat("NMS_IOU", &c.Detector.NMSIoU)
	setInt("FRAME_STRIDE", &c.Detector.FrameStride)
	if v, ok := env["ANIMAL_CLASSES"]; ok {
		var classes []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				classes = append(classes, s)
			}
		}
		if len(classes) > 0 {
			c.Detector.AnimalClasses = classes
		}
	}

	setFloat("PREROLL_SEC", &c.Segmenter.PrerollSec)
	setFloat("POSTROLL_SEC", &c.Segmenter.PostrollSec)
	setFloat("MERGE_GAP_SEC", &c.Segmenter.MergeGapSec)
	setFloat("MIN_ACTIVITY_SEC", &c.Segmenter.MinActivitySec)

	setFloat("FILE_STABILITY_SECONDS", &c.Watcher.StabilitySeconds)
	setFloat("POLL_INTERVAL_SECONDS", &c.Watcher.PollIntervalSeconds)

	setBool("ZOOM_ENABLED", &c.PostProcess.ZoomEnabled)
	setBool("TRACKING_ENABLED", &c.PostProcess.TrackingEnabled)
	setBool("KEEP_POSTPROCESSED", &c.PostProcess.KeepProcessed)
	setInt("MIN_OUTPUT_WIDTH", &c.PostProcess.MinOutputWidth)
	setInt("MIN_OUTPUT_HEIGHT", &c.PostProcess.MinOutputHeight)

	setFloat("TRACKING_CENTER_ALPHA", &c.Tracking.CenterAlpha)
	setFloat("TRACKING_SIZE_ALPHA", &c.Tracking.SizeAlpha)
	setFloat("TRACKING_MAX_MOVE_FRAC", &c.Tracking.MaxMoveFrac)
	setFloat("TRACKING_MAX_ZOOM_FRAC", &c.Tracking.MaxZoomFrac)
	setFloat("TRACKING_CENTER_DEADZONE_FRAC", &c.Tracking.CenterDeadzoneFrac)
	setFloat("TRACKING_ZOOM_DEADZONE_FRAC", &c.Tracking.ZoomDeadzoneFrac)
	setFloat("TRACKING_MARGIN", &c.Tracking.MarginFrac)

	return nil
}

// Validate fails fast on out-of-range numeric parameters so a bad
// deployment never starts chewing through footage.
func (c *Config) Validate() error {
	checkNonNeg := func(name string, v float64) error {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %g", name, v)
		}
		return nil
	}
	checkUnit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %g", name, v)
		}
		return nil
	}

	for _, check := range []error{
		checkNonNeg("segmenter.preroll_sec", c.Segmenter.PrerollSec),
		checkNonNeg("segmenter.postroll_sec", c.Segmenter.PostrollSec),
		checkNonNeg("segmenter.merge_gap_sec", c.Segmenter.MergeGapSec),
		checkNonNeg("segmenter.min_activity_sec", c.Segmenter.MinActivitySec),
		checkNonNeg("watcher.stability_seconds", c.Watcher.StabilitySeconds),
		checkNonNeg("watcher.poll_interval_seconds", c.Watcher.PollIntervalSeconds),
		checkUnit("detector.confidence_threshold", c.Detector.ConfidenceThreshold),
		checkUnit("detector.nms_iou", c.Detector.NMSIoU),
		checkUnit("tracking.center_alpha", c.Tracking.CenterAlpha),
		checkUnit("tracking.size_alpha", c.Tracking.SizeAlpha),
		checkUnit("tracking.center_deadzone_frac", c.Tracking.CenterDeadzoneFrac),
		checkUnit("tracking.zoom_deadzone_frac", c.Tracking.ZoomDeadzoneFrac),
		checkNonNeg("tracking.max_move_frac", c.Tracking.MaxMoveFrac),
		checkNonNeg("tracking.max_zoom_frac", c.Tracking.MaxZoomFrac),
		checkNonNeg("tracking.margin_frac", c.Tracking.MarginFrac),
	} {
		if check != nil {
			return check
		}
	}

	if c.Tracking.CenterAlpha == 0 || c.Tracking.SizeAlpha == 0 {
		return fmt.Errorf("tracking alphas must be in (0,1], got center=%g size=%g",
			c.Tracking.CenterAlpha, c.Tracking.SizeAlpha)
	}
	if c.Detector.FrameStride < 1 {
		return fmt.Errorf("detector.frame_stride must be >= 1, got %d", c.Detector.FrameStride)
	}
	if c.PostProcess.MinOutputWidth < 2 || c.PostProcess.MinOutputHeight < 2 {
		return fmt.Errorf("postprocess minimum output size must be at least 2x2, got %dx%d",
			c.PostProcess.MinOutputWidth, c.PostProcess.MinOutputHeight)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		InputDir:    "./input",
		OutputDir:   "./output",
		Concurrency: 2,
		LogLevel:    "info",
		Detector: DetectorConfig{
			Backend:             "dnn",
			ModelPath:           "./models/yolov8n.onnx",
			ConfidenceThreshold: 0.25,
			NMSIoU:              0.45,
			FrameStride:         5,
			AnimalClasses: []string{
				"bird", "cat", "dog", "horse", "sheep",
				"cow", "elephant", "bear", "zebra", "giraffe",
			},
		},
		Segmenter: SegmenterConfig{
			PrerollSec:     1.0,
			PostrollSec:    2.0,
			MergeGapSec:    1.0,
			MinActivitySec: 0.5,
		},
		Watcher: WatcherConfig{
			StabilitySeconds:    3.0,
			PollIntervalSeconds: 1.0,
		},
		FFmpeg: FFmpegConfig{
			Threads: 0,
			Preset:  "veryfast",
			CRF:     22,
		},
		PostProcess: PostProcessConfig{
			ZoomEnabled:     false,
			TrackingEnabled: false,
			KeepProcessed:   false,
			MinOutputWidth:  640,
			MinOutputHeight: 360,
			ZoomSuffix:      "_zoom",
			TrackSuffix:     "_track",
		},
		Tracking: TrackingConfig{
			CenterAlpha:        0.05,
			SizeAlpha:          0.04,
			MaxMoveFrac:        0.05,
			MaxZoomFrac:        0.06,
			CenterDeadzoneFrac: 0.10,
			ZoomDeadzoneFrac:   0.12,
			MarginFrac:         0.20,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".trailclip", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
