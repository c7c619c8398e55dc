package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/keagan/trailclip/internal/config"
	"github.com/keagan/trailclip/internal/logging"
	"github.com/keagan/trailclip/internal/pipeline"
	"github.com/keagan/trailclip/internal/watcher"
	"github.com/keagan/trailclip/pkg/util"
)

var (
	cfgFile      string
	verbose      bool
	flagInput    string
	flagOutput   string
	flagDetector string
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trailclip",
	Short: "trailclip - camera-trap activity clipper",
	Long:  "Watches camera-trap footage, finds animal activity and extracts cropped, stabilized clips.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// CLI flags win over config file and .env
		if flagInput != "" {
			cfg.InputDir = flagInput
		}
		if flagOutput != "" {
			cfg.OutputDir = flagOutput
		}
		if flagDetector != "" {
			cfg.Detector.Backend = flagDetector
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		if err := logging.InitWithFile(verbose, cfg.OutputDir); err != nil {
			logging.Init(verbose)
			log.Warn().Err(err).Msg("log file unavailable, console only")
		}

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&flagInput, "input", "i", "", "input directory")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "output directory")
	rootCmd.PersistentFlags().StringVar(&flagDetector, "detector", "", "detector backend (dnn|onnx)")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(configCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the input directory and process new videos",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		if err := util.EnsureDir(cfg.InputDir); err != nil {
			return err
		}
		if err := util.EnsureDir(cfg.OutputDir); err != nil {
			return err
		}

		pipe, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}

		log.Info().
			Str("input", cfg.InputDir).
			Str("output", cfg.OutputDir).
			Str("detector", cfg.Detector.Backend).
			Msg("trailclip started")

		logExistingVideos(cfg.InputDir)

		onReady := func(path string) {
			// one bad video never stops the watch loop
			if _, err := pipe.Process(cmd.Context(), path); err != nil {
				log.Error().Err(err).Str("video", path).Msg("processing failed")
			}
		}

		w := watcher.New(
			cfg.InputDir,
			util.Seconds(cfg.Watcher.StabilitySeconds),
			util.Seconds(cfg.Watcher.PollIntervalSeconds),
			onReady,
			log.Logger,
		)
		return w.Run(cmd.Context())
	},
}

var processCmd = &cobra.Command{
	Use:   "process [video...]",
	Short: "Process one or more existing video files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		pipe, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}

		for _, path := range args {
			if !util.IsVideoFile(path) {
				log.Warn().Str("file", path).Msg("skipping non-video file")
				continue
			}
			start := time.Now()
			outputs, err := pipe.Process(cmd.Context(), path)
			if err != nil {
				log.Error().Err(err).Str("video", path).Msg("processing failed")
				continue
			}
			log.Info().
				Str("video", path).
				Int("clips", len(outputs)).
				Dur("elapsed", time.Since(start)).
				Msg("done")
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func logExistingVideos(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && util.IsVideoFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		log.Info().Str("file", filepath.Join(dir, n)).Msg("found existing file")
	}
}
