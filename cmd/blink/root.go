package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-blink/internal/config"
	"github.com/teslashibe/go-blink/internal/log"
	"github.com/teslashibe/go-blink/pkg/blink"
	"github.com/teslashibe/go-blink/pkg/debug"
)

// Version is the application version.
const Version = "0.3.0"

var (
	logLevel    string
	debugOn     bool
	debugFrames bool
)

var rootCmd = &cobra.Command{
	Use:          "blink",
	Short:        "Webcam blink tracking for fatigue studies",
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debugOn && logLevel == "info" {
			logLevel = "debug"
		}
		log.Init(logLevel)
		debug.Enable(debugOn)
		debug.EnableFrames(debugFrames)
	},
}

// Execute runs the root command with a context cancelled by SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.BoolVar(&debugOn, "debug", false, "verbose diagnostics")
	pf.BoolVar(&debugFrames, "debug-frames", false, "per-frame detection output (very verbose)")
}

// trackFlags are the detector settings shared by serve and replay.
type trackFlags struct {
	camera      int
	faceCascade string
	eyeCascade  string
	minFace     int
	minEye      int
	fps         int
	maxDip      int
	minOpen     int
}

func (f *trackFlags) register(cmd *cobra.Command, base blink.Config) {
	fl := cmd.Flags()
	fl.IntVar(&f.camera, "camera", config.Camera(base.Device), "camera device index (env BLINK_CAMERA)")
	fl.StringVar(&f.faceCascade, "face-cascade", config.FaceCascade(), "face Haar cascade (env BLINK_RES_DIR)")
	fl.StringVar(&f.eyeCascade, "eye-cascade", config.EyeCascade(), "eye Haar cascade (env BLINK_RES_DIR)")
	fl.IntVar(&f.minFace, "min-face", base.MinFaceSize, "minimum face size in pixels")
	fl.IntVar(&f.minEye, "min-eye", base.MinEyeSize, "minimum eye size in pixels")
	fl.IntVar(&f.fps, "fps", base.FPS, "detection rate; 0 runs unpaced")
	fl.IntVar(&f.maxDip, "max-dip", base.MaxDipFrames, "longest closed-eye run counted as a blink, in frames")
	fl.IntVar(&f.minOpen, "min-open", base.MinOpenHistory, "running eye history required before a dip counts; 1 for one-eye tracking")
}

func (f *trackFlags) apply(cfg blink.Config) blink.Config {
	cfg.Device = f.camera
	cfg.FaceCascadePath = f.faceCascade
	cfg.EyeCascadePath = f.eyeCascade
	cfg.MinFaceSize = f.minFace
	cfg.MinEyeSize = f.minEye
	cfg.FPS = f.fps
	cfg.MaxDipFrames = f.maxDip
	cfg.MinOpenHistory = f.minOpen
	return cfg
}
