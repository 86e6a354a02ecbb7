// Package blink implements the blink-detection loop: a paced background worker that runs
// face/eye detection on camera frames, keeps a short eye-count history and reports
// debounced blink events to an external controller.
package blink

import (
	"fmt"
	"time"
)

// Default resource locations for the pretrained cascades.
const (
	DefaultFaceCascadePath = "./res/haarcascade_frontalface_alt.xml"
	DefaultEyeCascadePath  = "./res/haarcascade_eye_tree_eyeglasses.xml"
)

// Config holds all tunable parameters for blink tracking
type Config struct {
	// Camera
	Device int // Camera device index

	// Classifiers
	FaceCascadePath string
	EyeCascadePath  string
	MinFaceSize     int // Minimum face size in pixels (long edge)
	MinEyeSize      int // Minimum eye size in pixels, searched inside the face only

	// Timing
	FPS int // Target frame rate; <= 0 runs unpaced (offline replay)

	// Blink policy
	MaxDipFrames   int // Longest zero-eye run still counted as a blink
	MinOpenHistory int // Running history needed before a dip may count

	// Notifications
	MaxPendingFrames int // Frame notifications kept while the consumer lags
}

// DefaultConfig returns the recommended configuration for a webcam at arm's length
func DefaultConfig() Config {
	return Config{
		Device: 0,

		FaceCascadePath: DefaultFaceCascadePath,
		EyeCascadePath:  DefaultEyeCascadePath,
		MinFaceSize:     300,
		MinEyeSize:      50,

		FPS: 30,

		// A lid closure lasts 100-300ms, i.e. 3-9 frames at 30fps
		MaxDipFrames: 8,
		// Two consecutive frames with both eyes; a single open frame after a
		// look-away only reaches 2. One-eye tracking needs 1.
		MinOpenHistory: 3,

		MaxPendingFrames: 4,
	}
}

// ReplayConfig returns a configuration for recorded video: no pacing, the file
// is processed as fast as detection allows.
func ReplayConfig() Config {
	cfg := DefaultConfig()
	cfg.FPS = 0
	cfg.MaxPendingFrames = 1
	return cfg
}

// FrameInterval returns the pacing interval, zero when unpaced.
func (c Config) FrameInterval() time.Duration {
	if c.FPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.FPS)
}

// Validate checks if the config values are usable.
func (c Config) Validate() error {
	switch {
	case c.Device < 0:
		return fmt.Errorf("blink: device index must be >= 0, got %d", c.Device)
	case c.FaceCascadePath == "" || c.EyeCascadePath == "":
		return fmt.Errorf("blink: both cascade paths are required")
	case c.MinFaceSize <= 0 || c.MinEyeSize <= 0:
		return fmt.Errorf("blink: minimum face/eye sizes must be positive")
	case c.MinEyeSize >= c.MinFaceSize:
		return fmt.Errorf("blink: eye size %d must be smaller than face size %d", c.MinEyeSize, c.MinFaceSize)
	case c.MaxDipFrames < 1:
		return fmt.Errorf("blink: MaxDipFrames must be >= 1, got %d", c.MaxDipFrames)
	case c.MinOpenHistory < 0:
		return fmt.Errorf("blink: MinOpenHistory must be >= 0, got %d", c.MinOpenHistory)
	case c.MaxPendingFrames < 1:
		return fmt.Errorf("blink: MaxPendingFrames must be >= 1, got %d", c.MaxPendingFrames)
	}
	return nil
}
