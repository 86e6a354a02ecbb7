// Package camera acquires frames from the subject's webcam (or a recorded
// video) for the blink detector.
package camera

import "fmt"

// Config holds the capture parameters.
// These can be modified via the dashboard API between sessions.
type Config struct {
	// Device is the camera index (0 = platform default).
	Device int `json:"device"`

	// === Resolution ===
	Width     int `json:"width"`     // Requested frame width in pixels
	Height    int `json:"height"`    // Requested frame height in pixels
	Framerate int `json:"framerate"` // Requested device FPS

	// Quality is the JPEG quality (1-100) for frames streamed to the dashboard.
	Quality int `json:"quality"`

	// Mirror flips frames horizontally so the preview behaves like a mirror.
	Mirror bool `json:"mirror"`
}

// Capture limits accepted by Validate.
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns the recommended configuration.
// 1280x720 keeps a face at arm's length well above the 300px detector minimum.
func DefaultConfig() Config {
	return Config{
		Device:    0,
		Width:     1280,
		Height:    720,
		Framerate: 30,
		Quality:   80,
	}
}

// LegacyConfig returns a 640x480 configuration for older webcams.
// Faces must be close to the camera to pass the detector minimum.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// Validate returns one message per out-of-range field, or nil.
func (c Config) Validate() []string {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Device >= 0, "device must be >= 0")
	check(c.Width >= 160 && c.Width <= MaxWidth, "width must be between 160 and %d", MaxWidth)
	check(c.Height >= 120 && c.Height <= MaxHeight, "height must be between 120 and %d", MaxHeight)
	check(c.Framerate >= 1 && c.Framerate <= MaxFramerate, "framerate must be between 1 and %d", MaxFramerate)
	check(c.Quality >= 1 && c.Quality <= 100, "quality must be between 1 and 100")

	return problems
}
