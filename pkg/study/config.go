// Package study runs a fatigue-study session on top of the blink detector:
// task segments, blink-rate bookkeeping, the fatigue stimulus timer and the
// on-disk session log.
package study

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-blink/pkg/blink"
)

// DefaultFatigueLimit is how long the subject may go without blinking before
// a stimulus is requested.
const DefaultFatigueLimit = 5 * time.Second

// DefaultTasks are the reading and puzzle pages shown to subjects.
var DefaultTasks = []string{
	"http://mrnussbaum.com/readingcomp/doughnuts/",
	"http://en.wikipedia.org/wiki/Principal_component_analysis",
	"http://www.spotthedifference.com/photogame.asp",
	"http://faculty.washington.edu/chudler/puzmatch.html",
}

// Config holds session settings.
type Config struct {
	Blink blink.Config

	Tasks   []string
	Shuffle bool // shuffle Tasks once, when the session controller is built

	// LogDir is the root of the per-session log tree. Empty disables the
	// session log and frame persistence.
	LogDir     string
	SaveFrames bool // write annotated PNG frames into the current segment

	Fatigue FatigueConfig
}

// DefaultConfig returns the settings used for live studies.
func DefaultConfig() Config {
	return Config{
		Blink:   blink.DefaultConfig(),
		Tasks:   append([]string(nil), DefaultTasks...),
		Shuffle: true,
		LogDir:  "./log",
		Fatigue: FatigueConfig{
			Limit: DefaultFatigueLimit,
			Mode:  ModeFlash,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if err := c.Blink.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Fatigue.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.SaveFrames && c.LogDir == "" {
		errs = append(errs, fmt.Errorf("study: saving frames needs a log directory"))
	}
	return errors.Join(errs...)
}
