package study

import (
	"fmt"
	"sync"
	"time"
)

// Mode is the stimulus requested when the fatigue limit passes.
type Mode string

const (
	ModeNone  Mode = "none"
	ModeFlash Mode = "flash" // fire and re-arm until the next blink
	ModeBlur  Mode = "blur"  // fire once
)

// ParseMode accepts "none", "flash" or "blur".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeNone, ModeFlash, ModeBlur:
		return m, nil
	}
	return "", fmt.Errorf("study: unknown stimulus mode %q", s)
}

// FatigueConfig configures the fatigue timer.
type FatigueConfig struct {
	Limit time.Duration
	Mode  Mode
}

// Validate checks the configuration.
func (c FatigueConfig) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Mode != ModeNone && c.Limit <= 0 {
		return fmt.Errorf("study: fatigue limit must be positive, got %s", c.Limit)
	}
	return nil
}

// FatigueTimer requests a stimulus when no blink has been seen for Limit.
// Arm restarts the countdown; it is called on every blink. A stimulus stays
// showing until the next Arm or Stop.
type FatigueTimer struct {
	cfg  FatigueConfig
	fire func(Mode)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	fired   int
	showing bool
}

// NewFatigueTimer creates a stopped timer. fire runs on its own goroutine.
func NewFatigueTimer(cfg FatigueConfig, fire func(Mode)) *FatigueTimer {
	return &FatigueTimer{cfg: cfg, fire: fire}
}

// Arm (re)starts the countdown and reports whether a stimulus was showing.
// No-op in ModeNone.
func (t *FatigueTimer) Arm() bool {
	if t.cfg.Mode == ModeNone {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cleared := t.showing
	t.showing = false
	t.armLocked()
	return cleared
}

func (t *FatigueTimer) armLocked() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.cfg.Limit, func() { t.expire(gen) })
}

// Stop cancels the countdown and reports whether a stimulus was showing.
func (t *FatigueTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	cleared := t.showing
	t.showing = false
	return cleared
}

// Showing reports whether a stimulus fired since the last Arm or Stop.
func (t *FatigueTimer) Showing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.showing
}

// Active reports whether a countdown is pending.
func (t *FatigueTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Fired returns how many stimuli have been requested.
func (t *FatigueTimer) Fired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

func (t *FatigueTimer) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		// Superseded by Arm or Stop after the timer had already fired.
		t.mu.Unlock()
		return
	}
	t.fired++
	t.showing = true
	if t.cfg.Mode == ModeFlash {
		t.armLocked()
	} else {
		t.timer = nil
	}
	t.mu.Unlock()

	if t.fire != nil {
		t.fire(t.cfg.Mode)
	}
}
