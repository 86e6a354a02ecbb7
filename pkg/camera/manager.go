package camera

import (
	"fmt"
	"strings"
	"sync"
)

// ValidationError lists every problem found in a rejected config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "camera: invalid config: " + strings.Join(e.Problems, "; ")
}

// Update is a partial config change. Nil fields keep their current value;
// Preset, when set, is applied first and keeps the selected device.
type Update struct {
	Preset    *string `json:"preset,omitempty"`
	Device    *int    `json:"device,omitempty"`
	Width     *int    `json:"width,omitempty"`
	Height    *int    `json:"height,omitempty"`
	Framerate *int    `json:"framerate,omitempty"`
	Quality   *int    `json:"quality,omitempty"`
	Mirror    *bool   `json:"mirror,omitempty"`
}

// Manager holds the capture settings used for the next session.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	version  int
	watchers []func(Config)
}

// NewManager creates a manager holding cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Config returns the current settings.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Version increments on every accepted change.
func (m *Manager) Version() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// OnChange registers fn to run after each accepted change.
func (m *Manager) OnChange(fn func(Config)) {
	m.mu.Lock()
	m.watchers = append(m.watchers, fn)
	m.mu.Unlock()
}

// Set replaces the settings after validating them.
func (m *Manager) Set(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	m.mu.Lock()
	m.cfg = cfg
	m.version++
	watchers := append([]func(Config) nil, m.watchers...)
	m.mu.Unlock()

	for _, fn := range watchers {
		fn(cfg)
	}
	return nil
}

// Apply merges u into the current settings and stores the result.
func (m *Manager) Apply(u Update) (Config, error) {
	cfg := m.Config()

	if u.Preset != nil {
		preset, ok := Preset(*u.Preset)
		if !ok {
			return cfg, fmt.Errorf("camera: unknown preset %q", *u.Preset)
		}
		preset.Device = cfg.Device
		cfg = preset
	}

	setInt(&cfg.Device, u.Device)
	setInt(&cfg.Width, u.Width)
	setInt(&cfg.Height, u.Height)
	setInt(&cfg.Framerate, u.Framerate)
	setInt(&cfg.Quality, u.Quality)
	if u.Mirror != nil {
		cfg.Mirror = *u.Mirror
	}

	if err := m.Set(cfg); err != nil {
		return m.Config(), err
	}
	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
