package camera

import (
	"errors"
	"slices"
	"testing"

	"github.com/teslashibe/go-blink/pkg/blink"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errs   int
	}{
		{"default", func(*Config) {}, 0},
		{"negative device", func(c *Config) { c.Device = -1 }, 1},
		{"tiny width", func(c *Config) { c.Width = 100 }, 1},
		{"huge height", func(c *Config) { c.Height = 5000 }, 1},
		{"zero framerate", func(c *Config) { c.Framerate = 0 }, 1},
		{"bad quality and fps", func(c *Config) { c.Quality = 0; c.Framerate = 500 }, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			if got := cfg.Validate(); len(got) != tc.errs {
				t.Errorf("got %d problems %v, want %d", len(got), got, tc.errs)
			}
		})
	}
}

func TestPresets(t *testing.T) {
	names := PresetNames()
	if !slices.IsSorted(names) || len(names) != 4 {
		t.Errorf("PresetNames: %v", names)
	}

	for _, name := range names {
		cfg, ok := Preset(name)
		if !ok {
			t.Errorf("Preset(%q) missing", name)
			continue
		}
		if problems := cfg.Validate(); len(problems) > 0 {
			t.Errorf("preset %q invalid: %v", name, problems)
		}
	}

	if _, ok := Preset("8k"); ok {
		t.Error("unknown preset should not resolve")
	}
	if cfg, _ := Preset(PresetLegacy); cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("legacy preset: %dx%d", cfg.Width, cfg.Height)
	}
}

func ptr[T any](v T) *T { return &v }

func TestManager_Apply(t *testing.T) {
	m := NewManager(DefaultConfig())

	var seen []Config
	m.OnChange(func(c Config) { seen = append(seen, c) })

	cfg, err := m.Apply(Update{Device: ptr(2), Mirror: ptr(true)})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if cfg.Device != 2 || !cfg.Mirror || cfg.Width != 1280 {
		t.Errorf("after update: %+v", cfg)
	}

	// Presets keep the selected device
	cfg, err = m.Apply(Update{Preset: ptr(Preset1080p), Quality: ptr(60)})
	if err != nil {
		t.Fatalf("Apply preset failed: %v", err)
	}
	if cfg.Device != 2 || cfg.Width != 1920 || cfg.Quality != 60 || cfg.Mirror {
		t.Errorf("after preset: %+v", cfg)
	}

	if len(seen) != 2 || m.Version() != 2 {
		t.Errorf("watchers saw %d changes, version %d", len(seen), m.Version())
	}
}

func TestManager_Rejects(t *testing.T) {
	m := NewManager(DefaultConfig())

	_, err := m.Apply(Update{Width: ptr(10)})
	var ve *ValidationError
	if !errors.As(err, &ve) || len(ve.Problems) != 1 {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if m.Config().Width != 1280 || m.Version() != 0 {
		t.Error("rejected update changed the config")
	}

	if _, err := m.Apply(Update{Preset: ptr("8k")}); err == nil {
		t.Error("unknown preset should fail")
	}
}

func TestOpen_MissingDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = 97

	cam, err := Open(cfg)
	if err == nil {
		cam.Close()
		t.Skip("a device answered on index 97")
	}
	if !errors.Is(err, blink.ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}

func TestOpenFile_Missing(t *testing.T) {
	_, err := FileOpener("/nonexistent/session.mp4")(blink.ReplayConfig())
	var de *blink.DeviceError
	if !errors.As(err, &de) || de.Device != "/nonexistent/session.mp4" {
		t.Errorf("Expected DeviceError for the file, got %v", err)
	}
}
