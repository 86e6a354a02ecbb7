package camera

import "sort"

// Preset names.
const (
	PresetDefault = "default"
	PresetLegacy  = "legacy"
	Preset1080p   = "1080p"
	PresetMirror  = "mirror"
)

var presets = map[string]func() Config{
	PresetDefault: DefaultConfig,
	PresetLegacy:  LegacyConfig,
	Preset1080p: func() Config {
		// More eye detail, slower detection per frame.
		cfg := DefaultConfig()
		cfg.Width, cfg.Height = 1920, 1080
		return cfg
	},
	PresetMirror: func() Config {
		cfg := DefaultConfig()
		cfg.Mirror = true
		return cfg
	},
}

// Preset returns the named configuration.
func Preset(name string) (Config, bool) {
	fn, ok := presets[name]
	if !ok {
		return Config{}, false
	}
	return fn(), true
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
