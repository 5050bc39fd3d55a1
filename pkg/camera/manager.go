package camera

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Presets are named capture sizes selectable from the dashboard. "low"
// keeps detection responsive on a Raspberry Pi class host.
var Presets = map[string]func(Config) Config{
	"default": func(c Config) Config {
		c.Width, c.Height, c.FPS = 640, 480, 15
		return c
	},
	"low": func(c Config) Config {
		c.Width, c.Height, c.FPS = 320, 240, 20
		return c
	},
	"720p": func(c Config) Config {
		c.Width, c.Height, c.FPS = 1280, 720, 10
		return c
	},
}

// Update is a partial change to a Config. Nil fields are left alone.
type Update struct {
	Preset      string
	Device      *int
	Width       *int
	Height      *int
	FPS         *int
	JPEGQuality *int
}

// ParseUpdate decodes a JSON update body. "camera_index" (or "device")
// set to null selects AutoDevice; a negative index is rejected.
func ParseUpdate(body []byte) (Update, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Update{}, errors.New("invalid body")
	}

	var u Update
	if p, ok := raw["preset"]; ok {
		if err := json.Unmarshal(p, &u.Preset); err != nil {
			return Update{}, errors.New("invalid preset")
		}
	}
	for _, key := range []string{"camera_index", "device"} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if string(v) == "null" {
			auto := AutoDevice
			u.Device = &auto
			continue
		}
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return Update{}, errors.New("invalid camera index")
		}
		if n < 0 {
			return Update{}, errors.New("camera index must be non-negative")
		}
		u.Device = &n
	}
	for key, dst := range map[string]**int{
		"width":        &u.Width,
		"height":       &u.Height,
		"fps":          &u.FPS,
		"jpeg_quality": &u.JPEGQuality,
	} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return Update{}, fmt.Errorf("invalid %s", key)
		}
		*dst = &n
	}
	return u, nil
}

// apply returns cfg with u applied. A preset is applied before the
// individual fields and keeps the current device.
func (u Update) apply(cfg Config) (Config, error) {
	if u.Preset != "" {
		preset, ok := Presets[u.Preset]
		if !ok {
			return cfg, fmt.Errorf("unknown preset: %s", u.Preset)
		}
		cfg = preset(cfg)
	}
	set := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.Device, u.Device)
	set(&cfg.Width, u.Width)
	set(&cfg.Height, u.Height)
	set(&cfg.FPS, u.FPS)
	set(&cfg.JPEGQuality, u.JPEGQuality)
	return cfg, nil
}

// Manager owns the live capture settings.
type Manager struct {
	mu  sync.RWMutex
	cfg Config

	// OnConfigChange runs after every accepted change, typically to reopen
	// the device. Its error is returned to the caller but the new config
	// stays in effect.
	OnConfigChange func(cfg Config) error
}

// NewManager creates a manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Config returns the current settings.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Set replaces the settings after validating them.
func (m *Manager) Set(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid camera config: %s", strings.Join(errs, "; "))
	}
	m.mu.Lock()
	m.cfg = cfg
	apply := m.OnConfigChange
	m.mu.Unlock()

	if apply == nil {
		return nil
	}
	if err := apply(cfg); err != nil {
		return fmt.Errorf("apply camera config: %w", err)
	}
	return nil
}

// Apply merges u into the current settings.
func (m *Manager) Apply(u Update) error {
	cfg, err := u.apply(m.Config())
	if err != nil {
		return err
	}
	return m.Set(cfg)
}
