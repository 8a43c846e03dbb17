// Package config persists user-tunable settings and the learned mapping as
// a flat JSON file. Writes go through a short debounce so bursts of edits
// coalesce into one flash write.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/mty/chordtokit/constants"
	"github.com/mty/chordtokit/errs"
	"github.com/mty/chordtokit/model"
)

// saveDelay is how long Set-driven saves coalesce before hitting disk.
const saveDelay = 500 * time.Millisecond

func defaults() map[string]any {
	return map[string]any{
		"midi_in_substr":          "keystep",
		"ddti_in_substr":          "triggerio",
		"midi_out_substr":         "triggerio",
		"allow_duplicate_notes":   false,
		"octave_down_lowest":      false,
		"footswitch_capture_mode": "chord",
		"learned_mapping":         []any{},
	}
}

// Config is a concurrency-safe key/value store over one JSON file.
type Config struct {
	log  *slog.Logger
	path string

	mu     sync.Mutex
	values map[string]any
	deb    func(func())
}

// Load reads the file at path (constants.ConfigPath() by default) and
// overlays it on the defaults. A missing or corrupt file is not an error:
// the user gets defaults and the next save rewrites the file.
func Load(path string) *Config {
	if path == "" {
		path = constants.ConfigPath()
	}
	c := &Config{
		log:    slog.Default().With("component", "config"),
		path:   path,
		values: defaults(),
		deb:    debounce.New(saveDelay),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("config unreadable, using defaults", "path", path, "err", err)
		}
		return c
	}
	var loaded map[string]any
	if err := json.Unmarshal(raw, &loaded); err != nil {
		c.log.Warn("config corrupt, using defaults", "path", path, "err", err)
		return c
	}
	for k, v := range loaded {
		c.values[k] = v
	}
	c.log.Info("config loaded", "path", path)
	return c
}

// Path returns the backing file location.
func (c *Config) Path() string {
	return c.path
}

// GetBool returns a boolean setting, or false if missing or mistyped.
func (c *Config) GetBool(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, _ := c.values[key].(bool)
	return b
}

// GetString returns a string setting, or "" if missing or mistyped.
func (c *Config) GetString(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, _ := c.values[key].(string)
	return s
}

// Set stores a value and schedules a debounced save.
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
	c.SaveSoon()
}

// SaveSoon schedules a save; rapid calls collapse into one write.
func (c *Config) SaveSoon() {
	c.deb(func() {
		if err := c.Save(); err != nil {
			c.log.Warn("deferred save failed", "err", err)
		}
	})
}

// Save writes the current values atomically (temp file, then rename).
func (c *Config) Save() error {
	c.mu.Lock()
	raw, err := json.MarshalIndent(c.values, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return errs.Validationf("marshal config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return errs.Transportf("config dir: %v", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errs.Transportf("write config: %v", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return errs.Transportf("commit config: %v", err)
	}
	c.log.Debug("config saved", "path", c.path)
	return nil
}

// SetMapping persists a learned mapping.
func (c *Config) SetMapping(m model.Mapping) {
	notes := make([]any, model.NumSlots)
	for i, n := range m.Notes() {
		notes[i] = float64(n)
	}
	c.Set("learned_mapping", notes)
}

// Mapping returns the persisted mapping, if a valid one is stored.
func (c *Config) Mapping() (model.Mapping, bool) {
	c.mu.Lock()
	raw, _ := c.values["learned_mapping"].([]any)
	c.mu.Unlock()

	if len(raw) != model.NumSlots {
		return model.Mapping{}, false
	}
	var m model.Mapping
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok || f < 0 || f > 0x7F {
			return model.Mapping{}, false
		}
		m[i] = uint8(f)
	}
	return m, true
}
