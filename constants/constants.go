package constants

import (
	"os"
	"path/filepath"
	"time"
)

// Timing calibrated against the physical hardware. The activation guard
// flushes MIDI that was already in flight when a capture mode was entered;
// the debounce absorbs piezo contact bounce on the DDTi pads.
const (
	ActivationGuard = 40 * time.Millisecond
	HitDebounce     = 120 * time.Millisecond
	MinVelocity     = 8
	CompletionHold  = time.Second
)

const (
	ChordTarget = 4
	UndoDepth   = 8
)

// TickInterval is the cadence the driving loop polls the session stack at.
const TickInterval = 30 * time.Millisecond

// ConfigPath resolves the on-disk config location. CHORDTOKIT_CONFIG wins;
// otherwise the platform config dir is used.
func ConfigPath() string {
	if path := os.Getenv("CHORDTOKIT_CONFIG"); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(dir, "chordtokit", "config.json")
}
