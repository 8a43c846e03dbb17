// Package engine is the coordination layer: one engine owns the mapping
// store, the dump codec, and the session stack, and exposes the operations
// the CLI and the HTTP surface call. All entry points take the engine lock,
// so callers on different goroutines (ticker vs HTTP) stay consistent.
package engine

import (
	"log/slog"
	"sync"

	"github.com/mty/chordtokit/bucket"
	"github.com/mty/chordtokit/config"
	"github.com/mty/chordtokit/constants"
	"github.com/mty/chordtokit/ddti"
	"github.com/mty/chordtokit/errs"
	"github.com/mty/chordtokit/mapping"
	"github.com/mty/chordtokit/model"
	"github.com/mty/chordtokit/session"
)

type Engine struct {
	mu    sync.Mutex
	log   *slog.Logger
	cfg   *config.Config
	midi  session.MIDI
	codec *ddti.Codec
	store *mapping.Store
	stack *session.Stack
}

// New wires an engine over an opened transport. A mapping persisted by a
// previous run is adopted immediately; edits still need a fresh dump
// capture before they can transmit.
func New(cfg *config.Config, m session.MIDI) *Engine {
	e := &Engine{
		log:   slog.Default().With("component", "engine"),
		cfg:   cfg,
		midi:  m,
		codec: ddti.New(),
		store: mapping.NewStore(),
		stack: session.NewStack(),
	}
	e.store.SetAllowDuplicates(cfg.GetBool("allow_duplicate_notes"))

	if persisted, ok := cfg.Mapping(); ok {
		if err := e.store.Learn(persisted.Notes()); err != nil {
			e.log.Warn("persisted mapping rejected", "err", err)
		} else {
			e.log.Info("persisted mapping adopted", "notes", persisted.Notes())
		}
	}
	return e
}

// Tick advances the active session, if any.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stack.Update()
}

// Active reports whether a capture session is running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stack.Len() > 0
}

// StartCapture pushes a new session of the given mode. Only one capture can
// run at a time.
func (e *Engine) StartCapture(mode session.Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stack.Len() > 0 {
		return errs.Preconditionf("a %s capture is already active",
			e.stack.Top().Mode().String())
	}

	s := session.New(mode, e.midi, e.codec, e.store, e.newBucket(mode))
	s.OnMappingLearned = e.persistMapping
	return e.stack.Push(s)
}

// StopCapture cancels the active session, if any.
func (e *Engine) StopCapture() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stack.Pop()
}

// Undo reverts the most recent mapping edit. It returns false with no error
// when there is nothing to undo.
func (e *Engine) Undo() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ok, err := e.store.Undo(e.midi)
	if ok {
		if m, has := e.store.Mapping(); has {
			e.persistMapping(m)
		}
	}
	return ok, err
}

func (e *Engine) HasMapping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.HasMapping()
}

// SetAllowDuplicates flips the duplicate-note policy for edits and future
// chord captures, and persists it.
func (e *Engine) SetAllowDuplicates(allow bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.SetAllowDuplicates(allow)
	e.cfg.Set("allow_duplicate_notes", allow)
}

// SetOctaveDown flips the octave-down-lowest chord policy and persists it.
func (e *Engine) SetOctaveDown(enable bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Set("octave_down_lowest", enable)
}

// ReopenPorts re-binds all MIDI ports.
func (e *Engine) ReopenPorts() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.midi.ReopenPorts()
}

// Status assembles the full observable state for the HTTP surface and the
// CLI display.
func (e *Engine) Status() model.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := model.EngineStatus{
		HasMapping:  e.store.HasMapping(),
		HasSnapshot: e.store.HasSnapshot(),
		UndoIDs:     e.store.UndoIDs(),
		Ports:       map[string]string{},
	}
	if m, ok := e.store.Mapping(); ok {
		st.Mapping = m.Notes()
	}
	if top := e.stack.Top(); top != nil {
		s := top.Status()
		st.Session = &s
	}
	for _, src := range []model.Source{model.SourceKeyboard, model.SourceDDTi} {
		if name, ok := e.midi.PortName(src); ok {
			st.Ports[src.String()] = name
		}
	}
	return st
}

// newBucket builds the chord accumulator for the mode. Only chord capture
// uses one; the pad-driven modes count hits themselves.
func (e *Engine) newBucket(mode session.Mode) *bucket.Bucket {
	if mode != session.ModeChord {
		return nil
	}
	return bucket.New(constants.ChordTarget, bucket.Policy{
		AllowDuplicates:  e.cfg.GetBool("allow_duplicate_notes"),
		OctaveDownLowest: e.cfg.GetBool("octave_down_lowest"),
	})
}

// persistMapping runs as the OnMappingLearned hook; the engine lock is
// already held by the session tick.
func (e *Engine) persistMapping(m model.Mapping) {
	e.cfg.SetMapping(m)
	e.log.Info("mapping persisted", "notes", m.Notes())
}
