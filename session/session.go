// Package session implements the capture state machines that turn raw MIDI
// input into chords and mapping edits. A session walks
//
//	Inactive → Activating → Listening → Complete → Inactive
//
// where Activating drains input arriving inside the activation guard
// window, and Complete holds for one second so the driving UI can show the
// result before the session retires itself.
package session

import (
	"log/slog"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/mty/chordtokit/bucket"
	"github.com/mty/chordtokit/constants"
	"github.com/mty/chordtokit/ddti"
	"github.com/mty/chordtokit/errs"
	"github.com/mty/chordtokit/mapping"
	"github.com/mty/chordtokit/model"
	"github.com/mty/chordtokit/util"
)

// MIDI is the transport surface a session consumes. midiio.Adapter
// implements it; tests use a scripted fake.
type MIDI interface {
	Pending(src model.Source) []model.Event
	DrainAll() int
	Send(wire []byte) error
	PortName(src model.Source) (string, bool)
	ReopenPorts() error
}

// Mode selects what a session does with captured notes.
type Mode int

const (
	// ModeChord captures a full chord from the keyboard and forwards it as
	// live trigger notes. The mapping is consulted, never altered.
	ModeChord Mode = iota

	// ModeLearn binds the four trigger slots from four distinct pad hits.
	ModeLearn

	// ModeSingle rebinds one trigger: a pad hit selects the slot, the next
	// keyboard note replaces it.
	ModeSingle

	// ModeSync waits for a manual bulk dump from the hardware and caches
	// it as the kit snapshot.
	ModeSync
)

func (m Mode) String() string {
	switch m {
	case ModeChord:
		return "chord"
	case ModeLearn:
		return "learn"
	case ModeSingle:
		return "single"
	case ModeSync:
		return "sync"
	}
	return "unknown"
}

// drumChannel is the zero-based MIDI channel chord playback goes out on
// (channel 10, the GM percussion channel).
const drumChannel = 9

// playVelocity is used for forwarded chord notes; the DDTi only cares
// about the onset.
const playVelocity = 100

// Session is one capture interaction. Exactly one session is updated per
// tick; the Stack enforces that.
type Session struct {
	log   *slog.Logger
	mode  Mode
	midi  MIDI
	codec *ddti.Codec
	store *mapping.Store
	buck  *bucket.Bucket
	now   func() time.Time

	// OnMappingLearned fires after a learn or sync adopts a new mapping,
	// so the engine can persist it.
	OnMappingLearned func(model.Mapping)

	state       model.SessionState
	guardUntil  time.Time
	completedAt time.Time
	deb         *debouncer

	learned  []uint8
	pending  *uint8 // single-note mode: selected trigger note
	captured []uint8
	lastErr  error
}

// New builds a session. codec may be nil for modes that never touch SysEx
// input (chord, learn, single).
func New(mode Mode, m MIDI, codec *ddti.Codec, store *mapping.Store, buck *bucket.Bucket) *Session {
	return &Session{
		log:   slog.Default().With("component", "session", "mode", mode.String()),
		mode:  mode,
		midi:  m,
		codec: codec,
		store: store,
		buck:  buck,
		now:   time.Now,
		deb:   newDebouncer(constants.HitDebounce),
	}
}

// SetClock overrides the monotonic time source. Tests only.
func (s *Session) SetClock(now func() time.Time) {
	s.now = now
	s.deb.now = now
}

func (s *Session) Mode() Mode                { return s.mode }
func (s *Session) State() model.SessionState { return s.state }

// Activate arms the session: clears accumulated state, opens the guard
// window, and drains whatever was already queued. Modes with prerequisites
// refuse to start so the UI can guide the user to the missing step.
func (s *Session) Activate() error {
	if s.mode == ModeSingle && !s.store.HasMapping() {
		return errs.Preconditionf("single-note capture needs a learned mapping")
	}
	if s.mode == ModeSingle && !s.store.HasSnapshot() {
		return errs.Preconditionf("single-note capture needs a captured kit dump")
	}

	now := s.now()
	s.state = model.StateActivating
	s.guardUntil = now.Add(constants.ActivationGuard)
	s.deb.reset()
	s.learned = nil
	s.pending = nil
	s.captured = nil
	s.lastErr = nil
	if s.buck != nil {
		s.buck.Activate()
	}
	drained := s.midi.DrainAll()
	s.log.Info("activated", "drained", drained)
	return nil
}

// Deactivate stops the session and drains input so nothing leaks into the
// next mode.
func (s *Session) Deactivate() {
	s.state = model.StateInactive
	drained := s.midi.DrainAll()
	s.log.Info("deactivated", "drained", drained)
}

// Update advances the session by one tick. It returns true once the session
// has retired itself (completion hold elapsed) and should be popped.
func (s *Session) Update() bool {
	now := s.now()

	switch s.state {
	case model.StateInactive:
		return true

	case model.StateActivating:
		if now.Before(s.guardUntil) {
			// Everything arriving now predates the guard boundary.
			s.discardStale()
			return false
		}
		s.state = model.StateListening
		s.log.Debug("guard window elapsed")
		fallthrough

	case model.StateListening:
		switch s.mode {
		case ModeChord:
			s.chordTick(now)
		case ModeLearn:
			s.learnTick(now)
		case ModeSingle:
			s.singleTick(now)
		case ModeSync:
			s.syncTick(now)
		}
		return false

	case model.StateComplete:
		if now.Sub(s.completedAt) >= constants.CompletionHold {
			s.Deactivate()
			return true
		}
		return false
	}
	return false
}

// Status returns the per-tick snapshot for the driving UI.
func (s *Session) Status() model.SessionStatus {
	st := model.SessionStatus{
		Mode:          s.mode.String(),
		State:         s.state.String(),
		LearnedNotes:  append([]uint8(nil), s.learned...),
		CapturedNotes: append([]uint8(nil), s.captured...),
	}
	if s.buck != nil {
		st.Bucket = s.buck.Status()
	}
	if s.pending != nil {
		n := *s.pending
		st.PendingTrigger = &n
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Session) complete(now time.Time) {
	s.state = model.StateComplete
	s.completedAt = now
	s.log.Info("capture complete", "notes", s.captured)
}

func (s *Session) discardStale() {
	n := len(s.midi.Pending(model.SourceKeyboard)) + len(s.midi.Pending(model.SourceDDTi))
	if n > 0 {
		s.log.Debug("discarded stale events", "count", n)
	}
}

// inGuard reports whether an event predates the activation guard boundary
// and must be excluded.
func (s *Session) inGuard(ev model.Event) bool {
	return ev.Timestamp.Before(s.guardUntil)
}

// --- chord mode ---

func (s *Session) chordTick(now time.Time) {
	// Pad input is irrelevant here but must not pile up.
	s.midi.Pending(model.SourceDDTi)

	for _, ev := range s.midi.Pending(model.SourceKeyboard) {
		if ev.Note == nil || ev.Note.Velocity == 0 || s.inGuard(ev) {
			continue
		}
		chord, done := s.buck.Accept(*ev.Note)
		if !done {
			continue
		}
		s.captured = chord
		s.deliverChord(chord)
		s.complete(now)
		return
	}
}

// deliverChord forwards a completed chord as live trigger notes: each chord
// note is ordered into its slot role (lowest drives the Kick, and so on) and
// converted to that slot's trigger note from the current mapping. Without a
// learned mapping the chord pitches go out as-is. Send failures are logged
// and abandoned; nothing in the engine changes.
func (s *Session) deliverChord(chord []uint8) {
	notes := bucket.SlotOrder(chord)
	if m, ok := s.store.Mapping(); ok && len(notes) == model.NumSlots {
		for i := range notes {
			notes[i] = m[i]
		}
	}
	for _, note := range notes {
		on := midi.NoteOn(drumChannel, note, playVelocity)
		off := midi.NoteOff(drumChannel, note)
		if err := s.midi.Send(on.Bytes()); err != nil {
			s.lastErr = err
			s.log.Warn("chord note send failed", "note", note, "err", err)
			continue
		}
		if err := s.midi.Send(off.Bytes()); err != nil {
			s.log.Warn("chord note-off send failed", "note", note, "err", err)
		}
	}
	s.log.Info("chord delivered", "chord", chord, "notes", notes)
}

// --- learn mode ---

func (s *Session) learnTick(now time.Time) {
	s.midi.Pending(model.SourceKeyboard)

	for _, ev := range s.midi.Pending(model.SourceDDTi) {
		if ev.Note == nil || s.inGuard(ev) {
			continue
		}
		if !s.acceptHit(*ev.Note) {
			continue
		}
		if containsNote(s.learned, ev.Note.Note) {
			s.log.Debug("trigger already learned", "note", ev.Note.Note)
			continue
		}

		slot := len(s.learned)
		s.learned = append(s.learned, ev.Note.Note)
		s.log.Info("trigger learned",
			"slot", model.SlotNames[slot], "note", util.NoteName(ev.Note.Note))

		if len(s.learned) < model.NumSlots {
			continue
		}
		if err := s.store.Learn(s.learned); err != nil {
			s.lastErr = err
			s.log.Warn("learn rejected", "err", err)
			s.learned = nil
			return
		}
		s.captured = append([]uint8(nil), s.learned...)
		if s.OnMappingLearned != nil {
			if m, ok := s.store.Mapping(); ok {
				s.OnMappingLearned(m)
			}
		}
		s.complete(now)
		return
	}
}

// --- single-note mode ---

func (s *Session) singleTick(now time.Time) {
	m, _ := s.store.Mapping()

	if s.pending == nil {
		for _, ev := range s.midi.Pending(model.SourceDDTi) {
			if ev.Note == nil || s.inGuard(ev) || !s.acceptHit(*ev.Note) {
				continue
			}
			if !m.Contains(ev.Note.Note) {
				s.log.Debug("hit not in mapping, ignoring", "note", ev.Note.Note)
				continue
			}
			n := ev.Note.Note
			s.pending = &n
			s.log.Info("trigger selected", "note", util.NoteName(n))
			break
		}
		return
	}

	for _, ev := range s.midi.Pending(model.SourceKeyboard) {
		if ev.Note == nil || ev.Note.Velocity == 0 || s.inGuard(ev) {
			continue
		}
		old, next := *s.pending, ev.Note.Note
		if err := s.store.EditOne(old, next, s.midi); err != nil {
			// Abandon the attempt; the user re-hits the trigger to retry.
			s.lastErr = err
			s.pending = nil
			s.log.Warn("edit abandoned", "err", err)
			return
		}
		s.captured = []uint8{old, next}
		s.midi.DrainAll()
		s.complete(now)
		return
	}
}

// --- sync (dump capture) mode ---

func (s *Session) syncTick(now time.Time) {
	s.midi.Pending(model.SourceKeyboard)

	for _, ev := range s.midi.Pending(model.SourceDDTi) {
		if ev.SysEx == nil {
			continue
		}
		if err := s.codec.IngestFrame(ev.SysEx); err != nil {
			// Recovered locally: the user re-triggers the dump.
			s.lastErr = err
			s.log.Warn("dump frame rejected", "err", err)
			continue
		}
		if !s.codec.HasCompleteDump() {
			continue
		}

		snap, err := s.codec.Snapshot()
		if err != nil {
			s.lastErr = err
			return
		}
		s.store.SetSnapshot(snap)

		m, err := s.codec.ExtractMapping()
		if err != nil {
			s.lastErr = err
			return
		}
		if err := s.store.Learn(m.Notes()); err != nil {
			// Keep the snapshot; the hardware kit simply violates the
			// current uniqueness policy.
			s.log.Warn("dump mapping not adopted", "err", err)
		} else if s.OnMappingLearned != nil {
			s.OnMappingLearned(m)
		}
		s.captured = m.Notes()
		s.complete(now)
		return
	}
}

// acceptHit applies the shared pad-hit discipline: velocity floor plus the
// per-note debounce window.
func (s *Session) acceptHit(ev model.NoteEvent) bool {
	if ev.Velocity < constants.MinVelocity {
		s.log.Debug("hit below velocity floor", "note", ev.Note, "velocity", ev.Velocity)
		return false
	}
	if !s.deb.accept(ev.Note) {
		s.log.Debug("hit debounced", "note", ev.Note)
		return false
	}
	return true
}

func containsNote(notes []uint8, n uint8) bool {
	for _, v := range notes {
		if v == n {
			return true
		}
	}
	return false
}
