package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mty/chordtokit/bucket"
	"github.com/mty/chordtokit/constants"
	"github.com/mty/chordtokit/ddti"
	"github.com/mty/chordtokit/errs"
	"github.com/mty/chordtokit/mapping"
	"github.com/mty/chordtokit/model"
)

// fakeMIDI is a scripted transport: tests queue events per source and
// inspect what got sent.
type fakeMIDI struct {
	kb       []model.Event
	ddti     []model.Event
	sent     [][]byte
	failSend error
}

func (f *fakeMIDI) Pending(src model.Source) []model.Event {
	var out []model.Event
	if src == model.SourceKeyboard {
		out, f.kb = f.kb, nil
	} else {
		out, f.ddti = f.ddti, nil
	}
	return out
}

func (f *fakeMIDI) DrainAll() int {
	n := len(f.kb) + len(f.ddti)
	f.kb, f.ddti = nil, nil
	return n
}

func (f *fakeMIDI) Send(wire []byte) error {
	if f.failSend != nil {
		return f.failSend
	}
	f.sent = append(f.sent, append([]byte(nil), wire...))
	return nil
}

func (f *fakeMIDI) PortName(model.Source) (string, bool) { return "fake", true }
func (f *fakeMIDI) ReopenPorts() error                   { return nil }

func (f *fakeMIDI) pushKey(at time.Time, note, vel uint8) {
	f.kb = append(f.kb, model.Event{
		Source:    model.SourceKeyboard,
		Timestamp: at,
		Note:      &model.NoteEvent{Note: note, Velocity: vel, Source: model.SourceKeyboard, Timestamp: at},
	})
}

func (f *fakeMIDI) pushPad(at time.Time, note, vel uint8) {
	f.ddti = append(f.ddti, model.Event{
		Source:    model.SourceDDTi,
		Timestamp: at,
		Note:      &model.NoteEvent{Note: note, Velocity: vel, Source: model.SourceDDTi, Timestamp: at},
	})
}

func (f *fakeMIDI) pushSysEx(at time.Time, frame []byte) {
	f.ddti = append(f.ddti, model.Event{
		Source:    model.SourceDDTi,
		Timestamp: at,
		SysEx:     append([]byte(nil), frame...),
	})
}

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Unix(1700000000, 0)}
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testSnapshot() model.KitSnapshot {
	snap := make(model.KitSnapshot, ddti.DumpLength)
	for i := range snap {
		snap[i] = byte(i % 0x70)
	}
	snap[ddti.NoteOffsets[0]] = 36
	snap[ddti.NoteOffsets[1]] = 38
	snap[ddti.NoteOffsets[2]] = 42
	snap[ddti.NoteOffsets[3]] = 51
	return snap
}

// newSession builds an activated session with the clock already advanced
// past the guard window.
func newSession(t *testing.T, mode Mode, f *fakeMIDI, store *mapping.Store) (*Session, *clock) {
	t.Helper()
	var buck *bucket.Bucket
	if mode == ModeChord {
		buck = bucket.New(constants.ChordTarget, bucket.Policy{})
	}
	s := New(mode, f, ddti.New(), store, buck)
	c := newClock()
	s.SetClock(c.now)
	assert.NoError(t, s.Activate())
	c.advance(constants.ActivationGuard + time.Millisecond)
	return s, c
}

func TestEventsInsideGuardWindowAreExcluded(t *testing.T) {
	f := &fakeMIDI{}
	s, c := newSession(t, ModeLearn, f, mapping.NewStore())

	stale := c.now().Add(-2 * constants.ActivationGuard)
	f.pushPad(stale, 36, 100)
	s.Update()

	assert := assert.New(t)
	assert.Empty(s.Status().LearnedNotes)

	f.pushPad(c.now(), 36, 100)
	s.Update()
	assert.Equal([]uint8{36}, s.Status().LearnedNotes)
}

func TestActivatingDrainsUntilGuardElapses(t *testing.T) {
	f := &fakeMIDI{}
	s := New(ModeLearn, f, nil, mapping.NewStore(), nil)
	c := newClock()
	s.SetClock(c.now)
	assert.NoError(t, s.Activate())

	assert := assert.New(t)
	assert.Equal(model.StateActivating, s.State())

	f.pushPad(c.now(), 36, 100)
	s.Update()
	assert.Equal(model.StateActivating, s.State())
	assert.Empty(f.ddti) // discarded, not kept for later

	c.advance(constants.ActivationGuard + time.Millisecond)
	s.Update()
	assert.Equal(model.StateListening, s.State())
}

func TestHitsBelowVelocityFloorAreIgnored(t *testing.T) {
	f := &fakeMIDI{}
	s, c := newSession(t, ModeLearn, f, mapping.NewStore())

	f.pushPad(c.now(), 36, constants.MinVelocity-1)
	s.Update()

	assert.Empty(t, s.Status().LearnedNotes)
}

func TestDebouncerBlocksRepeatHitInsideWindow(t *testing.T) {
	c := newClock()
	d := newDebouncer(constants.HitDebounce)
	d.now = c.now

	assert := assert.New(t)
	assert.True(d.accept(36))
	c.advance(constants.HitDebounce / 2)
	assert.False(d.accept(36))
	assert.True(d.accept(38)) // other notes are independent

	c.advance(constants.HitDebounce)
	assert.True(d.accept(36))
}

func TestLearnFourDistinctHitsBindsMapping(t *testing.T) {
	f := &fakeMIDI{}
	store := mapping.NewStore()
	s, c := newSession(t, ModeLearn, f, store)

	var learned []uint8
	s.OnMappingLearned = func(m model.Mapping) { learned = m.Notes() }

	for _, n := range []uint8{36, 38, 42, 51} {
		f.pushPad(c.now(), n, 100)
		s.Update()
		c.advance(constants.HitDebounce + time.Millisecond)
	}

	assert := assert.New(t)
	assert.Equal(model.StateComplete, s.State())
	assert.Equal([]uint8{36, 38, 42, 51}, learned)
	m, ok := store.Mapping()
	assert.True(ok)
	assert.Equal([]uint8{36, 38, 42, 51}, m.Notes())
	assert.Empty(store.UndoIDs())
}

func TestLearnIgnoresRepeatedPad(t *testing.T) {
	f := &fakeMIDI{}
	s, c := newSession(t, ModeLearn, f, mapping.NewStore())

	f.pushPad(c.now(), 36, 100)
	s.Update()
	c.advance(constants.HitDebounce + time.Millisecond)
	f.pushPad(c.now(), 36, 100)
	s.Update()

	assert.Equal(t, []uint8{36}, s.Status().LearnedNotes)
}

func TestCompleteSessionRetiresAfterHold(t *testing.T) {
	f := &fakeMIDI{}
	store := mapping.NewStore()
	s, c := newSession(t, ModeLearn, f, store)

	for _, n := range []uint8{36, 38, 42, 51} {
		f.pushPad(c.now(), n, 100)
		s.Update()
	}
	assert := assert.New(t)
	assert.Equal(model.StateComplete, s.State())

	assert.False(s.Update()) // hold not elapsed
	c.advance(constants.CompletionHold + time.Millisecond)
	assert.True(s.Update())
	assert.Equal(model.StateInactive, s.State())
}

func TestChordCaptureDeliversMappedTriggerNotes(t *testing.T) {
	f := &fakeMIDI{}
	store := mapping.NewStore()
	assert.NoError(t, store.Learn([]uint8{36, 38, 42, 51}))
	s, c := newSession(t, ModeChord, f, store)

	for _, n := range []uint8{64, 60, 67, 71} {
		f.pushKey(c.now(), n, 100)
	}
	s.Update()

	assert := assert.New(t)
	assert.Equal(model.StateComplete, s.State())

	// Four note-on/note-off pairs on the percussion channel. The chord is
	// converted through the mapping: the lowest chord note fires the Kick
	// trigger, the highest the Snare, then Hi-Hat and Ride.
	assert.Len(f.sent, 8)
	var ons []uint8
	for i := 0; i < len(f.sent); i += 2 {
		assert.Equal(byte(0x99), f.sent[i][0])
		ons = append(ons, f.sent[i][1])
	}
	assert.Equal([]uint8{36, 38, 42, 51}, ons)

	// Chord capture never rewrites the mapping.
	m, _ := store.Mapping()
	assert.Equal([]uint8{36, 38, 42, 51}, m.Notes())
}

func TestChordCaptureWithoutMappingForwardsChordPitches(t *testing.T) {
	f := &fakeMIDI{}
	s, c := newSession(t, ModeChord, f, mapping.NewStore())

	for _, n := range []uint8{64, 60, 67, 71} {
		f.pushKey(c.now(), n, 100)
	}
	s.Update()

	assert := assert.New(t)
	assert.Equal(model.StateComplete, s.State())
	assert.Len(f.sent, 8)
	assert.Equal(byte(60), f.sent[0][1])
	assert.Equal(byte(71), f.sent[2][1])
}

func TestChordCaptureIgnoresDuplicateNotes(t *testing.T) {
	f := &fakeMIDI{}
	s, c := newSession(t, ModeChord, f, mapping.NewStore())

	for _, n := range []uint8{60, 64, 60, 67} {
		f.pushKey(c.now(), n, 100)
	}
	s.Update()
	assert.Equal(t, model.StateListening, s.State())

	f.pushKey(c.now(), 71, 100)
	s.Update()
	assert.Equal(t, model.StateComplete, s.State())
	assert.Equal(t, []uint8{60, 64, 67, 71}, s.Status().CapturedNotes)
}

func TestSingleModeRequiresMappingAndSnapshot(t *testing.T) {
	f := &fakeMIDI{}
	store := mapping.NewStore()
	s := New(ModeSingle, f, nil, store, nil)

	assert := assert.New(t)
	assert.ErrorIs(s.Activate(), errs.ErrPrecondition)

	assert.NoError(store.Learn([]uint8{36, 38, 42, 51}))
	assert.ErrorIs(s.Activate(), errs.ErrPrecondition)

	store.SetSnapshot(testSnapshot())
	assert.NoError(s.Activate())
}

func TestSingleModeRebindsSelectedTrigger(t *testing.T) {
	f := &fakeMIDI{}
	store := mapping.NewStore()
	assert.NoError(t, store.Learn([]uint8{36, 38, 42, 51}))
	store.SetSnapshot(testSnapshot())
	s, c := newSession(t, ModeSingle, f, store)

	f.pushPad(c.now(), 38, 100)
	s.Update()
	assert := assert.New(t)
	assert.NotNil(s.Status().PendingTrigger)
	assert.Equal(uint8(38), *s.Status().PendingTrigger)

	f.pushKey(c.now(), 40, 100)
	s.Update()

	assert.Equal(model.StateComplete, s.State())
	m, _ := store.Mapping()
	assert.Equal([]uint8{36, 40, 42, 51}, m.Notes())
	assert.Len(store.UndoIDs(), 1)
	assert.Len(f.sent, 1)
}

func TestSingleModeIgnoresPadOutsideMapping(t *testing.T) {
	f := &fakeMIDI{}
	store := mapping.NewStore()
	assert.NoError(t, store.Learn([]uint8{36, 38, 42, 51}))
	store.SetSnapshot(testSnapshot())
	s, c := newSession(t, ModeSingle, f, store)

	f.pushPad(c.now(), 99, 100)
	s.Update()

	assert.Nil(t, s.Status().PendingTrigger)
}

func TestSingleModeAbandonsEditOnSendFailure(t *testing.T) {
	f := &fakeMIDI{failSend: errs.Transportf("port gone")}
	store := mapping.NewStore()
	assert.NoError(t, store.Learn([]uint8{36, 38, 42, 51}))
	store.SetSnapshot(testSnapshot())
	s, c := newSession(t, ModeSingle, f, store)

	f.pushPad(c.now(), 38, 100)
	s.Update()
	f.pushKey(c.now(), 40, 100)
	s.Update()

	assert := assert.New(t)
	assert.Equal(model.StateListening, s.State())
	assert.Nil(s.Status().PendingTrigger)
	assert.NotEmpty(s.Status().LastError)
	m, _ := store.Mapping()
	assert.Equal([]uint8{36, 38, 42, 51}, m.Notes())
}

func TestSyncModeAdoptsDumpAndMapping(t *testing.T) {
	f := &fakeMIDI{}
	store := mapping.NewStore()
	s, c := newSession(t, ModeSync, f, store)

	var learned []uint8
	s.OnMappingLearned = func(m model.Mapping) { learned = m.Notes() }

	for _, frame := range ddti.SplitFrames(ddti.FrameDump(testSnapshot())) {
		f.pushSysEx(c.now(), frame)
	}
	s.Update()

	assert := assert.New(t)
	assert.Equal(model.StateComplete, s.State())
	assert.True(store.HasSnapshot())
	assert.Equal(testSnapshot(), store.Snapshot())
	assert.Equal([]uint8{36, 38, 42, 51}, learned)
}

func TestSyncModeSurvivesRejectedFrame(t *testing.T) {
	f := &fakeMIDI{}
	s, c := newSession(t, ModeSync, f, mapping.NewStore())

	f.pushSysEx(c.now(), []byte{0xF0, 0x13, 0x37, 0xF7})
	s.Update()

	assert := assert.New(t)
	assert.Equal(model.StateListening, s.State())
	assert.NotEmpty(s.Status().LastError)

	for _, frame := range ddti.SplitFrames(ddti.FrameDump(testSnapshot())) {
		f.pushSysEx(c.now(), frame)
	}
	s.Update()
	assert.Equal(model.StateComplete, s.State())
}

func TestStackPopsRetiredSession(t *testing.T) {
	f := &fakeMIDI{}
	store := mapping.NewStore()
	st := NewStack()

	s := New(ModeLearn, f, nil, store, nil)
	c := newClock()
	s.SetClock(c.now)
	assert := assert.New(t)
	assert.NoError(st.Push(s))
	assert.Equal(1, st.Len())

	c.advance(constants.ActivationGuard + time.Millisecond)
	st.Update()
	for _, n := range []uint8{36, 38, 42, 51} {
		f.pushPad(c.now(), n, 100)
		st.Update()
	}
	assert.Equal(model.StateComplete, s.State())

	c.advance(constants.CompletionHold + time.Millisecond)
	st.Update()
	assert.Equal(0, st.Len())
}

func TestStackRefusesSessionThatCannotActivate(t *testing.T) {
	f := &fakeMIDI{}
	st := NewStack()
	s := New(ModeSingle, f, nil, mapping.NewStore(), nil)

	assert.Error(t, st.Push(s))
	assert.Equal(t, 0, st.Len())
}
