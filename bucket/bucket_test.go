package bucket

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mty/chordtokit/model"
)

func note(n uint8) model.NoteEvent {
	return model.NoteEvent{Note: n, Velocity: 100}
}

func TestDuplicateNotesAreCountedOnce(t *testing.T) {
	b := New(4, Policy{})

	assert := assert.New(t)
	var chord []uint8
	var done bool
	for _, n := range []uint8{60, 64, 60, 67} {
		chord, done = b.Accept(note(n))
		assert.False(done)
		assert.Nil(chord)
	}
	chord, done = b.Accept(note(71))

	assert.True(done)
	assert.Equal([]uint8{60, 64, 67, 71}, chord)
}

func TestDuplicatesKeptWhenPolicyAllows(t *testing.T) {
	b := New(4, Policy{AllowDuplicates: true})

	b.Accept(note(60))
	b.Accept(note(64))
	b.Accept(note(60))
	chord, done := b.Accept(note(67))

	assert.True(t, done)
	assert.Equal(t, []uint8{60, 64, 60, 67}, chord)
}

func TestOctaveDownLowestAppliesOnceAtCompletion(t *testing.T) {
	b := New(4, Policy{OctaveDownLowest: true})

	b.Accept(note(64))
	b.Accept(note(60))
	b.Accept(note(67))
	chord, done := b.Accept(note(71))

	assert.True(t, done)
	assert.Equal(t, []uint8{64, 48, 67, 71}, chord)
}

func TestOctaveDownClampsAtZero(t *testing.T) {
	b := New(4, Policy{OctaveDownLowest: true})

	b.Accept(note(5))
	b.Accept(note(60))
	b.Accept(note(64))
	chord, done := b.Accept(note(67))

	assert.True(t, done)
	assert.Equal(t, uint8(0), chord[0])
}

func TestCompletionClearsNotesAndLatchesStatus(t *testing.T) {
	b := New(2, Policy{})

	_, done := b.Accept(note(60))
	assert.False(t, done)
	_, done = b.Accept(note(64))
	assert.True(t, done)

	st := b.Status()
	assert.Empty(t, st.Notes)
	assert.True(t, st.Complete)
}

func TestActivateClearsCompletionLatch(t *testing.T) {
	b := New(2, Policy{})
	b.Accept(note(60))
	b.Accept(note(64))
	assert.True(t, b.Status().Complete)

	b.Activate()

	assert.False(t, b.Status().Complete)
}

func TestSetPolicyClearsAccumulatedNotes(t *testing.T) {
	b := New(4, Policy{})
	b.Accept(note(60))

	b.SetPolicy(Policy{AllowDuplicates: true})

	assert.Empty(t, b.Status().Notes)
}

func TestStatusReportsProgress(t *testing.T) {
	b := New(4, Policy{})
	b.Accept(note(60))
	b.Accept(note(64))

	st := b.Status()

	assert := assert.New(t)
	assert.Equal([]uint8{60, 64}, st.Notes)
	assert.Equal(4, st.Target)
	assert.False(st.Complete)
}

func TestSlotOrderAssignsChordRoles(t *testing.T) {
	// Kick lowest, Snare highest, Hi-Hat and Ride the middle pair.
	got := SlotOrder([]uint8{64, 48, 67, 71})
	assert.Equal(t, []uint8{48, 71, 67, 64}, got)
}

func TestSlotOrderSortsShortChordsAscending(t *testing.T) {
	got := SlotOrder([]uint8{67, 60, 64})
	assert.Equal(t, []uint8{60, 64, 67}, got)
}
