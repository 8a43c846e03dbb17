// Package bucket accumulates incoming note events into chords.
package bucket

import (
	"log/slog"
	"sort"

	"github.com/mty/chordtokit/model"
	"github.com/mty/chordtokit/util"
)

// Policy controls how notes fold into the bucket.
type Policy struct {
	// AllowDuplicates keeps repeated note numbers instead of counting each
	// note once.
	AllowDuplicates bool

	// OctaveDownLowest shifts the lowest note of the finished chord down an
	// octave (clamped at 0). Applied once, at completion, never per event.
	OctaveDownLowest bool
}

// Bucket collects note-on events until the target count is reached.
// One bucket serves one capture session; not safe for concurrent use.
type Bucket struct {
	log    *slog.Logger
	policy Policy
	target int
	notes  []uint8
	done   bool
}

func New(target int, policy Policy) *Bucket {
	return &Bucket{
		log:    slog.Default().With("component", "bucket"),
		policy: policy,
		target: target,
	}
}

// Activate clears any accumulated notes and the completion latch.
func (b *Bucket) Activate() {
	if len(b.notes) > 0 {
		b.log.Debug("cleared notes", "count", len(b.notes))
	}
	b.notes = b.notes[:0]
	b.done = false
}

// SetPolicy swaps the accumulation policy and clears the bucket: notes
// collected under the old policy would not compare meaningfully.
func (b *Bucket) SetPolicy(p Policy) {
	b.policy = p
	b.Activate()
}

// Accept folds one note event into the bucket. It returns the completed
// chord and true once the target count is reached; the bucket is cleared
// for the next capture at that point.
func (b *Bucket) Accept(ev model.NoteEvent) ([]uint8, bool) {
	if !b.policy.AllowDuplicates && b.contains(ev.Note) {
		b.log.Debug("duplicate note ignored", "note", ev.Note)
		return nil, false
	}
	b.notes = append(b.notes, ev.Note)
	if len(b.notes) < b.target {
		return nil, false
	}

	chord := make([]uint8, b.target)
	copy(chord, b.notes[:b.target])
	b.notes = b.notes[:0]
	b.done = true

	if b.policy.OctaveDownLowest {
		octaveDownLowest(chord)
	}
	return chord, true
}

// Status returns a read-only snapshot for display purposes. Complete latches
// once a chord has been produced and clears on the next Activate.
func (b *Bucket) Status() model.BucketStatus {
	notes := make([]uint8, len(b.notes))
	copy(notes, b.notes)
	return model.BucketStatus{
		Notes:    notes,
		Target:   b.target,
		Complete: b.done,
	}
}

func (b *Bucket) contains(note uint8) bool {
	for _, n := range b.notes {
		if n == note {
			return true
		}
	}
	return false
}

// octaveDownLowest transposes the lowest chord note down 12 semitones,
// clamped at MIDI note 0.
func octaveDownLowest(chord []uint8) {
	if len(chord) == 0 {
		return
	}
	lowest := 0
	for i, n := range chord {
		if n < chord[lowest] {
			lowest = i
		}
	}
	chord[lowest] = uint8(util.Clamp(int(chord[lowest])-12, 0, 0x7F))
}

// SlotOrder arranges a completed 4-note chord into trigger-slot order:
// Kick gets the lowest note, Snare the highest, Hi-Hat and Ride the second
// and third highest. Shorter chords are returned pitch-sorted ascending.
func SlotOrder(chord []uint8) []uint8 {
	out := make([]uint8, len(chord))
	copy(out, chord)
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	if len(out) != model.NumSlots {
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out
	}
	// out is [highest, 2nd, 3rd, lowest]
	return []uint8{out[3], out[0], out[1], out[2]}
}
