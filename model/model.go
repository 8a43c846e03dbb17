package model

import "time"

// Source identifies which physical device produced an event.
type Source int

const (
	SourceKeyboard Source = iota
	SourceDDTi
)

func (s Source) String() string {
	switch s {
	case SourceKeyboard:
		return "keyboard"
	case SourceDDTi:
		return "ddti"
	}
	return "unknown"
}

// NumSlots is the number of physical trigger pads on the DDTi.
const NumSlots = 4

// SlotNames are the trigger slots in wire order.
var SlotNames = [NumSlots]string{"Kick", "Snare", "Hi-Hat", "Ride"}

// NoteEvent is one note-on as seen by the engine. Immutable and ephemeral.
type NoteEvent struct {
	Note      uint8
	Velocity  uint8
	Source    Source
	Timestamp time.Time
}

// Event is one item drained from a MIDI input queue: either a note or a raw
// SysEx frame payload (without the surrounding F0/F7).
type Event struct {
	Source    Source
	Timestamp time.Time
	Note      *NoteEvent
	SysEx     []byte
}

// Mapping binds each trigger slot to a MIDI note, in slot order
// Kick, Snare, Hi-Hat, Ride.
type Mapping [NumSlots]uint8

// IndexOf returns the first slot currently bound to note, or -1.
func (m Mapping) IndexOf(note uint8) int {
	for i, n := range m {
		if n == note {
			return i
		}
	}
	return -1
}

func (m Mapping) Contains(note uint8) bool {
	return m.IndexOf(note) >= 0
}

// Notes returns the mapping as a plain slice copy.
func (m Mapping) Notes() []uint8 {
	out := make([]uint8, NumSlots)
	copy(out, m[:])
	return out
}

// KitSnapshot is the raw reassembled payload of the last fully-ingested
// kit0 bulk dump. Apart from the four trigger-note fields every byte is
// opaque and must be preserved verbatim across edits.
type KitSnapshot []byte

func (k KitSnapshot) Clone() KitSnapshot {
	if k == nil {
		return nil
	}
	out := make(KitSnapshot, len(k))
	copy(out, k)
	return out
}

// UndoEntry is the pre-edit state pushed immediately before a mutating edit.
type UndoEntry struct {
	ID       string
	Mapping  Mapping
	Snapshot KitSnapshot
}

// SessionState is the capture session lifecycle.
type SessionState int

const (
	StateInactive SessionState = iota
	StateActivating
	StateListening
	StateComplete
)

func (s SessionState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActivating:
		return "activating"
	case StateListening:
		return "listening"
	case StateComplete:
		return "complete"
	}
	return "unknown"
}

// BucketStatus is a read-only snapshot of chord accumulation progress.
type BucketStatus struct {
	Notes    []uint8 `json:"notes"`
	Target   int     `json:"target"`
	Complete bool    `json:"complete"`
}

// SessionStatus is the per-tick snapshot exposed to the driving UI.
type SessionStatus struct {
	Mode           string       `json:"mode"`
	State          string       `json:"state"`
	Bucket         BucketStatus `json:"bucket"`
	LearnedNotes   []uint8      `json:"learned_notes,omitempty"`
	PendingTrigger *uint8       `json:"pending_trigger,omitempty"`
	CapturedNotes  []uint8      `json:"captured_notes,omitempty"`
	LastError      string       `json:"last_error,omitempty"`
}

// EngineStatus is the whole-engine snapshot served by the status API.
type EngineStatus struct {
	Session     *SessionStatus    `json:"session,omitempty"`
	HasMapping  bool              `json:"has_mapping"`
	Mapping     []uint8           `json:"mapping,omitempty"`
	HasSnapshot bool              `json:"has_snapshot"`
	UndoIDs     []string          `json:"undo_ids"`
	Ports       map[string]string `json:"ports"`
}
