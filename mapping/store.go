// Package mapping owns the current trigger→note mapping, the cached kit
// snapshot, and the undo history.
package mapping

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/mty/chordtokit/constants"
	"github.com/mty/chordtokit/ddti"
	"github.com/mty/chordtokit/errs"
	"github.com/mty/chordtokit/model"
)

// Sender transmits raw SysEx bytes to the DDTi.
type Sender interface {
	Send(wire []byte) error
}

// Store holds the in-memory mapping state. Edits are transactional against
// the wire: nothing in memory changes unless the transmit succeeded, so a
// failed send can never leave the module and the engine disagreeing.
type Store struct {
	log             *slog.Logger
	allowDuplicates bool

	cur      model.Mapping
	has      bool
	snapshot model.KitSnapshot
	undo     []model.UndoEntry
}

func NewStore() *Store {
	return &Store{log: slog.Default().With("component", "mapping")}
}

// SetAllowDuplicates changes the uniqueness policy for future edits.
func (s *Store) SetAllowDuplicates(allow bool) {
	s.allowDuplicates = allow
}

func (s *Store) HasMapping() bool {
	return s.has
}

// Mapping returns the current mapping, if one has been learned or loaded.
func (s *Store) Mapping() (model.Mapping, bool) {
	return s.cur, s.has
}

// HasSnapshot reports whether a kit0 dump has been captured this process.
func (s *Store) HasSnapshot() bool {
	return s.snapshot != nil
}

// Snapshot returns the cached raw kit0 dump.
func (s *Store) Snapshot() model.KitSnapshot {
	return s.snapshot.Clone()
}

// SetSnapshot caches a freshly captured kit0 dump as the patch template.
func (s *Store) SetSnapshot(snap model.KitSnapshot) {
	s.snapshot = snap.Clone()
	s.log.Info("kit snapshot cached", "bytes", len(snap))
}

// Learn replaces the mapping wholesale. Establishing a baseline is distinct
// from editing one, so no undo entry is pushed and nothing is transmitted.
func (s *Store) Learn(notes []uint8) error {
	if len(notes) != model.NumSlots {
		return errs.Validationf("need exactly %d notes, got %d", model.NumSlots, len(notes))
	}
	if err := s.checkUnique(notes); err != nil {
		return err
	}
	for i, n := range notes {
		if n > 0x7F {
			return errs.Validationf("note %d out of MIDI range", n)
		}
		s.cur[i] = n
	}
	s.has = true
	s.log.Info("mapping learned", "notes", s.cur.Notes())
	return nil
}

// EditOne rebinds the first slot currently holding oldNote to newNote,
// transmits the rebuilt kit dump, and commits in-memory state only if the
// transmit succeeded. The pre-edit state becomes the newest undo entry.
func (s *Store) EditOne(oldNote, newNote uint8, tx Sender) error {
	if !s.has {
		return errs.Preconditionf("no learned mapping")
	}
	if s.snapshot == nil {
		return errs.Preconditionf("no cached kit snapshot; capture a dump first")
	}
	idx := s.cur.IndexOf(oldNote)
	if idx < 0 {
		return errs.Validationf("note %d not bound to any trigger", oldNote)
	}

	candidate := s.cur
	candidate[idx] = newNote
	if err := s.checkUnique(candidate.Notes()); err != nil {
		return err
	}

	patched, err := ddti.PatchSnapshot(candidate, s.snapshot)
	if err != nil {
		return err
	}
	entry := model.UndoEntry{
		ID:       uuid.New().String(),
		Mapping:  s.cur,
		Snapshot: s.snapshot.Clone(),
	}

	if err := tx.Send(ddti.FrameDump(patched)); err != nil {
		s.log.Warn("edit transmit failed, state unchanged", "err", err)
		return errs.Transportf("edit send failed: %v", err)
	}

	s.cur = candidate
	s.snapshot = patched
	s.pushUndo(entry)
	s.log.Info("trigger rebound",
		"slot", model.SlotNames[idx], "old", oldNote, "new", newNote, "undo", entry.ID)
	return nil
}

// Undo pops the most recent entry and retransmits its stored kit bytes
// verbatim, restoring module and memory to that exact prior state. It
// returns false when the stack is empty. On transport failure the entry
// stays on the stack and nothing is restored.
func (s *Store) Undo(tx Sender) (bool, error) {
	if len(s.undo) == 0 {
		s.log.Info("undo: history empty")
		return false, nil
	}
	entry := s.undo[len(s.undo)-1]

	if err := tx.Send(ddti.FrameDump(entry.Snapshot)); err != nil {
		return false, errs.Transportf("undo send failed: %v", err)
	}

	s.undo = s.undo[:len(s.undo)-1]
	s.cur = entry.Mapping
	s.has = true
	s.snapshot = entry.Snapshot
	s.log.Info("undo applied", "id", entry.ID, "notes", s.cur.Notes())
	return true, nil
}

// UndoIDs lists pending undo entries, newest last.
func (s *Store) UndoIDs() []string {
	ids := make([]string, len(s.undo))
	for i, e := range s.undo {
		ids[i] = e.ID
	}
	return ids
}

func (s *Store) pushUndo(entry model.UndoEntry) {
	s.undo = append(s.undo, entry)
	if len(s.undo) > constants.UndoDepth {
		s.undo = s.undo[1:]
	}
}

func (s *Store) checkUnique(notes []uint8) error {
	if s.allowDuplicates {
		return nil
	}
	seen := make(map[uint8]bool, len(notes))
	for _, n := range notes {
		if seen[n] {
			return errs.Validationf("duplicate note %d in mapping", n)
		}
		seen[n] = true
	}
	return nil
}
