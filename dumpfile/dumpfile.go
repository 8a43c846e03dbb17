// Package dumpfile reads and writes captured kit dumps as single-track
// Standard MIDI Files, so a dump saved here can also be replayed into the
// hardware by any off-the-shelf SysEx utility.
package dumpfile

import (
	"bytes"
	"os"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/mty/chordtokit/errs"
)

// Write saves the raw dump frames (each without the 0xF0/0xF7 framing) to a
// single-track SMF at path.
func Write(path string, frames [][]byte) error {
	if len(frames) == 0 {
		return errs.Preconditionf("no frames to write")
	}

	var track smf.Track
	for _, frame := range frames {
		track.Add(0, midi.SysEx(frame))
	}
	track.Close(0)

	s := smf.New()
	if err := s.Add(track); err != nil {
		return errs.Validationf("build dump file: %v", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return errs.Validationf("encode dump file: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errs.Transportf("write %s: %v", path, err)
	}
	return nil
}

// Read loads the SysEx frames back out of a dump file written by Write.
// The smf parser panics on some malformed inputs, so that is recovered and
// reported as a decode error.
// https://github.com/gomidi/midi/issues/20
func Read(path string) (frames [][]byte, e error) {
	defer func() {
		if r := recover(); r != nil {
			frames, e = nil, errs.Decodef("parse %s: %v", path, r)
		}
	}()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Transportf("read %s: %v", path, err)
	}
	s, err := smf.ReadFrom(bytes.NewReader(raw))
	if err != nil {
		return nil, errs.Decodef("parse %s: %v", path, err)
	}

	for _, track := range s.Tracks {
		for _, ev := range track {
			var bt []byte
			if ev.Message.GetSysEx(&bt) {
				frames = append(frames, append([]byte(nil), bt...))
			}
		}
	}
	if len(frames) == 0 {
		return nil, errs.Decodef("%s contains no sysex frames", path)
	}
	return frames, nil
}
