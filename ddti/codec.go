// Package ddti implements the SysEx bulk-dump codec for the Alesis Trigger
// iO ("DDTi") drum-trigger module.
//
// The format is undocumented. Everything below — the frame header, the
// byte-sum checksum rule, the 90-byte reassembled dump length, and the four
// trigger-note offsets — was captured from real hardware dumps and has to be
// reproduced bit-for-bit. Outgoing dumps are built with a template patch:
// the cached dump is copied, only the four note fields are overwritten, and
// every other byte is retransmitted verbatim so unknown kit parameters
// survive untouched.
package ddti

import (
	"bytes"
	"log/slog"

	"github.com/mty/chordtokit/errs"
	"github.com/mty/chordtokit/model"
	"github.com/mty/chordtokit/util"
)

// Frame layout, bytes between F0 and F7:
//
//	00 00 0E 19 0A <seq> <total> <len> <data…len> <cks>
const (
	sysexStart = 0xF0
	sysexEnd   = 0xF7

	headerLen    = 8  // prefix(5) + seq + total + len
	maxFrameData = 32 // largest data block observed in a hardware dump

	// DumpLength is the reassembled size of one kit0 bulk dump.
	DumpLength = 90
)

// framePrefix is the Alesis manufacturer ID followed by the Trigger iO
// kit-dump opcode.
var framePrefix = []byte{0x00, 0x00, 0x0E, 0x19, 0x0A}

// NoteOffsets are the trigger-note byte positions inside the reassembled
// dump: trigger 1 at 11, subsequent triggers one parameter tuple apart.
var NoteOffsets = [model.NumSlots]int{11, 17, 23, 29}

// Checksum is the per-frame byte-sum checksum: the low seven bits of
// whatever brings seq+total+len+data to a multiple of 128.
func Checksum(seq, total, length byte, data []byte) byte {
	sum := int(seq) + int(total) + int(length)
	for _, b := range data {
		sum += int(b)
	}
	return byte((128 - sum%128) % 128)
}

// Codec reassembles incoming bulk-dump frames into a kit0 snapshot.
// It is not safe for concurrent use; the engine drives it from one loop.
type Codec struct {
	log      *slog.Logger
	buf      []byte
	nextSeq  byte
	total    byte
	complete bool
}

func New() *Codec {
	return &Codec{log: slog.Default().With("component", "ddti")}
}

// Reset drops any in-progress or completed dump buffer. The caller must
// re-trigger a dump on the hardware to recover.
func (c *Codec) Reset() {
	c.buf = nil
	c.nextSeq = 0
	c.total = 0
	c.complete = false
}

// IngestFrame folds one SysEx frame into the in-progress dump buffer.
// payload is the frame content without the surrounding F0/F7 (a framed
// payload is tolerated and stripped).
//
// A malformed frame — bad header, bad length, out-of-order sequence — resets
// the buffer and returns a decode error. A checksum mismatch discards only
// the offending frame; the buffer is left as it was.
func (c *Codec) IngestFrame(payload []byte) error {
	p := payload
	if len(p) > 0 && p[0] == sysexStart {
		p = p[1:]
	}
	if len(p) > 0 && p[len(p)-1] == sysexEnd {
		p = p[:len(p)-1]
	}

	if len(p) < headerLen+1 {
		c.Reset()
		return errs.Decodef("frame too short: %d bytes", len(p))
	}
	if !bytes.HasPrefix(p, framePrefix) {
		c.Reset()
		return errs.Decodef("unknown frame header % X", p[:util.Min(len(p), len(framePrefix))])
	}

	seq, total, length := p[5], p[6], p[7]
	body := p[headerLen : len(p)-1]
	cks := p[len(p)-1]

	if int(length) != len(body) || length > maxFrameData {
		c.Reset()
		return errs.Decodef("frame %d: length field %d does not match %d data bytes", seq, length, len(body))
	}
	if Checksum(seq, total, length, body) != cks {
		// Frame is dropped; anything already buffered stays valid.
		return errs.Decodef("frame %d: checksum mismatch", seq)
	}

	// A completed dump followed by a fresh frame 0 means the user triggered
	// another dump on the hardware; start over.
	if c.complete && seq == 0 {
		c.Reset()
	}

	if seq != c.nextSeq || (seq > 0 && total != c.total) {
		c.Reset()
		return errs.Decodef("frame out of order: got seq %d", seq)
	}
	if seq == 0 {
		c.buf = c.buf[:0]
		c.total = total
	}

	c.buf = append(c.buf, body...)
	c.nextSeq++

	if c.nextSeq == c.total {
		if len(c.buf) != DumpLength {
			got := len(c.buf)
			c.Reset()
			return errs.Decodef("dump reassembled to %d bytes, want %d", got, DumpLength)
		}
		c.complete = true
		c.log.Info("kit0 dump complete", "bytes", len(c.buf), "frames", c.total)
	}
	return nil
}

// HasCompleteDump reports whether the buffer holds a complete,
// checksum-valid kit0 dump.
func (c *Codec) HasCompleteDump() bool {
	return c.complete
}

// Snapshot returns a copy of the completed dump payload.
func (c *Codec) Snapshot() (model.KitSnapshot, error) {
	if !c.complete {
		return nil, errs.Preconditionf("no complete kit0 dump captured")
	}
	return model.KitSnapshot(c.buf).Clone(), nil
}

// ExtractMapping reads the four trigger-note fields out of the completed
// dump buffer.
func (c *Codec) ExtractMapping() (model.Mapping, error) {
	var m model.Mapping
	if !c.complete {
		return m, errs.Decodef("cannot extract mapping: dump incomplete")
	}
	for i, off := range NoteOffsets {
		m[i] = c.buf[off] & 0x7F
	}
	return m, nil
}

// PatchSnapshot copies snapshot and overwrites only the four trigger-note
// offsets with the mapping's values.
func PatchSnapshot(m model.Mapping, snapshot model.KitSnapshot) (model.KitSnapshot, error) {
	if len(snapshot) != DumpLength {
		return nil, errs.Preconditionf("no cached kit snapshot (have %d bytes, want %d)", len(snapshot), DumpLength)
	}
	for _, n := range m {
		if n > 0x7F {
			return nil, errs.Validationf("note %d out of MIDI range", n)
		}
	}
	out := snapshot.Clone()
	for i, off := range NoteOffsets {
		out[off] = m[i]
	}
	return out, nil
}

// BuildSysEx rebuilds a transmit-ready dump: snapshot is copied, the four
// note fields are patched, the result re-split into the original frame
// layout with fresh checksums, and all frames concatenated.
func BuildSysEx(m model.Mapping, snapshot model.KitSnapshot) ([]byte, error) {
	patched, err := PatchSnapshot(m, snapshot)
	if err != nil {
		return nil, err
	}
	return FrameDump(patched), nil
}

// FrameDump splits a raw dump into wire frames (F0…F7 each) without
// touching any field, recomputing only the per-frame checksums. Undo uses
// this to retransmit a stored snapshot verbatim.
func FrameDump(dump model.KitSnapshot) []byte {
	total := byte((len(dump) + maxFrameData - 1) / maxFrameData)
	var out []byte
	for seq := byte(0); seq < total; seq++ {
		start := int(seq) * maxFrameData
		end := util.Min(start+maxFrameData, len(dump))
		body := dump[start:end]
		length := byte(len(body))

		out = append(out, sysexStart)
		out = append(out, framePrefix...)
		out = append(out, seq, total, length)
		out = append(out, body...)
		out = append(out, Checksum(seq, total, length, body), sysexEnd)
	}
	return out
}

// SplitFrames cuts a concatenated wire sequence back into individual
// F0…F7 frames for per-message transmission.
func SplitFrames(wire []byte) [][]byte {
	var frames [][]byte
	start := -1
	for i, b := range wire {
		switch b {
		case sysexStart:
			start = i
		case sysexEnd:
			if start >= 0 {
				frames = append(frames, wire[start:i+1])
				start = -1
			}
		}
	}
	return frames
}
