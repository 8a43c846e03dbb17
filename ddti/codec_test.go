package ddti

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mty/chordtokit/errs"
	"github.com/mty/chordtokit/model"
)

func testSnapshot() model.KitSnapshot {
	snap := make(model.KitSnapshot, DumpLength)
	for i := range snap {
		snap[i] = byte(i % 0x70)
	}
	snap[NoteOffsets[0]] = 36
	snap[NoteOffsets[1]] = 38
	snap[NoteOffsets[2]] = 42
	snap[NoteOffsets[3]] = 51
	return snap
}

func ingestAll(t *testing.T, c *Codec, wire []byte) {
	t.Helper()
	for _, frame := range SplitFrames(wire) {
		assert.NoError(t, c.IngestFrame(frame))
	}
}

func TestDumpRoundTripPreservesEveryByte(t *testing.T) {
	snap := testSnapshot()
	wire := FrameDump(snap)

	c := New()
	ingestAll(t, c, wire)

	assert := assert.New(t)
	assert.True(c.HasCompleteDump())

	got, err := c.Snapshot()
	assert.NoError(err)
	assert.Equal(snap, got)

	m, err := c.ExtractMapping()
	assert.NoError(err)
	assert.Equal([]uint8{36, 38, 42, 51}, m.Notes())
}

func TestPatchSnapshotTouchesOnlyNoteOffsets(t *testing.T) {
	snap := testSnapshot()
	m := model.Mapping{60, 62, 64, 65}

	patched, err := PatchSnapshot(m, snap)

	assert := assert.New(t)
	assert.NoError(err)
	for i := range patched {
		switch i {
		case NoteOffsets[0], NoteOffsets[1], NoteOffsets[2], NoteOffsets[3]:
		default:
			assert.Equal(snap[i], patched[i], "byte %d changed", i)
		}
	}
	assert.Equal(uint8(60), patched[NoteOffsets[0]])
	assert.Equal(uint8(65), patched[NoteOffsets[3]])

	// The template is untouched.
	assert.Equal(uint8(36), snap[NoteOffsets[0]])
}

func TestBuildSysExWithoutSnapshotFails(t *testing.T) {
	_, err := BuildSysEx(model.Mapping{36, 38, 42, 51}, nil)
	assert.ErrorIs(t, err, errs.ErrPrecondition)
}

func TestMalformedFrameResetsBuffer(t *testing.T) {
	snap := testSnapshot()
	frames := SplitFrames(FrameDump(snap))

	c := New()
	assert := assert.New(t)
	assert.NoError(c.IngestFrame(frames[0]))

	// Corrupt the header of the second frame.
	bad := append([]byte(nil), frames[1]...)
	bad[1] = 0x13
	assert.Error(c.IngestFrame(bad))
	assert.False(c.HasCompleteDump())

	// The whole dump has to be replayed from frame 0.
	assert.Error(c.IngestFrame(frames[1]))
	ingestAll(t, c, FrameDump(snap))
	assert.True(c.HasCompleteDump())
}

func TestChecksumMismatchDropsOnlyThatFrame(t *testing.T) {
	snap := testSnapshot()
	frames := SplitFrames(FrameDump(snap))

	c := New()
	assert := assert.New(t)
	assert.NoError(c.IngestFrame(frames[0]))

	bad := append([]byte(nil), frames[1]...)
	bad[len(bad)-2] ^= 0x01
	assert.Error(c.IngestFrame(bad))

	// A clean retransmit of the same frame continues the dump.
	assert.NoError(c.IngestFrame(frames[1]))
	assert.NoError(c.IngestFrame(frames[2]))
	assert.True(c.HasCompleteDump())
}

func TestOutOfOrderFrameResets(t *testing.T) {
	snap := testSnapshot()
	frames := SplitFrames(FrameDump(snap))

	c := New()
	assert := assert.New(t)
	assert.NoError(c.IngestFrame(frames[0]))
	assert.Error(c.IngestFrame(frames[2]))
	assert.False(c.HasCompleteDump())
}

func TestExtractMappingBeforeCompleteDumpFails(t *testing.T) {
	c := New()
	_, err := c.ExtractMapping()
	assert.Error(t, err)
}

func TestFreshFrameZeroAfterCompleteDumpStartsOver(t *testing.T) {
	snap := testSnapshot()

	c := New()
	ingestAll(t, c, FrameDump(snap))
	assert.True(t, c.HasCompleteDump())

	snap2 := testSnapshot()
	snap2[NoteOffsets[0]] = 40
	ingestAll(t, c, FrameDump(snap2))

	m, err := c.ExtractMapping()
	assert.NoError(t, err)
	assert.Equal(t, uint8(40), m.Notes()[0])
}

func TestChecksumBringsFrameSumToMultipleOf128(t *testing.T) {
	data := []byte{0x01, 0x7F, 0x33}
	cks := Checksum(0, 3, 3, data)

	sum := int(cks) + 0 + 3 + 3
	for _, b := range data {
		sum += int(b)
	}
	assert.Equal(t, 0, sum%128)
}
