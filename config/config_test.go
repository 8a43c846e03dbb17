package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mty/chordtokit/model"
)

func tempConfig(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func TestMissingFileYieldsDefaults(t *testing.T) {
	c := Load(tempConfig(t))

	assert := assert.New(t)
	assert.Equal("keystep", c.GetString("midi_in_substr"))
	assert.Equal("triggerio", c.GetString("midi_out_substr"))
	assert.False(c.GetBool("allow_duplicate_notes"))
	_, ok := c.Mapping()
	assert.False(ok)
}

func TestCorruptFileYieldsDefaults(t *testing.T) {
	path := tempConfig(t)
	assert.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))

	c := Load(path)

	assert.Equal(t, "keystep", c.GetString("midi_in_substr"))
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	path := tempConfig(t)
	c := Load(path)
	c.Set("midi_in_substr", "arturia")
	c.Set("octave_down_lowest", true)
	assert.NoError(t, c.Save())

	c2 := Load(path)

	assert := assert.New(t)
	assert.Equal("arturia", c2.GetString("midi_in_substr"))
	assert.True(c2.GetBool("octave_down_lowest"))
	// Untouched keys keep their defaults.
	assert.Equal("triggerio", c2.GetString("ddti_in_substr"))
}

func TestMappingPersistence(t *testing.T) {
	path := tempConfig(t)
	c := Load(path)
	c.SetMapping(model.Mapping{36, 38, 42, 51})
	assert.NoError(t, c.Save())

	m, ok := Load(path).Mapping()

	assert.True(t, ok)
	assert.Equal(t, []uint8{36, 38, 42, 51}, m.Notes())
}

func TestMappingRejectsBadStoredValues(t *testing.T) {
	path := tempConfig(t)
	assert.NoError(t, os.WriteFile(path,
		[]byte(`{"learned_mapping": [36, 38, 420, 51]}`), 0o644))

	_, ok := Load(path).Mapping()
	assert.False(t, ok)
}

func TestMappingRejectsWrongLength(t *testing.T) {
	path := tempConfig(t)
	assert.NoError(t, os.WriteFile(path,
		[]byte(`{"learned_mapping": [36, 38]}`), 0o644))

	_, ok := Load(path).Mapping()
	assert.False(t, ok)
}
