package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoteName(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("C4", NoteName(60))
	assert.Equal("A#2", NoteName(46))
	assert.Equal("C-1", NoteName(0))
	assert.Equal("G9", NoteName(127))
}

func TestMin(t *testing.T) {
	assert.Equal(t, 3, Min(3, 7))
	assert.Equal(t, 3, Min(7, 3))
}

func TestClamp(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(5, Clamp(5, 0, 10))
	assert.Equal(0, Clamp(-3, 0, 10))
	assert.Equal(10, Clamp(42, 0, 10))
}

func TestDedupePreservesFirstOccurrenceOrder(t *testing.T) {
	got := Dedupe([]uint8{60, 64, 60, 67, 64})
	assert.Equal(t, []uint8{60, 64, 67}, got)
}
