package nal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveEmulationBytesIdentityWithoutEscapes(t *testing.T) {
	b := []byte{0x67, 0x42, 0x00, 0x1E, 0xAB, 0xCD, 0x00, 0x00, 0x01}
	out, err := RemoveEmulationBytes(b)
	require := assert.New(t)
	require.NoError(err)
	require.Equal(b, out)
}

func TestRemoveEmulationBytesStripsEscape(t *testing.T) {
	// The emulation-prevention byte itself is dropped; the two zeros that
	// triggered it are real RBSP content and stay.
	injected := []byte{0x01, 0x00, 0x00, 0x03, 0x02}
	want := []byte{0x01, 0x00, 0x00, 0x02}
	out, err := RemoveEmulationBytes(injected)
	assert.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestRemoveEmulationBytesStripsMultipleEscapes(t *testing.T) {
	injected := []byte{0x00, 0x00, 0x03, 0x00, 0x00, 0x00, 0x03, 0x01}
	out, err := RemoveEmulationBytes(injected)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}, out)
}

func TestRemoveEmulationBytesRejectsInvalidEscape(t *testing.T) {
	injected := []byte{0x00, 0x00, 0x03, 0x04}
	out, err := RemoveEmulationBytes(injected)
	assert.Error(t, err)
	assert.Nil(t, out)
	assert.IsType(t, ErrBrokenNAL{}, err)
}

func TestRemoveEmulationBytesAcceptsEscapeValuesUpToThree(t *testing.T) {
	for _, xx := range []byte{0x00, 0x01, 0x02, 0x03} {
		injected := []byte{0x00, 0x00, 0x03, xx}
		out, err := RemoveEmulationBytes(injected)
		assert.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x00, xx}, out)
	}
}

func TestRemoveEmulationBytesDropsTrailingCabacZeroWord(t *testing.T) {
	injected := []byte{0xAB, 0x00, 0x00, 0x03}
	out, err := RemoveEmulationBytes(injected)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0xAB, 0x00, 0x00}, out)
}

func TestSplitDetectsAnnexB(t *testing.T) {
	b := []byte{0, 0, 0, 1, 0x67, 0xAA, 0, 0, 1, 0x68, 0xBB}
	units, format := Split(b)
	assert.Equal(t, FormatAnnexB, format)
	if assert.Len(t, units, 2) {
		assert.Equal(t, []byte{0x67, 0xAA}, units[0])
		assert.Equal(t, []byte{0x68, 0xBB}, units[1])
	}
}

func TestSplitLengthPrefixedFourByte(t *testing.T) {
	sample := []byte{
		0x00, 0x00, 0x00, 0x05, 0x67, 0x42, 0x00, 0x0A, 0xFB,
		0x00, 0x00, 0x00, 0x03, 0x68, 0xEE, 0x3C,
	}
	units := SplitLengthPrefixed(sample, 4)
	if assert.Len(t, units, 2) {
		assert.Equal(t, []byte{0x67, 0x42, 0x00, 0x0A, 0xFB}, units[0])
		assert.Equal(t, []byte{0x68, 0xEE, 0x3C}, units[1])
		assert.Equal(t, uint(7), uint(units[0][0]&0x1F))
		assert.Equal(t, uint(8), uint(units[1][0]&0x1F))
	}
}

func TestSplitLengthPrefixedShortPrefixes(t *testing.T) {
	units := SplitLengthPrefixed([]byte{0x02, 0xAA, 0xBB, 0x01, 0xCC}, 1)
	if assert.Len(t, units, 2) {
		assert.Equal(t, []byte{0xAA, 0xBB}, units[0])
		assert.Equal(t, []byte{0xCC}, units[1])
	}

	units = SplitLengthPrefixed([]byte{0x00, 0x02, 0xAA, 0xBB}, 2)
	if assert.Len(t, units, 1) {
		assert.Equal(t, []byte{0xAA, 0xBB}, units[0])
	}
}

func TestSplitLengthPrefixedDropsOverrunUnit(t *testing.T) {
	units := SplitLengthPrefixed([]byte{0x00, 0x00, 0x00, 0x09, 0xAA}, 4)
	assert.Empty(t, units)
}

func TestSplitDetectsAVCC(t *testing.T) {
	b := []byte{0, 0, 0, 2, 0x67, 0xAA, 0, 0, 0, 2, 0x68, 0xBB}
	units, format := Split(b)
	assert.Equal(t, FormatAVCC, format)
	if assert.Len(t, units, 2) {
		assert.Equal(t, []byte{0x67, 0xAA}, units[0])
		assert.Equal(t, []byte{0x68, 0xBB}, units[1])
	}
}
