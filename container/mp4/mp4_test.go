package mp4

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyDispatchesKnownFourCCs(t *testing.T) {
	cases := map[string]sampleEntryCodec{
		"avc1": codecAVC,
		"avc3": codecAVC,
		"hev1": codecHEVC,
		"hvc1": codecHEVC,
		"xdvb": codecMPEG2,
		"tx3g": codecTx3g,
		"c608": codecCEA608,
		"c708": codecCEA708,
		"mp4a": codecUnsupported,
	}
	for fourcc, want := range cases {
		assert.Equal(t, want, classify(fourcc), fourcc)
	}
}

func TestPairBlocksSplitsFieldPairs(t *testing.T) {
	blocks := pairBlocks([]byte{0x94, 0x20, 0x94, 0x2F}, false)
	require.Len(t, blocks, 2)
	assert.Equal(t, byte(0xFC), blocks[0].Type)
	assert.Equal(t, byte(0x94), blocks[0].Data1)
	assert.Equal(t, byte(0x20), blocks[0].Data2)

	blocks = pairBlocks([]byte{0x15, 0x2C}, true)
	require.Len(t, blocks, 1)
	assert.Equal(t, byte(0xFD), blocks[0].Type)
}

// buildCDP assembles a minimal SMPTE 334-2 CDP with a cc_data section
// of ccCount triples (no timecode section).
func buildCDP(ccCount int, triples []byte) []byte {
	body := []byte{
		0x00,       // cdp_length, patched below
		0x4F,       // frame rate code 4, reserved bits
		0x40,       // flags: cc_data_present
		0x00, 0x01, // sequence counter
		0x72, // cc_data_section
		0xE0 | byte(ccCount),
	}
	body = append(body, triples...)
	body = append(body, 0x74, 0x00, 0x01, 0x00) // footer + checksum
	out := append([]byte{0x96, 0x69}, body...)
	out[2] = byte(len(out)) // cdp_length covers the whole packet
	return out
}

func TestCDPBlocksExtractsCCDataSection(t *testing.T) {
	triples := make([]byte, 30)
	copy(triples, []byte{0xFC, 0x94, 0x20})
	for i := 3; i < 30; i += 3 {
		triples[i] = 0xFA // zero-data filler triples
	}
	blocks := cdpBlocks(buildCDP(10, triples))
	require.Len(t, blocks, 1)
	assert.Equal(t, byte(0xFC), blocks[0].Type)
	assert.Equal(t, byte(0x94), blocks[0].Data1)
	assert.Equal(t, byte(0x20), blocks[0].Data2)
}

func TestCDPBlocksRejectsWrongMagic(t *testing.T) {
	cdp := buildCDP(10, make([]byte, 30))
	cdp[0] = 0x00
	assert.Nil(t, cdpBlocks(cdp))
}

func TestCDPBlocksRejectsUnexpectedCCCount(t *testing.T) {
	assert.Nil(t, cdpBlocks(buildCDP(7, make([]byte, 21))))
}
