package hevc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hevcNAL builds a 2-byte HEVC NAL header (nal_unit_type in bits 1-6 of
// byte 0, nuh_layer_id 0, nuh_temporal_id_plus1 1) followed by body.
func hevcNAL(nalType uint, body []byte) []byte {
	return append([]byte{byte(nalType << 1), 0x01}, body...)
}

func TestNALTypeExtractsSixBitType(t *testing.T) {
	cases := []uint{0, NALVPS, NALSPS, NALPPS, NALPrefixSEI, NALSuffixSEI, 63}
	for _, want := range cases {
		got, err := NALType(hevcNAL(want, nil))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// The forbidden-zero bit (bit 7) must not leak into the type.
	got, err := NALType([]byte{0x80 | byte(NALPrefixSEI<<1), 0x01})
	require.NoError(t, err)
	assert.Equal(t, uint(NALPrefixSEI), got)
}

func TestNALTypeRejectsShortHeader(t *testing.T) {
	_, err := NALType(nil)
	assert.Error(t, err)
	_, err = NALType([]byte{0x4E})
	assert.Error(t, err)
}

func TestIsSliceNALUCoversVCLRange(t *testing.T) {
	assert.True(t, IsSliceNALU(0))
	assert.True(t, IsSliceNALU(21))
	assert.False(t, IsSliceNALU(22))
	assert.False(t, IsSliceNALU(NALSPS))
}

func TestIsIDRCoversIRAPTypes(t *testing.T) {
	for nalType := uint(16); nalType <= 21; nalType++ {
		assert.True(t, IsIDR(nalType), nalType)
	}
	assert.False(t, IsIDR(15))
	assert.False(t, IsIDR(NALPrefixSEI))
}

// ga94Payload is a user_data_registered_itu_t_t35 body carrying one
// cc_data triple {0xFC, 0x94, 0x20}.
var ga94Payload = []byte{
	0xB5, 0x00, 0x31,
	'G', 'A', '9', '4',
	0x03,
	0x41, 0xFF,
	0xFC, 0x94, 0x20,
	0xFF,
}

func TestParseSEISkipsTwoByteHeader(t *testing.T) {
	body := append([]byte{0x04, byte(len(ga94Payload))}, ga94Payload...)
	body = append(body, 0x80)
	payloads, err := ParseSEI(hevcNAL(NALPrefixSEI, body))
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, uint(4), payloads[0].Type)
	assert.Equal(t, uint(len(ga94Payload)), payloads[0].Size)

	cc, err := ExtractCCData(payloads[0])
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFC, 0x94, 0x20}, cc)
}

func TestParseSEIStripsEmulationBytes(t *testing.T) {
	// payload_type 4, payload_size 4, data {0x00, 0x00, 0x01, 0xAA}:
	// on the wire the 0x000001 run is escaped as 0x00000301.
	wire := hevcNAL(NALPrefixSEI, []byte{0x04, 0x04, 0x00, 0x00, 0x03, 0x01, 0xAA, 0x80})
	payloads, err := ParseSEI(wire)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0xAA}, payloads[0].Data)
}

func TestParseSEIRejectsTruncatedNAL(t *testing.T) {
	_, err := ParseSEI([]byte{0x4E})
	assert.Error(t, err)
}
