package h264

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSEIPayloadsSplitsTypeAndSize(t *testing.T) {
	// payload_type=4, payload_size=3, data=[0xAA,0xBB,0xCC], stop bit.
	buf := []byte{0x04, 0x03, 0xAA, 0xBB, 0xCC, 0x80}
	payloads, err := ParseSEIPayloads(buf)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, uint(4), payloads[0].Type)
	assert.Equal(t, uint(3), payloads[0].Size)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, payloads[0].Data)
}

func TestParseSEIPayloadsFFExtendsTypeAndSize(t *testing.T) {
	// payload_type = 255+2 = 257, payload_size = 1, data=[0x01].
	buf := []byte{0xFF, 0x02, 0x01, 0x01, 0x80}
	payloads, err := ParseSEIPayloads(buf)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, uint(257), payloads[0].Type)
	assert.Equal(t, uint(1), payloads[0].Size)
}

func TestExtractCCDataGA94Wrapper(t *testing.T) {
	// country_code=0xB5, provider=0x0031, "GA94", user_data_type_code=0x03,
	// cc_count header with process_cc_data_flag set and 1 triple, 0xFF marker.
	payload := SEIPayload{
		Type: 4,
		Data: []byte{
			0xB5, 0x00, 0x31,
			'G', 'A', '9', '4',
			0x03,
			0x40 | 0x01, 0x00, // process_cc_data_flag=1, cc_count=1
			0xFC, 0x41, 0x42,
			0xFF,
		},
	}
	cc, err := ExtractCCData(payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFC, 0x41, 0x42}, cc)
}

func TestExtractCCDataRejectsWrongCountryCode(t *testing.T) {
	payload := SEIPayload{Type: 4, Data: []byte{0x00, 0x00, 0x31}}
	_, err := ExtractCCData(payload)
	assert.ErrorIs(t, err, ErrNoCaptionData)
}

func TestExtractCCDataRejectsNonUserDataPayload(t *testing.T) {
	_, err := ExtractCCData(SEIPayload{Type: 5})
	assert.ErrorIs(t, err, ErrNoCaptionData)
}
