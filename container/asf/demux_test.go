package asf

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capdemux/capdemux/config"
	"github.com/capdemux/capdemux/container"
)

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// object wraps a body with its GUID and the 24-byte-inclusive size.
func object(id guid, body []byte) []byte {
	var buf bytes.Buffer
	buf.Write(id[:])
	writeU64(&buf, uint64(24+len(body)))
	buf.Write(body)
	return buf.Bytes()
}

func filePropertiesBody(packetSize uint32) []byte {
	b := make([]byte, 80)
	binary.LittleEndian.PutUint32(b[68:72], packetSize) // min packet size
	binary.LittleEndian.PutUint32(b[72:76], packetSize) // max packet size
	return b
}

// streamPropertiesBody builds an ASF_STREAM_PROPERTIES body. majorMedia
// is placed in the type-specific data for binary (DVR-MS) streams.
func streamPropertiesBody(streamType guid, streamNumber int, majorMedia []byte) []byte {
	var buf bytes.Buffer
	buf.Write(streamType[:])
	buf.Write(make([]byte, 16)) // error correction type
	writeU64(&buf, 0)           // time offset
	writeU32(&buf, uint32(len(majorMedia)))
	writeU32(&buf, 0) // error correction data length
	writeU16(&buf, uint16(streamNumber))
	writeU32(&buf, 0) // reserved
	buf.Write(majorMedia)
	return buf.Bytes()
}

type extRecord struct {
	id   guid
	size uint16
}

// extendedStreamPropertiesBody declares streamNumber with the given
// payload extension records and an inner stream properties object.
func extendedStreamPropertiesBody(streamNumber int, exts []extRecord, inner []byte) []byte {
	fixed := make([]byte, 64)
	binary.LittleEndian.PutUint16(fixed[48:50], uint16(streamNumber))
	binary.LittleEndian.PutUint16(fixed[60:62], 0) // stream name count
	binary.LittleEndian.PutUint16(fixed[62:64], uint16(len(exts)))
	var buf bytes.Buffer
	buf.Write(fixed)
	for _, e := range exts {
		buf.Write(e.id[:])
		writeU16(&buf, e.size)
		writeU32(&buf, 0) // extension system info length
	}
	buf.Write(inner)
	return buf.Bytes()
}

func headerExtensionBody(nested []byte) []byte {
	var buf bytes.Buffer
	buf.Write(make([]byte, 16)) // reserved field 1
	writeU16(&buf, 6)           // reserved field 2
	writeU32(&buf, uint32(len(nested)))
	buf.Write(nested)
	return buf.Bytes()
}

// buildASF assembles a header object from the given top-level objects,
// the data object header, and the raw packet bytes.
func buildASF(objects [][]byte, totalDataPackets uint64, packets []byte) []byte {
	var hdrBody bytes.Buffer
	for _, o := range objects {
		hdrBody.Write(o)
	}

	var out bytes.Buffer
	out.Write(asfHeader[:])
	writeU64(&out, uint64(30+hdrBody.Len()))
	writeU32(&out, uint32(len(objects)))
	out.Write([]byte{1, 2}) // reserved
	out.Write(hdrBody.Bytes())

	out.Write(asfData[:])
	writeU64(&out, uint64(50+len(packets)))
	out.Write(make([]byte, 16)) // file id
	writeU64(&out, totalDataPackets)
	out.Write([]byte{1, 1}) // reserved
	out.Write(packets)
	return out.Bytes()
}

func videoStreamObject(streamNumber int) []byte {
	return object(asfStreamProperties, streamPropertiesBody(asfVideoMedia, streamNumber, nil))
}

// dvrmsHeaderObjects declares video on stream 1 and an NTSC binary
// caption stream on stream 2 whose second payload extension entry
// carries the DVR-MS PTS.
func dvrmsHeaderObjects(packetSize uint32) [][]byte {
	inner := object(asfStreamProperties, streamPropertiesBody(asfBinaryMedia, 2, dvrmsNTSC[:]))
	esp := object(asfExtendedStreamProperties, extendedStreamPropertiesBody(2, []extRecord{
		{id: guid{0xAA}, size: 2}, // arbitrary leading extension entry
		{id: dvrmsPTS, size: 24},
	}, inner))
	return [][]byte{
		object(asfFileProperties, filePropertiesBody(packetSize)),
		videoStreamObject(1),
		object(asfHeaderExtension, headerExtensionBody(esp)),
	}
}

// singlePayloadPacket builds one non-EC, single-payload data packet for
// stream 2 with a DVR-MS rtStart in its replicated data.
func singlePayloadPacket(mediaNumber byte, rtStart uint64, payload []byte) []byte {
	var rep bytes.Buffer
	writeU32(&rep, uint32(len(payload))) // media object size
	writeU32(&rep, 0)                    // presentation time (ms)
	rep.Write([]byte{0, 0})              // extension entry 0 (2 bytes)
	rep.Write(make([]byte, 8))           // PTS entry: version + unknown
	writeU64(&rep, rtStart)
	writeU64(&rep, rtStart+4_000_000) // rtEnd

	var buf bytes.Buffer
	buf.WriteByte(0x28) // no EC; packet length byte, padding length byte
	buf.WriteByte(0x55) // 1-byte replicated/offset/media-number fields
	packetLen := 2 + 1 + 1 + 6 + 4 + rep.Len() + len(payload)
	buf.WriteByte(byte(packetLen))
	buf.WriteByte(0)           // padding length
	buf.Write(make([]byte, 6)) // send time + duration
	buf.WriteByte(2)           // stream number, no key frame
	buf.WriteByte(mediaNumber) // media object number
	buf.WriteByte(0)           // offset into media object
	buf.WriteByte(byte(rep.Len()))
	buf.Write(rep.Bytes())
	buf.Write(payload)
	return buf.Bytes()
}

func openDemuxer(t *testing.T, raw []byte, opts config.Options) *Demuxer {
	t.Helper()
	d, err := Open(container.NewSource(bytes.NewReader(raw)), opts)
	require.NoError(t, err)
	return d
}

func TestOpenParsesFilePropertiesAndEmptyDataObject(t *testing.T) {
	raw := buildASF([][]byte{
		object(asfFileProperties, filePropertiesBody(3000)),
		videoStreamObject(1),
	}, 0, nil)
	d := openDemuxer(t, raw, config.New())
	assert.Equal(t, uint32(3000), d.packetSize)
	assert.Equal(t, uint64(0), d.totalDataPackets)

	_, _, err := d.ReadMediaObject()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenRejectsWrongHeaderGUID(t *testing.T) {
	raw := buildASF([][]byte{videoStreamObject(1)}, 0, nil)
	raw[0] ^= 0xFF
	_, err := Open(container.NewSource(bytes.NewReader(raw)), config.New())
	assert.Error(t, err)
}

func TestOpenRequiresVideoStream(t *testing.T) {
	raw := buildASF([][]byte{object(asfFileProperties, filePropertiesBody(3000))}, 0, nil)
	_, err := Open(container.NewSource(bytes.NewReader(raw)), config.New())
	assert.Error(t, err)
}

func TestDVRMSNTSCSelectsCaptionStreamWithDVRPTS(t *testing.T) {
	payload1 := []byte{0x14, 0x20, 0x14, 0x2F}
	payload2 := []byte{0x94, 0x20}
	packets := append(
		singlePayloadPacket(7, 450_000_000, payload1), // 45 s in 100 ns units
		singlePayloadPacket(8, 454_000_000, payload2)...,
	)
	raw := buildASF(dvrmsHeaderObjects(0), 2, packets)

	d := openDemuxer(t, raw, config.New())
	stream, layout := d.DecodeStream()
	assert.Equal(t, 2, stream)
	assert.Equal(t, "raw608", layout.String())

	pts, data, err := d.ReadMediaObject()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, pts)
	assert.Equal(t, payload1, data)

	pts, data, err = d.ReadMediaObject()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second+400*time.Millisecond, pts)
	assert.Equal(t, payload2, data)

	_, _, err = d.ReadMediaObject()
	assert.ErrorIs(t, err, io.EOF)
}

// multiPayloadPacket builds one packet with len(parts) payloads on
// stream 2: every part belongs to mediaNumber except the last, which
// starts mediaNumber+1.
func multiPayloadPacket(mediaNumber byte, parts [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0x29) // multiple payloads; packet length byte, padding byte
	buf.WriteByte(0x55)
	lenPos := buf.Len()
	buf.WriteByte(0)           // packet length, patched below
	buf.WriteByte(0)           // padding length
	buf.Write(make([]byte, 6)) // send time + duration
	buf.WriteByte(0x40 | byte(len(parts)))

	offset := byte(0)
	for i, part := range parts {
		media := mediaNumber
		off := offset
		if i == len(parts)-1 {
			media++
			off = 0
		}
		buf.WriteByte(2) // stream number
		buf.WriteByte(media)
		buf.WriteByte(off)
		buf.WriteByte(0) // no replicated data
		buf.WriteByte(byte(len(part)))
		buf.Write(part)
		offset += byte(len(part))
	}
	raw := buf.Bytes()
	raw[lenPos] = byte(len(raw))
	return raw
}

func TestMultiPayloadMediaObjectBoundaryResumesMidPacket(t *testing.T) {
	parts := [][]byte{{0x11, 0x22}, {0x33, 0x44}, {0x55, 0x66}}
	raw := buildASF(dvrmsHeaderObjects(0), 1, multiPayloadPacket(7, parts))

	d := openDemuxer(t, raw, config.New())
	_, data, err := d.ReadMediaObject()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, data)

	// The boundary paused inside the packet: payload 3's header is
	// parked and two of three payloads are consumed.
	assert.True(t, d.inPacket)
	assert.Equal(t, 3, d.numPayloads)
	assert.Equal(t, 2, d.payloadCur)
	require.NotNil(t, d.pendingHdr)

	_, data, err = d.ReadMediaObject()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x55, 0x66}, data)

	_, _, err = d.ReadMediaObject()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCompressedPayloadIsRejected(t *testing.T) {
	pkt := singlePayloadPacket(7, 0, []byte{0x00})
	pkt[13] = 1 // replicated length 1 marks a compressed payload
	raw := buildASF(dvrmsHeaderObjects(0), 1, pkt)

	d := openDemuxer(t, raw, config.New())
	_, _, err := d.ReadMediaObject()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestATSCCaptionsDecodeVideoStreamWithoutConvertFix(t *testing.T) {
	inner := object(asfStreamProperties, streamPropertiesBody(asfBinaryMedia, 2, dvrmsATSC[:]))
	esp := object(asfExtendedStreamProperties, extendedStreamPropertiesBody(2, nil, inner))
	objects := [][]byte{
		object(asfFileProperties, filePropertiesBody(0)),
		videoStreamObject(1),
		object(asfHeaderExtension, headerExtensionBody(esp)),
	}

	d := openDemuxer(t, buildASF(objects, 0, nil), config.New())
	stream, layout := d.DecodeStream()
	assert.Equal(t, 1, stream)
	assert.Equal(t, "pes", layout.String())

	d = openDemuxer(t, buildASF(objects, 0, nil), config.New(config.WithWTVConvertFix(true)))
	stream, layout = d.DecodeStream()
	assert.Equal(t, 2, stream)
	assert.Equal(t, "raw608", layout.String())
}
