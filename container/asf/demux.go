package asf

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/capdemux/capdemux/av"
	"github.com/capdemux/capdemux/common/errs"
	"github.com/capdemux/capdemux/config"
)

// StreamInfo records what Open learned about one stream: its role in
// caption extraction and whether the stream is encrypted.
type StreamInfo struct {
	Role      av.StreamRole
	Number    int
	Encrypted bool
}

// payloadHeader holds one payload's parsed header fields up to (but not
// including) its data bytes. A header can outlive one ReadMediaObject
// call: when a media-number change completes the in-flight object, the
// header is parked on Demuxer.pendingHdr and its data is consumed on
// re-entry.
type payloadHeader struct {
	stream      int
	keyFrame    bool
	mediaNumber int64
	offset      int64
	length      int64
	pts         time.Duration
}

// Demuxer is a reentrant ASF/WTV header-object and data-packet state
// machine. Everything needed to resume mid-packet after a media-object
// boundary lives in explicit fields rather than function-local state.
type Demuxer struct {
	src  av.ByteSource
	opts config.Options

	packetSize       uint32 // min packet size, when min == max
	totalDataPackets uint64
	packetsRead      uint64

	streams             [StreamNum]StreamInfo
	streamCount         int
	videoStreamNumber   int
	captionStreamNumber int
	captionStyle        CaptionStreamStyle
	decodeStreamNumber  int
	bufferDataType      av.BufferDataType

	// VideoClosedCaptioningFlag mirrors the WM/VideoClosedCaptioning
	// extended content descriptor. Informational only; the flag is not
	// reliable enough to drive stream selection.
	VideoClosedCaptioningFlag int32

	// payloadExtSize[s][i] is the byte width declared for extension
	// system entry i of stream s (0xFFFF meaning variable-length,
	// recorded as -1); payloadExtPTSEntry[s] is the index of the
	// DVR-MS PTS entry within that stream's extension list, or -1.
	payloadExtSize     [StreamNum][PayExtNum]int
	payloadExtPTSEntry [StreamNum]int

	// Per-packet parse state, valid while inPacket. Kept on the
	// struct rather than the stack so a boundary pause can resume
	// mid-packet.
	inPacket         bool
	packetStart      int64
	multiplePayloads bool
	numPayloads      int
	payloadCur       int
	payloadLenWidth  int
	mediaNumWidth    int
	offsetWidth      int
	replicatedWidth  int
	packetLength     int64
	paddingLen       int64
	pendingHdr       *payloadHeader

	// Media-object accumulation on the decode stream.
	mediaBuf       []byte
	mediaBufNumber int64
	haveMediaBuf   bool
	mediaBufPTS    time.Duration

	// Timing bookkeeping: the video stream's own clock (watched only
	// when captions ride a separate stream) and the decode stream's
	// reconstructed PTS chain.
	videoStreamMS     time.Duration
	currVideoStreamMS time.Duration
	prevVideoStreamMS time.Duration
	videoJump         bool
	decodePTS         time.Duration
	currDecodePTS     time.Duration
	prevDecodePTS     time.Duration

	// DisableSyncCheck is raised when the caption stream gaps more than
	// 500 ms without a matching jump in the video timeline, meaning the
	// gap is missing captions rather than a timeline edit.
	DisableSyncCheck bool

	eof bool
}

// Open reads the ASF header object (Phase A) and the data object header
// (Phase B), then returns a Demuxer ready to drive ReadMediaObject.
func Open(src av.ByteSource, opts config.Options) (*Demuxer, error) {
	d := &Demuxer{
		src:                 src,
		opts:                opts,
		videoStreamNumber:   -1,
		captionStreamNumber: -1,
		decodeStreamNumber:  -1,
	}
	for i := range d.payloadExtPTSEntry {
		d.payloadExtPTSEntry[i] = -1
	}

	id, size, err := d.readGUIDSize()
	if err != nil {
		return nil, err
	}
	if id != asfHeader {
		return nil, errs.ErrMalformedMagic
	}
	if size < 30 {
		return nil, errs.ErrStructuralInconsistency
	}

	// Number of header objects (4) plus two reserved bytes.
	hdr := make([]byte, 6)
	if d.src.Read(hdr) != 6 {
		return nil, errs.ErrTruncatedInput
	}

	remaining := int64(size) - 30
	for remaining >= 24 {
		consumed, err := d.readTopLevelObject(remaining)
		if err != nil {
			return nil, err
		}
		remaining -= consumed
	}
	if remaining > 0 {
		d.src.Skip(remaining)
	}

	if d.videoStreamNumber < 0 {
		return nil, errs.Wrapf(errs.ErrStructuralInconsistency, "asf: no video stream properties object")
	}
	d.selectCaptionStream()

	id, dataSize, err := d.readGUIDSize()
	if err != nil {
		return nil, err
	}
	if id != asfData {
		return nil, errs.ErrMalformedMagic
	}
	if dataSize < 50 {
		return nil, errs.ErrStructuralInconsistency
	}
	rest := make([]byte, 26) // file id (16), total data packets (8), reserved (2)
	if d.src.Read(rest) != 26 {
		return nil, errs.ErrTruncatedInput
	}
	d.totalDataPackets = binary.LittleEndian.Uint64(rest[16:24])

	return d, nil
}

// readGUIDSize reads a 16-byte object GUID followed by an 8-byte
// little-endian object size (the size field includes both).
func (d *Demuxer) readGUIDSize() (guid, uint64, error) {
	b := make([]byte, 24)
	if d.src.Read(b) != 24 {
		return guid{}, 0, errs.ErrTruncatedInput
	}
	return guid(b[0:16]), binary.LittleEndian.Uint64(b[16:24]), nil
}

// readTopLevelObject reads one header-level object and dispatches on its
// GUID, returning the number of bytes consumed (the full object size,
// including the 24-byte GUID+size prefix).
func (d *Demuxer) readTopLevelObject(remaining int64) (int64, error) {
	id, size, err := d.readGUIDSize()
	if err != nil {
		return 0, err
	}
	if int64(size) < 24 || int64(size) > remaining {
		return 0, errs.ErrStructuralInconsistency
	}
	body := int64(size) - 24

	switch id {
	case asfFileProperties:
		err = d.readFileProperties(body)
	case asfStreamProperties:
		err = d.readStreamProperties(body, -1)
	case asfHeaderExtension:
		err = d.readHeaderExtension(body)
	case asfExtendedContentDescription:
		err = d.readExtendedContentDescription(body)
	default:
		d.src.Skip(body)
	}
	if err != nil {
		return 0, err
	}
	return int64(size), nil
}

// readFileProperties pulls the packet size out of ASF_FILE_PROPERTIES:
// file ID (16), file size (8), creation date (8), data packets count
// (8), play/send duration (8+8), preroll (8), flags (4), min/max packet
// size (4+4), max bitrate (4). The packet size is usable as a fallback
// for packets that omit their own length only when min == max.
func (d *Demuxer) readFileProperties(body int64) error {
	if body < 80 {
		d.src.Skip(body)
		return nil
	}
	b := make([]byte, 80)
	if d.src.Read(b) != 80 {
		return errs.ErrTruncatedInput
	}
	minPacket := binary.LittleEndian.Uint32(b[68:72])
	maxPacket := binary.LittleEndian.Uint32(b[72:76])
	if minPacket > 0 && minPacket == maxPacket {
		d.packetSize = minPacket
	}
	d.src.Skip(body - 80)
	return nil
}

// readStreamProperties reads ASF_STREAM_PROPERTIES: stream type GUID
// (16), error correction type GUID (16), time offset (8), type-specific
// data length (4), error correction data length (4), flags (2, low 7
// bits = stream number, bit 15 = encrypted), reserved (4), then the
// type-specific and error-correction data blocks.
//
// espStream >= 0 marks the inner Stream Properties Object carried at
// the tail of an Extended Stream Properties object; DVR-MS files
// declare caption streams only there, typed as binary media with a
// Major-Media-Type GUID in the first 16 bytes of the type-specific
// data.
func (d *Demuxer) readStreamProperties(body int64, espStream int) error {
	if body < 54 {
		d.src.Skip(body)
		return nil
	}
	need := int64(70)
	if body < 70 {
		need = 54
	}
	b := make([]byte, need)
	if d.src.Read(b) != int(need) {
		return errs.ErrTruncatedInput
	}
	streamType := guid(b[0:16])
	typeSpecificLen := binary.LittleEndian.Uint32(b[40:44])
	ecDataLen := binary.LittleEndian.Uint32(b[44:48])
	flags := binary.LittleEndian.Uint16(b[48:50])
	streamNumber := int(flags & 0x7F)
	if espStream >= 0 {
		streamNumber = espStream
	}
	encrypted := flags&0x8000 != 0

	rest := body - need
	if int64(typeSpecificLen)+int64(ecDataLen) > body-54 {
		return errs.ErrStructuralInconsistency
	}
	d.src.Skip(rest)

	if streamNumber < 0 || streamNumber >= StreamNum {
		return errs.ErrOversizeDimensions
	}

	role := av.RoleIgnored
	switch streamType {
	case asfVideoMedia:
		role = av.RoleVideo
		if d.videoStreamNumber == -1 {
			d.videoStreamNumber = streamNumber
		}
	case asfAudioMedia:
		role = av.RoleAudio
	case asfBinaryMedia:
		// DVR-MS identifies audio and caption streams as binary media
		// and distinguishes them by the Major Media Type GUID at the
		// start of the type-specific data.
		if need == 70 {
			switch guid(b[54:70]) {
			case dvrmsAudio:
				role = av.RoleAudio
			case dvrmsNTSC:
				role = av.RoleCaptionNTSC
				d.captionStreamNumber = streamNumber
				d.captionStyle = CaptionStyleNTSC
			case dvrmsATSC:
				role = av.RoleCaptionATSC
				d.captionStreamNumber = streamNumber
				d.captionStyle = CaptionStyleATSC
			}
		}
	}

	d.streams[streamNumber] = StreamInfo{Role: role, Number: streamNumber, Encrypted: encrypted}
	if d.streamCount <= streamNumber {
		d.streamCount = streamNumber + 1
	}
	return nil
}

// readHeaderExtension walks ASF_HEADER_EXTENSION's nested object list
// (reserved field 1 GUID, reserved field 2 uint16, data size uint32,
// then exactly that many bytes of nested objects) looking for
// ASF_EXTENDED_STREAM_PROPERTIES, which carries the payload extension
// system declarations DVR-MS uses to smuggle 100 ns rtStart/rtEnd
// timestamps through the per-payload replicated data.
func (d *Demuxer) readHeaderExtension(body int64) error {
	if body < 22 {
		d.src.Skip(body)
		return nil
	}
	hdr := make([]byte, 22)
	if d.src.Read(hdr) != 22 {
		return errs.ErrTruncatedInput
	}
	dataSize := binary.LittleEndian.Uint32(hdr[18:22])
	if int64(dataSize) != body-22 {
		return errs.Wrapf(errs.ErrStructuralInconsistency, "asf: header extension data size %d != object size - 46", dataSize)
	}

	remaining := int64(dataSize)
	for remaining >= 24 {
		id, size, err := d.readGUIDSize()
		if err != nil {
			return err
		}
		if int64(size) < 24 || int64(size) > remaining {
			return errs.ErrStructuralInconsistency
		}
		nested := int64(size) - 24
		if id == asfExtendedStreamProperties {
			if err := d.readExtendedStreamProperties(nested); err != nil {
				return err
			}
		} else {
			d.src.Skip(nested)
		}
		remaining -= int64(size)
	}
	if remaining != 0 {
		return errs.ErrStructuralInconsistency
	}
	return nil
}

// readExtendedStreamProperties reads the fixed 64-byte prefix (start/end
// times, bitrates, buffer sizes, flags, stream number, language index,
// average time per frame, name/extension counts) followed by
// stream-name records, payload-extension-system records, and an
// optional trailing inner Stream Properties Object. The extension
// records are remembered so the data-packet loop can locate DVR-MS's
// rtStart/rtEnd pair; the inner Stream Properties Object is where
// DVR-MS declares its binary caption streams.
func (d *Demuxer) readExtendedStreamProperties(body int64) error {
	if body < 64 {
		d.src.Skip(body)
		return nil
	}
	fixed := make([]byte, 64)
	if d.src.Read(fixed) != 64 {
		return errs.ErrTruncatedInput
	}
	streamNumber := int(binary.LittleEndian.Uint16(fixed[48:50]))
	streamNameCount := binary.LittleEndian.Uint16(fixed[60:62])
	payloadExtCount := binary.LittleEndian.Uint16(fixed[62:64])
	remaining := body - 64

	if streamNumber < 0 || streamNumber >= StreamNum {
		return errs.ErrOversizeDimensions
	}
	if int(payloadExtCount) > PayExtNum {
		return errs.ErrOversizeDimensions
	}

	for i := uint16(0); i < streamNameCount && remaining >= 4; i++ {
		lh := make([]byte, 4)
		if d.src.Read(lh) != 4 {
			return errs.ErrTruncatedInput
		}
		remaining -= 4
		nameLen := binary.LittleEndian.Uint16(lh[2:4])
		d.src.Skip(int64(nameLen))
		remaining -= int64(nameLen)
	}

	for i := uint16(0); i < payloadExtCount && remaining >= 22; i++ {
		rec := make([]byte, 22)
		if d.src.Read(rec) != 22 {
			return errs.ErrTruncatedInput
		}
		remaining -= 22
		extGUID := guid(rec[0:16])
		extSize := binary.LittleEndian.Uint16(rec[16:18])
		infoLen := binary.LittleEndian.Uint32(rec[18:22])
		size := -1
		if extSize != 0xFFFF {
			size = int(extSize)
		}
		d.payloadExtSize[streamNumber][i] = size
		if extGUID == dvrmsPTS {
			d.payloadExtPTSEntry[streamNumber] = int(i)
		}
		d.src.Skip(int64(infoLen))
		remaining -= int64(infoLen)
	}

	// Whatever is left must be the inner Stream Properties Object; the
	// only way to know it is there is that bytes remain.
	if remaining >= 24 {
		id, size, err := d.readGUIDSize()
		if err != nil {
			return err
		}
		if id != asfStreamProperties || int64(size) < 24 || int64(size) > remaining {
			return errs.Wrapf(errs.ErrStructuralInconsistency, "asf: stream properties object expected inside extended stream properties")
		}
		if err := d.readStreamProperties(int64(size)-24, streamNumber); err != nil {
			return err
		}
		remaining -= int64(size)
	}
	if remaining > 0 {
		d.src.Skip(remaining)
	}
	return nil
}

// readExtendedContentDescription scans the descriptor list for the
// WM/VideoClosedCaptioning flag. The flag is recorded but nothing is
// decided from it; it is not set reliably by real encoders.
func (d *Demuxer) readExtendedContentDescription(body int64) error {
	b := make([]byte, body)
	if d.src.Read(b) != int(body) {
		return errs.ErrTruncatedInput
	}
	if len(b) < 2 {
		return nil
	}
	count := int(binary.LittleEndian.Uint16(b[0:2]))
	pos := 2
	for i := 0; i < count; i++ {
		if pos+2 > len(b) {
			return nil
		}
		nameLen := int(binary.LittleEndian.Uint16(b[pos : pos+2]))
		if pos+6+nameLen > len(b) {
			return nil
		}
		name := b[pos+2 : pos+2+nameLen]
		valueLen := int(binary.LittleEndian.Uint16(b[pos+4+nameLen : pos+6+nameLen]))
		valueStart := pos + 6 + nameLen
		if valueStart+valueLen > len(b) {
			return nil
		}
		if utf16LEEquals(name, "WM/VideoClosedCaptioning") && valueLen >= 4 {
			d.VideoClosedCaptioningFlag = int32(binary.LittleEndian.Uint32(b[valueStart : valueStart+4]))
		}
		pos = valueStart + valueLen
	}
	return nil
}

// utf16LEEquals compares a NUL-terminated UTF-16LE byte string against
// an ASCII literal.
func utf16LEEquals(b []byte, s string) bool {
	if len(b) < 2*len(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if b[2*i] != s[i] || b[2*i+1] != 0 {
			return false
		}
	}
	return true
}

// selectCaptionStream decides which stream the data-packet loop
// extracts: NTSC captions decode directly from the caption stream as
// raw byte pairs; ATSC captions do so only under WTVConvertFix (the
// WTV-to-DVR-MS conversion mislabels NTSC data as ATSC), otherwise the
// caption bytes travel inside the video stream's PES and the video
// stream itself becomes the decode source.
func (d *Demuxer) selectCaptionStream() {
	d.bufferDataType = av.BufferPES
	d.decodeStreamNumber = d.videoStreamNumber
	if d.captionStreamNumber > 0 {
		switch {
		case d.captionStyle == CaptionStyleNTSC,
			d.captionStyle == CaptionStyleATSC && d.opts.WTVConvertFix:
			d.bufferDataType = av.BufferRaw608
			d.decodeStreamNumber = d.captionStreamNumber
		}
	}
}

// DecodeStream reports the stream number this demuxer extracts payload
// bytes from, and the buffer layout those bytes should be tagged with.
func (d *Demuxer) DecodeStream() (streamNumber int, layout av.BufferDataType) {
	return d.decodeStreamNumber, d.bufferDataType
}

// EOF reports whether the data object has been fully consumed.
func (d *Demuxer) EOF() bool { return d.eof }

// ReadMediaObject returns the next complete media object on the decode
// stream: its reconstructed PTS and payload bytes. A media object spans
// 1..N payloads and completes when a decode-stream payload with a
// different media number arrives; that payload's header is parked so
// the next call resumes mid-packet exactly where this one stopped.
func (d *Demuxer) ReadMediaObject() (pts time.Duration, data []byte, err error) {
	for !d.eof {
		if !d.inPacket {
			if d.packetsRead >= d.totalDataPackets {
				break
			}
			if err := d.beginPacket(); err != nil {
				if err == errs.ErrTruncatedInput {
					d.eof = true
					break
				}
				return 0, nil, err
			}
		}
		obj, objPTS, err := d.continuePacket()
		if err != nil {
			if err == errs.ErrTruncatedInput {
				d.eof = true
				break
			}
			return 0, nil, err
		}
		if obj != nil {
			return objPTS, obj, nil
		}
	}

	d.eof = true
	if d.haveMediaBuf && len(d.mediaBuf) > 0 {
		out := d.mediaBuf
		outPTS := d.mediaBufPTS
		d.mediaBuf = nil
		d.haveMediaBuf = false
		return outPTS, out, nil
	}
	return 0, nil, io.EOF
}

func lenTypeWidth(bits byte) int {
	switch bits & 0x03 {
	case 1:
		return 1
	case 2:
		return 2
	case 3:
		return 4
	}
	return 0
}

// beginPacket reads one data packet's error-correction byte, the
// two payload-parsing-information bytes, and the variable-width
// packet-level fields, leaving the Demuxer positioned at the first
// payload header.
func (d *Demuxer) beginPacket() error {
	d.packetStart = d.src.Pos()

	firstByte := make([]byte, 1)
	if d.src.Read(firstByte) != 1 {
		return errs.ErrTruncatedInput
	}
	var info [2]byte
	if firstByte[0]&0x80 != 0 {
		if firstByte[0]&0x60 != 0 {
			return errs.Wrapf(errs.ErrUnsupportedFeature, "asf: reserved error correction length type")
		}
		ecLen := int(firstByte[0] & 0x0F)
		ec := make([]byte, ecLen)
		if d.src.Read(ec) != ecLen {
			return errs.ErrTruncatedInput
		}
		if ecLen > 0 && ec[0]&0x0F != 0 {
			return errs.Wrapf(errs.ErrUnsupportedFeature, "asf: error correction data present")
		}
		if d.src.Read(info[:]) != 2 {
			return errs.ErrTruncatedInput
		}
	} else {
		// No error-correction byte: the byte just read is already the
		// first payload-parsing-information byte.
		info[0] = firstByte[0]
		b := make([]byte, 1)
		if d.src.Read(b) != 1 {
			return errs.ErrTruncatedInput
		}
		info[1] = b[0]
	}

	d.multiplePayloads = info[0]&0x01 != 0
	sequenceWidth := lenTypeWidth(info[0] >> 1)
	paddingWidth := lenTypeWidth(info[0] >> 3)
	packetLenWidth := lenTypeWidth(info[0] >> 5)

	d.replicatedWidth = lenTypeWidth(info[1])
	d.offsetWidth = lenTypeWidth(info[1] >> 2)
	d.mediaNumWidth = lenTypeWidth(info[1] >> 4)
	_ = lenTypeWidth(info[1] >> 6) // stream number width; always 1 on the wire

	var err error
	d.packetLength, err = d.readField(packetLenWidth)
	if err != nil {
		return err
	}
	if err := d.skipField(sequenceWidth); err != nil {
		return err
	}
	d.paddingLen, err = d.readField(paddingWidth)
	if err != nil {
		return err
	}
	if d.src.Skip(6) != 6 { // send time (4) + duration (2)
		return errs.ErrTruncatedInput
	}

	// If the packet carries no length of its own, fall back to the
	// file-wide packet size. A single-payload packet with neither is
	// undecodable: nothing bounds its payload.
	if d.packetLength == 0 {
		d.packetLength = int64(d.packetSize)
		if d.packetLength == 0 && !d.multiplePayloads {
			return errs.Wrapf(errs.ErrStructuralInconsistency, "asf: cannot determine packet length")
		}
	}

	d.numPayloads = 1
	d.payloadLenWidth = 0
	if d.multiplePayloads {
		mp := make([]byte, 1)
		if d.src.Read(mp) != 1 {
			return errs.ErrTruncatedInput
		}
		d.payloadLenWidth = lenTypeWidth(mp[0] >> 6)
		d.numPayloads = int(mp[0] & 0x3F)
	}
	d.payloadCur = 0
	d.inPacket = true
	return nil
}

// continuePacket consumes payloads until a media-object boundary or the
// end of the packet. A non-nil obj is a completed media object on the
// decode stream.
func (d *Demuxer) continuePacket() (obj []byte, pts time.Duration, err error) {
	for d.payloadCur < d.numPayloads {
		hdr := d.pendingHdr
		if hdr == nil {
			hdr, err = d.readPayloadHeader()
			if err != nil {
				return nil, 0, err
			}
			// Video streams need several payloads to complete a PES.
			// A new media number on the decode stream means the old
			// object finished; park this header and hand the finished
			// object out before touching its data.
			if d.haveMediaBuf && hdr.stream == d.decodeStreamNumber && hdr.mediaNumber != d.mediaBufNumber {
				d.pendingHdr = hdr
				out := d.mediaBuf
				outPTS := d.mediaBufPTS
				d.mediaBuf = nil
				d.haveMediaBuf = false
				return out, outPTS, nil
			}
		}
		d.pendingHdr = nil
		if err := d.readPayloadData(hdr); err != nil {
			return nil, 0, err
		}
		d.payloadCur++
	}
	d.finishPacket()
	return nil, 0, nil
}

// finishPacket skips padding (and any slack against the declared packet
// length) and arms the next beginPacket.
func (d *Demuxer) finishPacket() {
	if d.packetLength > 0 {
		if target := d.packetStart + d.packetLength; target > d.src.Pos() {
			d.src.Skip(target - d.src.Pos())
		}
	} else if d.paddingLen > 0 {
		d.src.Skip(d.paddingLen)
	}
	d.packetsRead++
	d.inPacket = false
}

// readPayloadHeader parses one payload's header: the stream/key-frame
// byte, media object number, offset into the media object, replicated
// data (media object size, presentation time, extension systems, the
// DVR-MS rtStart), and the payload length.
func (d *Demuxer) readPayloadHeader() (*payloadHeader, error) {
	snByte := make([]byte, 1)
	if d.src.Read(snByte) != 1 {
		return nil, errs.ErrTruncatedInput
	}
	h := &payloadHeader{
		stream:   int(snByte[0] & 0x7F),
		keyFrame: snByte[0]&0x80 != 0,
	}

	var err error
	h.mediaNumber, err = d.readField(d.mediaNumWidth)
	if err != nil {
		return nil, err
	}
	h.offset, err = d.readField(d.offsetWidth)
	if err != nil {
		return nil, err
	}
	replicatedLen, err := d.readField(d.replicatedWidth)
	if err != nil {
		return nil, err
	}
	if replicatedLen == 1 {
		return nil, errs.Wrapf(errs.ErrUnsupportedFeature, "asf: compressed payload")
	}

	var presentationMillis uint32
	var rtStart int64
	haveRT := false
	if replicatedLen >= 8 {
		rep := make([]byte, replicatedLen)
		if d.src.Read(rep) != int(replicatedLen) {
			return nil, errs.ErrTruncatedInput
		}
		presentationMillis = binary.LittleEndian.Uint32(rep[4:8])
		if h.stream >= 0 && h.stream < StreamNum {
			if entry := d.payloadExtPTSEntry[h.stream]; entry > 0 {
				rtStart, haveRT = d.readDVRPTS(rep[8:], h.stream, entry)
			}
		}
	} else if replicatedLen > 0 {
		if d.src.Skip(replicatedLen) != replicatedLen {
			return nil, errs.ErrTruncatedInput
		}
	}
	if rtStart == -1 {
		// Unset dvr-ms timestamp.
		rtStart = 0
	}

	if d.multiplePayloads {
		h.length, err = d.readField(d.payloadLenWidth)
		if err != nil {
			return nil, err
		}
	} else {
		consumed := d.src.Pos() - d.packetStart
		h.length = d.packetLength - consumed - d.paddingLen
		if h.length < 0 {
			return nil, errs.ErrStructuralInconsistency
		}
	}

	d.trackTiming(h, presentationMillis, rtStart, haveRT)
	return h, nil
}

// trackTiming maintains the video-vs-caption clock comparison and the
// decode stream's reconstructed PTS. Only offset-zero payloads (the
// first of a media object) update the clocks.
func (d *Demuxer) trackTiming(h *payloadHeader, presentationMillis uint32, rtStart int64, haveRT bool) {
	if h.stream == d.videoStreamNumber && d.decodeStreamNumber != d.videoStreamNumber && h.offset == 0 {
		d.prevVideoStreamMS = d.currVideoStreamMS
		d.currVideoStreamMS = d.videoStreamMS
		if haveRT {
			if rtStart > 0 {
				d.videoStreamMS = time.Duration(rtStart/10000) * time.Millisecond
			}
		} else {
			// Add 1 ms so a 0 ms start time isn't rejected downstream.
			d.videoStreamMS = time.Duration(presentationMillis+1) * time.Millisecond
		}
		if delta := d.currVideoStreamMS - d.prevVideoStreamMS; delta > 500*time.Millisecond || delta < -500*time.Millisecond {
			d.videoJump = true
		}
	}

	if h.stream == d.decodeStreamNumber && h.offset == 0 {
		d.prevDecodePTS = d.currDecodePTS
		d.currDecodePTS = d.decodePTS
		if haveRT {
			if rtStart > 0 {
				d.decodePTS = time.Duration(rtStart/10000) * time.Millisecond
			}
		} else {
			d.decodePTS = time.Duration(presentationMillis+1) * time.Millisecond
		}
		if d.decodeStreamNumber != d.videoStreamNumber && !d.opts.IgnorePTSJumps {
			// A caption gap without a video jump is just missing
			// captions, not a timeline edit: stop sync checking.
			if d.currDecodePTS-d.prevDecodePTS > 500*time.Millisecond {
				d.DisableSyncCheck = !d.videoJump
			}
			d.videoJump = false
		}
		h.pts = d.decodePTS
	}
}

// readPayloadData consumes one payload's data bytes, appending them to
// the media-object buffer when they belong to the decode stream.
func (d *Demuxer) readPayloadData(h *payloadHeader) error {
	if h.stream != d.decodeStreamNumber {
		if d.src.Skip(h.length) != h.length {
			return errs.ErrTruncatedInput
		}
		return nil
	}

	if !d.haveMediaBuf {
		d.haveMediaBuf = true
		d.mediaBufNumber = h.mediaNumber
		d.mediaBufPTS = h.pts
		d.mediaBuf = d.mediaBuf[:0]
	}
	buf := make([]byte, h.length)
	n := d.src.Read(buf)
	d.mediaBuf = append(d.mediaBuf, buf[:n]...)
	if int64(n) != h.length {
		return errs.ErrTruncatedInput
	}
	return nil
}

// readDVRPTS walks a payload's extension-system region (the replicated
// bytes after the fixed 8-byte prefix), skipping every entry before the
// DVR-MS PTS entry by its declared size (0xFFFF-sized entries carry a
// 16-bit length prefix), then reads rtStart from offset 8 within the
// PTS entry.
func (d *Demuxer) readDVRPTS(ext []byte, stream, entry int) (int64, bool) {
	off := 0
	for i := 0; i < entry && i < PayExtNum; i++ {
		size := d.payloadExtSize[stream][i]
		if size < 0 {
			if off+2 > len(ext) {
				return 0, false
			}
			size = int(binary.LittleEndian.Uint16(ext[off : off+2]))
			off += 2
		}
		off += size
	}
	if off+16 > len(ext) {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(ext[off+8 : off+16])), true
}

func (d *Demuxer) skipField(width int) error {
	if width == 0 {
		return nil
	}
	if d.src.Skip(int64(width)) != int64(width) {
		return errs.ErrTruncatedInput
	}
	return nil
}

func (d *Demuxer) readField(width int) (int64, error) {
	if width == 0 {
		return 0, nil
	}
	b := make([]byte, width)
	if d.src.Read(b) != width {
		return 0, errs.ErrTruncatedInput
	}
	switch width {
	case 1:
		return int64(b[0]), nil
	case 2:
		return int64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return int64(binary.LittleEndian.Uint32(b)), nil
	}
	return 0, errs.ErrStructuralInconsistency
}
