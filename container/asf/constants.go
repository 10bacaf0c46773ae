// Package asf implements the ASF/WTV demultiplexer: a header-object
// and data-packet state machine with multi-payload reassembly,
// optional DVR-MS 100 ns presentation timestamps, and caption-stream
// selection.
package asf

// StreamNum and PayExtNum bound the number of streams and payload
// extension system entries this demuxer tracks. Exceeding either is an
// errs.ErrOversizeDimensions; no real DVR-MS recording comes close.
const (
	StreamNum = 10
	PayExtNum = 10
)

// guid is a 16-byte little-endian UUID exactly as it appears on the
// wire.
type guid [16]byte

func g(b ...byte) guid {
	var out guid
	copy(out[:], b)
	return out
}

var (
	asfHeader = g(0x30, 0x26, 0xB2, 0x75, 0x8E, 0x66, 0xCF, 0x11, 0xA6, 0xD9, 0x00, 0xAA, 0x00, 0x62, 0xCE, 0x6C)
	asfData   = g(0x36, 0x26, 0xB2, 0x75, 0x8E, 0x66, 0xCF, 0x11, 0xA6, 0xD9, 0x00, 0xAA, 0x00, 0x62, 0xCE, 0x6C)

	asfFileProperties               = g(0xA1, 0xDC, 0xAB, 0x8C, 0x47, 0xA9, 0xCF, 0x11, 0x8E, 0xE4, 0x00, 0xC0, 0x0C, 0x20, 0x53, 0x65)
	asfStreamProperties             = g(0x91, 0x07, 0xDC, 0xB7, 0xB7, 0xA9, 0xCF, 0x11, 0x8E, 0xE6, 0x00, 0xC0, 0x0C, 0x20, 0x53, 0x65)
	asfHeaderExtension               = g(0xB5, 0x03, 0xBF, 0x5F, 0x2E, 0xA9, 0xCF, 0x11, 0x8E, 0xE3, 0x00, 0xC0, 0x0C, 0x20, 0x53, 0x65)
	asfContentDescription           = g(0x33, 0x26, 0xB2, 0x75, 0x8E, 0x66, 0xCF, 0x11, 0xA6, 0xD9, 0x00, 0xAA, 0x00, 0x62, 0xCE, 0x6C)
	asfExtendedContentDescription   = g(0x40, 0xA4, 0xD0, 0xD2, 0x07, 0xE3, 0xD2, 0x11, 0x97, 0xF0, 0x00, 0xA0, 0xC9, 0x5E, 0xA8, 0x50)
	asfStreamBitrateProperties      = g(0xCE, 0x75, 0xF8, 0x7B, 0x8D, 0x46, 0xD1, 0x11, 0x8D, 0x82, 0x00, 0x60, 0x97, 0xC9, 0xA2, 0xB2)
	asfExtendedStreamProperties     = g(0xCB, 0xA5, 0xE6, 0x14, 0x72, 0xC6, 0x32, 0x43, 0x83, 0x99, 0xA9, 0x69, 0x52, 0x06, 0x5B, 0x5A)
	asfMetadata                     = g(0xEA, 0xCB, 0xF8, 0xC5, 0xAF, 0x5B, 0x77, 0x48, 0x84, 0x67, 0xAA, 0x8C, 0x44, 0xFA, 0x4C, 0xCA)
	asfMetadataLibrary              = g(0x94, 0x1C, 0x23, 0x44, 0x98, 0x94, 0xD1, 0x49, 0xA1, 0x41, 0x1D, 0x13, 0x4E, 0x45, 0x70, 0x54)
	asfCompatibility2               = g(0x5D, 0x8B, 0xF1, 0x26, 0x84, 0x45, 0xEC, 0x47, 0x9F, 0x5F, 0x0E, 0x65, 0x1F, 0x04, 0x52, 0xC9)
	asfPadding                      = g(0x74, 0xD4, 0x06, 0x18, 0xDF, 0xCA, 0x09, 0x45, 0xA4, 0xBA, 0x9A, 0xAB, 0xCB, 0x96, 0xAA, 0xE8)

	asfAudioMedia  = g(0x40, 0x9E, 0x69, 0xF8, 0x4D, 0x5B, 0xCF, 0x11, 0xA8, 0xFD, 0x00, 0x80, 0x5F, 0x5C, 0x44, 0x2B)
	asfVideoMedia  = g(0xC0, 0xEF, 0x19, 0xBC, 0x4D, 0x5B, 0xCF, 0x11, 0xA8, 0xFD, 0x00, 0x80, 0x5F, 0x5C, 0x44, 0x2B)
	asfBinaryMedia = g(0xE2, 0x65, 0xFB, 0x3A, 0xEF, 0x47, 0xF2, 0x40, 0xAC, 0x2C, 0x70, 0xA9, 0x0D, 0x71, 0xD3, 0x43)

	dvrmsAudio = g(0x9D, 0x8C, 0x17, 0x31, 0xE1, 0x03, 0x28, 0x45, 0xB5, 0x82, 0x3D, 0xF9, 0xDB, 0x22, 0xF5, 0x03)
	dvrmsNTSC  = g(0x80, 0xEA, 0x0A, 0x67, 0x82, 0x3A, 0xD0, 0x11, 0xB7, 0x9B, 0x00, 0xAA, 0x00, 0x37, 0x67, 0xA7)
	dvrmsATSC  = g(0x89, 0x8A, 0x8B, 0xB8, 0x49, 0xB0, 0x80, 0x4C, 0xAD, 0xCF, 0x58, 0x98, 0x98, 0x5E, 0x22, 0xC1)
	dvrmsPTS   = g(0x2A, 0xC0, 0x3C, 0xFD, 0xDB, 0x06, 0xFA, 0x4C, 0x80, 0x1C, 0x72, 0x12, 0xD3, 0x87, 0x45, 0xE4)
)

// CaptionStreamStyle classifies a DVR-MS caption stream: none, NTSC
// byte pairs, or ATSC cc_data.
type CaptionStreamStyle int

const (
	CaptionStyleNone CaptionStreamStyle = iota
	CaptionStyleNTSC
	CaptionStyleATSC
)
