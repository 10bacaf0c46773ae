// Package av defines the container-agnostic types shared by the
// demultiplexer, codec, and sequencing packages: stream roles, the
// container-mode enum, and the narrow source/sink interfaces the
// pipeline wires together.
package av

import "time"

// StreamRole classifies an elementary stream inside a container by the
// part it plays in caption extraction.
type StreamRole int

const (
	RoleIgnored StreamRole = iota
	RoleVideo
	RoleAudio
	RoleCaptionNTSC
	RoleCaptionATSC
)

func (r StreamRole) String() string {
	switch r {
	case RoleVideo:
		return "video"
	case RoleAudio:
		return "audio"
	case RoleCaptionNTSC:
		return "caption-ntsc"
	case RoleCaptionATSC:
		return "caption-atsc"
	default:
		return "ignored"
	}
}

// StreamMode selects the container/elementary-stream dispatch. This
// module implements Elementary, ASF, WTV, and MP4; the others are
// sibling collaborators that share the same producer interface.
type StreamMode int

const (
	ModeElementary StreamMode = iota
	ModeMPEGTS
	ModeMPEGPS
	ModeASF
	ModeWTV
	ModeGXF
	ModeMCPOODLERaw
	ModeRCWT
	ModeMatroska
	ModeMP4
	ModeMythTV
)

func (m StreamMode) String() string {
	switch m {
	case ModeElementary:
		return "elementary"
	case ModeMPEGTS:
		return "mpegts"
	case ModeMPEGPS:
		return "mpegps"
	case ModeASF:
		return "asf"
	case ModeWTV:
		return "wtv"
	case ModeGXF:
		return "gxf"
	case ModeMCPOODLERaw:
		return "mcpoodle-raw"
	case ModeRCWT:
		return "rcwt"
	case ModeMatroska:
		return "matroska"
	case ModeMP4:
		return "mp4"
	case ModeMythTV:
		return "mythtv"
	default:
		return "unknown"
	}
}

// Implemented reports whether this module's core implements m directly
// (as opposed to accepting it only as a declared, sibling-handled mode).
func (m StreamMode) Implemented() bool {
	switch m {
	case ModeElementary, ModeASF, ModeWTV, ModeMP4:
		return true
	default:
		return false
	}
}

// BufferDataType distinguishes the caption-byte layout fed to the
// external decoder: raw CEA-608 pairs, 708-encapsulated PES, or the
// codec the bytes were unwrapped from.
type BufferDataType int

const (
	BufferRaw608 BufferDataType = iota
	BufferPES
	BufferH264
	BufferHEVC
	BufferDVBSubtitle
	BufferTeletext
)

func (t BufferDataType) String() string {
	switch t {
	case BufferRaw608:
		return "raw608"
	case BufferPES:
		return "pes"
	case BufferH264:
		return "h264"
	case BufferHEVC:
		return "hevc"
	case BufferDVBSubtitle:
		return "dvbsub"
	case BufferTeletext:
		return "teletext"
	default:
		return "unknown"
	}
}

// CaptionBlock is one 3-byte CEA-608/708 cc_data tuple.
type CaptionBlock struct {
	Type  byte
	Data1 byte
	Data2 byte
}

// Valid reports whether this block survives the cc_valid bit CEA-608/708
// sources set on discard-worthy filler blocks.
func (b CaptionBlock) Valid() bool {
	return b.Type&0x04 != 0
}

// CaptionSink is the external 608/708 decoder collaborator: this
// module's only obligation is to hand it correctly timestamped byte
// blocks in display order.
type CaptionSink interface {
	// EmitBlocks delivers one HDCC bucket's caption bytes at fts (ms
	// since start of file), tagged with the container's buffer layout.
	EmitBlocks(fts time.Duration, blocks []CaptionBlock, layout BufferDataType) error

	// EmitText delivers a tx3g timed-text cue. End is unknown until the
	// next cue arrives; callers pass the previous cue's end once known.
	EmitText(start, end time.Duration, text string) error
}

// ByteSource is a read/skip cursor with an absolute offset and an EOF
// flag.
type ByteSource interface {
	// Read copies up to len(p) bytes, returning how many were read.
	// Unlike io.Reader, a short read before EOF is not an error: callers
	// check EOF() explicitly and keep whatever bytes were collected.
	Read(p []byte) (n int)
	// Skip advances the cursor by n bytes (or fewer, at EOF) and
	// reports how many were actually skipped.
	Skip(n int64) (skipped int64)
	// Pos reports the absolute byte offset of the next unread byte.
	Pos() int64
	// EOF reports whether the underlying source is exhausted.
	EOF() bool
}
