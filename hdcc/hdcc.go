// Package hdcc implements the HDCC (High-Definition Closed-Caption)
// reorder buffer: a fixed-size circular store that reassembles caption
// blocks from decode order into display order, keyed by the AVC/HEVC
// sequencer's display-order index.
package hdcc

import (
	"time"

	"github.com/capdemux/capdemux/av"
)

// MaxBFrames bounds how many frames, temporally, a B-frame may sit
// before or after its anchor.
const MaxBFrames = 50

// SortBufSize is the number of buckets held at once: MaxBFrames on each
// side of the anchor plus the anchor slot itself.
const SortBufSize = 2*MaxBFrames + 1

// maxBlocksPerBucket bounds one bucket's caption-block capacity: MP4
// allows more cc triples per sample than broadcast streams, so it is
// sized for 10 cc_data bursts of up to 31 triples each, plus a
// sentinel slot.
const maxBlocksPerBucket = 10*31 + 1

// bucket is one display-order slot: a count, a timestamp, and a
// fixed-capacity block store.
type bucket struct {
	blocks []av.CaptionBlock
	fts    time.Duration
	filled bool
}

// Buffer is the HDCC reorder buffer for one decoded stream.
type Buffer struct {
	buckets [SortBufSize]bucket

	anchor    int
	hasAnchor bool

	// streamMode selects the store policy: MP4 samples append to an
	// existing bucket (multiple store calls can land in the same
	// display-order slot across a sample's NAL units), elementary
	// streams overwrite.
	streamMode av.StreamMode

	// UseGOPAsPTS reconstructs fts from a GOP-relative offset when the
	// container only timestamps once per GOP.
	UseGOPAsPTS bool
	fps         float64

	// LostBlocks counts caption loss: blocks displaced by a store into a
	// bucket that holds unflushed data under the overwrite policy, and
	// blocks refused because an MP4 bucket is full. A sequence index
	// overflow flushes and re-anchors without losing blocks.
	LostBlocks int

	// Layout tags flushed blocks with their byte layout so the sink's
	// per-field counters stay correct for container-anchored samples.
	Layout av.BufferDataType
}

// NewBuffer constructs an HDCC buffer for streamMode, which selects the
// append-vs-overwrite store policy and the default block layout.
func NewBuffer(streamMode av.StreamMode) *Buffer {
	b := &Buffer{streamMode: streamMode, Layout: av.BufferRaw608}
	if streamMode == av.ModeMP4 {
		b.Layout = av.BufferH264
	}
	b.Init()
	return b
}

// Init clears all buckets and the anchor.
func (b *Buffer) Init() {
	for i := range b.buckets {
		b.buckets[i] = bucket{}
	}
	b.hasAnchor = false
	b.anchor = 0
}

// Anchor sets the display-order index that subsequent Store calls are
// relative to.
func (b *Buffer) Anchor(seqNo int) {
	b.anchor = seqNo
	b.hasAnchor = true
}

// SetFPS records the frame rate used to reconstruct per-frame fts under
// UseGOPAsPTS.
func (b *Buffer) SetFPS(fps float64) { b.fps = fps }

// Store buffers cc blocks at seqNo's display-order slot with timestamp
// fts, flushing and re-anchoring first if seqNo falls outside the
// current window. enc receives any blocks flushed by that recovery.
func (b *Buffer) Store(blocks []av.CaptionBlock, seqNo int, fts time.Duration, enc av.CaptionSink) error {
	if !b.hasAnchor {
		b.Anchor(seqNo)
	}

	idx := seqNo - b.anchor + MaxBFrames
	if idx < 0 || idx > 2*MaxBFrames {
		// Sequencing overflow: best-effort recovery by flushing what
		// we have and re-anchoring on this frame.
		if err := b.Process(enc); err != nil {
			return err
		}
		b.Anchor(seqNo)
		idx = seqNo - b.anchor + MaxBFrames
		if idx < 0 || idx > 2*MaxBFrames {
			// Still out of range: clamp rather than panic: this frame's
			// blocks are lost, matching the Caption-loss policy.
			b.LostBlocks += len(blocks)
			return nil
		}
	}

	if b.UseGOPAsPTS && b.fps > 0 {
		fts += time.Duration(float64(seqNo) * float64(time.Second) / b.fps)
	}

	if len(blocks) == 0 {
		return nil
	}

	bk := &b.buckets[idx]
	bk.fts = fts
	switch b.streamMode {
	case av.ModeMP4:
		if !bk.filled {
			bk.blocks = nil
		}
		if len(bk.blocks)+len(blocks) > maxBlocksPerBucket {
			b.LostBlocks += len(blocks)
			return nil
		}
		bk.blocks = append(bk.blocks, blocks...)
	default:
		if bk.filled {
			b.LostBlocks += len(bk.blocks)
		}
		bk.blocks = append([]av.CaptionBlock(nil), blocks...)
	}
	bk.filled = true
	return nil
}

// Process flushes every non-empty bucket to enc in ascending
// display-order index, then reinitializes the buffer.
func (b *Buffer) Process(enc av.CaptionSink) error {
	for i := range b.buckets {
		bk := &b.buckets[i]
		if !bk.filled || len(bk.blocks) == 0 {
			continue
		}
		if err := enc.EmitBlocks(bk.fts, bk.blocks, b.Layout); err != nil {
			return err
		}
	}
	b.Init()
	return nil
}
