// Package decoder holds in-process av.CaptionSink implementations: a
// buffering sink for tests and the CLI's --dump mode, standing in for
// an external 608/708 decoder.
package decoder

import (
	"sort"
	"time"

	"github.com/capdemux/capdemux/av"
)

// BlockEvent is one EmitBlocks call captured by BufferSink.
type BlockEvent struct {
	FTS    time.Duration
	Blocks []av.CaptionBlock
	Layout av.BufferDataType
}

// TextEvent is one EmitText call captured by BufferSink.
type TextEvent struct {
	Start, End time.Duration
	Text       string
}

// BufferSink is an av.CaptionSink that records every call in memory,
// in arrival order, for assertion in tests or for serializing straight
// to stdout under --dump.
type BufferSink struct {
	Blocks []BlockEvent
	Texts  []TextEvent
}

// NewBufferSink constructs an empty BufferSink.
func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

func (s *BufferSink) EmitBlocks(fts time.Duration, blocks []av.CaptionBlock, layout av.BufferDataType) error {
	cp := make([]av.CaptionBlock, len(blocks))
	copy(cp, blocks)
	s.Blocks = append(s.Blocks, BlockEvent{FTS: fts, Blocks: cp, Layout: layout})
	return nil
}

func (s *BufferSink) EmitText(start, end time.Duration, text string) error {
	s.Texts = append(s.Texts, TextEvent{Start: start, End: end, Text: text})
	return nil
}

// SortByTime orders recorded block events by timestamp; the HDCC buffer
// already flushes in display order per stream, but a caller merging
// multiple tracks' sinks needs this to interleave them correctly.
func (s *BufferSink) SortByTime() {
	sort.SliceStable(s.Blocks, func(i, j int) bool {
		return s.Blocks[i].FTS < s.Blocks[j].FTS
	})
}

// RawBytes flattens every recorded block's triples into one byte slice,
// the shape the raw-608 output format wants.
func (s *BufferSink) RawBytes() []byte {
	var out []byte
	for _, ev := range s.Blocks {
		for _, b := range ev.Blocks {
			out = append(out, b.Type, b.Data1, b.Data2)
		}
	}
	return out
}
