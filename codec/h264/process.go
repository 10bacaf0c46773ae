package h264

import (
	"time"

	"github.com/capdemux/capdemux/av"
	"github.com/capdemux/capdemux/config"
	"github.com/capdemux/capdemux/hdcc"
)

// StreamProcessor runs an AVC elementary stream, one NAL unit at a
// time, through SPS tracking, SEI caption extraction, and slice-header
// display-order sequencing into an HDCC buffer. Both the MP4 sample
// driver and the elementary-stream pipeline feed it; the only
// difference between the two is the hdcc store policy selected by the
// stream mode at construction.
type StreamProcessor struct {
	usePicOrder bool
	trustVUI    bool

	sps     SPS
	haveSPS bool
	seq     *Sequencer
	fps     float64

	buf     *hdcc.Buffer
	pending []av.CaptionBlock
	lastFTS time.Duration

	// HRDEncountered and OversizedSEI feed the per-file report.
	HRDEncountered bool
	OversizedSEI   int
}

// NewStreamProcessor constructs a processor whose HDCC buffer uses
// mode's store policy (MP4 appends into a bucket, elementary streams
// overwrite).
func NewStreamProcessor(mode av.StreamMode, opts config.Options) *StreamProcessor {
	p := &StreamProcessor{
		usePicOrder: opts.UsePicOrder,
		trustVUI:    opts.TrustVUIFrameRate,
		fps:         25,
		buf:         hdcc.NewBuffer(mode),
	}
	if opts.UseGOPAsPTS {
		p.buf.UseGOPAsPTS = true
	}
	return p
}

// ProcessNALUnit consumes one NAL unit (header byte attached, length
// framing already stripped). pts is the container PTS in MPEGClockFreq
// ticks; fts is the frame timestamp handed to the sink on flush.
func (p *StreamProcessor) ProcessNALUnit(n []byte, pts int64, fts time.Duration, sink av.CaptionSink) error {
	if len(n) == 0 {
		return nil
	}
	p.lastFTS = fts
	nalType := uint(n[0] & 0x1F)
	switch {
	case nalType == NALSPS:
		sps, err := ParseSPS(n)
		if err != nil {
			return nil // skip the broken NAL, keep the stream
		}
		if sps.VUI.HRDPresent {
			p.HRDEncountered = true
		}
		if p.trustVUI && sps.VUI.FPS > 0 {
			p.fps = sps.VUI.FPS
			p.buf.SetFPS(p.fps)
		}
		// Recreate the sequencer only when the field widths driving
		// frame_num/POC arithmetic change; SPS repeats once per GOP in
		// broadcast streams and must not reset GOP bookkeeping.
		if !p.haveSPS ||
			sps.Log2MaxFrameNumMinus4 != p.sps.Log2MaxFrameNumMinus4 ||
			sps.Log2MaxPicOrderCntLsbMinus4 != p.sps.Log2MaxPicOrderCntLsbMinus4 ||
			sps.PicOrderCntType != p.sps.PicOrderCntType {
			p.seq = NewSequencer(sps, p.usePicOrder, p.fps)
		}
		p.seq.FPS = p.fps
		p.sps = sps
		p.haveSPS = true

	case nalType == NALSEI:
		payloads, err := ParseSEI(n)
		if err != nil {
			return nil
		}
		for _, pl := range payloads {
			cc, err := ExtractCCData(pl)
			if err != nil {
				if err == ErrSEISyntax {
					p.OversizedSEI++
				}
				continue
			}
			p.pending = append(p.pending, SplitCCTriples(cc)...)
		}

	case IsSliceNALU(nalType):
		if !p.haveSPS || p.seq == nil {
			return nil
		}
		sh, err := ParseSliceHeader(n, nalType, p.sps)
		if err != nil {
			return nil
		}
		skipped, err := p.seq.Process(sh, pts, p.pending, fts, p.buf, sink)
		if err != nil {
			return err
		}
		if !skipped {
			p.pending = nil
		}
	}
	return nil
}

// Flush stores any caption blocks still pending (a trailing SEI with no
// slice after it) and drains the HDCC buffer to sink.
func (p *StreamProcessor) Flush(sink av.CaptionSink) error {
	if len(p.pending) > 0 {
		if err := p.buf.Store(p.pending, 0, p.lastFTS, sink); err != nil {
			return err
		}
		p.pending = nil
	}
	return p.buf.Process(sink)
}

// Jumps reports the frame_num discontinuities the sequencer observed.
func (p *StreamProcessor) Jumps() int {
	if p.seq == nil {
		return 0
	}
	return p.seq.JumpCount()
}

// LostBlocks reports caption blocks dropped by the HDCC store.
func (p *StreamProcessor) LostBlocks() int {
	return p.buf.LostBlocks
}

// SplitCCTriples turns a flat cc_data byte slice into caption-block
// triples, the shape the HDCC buffer and caption sink expect. A
// trailing partial triple is dropped.
func SplitCCTriples(cc []byte) []av.CaptionBlock {
	var blocks []av.CaptionBlock
	for i := 0; i+3 <= len(cc); i += 3 {
		blocks = append(blocks, av.CaptionBlock{Type: cc[i], Data1: cc[i+1], Data2: cc[i+2]})
	}
	return blocks
}
