// Package pipeline drives one input file from a container demultiplexer
// through to a caption sink, polling for cancellation once per
// media-object iteration.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/capdemux/capdemux/av"
	"github.com/capdemux/capdemux/codec/h264"
	"github.com/capdemux/capdemux/codec/mpeg2"
	"github.com/capdemux/capdemux/codec/nal"
	"github.com/capdemux/capdemux/common/errs"
	"github.com/capdemux/capdemux/config"
	"github.com/capdemux/capdemux/container/asf"
	"github.com/capdemux/capdemux/stats"
)

// ASFSource is the subset of *asf.Demuxer the pipeline drives, named so
// tests can substitute a fake without constructing a real ASF file.
type ASFSource interface {
	ReadMediaObject() (pts time.Duration, data []byte, err error)
	DecodeStream() (streamNumber int, layout av.BufferDataType)
	EOF() bool
}

var _ ASFSource = (*asf.Demuxer)(nil)

// Options configures one pipeline run.
type Options struct {
	AfterMediaObject func(pts time.Duration, data []byte) error
}

type Option func(*Options)

// WithAfterMediaObject installs a hook invoked after each media object
// is read but before it's handed to the sink, used for debug-channel
// tracing.
func WithAfterMediaObject(f func(pts time.Duration, data []byte) error) Option {
	return func(o *Options) { o.AfterMediaObject = f }
}

// Pipeline copies caption bytes from a container source into a sink
// until the source is exhausted or ctx is canceled.
type Pipeline struct {
	opts   Options
	Report *stats.Report
}

// New constructs a Pipeline with its own statistics Report.
func New(opt ...Option) *Pipeline {
	opts := Options{}
	for _, o := range opt {
		o(&opts)
	}
	return &Pipeline{opts: opts, Report: stats.NewReport()}
}

// RunASF drives src's media objects through decode to sink. Raw-608
// objects (a dedicated DVR-MS caption stream) are byte pairs fed
// through unchanged; PES objects are the video stream's MPEG-2 PES,
// unwrapped and scanned for ATSC user-data cc_data.
func (p *Pipeline) RunASF(ctx context.Context, src ASFSource, sink av.CaptionSink) error {
	_, layout := src.DecodeStream()
	for {
		if contextDone(ctx) {
			return fmt.Errorf("pipeline: canceled")
		}
		pts, data, err := src.ReadMediaObject()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		p.Report.ObservePTS(pts)
		if p.opts.AfterMediaObject != nil {
			if err := p.opts.AfterMediaObject(pts, data); err != nil {
				return err
			}
		}
		if len(data) == 0 {
			continue
		}

		var blocks []av.CaptionBlock
		switch layout {
		case av.BufferRaw608:
			blocks = pairBlocks(data)
		default:
			blocks = mpeg2.ExtractCC(mpeg2.PESPayload(data))
		}
		if len(blocks) == 0 {
			continue
		}
		p.Report.BlocksReceived += len(blocks)
		if err := sink.EmitBlocks(pts, blocks, layout); err != nil {
			return errs.Wrapf(err, "pipeline: emit blocks")
		}
	}
}

// RunElementary processes a raw AVC Annex-B elementary stream. With no
// container timestamps to order against, B-frame reordering runs on
// picture-order counts regardless of the UsePicOrder option, and fts
// reconstruction falls back to the GOP-as-PTS policy when selected.
func (p *Pipeline) RunElementary(ctx context.Context, r io.Reader, opts config.Options, sink av.CaptionSink) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errs.Wrapf(errs.ErrTruncatedInput, "pipeline: read elementary stream: %v", err)
	}
	opts.UsePicOrder = true
	proc := h264.NewStreamProcessor(av.ModeElementary, opts)

	units, _ := nal.Split(data)
	for _, n := range units {
		if contextDone(ctx) {
			return fmt.Errorf("pipeline: canceled")
		}
		if err := proc.ProcessNALUnit(n, 0, 0, sink); err != nil {
			return err
		}
	}
	if err := proc.Flush(sink); err != nil {
		return err
	}
	p.Report.NALJumps += proc.Jumps()
	p.Report.BlocksLost += proc.LostBlocks()
	p.Report.OversizedSEI += proc.OversizedSEI
	if proc.HRDEncountered {
		p.Report.HRDEncountered = true
	}
	return nil
}

// pairBlocks wraps raw CEA-608 byte pairs (a DVR-MS NTSC caption
// stream's media-object payload) as field-1 cc_data blocks.
func pairBlocks(data []byte) []av.CaptionBlock {
	var blocks []av.CaptionBlock
	for i := 0; i+2 <= len(data); i += 2 {
		blocks = append(blocks, av.CaptionBlock{Type: 0xFC, Data1: data[i], Data2: data[i+1]})
	}
	return blocks
}

func contextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
