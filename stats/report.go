// Package stats collects per-file extraction diagnostics: GOP boundary
// spacing, frame_num discontinuities, SEI length anomalies,
// caption-block loss, and the PTS range observed. One small accumulator
// type per metric, fed from the hot path.
package stats

import (
	"fmt"
	"time"
)

// Report accumulates statistics across one input file's extraction run.
type Report struct {
	// NALJumps counts frame_num discontinuities, summed across every
	// AVC stream processed.
	NALJumps int
	// OversizedSEI counts SEI caption payloads discarded as malformed:
	// cc_data running past the payload, a missing 0xFF marker, or a
	// cc_count that disagrees with user_data_len. SEI payloads whose
	// payload_size runs past the NAL unit are dropped without counting.
	OversizedSEI int
	// BlocksReceived and BlocksLost count caption blocks delivered to
	// the sink and dropped by the reorder store.
	BlocksReceived int
	BlocksLost     int
	// HRDEncountered records that VUI parsing stopped early on an HRD
	// flag, so frame-rate recovery from VUI may be incomplete.
	HRDEncountered bool

	gop          *Gop
	minPTS       time.Duration
	maxPTS       time.Duration
	havePTS      bool
}

// NewReport constructs an empty Report with its own GOP accumulator.
func NewReport() *Report {
	return &Report{gop: NewGop()}
}

// ObservePTS widens the file's [min, max] PTS range.
func (r *Report) ObservePTS(pts time.Duration) {
	if !r.havePTS {
		r.minPTS, r.maxPTS = pts, pts
		r.havePTS = true
		return
	}
	if pts < r.minPTS {
		r.minPTS = pts
	}
	if pts > r.maxPTS {
		r.maxPTS = pts
	}
}

// ObserveAnchor feeds one anchor-frame timestamp to the GOP accumulator.
func (r *Report) ObserveAnchor(pts time.Duration) {
	r.gop.Add(pts)
}

// PTSRange reports the observed [min, max] PTS window.
func (r *Report) PTSRange() (min, max time.Duration) {
	return r.minPTS, r.maxPTS
}

func (r *Report) String() string {
	min, max := r.PTSRange()
	return fmt.Sprintf(
		"nal_jumps=%d oversized_sei=%d blocks=%d/%d lost hrd=%v gop=%s pts=[%s,%s]",
		r.NALJumps, r.OversizedSEI, r.BlocksReceived, r.BlocksLost, r.HRDEncountered,
		r.gop.String(), min, max,
	)
}

// Gop tracks the spacing between anchor (IDR/reference) frame
// timestamps.
type Gop struct {
	gop          time.Duration
	lastAnchorTS time.Duration
	haveAnchor   bool
}

// NewGop constructs an empty Gop accumulator.
func NewGop() *Gop {
	return &Gop{}
}

// Add records one anchor frame's timestamp.
func (g *Gop) Add(ts time.Duration) {
	if g.haveAnchor {
		g.gop = ts - g.lastAnchorTS
	}
	g.lastAnchorTS = ts
	g.haveAnchor = true
}

// GetGop reports the most recent anchor-to-anchor spacing, in seconds.
func (g *Gop) GetGop() float64 {
	return g.gop.Seconds()
}

func (g *Gop) String() string {
	return fmt.Sprintf("%.2fs", g.GetGop())
}
