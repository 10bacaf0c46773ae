// Package mp4 drives caption extraction from ISO-BMFF (MP4) files: one
// pass per track, dispatching on the sample description box's codec
// fourcc to the AVC/HEVC NAL scanner, the MPEG-2 (xdvb) user-data
// scanner, the tx3g timed-text cue reader, or the QuickTime
// closed-caption (c608/c708) atom walk. ISO-BMFF box decoding is
// delegated to github.com/Eyevinn/mp4ff.
package mp4

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/capdemux/capdemux/av"
	"github.com/capdemux/capdemux/codec/h264"
	"github.com/capdemux/capdemux/codec/hevc"
	"github.com/capdemux/capdemux/codec/mpeg2"
	"github.com/capdemux/capdemux/codec/nal"
	"github.com/capdemux/capdemux/common/errs"
	"github.com/capdemux/capdemux/config"
	"github.com/capdemux/capdemux/hdcc"
)

// sampleEntryCodec classifies a track's sample description fourcc.
type sampleEntryCodec int

const (
	codecUnsupported sampleEntryCodec = iota
	codecAVC
	codecHEVC
	codecMPEG2
	codecTx3g
	codecCEA608
	codecCEA708
	codecVobSub
)

func classify(boxType string) sampleEntryCodec {
	switch boxType {
	case "avc1", "avc3":
		return codecAVC
	case "hev1", "hvc1":
		return codecHEVC
	case "xdvb":
		return codecMPEG2
	case "tx3g":
		return codecTx3g
	case "c608":
		return codecCEA608
	case "c708":
		return codecCEA708
	case "vobsub", "VOBSUB":
		return codecVobSub
	default:
		return codecUnsupported
	}
}

// sample is one decoded entry from the stsz/stsc/stco/stts walk: its
// byte range in the file and its presentation timestamp.
type sample struct {
	offset int64
	size   uint32
	pts    time.Duration
}

// Extract reads every track in r's MP4 structure and delivers caption
// blocks and timed-text cues to sink in sample order, one track at a
// time; tracks are not interleaved by PTS across the whole file, only
// within a track's own samples.
func Extract(r io.ReadSeeker, opts config.Options, sink av.CaptionSink) error {
	f, err := mp4.DecodeFile(r)
	if err != nil {
		return errs.Wrapf(errs.ErrMalformedMagic, "mp4: decode: %v", err)
	}
	if f.Moov == nil {
		return errs.ErrStructuralInconsistency
	}

	for _, trak := range f.Moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
			continue
		}
		stbl := trak.Mdia.Minf.Stbl
		if stbl.Stsd == nil || len(stbl.Stsd.Children) == 0 {
			continue
		}
		codec := classify(stbl.Stsd.Children[0].Type())
		if codec == codecUnsupported {
			continue
		}

		samples, err := walkSampleTable(trak)
		if err != nil {
			return err
		}

		switch codec {
		case codecAVC:
			err = extractAVCTrack(r, samples, opts, sink)
		case codecHEVC:
			err = extractHEVCTrack(r, samples, sink)
		case codecMPEG2:
			err = extractMPEG2Track(r, samples, sink)
		case codecTx3g:
			err = extractTx3g(r, samples, sink)
		case codecCEA608, codecCEA708:
			err = extractCLCPTrack(r, samples, sink, codec == codecCEA708)
		case codecVobSub:
			// VOBSUB bitmap subtitles carry no CEA-608/708 or tx3g
			// text; decoding the bitmaps is an OCR concern outside
			// this module, so the samples are only acknowledged.
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// walkSampleTable reconstructs each sample's absolute file offset, byte
// size, and decode timestamp from stsz (sizes), stsc+stco/co64 (chunk
// layout), and stts (time deltas). ctts composition offsets are folded
// in when present so the returned pts is presentation, not decode
// (display reordering for B-frames still happens afterward, in the
// HDCC buffer).
func walkSampleTable(trak *mp4.TrakBox) ([]sample, error) {
	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil || stbl.Stsc == nil {
		return nil, errs.ErrStructuralInconsistency
	}
	nrSamples := int(stbl.Stsz.SampleNumber)
	sizes := make([]uint32, nrSamples)
	for i := 0; i < nrSamples; i++ {
		if stbl.Stsz.SampleUniformSize > 0 {
			sizes[i] = stbl.Stsz.SampleUniformSize
		} else if i < len(stbl.Stsz.SampleSize) {
			sizes[i] = stbl.Stsz.SampleSize[i]
		}
	}

	var chunkOffsets []int64
	switch {
	case stbl.Stco != nil:
		for _, o := range stbl.Stco.ChunkOffset {
			chunkOffsets = append(chunkOffsets, int64(o))
		}
	case stbl.Co64 != nil:
		for _, o := range stbl.Co64.ChunkOffset {
			chunkOffsets = append(chunkOffsets, int64(o))
		}
	default:
		return nil, errs.ErrStructuralInconsistency
	}

	offsets := make([]int64, nrSamples)
	sampleIdx := 0
	for entryIdx, entry := range stbl.Stsc.Entries {
		firstChunk := int(entry.FirstChunk)
		samplesPerChunk := int(entry.SamplesPerChunk)
		lastChunk := len(chunkOffsets)
		if entryIdx+1 < len(stbl.Stsc.Entries) {
			lastChunk = int(stbl.Stsc.Entries[entryIdx+1].FirstChunk) - 1
		}
		for chunk := firstChunk; chunk <= lastChunk && chunk-1 < len(chunkOffsets); chunk++ {
			pos := chunkOffsets[chunk-1]
			for s := 0; s < samplesPerChunk && sampleIdx < nrSamples; s++ {
				offsets[sampleIdx] = pos
				pos += int64(sizes[sampleIdx])
				sampleIdx++
			}
		}
	}

	timescale := uint32(h264.MPEGClockFreq)
	if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale > 0 {
		timescale = trak.Mdia.Mdhd.Timescale
	}

	ptss := make([]time.Duration, nrSamples)
	if stbl.Stts != nil {
		var decodeTime uint64
		idx := 0
		for e := 0; e < len(stbl.Stts.SampleCount); e++ {
			for c := uint32(0); c < stbl.Stts.SampleCount[e] && idx < nrSamples; c++ {
				ptss[idx] = timescaleToDuration(int64(decodeTime), timescale)
				decodeTime += uint64(stbl.Stts.SampleTimeDelta[e])
				idx++
			}
		}
	}
	if stbl.Ctts != nil {
		idx := 0
		for e := 0; e < stbl.Ctts.NrSampleCount(); e++ {
			for c := uint32(0); c < stbl.Ctts.SampleCount(e) && idx < nrSamples; c++ {
				ptss[idx] += timescaleToDuration(int64(stbl.Ctts.SampleOffset[e]), timescale)
				idx++
			}
		}
	}

	out := make([]sample, nrSamples)
	for i := 0; i < nrSamples; i++ {
		out[i] = sample{offset: offsets[i], size: sizes[i], pts: ptss[i]}
	}
	return out, nil
}

func timescaleToDuration(ticks int64, timescale uint32) time.Duration {
	if timescale == 0 {
		return 0
	}
	return time.Duration(ticks) * time.Second / time.Duration(timescale)
}

// durationTo90kHz converts a presentation time to MPEG 90 kHz clock
// ticks, the domain the slice sequencer compares PTS values in.
func durationTo90kHz(d time.Duration) int64 {
	return int64(d) * h264.MPEGClockFreq / int64(time.Second)
}

func readSample(r io.ReadSeeker, smp sample) ([]byte, error) {
	if _, err := r.Seek(smp.offset, io.SeekStart); err != nil {
		return nil, errs.Wrapf(errs.ErrTruncatedInput, "mp4: seek sample: %v", err)
	}
	data := make([]byte, smp.size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errs.Wrapf(errs.ErrTruncatedInput, "mp4: read sample: %v", err)
	}
	return data, nil
}

// nalLengthSize is the byte width of the NAL length prefix inside AVC/
// HEVC samples (avcC/hvcC lengthSizeMinusOne + 1). Writers universally
// emit 4; mp4ff's box decode does not surface the raw configuration
// record field, so the default is fixed here.
const nalLengthSize = 4

// extractAVCTrack walks each sample's length-prefixed NAL units through
// a StreamProcessor: SPS tracking, SEI cc_data extraction, slice-header
// sequencing, HDCC storage in MP4 append mode.
func extractAVCTrack(r io.ReadSeeker, samples []sample, opts config.Options, sink av.CaptionSink) error {
	proc := h264.NewStreamProcessor(av.ModeMP4, opts)
	for _, smp := range samples {
		data, err := readSample(r, smp)
		if err != nil {
			return err
		}
		for _, n := range nal.SplitLengthPrefixed(data, nalLengthSize) {
			if err := proc.ProcessNALUnit(n, durationTo90kHz(smp.pts), smp.pts, sink); err != nil {
				return err
			}
		}
	}
	return proc.Flush(sink)
}

// extractHEVCTrack mirrors the AVC walk but, because HEVC slice-header
// POC recovery is not implemented, flushes the caption buffer at the
// end of every sample instead of per anchor: the container PTS anchors
// each sample precisely, so decode order is display order here.
func extractHEVCTrack(r io.ReadSeeker, samples []sample, sink av.CaptionSink) error {
	buf := hdcc.NewBuffer(av.ModeMP4)
	buf.Layout = av.BufferHEVC
	for _, smp := range samples {
		data, err := readSample(r, smp)
		if err != nil {
			return err
		}
		var blocks []av.CaptionBlock
		for _, n := range nal.SplitLengthPrefixed(data, nalLengthSize) {
			nalType, err := hevc.NALType(n)
			if err != nil {
				continue
			}
			if nalType != hevc.NALPrefixSEI && nalType != hevc.NALSuffixSEI {
				continue
			}
			payloads, err := hevc.ParseSEI(n)
			if err != nil {
				continue
			}
			for _, p := range payloads {
				if cc, err := hevc.ExtractCCData(p); err == nil {
					blocks = append(blocks, h264.SplitCCTriples(cc)...)
				}
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if err := buf.Store(blocks, 0, smp.pts, sink); err != nil {
			return err
		}
		if err := buf.Process(sink); err != nil {
			return err
		}
	}
	return nil
}

// extractMPEG2Track processes xdvb samples as MPEG-2 video: each
// sample is scanned for ATSC A/53 user-data blocks, and the recovered
// cc_data is anchored on the sample PTS.
func extractMPEG2Track(r io.ReadSeeker, samples []sample, sink av.CaptionSink) error {
	for _, smp := range samples {
		data, err := readSample(r, smp)
		if err != nil {
			return err
		}
		blocks := mpeg2.ExtractCC(data)
		if len(blocks) == 0 {
			continue
		}
		if err := sink.EmitBlocks(smp.pts, blocks, av.BufferPES); err != nil {
			return err
		}
	}
	return nil
}

// extractCLCPTrack walks c608/c708 QuickTime closed-caption samples.
// Each sample is a sequence of atoms (32-bit length, 4-char tag):
// cdat/cdt2 atoms carry raw CEA-608 byte pairs for fields 1 and 2;
// ccdp atoms carry a SMPTE 334-2 CDP whose cc_data section holds
// CEA-708 triples.
func extractCLCPTrack(r io.ReadSeeker, samples []sample, sink av.CaptionSink, isCEA708 bool) error {
	for _, smp := range samples {
		data, err := readSample(r, smp)
		if err != nil {
			return err
		}
		for len(data) >= 8 {
			atomLen := int(binary.BigEndian.Uint32(data[0:4]))
			if atomLen < 8 || atomLen > len(data) {
				break
			}
			tag := string(data[4:8])
			body := data[8:atomLen]
			var blocks []av.CaptionBlock
			switch {
			case isCEA708 && tag == "ccdp":
				blocks = cdpBlocks(body)
			case !isCEA708 && (tag == "cdat" || tag == "cdt2"):
				blocks = pairBlocks(body, tag == "cdt2")
			}
			if len(blocks) > 0 {
				layout := av.BufferRaw608
				if isCEA708 {
					layout = av.BufferHEVC
				}
				if err := sink.EmitBlocks(smp.pts, blocks, layout); err != nil {
					return err
				}
			}
			data = data[atomLen:]
		}
	}
	return nil
}

// pairBlocks feeds cdat/cdt2 byte pairs to the sink two bytes at a
// time, tagged as NTSC field 1 or field 2 cc_data.
func pairBlocks(body []byte, field2 bool) []av.CaptionBlock {
	ccType := byte(0xFC)
	if field2 {
		ccType = 0xFD
	}
	var blocks []av.CaptionBlock
	for i := 0; i+2 <= len(body); i += 2 {
		blocks = append(blocks, av.CaptionBlock{Type: ccType, Data1: body[i], Data2: body[i+1]})
	}
	return blocks
}

// CDP section ids, SMPTE 334-2.
const (
	cdpSectionData    = 0x72
	cdpSectionSvcInfo = 0x73
	cdpSectionFooter  = 0x74
)

// cdpBlocks unwraps a ccdp atom body: 0x9669 magic, packet length and
// frame-rate bytes, flags, a sequence counter, an optional timecode
// section, then the 0x72 cc_data section with cc_count triples.
func cdpBlocks(body []byte) []av.CaptionBlock {
	cc := cdpFindData(body)
	if cc == nil {
		return nil
	}
	var blocks []av.CaptionBlock
	for i := 0; i+3 <= len(cc); i += 3 {
		info := cc[i]
		if info == cdpSectionSvcInfo || info == cdpSectionFooter {
			// Premature end of the cc_data section.
			break
		}
		if (info == 0xFA || info == 0xFC || info == 0xFD) && cc[i+1]&0x7F == 0 && cc[i+2]&0x7F == 0 {
			continue // zero cc data
		}
		blocks = append(blocks, av.CaptionBlock{Type: info, Data1: cc[i+1], Data2: cc[i+2]})
	}
	return blocks
}

func cdpFindData(data []byte) []byte {
	if len(data) < 4 {
		return nil
	}
	if binary.BigEndian.Uint16(data[0:2]) != 0x9669 {
		return nil
	}
	data = data[2:]

	cdpDataCount := int(data[0])
	if cdpDataCount != len(data)+2 {
		return nil
	}
	data = data[2:] // data count + frame-rate byte

	if len(data) < 3 {
		return nil
	}
	cdpFlags := data[0]
	data = data[3:] // flags + 16-bit sequence counter

	timecodeAdded := cdpFlags&0x80 != 0
	dataAdded := cdpFlags&0x40 != 0
	if !dataAdded {
		return nil
	}
	if timecodeAdded {
		if len(data) < 4 {
			return nil
		}
		data = data[4:]
	}

	if len(data) < 2 || data[0] != cdpSectionData {
		return nil
	}
	ccCount := int(data[1] & 0x1F)
	if ccCount != 10 && ccCount != 20 && ccCount != 25 && ccCount != 30 {
		return nil
	}
	data = data[2:]
	if ccCount*3 > len(data) {
		return nil
	}
	return data[:ccCount*3]
}

// extractTx3g reads tx3g timed-text samples (a 2-byte big-endian text
// length followed by that many UTF-8 bytes) and emits one cue per
// sample, closing each cue's end at the next sample's pts.
func extractTx3g(r io.ReadSeeker, samples []sample, sink av.CaptionSink) error {
	var pendingStart time.Duration
	var pendingText string
	havePending := false

	for _, smp := range samples {
		data, err := readSample(r, smp)
		if err != nil {
			return err
		}
		if havePending {
			if err := sink.EmitText(pendingStart, smp.pts, pendingText); err != nil {
				return err
			}
			havePending = false
		}
		if len(data) < 2 {
			continue
		}
		textLen := int(binary.BigEndian.Uint16(data[0:2]))
		if textLen <= 0 || 2+textLen > len(data) {
			continue
		}
		pendingText = string(data[2 : 2+textLen])
		pendingStart = smp.pts
		havePending = true
	}
	if havePending {
		return sink.EmitText(pendingStart, pendingStart, pendingText)
	}
	return nil
}
