package h264

import (
	"time"

	"github.com/capdemux/capdemux/av"
	"github.com/capdemux/capdemux/bitreader"
	"github.com/capdemux/capdemux/hdcc"
)

// MPEGClockFreq is the 90 kHz clock PTS/DTS values are expressed in
// throughout the container and sequencing layers.
const MPEGClockFreq = 90000

// slice_type values that mark a reference (anchor) picture: P (0, 5)
// and I (2, 7), per ISO/IEC 14496-10 Table 7-6.
func isAnchorSliceType(sliceType uint) bool {
	switch sliceType {
	case 0, 2, 5, 7:
		return true
	default:
		return false
	}
}

// SliceHeader holds the slice-header fields needed for display-order
// sequencing; nothing past pic_order_cnt_lsb is retained.
type SliceHeader struct {
	FirstMbInSlice   uint
	SliceType        uint
	PicParamSetID    uint
	FrameNum         uint
	FieldPicFlag     uint
	BottomFieldFlag  uint
	IDRPicID         uint
	PicOrderCntLsb   int
	IsIDR            bool
}

// ParseSliceHeader reads first_mb_in_slice through pic_order_cnt_lsb
// against the active SPS.
func ParseSliceHeader(nalBody []byte, nalType uint, sps SPS) (SliceHeader, error) {
	rbsp, err := removeEmulation(nalBody)
	if err != nil {
		return SliceHeader{}, err
	}
	r := bitreader.New(rbsp)
	r.SkipBits(8) // nal header

	var sh SliceHeader
	sh.IsIDR = nalType == NALIDRSlice
	sh.FirstMbInSlice = uint(r.ReadExpGolombUnsigned())
	sh.SliceType = uint(r.ReadExpGolombUnsigned()) % 5
	sh.PicParamSetID = uint(r.ReadExpGolombUnsigned())

	log2MaxFrameNum := sps.Log2MaxFrameNumMinus4 + 4
	sh.FrameNum = uint(r.ReadBits(log2MaxFrameNum))

	if sps.FrameMbsOnlyFlag == 0 {
		sh.FieldPicFlag = uint(r.ReadBit())
		if sh.FieldPicFlag != 0 {
			sh.BottomFieldFlag = uint(r.ReadBit())
		}
	}
	if sh.IsIDR {
		sh.IDRPicID = uint(r.ReadExpGolombUnsigned())
	}
	sh.PicOrderCntLsb = -1
	if sps.PicOrderCntType == 0 {
		log2MaxPOCLsb := sps.Log2MaxPicOrderCntLsbMinus4 + 4
		sh.PicOrderCntLsb = int(r.ReadBits(log2MaxPOCLsb))
	}
	if r.Err {
		return sh, errUnderflow
	}
	return sh, nil
}

// Sequencer reconstructs display order from decode-order slice headers,
// either by picture-order count (UsePicOrder) or by PTS delta against
// frame rate, and drives the HDCC buffer's anchor/store calls.
type Sequencer struct {
	UsePicOrder bool
	FPS         float64

	log2MaxFrameNum       uint
	log2MaxPicOrderCntLsb uint

	lastFrameNum int

	lastPicOrderCntLsb int
	havePicOrderCntLsb bool
	lastSlicePTS       int64
	haveSlicePTS       bool

	currref    int
	currefPTS  int64
	maxidx     int
	minidx     int
	lastmaxidx int
	lastminidx int

	maxtref        int
	lastGopMaxtref int
	lastGopLength  int

	framesSinceLastGop int
	jumpCount          int

	// CurrentIndex and CurrentTref are the most recently computed
	// display-order index and temporal reference, exposed for
	// diagnostics.
	CurrentIndex int
	CurrentTref  int
}

// NewSequencer constructs a Sequencer for an SPS's frame_num/POC field
// widths. Callers rebuild it when those widths change.
func NewSequencer(sps SPS, usePicOrder bool, fps float64) *Sequencer {
	return &Sequencer{
		UsePicOrder:           usePicOrder,
		FPS:                   fps,
		log2MaxFrameNum:       sps.Log2MaxFrameNumMinus4 + 4,
		log2MaxPicOrderCntLsb: sps.Log2MaxPicOrderCntLsbMinus4 + 4,
		lastFrameNum:          -1,
		maxidx:                -1,
		lastmaxidx:            -1,
		minidx:                10000,
		lastminidx:            10000,
	}
}

// Process runs one slice through the sequencer: anchor detection, jump
// detection, and display-order index computation, then stores ccData
// into buf at the computed index. currentPTS is the container-supplied
// PTS in MPEGClockFreq ticks (ignored in pic-order mode).
func (s *Sequencer) Process(sh SliceHeader, currentPTS int64, ccData []av.CaptionBlock, ftsNow time.Duration, buf *hdcc.Buffer, sink av.CaptionSink) (skipped bool, err error) {
	// Ignore a slice repeating the previous pic order or PTS: field
	// pairs and redundant slices describe the same picture.
	if s.UsePicOrder {
		if s.havePicOrderCntLsb && s.lastPicOrderCntLsb == sh.PicOrderCntLsb {
			return true, nil
		}
		s.lastPicOrderCntLsb = sh.PicOrderCntLsb
		s.havePicOrderCntLsb = true
	} else {
		if s.haveSlicePTS && s.lastSlicePTS == currentPTS {
			return true, nil
		}
		s.lastSlicePTS = currentPTS
		s.haveSlicePTS = true
	}

	maxFrameNum := int(1 << s.log2MaxFrameNum)
	isref := isAnchorSliceType(sh.SliceType)

	dif := int(sh.FrameNum) - s.lastFrameNum
	if dif == -maxFrameNum {
		dif = 0
	}
	if s.lastFrameNum > -1 && (dif < 0 || dif > 1) {
		s.jumpCount++
		s.maxidx = -1
		s.lastmaxidx = -1
	}
	s.lastFrameNum = int(sh.FrameNum)

	// Two P-slices in a row happen in some garbled streams; a
	// reference slice this close to the previous GOP boundary does
	// not open a new one.
	if isref && s.framesSinceLastGop <= 3 {
		isref = false
	}

	maxrefcnt := int(1<<s.log2MaxPicOrderCntLsb) - 1

	if isref {
		if buf != nil && sink != nil {
			if err := buf.Process(sink); err != nil {
				return false, err
			}
		}
		s.lastGopLength = s.framesSinceLastGop
		s.framesSinceLastGop = 0
		s.lastGopMaxtref = s.maxtref
		s.maxtref = 0
		s.lastmaxidx = s.maxidx
		s.maxidx = 0
		s.lastminidx = s.minidx
		s.minidx = 10000

		if s.UsePicOrder {
			s.currref = sh.PicOrderCntLsb
			if s.currref < maxrefcnt/3 {
				s.currref += maxrefcnt + 1
			}
			if s.lastmaxidx > s.currref+maxrefcnt/2 {
				s.lastmaxidx -= maxrefcnt + 1
			}
		} else {
			s.currefPTS = currentPTS
			s.currref = 0
		}
		if buf != nil {
			buf.Anchor(s.currref)
		}
	}

	var currentIndex int
	if s.UsePicOrder {
		if s.currref-sh.PicOrderCntLsb > maxrefcnt/2 {
			currentIndex = sh.PicOrderCntLsb + maxrefcnt + 1
		} else {
			currentIndex = sh.PicOrderCntLsb
		}
		if currentIndex > s.maxidx {
			s.maxidx = currentIndex
		}
		if s.lastmaxidx > 0 {
			s.CurrentTref = currentIndex - s.lastmaxidx - 1
			if s.CurrentTref > s.maxtref {
				s.maxtref = s.CurrentTref
			}
			if float64(s.lastGopMaxtref) > float64(s.lastGopLength)*1.5 {
				s.CurrentTref /= 2
			}
		} else {
			s.CurrentTref = 0
		}
	} else {
		fps := s.FPS
		if fps <= 0 {
			fps = 25
		}
		currentIndex = int(round(2 * float64(currentPTS-s.currefPTS) / (float64(MPEGClockFreq) / fps)))
		if abs(currentIndex) >= hdcc.MaxBFrames {
			currentIndex = 0
		}
		if currentIndex > s.maxidx {
			s.maxidx = currentIndex
		}
		if currentIndex < s.minidx {
			s.minidx = currentIndex
		}
		s.CurrentTref = 1
		if currentIndex == s.lastminidx {
			s.CurrentTref = 0
		}
		if s.lastmaxidx == -1 {
			s.CurrentTref = 0
		}
	}

	s.CurrentIndex = currentIndex
	s.framesSinceLastGop++

	if buf != nil {
		if err := buf.Store(ccData, currentIndex, ftsNow, sink); err != nil {
			return false, err
		}
	}
	return false, nil
}

// JumpCount reports the number of frame_num discontinuities observed.
func (s *Sequencer) JumpCount() int { return s.jumpCount }

func round(f float64) float64 {
	if f >= 0 {
		return float64(int64(f + 0.5))
	}
	return float64(int64(f - 0.5))
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
