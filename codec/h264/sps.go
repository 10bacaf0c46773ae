// Package h264 implements AVC NAL-unit field parsing: sequence and
// picture parameter sets, SEI payloads, and slice headers. The MP4
// AVCDecoderConfigurationRecord (avcC) is not parsed here.
package h264

import (
	"github.com/capdemux/capdemux/bitreader"
)

// NAL unit type values relevant to caption extraction.
const (
	NALSlice    = 1
	NALIDRSlice = 5
	NALSEI      = 6
	NALSPS      = 7
	NALPPS      = 8
	NALAUD      = 9
)

// IsSliceNALU reports whether nalType is a coded slice of a non-IDR or
// IDR picture (including data partitions): NAL types 1-5.
func IsSliceNALU(nalType uint) bool {
	return nalType >= 1 && nalType <= 5
}

// VUIParameters holds the subset of VUI fields the caption pipeline
// needs: the frame rate, which backstops PTS/GOP timing when the
// container clock is unreliable.
type VUIParameters struct {
	AspectRatioInfoPresentFlag uint
	AspectRatioIdc             uint
	SarWidth                   uint
	SarHeight                  uint

	TimingInfoPresentFlag uint
	NumUnitsInTick        uint
	TimeScale             uint
	FixedFrameRateFlag    uint

	// FPS is derived from NumUnitsInTick/TimeScale per ISO/IEC
	// 14496-10 formula D-2 when FixedFrameRateFlag is set.
	FPS float64

	// HRDPresent records that nal_hrd_parameters_present_flag or
	// vcl_hrd_parameters_present_flag was set and VUI parsing stopped
	// there; frame-rate recovery from this VUI may be incomplete.
	HRDPresent bool
}

// SPS holds the sequence parameter set fields needed to size pictures
// and to drive slice-header decoding (frame_num/POC field widths,
// interlace flags).
type SPS struct {
	ProfileIdc        uint
	LevelIdc          uint
	SeqParameterSetID uint

	ChromaFormatIdc uint

	Log2MaxFrameNumMinus4          uint
	PicOrderCntType                uint
	Log2MaxPicOrderCntLsbMinus4    uint
	DeltaPicOrderAlwaysZeroFlag    uint
	OffsetForNonRefPic             int
	OffsetForTopToBottomField      int
	NumRefFramesInPicOrderCntCycle uint

	MaxNumRefFrames                uint
	GapsInFrameNumValueAllowedFlag uint

	PicWidthInMbsMinus1       uint
	PicHeightInMapUnitsMinus1 uint
	FrameMbsOnlyFlag          uint
	MbAdaptiveFrameFieldFlag  uint

	FrameCroppingFlag uint
	CropLeft          uint
	CropRight         uint
	CropTop           uint
	CropBottom        uint

	Width  uint
	Height uint

	VUIParametersPresentFlag uint
	VUI                      VUIParameters
}

// MaxFrameNum returns 2^(log2_max_frame_num_minus4+4), the modulus
// frame_num arithmetic wraps around.
func (s SPS) MaxFrameNum() uint {
	return 1 << (s.Log2MaxFrameNumMinus4 + 4)
}

// MaxPicOrderCntLsb returns 2^(log2_max_pic_order_cnt_lsb_minus4+4),
// the modulus pic_order_cnt_lsb wraps around under PicOrderCntType 0.
func (s SPS) MaxPicOrderCntLsb() uint {
	return 1 << (s.Log2MaxPicOrderCntLsbMinus4 + 4)
}

// ParseSPS decodes a sequence parameter set from an Annex-B/AVCC NAL
// body (the 1-byte NAL header still attached). VUI parsing returns
// early on nal_hrd_parameters_present_flag rather than decoding HRD
// parameters nothing downstream consumes.
func ParseSPS(nalBody []byte) (SPS, error) {
	rbsp, err := removeEmulation(nalBody)
	if err != nil {
		return SPS{}, err
	}
	r := bitreader.New(rbsp)

	r.SkipBits(8) // nal header: forbidden_zero_bit, nal_ref_idc, nal_unit_type

	var sps SPS
	sps.ProfileIdc = uint(r.ReadBits(8))
	r.SkipBits(8) // constraint_set0-5_flag + reserved_zero_2bits
	sps.LevelIdc = uint(r.ReadBits(8))
	sps.SeqParameterSetID = uint(r.ReadExpGolombUnsigned())

	switch sps.ProfileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		sps.ChromaFormatIdc = uint(r.ReadExpGolombUnsigned())
		if sps.ChromaFormatIdc == 3 {
			r.ReadBit() // separate_colour_plane_flag
		}
		r.ReadExpGolombUnsigned() // bit_depth_luma_minus8
		r.ReadExpGolombUnsigned() // bit_depth_chroma_minus8
		r.ReadBit()               // qpprime_y_zero_transform_bypass_flag
		if r.ReadBit() != 0 {      // seq_scaling_matrix_present_flag
			count := 8
			if sps.ChromaFormatIdc == 3 {
				count = 12
			}
			skipScalingLists(r, count)
		}
	}

	sps.Log2MaxFrameNumMinus4 = uint(r.ReadExpGolombUnsigned())
	sps.PicOrderCntType = uint(r.ReadExpGolombUnsigned())
	switch sps.PicOrderCntType {
	case 0:
		sps.Log2MaxPicOrderCntLsbMinus4 = uint(r.ReadExpGolombUnsigned())
	case 1:
		sps.DeltaPicOrderAlwaysZeroFlag = uint(r.ReadBit())
		sps.OffsetForNonRefPic = int(r.ReadExpGolomb())
		sps.OffsetForTopToBottomField = int(r.ReadExpGolomb())
		sps.NumRefFramesInPicOrderCntCycle = uint(r.ReadExpGolombUnsigned())
		for i := uint(0); i < sps.NumRefFramesInPicOrderCntCycle; i++ {
			r.ReadExpGolomb() // offset_for_ref_frame[i]
		}
	}

	sps.MaxNumRefFrames = uint(r.ReadExpGolombUnsigned())
	sps.GapsInFrameNumValueAllowedFlag = uint(r.ReadBit())
	sps.PicWidthInMbsMinus1 = uint(r.ReadExpGolombUnsigned())
	sps.PicHeightInMapUnitsMinus1 = uint(r.ReadExpGolombUnsigned())
	sps.FrameMbsOnlyFlag = uint(r.ReadBit())
	if sps.FrameMbsOnlyFlag == 0 {
		sps.MbAdaptiveFrameFieldFlag = uint(r.ReadBit())
	}
	r.ReadBit() // direct_8x8_inference_flag

	sps.FrameCroppingFlag = uint(r.ReadBit())
	if sps.FrameCroppingFlag != 0 {
		sps.CropLeft = uint(r.ReadExpGolombUnsigned())
		sps.CropRight = uint(r.ReadExpGolombUnsigned())
		sps.CropTop = uint(r.ReadExpGolombUnsigned())
		sps.CropBottom = uint(r.ReadExpGolombUnsigned())
	}

	sps.Width = (sps.PicWidthInMbsMinus1+1)*16 - sps.CropLeft*2 - sps.CropRight*2
	sps.Height = (2-sps.FrameMbsOnlyFlag)*(sps.PicHeightInMapUnitsMinus1+1)*16 - sps.CropTop*2 - sps.CropBottom*2

	sps.VUIParametersPresentFlag = uint(r.ReadBit())
	if sps.VUIParametersPresentFlag != 0 {
		parseVUI(&sps.VUI, r)
	}
	if r.Err {
		return sps, errUnderflow
	}
	return sps, nil
}

func skipScalingLists(r *bitreader.Reader, count int) {
	for i := 0; i < count; i++ {
		if r.ReadBit() == 0 {
			continue
		}
		size := 16
		if i >= 6 {
			size = 64
		}
		lastScale, nextScale := 8, 8
		for j := 0; j < size; j++ {
			if nextScale != 0 {
				delta := int(r.ReadExpGolomb())
				nextScale = (lastScale + delta + 256) % 256
			}
			if nextScale != 0 {
				lastScale = nextScale
			}
		}
	}
}

// parseVUI stops early, without error, once nal_hrd_parameters_present_flag
// or vcl_hrd_parameters_present_flag is set: HRD decoding isn't needed by
// anything downstream, and the timing info precedes both flags.
func parseVUI(v *VUIParameters, r *bitreader.Reader) {
	v.AspectRatioInfoPresentFlag = uint(r.ReadBit())
	if v.AspectRatioInfoPresentFlag != 0 {
		v.AspectRatioIdc = uint(r.ReadBits(8))
		if v.AspectRatioIdc == 255 {
			v.SarWidth = uint(r.ReadBits(16))
			v.SarHeight = uint(r.ReadBits(16))
		}
	}
	if r.ReadBit() != 0 { // overscan_info_present_flag
		r.ReadBit() // overscan_appropriate_flag
	}
	if r.ReadBit() != 0 { // video_signal_type_present_flag
		r.ReadBits(3) // video_format
		r.ReadBit()   // video_full_range_flag
		if r.ReadBit() != 0 { // colour_description_present_flag
			r.ReadBits(8)
			r.ReadBits(8)
			r.ReadBits(8)
		}
	}
	if r.ReadBit() != 0 { // chroma_loc_info_present_flag
		r.ReadExpGolombUnsigned()
		r.ReadExpGolombUnsigned()
	}

	v.TimingInfoPresentFlag = uint(r.ReadBit())
	if v.TimingInfoPresentFlag != 0 {
		v.NumUnitsInTick = uint(r.ReadBits(32))
		v.TimeScale = uint(r.ReadBits(32))
		v.FixedFrameRateFlag = uint(r.ReadBit())
		if v.FixedFrameRateFlag != 0 && v.NumUnitsInTick > 0 {
			v.FPS = float64(v.TimeScale) / (2 * float64(v.NumUnitsInTick))
		}
	}

	if r.ReadBit() != 0 { // nal_hrd_parameters_present_flag
		v.HRDPresent = true
		return
	}
	if r.ReadBit() != 0 { // vcl_hrd_parameters_present_flag
		v.HRDPresent = true
		return
	}
	r.ReadBit() // pic_struct_present_flag
	r.ReadBit() // bitstream_restriction_flag
}
