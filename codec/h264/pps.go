package h264

import "github.com/capdemux/capdemux/bitreader"

// PPS holds the picture parameter set fields ParsePPS retains; nothing
// in the caption pipeline calls ParsePPS. Slice-group mapping detail
// (run_length_minus1, top_left/bottom_right, slice_group_id) is parsed
// to stay bit-aligned but not retained.
type PPS struct {
	PicParameterSetID uint
	SeqParameterSetID uint

	EntropyCodingModeFlag         uint
	BottomFieldPicOrderPresentFlag uint
	NumSliceGroupsMinus1          uint

	NumRefIdxL0ActiveMinus1 uint
	NumRefIdxL1ActiveMinus1 uint
	WeightedPredFlag        uint
	WeightedBipredIdc       uint

	PicInitQpMinus26 int
	PicInitQsMinus26 int
}

// ParsePPS decodes a picture parameter set through
// redundant_pic_cnt_present_flag.
func ParsePPS(nalBody []byte) (PPS, error) {
	rbsp, err := removeEmulation(nalBody)
	if err != nil {
		return PPS{}, err
	}
	r := bitreader.New(rbsp)
	r.SkipBits(8) // nal header

	var pps PPS
	pps.PicParameterSetID = uint(r.ReadExpGolombUnsigned())
	pps.SeqParameterSetID = uint(r.ReadExpGolombUnsigned())
	pps.EntropyCodingModeFlag = uint(r.ReadBit())
	pps.BottomFieldPicOrderPresentFlag = uint(r.ReadBit())
	pps.NumSliceGroupsMinus1 = uint(r.ReadExpGolombUnsigned())

	if pps.NumSliceGroupsMinus1 > 0 {
		sliceGroupMapType := uint(r.ReadExpGolombUnsigned())
		switch sliceGroupMapType {
		case 0:
			for i := uint(0); i <= pps.NumSliceGroupsMinus1; i++ {
				r.ReadExpGolombUnsigned() // run_length_minus1[i]
			}
		case 2:
			for i := uint(0); i < pps.NumSliceGroupsMinus1; i++ {
				r.ReadExpGolombUnsigned() // top_left[i]
				r.ReadExpGolombUnsigned() // bottom_right[i]
			}
		case 3, 4, 5:
			r.ReadBit()               // slice_group_change_direction_flag
			r.ReadExpGolombUnsigned() // slice_group_change_rate_minus1
		case 6:
			picSizeInMapUnitsMinus1 := uint(r.ReadExpGolombUnsigned())
			bits := bitsForSliceGroupID(pps.NumSliceGroupsMinus1 + 1)
			for i := uint(0); i <= picSizeInMapUnitsMinus1; i++ {
				r.ReadBits(bits) // slice_group_id[i]
			}
		}
	}

	pps.NumRefIdxL0ActiveMinus1 = uint(r.ReadExpGolombUnsigned())
	pps.NumRefIdxL1ActiveMinus1 = uint(r.ReadExpGolombUnsigned())
	pps.WeightedPredFlag = uint(r.ReadBit())
	pps.WeightedBipredIdc = uint(r.ReadBits(2))
	pps.PicInitQpMinus26 = int(r.ReadExpGolomb())
	pps.PicInitQsMinus26 = int(r.ReadExpGolomb())
	r.ReadExpGolomb() // chroma_qp_index_offset
	r.ReadBit()       // deblocking_filter_control_present_flag
	r.ReadBit()       // constrained_intra_pred_flag
	r.ReadBit()       // redundant_pic_cnt_present_flag

	if r.Err {
		return pps, errUnderflow
	}
	return pps, nil
}

// bitsForSliceGroupID returns Ceil(Log2(numSliceGroups)), the field
// width used by slice_group_id[i] under map_type 6.
func bitsForSliceGroupID(numSliceGroups uint) uint {
	bits := uint(0)
	for (uint(1) << bits) < numSliceGroups {
		bits++
	}
	return bits
}
