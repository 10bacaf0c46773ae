package h264

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSPS builds a minimal SPS with 4-bit frame_num and pic_order_cnt_lsb
// fields, matching the hand-encoded slice_header bitstream below.
func sliceSPS() SPS {
	return SPS{
		Log2MaxFrameNumMinus4:       0, // 4-bit frame_num field
		FrameMbsOnlyFlag:            1, // no field_pic_flag
		PicOrderCntType:             0,
		Log2MaxPicOrderCntLsbMinus4: 0, // 4-bit pic_order_cnt_lsb field
	}
}

func TestParseSliceHeaderIDR(t *testing.T) {
	// first_mb_in_slice=0 (ue '1'), slice_type=2/I (ue '011'),
	// pic_parameter_set_id=0 (ue '1'), frame_num=5 (4 bits '0101'),
	// idr_pic_id=0 (ue '1'), pic_order_cnt_lsb=3 (4 bits '0011').
	// Bitstream after the nal header byte: 10111010 11001100.
	nalBody := []byte{0x65, 0xBA, 0xCC}
	sh, err := ParseSliceHeader(nalBody, NALIDRSlice, sliceSPS())
	require.NoError(t, err)
	assert.True(t, sh.IsIDR)
	assert.Equal(t, uint(0), sh.FirstMbInSlice)
	assert.Equal(t, uint(2), sh.SliceType)
	assert.Equal(t, uint(5), sh.FrameNum)
	assert.Equal(t, 3, sh.PicOrderCntLsb)
}

func TestSequencerAssignsAscendingIndexByPicOrder(t *testing.T) {
	sps := sliceSPS()
	seq := NewSequencer(sps, true, 0)

	anchor := SliceHeader{SliceType: 2, FrameNum: 0, PicOrderCntLsb: 0, IsIDR: true}
	skipped, err := seq.Process(anchor, 0, nil, 0, nil, nil)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Equal(t, 0, seq.CurrentIndex)

	bframe := SliceHeader{SliceType: 0, FrameNum: 1, PicOrderCntLsb: 2}
	skipped, err = seq.Process(bframe, 0, nil, 0, nil, nil)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Equal(t, 2, seq.CurrentIndex)
}

func TestSequencerPicOrderWrapAtSixteen(t *testing.T) {
	// log2_max_pic_order_cnt_lsb = 4, maxrefcnt = 15. Build up a GOP of
	// B-frames so the pre-anchor max index is 12, anchor at POC 14,
	// then a wrapped slice at POC 2 lands at index 18 with tref 5.
	seq := NewSequencer(sliceSPS(), true, 0)

	for i, poc := range []int{4, 6, 8, 12} {
		sh := SliceHeader{SliceType: 1, FrameNum: uint(i), PicOrderCntLsb: poc}
		skipped, err := seq.Process(sh, 0, nil, 0, nil, nil)
		require.NoError(t, err)
		require.False(t, skipped)
	}

	anchor := SliceHeader{SliceType: 2, FrameNum: 4, PicOrderCntLsb: 14}
	_, err := seq.Process(anchor, 0, nil, 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, seq.lastmaxidx)

	wrapped := SliceHeader{SliceType: 1, FrameNum: 5, PicOrderCntLsb: 2}
	_, err = seq.Process(wrapped, 0, nil, 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 18, seq.CurrentIndex)
	assert.Equal(t, 5, seq.CurrentTref)
}

func TestSequencerCountsFrameNumJumps(t *testing.T) {
	sps := sliceSPS()
	seq := NewSequencer(sps, true, 0)

	first := SliceHeader{SliceType: 2, FrameNum: 0, PicOrderCntLsb: 0, IsIDR: true}
	_, err := seq.Process(first, 0, nil, 0, nil, nil)
	require.NoError(t, err)

	jumped := SliceHeader{SliceType: 0, FrameNum: 5, PicOrderCntLsb: 4}
	_, err = seq.Process(jumped, 0, nil, 0, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, seq.JumpCount())
}

func TestSequencerDeduplicatesRepeatedPicOrder(t *testing.T) {
	sps := sliceSPS()
	seq := NewSequencer(sps, true, 0)

	sh := SliceHeader{SliceType: 2, FrameNum: 0, PicOrderCntLsb: 0, IsIDR: true}
	skipped, err := seq.Process(sh, 0, nil, 0, nil, nil)
	require.NoError(t, err)
	assert.False(t, skipped)

	skipped, err = seq.Process(sh, 0, nil, 0, nil, nil)
	require.NoError(t, err)
	assert.True(t, skipped)
}
