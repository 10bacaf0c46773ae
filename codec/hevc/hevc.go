// Package hevc implements the HEVC (H.265) NAL-unit scanner and SEI
// extractor. It mirrors codec/h264 wherever HEVC shares AVC's syntax
// (emulation prevention, the user_data_registered_itu_t_t35 SEI payload
// format) and diverges where the bitstream does: a 2-byte NAL header
// carrying a 6-bit type, and SEI split into prefix (type 39) and suffix
// (type 40) NAL units instead of AVC's single SEI type.
package hevc

import (
	"errors"

	"github.com/capdemux/capdemux/codec/h264"
	"github.com/capdemux/capdemux/codec/nal"
)

// HEVC NAL unit types relevant to caption extraction (ISO/IEC 23008-2).
const (
	NALVPS        = 32
	NALSPS        = 33
	NALPPS        = 34
	NALAUD        = 35
	NALPrefixSEI  = 39
	NALSuffixSEI  = 40
)

var errUnderflow = errors.New("hevc: NAL body truncated mid-syntax-element")

// NALType extracts the 6-bit nal_unit_type from a 2-byte HEVC NAL
// header: (byte0 >> 1) & 0x3F.
func NALType(nalBody []byte) (uint, error) {
	if len(nalBody) < 2 {
		return 0, errUnderflow
	}
	return uint(nalBody[0]>>1) & 0x3F, nil
}

// IsSliceNALU reports whether nalType is a VCL (coded slice segment)
// NAL unit, per the enum's 0-21 VCL range (22-31 reserved).
func IsSliceNALU(nalType uint) bool {
	return nalType <= 21
}

// IsIDR reports whether nalType marks an IRAP (IDR/BLA/CRA) picture,
// the nearest HEVC equivalent of an AVC anchor frame. Slice-header POC
// recovery is not implemented for HEVC, so callers flush per sample
// instead of per anchor.
func IsIDR(nalType uint) bool {
	switch nalType {
	case 16, 17, 18, 19, 20, 21:
		return true
	default:
		return false
	}
}

func removeEmulation(b []byte) ([]byte, error) {
	rbsp, err := nal.RemoveEmulationBytes(b)
	if err != nil {
		return nil, err
	}
	return rbsp, nil
}

// ParseSEI walks the payloads of a prefix or suffix SEI NAL (2-byte
// header), reusing AVC's FF-extended payload_type/payload_size framing
// since SEI message syntax is identical between the two codecs; only
// the NAL type that carries it, and the header width stripped before
// parsing, differ.
func ParseSEI(nalBody []byte) ([]h264.SEIPayload, error) {
	rbsp, err := removeEmulation(nalBody)
	if err != nil {
		return nil, err
	}
	if len(rbsp) < 2 {
		return nil, errUnderflow
	}
	return h264.ParseSEIPayloads(rbsp[2:])
}

// ExtractCCData recovers cc_data triples from a user_data_registered_
// itu_t_t35 SEI payload, delegating to codec/h264 since the ATSC1_data
// GA94 wrapper (and the bare 0x002F convention) is codec-agnostic.
func ExtractCCData(payload h264.SEIPayload) ([]byte, error) {
	return h264.ExtractCCData(payload)
}
