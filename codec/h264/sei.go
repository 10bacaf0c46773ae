package h264

import "errors"

// ErrNoCaptionData marks an SEI user-data payload that parsed cleanly
// but carried no cc_data (wrong country/provider code, a non-cc_data
// user_data_type_code, or, under the 0x002F convention,
// process_cc_data_flag cleared).
var ErrNoCaptionData = errors.New("h264: sei payload has no caption data")

// ErrSEISyntax marks a malformed user_data_registered_itu_t_t35 payload:
// missing end marker, length mismatch, or a too-short buffer. Callers
// skip the one payload and keep the stream.
var ErrSEISyntax = errors.New("h264: sei user-data syntax error")

// SEIPayload is one payload_type/payload_size unit inside a SEI NAL.
type SEIPayload struct {
	Type uint
	Size uint
	Data []byte
}

// ParseSEI walks every payload in a SEI NAL body (1-byte NAL header
// still attached) and returns them split out by payload_type/size.
// Payloads are FF-extended per Rec. ITU-T H.264 D.1: a run of 0xFF
// bytes adds 255 to the type/size before the terminating byte.
func ParseSEI(nalBody []byte) ([]SEIPayload, error) {
	rbsp, err := removeEmulation(nalBody)
	if err != nil {
		return nil, err
	}
	if len(rbsp) < 1 {
		return nil, errUnderflow
	}
	return ParseSEIPayloads(rbsp[1:]) // drop the nal header byte
}

// ParseSEIPayloads walks SEI payloads starting right after the NAL
// header has already been stripped by the caller, so codec/hevc (a
// 2-byte header) can share this loop with AVC's 1-byte header.
func ParseSEIPayloads(buf []byte) ([]SEIPayload, error) {
	var payloads []SEIPayload
	for len(buf) > 0 && buf[0] != 0x80 { // rbsp_trailing_bits stop bit
		payloadType := 0
		for len(buf) > 0 && buf[0] == 0xff {
			payloadType += 255
			buf = buf[1:]
		}
		if len(buf) == 0 {
			break
		}
		payloadType += int(buf[0])
		buf = buf[1:]

		payloadSize := 0
		for len(buf) > 0 && buf[0] == 0xff {
			payloadSize += 255
			buf = buf[1:]
		}
		if len(buf) == 0 {
			break
		}
		payloadSize += int(buf[0])
		buf = buf[1:]

		if payloadSize > len(buf) {
			// Truncated final payload: stop rather than slice out of
			// bounds.
			break
		}

		payloads = append(payloads, SEIPayload{
			Type: uint(payloadType),
			Size: uint(payloadSize),
			Data: buf[:payloadSize],
		})
		buf = buf[payloadSize:]
	}
	return payloads, nil
}

// ExtractCCData extracts raw CEA-608/708 cc_data triples from an SEI
// payload_type 4 (user_data_registered_itu_t_t35) payload. It
// recognizes the ANSI/SCTE-128 GA94 ATSC1_data() wrapper (provider
// 0x0031) and the bare provider 0x002F convention seen in broadcast
// captures.
//
// The returned slice is exactly 3*cc_count bytes: repeating
// (marker_bits+cc_valid+cc_type, cc_data_1, cc_data_2) triples, ready
// for the HDCC reorder buffer or direct CEA-608/708 decoding.
func ExtractCCData(payload SEIPayload) ([]byte, error) {
	if payload.Type != 4 {
		return nil, ErrNoCaptionData
	}
	b := payload.Data
	if len(b) < 3 {
		return nil, ErrSEISyntax
	}
	countryCode := b[0]
	providerCode := uint(b[1])<<8 | uint(b[2])
	b = b[3:]

	if countryCode != 0xB5 {
		return nil, ErrNoCaptionData
	}

	switch providerCode {
	case 0x0031: // ANSI/SCTE 128
		if len(b) < 5 || b[0] != 'G' || b[1] != 'A' || b[2] != '9' || b[3] != '4' {
			return nil, ErrNoCaptionData
		}
		b = b[4:]
		userDataTypeCode := b[0]
		b = b[1:]
		if userDataTypeCode != 0x03 {
			return nil, ErrNoCaptionData
		}
		return extractCCDataTriples(b, false)

	case 0x002F:
		if len(b) < 1 || b[0] != 0x03 {
			return nil, ErrNoCaptionData
		}
		b = b[1:]
		if len(b) < 1 {
			return nil, ErrSEISyntax
		}
		userDataLen := int(b[0])
		b = b[1:]
		return extractCCDataTriples(b, true, userDataLen)

	default:
		return nil, ErrNoCaptionData
	}
}

// extractCCDataTriples reads the cc_count/process_cc_data_flag byte and
// the em_data byte after it, then cc_count 3-byte triples and a
// trailing 0xFF marker. When strictLen is true (the 0x002F convention)
// it requires process_cc_data_flag and enforces cc_count*3+3 ==
// wantLen[0]; the 0x0031/GA94 convention skips both checks since
// user_data_len isn't available at this point in the bitstream.
func extractCCDataTriples(b []byte, strictLen bool, wantLen ...int) ([]byte, error) {
	if len(b) < 2 {
		return nil, ErrSEISyntax
	}
	ccCount := int(b[0] & 0x1F)
	processCCDataFlag := (b[0] & 0x40) >> 6
	b = b[2:]

	if strictLen {
		if processCCDataFlag == 0 {
			return nil, ErrNoCaptionData
		}
		if len(wantLen) == 1 && ccCount*3+3 != wantLen[0] {
			return nil, ErrSEISyntax
		}
	}

	need := ccCount*3 + 1
	if len(b) < need {
		return nil, ErrSEISyntax
	}
	if b[ccCount*3] != 0xFF {
		return nil, ErrSEISyntax
	}
	return b[:ccCount*3], nil
}
