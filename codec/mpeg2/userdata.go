// Package mpeg2 extracts CEA-608/708 cc_data from MPEG-2 video
// elementary streams: the xdvb MP4 sample format and the DVR-MS video
// PES both carry captions in ATSC A/53 user-data blocks
// (startcode 0x000001B2, "GA94" identifier, user_data_type_code 0x03),
// the same ATSC1_data() wrapper the AVC SEI path unwraps from
// user_data_registered_itu_t_t35.
package mpeg2

import (
	"github.com/capdemux/capdemux/av"
	"github.com/capdemux/capdemux/codec/h264"
)

const (
	startcodeUserData = 0xB2
	startcodePicture  = 0x00
)

// ExtractCC scans an MPEG-2 ES buffer for user-data startcodes and
// returns every cc_data triple found, in bitstream order. Picture
// reordering is not attempted here: xdvb and DVR-MS material carries
// already-interleaved field pairs, and the caller anchors the whole
// buffer on the container timestamp.
func ExtractCC(es []byte) []av.CaptionBlock {
	var blocks []av.CaptionBlock
	for i := 0; i+4 <= len(es); i++ {
		if es[i] != 0 || es[i+1] != 0 || es[i+2] != 1 {
			continue
		}
		if es[i+3] != startcodeUserData {
			i += 3
			continue
		}
		body := es[i+4:]
		if end := nextStartcode(body); end >= 0 {
			body = body[:end]
		}
		blocks = append(blocks, extractATSC1(body)...)
		i += 3 + len(body)
	}
	return blocks
}

// nextStartcode returns the offset of the next 0x000001 sequence in b,
// or -1.
func nextStartcode(b []byte) int {
	for i := 0; i+3 <= len(b); i++ {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			return i
		}
	}
	return -1
}

// extractATSC1 unwraps one user-data block: "GA94" identifier,
// user_data_type_code 0x03, then the cc_count header, triples, and the
// 0xFF marker shared with the SEI path.
func extractATSC1(b []byte) []av.CaptionBlock {
	if len(b) < 5 || b[0] != 'G' || b[1] != 'A' || b[2] != '9' || b[3] != '4' || b[4] != 0x03 {
		return nil
	}
	b = b[5:]
	if len(b) < 2 {
		return nil
	}
	ccCount := int(b[0] & 0x1F)
	processCCDataFlag := b[0]&0x40 != 0
	if !processCCDataFlag {
		return nil
	}
	b = b[2:] // cc_count byte + em_data
	if len(b) < ccCount*3 {
		return nil
	}
	return h264.SplitCCTriples(b[:ccCount*3])
}

// PESPayload strips MPEG-2 PES packet headers from a buffer, returning
// the concatenated elementary-stream bytes of every video PES packet
// (stream ids 0xE0-0xEF). Non-video packets are skipped by their
// declared length.
func PESPayload(data []byte) []byte {
	var es []byte
	i := 0
	for i+9 <= len(data) {
		if data[i] != 0 || data[i+1] != 0 || data[i+2] != 1 {
			i++
			continue
		}
		streamID := data[i+3]
		packetLen := int(data[i+4])<<8 | int(data[i+5])
		if streamID < 0xE0 || streamID > 0xEF {
			if packetLen > 0 && i+6+packetLen <= len(data) {
				i += 6 + packetLen
			} else {
				i += 6
			}
			continue
		}
		headerDataLen := int(data[i+8])
		payloadStart := i + 9 + headerDataLen
		payloadEnd := len(data)
		// A video PES packet_length of 0 means "until the next packet
		// or end of buffer".
		if packetLen > 0 && i+6+packetLen <= len(data) {
			payloadEnd = i + 6 + packetLen
		}
		if payloadStart < payloadEnd {
			es = append(es, data[payloadStart:payloadEnd]...)
		}
		if packetLen > 0 {
			i += 6 + packetLen
		} else {
			i = payloadEnd
		}
	}
	return es
}
