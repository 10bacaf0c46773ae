// Package nal implements Annex-B startcode scanning and
// emulation-prevention removal shared by the AVC and HEVC parsers.
package nal

// Format identifies how a byte stream delimits NAL units.
type Format int

const (
	FormatRaw Format = iota
	FormatAVCC
	FormatAnnexB
)

var startCode3 = []byte{0, 0, 1}

// Split separates a byte stream into NAL units, auto-detecting AVCC
// (4-byte big-endian length prefix) vs Annex-B (startcode prefix)
// framing.
func Split(b []byte) (units [][]byte, format Format) {
	if len(b) < 4 {
		return [][]byte{b}, FormatRaw
	}

	val4 := u32be(b)
	if val4 <= uint32(len(b)) {
		rest := b[4:]
		length := val4
		var avcc [][]byte
		for {
			if length > uint32(len(rest)) {
				break
			}
			avcc = append(avcc, rest[:length])
			rest = rest[length:]
			if len(rest) < 4 {
				break
			}
			length = u32be(rest)
			rest = rest[4:]
			if length > uint32(len(rest)) {
				break
			}
		}
		if len(rest) == 0 {
			return avcc, FormatAVCC
		}
	}

	val3 := u24be(b)
	if val3 == 1 || val4 == 1 {
		start, pos := 0, 0
		for {
			if start != pos {
				units = append(units, b[start:pos])
			}
			if pos+3 > len(b) {
				break
			}
			if u24be(b[pos:]) == 1 {
				pos += 3
			} else {
				pos += 4
			}
			start = pos
			if start >= len(b) {
				break
			}
			for pos < len(b) {
				if pos+2 < len(b) && b[pos] == 0 {
					if v3 := u24be(b[pos:]); v3 == 1 {
						break
					} else if v3 == 0 && pos+3 < len(b) && b[pos+3] == 1 {
						break
					}
				}
				pos++
			}
		}
		return units, FormatAnnexB
	}

	return [][]byte{b}, FormatRaw
}

// SplitLengthPrefixed separates an MP4 sample body into NAL units using
// the codec configuration's nal_unit_size: each unit is preceded by a
// 1-, 2-, or 4-byte big-endian length. Units whose length runs past the
// sample are dropped rather than truncated.
func SplitLengthPrefixed(b []byte, lengthSize int) [][]byte {
	if lengthSize != 1 && lengthSize != 2 && lengthSize != 4 {
		return nil
	}
	var units [][]byte
	for len(b) >= lengthSize {
		var length int
		switch lengthSize {
		case 1:
			length = int(b[0])
		case 2:
			length = int(b[0])<<8 | int(b[1])
		case 4:
			length = int(u32be(b))
		}
		b = b[lengthSize:]
		if length > len(b) {
			break
		}
		units = append(units, b[:length])
		b = b[length:]
	}
	return units
}

func u24be(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func u32be(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// ErrBrokenNAL marks a NAL unit whose emulation-prevention bytes are
// malformed: a 0x000003XX sequence with XX > 3.
type ErrBrokenNAL struct{}

func (ErrBrokenNAL) Error() string { return "nal: 0x000003xx emulation byte with xx > 3" }

// RemoveEmulationBytes strips 0x000003 emulation-prevention sequences
// from an EBSP NAL body, returning the RBSP. A NAL whose emulation byte
// is followed by a value greater than 3 is rejected as broken. Shared
// between AVC and HEVC since emulation prevention is identical in both.
//
// A 0x03 that is the very last byte of the NAL (the cabac_zero_word
// escape) is dropped like any other emulation byte; only the two zeros
// before it survive.
func RemoveEmulationBytes(b []byte) ([]byte, error) {
	out := make([]byte, 0, len(b))
	i := 0
	for i < len(b) {
		if i+2 < len(b) && b[i] == 0 && b[i+1] == 0 && b[i+2] == 3 {
			if i+3 < len(b) && b[i+3] > 3 {
				return nil, ErrBrokenNAL{}
			}
			out = append(out, b[i], b[i+1])
			i += 3 // drop the 0x03; any following byte is copied next
			continue
		}
		out = append(out, b[i])
		i++
	}
	return out, nil
}
