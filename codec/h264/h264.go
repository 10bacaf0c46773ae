package h264

import (
	"errors"

	"github.com/capdemux/capdemux/codec/nal"
)

var errUnderflow = errors.New("h264: NAL body truncated mid-syntax-element")

// removeEmulation strips 0x000003 emulation-prevention bytes, surfacing
// a broken-NAL error as a plain Go error for callers that don't care
// about the concrete nal.ErrBrokenNAL type.
func removeEmulation(b []byte) ([]byte, error) {
	rbsp, err := nal.RemoveEmulationBytes(b)
	if err != nil {
		return nil, err
	}
	return rbsp, nil
}
