package errs

import (
	"github.com/pkg/errors"
)

// Error kind codes for the demux/decode call chain. Fatal conditions
// return one of these via New/Wrapf; only the top-level cmd.Execute
// maps a returned error to a process exit code.
const (
	CodeTruncatedInput          = 3001
	CodeMalformedMagic          = 3002
	CodeUnsupportedFeature      = 3003
	CodeStructuralInconsistency = 3004
	CodeNALRecoveryError        = 3005
	CodeSEISizeOverrun          = 3006
	CodeOversizeDimensions      = 3007
	CodeSequencingOverflow      = 3008
	CodeOutOfMemory             = 3009
	CodeCaptionLoss             = 3010
	CodeUnsupportedStreamMode   = 3011
)

var (
	// ErrTruncatedInput marks a read that came up short at a header or
	// packet boundary; the policy is to set EOF and return bytes
	// collected so far, not necessarily to abort, but callers that need
	// to surface it as fatal (e.g. a header read with nowhere to
	// resume) wrap this.
	ErrTruncatedInput = New(CodeTruncatedInput, "truncated input")
	// ErrMalformedMagic marks a missing or incorrect container magic
	// (e.g. ASF_HEADER/ASF_DATA GUID).
	ErrMalformedMagic = New(CodeMalformedMagic, "malformed container magic")
	// ErrUnsupportedFeature marks a structurally valid but unsupported
	// bitstream feature (compressed ASF payload, error-correction data,
	// replicated length 1).
	ErrUnsupportedFeature = New(CodeUnsupportedFeature, "unsupported feature")
	// ErrStructuralInconsistency marks an internal size/offset mismatch
	// that cannot be the result of a well-formed file.
	ErrStructuralInconsistency = New(CodeStructuralInconsistency, "structural inconsistency")
	// ErrOversizeDimensions marks a stream/extension count exceeding
	// the demuxer's fixed StreamNum/PayExtNum limits.
	ErrOversizeDimensions = New(CodeOversizeDimensions, "oversize stream/extension dimensions")
	// ErrUnsupportedStreamMode marks a StreamMode this module does not
	// implement directly (GXF, MCPOODLE raw, RCWT binary, Matroska,
	// MythTV are sibling collaborators).
	ErrUnsupportedStreamMode = New(CodeUnsupportedStreamMode, "unsupported stream mode")
)

type Error struct {
	Code int32
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func New(code int32, msg string) error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
