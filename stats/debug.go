// Debug-channel sub-loggers: named channels a caller can selectively
// enable, each backed by its own tagged zerolog sub-logger.
package stats

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// DebugMask selects which debug channels are active. DECODER_608 and
// DECODER_708 are split from PARSE since caption-byte tracing is much
// noisier than container parsing.
type DebugMask uint

const (
	DebugParse DebugMask = 1 << iota
	DebugVideoStream
	DebugTime
	Debug608
	Debug708
	DebugVerbose
	DebugShare
)

var maskNames = map[DebugMask]string{
	DebugParse:       "parse",
	DebugVideoStream: "vides",
	DebugTime:        "time",
	Debug608:         "decoder_608",
	Debug708:         "decoder_708",
	DebugVerbose:     "verbose",
	DebugShare:       "share",
}

// ParseMask turns a comma-separated list of channel names ("parse",
// "vides", "time", "decoder_608", "decoder_708", "verbose", "share",
// or "all") into a DebugMask. Unknown names are ignored.
func ParseMask(s string) DebugMask {
	var mask DebugMask
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "all" {
			for m := range maskNames {
				mask |= m
			}
			continue
		}
		for m, n := range maskNames {
			if n == name {
				mask |= m
			}
		}
	}
	return mask
}

// Debug multiplexes a DebugMask's enabled channels onto named zerolog
// sub-loggers, each tagged with a "channel" field so `--log-json`
// output stays greppable.
type Debug struct {
	mask    DebugMask
	loggers map[DebugMask]zerolog.Logger
}

// NewDebug builds a Debug multiplexer for the given mask, writing to
// os.Stderr at debug level regardless of the global level: debug
// channels are opt-in, not gated by --log-level.
func NewDebug(mask DebugMask) *Debug {
	base := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	loggers := make(map[DebugMask]zerolog.Logger, len(maskNames))
	for m, name := range maskNames {
		loggers[m] = base.With().Str("channel", name).Logger()
	}
	return &Debug{mask: mask, loggers: loggers}
}

// Enabled reports whether channel m is active in this mask.
func (d *Debug) Enabled(m DebugMask) bool {
	return d.mask&m != 0
}

// Log returns m's sub-logger's Debug event if m is enabled, or a
// disabled event otherwise so callers can chain .Msg() unconditionally.
func (d *Debug) Log(m DebugMask) *zerolog.Event {
	if !d.Enabled(m) {
		return nil
	}
	l := d.loggers[m]
	// Log() is not filtered by zerolog's global level; tag the level
	// field by hand so output still reads as debug.
	return l.Log().Str(zerolog.LevelFieldName, zerolog.DebugLevel.String())
}
