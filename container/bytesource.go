// Package container holds the byte-source adapter shared by the ASF and
// MP4 drivers, plus the two container subpackages (asf, mp4).
package container

import (
	"io"

	"github.com/capdemux/capdemux/av"
)

var _ av.ByteSource = (*Source)(nil)

// Source adapts any io.Reader into an av.ByteSource, tracking the
// absolute read offset and EOF state explicitly.
type Source struct {
	r   io.Reader
	pos int64
	eof bool
}

// NewSource wraps r for sequential, offset-tracked reads.
func NewSource(r io.Reader) *Source {
	return &Source{r: r}
}

// Read copies up to len(p) bytes. A short read that hits EOF still
// returns the bytes it collected; EOF() reports true afterward so
// callers decide what to do with a truncated structure.
func (s *Source) Read(p []byte) int {
	if s.eof || len(p) == 0 {
		return 0
	}
	n, err := io.ReadFull(s.r, p)
	s.pos += int64(n)
	if err != nil {
		s.eof = true
	}
	return n
}

// Skip advances the cursor by n bytes, or fewer if the source runs out
// first, and reports how many bytes were actually skipped.
func (s *Source) Skip(n int64) int64 {
	if s.eof || n <= 0 {
		return 0
	}
	skipped, err := io.CopyN(io.Discard, s.r, n)
	s.pos += skipped
	if err != nil {
		s.eof = true
	}
	return skipped
}

// Pos reports the absolute offset of the next unread byte.
func (s *Source) Pos() int64 { return s.pos }

// EOF reports whether the underlying reader is exhausted.
func (s *Source) EOF() bool { return s.eof }
