package pipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capdemux/capdemux/av"
	"github.com/capdemux/capdemux/decoder"
)

// fakeASF hands out a fixed list of media objects.
type fakeASF struct {
	layout  av.BufferDataType
	objects [][]byte
	pts     []time.Duration
	idx     int
}

func (f *fakeASF) ReadMediaObject() (time.Duration, []byte, error) {
	if f.idx >= len(f.objects) {
		return 0, nil, io.EOF
	}
	i := f.idx
	f.idx++
	return f.pts[i], f.objects[i], nil
}

func (f *fakeASF) DecodeStream() (int, av.BufferDataType) { return 2, f.layout }
func (f *fakeASF) EOF() bool                              { return f.idx >= len(f.objects) }

func TestRunASFEmitsRaw608Pairs(t *testing.T) {
	src := &fakeASF{
		layout:  av.BufferRaw608,
		objects: [][]byte{{0x94, 0x20, 0x94, 0x2F}},
		pts:     []time.Duration{45 * time.Second},
	}
	sink := decoder.NewBufferSink()
	p := New()
	require.NoError(t, p.RunASF(context.Background(), src, sink))

	require.Len(t, sink.Blocks, 1)
	assert.Equal(t, 45*time.Second, sink.Blocks[0].FTS)
	require.Len(t, sink.Blocks[0].Blocks, 2)
	assert.Equal(t, av.CaptionBlock{Type: 0xFC, Data1: 0x94, Data2: 0x20}, sink.Blocks[0].Blocks[0])
	assert.Equal(t, 2, p.Report.BlocksReceived)
}

func TestRunASFUnwrapsVideoPESUserData(t *testing.T) {
	es := []byte{
		0x00, 0x00, 0x01, 0xB2, 'G', 'A', '9', '4', 0x03,
		0x41, 0xFF, 0xFC, 0x94, 0x20, 0xFF,
	}
	pes := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, byte(3 + len(es)), 0x80, 0x00, 0x00}
	pes = append(pes, es...)

	src := &fakeASF{
		layout:  av.BufferPES,
		objects: [][]byte{pes},
		pts:     []time.Duration{time.Second},
	}
	sink := decoder.NewBufferSink()
	require.NoError(t, New().RunASF(context.Background(), src, sink))

	require.Len(t, sink.Blocks, 1)
	require.Len(t, sink.Blocks[0].Blocks, 1)
	assert.Equal(t, av.CaptionBlock{Type: 0xFC, Data1: 0x94, Data2: 0x20}, sink.Blocks[0].Blocks[0])
}

func TestRunASFHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeASF{layout: av.BufferRaw608, objects: [][]byte{{0x94, 0x20}}, pts: []time.Duration{0}}
	err := New().RunASF(ctx, src, decoder.NewBufferSink())
	assert.Error(t, err)
}
