// Package config holds the extraction Options record and its
// functional-options constructor.
package config

// WriteFormat enumerates the downstream output serializers. The
// serializers themselves (SCC/MCC/SRT) are external collaborators; this
// module only records which one was selected. Nothing in the module
// reads it: --dump always writes raw caption-block bytes.
type WriteFormat int

const (
	WriteSRT WriteFormat = iota
	WriteSCC
	WriteMCC
	WriteTranscript
	WriteRaw608
)

// Options is the flag surface of one extraction run.
type Options struct {
	WTVConvertFix   bool
	UseGOPAsPTS     bool
	UsePicOrder     bool
	IgnorePTSJumps  bool
	ExtractChapters bool
	WriteFormat     WriteFormat
	ForceDropFrame  bool

	// TrustVUIFrameRate applies the time_scale/(2*num_units_in_tick)
	// frame-rate override from SPS VUI timing info when true (the
	// default). Progressive streams whose VUI yields half-rate values
	// can turn it off.
	TrustVUIFrameRate bool
}

// Option mutates an Options record during construction.
type Option func(*Options)

// New builds an Options record with defaults: UsePicOrder off (PTS-mode
// sequencing is the common path) and TrustVUIFrameRate on.
func New(opts ...Option) Options {
	o := Options{
		TrustVUIFrameRate: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithWTVConvertFix(v bool) Option    { return func(o *Options) { o.WTVConvertFix = v } }
func WithUseGOPAsPTS(v bool) Option      { return func(o *Options) { o.UseGOPAsPTS = v } }
func WithUsePicOrder(v bool) Option      { return func(o *Options) { o.UsePicOrder = v } }
func WithIgnorePTSJumps(v bool) Option   { return func(o *Options) { o.IgnorePTSJumps = v } }
func WithExtractChapters(v bool) Option  { return func(o *Options) { o.ExtractChapters = v } }
func WithWriteFormat(f WriteFormat) Option {
	return func(o *Options) { o.WriteFormat = f }
}
func WithForceDropFrame(v bool) Option { return func(o *Options) { o.ForceDropFrame = v } }
func WithTrustVUIFrameRate(v bool) Option {
	return func(o *Options) { o.TrustVUIFrameRate = v }
}
