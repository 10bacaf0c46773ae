package cmd

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/capdemux/capdemux/common/errs"
	"github.com/capdemux/capdemux/config"
	"github.com/capdemux/capdemux/container"
	"github.com/capdemux/capdemux/container/asf"
	"github.com/capdemux/capdemux/container/mp4"
	"github.com/capdemux/capdemux/decoder"
	"github.com/capdemux/capdemux/pipeline"
	"github.com/capdemux/capdemux/stats"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract closed-caption byte blocks from an ASF/WTV, MP4, or elementary-stream file",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		in, err := os.Open(extract.inFile)
		if err != nil {
			return err
		}
		defer in.Close()

		opts := config.New(
			config.WithWTVConvertFix(extract.wtvConvertFix),
			config.WithUseGOPAsPTS(extract.useGOPAsPTS),
			config.WithUsePicOrder(extract.usePicOrder),
			config.WithIgnorePTSJumps(extract.ignorePTSJumps),
			config.WithTrustVUIFrameRate(extract.trustVUIFrameRate),
			config.WithForceDropFrame(extract.forceDropFrame),
		)

		sink := decoder.NewBufferSink()
		dbg := stats.NewDebug(stats.ParseMask(extract.debug))
		p := pipeline.New(pipeline.WithAfterMediaObject(func(pts time.Duration, data []byte) error {
			if e := dbg.Log(stats.DebugParse); e != nil {
				e.Dur("pts", pts).Int("bytes", len(data)).Msg("media object")
			}
			return nil
		}))

		switch extract.mode {
		case "mp4":
			if err := mp4.Extract(in, opts, sink); err != nil {
				return err
			}
		case "asf", "wtv":
			src := container.NewSource(in)
			demuxer, err := asf.Open(src, opts)
			if err != nil {
				return err
			}
			stream, layout := demuxer.DecodeStream()
			log.Info().Int("decode_stream", stream).Stringer("layout", layout).Msg("asf decode stream selected")
			if err := p.RunASF(context.Background(), demuxer, sink); err != nil {
				return err
			}
		case "es", "elementary":
			if err := p.RunElementary(context.Background(), in, opts, sink); err != nil {
				return err
			}
		default:
			return errs.Wrapf(errs.ErrUnsupportedStreamMode, "--mode %q (want mp4, asf, wtv, or es)", extract.mode)
		}

		if extract.dump {
			os.Stdout.Write(sink.RawBytes())
		}
		log.Info().
			Int("block_events", len(sink.Blocks)).
			Int("text_cues", len(sink.Texts)).
			Str("stats", p.Report.String()).
			Msg("caption extraction summary")
		return nil
	},
}

type extractArgs struct {
	inFile            string
	mode              string
	dump              bool
	wtvConvertFix     bool
	useGOPAsPTS       bool
	usePicOrder       bool
	ignorePTSJumps    bool
	trustVUIFrameRate bool
	forceDropFrame    bool
	debug             string
}

var extract extractArgs

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&extract.inFile, "input", "i", "", "input file")
	extractCmd.MarkFlagRequired("input")
	extractCmd.Flags().StringVarP(&extract.mode, "mode", "m", "mp4", "container mode: mp4, asf, wtv, or es")
	extractCmd.Flags().BoolVar(&extract.dump, "dump", false, "dump raw caption bytes to stdout")
	extractCmd.Flags().BoolVar(&extract.wtvConvertFix, "wtv-convert-fix", false, "decode ATSC captions from the dedicated caption stream instead of the video PES")
	extractCmd.Flags().BoolVar(&extract.useGOPAsPTS, "use-gop-as-pts", false, "reconstruct per-frame timestamps from GOP-relative offsets")
	extractCmd.Flags().BoolVar(&extract.usePicOrder, "use-pic-order", false, "sequence B-frames by picture order count instead of PTS delta")
	extractCmd.Flags().BoolVar(&extract.ignorePTSJumps, "ignore-pts-jumps", false, "don't flag large video PTS discontinuities as a sync-check condition")
	extractCmd.Flags().BoolVar(&extract.trustVUIFrameRate, "trust-vui-framerate", true, "override the frame rate from SPS VUI timing info when present")
	extractCmd.Flags().BoolVar(&extract.forceDropFrame, "force-dropframe", false, "force drop-frame timing for downstream MCC serialization")
	extractCmd.Flags().StringVar(&extract.debug, "debug", "", "comma-separated debug channels (parse,vides,time,decoder_608,decoder_708,verbose,share,all)")
}
