package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	ffmpegbin "github.com/mgpai22/capsync/internal/ffmpeg"
	"github.com/mgpai22/capsync/internal/logging"
)

// EncodeOptions describes the frame window and output format of one pass.
// Frames [StartFrame, StartFrame+FrameCount) of the source, resampled to
// FPS and fitted inside Width x Height, become the output.
type EncodeOptions struct {
	Source     string
	HasAudio   bool
	OutputPath string
	Codec      Codec
	FPS        int
	Width      int
	Height     int
	StartFrame int
	FrameCount int
}

func (o EncodeOptions) validate() error {
	if o.Source == "" {
		return fmt.Errorf("no source")
	}
	if o.OutputPath == "" {
		return fmt.Errorf("no output path")
	}
	if o.FPS <= 0 || o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("invalid output geometry %dx%d@%d", o.Width, o.Height, o.FPS)
	}
	if o.StartFrame < 0 || o.FrameCount <= 0 {
		return fmt.Errorf("invalid frame window start=%d count=%d", o.StartFrame, o.FrameCount)
	}
	return nil
}

func (o EncodeOptions) still() bool {
	return o.FrameCount == 1 && IsImagePath(o.OutputPath)
}

// a caption image shown on frames [From, To) of the output
type ImageOverlay struct {
	Path string
	From int
	To   int
}

// Encoder drives ffmpeg through ffmpeg-go.
type Encoder struct {
	FFmpegPath string
	Logger     *logging.Logger
}

func NewEncoder(ffmpegPath string, logger *logging.Logger) *Encoder {
	return &Encoder{FFmpegPath: ffmpegPath, Logger: logging.OrNop(logger)}
}

// BurnASS renders the frame window with an ASS overlay script drawn on top.
func (e *Encoder) BurnASS(ctx context.Context, opts EncodeOptions, assPath string) error {
	if err := opts.validate(); err != nil {
		return err
	}
	in := e.input(opts)
	video := burnASS(fitFrame(in.Video(), opts), assPath)
	return e.run(ctx, opts, e.output(in, video, opts))
}

// the script path goes in as a named option so ffmpeg-go escapes the
// colons, quotes and backslashes of Windows and odd temp paths
func burnASS(v *ffmpeg.Stream, assPath string) *ffmpeg.Stream {
	return v.Filter("ass", nil, ffmpeg.KwArgs{"filename": assPath})
}

// OverlayImages renders the frame window with each image composited over
// its frame range.
func (e *Encoder) OverlayImages(ctx context.Context, opts EncodeOptions, overlays []ImageOverlay) error {
	if err := opts.validate(); err != nil {
		return err
	}
	in := e.input(opts)
	video := fitFrame(in.Video(), opts)
	for _, o := range overlays {
		if o.To <= o.From {
			continue
		}
		img := ffmpeg.Input(o.Path)
		video = video.Overlay(img, "repeat", ffmpeg.KwArgs{
			"x":      0,
			"y":      0,
			"enable": fmt.Sprintf("between(n,%d,%d)", o.From, o.To-1),
		})
	}
	return e.run(ctx, opts, e.output(in, video, opts))
}

func (e *Encoder) input(opts EncodeOptions) *ffmpeg.Stream {
	kwargs := ffmpeg.KwArgs{}
	if opts.StartFrame > 0 {
		kwargs["ss"] = seconds(opts.StartFrame, opts.FPS)
	}
	return ffmpeg.Input(opts.Source, kwargs)
}

// fps normalisation then contain-scale with black letterbox
func fitFrame(v *ffmpeg.Stream, opts EncodeOptions) *ffmpeg.Stream {
	w, h := strconv.Itoa(opts.Width), strconv.Itoa(opts.Height)
	return v.
		Filter("fps", ffmpeg.Args{strconv.Itoa(opts.FPS)}).
		Filter("scale", ffmpeg.Args{w, h}, ffmpeg.KwArgs{"force_original_aspect_ratio": "decrease"}).
		Filter("pad", ffmpeg.Args{w, h, "(ow-iw)/2", "(oh-ih)/2"}, ffmpeg.KwArgs{"color": "black"}).
		Filter("setsar", ffmpeg.Args{"1"})
}

func (e *Encoder) output(in, video *ffmpeg.Stream, opts EncodeOptions) *ffmpeg.Stream {
	kwargs := outputArgs(opts)
	streams := []*ffmpeg.Stream{video}
	if opts.HasAudio && !opts.still() {
		streams = append(streams, in.Get("a?"))
	}

	out := ffmpeg.Output(streams, opts.OutputPath, kwargs).OverWriteOutput()
	if e.FFmpegPath != "" {
		out = out.SetFfmpegPath(e.FFmpegPath)
	}
	return out
}

func outputArgs(opts EncodeOptions) ffmpeg.KwArgs {
	if opts.still() {
		return ffmpeg.KwArgs{"frames:v": 1, "update": 1}
	}

	codec := opts.Codec
	if _, ok := codecEncoders[codec]; !ok {
		codec = DefaultCodec
	}
	enc := codecEncoders[codec]

	kwargs := ffmpeg.KwArgs{
		"c:v":      enc.encoder,
		"pix_fmt":  enc.pixFmt,
		"r":        opts.FPS,
		"frames:v": opts.FrameCount,
		"t":        seconds(opts.FrameCount, opts.FPS),
	}
	for k, v := range enc.extraArg {
		kwargs[k] = v
	}
	if opts.HasAudio {
		kwargs["c:a"] = enc.audio
	}
	return kwargs
}

func (e *Encoder) run(ctx context.Context, opts EncodeOptions, stream *ffmpeg.Stream) error {
	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	cmd := stream.Compile()
	logging.OrNop(e.Logger).Debugw("running ffmpeg", "args", cmd.Args)

	if err := ffmpegbin.Run(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg encode failed: %w", err)
	}
	return nil
}

func seconds(frames, fps int) string {
	return strconv.FormatFloat(float64(frames)/float64(fps), 'f', 6, 64)
}
