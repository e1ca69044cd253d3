// Package render turns a (video, captions, style) triple into an encoded
// file by walking the composition over every frame of the source.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/composition"
	"github.com/mgpai22/capsync/internal/logging"
	"github.com/mgpai22/capsync/internal/snapshot"
	"github.com/mgpai22/capsync/internal/style"
	"github.com/mgpai22/capsync/internal/video"
)

// Engine selects how overlays reach the encoder.
type Engine string

const (
	EngineASS     Engine = "ass"     // overlays drawn by ffmpeg's ass filter
	EngineBrowser Engine = "browser" // overlays rasterised by headless Chrome
	EngineRemote  Engine = "remote"  // the whole job is sent to a render service
)

func ParseEngine(s string) (Engine, error) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case "":
		return EngineASS, nil
	case EngineASS, EngineBrowser, EngineRemote:
		return e, nil
	}
	return "", fmt.Errorf("unknown engine %q (want ass, browser or remote)", s)
}

// Job is one export request. Segments wins over CaptionsPath when both are set.
type Job struct {
	ID           string            `json:"id"`
	VideoSource  string            `json:"videoSource"`
	Segments     []caption.Segment `json:"segments,omitempty"`
	CaptionsPath string            `json:"captionsPath,omitempty"`
	Style        style.Key         `json:"style"`
	OutputPath   string            `json:"outputPath"`
	Codec        video.Codec       `json:"codec"`
	FPS          int               `json:"fps"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Engine       Engine            `json:"engine"`

	// optional frame window; FrameCount 0 runs to the end of the source
	StartFrame int `json:"startFrame,omitempty"`
	FrameCount int `json:"frameCount,omitempty"`
}

type Result struct {
	JobID       string        `json:"jobId"`
	OutputPath  string        `json:"outputPath"`
	TotalFrames int           `json:"totalFrames"`
	Duration    float64       `json:"duration"`
	Overlays    int           `json:"overlays"`
	Elapsed     time.Duration `json:"elapsed"`
}

// the encoding engine; *video.Encoder in production
type Encoder interface {
	BurnASS(ctx context.Context, opts video.EncodeOptions, assPath string) error
	OverlayImages(ctx context.Context, opts video.EncodeOptions, overlays []video.ImageOverlay) error
}

// rasterises overlay states for the browser engine
type Snapshotter interface {
	RenderStates(ctx context.Context, c *composition.Composition, runs []composition.Run, dir string) ([]video.ImageOverlay, error)
}

// the remote render collaborator; *remote.Client in production
type RemoteRenderer interface {
	Render(ctx context.Context, videoPath string, segs []caption.Segment, key style.Key, outPath string) error
}

// Recorder is told when a job starts and how it ended.
type Recorder interface {
	Started(ctx context.Context, id string, job Job) error
	Finished(ctx context.Context, id string, res *Result, err error) error
}

type ProbeFunc func(ctx context.Context, source string) (*video.Info, error)

type Orchestrator struct {
	Encoder    Encoder
	Probe      ProbeFunc
	Snapshots  Snapshotter
	Remote     RemoteRenderer
	Recorder   Recorder
	TempDir    string
	ChromePath string
	Logger     *logging.Logger
}

func New(enc Encoder, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		Encoder: enc,
		Probe:   video.Probe,
		Logger:  logging.OrNop(logger),
	}
}

// everything resolved before the engine runs
type plan struct {
	source string
	info   *video.Info
	comp   *composition.Composition
	from   int
	count  int
	output string
	codec  video.Codec
	engine Engine
}

// Run executes the job. The output file appears only when encoding
// completes; on any failure or cancellation nothing is left at OutputPath.
func (o *Orchestrator) Run(ctx context.Context, job Job) (res *Result, err error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	log := logging.OrNop(o.Logger).With("job", job.ID)
	started := time.Now()

	if o.Recorder != nil {
		if rerr := o.Recorder.Started(ctx, job.ID, job); rerr != nil {
			log.Warnw("failed to record job start", "error", rerr)
		}
		defer func() {
			if rerr := o.Recorder.Finished(context.WithoutCancel(ctx), job.ID, res, err); rerr != nil {
				log.Warnw("failed to record job result", "error", rerr)
			}
		}()
	}

	p, err := o.prepare(ctx, job)
	if err != nil {
		return nil, err
	}
	in := p.comp.Input()
	log.Infow("render started",
		"source", p.source,
		"style", in.Style,
		"engine", p.engine,
		"frames", p.count,
		"size", fmt.Sprintf("%dx%d@%d", in.Width, in.Height, in.FPS),
	)

	workDir, err := os.MkdirTemp(o.TempDir, "capsync-render-*")
	if err != nil {
		return nil, classify("create work directory", err)
	}
	defer os.RemoveAll(workDir)

	partial := partialPath(p.output)
	defer os.Remove(partial)

	if err := o.encode(ctx, p, workDir, partial); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		log.Errorw("render failed", "error", err)
		return nil, classify("encode", err)
	}
	if err := os.Rename(partial, p.output); err != nil {
		return nil, classify("finalize output", err)
	}

	res = &Result{
		JobID:       job.ID,
		OutputPath:  p.output,
		TotalFrames: p.count,
		Duration:    float64(p.count) / float64(in.FPS),
		Overlays:    p.comp.OverlayFrames(p.from, p.from+p.count),
		Elapsed:     time.Since(started),
	}
	log.Infow("render finished", "output", res.OutputPath, "frames", res.TotalFrames, "elapsed", res.Elapsed)
	return res, nil
}

// Still renders a single composed frame as an image.
func (o *Orchestrator) Still(ctx context.Context, job Job, frame int, out string) (*Result, error) {
	if !video.IsImagePath(out) {
		return nil, inputErr("still", fmt.Errorf("still output must be .png or .jpg, got %q", out))
	}
	if job.Engine == EngineRemote {
		return nil, inputErr("still", errors.New("the remote engine cannot render stills"))
	}
	job.OutputPath = out
	job.StartFrame = frame
	job.FrameCount = 1
	return o.Run(ctx, job)
}

// steps 1-4: source, captions, composition, frame window
func (o *Orchestrator) prepare(ctx context.Context, job Job) (*plan, error) {
	source, err := resolveSource(job.VideoSource)
	if err != nil {
		return nil, inputErr("resolve video", err)
	}

	segs, err := loadSegments(job)
	if err != nil {
		return nil, inputErr("load captions", err)
	}

	engine := job.Engine
	if engine == "" {
		engine = EngineASS
	}
	if _, err := ParseEngine(string(engine)); err != nil {
		return nil, inputErr("engine", err)
	}

	codec, err := video.ParseCodec(string(job.Codec))
	if err != nil {
		return nil, inputErr("codec", err)
	}

	output, err := resolveOutput(job.OutputPath)
	if err != nil {
		return nil, inputErr("resolve output", err)
	}

	comp := composition.New(composition.Input{
		VideoSource: source,
		Segments:    segs,
		Style:       job.Style,
		FPS:         job.FPS,
		Width:       job.Width,
		Height:      job.Height,
	})
	if err := comp.Input().Validate(); err != nil {
		return nil, inputErr("composition", err)
	}

	probe := o.Probe
	if probe == nil {
		probe = video.Probe
	}
	info, err := probe(ctx, source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, classify("probe video", ctx.Err())
		}
		return nil, inputErr("probe video", err)
	}

	total := comp.TotalFrames(info.Duration)
	from, count, err := window(job.StartFrame, job.FrameCount, total)
	if err != nil {
		return nil, inputErr("frame window", err)
	}

	return &plan{
		source: source,
		info:   info,
		comp:   comp,
		from:   from,
		count:  count,
		output: output,
		codec:  codec,
		engine: engine,
	}, nil
}

func (o *Orchestrator) encode(ctx context.Context, p *plan, workDir, partial string) error {
	in := p.comp.Input()
	opts := video.EncodeOptions{
		Source:     p.source,
		HasAudio:   p.info.HasAudio,
		OutputPath: partial,
		Codec:      p.codec,
		FPS:        in.FPS,
		Width:      in.Width,
		Height:     in.Height,
		StartFrame: p.from,
		FrameCount: p.count,
	}

	switch p.engine {
	case EngineRemote:
		return o.renderRemote(ctx, p, partial)
	case EngineBrowser:
		return o.renderBrowser(ctx, p, opts, workDir)
	default:
		return o.renderASS(ctx, p, opts, workDir)
	}
}

func (o *Orchestrator) encoder() (Encoder, error) {
	if o.Encoder == nil {
		return nil, errors.New("no encoder configured")
	}
	return o.Encoder, nil
}

// resolves a local path to an absolute one; remote references pass through
func resolveSource(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", errors.New("no video source")
	}
	if video.IsRemote(source) {
		return source, nil
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", video.ErrSourceNotFound, abs)
		}
		return "", err
	}
	if st.IsDir() {
		return "", fmt.Errorf("%s is a directory", abs)
	}
	return abs, nil
}

func loadSegments(job Job) ([]caption.Segment, error) {
	if job.Segments != nil || job.CaptionsPath == "" {
		return caption.Clone(job.Segments), nil
	}
	return caption.Load(job.CaptionsPath)
}

func resolveOutput(out string) (string, error) {
	if strings.TrimSpace(out) == "" {
		return "", errors.New("no output path")
	}
	abs, err := filepath.Abs(out)
	if err != nil {
		return "", err
	}
	if st, err := os.Stat(abs); err == nil && st.IsDir() {
		return "", fmt.Errorf("%s is a directory", abs)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", err
	}
	return abs, nil
}

// clamps the requested window to [0, total)
func window(start, count, total int) (int, int, error) {
	if start < 0 {
		return 0, 0, fmt.Errorf("start frame %d is negative", start)
	}
	if start >= total {
		return 0, 0, fmt.Errorf("start frame %d is past the last frame %d", start, total-1)
	}
	if count <= 0 || start+count > total {
		count = total - start
	}
	return start, count, nil
}

// sibling of out that keeps its extension so ffmpeg picks the same muxer
func partialPath(out string) string {
	ext := filepath.Ext(out)
	base := strings.TrimSuffix(filepath.Base(out), ext)
	return filepath.Join(filepath.Dir(out), "."+base+".partial-"+uuid.NewString()[:8]+ext)
}

// starts a browser for one job when no shared renderer is configured
func (o *Orchestrator) snapshotter(ctx context.Context) (Snapshotter, func(), error) {
	if o.Snapshots != nil {
		return o.Snapshots, func() {}, nil
	}
	r, err := snapshot.NewRenderer(ctx, snapshot.Options{ExecPath: o.ChromePath, Logger: o.Logger})
	if err != nil {
		return nil, nil, err
	}
	return r, r.Close, nil
}
