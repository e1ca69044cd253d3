package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/render"
	"github.com/mgpai22/capsync/internal/style"
	"github.com/mgpai22/capsync/internal/video"
)

var renderCmd = &cobra.Command{
	Use:   "render [video]",
	Short: "Burn captions into a video",
	Long: `Render a copy of the video with its captions drawn frame by frame.

Captions are read from JSON ({id, start, end, text} segments), SRT, VTT or
ASS files. The output only appears once encoding has finished; an
interrupted render leaves nothing behind.

Engines:
  ass      overlays drawn by ffmpeg's ass filter (default)
  browser  overlays rasterised by headless Chrome and composited by ffmpeg
  remote   the whole job is sent to a render service (--remote URL)

Examples:
  capsync render talk.mp4 --captions talk.json -o talk.captioned.mp4
  capsync render talk.mp4 --captions talk.srt --style karaoke --codec h265
  capsync render clip.mov --captions clip.json --engine browser --width 1920 --height 1080
  capsync render talk.mp4 --captions talk.json --remote http://render-host:8000`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	addCompositionFlags(renderCmd)
	renderCmd.Flags().String("codec", "", "Output codec (h264, h265, vp9, prores)")
	renderCmd.Flags().String("engine", "", "Render engine (ass, browser, remote)")
	renderCmd.Flags().String("remote", "", "Render service URL; implies --engine remote")
	renderCmd.Flags().Int("start-frame", 0, "First frame to render")
	renderCmd.Flags().Int("frame-count", 0, "Number of frames to render (0 = to the end)")
	renderCmd.Flags().Bool("no-history", false, "Do not record the job in the history database")
}

// flags shared by render and frame
func addCompositionFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("captions", "c", "", "Captions file (json, srt, vtt, ass)")
	cmd.Flags().StringP("style", "s", "", "Caption style ("+style.KeyList()+")")
	cmd.Flags().Int("fps", 0, "Composition frame rate")
	cmd.Flags().Int("width", 0, "Composition width in pixels")
	cmd.Flags().Int("height", 0, "Composition height in pixels")
}

// builds a job from the composition flags with config defaults
func jobFromFlags(cmd *cobra.Command, source string) (render.Job, error) {
	captionsPath, _ := cmd.Flags().GetString("captions")
	styleStr, _ := cmd.Flags().GetString("style")
	fps, _ := cmd.Flags().GetInt("fps")
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")

	segs := []caption.Segment{}
	if captionsPath != "" {
		loaded, err := loadCaptions(captionsPath)
		if err != nil {
			return render.Job{}, err
		}
		segs = loaded
	}

	styleStr = firstNonEmpty(styleStr, cfg.Render.Style)
	key, ok := style.ParseKey(styleStr)
	if !ok {
		logger.Warnw("unknown style, using default", "style", styleStr, "default", key)
	}

	if fps == 0 {
		fps = cfg.Render.FPS
	}
	if width == 0 && height == 0 {
		width, height = cfg.Render.Width, cfg.Render.Height
	}

	return render.Job{
		VideoSource: source,
		Segments:    segs,
		Style:       key,
		FPS:         fps,
		Width:       width,
		Height:      height,
	}, nil
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	codecStr, _ := cmd.Flags().GetString("codec")
	engineStr, _ := cmd.Flags().GetString("engine")
	remoteURL, _ := cmd.Flags().GetString("remote")
	startFrame, _ := cmd.Flags().GetInt("start-frame")
	frameCount, _ := cmd.Flags().GetInt("frame-count")
	noHistory, _ := cmd.Flags().GetBool("no-history")
	outputPath, _ := cmd.Flags().GetString("output")

	job, err := jobFromFlags(cmd, args[0])
	if err != nil {
		return err
	}

	codec, err := video.ParseCodec(firstNonEmpty(codecStr, cfg.Render.Codec))
	if err != nil {
		return err
	}
	if remoteURL != "" && engineStr == "" {
		engineStr = string(render.EngineRemote)
	}
	engine, err := render.ParseEngine(firstNonEmpty(engineStr, cfg.Render.Engine))
	if err != nil {
		return err
	}
	if engine == render.EngineRemote && firstNonEmpty(remoteURL, cfg.Render.RemoteURL) == "" {
		return fmt.Errorf("the remote engine needs --remote URL or render.remote_url in the config")
	}

	if outputPath == "" {
		outputPath = siblingPath(job.VideoSource, ".captioned"+codec.Ext())
	}
	job.OutputPath = outputPath
	job.Codec = codec
	job.Engine = engine
	job.StartFrame = startFrame
	job.FrameCount = frameCount

	orch, err := newOrchestrator(ctx, remoteURL)
	if err != nil {
		return err
	}
	if !noHistory {
		if db := openJobs(); db != nil {
			defer db.Close()
			orch.Recorder = db
		}
	}

	logger.Infow("Starting render",
		"input", job.VideoSource,
		"output", job.OutputPath,
		"segments", len(job.Segments),
		"style", job.Style,
		"engine", job.Engine,
		"codec", job.Codec,
	)

	res, err := orch.Run(ctx, job)
	if err != nil {
		return err
	}

	logger.Infow("Render complete", "output", res.OutputPath)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Video rendered successfully: %s\n", res.OutputPath)
	fmt.Fprintf(out, "  Frames: %d (%d with captions)\n", res.TotalFrames, res.Overlays)
	fmt.Fprintf(out, "  Elapsed: %s\n", res.Elapsed.Round(time.Millisecond))
	return nil
}
