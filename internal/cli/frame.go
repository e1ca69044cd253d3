package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgpai22/capsync/internal/composition"
	"github.com/mgpai22/capsync/internal/render"
)

var frameCmd = &cobra.Command{
	Use:   "frame [video]",
	Short: "Show or render the captions on a single frame",
	Long: `Resolve which captions are drawn on one frame of the video.

Without --output the overlay set is printed as JSON and the video is not
read. With --output (.png or .jpg) the composed frame is rendered as an
image.

Examples:
  capsync frame talk.mp4 --frame 450 --captions talk.json
  capsync frame talk.mp4 --frame 450 --captions talk.json --style top-bar -o still.png`,
	Args: cobra.ExactArgs(1),
	RunE: runFrame,
}

func init() {
	rootCmd.AddCommand(frameCmd)

	addCompositionFlags(frameCmd)
	frameCmd.Flags().IntP("frame", "n", 0, "Frame number (0-based)")
	frameCmd.Flags().String("engine", "", "Render engine for image output (ass, browser)")
}

func runFrame(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	frame, _ := cmd.Flags().GetInt("frame")
	engineStr, _ := cmd.Flags().GetString("engine")
	outputPath, _ := cmd.Flags().GetString("output")

	if frame < 0 {
		return fmt.Errorf("frame must not be negative, got %d", frame)
	}

	job, err := jobFromFlags(cmd, args[0])
	if err != nil {
		return err
	}

	if outputPath == "" {
		set := composition.ResolveFrame(composition.Input{
			VideoSource: job.VideoSource,
			Segments:    job.Segments,
			Style:       job.Style,
			FPS:         job.FPS,
			Width:       job.Width,
			Height:      job.Height,
		}, frame)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(set)
	}

	orch, err := newOrchestrator(ctx, "")
	if err != nil {
		return err
	}
	if job.Engine, err = render.ParseEngine(firstNonEmpty(engineStr, cfg.Render.Engine)); err != nil {
		return err
	}

	res, err := orch.Still(ctx, job, frame, outputPath)
	if err != nil {
		return err
	}
	logger.Infow("Frame rendered", "frame", frame, "output", res.OutputPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Frame rendered successfully: %s\n", res.OutputPath)
	return nil
}
