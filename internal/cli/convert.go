package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/subtitle"
)

var convertCmd = &cobra.Command{
	Use:   "convert [captions_file]",
	Short: "Convert captions between JSON, SRT, VTT and ASS",
	Long: `Convert a captions file to another format, chosen by the output extension.

ASS output is a styled overlay script for the default caption style.

Examples:
  capsync convert talk.srt -o talk.json
  capsync convert talk.json -o talk.vtt --reflow`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().
		Bool("reflow", false, "Split and wrap long segments for on-screen reading")
}

func runConvert(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	outputPath, _ := cmd.Flags().GetString("output")
	reflow, _ := cmd.Flags().GetBool("reflow")

	if outputPath == "" {
		return fmt.Errorf("an output path is required (-o captions.srt)")
	}

	segs, err := loadCaptions(inputPath)
	if err != nil {
		return err
	}
	if err := caption.ValidateAll(segs); err != nil {
		logger.Warnw("captions contain malformed segments", "error", err)
	}
	if reflow {
		segs = caption.EnsureIDs(subtitle.Reflow(segs, subtitle.DefaultReflowOptions()))
	}

	if err := saveCaptions(outputPath, segs); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	absOutput, _ := filepath.Abs(outputPath)
	logger.Infow("Captions converted", "input", inputPath, "output", absOutput, "segments", len(segs))
	fmt.Fprintf(cmd.OutOrStdout(), "Captions converted successfully: %s\n", absOutput)
	return nil
}
