package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/capsync/internal/audio"
	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/subtitle"
	"github.com/mgpai22/capsync/internal/transcribe"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe [media_file]",
	Short: "Transcribe an audio or video file into captions",
	Long: `Transcribe the specified audio or video file into time-coded captions.

Providers:
  remote  a speech-to-text service answering POST /transcribe (default)
  gemini  Google Gemini; audio is extracted and optionally chunked first
  openai  OpenAI Whisper; audio is extracted and optionally chunked first

The output format follows the output extension: .json (default), .srt,
.vtt or .ass.

Examples:
  capsync transcribe talk.mp4
  capsync transcribe talk.mp4 --provider gemini --chunk-duration 60 -o talk.srt
  capsync transcribe podcast.mp3 --provider openai --transcript-language english
  capsync transcribe talk.mp4 --service-url http://stt-host:8000`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().
		StringP("provider", "p", "", "Transcription provider (remote, gemini, openai)")
	transcribeCmd.Flags().
		StringP("api-key", "k", "", "API key (or set GEMINI_API_KEY/OPENAI_API_KEY env var)")
	transcribeCmd.Flags().
		String("model", "", "Model to use for transcription (provider-specific)")
	transcribeCmd.Flags().
		String("service-url", "", "Base URL of the remote transcription service")
	transcribeCmd.Flags().
		Float64P("chunk-duration", "d", 0, "Chunk duration in seconds for hosted providers (0 = whole file)")
	transcribeCmd.Flags().
		Int("concurrency", 0, "Number of parallel transcription workers")
	transcribeCmd.Flags().
		String("transcript-language", "native", "Output language for transcript (e.g., 'english', or 'native' for original language)")
	transcribeCmd.Flags().
		Bool("reflow", false, "Split and wrap long segments for on-screen reading")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	mediaPath := args[0]
	ctx := cmd.Context()

	if _, err := os.Stat(mediaPath); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", mediaPath)
	}
	if !audio.IsMediaFile(mediaPath) {
		return fmt.Errorf("unsupported file type: %s (expected audio or video file)", filepath.Ext(mediaPath))
	}

	var f transcriberFlags
	f.provider, _ = cmd.Flags().GetString("provider")
	f.apiKey, _ = cmd.Flags().GetString("api-key")
	f.model, _ = cmd.Flags().GetString("model")
	f.serviceURL, _ = cmd.Flags().GetString("service-url")
	f.chunkDuration, _ = cmd.Flags().GetFloat64("chunk-duration")
	f.concurrency, _ = cmd.Flags().GetInt("concurrency")
	f.transcriptLng, _ = cmd.Flags().GetString("transcript-language")
	f.language, _ = cmd.Flags().GetString("language")
	reflow, _ := cmd.Flags().GetBool("reflow")
	outputPath, _ := cmd.Flags().GetString("output")

	if outputPath == "" {
		outputPath = siblingPath(mediaPath, ".json")
	}

	transcriber, provider, err := newTranscriber(ctx, f)
	if err != nil {
		return err
	}
	if provider == transcribe.ProviderOpenAI && !isValidOpenAITranscriptLanguage(f.transcriptLng) {
		return fmt.Errorf(
			"openai can only transcribe into the native language or english, got %q",
			f.transcriptLng,
		)
	}

	logger.Infow("Starting transcription",
		"input", mediaPath,
		"output", outputPath,
		"provider", provider,
	)

	result, err := transcriber.Transcribe(ctx, mediaPath)
	if err != nil {
		return err
	}

	segs := result.Segments
	if reflow {
		segs = caption.EnsureIDs(subtitle.Reflow(segs, subtitle.DefaultReflowOptions()))
	}

	logger.Infow("Transcription complete",
		"segments", len(segs),
		"language", result.Language,
	)

	if err := saveCaptions(outputPath, segs); err != nil {
		return fmt.Errorf("failed to write captions: %w", err)
	}

	absOutput, _ := filepath.Abs(outputPath)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Captions generated successfully: %s\n", absOutput)
	fmt.Fprintf(out, "  Segments: %d\n", len(segs))
	fmt.Fprintf(out, "  Duration: %.2fs\n", result.Duration)
	return nil
}

// openai can only translate audio into english
func isValidOpenAITranscriptLanguage(lang string) bool {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "", "native", "english", "en":
		return true
	}
	return false
}
