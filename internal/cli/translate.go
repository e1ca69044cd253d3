package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/translate"
)

var translateCmd = &cobra.Command{
	Use:   "translate [captions_file]",
	Short: "Translate captions to another language using AI",
	Long: `Translate an existing captions file to another language using AI.

Accepts JSON, SRT, VTT and ASS input. Segment ids and timings are kept;
only the text changes.

The --overlay flag creates bilingual captions with the translated text
first, followed by the original text on the next line.

Examples:
  capsync translate talk.json --target-language japanese
  capsync translate talk.srt -t ja --overlay
  capsync translate talk.vtt -l english -t spanish --provider anthropic -o talk.es.vtt`,
	Args: cobra.ExactArgs(1),
	RunE: runTranslate,
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().
		StringP("target-language", "t", "", "Target language for translation (required)")
	translateCmd.Flags().
		Bool("overlay", false, "Overlay translated text with original (bilingual captions)")
	translateCmd.Flags().
		StringP("api-key", "k", "", "API key (or set GEMINI_API_KEY/OPENAI_API_KEY/ANTHROPIC_API_KEY env var)")
	translateCmd.Flags().
		String("model", "", "Model to use for translation (provider-specific, uses sensible defaults)")
	translateCmd.Flags().
		String("provider", "", "Translation provider (gemini, openai, anthropic)")
	translateCmd.Flags().
		Int("concurrency", 0, "Number of parallel translation workers")
	translateCmd.Flags().
		Int("batch-size", 0, "Number of captions per API request")

	_ = translateCmd.MarkFlagRequired("target-language")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	captionsPath := args[0]
	ctx := cmd.Context()

	targetLang, _ := cmd.Flags().GetString("target-language")
	overlay, _ := cmd.Flags().GetBool("overlay")
	apiKey, _ := cmd.Flags().GetString("api-key")
	model, _ := cmd.Flags().GetString("model")
	providerStr, _ := cmd.Flags().GetString("provider")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	outputPath, _ := cmd.Flags().GetString("output")
	inputLang, _ := cmd.Flags().GetString("language")

	if _, err := os.Stat(captionsPath); os.IsNotExist(err) {
		return fmt.Errorf("captions file not found: %s", captionsPath)
	}
	if strings.TrimSpace(targetLang) == "" {
		return fmt.Errorf("target language is required")
	}
	if inputLang != "" &&
		strings.EqualFold(strings.TrimSpace(inputLang), strings.TrimSpace(targetLang)) {
		return fmt.Errorf(
			"input language %q and target language %q cannot be the same",
			inputLang,
			targetLang,
		)
	}
	if concurrency < 0 {
		return fmt.Errorf("concurrency must be positive, got %d", concurrency)
	}
	if batchSize < 0 {
		return fmt.Errorf("batch-size must be positive, got %d", batchSize)
	}

	tc := cfg.Translation
	provider := translate.Provider(strings.ToLower(firstNonEmpty(providerStr, tc.Provider)))
	apiKey = firstNonEmpty(apiKey, cfg.APIKey(string(provider)))
	if apiKey == "" {
		return fmt.Errorf(
			"API key is required: use --api-key flag or set %s environment variable",
			apiKeyEnv(string(provider)),
		)
	}
	if concurrency == 0 {
		concurrency = tc.Concurrency
	}
	if batchSize == 0 {
		batchSize = tc.BatchSize
	}

	if outputPath == "" {
		ext := filepath.Ext(captionsPath)
		if overlay {
			outputPath = siblingPath(captionsPath, "."+targetLang+".overlay"+ext)
		} else {
			outputPath = siblingPath(captionsPath, "."+targetLang+ext)
		}
	}

	segs, err := loadCaptions(captionsPath)
	if err != nil {
		return fmt.Errorf("failed to parse captions file: %w", err)
	}
	if len(segs) == 0 {
		return fmt.Errorf("captions file contains no segments")
	}

	logger.Infow("Starting caption translation",
		"input", captionsPath,
		"output", outputPath,
		"segments", len(segs),
		"target_language", targetLang,
		"provider", provider,
		"overlay", overlay,
	)

	translator, err := translate.Factory(ctx, provider, apiKey, translate.Options{
		InputLanguage:  inputLang,
		TargetLanguage: targetLang,
		Model:          firstNonEmpty(model, tc.Model),
		BatchSize:      batchSize,
		Concurrency:    concurrency,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create translator: %w", err)
	}

	translated, err := translate.Segments(ctx, translator, segs)
	if err != nil {
		return fmt.Errorf("translation failed: %w", err)
	}
	if overlay {
		translated = bilingual(translated, segs)
	}

	if err := saveCaptions(outputPath, translated); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	absOutput, _ := filepath.Abs(outputPath)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Captions translated successfully: %s\n", absOutput)
	fmt.Fprintf(out, "  Segments: %d\n", len(translated))
	fmt.Fprintf(out, "  Target language: %s\n", targetLang)
	if overlay {
		fmt.Fprintf(out, "  Mode: bilingual overlay\n")
	}
	return nil
}

// translated text first, original on the next line
func bilingual(translated, original []caption.Segment) []caption.Segment {
	out := caption.Clone(translated)
	for i := range out {
		if i >= len(original) || out[i].Text == original[i].Text {
			continue
		}
		out[i].Text = out[i].Text + "\n" + original[i].Text
	}
	return out
}
