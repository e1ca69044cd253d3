package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mgpai22/capsync/internal/config"
	ffmpegbin "github.com/mgpai22/capsync/internal/ffmpeg"
	"github.com/mgpai22/capsync/internal/logging"
)

var (
	verbose    bool
	configPath string
	logger     *logging.Logger
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "capsync",
	Short: "Frame-accurate captions for videos",
	Long: `Capsync turns time-coded captions into frame-accurate overlays and burns
them into a video.

It can transcribe media, translate and convert caption files, preview
single frames and serve an interactive editing API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.NewLogger(verbose)

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		for _, w := range cfg.Warnings {
			logger.Warnw("config value ignored", "detail", w)
		}

		ffmpegbin.SetDefault(&ffmpegbin.Locator{
			FFmpeg:        cfg.FFmpeg.FFmpegPath,
			FFprobe:       cfg.FFmpeg.FFprobePath,
			AllowDownload: cfg.AllowDownload(),
			Logger:        logger,
		})
		return nil
	},
}

// Execute runs the command line. Interrupts cancel the running command's
// context; a failed command is logged before the error is returned.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		if logger == nil {
			logger = logging.NewLogger(verbose)
		}
		logger.Errorw("command failed", "error", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		StringVar(&configPath, "config", "", "Config file (default ./"+config.DefaultPath+" when present)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output file path")
	rootCmd.PersistentFlags().
		StringP("language", "l", "", "Language code (e.g., en, es, fr)")
}
