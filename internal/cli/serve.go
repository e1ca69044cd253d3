package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgpai22/capsync/internal/cleanup"
	"github.com/mgpai22/capsync/internal/render"
	"github.com/mgpai22/capsync/internal/server"
	"github.com/mgpai22/capsync/internal/video"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the transcription, render and preview API",
	Long: `Start the HTTP server.

Endpoints:
  POST /transcribe                       multipart "file" -> {"segments": [...]}
  POST /render                           multipart "file", "segments_json", "style" -> captioned video
  POST /sessions                         create a preview session (optional multipart "file")
  GET  /sessions/:id/frames/:frame       overlay set for one frame
  GET  /ws/sessions/:id/preview          websocket; send {"frame": N}, receive overlay sets
  GET  /styles, /jobs, /health

Examples:
  capsync serve
  capsync serve --port 9000 --config capsync.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Listen host (default from config)")
	serveCmd.Flags().Int("port", 0, "Listen port (default from config)")
	serveCmd.Flags().Bool("access-log", true, "Log every request")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	accessLog, _ := cmd.Flags().GetBool("access-log")
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	orch, err := newOrchestrator(ctx, "")
	if err != nil {
		return err
	}
	orch.TempDir = cfg.Server.TempDir

	transcriber, _, err := newTranscriber(ctx, transcriberFlags{})
	if err != nil {
		logger.Warnw("transcription disabled", "error", err)
		transcriber = nil
	}

	codec, _ := video.ParseCodec(cfg.Render.Codec)
	engine, _ := render.ParseEngine(cfg.Render.Engine)

	srvCfg := server.Config{
		Renderer:    orch,
		Transcriber: transcriber,
		TempDir:     cfg.Server.TempDir,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		Codec:       codec,
		Engine:      engine,
		AccessLog:   accessLog,
		Logger:      logger,
	}
	if db := openJobs(); db != nil {
		defer db.Close()
		orch.Recorder = db
		srvCfg.Jobs = db
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}

	scheduler := cleanup.NewScheduler(cfg.Server.TempDir, cfg.CleanupInterval(), cfg.MaxAge(), logger, srv.ExpireSessions)
	scheduler.Keep = srv.KeepPath
	scheduler.Start()
	defer scheduler.Stop()

	go func() {
		<-ctx.Done()
		logger.Infow("Shutting down server")
		if err := srv.Shutdown(); err != nil {
			logger.Warnw("shutdown failed", "error", err)
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", cfg.Addr())
	return srv.Listen(cfg.Addr())
}
