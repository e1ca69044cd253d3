package render

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/mgpai22/capsync/internal/logging"
	"github.com/mgpai22/capsync/internal/subtitle"
	"github.com/mgpai22/capsync/internal/video"
)

// writes the window's runs as an ASS script and burns it in
func (o *Orchestrator) renderASS(ctx context.Context, p *plan, opts video.EncodeOptions, workDir string) error {
	enc, err := o.encoder()
	if err != nil {
		return err
	}

	script := subtitle.NewASSScript(p.comp, p.from, p.from+p.count)
	assPath := filepath.Join(workDir, "overlay.ass")
	if err := script.Save(assPath); err != nil {
		return err
	}
	logging.OrNop(o.Logger).Debugw("ass script written", "path", assPath, "runs", len(script.Runs))

	return enc.BurnASS(ctx, opts, assPath)
}

// rasterises each distinct overlay state once and composites the images
func (o *Orchestrator) renderBrowser(ctx context.Context, p *plan, opts video.EncodeOptions, workDir string) error {
	enc, err := o.encoder()
	if err != nil {
		return err
	}

	runs := p.comp.Runs(p.from, p.from+p.count)
	var overlays []video.ImageOverlay
	if len(runs) > 0 {
		snap, done, err := o.snapshotter(ctx)
		if err != nil {
			return err
		}
		defer done()

		overlays, err = snap.RenderStates(ctx, p.comp, runs, filepath.Join(workDir, "states"))
		if err != nil {
			return err
		}
	}

	return enc.OverlayImages(ctx, opts, overlays)
}

// hands the whole job to the render service
func (o *Orchestrator) renderRemote(ctx context.Context, p *plan, partial string) error {
	if o.Remote == nil {
		return errors.New("no render service configured")
	}
	if video.IsRemote(p.source) {
		return &Error{Kind: KindInput, Op: "remote render", Err: errors.New("the render service needs a local video file")}
	}
	in := p.comp.Input()
	err := o.Remote.Render(ctx, p.source, in.Segments, in.Style, partial)
	if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Kind: KindCollaborator, Op: "remote render", Err: err}
}
