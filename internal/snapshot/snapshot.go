// Package snapshot rasterises overlay sets with headless Chrome, using the
// same CSS the interactive preview uses, into transparent PNGs.
package snapshot

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/mgpai22/capsync/internal/composition"
	"github.com/mgpai22/capsync/internal/logging"
	"github.com/mgpai22/capsync/internal/video"
)

// Renderer owns one headless browser; each Render opens a fresh tab.
type Renderer struct {
	browser     context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *logging.Logger

	mu     sync.Mutex
	closed bool
}

type Options struct {
	ExecPath string // chrome binary; empty lets chromedp search the usual places
	Logger   *logging.Logger
}

// NewRenderer starts a headless browser. The caller must Close it.
func NewRenderer(ctx context.Context, opts Options) (*Renderer, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("font-render-hinting", "none"),
		chromedp.DisableGPU,
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browser, cancel := chromedp.NewContext(allocCtx)

	// starts the browser process
	if err := chromedp.Run(browser); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Renderer{
		browser:     browser,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      logging.OrNop(opts.Logger),
	}, nil
}

func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cancel()
	r.allocCancel()
}

// Render loads html into a width x height viewport with a transparent page
// background and returns a PNG of the viewport.
func (r *Renderer) Render(ctx context.Context, html string, width, height int) ([]byte, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("renderer is closed")
	}

	tab, cancel := chromedp.NewContext(r.browser)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		buf   []byte
		ready bool
	)
	err := chromedp.Run(tab,
		chromedp.EmulateViewport(int64(width), int64(height)),
		emulation.SetDefaultBackgroundColorOverride().WithColor(&cdp.RGBA{R: 0, G: 0, B: 0, A: 0}),
		chromedp.Navigate("data:text/html;charset=utf-8;base64,"+base64.StdEncoding.EncodeToString([]byte(html))),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(`document.fonts.ready.then(() => true)`, &ready, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithFromSurface(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("snapshot failed: %w", err)
	}
	return buf, nil
}

// RenderFrame renders the overlays of one frame.
func (r *Renderer) RenderFrame(ctx context.Context, set composition.OverlaySet, width, height int) ([]byte, error) {
	return r.Render(ctx, OverlayHTML(set, width, height), width, height)
}

// RenderStates writes one PNG per run into dir and returns them as image
// overlays on the runs' frame ranges.
func (r *Renderer) RenderStates(ctx context.Context, c *composition.Composition, runs []composition.Run, dir string) ([]video.ImageOverlay, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	in := c.Input()
	overlays := make([]video.ImageOverlay, 0, len(runs))
	for i, run := range runs {
		set := composition.OverlaySet{
			Frame:    run.From,
			Layout:   c.Layout(),
			Overlays: run.Overlays,
		}
		png, err := r.RenderFrame(ctx, set, in.Width, in.Height)
		if err != nil {
			return nil, fmt.Errorf("state %d: %w", i, err)
		}

		path := filepath.Join(dir, fmt.Sprintf("state_%04d.png", i))
		if err := os.WriteFile(path, png, 0644); err != nil {
			return nil, fmt.Errorf("failed to write snapshot: %w", err)
		}
		overlays = append(overlays, video.ImageOverlay{Path: path, From: run.From, To: run.To})
	}

	r.logger.Debugw("rendered overlay states", "count", len(overlays), "dir", dir)
	return overlays, nil
}
