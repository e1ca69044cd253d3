package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/composition"
	ffmpegbin "github.com/mgpai22/capsync/internal/ffmpeg"
	"github.com/mgpai22/capsync/internal/remote"
	"github.com/mgpai22/capsync/internal/style"
	"github.com/mgpai22/capsync/internal/video"
)

// fakeEncoder records the last call and writes a placeholder file unless
// fail or block is set
type fakeEncoder struct {
	fail   error
	block  bool
	opts   video.EncodeOptions
	script string
	images []video.ImageOverlay
}

func (f *fakeEncoder) finish(ctx context.Context, opts video.EncodeOptions) error {
	f.opts = opts
	if err := os.WriteFile(opts.OutputPath, []byte("encoded"), 0644); err != nil {
		return err
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.fail
}

func (f *fakeEncoder) BurnASS(ctx context.Context, opts video.EncodeOptions, assPath string) error {
	data, err := os.ReadFile(assPath)
	if err != nil {
		return err
	}
	f.script = string(data)
	return f.finish(ctx, opts)
}

func (f *fakeEncoder) OverlayImages(ctx context.Context, opts video.EncodeOptions, overlays []video.ImageOverlay) error {
	f.images = overlays
	return f.finish(ctx, opts)
}

func probeFixed(duration float64) ProbeFunc {
	return func(ctx context.Context, source string) (*video.Info, error) {
		return &video.Info{Source: source, Width: 1920, Height: 1080, FPS: 25, Duration: duration, HasAudio: true}, nil
	}
}

type fixture struct {
	source string
	outDir string
	enc    *fakeEncoder
	orch   *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srcDir := t.TempDir()
	source := filepath.Join(srcDir, "input.mp4")
	if err := os.WriteFile(source, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	enc := &fakeEncoder{}
	orch := New(enc, nil)
	orch.Probe = probeFixed(4.2)
	orch.TempDir = t.TempDir()

	return &fixture{source: source, outDir: t.TempDir(), enc: enc, orch: orch}
}

func (f *fixture) job(segs []caption.Segment) Job {
	return Job{
		VideoSource: f.source,
		Segments:    segs,
		Style:       style.KeyBottomCentered,
		OutputPath:  filepath.Join(f.outDir, "out.mp4"),
	}
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestRunASSEngine(t *testing.T) {
	f := newFixture(t)
	segs := []caption.Segment{
		{ID: "1", Start: 0, End: 0.5, Text: "Hi"},
		{ID: "2", Start: 1, End: 2, Text: "there"},
	}

	res, err := f.orch.Run(context.Background(), f.job(segs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.TotalFrames != 126 {
		t.Errorf("TotalFrames = %d, want 126", res.TotalFrames)
	}
	if res.Duration != 4.2 {
		t.Errorf("Duration = %v, want 4.2", res.Duration)
	}
	if res.Overlays != 15+30 {
		t.Errorf("Overlays = %d, want 45", res.Overlays)
	}
	if res.OutputPath != filepath.Join(f.outDir, "out.mp4") {
		t.Errorf("OutputPath = %q", res.OutputPath)
	}

	opts := f.enc.opts
	if opts.FPS != 30 || opts.Width != 1280 || opts.Height != 720 {
		t.Errorf("geometry = %dx%d@%d, want 1280x720@30", opts.Width, opts.Height, opts.FPS)
	}
	if opts.StartFrame != 0 || opts.FrameCount != 126 {
		t.Errorf("window = [%d,+%d), want [0,+126)", opts.StartFrame, opts.FrameCount)
	}
	if opts.Codec != video.CodecH264 || !opts.HasAudio {
		t.Errorf("codec=%q audio=%v", opts.Codec, opts.HasAudio)
	}
	if !strings.HasPrefix(filepath.Base(opts.OutputPath), ".out.partial-") || filepath.Ext(opts.OutputPath) != ".mp4" {
		t.Errorf("encoder should write a partial file, got %q", opts.OutputPath)
	}
	if got := strings.Count(f.enc.script, "Dialogue: 1,"); got != 2 {
		t.Errorf("got %d caption events, want 2", got)
	}

	if names := dirEntries(t, f.outDir); len(names) != 1 || names[0] != "out.mp4" {
		t.Errorf("output dir = %v, want only out.mp4", names)
	}
}

func TestRunEmptySegmentsKeepsFullDuration(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Run(context.Background(), f.job(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalFrames != 126 || res.Overlays != 0 {
		t.Errorf("frames=%d overlays=%d, want 126 and 0", res.TotalFrames, res.Overlays)
	}
	if strings.Contains(f.enc.script, "Dialogue:") {
		t.Error("empty caption list should produce no events")
	}
}

func TestRunLoadsCaptionsFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "captions.json")
	if err := os.WriteFile(path, []byte(`[{"id":"a","start":0,"end":1,"text":"from file"}]`), 0644); err != nil {
		t.Fatal(err)
	}

	job := f.job(nil)
	job.CaptionsPath = path
	if _, err := f.orch.Run(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(f.enc.script, "from file") {
		t.Error("captions file was not used")
	}
}

func TestRunEncodingFailureLeavesNoOutput(t *testing.T) {
	f := newFixture(t)
	f.enc.fail = &ffmpegbin.ExitError{Err: errors.New("exit status 1"), Stderr: "Conversion failed!"}

	_, err := f.orch.Run(context.Background(), f.job(nil))
	if !errors.Is(err, ErrEncoding) {
		t.Fatalf("err = %v, want ErrEncoding", err)
	}
	if errors.Is(err, ErrInput) {
		t.Error("encoding failure must not look like bad input")
	}
	if names := dirEntries(t, f.outDir); len(names) != 0 {
		t.Errorf("output dir should be empty, got %v", names)
	}
}

func TestRunCancelledLeavesNoOutput(t *testing.T) {
	f := newFixture(t)
	f.enc.block = true

	ctx, cancel := context.WithCancel(context.Background())
	var (
		wg  sync.WaitGroup
		err error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err = f.orch.Run(ctx, f.job([]caption.Segment{{Start: 0, End: 1, Text: "x"}}))
	}()

	// wait for the encoder to create its partial file
	for len(dirEntries(t, f.outDir)) == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	wg.Wait()

	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want cancellation", err)
	}
	if names := dirEntries(t, f.outDir); len(names) != 0 {
		t.Errorf("output dir should be empty, got %v", names)
	}
}

func TestRunInputErrors(t *testing.T) {
	f := newFixture(t)
	badCaptions := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(badCaptions, []byte(`{"segments": nope}`), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*Job)
	}{
		{"missing video", func(j *Job) { j.VideoSource = filepath.Join(f.outDir, "nope.mp4") }},
		{"empty video", func(j *Job) { j.VideoSource = "" }},
		{"malformed captions", func(j *Job) { j.Segments = nil; j.CaptionsPath = badCaptions }},
		{"no output", func(j *Job) { j.OutputPath = "" }},
		{"bad codec", func(j *Job) { j.Codec = "mpeg2" }},
		{"bad engine", func(j *Job) { j.Engine = "flash" }},
		{"odd size", func(j *Job) { j.Width = 641; j.Height = 360 }},
		{"start past end", func(j *Job) { j.StartFrame = 500 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := f.job(nil)
			tt.mutate(&job)
			_, err := f.orch.Run(context.Background(), job)
			if !errors.Is(err, ErrInput) {
				t.Errorf("err = %v, want ErrInput", err)
			}
			if KindOf(err) != KindInput {
				t.Errorf("KindOf = %q", KindOf(err))
			}
		})
	}
}

func TestUnknownStyleFallsBack(t *testing.T) {
	f := newFixture(t)
	job := f.job([]caption.Segment{{Start: 0, End: 1, Text: "x"}})
	job.Style = "comic-sans"
	if _, err := f.orch.Run(context.Background(), job); err != nil {
		t.Fatalf("unknown style should not fail: %v", err)
	}
	// bottom-centered: opaque chip box, bottom alignment, 48+12 vertical margin
	if !strings.Contains(f.enc.script, ",0,0,3,12,0,2,16,16,60,1") {
		t.Error("expected the bottom-centered caption style in the script")
	}
}

func TestStill(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(f.outDir, "frame.png")
	res, err := f.orch.Still(context.Background(), f.job([]caption.Segment{
		{Start: 0, End: 2, Text: "A"},
		{Start: 1, End: 3, Text: "B"},
	}), 45, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.enc.opts.StartFrame != 45 || f.enc.opts.FrameCount != 1 {
		t.Errorf("window = [%d,+%d), want [45,+1)", f.enc.opts.StartFrame, f.enc.opts.FrameCount)
	}
	if res.Overlays != 2 {
		t.Errorf("Overlays = %d, want 2", res.Overlays)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("still not written: %v", err)
	}

	if _, err := f.orch.Still(context.Background(), f.job(nil), 0, filepath.Join(f.outDir, "frame.mp4")); !errors.Is(err, ErrInput) {
		t.Errorf("non-image still output: err = %v, want ErrInput", err)
	}
}

type fakeSnapshots struct {
	runs []composition.Run
}

func (s *fakeSnapshots) RenderStates(ctx context.Context, c *composition.Composition, runs []composition.Run, dir string) ([]video.ImageOverlay, error) {
	s.runs = runs
	out := make([]video.ImageOverlay, len(runs))
	for i, r := range runs {
		out[i] = video.ImageOverlay{Path: filepath.Join(dir, "s.png"), From: r.From, To: r.To}
	}
	return out, nil
}

func TestRunBrowserEngine(t *testing.T) {
	f := newFixture(t)
	snaps := &fakeSnapshots{}
	f.orch.Snapshots = snaps

	job := f.job([]caption.Segment{
		{Start: 0, End: 2, Text: "A"},
		{Start: 1, End: 3, Text: "B"},
	})
	job.Engine = EngineBrowser
	job.StartFrame = 30
	if _, err := f.orch.Run(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// window starts at frame 30: A+B on [0,30), B alone on [30,60)
	want := []video.ImageOverlay{{From: 0, To: 30}, {From: 30, To: 60}}
	if len(f.enc.images) != len(want) {
		t.Fatalf("got %d image overlays, want %d", len(f.enc.images), len(want))
	}
	for i, w := range want {
		got := f.enc.images[i]
		if got.From != w.From || got.To != w.To {
			t.Errorf("overlay %d = [%d,%d), want [%d,%d)", i, got.From, got.To, w.From, w.To)
		}
	}
	if len(snaps.runs[0].Overlays) != 2 {
		t.Errorf("first state should stack two captions")
	}
}

type fakeRemote struct {
	fail error
	segs []caption.Segment
	key  style.Key
}

func (r *fakeRemote) Render(ctx context.Context, videoPath string, segs []caption.Segment, key style.Key, outPath string) error {
	r.segs, r.key = segs, key
	if r.fail != nil {
		return r.fail
	}
	return os.WriteFile(outPath, []byte("remote"), 0644)
}

func TestRunRemoteEngine(t *testing.T) {
	f := newFixture(t)
	rem := &fakeRemote{}
	f.orch.Remote = rem

	job := f.job([]caption.Segment{{ID: "a", Start: 0, End: 1, Text: "x"}})
	job.Engine = EngineRemote
	job.Style = style.KeyKaraoke
	res, err := f.orch.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rem.key != style.KeyKaraoke || len(rem.segs) != 1 {
		t.Errorf("remote got style %q and %d segments", rem.key, len(rem.segs))
	}
	data, _ := os.ReadFile(res.OutputPath)
	if string(data) != "remote" {
		t.Errorf("output = %q", data)
	}
}

func TestRunRemoteFailureIsCollaboratorError(t *testing.T) {
	f := newFixture(t)
	f.orch.Remote = &fakeRemote{fail: &remote.ServiceError{Status: 200, Message: "render crashed"}}

	job := f.job(nil)
	job.Engine = EngineRemote
	_, err := f.orch.Run(context.Background(), job)
	if !errors.Is(err, ErrCollaborator) {
		t.Fatalf("err = %v, want ErrCollaborator", err)
	}
	if names := dirEntries(t, f.outDir); len(names) != 0 {
		t.Errorf("output dir should be empty, got %v", names)
	}
}

func TestRunRemoteUnreachableIsCollaboratorError(t *testing.T) {
	f := newFixture(t)
	f.orch.Remote = remote.NewClient("http://127.0.0.1:1", nil)

	job := f.job([]caption.Segment{{ID: "a", Start: 0, End: 1, Text: "x"}})
	job.Engine = EngineRemote
	_, err := f.orch.Run(context.Background(), job)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := KindOf(err); got != KindCollaborator {
		t.Fatalf("kind = %q, want %q (err: %v)", got, KindCollaborator, err)
	}
	if names := dirEntries(t, f.outDir); len(names) != 0 {
		t.Errorf("output dir should be empty, got %v", names)
	}
}

func TestRunRemoteGenericFailureIsCollaboratorError(t *testing.T) {
	f := newFixture(t)
	f.orch.Remote = &fakeRemote{fail: errors.New("connection reset by peer")}

	job := f.job(nil)
	job.Engine = EngineRemote
	_, err := f.orch.Run(context.Background(), job)
	if !errors.Is(err, ErrCollaborator) {
		t.Fatalf("err = %v, want ErrCollaborator", err)
	}
}

type fakeRecorder struct {
	started  []string
	finished []error
}

func (r *fakeRecorder) Started(ctx context.Context, id string, job Job) error {
	r.started = append(r.started, id)
	return nil
}

func (r *fakeRecorder) Finished(ctx context.Context, id string, res *Result, err error) error {
	r.finished = append(r.finished, err)
	return nil
}

func TestRecorderSeesOutcome(t *testing.T) {
	f := newFixture(t)
	rec := &fakeRecorder{}
	f.orch.Recorder = rec

	job := f.job(nil)
	job.ID = "job-1"
	if _, err := f.orch.Run(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	job.OutputPath = ""
	if _, err := f.orch.Run(context.Background(), job); err == nil {
		t.Fatal("expected error")
	}

	if len(rec.started) != 2 || rec.started[0] != "job-1" {
		t.Errorf("started = %v", rec.started)
	}
	if len(rec.finished) != 2 || rec.finished[0] != nil || !errors.Is(rec.finished[1], ErrInput) {
		t.Errorf("finished = %v", rec.finished)
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		start, count, total int
		wantFrom, wantCount int
		wantErr             bool
	}{
		{0, 0, 126, 0, 126, false},
		{10, 0, 126, 10, 116, false},
		{10, 5, 126, 10, 5, false},
		{120, 50, 126, 120, 6, false},
		{126, 0, 126, 0, 0, true},
		{-1, 0, 126, 0, 0, true},
		{0, 0, 1, 0, 1, false},
	}
	for _, tt := range tests {
		from, count, err := window(tt.start, tt.count, tt.total)
		if (err != nil) != tt.wantErr {
			t.Errorf("window(%d,%d,%d) err = %v", tt.start, tt.count, tt.total, err)
			continue
		}
		if !tt.wantErr && (from != tt.wantFrom || count != tt.wantCount) {
			t.Errorf("window(%d,%d,%d) = %d,%d, want %d,%d", tt.start, tt.count, tt.total, from, count, tt.wantFrom, tt.wantCount)
		}
	}
}

func TestParseEngine(t *testing.T) {
	for in, want := range map[string]Engine{"": EngineASS, "ASS": EngineASS, "browser": EngineBrowser, " remote ": EngineRemote} {
		got, err := ParseEngine(in)
		if err != nil || got != want {
			t.Errorf("ParseEngine(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseEngine("gpu"); err == nil {
		t.Error("expected error for unknown engine")
	}
}
