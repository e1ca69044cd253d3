// Package composition decides what is drawn on each frame: the base video
// plus one overlay per active caption, styled by the resolved layout.
// Every frame is a pure function of (Input, frame), so preview scrubbing and
// batch export can query frames independently and in any order.
package composition

import (
	"fmt"
	"sort"

	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/style"
	"github.com/mgpai22/capsync/internal/timeline"
)

const (
	DefaultFPS    = 30
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// everything a render pass depends on; treat as immutable once a pass starts
type Input struct {
	VideoSource string            `json:"videoSource"`
	Segments    []caption.Segment `json:"segments"`
	Style       style.Key         `json:"style"`
	FPS         int               `json:"fps"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
}

// fills zero fields with the 30fps 1280x720 defaults and normalizes the style
func (in Input) WithDefaults() Input {
	if in.FPS <= 0 {
		in.FPS = DefaultFPS
	}
	if in.Width <= 0 {
		in.Width = DefaultWidth
	}
	if in.Height <= 0 {
		in.Height = DefaultHeight
	}
	in.Style, _ = style.ParseKey(string(in.Style))
	return in
}

// rejects dimensions the encoder cannot honour
func (in Input) Validate() error {
	if in.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", in.FPS)
	}
	if in.Width <= 0 || in.Height <= 0 {
		return fmt.Errorf("invalid composition size %dx%d", in.Width, in.Height)
	}
	if in.Width%2 != 0 || in.Height%2 != 0 {
		return fmt.Errorf("composition size %dx%d must be even", in.Width, in.Height)
	}
	return nil
}

// one caption drawn on a frame
type Overlay struct {
	SegmentID string        `json:"segmentId"`
	Index     int           `json:"index"`
	Text      string        `json:"text"`
	Slot      int           `json:"slot"`
	Span      timeline.Span `json:"span"`
	Malformed bool          `json:"malformed,omitempty"`
}

// the overlays drawn on one frame, on top of the unchanged video frame
type OverlaySet struct {
	Frame    int          `json:"frame"`
	Time     float64      `json:"time"`
	Layout   style.Layout `json:"layout"`
	Overlays []Overlay    `json:"overlays"`
}

func (s OverlaySet) Empty() bool {
	return len(s.Overlays) == 0
}

// Composition is an Input with its schedule precomputed. It holds no state
// that changes between frame queries.
type Composition struct {
	input  Input
	layout style.Layout
	spans  []timeline.Span
	valid  []bool
}

// builds the schedule for in (after defaults are applied)
func New(in Input) *Composition {
	in = in.WithDefaults()
	in.Segments = caption.Clone(in.Segments)

	c := &Composition{
		input:  in,
		layout: style.Resolve(in.Style, in.Width),
		spans:  make([]timeline.Span, len(in.Segments)),
		valid:  make([]bool, len(in.Segments)),
	}
	for i, seg := range in.Segments {
		c.spans[i], c.valid[i] = timeline.Schedule(seg.Start, seg.End, in.FPS)
	}
	return c
}

// ResolveFrame is the single frame-resolution function shared by the
// interactive preview and batch export paths.
func ResolveFrame(in Input, frame int) OverlaySet {
	return New(in).Frame(frame)
}

func (c *Composition) Input() Input {
	return c.input
}

func (c *Composition) Layout() style.Layout {
	return c.layout
}

// total frames for a video of the given duration at this composition's fps
func (c *Composition) TotalFrames(durationSeconds float64) int {
	return timeline.TotalFrames(durationSeconds, c.input.FPS)
}

// first frame after the last caption ends; 0 when there are no captions
func (c *Composition) LastFrame() int {
	last := 0
	for _, span := range c.spans {
		if end := span.End(); end > last {
			last = end
		}
	}
	return last
}

// Frame lists every segment active at f in segment-list order. Overlapping
// captions are stacked: slot 0 sits at the anchor edge, later ones move away
// from it. Malformed segments render as blank overlays.
func (c *Composition) Frame(f int) OverlaySet {
	set := OverlaySet{
		Frame:    f,
		Time:     timeline.FrameTime(f, c.input.FPS),
		Layout:   c.layout,
		Overlays: []Overlay{},
	}

	for i, span := range c.spans {
		if !span.Active(f) {
			continue
		}
		seg := c.input.Segments[i]
		text := seg.Text
		if !c.valid[i] {
			text = ""
		}
		set.Overlays = append(set.Overlays, Overlay{
			SegmentID: seg.ID,
			Index:     i,
			Text:      text,
			Slot:      len(set.Overlays),
			Span:      span,
			Malformed: !c.valid[i],
		})
	}
	return set
}

// maximal frame interval [From, To) over which the overlay set is constant
type Run struct {
	From     int       `json:"from"`
	To       int       `json:"to"`
	Overlays []Overlay `json:"overlays"`
}

func (r Run) Frames() int {
	return r.To - r.From
}

// Runs walks [from, to) and returns the intervals that carry overlays,
// rebased so that frame `from` becomes frame 0. Frames with nothing active
// produce no run.
func (c *Composition) Runs(from, to int) []Run {
	if to <= from {
		return nil
	}

	cuts := map[int]struct{}{from: {}, to: {}}
	for _, span := range c.spans {
		if span.From > from && span.From < to {
			cuts[span.From] = struct{}{}
		}
		if end := span.End(); end > from && end < to {
			cuts[end] = struct{}{}
		}
	}

	bounds := make([]int, 0, len(cuts))
	for b := range cuts {
		bounds = append(bounds, b)
	}
	sort.Ints(bounds)

	var runs []Run
	for i := 0; i+1 < len(bounds); i++ {
		set := c.Frame(bounds[i])
		if set.Empty() {
			continue
		}
		runs = append(runs, Run{
			From:     bounds[i] - from,
			To:       bounds[i+1] - from,
			Overlays: set.Overlays,
		})
	}
	return runs
}

// number of overlay draws across [from, to), counting each frame separately
func (c *Composition) OverlayFrames(from, to int) int {
	total := 0
	for _, r := range c.Runs(from, to) {
		total += r.Frames() * len(r.Overlays)
	}
	return total
}
