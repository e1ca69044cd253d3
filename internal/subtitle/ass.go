package subtitle

import (
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/mgpai22/capsync/internal/composition"
	"github.com/mgpai22/capsync/internal/style"
)

const (
	captionStyle = "Caption"
	drawStyle    = "Shape"

	// gradient backgrounds are approximated by this many flat bands
	gradientBands = 12

	// average advance of a bold glyph relative to the font size
	glyphAdvance = 0.55
)

// ASSScript is an overlay-only Advanced SubStation script for a window of a
// composition. Event times are the frame boundaries of each run, rounded
// down to centiseconds, so every run starts and ends on the same frames as
// the composition for frame rates up to 100.
type ASSScript struct {
	Title  string
	Width  int
	Height int
	FPS    int
	Layout style.Layout
	Runs   []composition.Run
}

// script for frames [from, to) of c, rebased so from is time zero
func NewASSScript(c *composition.Composition, from, to int) *ASSScript {
	in := c.Input()
	return &ASSScript{
		Title:  "capsync overlay",
		Width:  in.Width,
		Height: in.Height,
		FPS:    in.FPS,
		Layout: c.Layout(),
		Runs:   c.Runs(from, to),
	}
}

func (s *ASSScript) String() string {
	var b strings.Builder
	s.writeHeader(&b)
	for _, run := range s.Runs {
		s.writeRun(&b, run)
	}
	return b.String()
}

func (s *ASSScript) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, s.String())
	return int64(n), err
}

func (s *ASSScript) Save(path string) error {
	return writeFile(path, []byte(s.String()))
}

func (s *ASSScript) writeHeader(b *strings.Builder) {
	l := s.Layout
	t := l.Text
	c := l.Container

	fmt.Fprintf(b, "[Script Info]\n")
	fmt.Fprintf(b, "Title: %s\n", s.Title)
	b.WriteString("ScriptType: v4.00+\n")
	b.WriteString("WrapStyle: 0\n")
	b.WriteString("ScaledBorderAndShadow: yes\n")
	b.WriteString("YCbCr Matrix: None\n")
	fmt.Fprintf(b, "PlayResX: %d\n", s.Width)
	fmt.Fprintf(b, "PlayResY: %d\n\n", s.Height)

	bold := 0
	if t.Weight >= 600 {
		bold = -1
	}

	// an opaque chip maps to BorderStyle 3, where Outline is the box padding
	borderStyle, outline, shadow := 1, 0, 0
	outlineColour, backColour := style.RGBA(0, 0, 0, 1), style.RGBA(0, 0, 0, 1)
	if !t.Background.IsTransparent() {
		borderStyle, outline = 3, t.PadY
		outlineColour, backColour = t.Background, t.Background
	} else if c.TextShadow != nil {
		shadow = c.TextShadow.OffsetY
		backColour = c.TextShadow.Color
	}

	font := "sans-serif"
	if len(t.FontStack) > 0 {
		font = t.FontStack[0]
	}
	margin := t.PadX + c.Padding

	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(b, "Style: %s,%s,%d,%s,&H000000FF,%s,%s,%d,0,0,0,100,100,0,0,%d,%d,%d,%d,%d,%d,%d,1\n",
		captionStyle, font, t.Size,
		c.Color.ASS(), outlineColour.ASS(), backColour.ASS(),
		bold, borderStyle, outline, shadow,
		alignment(c.Anchor), margin, margin, s.marginV(0),
	)
	fmt.Fprintf(b, "Style: %s,%s,%d,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,0,0,7,0,0,0,1\n\n",
		drawStyle, font, t.Size)

	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
}

func (s *ASSScript) writeRun(b *strings.Builder, run composition.Run) {
	start := s.assTime(run.From)
	end := s.assTime(run.To)
	l := s.Layout

	if bg := l.Container.Background; bg.Kind != style.BackgroundNone {
		height := l.Container.Offset + len(run.Overlays)*l.SlotHeight()
		for _, band := range backgroundBands(bg, s.Width, height, s.Height, l.Container.Anchor) {
			fmt.Fprintf(b, "Dialogue: 0,%s,%s,%s,,0,0,0,,%s\n", start, end, drawStyle, band)
		}
	}

	for _, o := range run.Overlays {
		text := sanitizeASS(o.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(b, "Dialogue: 1,%s,%s,%s,,0,0,%d,,%s\n",
			start, end, captionStyle, s.marginV(o.Slot), text)

		if u := l.Text.Underline; u != nil {
			fmt.Fprintf(b, "Dialogue: 2,%s,%s,%s,,0,0,0,,%s\n",
				start, end, drawStyle, s.accentBar(o, u))
		}
	}
}

// distance from the anchor edge to the text for a given stacking slot
func (s *ASSScript) marginV(slot int) int {
	l := s.Layout
	m := l.Container.Offset + l.Container.Padding + slot*l.SlotHeight() + l.Text.PadY
	if u := l.Text.Underline; u != nil && l.Container.Anchor == style.AnchorBottom {
		m += u.Thickness
	}
	return m
}

// underline along the bottom edge of the chip, sized to the estimated text width
func (s *ASSScript) accentBar(o composition.Overlay, u *style.Underline) string {
	l := s.Layout

	widest := 0
	for _, line := range strings.Split(o.Text, "\n") {
		if n := utf8.RuneCountInString(line); n > widest {
			widest = n
		}
	}
	w := int(math.Round(float64(widest)*float64(l.Text.Size)*glyphAdvance)) + 2*l.Text.PadX
	if limit := s.Width - 2*l.Container.Padding; w > limit {
		w = limit
	}
	x0 := (s.Width - w) / 2

	chipEdge := l.Container.Offset + l.Container.Padding + o.Slot*l.SlotHeight()
	var y0 int
	if l.Container.Anchor == style.AnchorBottom {
		y0 = s.Height - chipEdge - u.Thickness
	} else {
		y0 = chipEdge + l.ChipHeight() - u.Thickness
	}
	return drawRect(x0, y0, x0+w, y0+u.Thickness, u.Color)
}

// horizontal bands covering height pixels at the anchor edge, painted top
// to bottom; for gradients each band takes the colour at its midpoint
func backgroundBands(bg style.Background, width, height, frameHeight int, anchor style.Anchor) []string {
	if height <= 0 {
		return nil
	}
	n := 1
	if bg.Kind == style.BackgroundGradient {
		n = gradientBands
		if height < n {
			n = height
		}
	}

	var out []string
	for i := 0; i < n; i++ {
		y0 := i * height / n
		y1 := (i + 1) * height / n

		col := bg.From
		if bg.Kind == style.BackgroundGradient {
			t := (float64(i) + 0.5) / float64(n)
			col = style.RGBA(
				lerp8(bg.From.R, bg.To.R, t),
				lerp8(bg.From.G, bg.To.G, t),
				lerp8(bg.From.B, bg.To.B, t),
				bg.From.A+(bg.To.A-bg.From.A)*t,
			)
		}
		if col.IsTransparent() {
			continue
		}

		if anchor == style.AnchorBottom {
			y0, y1 = frameHeight-height+y0, frameHeight-height+y1
		}
		out = append(out, drawRect(0, y0, width, y1, col))
	}
	return out
}

func drawRect(x0, y0, x1, y1 int, col style.Color) string {
	return fmt.Sprintf(`{\an7\pos(0,0)\bord0\shad0\1c%s\1a%s\p1}m %d %d l %d %d %d %d %d %d{\p0}`,
		col.ASSTag(), col.ASSAlphaTag(),
		x0, y0, x1, y0, x1, y1, x0, y1,
	)
}

func alignment(anchor style.Anchor) int {
	if anchor == style.AnchorTop {
		return 8
	}
	return 2
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

// frame boundary as h:mm:ss.cc, rounded down to the centisecond
func (s *ASSScript) assTime(frame int) string {
	fps := s.FPS
	if fps <= 0 {
		fps = composition.DefaultFPS
	}
	cs := int64(frame) * 100 / int64(fps)
	if cs < 0 {
		cs = 0
	}
	return fmt.Sprintf("%d:%02d:%02d.%02d", cs/360000, cs/6000%60, cs/100%60, cs%100)
}

// ASS has no escape for a literal backslash; a word joiner after it keeps
// libass from reading \N, \n or \h as an override while staying invisible
const wordJoiner = "\u2060"

func sanitizeASS(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, `\`, `\`+wordJoiner)
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", `\N`)
}
