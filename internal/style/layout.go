package style

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Anchor string

const (
	AnchorTop    Anchor = "top"
	AnchorBottom Anchor = "bottom"
)

type BackgroundKind string

const (
	BackgroundNone     BackgroundKind = "none"
	BackgroundSolid    BackgroundKind = "solid"
	BackgroundGradient BackgroundKind = "gradient"
)

// container fill; gradients run top to bottom from From to To
type Background struct {
	Kind BackgroundKind `json:"kind"`
	From Color          `json:"from"`
	To   Color          `json:"to"`
}

type Shadow struct {
	OffsetX int   `json:"offsetX"`
	OffsetY int   `json:"offsetY"`
	Blur    int   `json:"blur"`
	Color   Color `json:"color"`
}

type Underline struct {
	Thickness int   `json:"thickness"`
	Color     Color `json:"color"`
}

// placement of the overlay box on the frame
type Container struct {
	Anchor     Anchor     `json:"anchor"`
	Offset     int        `json:"offset"`
	Left       int        `json:"left"`
	Width      int        `json:"width"`
	Padding    int        `json:"padding"`
	Centered   bool       `json:"centered"`
	Background Background `json:"background"`
	Color      Color      `json:"color"`
	TextShadow *Shadow    `json:"textShadow,omitempty"`
}

// treatment of the caption text chip
type Text struct {
	FontStack  []string   `json:"fontStack"`
	Weight     int        `json:"weight"`
	Size       int        `json:"size"`
	LineHeight float64    `json:"lineHeight"`
	PadY       int        `json:"padY"`
	PadX       int        `json:"padX"`
	Radius     int        `json:"radius"`
	Background Color      `json:"background"`
	Underline  *Underline `json:"underline,omitempty"`
}

// Layout is the full visual description of one style at one width.
type Layout struct {
	Key       Key       `json:"key"`
	Width     int       `json:"width"`
	Container Container `json:"container"`
	Text      Text      `json:"text"`
}

// Devanagari face first: it also carries Latin glyphs, so mixed lines shape in one run.
func fontStack() []string {
	return []string{"Noto Sans Devanagari", "Noto Sans", "system-ui", "sans-serif"}
}

func baseText() Text {
	return Text{
		FontStack:  fontStack(),
		Weight:     700,
		Size:       48,
		LineHeight: 1.2,
		PadY:       12,
		PadX:       16,
		Radius:     12,
		Background: RGBA(0, 0, 0, 0.5),
	}
}

func dropShadow() *Shadow {
	return &Shadow{OffsetY: 2, Blur: 10, Color: RGBA(0, 0, 0, 0.6)}
}

type bottomCentered struct{}

func (bottomCentered) Key() Key      { return KeyBottomCentered }
func (bottomCentered) Label() string { return "Bottom Centered" }

func (bottomCentered) layout(width int) Layout {
	return Layout{
		Key:   KeyBottomCentered,
		Width: width,
		Container: Container{
			Anchor:     AnchorBottom,
			Offset:     48,
			Width:      width,
			Centered:   true,
			Background: Background{Kind: BackgroundNone},
			Color:      White,
			TextShadow: dropShadow(),
		},
		Text: baseText(),
	}
}

type topBar struct{}

func (topBar) Key() Key      { return KeyTopBar }
func (topBar) Label() string { return "Top Bar" }

func (topBar) layout(width int) Layout {
	text := baseText()
	text.Background = Transparent

	return Layout{
		Key:   KeyTopBar,
		Width: width,
		Container: Container{
			Anchor:   AnchorTop,
			Offset:   0,
			Width:    width,
			Padding:  24,
			Centered: true,
			Background: Background{
				Kind: BackgroundGradient,
				From: RGBA(0, 0, 0, 0.8),
				To:   RGBA(0, 0, 0, 0),
			},
			Color: White,
		},
		Text: text,
	}
}

type karaoke struct{}

func (karaoke) Key() Key      { return KeyKaraoke }
func (karaoke) Label() string { return "Karaoke Style" }

func (karaoke) layout(width int) Layout {
	text := baseText()
	text.Background = Transparent
	text.Underline = &Underline{Thickness: 6, Color: RGBA(0x7c, 0x93, 0xff, 1)}

	return Layout{
		Key:   KeyKaraoke,
		Width: width,
		Container: Container{
			Anchor:     AnchorBottom,
			Offset:     80,
			Width:      width,
			Centered:   true,
			Background: Background{Kind: BackgroundNone},
			Color:      White,
			TextShadow: dropShadow(),
		},
		Text: text,
	}
}

// height in pixels of the text chip for a single line
func (l Layout) ChipHeight() int {
	h := int(math.Round(float64(l.Text.Size)*l.Text.LineHeight)) + 2*l.Text.PadY
	if l.Text.Underline != nil {
		h += l.Text.Underline.Thickness
	}
	return h
}

// vertical space one overlay occupies inside its container, used to stack overlaps
func (l Layout) SlotHeight() int {
	return l.ChipHeight() + 2*l.Container.Padding
}

// CSS declarations for the container element
func (l Layout) ContainerCSS() string {
	c := l.Container
	decls := []string{
		"position:absolute",
		fmt.Sprintf("%s:%dpx", c.Anchor, c.Offset),
		fmt.Sprintf("left:%dpx", c.Left),
		fmt.Sprintf("width:%dpx", c.Width),
		"box-sizing:border-box",
	}
	if c.Padding > 0 {
		decls = append(decls, fmt.Sprintf("padding:%dpx", c.Padding))
	}
	if c.Centered {
		decls = append(decls, "display:flex", "justify-content:center", "text-align:center")
	}
	switch c.Background.Kind {
	case BackgroundSolid:
		decls = append(decls, "background:"+c.Background.From.CSS())
	case BackgroundGradient:
		decls = append(decls, fmt.Sprintf(
			"background:linear-gradient(180deg, %s, %s)",
			cssOpaqueRGBA(c.Background.From),
			cssOpaqueRGBA(c.Background.To),
		))
	}
	decls = append(decls, "color:"+c.Color.CSS())
	if c.TextShadow != nil {
		s := c.TextShadow
		decls = append(decls, fmt.Sprintf(
			"text-shadow:%dpx %dpx %dpx %s",
			s.OffsetX,
			s.OffsetY,
			s.Blur,
			s.Color.CSS(),
		))
	}
	return strings.Join(decls, ";")
}

// CSS declarations for the text chip element
func (l Layout) TextCSS() string {
	t := l.Text
	quoted := make([]string, len(t.FontStack))
	for i, f := range t.FontStack {
		if strings.Contains(f, " ") {
			f = "'" + f + "'"
		}
		quoted[i] = f
	}

	decls := []string{
		"font-family:" + strings.Join(quoted, ", "),
		fmt.Sprintf("font-weight:%d", t.Weight),
		fmt.Sprintf("font-size:%dpx", t.Size),
		fmt.Sprintf("line-height:%s", trimFloat(t.LineHeight)),
		fmt.Sprintf("padding:%dpx %dpx", t.PadY, t.PadX),
		fmt.Sprintf("border-radius:%dpx", t.Radius),
		"background:" + t.Background.CSS(),
	}
	if t.Underline != nil {
		decls = append(decls, fmt.Sprintf(
			"border-bottom:%dpx solid %s",
			t.Underline.Thickness,
			t.Underline.Color.CSS(),
		))
	}
	return strings.Join(decls, ";")
}

// gradients interpolate through transparent black, so keep rgba form for both stops
func cssOpaqueRGBA(c Color) string {
	return fmt.Sprintf("rgba(%d,%d,%d,%s)", c.R, c.G, c.B, trimFloat(c.A))
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
