package subtitle

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/mgpai22/capsync/internal/caption"
)

// limits applied when reflowing transcribed segments for on-screen reading
type ReflowOptions struct {
	MaxCharsPerLine int
	MaxLines        int
	MaxDuration     float64
}

func DefaultReflowOptions() ReflowOptions {
	return ReflowOptions{
		MaxCharsPerLine: 42,
		MaxLines:        2,
		MaxDuration:     7,
	}
}

// Reflow splits segments that are too long to read in one cue and wraps
// the rest onto at most MaxLines lines. Empty segments are dropped.
func Reflow(segs []caption.Segment, opts ReflowOptions) []caption.Segment {
	if opts.MaxCharsPerLine <= 0 || opts.MaxLines <= 0 {
		opts = DefaultReflowOptions()
	}

	out := make([]caption.Segment, 0, len(segs))
	for _, seg := range segs {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		seg.Text = text

		if opts.needsSplit(seg) {
			out = append(out, opts.split(seg)...)
			continue
		}
		seg.Text = opts.wrap(text)
		out = append(out, seg)
	}
	return caption.EnsureIDs(out)
}

func (o ReflowOptions) needsSplit(seg caption.Segment) bool {
	if utf8.RuneCountInString(seg.Text) > o.MaxCharsPerLine*o.MaxLines {
		return true
	}
	return o.MaxDuration > 0 && seg.End-seg.Start > o.MaxDuration
}

// divides the words evenly across enough pieces to satisfy both limits
func (o ReflowOptions) split(seg caption.Segment) []caption.Segment {
	words := strings.Fields(seg.Text)
	total := seg.End - seg.Start

	maxChars := o.MaxCharsPerLine * o.MaxLines
	pieces := (utf8.RuneCountInString(seg.Text) + maxChars - 1) / maxChars
	if o.MaxDuration > 0 {
		if byDuration := int(math.Ceil(total / o.MaxDuration)); byDuration > pieces {
			pieces = byDuration
		}
	}
	if pieces > len(words) {
		pieces = len(words)
	}
	if pieces < 1 {
		pieces = 1
	}

	perPiece := (len(words) + pieces - 1) / pieces
	step := total / float64(pieces)

	var out []caption.Segment
	start := seg.Start
	for len(words) > 0 {
		n := perPiece
		if n > len(words) {
			n = len(words)
		}
		text := strings.Join(words[:n], " ")
		words = words[n:]

		end := start + step
		if len(words) == 0 {
			end = seg.End
		}
		out = append(out, caption.Segment{
			Start: start,
			End:   end,
			Text:  o.wrap(text),
		})
		start = end
	}
	return out
}

// breaks an over-long line at the word boundary closest to the middle
func (o ReflowOptions) wrap(text string) string {
	runeCount := utf8.RuneCountInString(text)
	if runeCount <= o.MaxCharsPerLine || o.MaxLines < 2 {
		return text
	}

	words := strings.Fields(text)
	if len(words) < 2 {
		return text
	}

	middle := runeCount / 2
	bestSplit, bestDiff := 0, runeCount
	length := 0
	for i, word := range words[:len(words)-1] {
		length += utf8.RuneCountInString(word)
		if i > 0 {
			length++
		}
		diff := length - middle
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			bestSplit = i + 1
		}
	}

	return strings.Join(words[:bestSplit], " ") + "\n" + strings.Join(words[bestSplit:], " ")
}
