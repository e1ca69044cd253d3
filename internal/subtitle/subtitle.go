// Package subtitle moves caption segments in and out of subtitle files
// (SRT, WebVTT, ASS) and writes overlay scripts for the burn-in engine.
package subtitle

import (
	"math"
	"time"

	"github.com/mgpai22/capsync/internal/caption"
)

// represents single subtitle entry
type Entry struct {
	Index     int
	StartTime time.Duration
	EndTime   time.Duration
	Text      string
}

// represents complete subtitle track
type Subtitle struct {
	Entries []Entry
	Format  Format
}

// represents supported subtitle formats
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
	FormatASS Format = "ass"
)

// entries numbered from 1 in segment order
func FromSegments(segs []caption.Segment) *Subtitle {
	sub := &Subtitle{Entries: make([]Entry, 0, len(segs))}
	for i, seg := range segs {
		sub.Entries = append(sub.Entries, Entry{
			Index:     i + 1,
			StartTime: dur(seg.Start),
			EndTime:   dur(seg.End),
			Text:      seg.Text,
		})
	}
	return sub
}

// converts entries back to segments with fresh ids
func (s *Subtitle) Segments() []caption.Segment {
	segs := make([]caption.Segment, 0, len(s.Entries))
	for _, e := range s.Entries {
		segs = append(segs, caption.Segment{
			Start: e.StartTime.Seconds(),
			End:   e.EndTime.Seconds(),
			Text:  e.Text,
		})
	}
	return caption.EnsureIDs(segs)
}

// rounds to the millisecond, the finest unit SRT and VTT carry
func dur(sec float64) time.Duration {
	if math.IsNaN(sec) || sec < 0 {
		return 0
	}
	return time.Duration(math.Round(sec*1000)) * time.Millisecond
}
