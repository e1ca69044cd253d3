// Package timeline converts second-based caption ranges into frame ranges.
package timeline

import "math"

// frames beyond this are clamped so float conversion never overflows int
const maxFrame = 1 << 40

// half-open frame range [From, From+Duration)
type Span struct {
	From     int `json:"from"`
	Duration int `json:"duration"`
}

// first frame after the span
func (s Span) End() int {
	return s.From + s.Duration
}

// reports whether frame f lies inside the span
func (s Span) Active(f int) bool {
	return s.From <= f && f < s.End()
}

// Schedule maps [start, end) seconds to frames: From = floor(start*fps),
// Duration = max(1, floor((end-start)*fps)). Every segment gets at least one
// frame. Non-finite or negative times never panic; the span is still placed
// (start clamped to 0) and ok is false so callers can blank the overlay.
func Schedule(start, end float64, fps int) (Span, bool) {
	ok := fps > 0 && finite(start) && finite(end) && start >= 0 && start < end
	if fps <= 0 {
		return Span{Duration: 1}, false
	}

	if !finite(start) || start < 0 {
		start = 0
	}

	span := Span{
		From:     floorFrames(start * float64(fps)),
		Duration: 1,
	}
	if finite(end) && end > start {
		if d := floorFrames((end - start) * float64(fps)); d > 1 {
			span.Duration = d
		}
	}
	return span, ok
}

// total frames covering a duration, never less than one
func TotalFrames(seconds float64, fps int) int {
	if fps <= 0 || !finite(seconds) || seconds <= 0 {
		return 1
	}
	if n := floorFrames(seconds * float64(fps)); n > 1 {
		return n
	}
	return 1
}

// presentation time of a frame in seconds
func FrameTime(frame, fps int) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(frame) / float64(fps)
}

// frame shown at time t (floor)
func FrameAt(seconds float64, fps int) int {
	if fps <= 0 || !finite(seconds) || seconds <= 0 {
		return 0
	}
	return floorFrames(seconds * float64(fps))
}

func floorFrames(v float64) int {
	v = math.Floor(v)
	if v < 0 {
		return 0
	}
	if v > maxFrame {
		return maxFrame
	}
	return int(v)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
