// Package preview holds interactive editing sessions: one video, its current
// captions and style, queried frame by frame by the preview client.
package preview

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/composition"
	"github.com/mgpai22/capsync/internal/style"
	"github.com/mgpai22/capsync/internal/timeline"
)

// ErrStale is returned when a transcription result arrives for a session
// that was reset or given newer captions after the request started.
var ErrStale = errors.New("session changed since the request started")

// ErrNoVideo is returned when an operation needs a video and none is loaded.
var ErrNoVideo = errors.New("session has no video")

// Ticket identifies one outstanding transcription request.
type Ticket struct {
	Session    string
	generation uint64
}

// Session is safe for concurrent use. Every mutation produces a new
// immutable composition; frame queries never observe a half-applied change.
type Session struct {
	ID string

	mu           sync.RWMutex
	video        string
	duration     float64
	segments     []caption.Segment
	style        style.Key
	fps          int
	width        int
	height       int
	generation   uint64
	transcribing bool
	comp         *composition.Composition
	created      time.Time
	updated      time.Time

	// unix nanos of the last edit or read; reads only hold the read lock
	lastUse atomic.Int64
}

// JSON view of a session
type State struct {
	ID           string            `json:"id"`
	Video        string            `json:"video,omitempty"`
	Duration     float64           `json:"duration"`
	Style        style.Key         `json:"style"`
	FPS          int               `json:"fps"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Segments     []caption.Segment `json:"segments"`
	TotalFrames  int               `json:"totalFrames"`
	Transcribing bool              `json:"transcribing"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func NewSession(id string) *Session {
	now := time.Now()
	s := &Session{
		ID:      id,
		style:   style.DefaultKey,
		fps:     composition.DefaultFPS,
		width:   composition.DefaultWidth,
		height:  composition.DefaultHeight,
		created: now,
		updated: now,
	}
	s.rebuild()
	return s
}

// must hold mu for writing
func (s *Session) rebuild() {
	s.comp = composition.New(composition.Input{
		VideoSource: s.video,
		Segments:    s.segments,
		Style:       s.style,
		FPS:         s.fps,
		Width:       s.width,
		Height:      s.height,
	})
	s.updated = time.Now()
	s.touch()
}

func (s *Session) touch() {
	s.lastUse.Store(time.Now().UnixNano())
}

// SetVideo loads a new video; its captions start empty.
func (s *Session) SetVideo(path string, duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = path
	s.duration = duration
	s.segments = nil
	s.transcribing = false
	s.generation++
	s.rebuild()
}

// SetGeometry changes the composition frame rate and size; zero keeps the default.
func (s *Session) SetGeometry(fps, width, height int) error {
	in := composition.Input{FPS: fps, Width: width, Height: height}.WithDefaults()
	if err := in.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fps, s.width, s.height = in.FPS, in.Width, in.Height
	s.rebuild()
	return nil
}

// SetStyle switches the presentation mode. Outstanding transcriptions stay
// valid; their result is drawn with whatever style is current.
func (s *Session) SetStyle(key style.Key) style.Key {
	key, _ = style.ParseKey(string(key))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style = key
	s.rebuild()
	return key
}

// SetSegments replaces the captions directly, invalidating any outstanding
// transcription.
func (s *Session) SetSegments(segs []caption.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = caption.EnsureIDs(caption.Clone(segs))
	s.transcribing = false
	s.generation++
	s.rebuild()
}

// BeginTranscription starts a request; only the latest request may apply.
func (s *Session) BeginTranscription() (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.video == "" {
		return Ticket{}, ErrNoVideo
	}
	s.generation++
	s.transcribing = true
	return Ticket{Session: s.ID, generation: s.generation}, nil
}

// Apply installs a transcription result, replacing the captions wholesale.
func (s *Session) Apply(t Ticket, segs []caption.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Session != s.ID || t.generation != s.generation {
		return ErrStale
	}
	s.segments = caption.EnsureIDs(caption.Clone(segs))
	s.transcribing = false
	s.generation++
	s.rebuild()
	return nil
}

// Fail ends a request without touching the current captions.
func (s *Session) Fail(t Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Session == s.ID && t.generation == s.generation {
		s.transcribing = false
		s.updated = time.Now()
		s.touch()
	}
}

// Reset clears the video and captions and abandons outstanding requests.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = ""
	s.duration = 0
	s.segments = nil
	s.style = style.DefaultKey
	s.transcribing = false
	s.generation++
	s.rebuild()
}

// Input is a snapshot of what an export started now would render.
func (s *Session) Input() composition.Input {
	s.touch()
	s.mu.RLock()
	defer s.mu.RUnlock()
	in := s.comp.Input()
	in.Segments = caption.Clone(in.Segments)
	return in
}

func (s *Session) Frame(f int) composition.OverlaySet {
	s.touch()
	s.mu.RLock()
	comp := s.comp
	s.mu.RUnlock()
	return comp.Frame(f)
}

func (s *Session) Video() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.video
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	segs := caption.Clone(s.segments)
	if segs == nil {
		segs = []caption.Segment{}
	}
	return State{
		ID:           s.ID,
		Video:        s.video,
		Duration:     s.duration,
		Style:        s.style,
		FPS:          s.fps,
		Width:        s.width,
		Height:       s.height,
		Segments:     segs,
		TotalFrames:  timeline.TotalFrames(s.duration, s.fps),
		Transcribing: s.transcribing,
		CreatedAt:    s.created,
		UpdatedAt:    s.updated,
	}
}

// last edit, frame query or export snapshot
func (s *Session) lastUsed() time.Time {
	return time.Unix(0, s.lastUse.Load())
}
