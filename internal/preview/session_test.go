package preview

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/style"
)

func segs(texts ...string) []caption.Segment {
	out := make([]caption.Segment, len(texts))
	for i, t := range texts {
		out[i] = caption.Segment{Start: float64(i), End: float64(i) + 1, Text: t}
	}
	return out
}

func TestApplyReplacesSegments(t *testing.T) {
	s := NewSession("s1")
	s.SetVideo("/tmp/a.mp4", 10)
	s.SetSegments(segs("old", "older"))

	ticket, err := s.BeginTranscription()
	if err != nil {
		t.Fatal(err)
	}
	if !s.State().Transcribing {
		t.Error("expected transcribing state")
	}
	if err := s.Apply(ticket, segs("new")); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	st := s.State()
	if len(st.Segments) != 1 || st.Segments[0].Text != "new" {
		t.Errorf("segments = %+v, want only the new one", st.Segments)
	}
	if st.Segments[0].ID == "" {
		t.Error("applied segments should get ids")
	}
	if st.Transcribing {
		t.Error("transcribing should be cleared")
	}
	if st.TotalFrames != 300 {
		t.Errorf("TotalFrames = %d, want 300", st.TotalFrames)
	}
}

func TestResetMakesTicketStale(t *testing.T) {
	s := NewSession("s1")
	s.SetVideo("/tmp/a.mp4", 10)
	ticket, _ := s.BeginTranscription()

	s.Reset()
	if err := s.Apply(ticket, segs("late")); !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
	if len(s.State().Segments) != 0 {
		t.Error("stale result must not be applied")
	}
}

func TestNewerRequestWins(t *testing.T) {
	s := NewSession("s1")
	s.SetVideo("/tmp/a.mp4", 10)
	first, _ := s.BeginTranscription()
	second, _ := s.BeginTranscription()

	if err := s.Apply(first, segs("first")); !errors.Is(err, ErrStale) {
		t.Errorf("first ticket: err = %v, want ErrStale", err)
	}
	if err := s.Apply(second, segs("second")); err != nil {
		t.Errorf("second ticket: %v", err)
	}
}

func TestStyleChangeDuringTranscription(t *testing.T) {
	s := NewSession("s1")
	s.SetVideo("/tmp/a.mp4", 10)
	ticket, _ := s.BeginTranscription()

	s.SetStyle(style.KeyKaraoke)
	if err := s.Apply(ticket, segs("hello")); err != nil {
		t.Fatalf("style change must not invalidate the request: %v", err)
	}

	if got := s.Input().Style; got != style.KeyKaraoke {
		t.Errorf("Input().Style = %q, want karaoke", got)
	}
	set := s.Frame(0)
	if set.Layout.Key != style.KeyKaraoke || len(set.Overlays) != 1 {
		t.Errorf("frame 0 = %+v", set)
	}
}

func TestFailKeepsSegments(t *testing.T) {
	s := NewSession("s1")
	s.SetVideo("/tmp/a.mp4", 10)
	s.SetSegments(segs("keep"))
	ticket, _ := s.BeginTranscription()

	s.Fail(ticket)
	st := s.State()
	if st.Transcribing || len(st.Segments) != 1 || st.Segments[0].Text != "keep" {
		t.Errorf("state after failure = %+v", st)
	}
}

func TestBeginTranscriptionNeedsVideo(t *testing.T) {
	s := NewSession("s1")
	if _, err := s.BeginTranscription(); !errors.Is(err, ErrNoVideo) {
		t.Errorf("err = %v, want ErrNoVideo", err)
	}
}

func TestUnknownStyleFallsBack(t *testing.T) {
	s := NewSession("s1")
	if got := s.SetStyle("neon"); got != style.KeyBottomCentered {
		t.Errorf("SetStyle(neon) = %q, want bottom-centered", got)
	}
}

func TestInputIsASnapshot(t *testing.T) {
	s := NewSession("s1")
	s.SetSegments(segs("a"))
	in := s.Input()
	in.Segments[0].Text = "mutated"
	if s.State().Segments[0].Text != "a" {
		t.Error("Input must not expose session storage")
	}
}

func TestSetGeometry(t *testing.T) {
	s := NewSession("s1")
	if err := s.SetGeometry(25, 641, 360); err == nil {
		t.Error("odd width should be rejected")
	}
	if err := s.SetGeometry(25, 640, 360); err != nil {
		t.Fatal(err)
	}
	in := s.Input()
	if in.FPS != 25 || in.Width != 640 || in.Height != 360 {
		t.Errorf("geometry = %dx%d@%d", in.Width, in.Height, in.FPS)
	}
}

func TestConcurrentFramesAndEdits(t *testing.T) {
	s := NewSession("s1")
	s.SetVideo("/tmp/a.mp4", 10)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for f := 0; f < 200; f++ {
				s.Frame(f)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.SetSegments(segs("x", "y"))
				s.SetStyle(style.All()[j%3].Key())
			}
		}()
	}
	wg.Wait()
}

func TestStore(t *testing.T) {
	st := NewStore()
	a := st.Create()
	b := st.Create()
	if a.ID == b.ID {
		t.Fatal("ids must be unique")
	}
	if got, err := st.Get(a.ID); err != nil || got != a {
		t.Errorf("Get = %v, %v", got, err)
	}
	if len(st.List()) != 2 {
		t.Errorf("List len = %d, want 2", len(st.List()))
	}
	if _, err := st.Delete(a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Get(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := st.Delete(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	expired := st.Expire(time.Millisecond)
	if len(expired) != 1 || expired[0] != b || st.Len() != 0 {
		t.Errorf("expired = %v, len = %d", expired, st.Len())
	}
}

func TestFrameQueriesKeepSessionAlive(t *testing.T) {
	st := NewStore()
	s := st.Create()
	s.lastUse.Store(time.Now().Add(-2 * time.Hour).UnixNano())

	s.Frame(10)
	if expired := st.Expire(time.Hour); len(expired) != 0 {
		t.Fatalf("session expired right after a frame query")
	}

	s.lastUse.Store(time.Now().Add(-2 * time.Hour).UnixNano())
	s.Input()
	if expired := st.Expire(time.Hour); len(expired) != 0 {
		t.Fatalf("session expired right after an export snapshot")
	}

	s.lastUse.Store(time.Now().Add(-2 * time.Hour).UnixNano())
	if expired := st.Expire(time.Hour); len(expired) != 1 {
		t.Errorf("idle session should expire, got %d", len(expired))
	}
}
