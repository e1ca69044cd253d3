package audio

import (
	"path/filepath"
	"testing"
)

func TestPlanChunks(t *testing.T) {
	chunks := planChunks("talk", ".mp3", "/tmp/out", 25, 10)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	want := []struct{ start, end float64 }{{0, 10}, {10, 20}, {20, 25}}
	for i, c := range chunks {
		if c.Index != i || c.StartTime != want[i].start || c.EndTime != want[i].end {
			t.Errorf("chunk %d: got %+v", i, c)
		}
	}
	if chunks[2].Path != filepath.Join("/tmp/out", "talk_chunk_002.mp3") {
		t.Errorf("unexpected chunk path %s", chunks[2].Path)
	}
}

func TestPlanChunksExactMultiple(t *testing.T) {
	if got := len(planChunks("a", ".wav", "d", 20, 10)); got != 2 {
		t.Errorf("expected 2 chunks, got %d", got)
	}
	if got := len(planChunks("a", ".wav", "d", 0, 10)); got != 0 {
		t.Errorf("expected no chunks for empty audio, got %d", got)
	}
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration([]byte(`{"format":{"duration":"12.480000"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 12.48 {
		t.Errorf("expected 12.48, got %v", d)
	}

	if _, err := parseDuration([]byte(`{"format":{}}`)); err == nil {
		t.Error("expected error for missing duration")
	}
}

func TestMediaTypes(t *testing.T) {
	tests := []struct {
		path         string
		video, audio bool
	}{
		{"clip.MP4", true, false},
		{"talk.opus", false, true},
		{"notes.txt", false, false},
	}
	for _, tt := range tests {
		if IsVideoFile(tt.path) != tt.video || IsAudioFile(tt.path) != tt.audio {
			t.Errorf("unexpected classification for %s", tt.path)
		}
	}
}
