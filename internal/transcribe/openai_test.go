package transcribe

import (
	"strings"
	"testing"

	"github.com/mgpai22/capsync/internal/caption"
)

func TestParseVerboseJSON(t *testing.T) {
	tr := &OpenAITranscriber{}

	tests := []struct {
		name     string
		raw      string
		fallback float64
		want     []caption.Segment
	}{
		{
			name: "segments keep fractional seconds",
			raw: `{"text":"one two","language":"english","duration":4.25,"segments":[
				{"id":0,"start":0.0,"end":1.75,"text":" one "},
				{"id":1,"start":1.75,"end":4.25,"text":"two"}]}`,
			want: []caption.Segment{
				{Start: 0, End: 1.75, Text: "one"},
				{Start: 1.75, End: 4.25, Text: "two"},
			},
		},
		{
			name: "blank segments dropped",
			raw: `{"text":"kept","segments":[
				{"start":0,"end":1,"text":"   "},
				{"start":1,"end":2,"text":"kept"}]}`,
			want: []caption.Segment{{Start: 1, End: 2, Text: "kept"}},
		},
		{
			name:     "text only uses response duration",
			raw:      `{"text":" whole thing ","duration":9.5}`,
			fallback: 3,
			want:     []caption.Segment{{Start: 0, End: 9.5, Text: "whole thing"}},
		},
		{
			name:     "text only uses probed duration",
			raw:      `{"text":"whole thing"}`,
			fallback: 3,
			want:     []caption.Segment{{Start: 0, End: 3, Text: "whole thing"}},
		},
		{
			name: "extra fields ignored",
			raw: `{"task":"transcribe","text":"a","segments":[
				{"start":0.5,"end":1.5,"text":"a","tokens":[1,2],"avg_logprob":-0.2,"no_speech_prob":0.01}]}`,
			want: []caption.Segment{{Start: 0.5, End: 1.5, Text: "a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.parseVerboseJSONResponse(tt.raw, tt.fallback)
			if err != nil {
				t.Fatalf("parseVerboseJSONResponse: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d segments %+v, want %d", len(got), got, len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("segment %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseVerboseJSONErrors(t *testing.T) {
	tr := &OpenAITranscriber{}
	for _, raw := range []string{
		"",
		"not json",
		`{"segments":[]}`,
		`{"text":""}`,
	} {
		if _, err := tr.parseVerboseJSONResponse(raw, 10); err == nil {
			t.Errorf("parseVerboseJSONResponse(%q) should fail", raw)
		}
	}
}

func TestShouldUseTranslation(t *testing.T) {
	tests := map[string]bool{
		"":          false,
		"native":    false,
		"spanish":   false,
		"english":   true,
		" English ": true,
		"EN":        true,
	}
	for lang, want := range tests {
		tr := &OpenAITranscriber{options: Options{TranscriptLanguage: lang}}
		if got := tr.shouldUseTranslation(); got != want {
			t.Errorf("shouldUseTranslation(%q) = %v, want %v", lang, got, want)
		}
	}
}

func TestFallbackSegment(t *testing.T) {
	if got := fallbackSegment("  \n ", 5); got != nil {
		t.Errorf("blank text should give no segments, got %+v", got)
	}

	got := fallbackSegment(" said something ", 5.5)
	if len(got) != 1 {
		t.Fatalf("got %d segments, want 1", len(got))
	}
	if got[0].Start != 0 || got[0].End != 5.5 || got[0].Text != "said something" {
		t.Errorf("fallback = %+v", got[0])
	}
	if err := caption.ValidateAll(got); err != nil {
		t.Errorf("fallback segment should validate: %v", err)
	}
}

func TestNewOpenAITranscriberRequiresKey(t *testing.T) {
	_, err := NewOpenAITranscriber(t.Context(), "", Options{})
	if err == nil || !strings.Contains(err.Error(), "API key") {
		t.Errorf("expected API key error, got %v", err)
	}
}
