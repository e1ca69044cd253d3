package transcribe

import (
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/mgpai22/capsync/internal/caption"
)

func geminiResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, len(texts))
	for i, t := range texts {
		parts[i] = &genai.Part{Text: t}
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func TestParseTranscriptionResponse(t *testing.T) {
	want := []caption.Segment{
		{Start: 0, End: 1.5, Text: "hello there"},
		{Start: 1.5, End: 3, Text: "general kenobi"},
	}
	body := `[{"start":0,"end":1.5,"text":" hello there "},{"start":1.5,"end":3,"text":"general kenobi"}]`

	tests := []struct {
		name  string
		parts []string
	}{
		{"bare array", []string{body}},
		{"fenced", []string{"```json\n" + body + "\n```"}},
		{"prose before and after", []string{"Sure, here is the transcript: " + body + " Let me know if you need more."}},
		{"wrapped in segments key", []string{`{"segments":` + body + `}`}},
		{"wrapped in unknown key", []string{`{"result":{"lines":` + body + `}}`}},
		{"split across parts", []string{body[:20], body[20:]}},
		{"non-segment json first", []string{`[1, 2, 3] ` + body}},
		{"bracketed prose first", []string{"[inaudible] " + body}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTranscriptionResponse(geminiResponse(tt.parts...))
			if err != nil {
				t.Fatalf("parseTranscriptionResponse: %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("got %d segments, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("segment %d = %+v, want %+v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestParseTranscriptionResponseErrors(t *testing.T) {
	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		wantErr string
	}{
		{"nil response", nil, "empty response"},
		{"no candidates", &genai.GenerateContentResponse{}, "empty response"},
		{"candidate without content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, "no text"},
		{"plain prose", geminiResponse("I could not hear anything."), "no JSON"},
		{"only blank segments", geminiResponse(`[{"start":0,"end":0,"text":"  "}]`), "no transcript segments"},
		{"empty array", geminiResponse(`[]`), "no transcript segments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseTranscriptionResponse(tt.resp)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildTranscriptionPrompt(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    []string
		notWant []string
	}{
		{
			name:    "defaults",
			want:    []string{"JSON array", "Return ONLY the JSON array"},
			notWant: []string{"The audio is in", "Output the transcript in"},
		},
		{
			name: "source and target language",
			opts: Options{Language: "Spanish", TranscriptLanguage: "English"},
			want: []string{"The audio is in Spanish.", "Output the transcript in English."},
		},
		{
			name:    "native transcript language",
			opts:    Options{TranscriptLanguage: "native"},
			notWant: []string{"Output the transcript in"},
		},
		{
			name: "extra prompt",
			opts: Options{Prompt: "Speaker names are Ana and Bo."},
			want: []string{"Speaker names are Ana and Bo."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt := (&GeminiTranscriber{options: tt.opts}).buildTranscriptionPrompt()
			for _, s := range tt.want {
				if !strings.Contains(prompt, s) {
					t.Errorf("prompt missing %q:\n%s", s, prompt)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(prompt, s) {
					t.Errorf("prompt unexpectedly contains %q:\n%s", s, prompt)
				}
			}
			if !strings.HasSuffix(prompt, "no other text or markdown formatting.") {
				t.Errorf("prompt should end with the format instruction:\n%s", prompt)
			}
		})
	}
}

func TestCleanJSONResponse(t *testing.T) {
	tests := map[string]string{
		"```json\n[]\n```": "[]",
		"```\n{}\n```":     "{}",
		"  [1]  ":          "[1]",
		"no fences":        "no fences",
	}
	for in, want := range tests {
		if got := cleanJSONResponse(in); got != want {
			t.Errorf("cleanJSONResponse(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("abcdef", 3); got != "abc..." {
		t.Errorf("truncateString = %q", got)
	}
	if got := truncateString("abc", 3); got != "abc" {
		t.Errorf("truncateString = %q", got)
	}
}
