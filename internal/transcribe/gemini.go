package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"github.com/mgpai22/capsync/internal/audio"
	"github.com/mgpai22/capsync/internal/caption"
)

// implements Transcriber interface using Google Gemini
type GeminiTranscriber struct {
	client  *genai.Client
	model   string
	options Options
}

// segment from Gemini's JSON response
type transcriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func NewGeminiTranscriber(ctx context.Context, apiKey string, opts Options) (*GeminiTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiTranscriber{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

// transcribes single audio file
func (t *GeminiTranscriber) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	if _, err := os.Stat(audioPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", audioPath)
	}

	uploaded, err := t.client.Files.UploadFromPath(ctx, audioPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upload audio file: %w", err)
	}
	defer func() {
		_, _ = t.client.Files.Delete(context.WithoutCancel(ctx), uploaded.Name, nil)
	}()

	parts := []*genai.Part{
		genai.NewPartFromText(t.buildTranscriptionPrompt()),
		genai.NewPartFromURI(uploaded.URI, uploaded.MIMEType),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := t.client.Models.GenerateContent(ctx, t.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	segments, err := parseTranscriptionResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transcription: %w", err)
	}

	duration, _ := audio.GetDuration(ctx, audioPath)

	return &Result{
		Segments: segments,
		Language: t.options.Language,
		Duration: duration,
	}, nil
}

// creates the prompt for transcription
func (t *GeminiTranscriber) buildTranscriptionPrompt() string {
	var sb strings.Builder

	sb.WriteString("Generate a detailed transcript of this audio. ")
	sb.WriteString("For each sentence or phrase, provide the start timestamp, end timestamp, and the exact text spoken. ")
	sb.WriteString("Format your response as a JSON array with objects containing 'start', 'end', and 'text' fields, ")
	sb.WriteString("where 'start' and 'end' are timestamps in seconds (as numbers). ")
	sb.WriteString("Keep each phrase short enough to read as a single caption. ")

	if t.options.Language != "" {
		sb.WriteString(fmt.Sprintf("The audio is in %s. ", t.options.Language))
	}

	if t.options.TranscriptLanguage != "" && t.options.TranscriptLanguage != "native" {
		sb.WriteString(fmt.Sprintf("Output the transcript in %s. ", t.options.TranscriptLanguage))
	}

	if t.options.Prompt != "" {
		sb.WriteString(t.options.Prompt)
		sb.WriteString(" ")
	}

	sb.WriteString("Return ONLY the JSON array, no other text or markdown formatting.")

	return sb.String()
}

// parses Gemini's response into segments
func parseTranscriptionResponse(result *genai.GenerateContentResponse) ([]caption.Segment, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	var sb strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("no text in Gemini response")
	}

	raw, err := extractTranscriptSegments(cleanJSONResponse(sb.String()))
	if err != nil {
		return nil, err
	}

	segments := make([]caption.Segment, len(raw))
	for i, ts := range raw {
		segments[i] = caption.Segment{
			Start: ts.Start,
			End:   ts.End,
			Text:  strings.TrimSpace(ts.Text),
		}
	}
	return segments, nil
}

// extractTranscriptSegments finds the first array of segment objects in text.
// Models sometimes wrap the array in prose or in an object under an
// arbitrary key, so every '[' and '{' is tried as a JSON start.
func extractTranscriptSegments(text string) ([]transcriptSegment, error) {
	sawJSON := false
	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			continue
		}
		sawJSON = true

		if segs, ok := findSegments(v); ok {
			return segs, nil
		}
		// skip past the value we just decoded
		i += int(dec.InputOffset()) - 1
	}

	if !sawJSON {
		return nil, fmt.Errorf("no JSON found in response (response: %s)", truncateString(text, 200))
	}
	return nil, fmt.Errorf("no transcript segments in response (response: %s)", truncateString(text, 200))
}

// walks a decoded JSON value looking for a usable segment array
func findSegments(v interface{}) ([]transcriptSegment, bool) {
	switch val := v.(type) {
	case []interface{}:
		if segs, ok := asSegments(val); ok {
			return segs, true
		}
		for _, item := range val {
			if segs, ok := findSegments(item); ok {
				return segs, true
			}
		}
	case map[string]interface{}:
		for _, key := range []string{"segments", "transcript", "data"} {
			if child, ok := val[key]; ok {
				if segs, ok := findSegments(child); ok {
					return segs, true
				}
			}
		}
		for _, child := range val {
			if segs, ok := findSegments(child); ok {
				return segs, true
			}
		}
	}
	return nil, false
}

func asSegments(items []interface{}) ([]transcriptSegment, bool) {
	if len(items) == 0 {
		return nil, false
	}
	for _, item := range items {
		if _, ok := item.(map[string]interface{}); !ok {
			return nil, false
		}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return nil, false
	}
	var segs []transcriptSegment
	if err := json.Unmarshal(data, &segs); err != nil {
		return nil, false
	}
	if !validateSegments(segs) {
		return nil, false
	}
	return segs, true
}

// true when at least one segment carries a timestamp or text
func validateSegments(segs []transcriptSegment) bool {
	for _, s := range segs {
		if s.Start != 0 || s.End != 0 || strings.TrimSpace(s.Text) != "" {
			return true
		}
	}
	return false
}

var jsonFenceRegex = regexp.MustCompile("```(?:json)?\\s*")

// removes markdown formatting from the response
func cleanJSONResponse(s string) string {
	s = strings.TrimSpace(s)
	s = jsonFenceRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
