package translate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mgpai22/capsync/internal/caption"
)

func TestFactory(t *testing.T) {
	tests := []struct {
		provider Provider
		opts     Options
		wantType string
		wantErr  string
	}{
		{ProviderGemini, Options{TargetLanguage: "Japanese"}, "*translate.GeminiTranslator", ""},
		{ProviderOpenAI, Options{TargetLanguage: "Spanish"}, "*translate.OpenAITranslator", ""},
		{ProviderAnthropic, Options{TargetLanguage: "Hindi"}, "*translate.AnthropicTranslator", ""},
		{ProviderGemini, Options{}, "", "target language is required"},
		{Provider("deepl"), Options{TargetLanguage: "French"}, "", "unsupported translation provider: deepl"},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider)+"/"+tt.opts.TargetLanguage, func(t *testing.T) {
			tr, err := Factory(context.Background(), tt.provider, "test-key", tt.opts)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Factory: %v", err)
			}
			if got := fmt.Sprintf("%T", tr); got != tt.wantType {
				t.Errorf("got %s, want %s", got, tt.wantType)
			}
		})
	}
}

// upperTranslator "translates" by upper-casing, recording batch sizes
type upperTranslator struct {
	opts     Options
	failAt   int // batch starting at this item index fails; -1 never
	mu       sync.Mutex
	batches  []int
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (u *upperTranslator) Translate(ctx context.Context, items []TranslationItem) ([]TranslationResult, error) {
	return runBatches(ctx, items, u.opts, u.batch)
}

func (u *upperTranslator) batch(ctx context.Context, items []TranslationItem) ([]TranslationResult, error) {
	n := u.inFlight.Add(1)
	defer u.inFlight.Add(-1)
	for {
		p := u.peak.Load()
		if n <= p || u.peak.CompareAndSwap(p, n) {
			break
		}
	}

	u.mu.Lock()
	u.batches = append(u.batches, len(items))
	u.mu.Unlock()

	if items[0].Index == u.failAt {
		return nil, fmt.Errorf("quota exceeded")
	}
	out := make([]TranslationResult, len(items))
	for i, it := range items {
		out[i] = TranslationResult{Index: it.Index, Text: strings.ToUpper(it.Text)}
	}
	return out, nil
}

func makeItems(n int) []TranslationItem {
	items := make([]TranslationItem, n)
	for i := range items {
		items[i] = TranslationItem{Index: i, Text: fmt.Sprintf("line %d", i)}
	}
	return items
}

func TestRunBatchesOrdersResults(t *testing.T) {
	u := &upperTranslator{opts: Options{BatchSize: 4, Concurrency: 2}, failAt: -1}
	results, err := u.Translate(context.Background(), makeItems(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("got %d results, want 10", len(results))
	}
	for i, r := range results {
		if r.Index != i || r.Text != fmt.Sprintf("LINE %d", i) {
			t.Errorf("result %d = %+v", i, r)
		}
	}
	if len(u.batches) != 3 {
		t.Errorf("got %d batches, want 3", len(u.batches))
	}
	if u.peak.Load() > 2 {
		t.Errorf("peak concurrency %d exceeds 2", u.peak.Load())
	}
}

func TestRunBatchesFailure(t *testing.T) {
	u := &upperTranslator{opts: Options{BatchSize: 2, Concurrency: 1}, failAt: 2}
	_, err := u.Translate(context.Background(), makeItems(6))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "batch 1 failed: quota exceeded" {
		t.Errorf("error = %q", got)
	}
}

func TestRunBatchesEmpty(t *testing.T) {
	u := &upperTranslator{failAt: -1}
	results, err := u.Translate(context.Background(), nil)
	if err != nil || len(results) != 0 {
		t.Fatalf("got %v, %v", results, err)
	}
	if len(u.batches) != 0 {
		t.Error("no request should be made for empty input")
	}
}

func TestSegmentsKeepsTiming(t *testing.T) {
	segs := []caption.Segment{
		{ID: "a", Start: 0, End: 1.5, Text: "hello"},
		{ID: "b", Start: 1.5, End: 2, Text: "   "},
		{ID: "c", Start: 2, End: 4, Text: "world"},
	}
	u := &upperTranslator{opts: Options{BatchSize: 1}, failAt: -1}

	out, err := Segments(context.Background(), u, segs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []caption.Segment{
		{ID: "a", Start: 0, End: 1.5, Text: "HELLO"},
		{ID: "b", Start: 1.5, End: 2, Text: "   "},
		{ID: "c", Start: 2, End: 4, Text: "WORLD"},
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, out[i], want[i])
		}
	}
	if segs[0].Text != "hello" {
		t.Error("input segments were modified")
	}
	if len(u.batches) != 2 {
		t.Errorf("blank segment should not be sent; got %d batches", len(u.batches))
	}
}

type badIndexTranslator struct{}

func (badIndexTranslator) Translate(ctx context.Context, items []TranslationItem) ([]TranslationResult, error) {
	return []TranslationResult{{Index: 99, Text: "x"}}, nil
}

func TestSegmentsRejectsUnknownIndex(t *testing.T) {
	_, err := Segments(context.Background(), badIndexTranslator{}, []caption.Segment{{Start: 0, End: 1, Text: "a"}})
	if err == nil {
		t.Error("expected error for unknown index")
	}
}

func TestParseReplyCountMismatch(t *testing.T) {
	_, err := parseReply("Test", `[{"index":0,"text":"a"}]`, 2)
	if err == nil || !strings.Contains(err.Error(), "expected 2 results, got 1") {
		t.Errorf("err = %v", err)
	}
	if _, err := parseReply("Test", "", 1); err == nil {
		t.Error("expected error for empty reply")
	}
}

func TestFixInvalidEscapes(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`a\Nb`, `a\\Nb`},
		{`a\nb`, `a\nb`},
		{`\"q\"`, `\"q\"`},
		{`trailing\`, `trailing\`},
	}
	for _, tt := range tests {
		if got := fixInvalidEscapes(tt.in); got != tt.want {
			t.Errorf("fixInvalidEscapes(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildPrompt(t *testing.T) {
	items := []TranslationItem{
		{Index: 3, Text: "Hello world"},
		{Index: 7, Text: "Goodbye"},
	}

	tests := []struct {
		name    string
		opts    Options
		want    []string
		notWant []string
	}{
		{
			name: "with input language",
			opts: Options{InputLanguage: "English", TargetLanguage: "Japanese"},
			want: []string{"following English caption texts to Japanese", "Hello world", `"index": 7`},
		},
		{
			name:    "target only",
			opts:    Options{TargetLanguage: "Spanish"},
			want:    []string{"following caption texts to Spanish"},
			notWant: []string{"English", "Additional instructions"},
		},
		{
			name: "extra instructions",
			opts: Options{TargetLanguage: "German", Prompt: "use informal address"},
			want: []string{"Additional instructions: use informal address"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt := BuildPrompt(tt.opts, items)
			for _, s := range tt.want {
				if !strings.Contains(prompt, s) {
					t.Errorf("prompt missing %q:\n%s", s, prompt)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(prompt, s) {
					t.Errorf("prompt should not contain %q:\n%s", s, prompt)
				}
			}
		})
	}
}
