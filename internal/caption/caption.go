package caption

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// time-coded caption unit, persisted as {id, start, end, text}
type Segment struct {
	ID    string  `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// wrapper shape posted by the web client and returned by the STT service
type envelope struct {
	Segments []Segment `json:"segments"`
}

// checks the caller-side contract: finite times, 0 <= start < end
func Validate(seg Segment) error {
	switch {
	case math.IsNaN(seg.Start) || math.IsInf(seg.Start, 0):
		return fmt.Errorf("segment %q: start is not finite", seg.ID)
	case math.IsNaN(seg.End) || math.IsInf(seg.End, 0):
		return fmt.Errorf("segment %q: end is not finite", seg.ID)
	case seg.Start < 0:
		return fmt.Errorf("segment %q: negative start %.3f", seg.ID, seg.Start)
	case seg.Start >= seg.End:
		return fmt.Errorf(
			"segment %q: start %.3f must be before end %.3f",
			seg.ID,
			seg.Start,
			seg.End,
		)
	}
	return nil
}

// validates every segment and reports the first failure with its index
func ValidateAll(segs []Segment) error {
	for i, seg := range segs {
		if err := Validate(seg); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return nil
}

// decodes a bare JSON array or an object with a "segments" key
func Parse(data []byte) ([]Segment, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\ufeff")))
	if len(data) == 0 {
		return nil, fmt.Errorf("empty captions payload")
	}

	switch data[0] {
	case '[':
		var segs []Segment
		if err := json.Unmarshal(data, &segs); err != nil {
			return nil, fmt.Errorf("invalid captions array: %w", err)
		}
		return nonNil(segs), nil
	case '{':
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("invalid captions object: %w", err)
		}
		return nonNil(env.Segments), nil
	default:
		return nil, fmt.Errorf("captions must be a JSON array or object")
	}
}

// reads and parses a captions file
func Load(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read captions file: %w", err)
	}
	segs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return segs, nil
}

// encodes segments as the persisted JSON array
func Marshal(segs []Segment) ([]byte, error) {
	return json.MarshalIndent(nonNil(segs), "", "  ")
}

// encodes segments wrapped as {"segments": [...]}
func MarshalEnvelope(segs []Segment) ([]byte, error) {
	return json.Marshal(envelope{Segments: nonNil(segs)})
}

// writes segments as a JSON array, replacing path only once fully written
func Save(path string, segs []Segment) error {
	data, err := Marshal(segs)
	if err != nil {
		return fmt.Errorf("failed to encode captions: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write captions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write captions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to move captions into place: %w", err)
	}
	return nil
}

// assigns a fresh UUID to every segment without an id
func EnsureIDs(segs []Segment) []Segment {
	for i := range segs {
		if strings.TrimSpace(segs[i].ID) == "" {
			segs[i].ID = uuid.NewString()
		}
	}
	return segs
}

// builds a segment with a new id and trimmed text
func New(start, end float64, text string) Segment {
	return Segment{
		ID:    uuid.NewString(),
		Start: start,
		End:   end,
		Text:  strings.TrimSpace(text),
	}
}

// returns a copy so callers can hand out segment lists without sharing backing arrays
func Clone(segs []Segment) []Segment {
	out := make([]Segment, len(segs))
	copy(out, segs)
	return out
}

func nonNil(segs []Segment) []Segment {
	if segs == nil {
		return []Segment{}
	}
	return segs
}
