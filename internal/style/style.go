package style

import (
	"fmt"
	"sort"
	"strings"
)

// identifies one of the caption presentation modes
type Key string

const (
	KeyBottomCentered Key = "bottom-centered"
	KeyTopBar         Key = "top-bar"
	KeyKaraoke        Key = "karaoke"
)

// the default-case style used for unknown keys
const DefaultKey = KeyBottomCentered

// Style is closed over the three presentation modes; each carries its own
// layout function so a new mode is added by adding a type to the registry.
type Style interface {
	Key() Key
	Label() string
	layout(width int) Layout
}

var registry = map[Key]Style{
	KeyBottomCentered: bottomCentered{},
	KeyTopBar:         topBar{},
	KeyKaraoke:        karaoke{},
}

// returns the style for key, falling back to bottom-centered
func Lookup(key Key) Style {
	if s, ok := registry[normalize(string(key))]; ok {
		return s
	}
	return registry[DefaultKey]
}

// normalizes s and reports whether it names a known style;
// unknown input yields the default key
func ParseKey(s string) (Key, bool) {
	key := normalize(s)
	if _, ok := registry[key]; ok {
		return key, true
	}
	return DefaultKey, false
}

// resolves a style key and composition width to a layout
func Resolve(key Key, width int) Layout {
	return Lookup(key).layout(width)
}

// all styles in a stable order
func All() []Style {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	out := make([]Style, 0, len(keys))
	for _, k := range keys {
		out = append(out, registry[Key(k)])
	}
	return out
}

// comma-separated list of known keys for flag help and errors
func KeyList() string {
	var names []string
	for _, s := range All() {
		names = append(names, string(s.Key()))
	}
	return strings.Join(names, ", ")
}

func (k Key) String() string {
	return string(k)
}

// accepts "bottom_centered", "Top Bar" and similar spellings
func normalize(s string) Key {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	return Key(s)
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k), nil
}

func (k *Key) UnmarshalText(text []byte) error {
	parsed, _ := ParseKey(string(text))
	*k = parsed
	return nil
}

// error message helper for callers that want strict validation
func UnknownKeyError(s string) error {
	return fmt.Errorf("unknown style %q: use one of %s", s, KeyList())
}
