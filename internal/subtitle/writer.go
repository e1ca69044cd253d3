package subtitle

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/composition"
)

// Write exports segments to path. ASS output is a styled overlay script
// for the default caption style at the default composition size.
func Write(path string, format Format, segs []caption.Segment) error {
	var buf bytes.Buffer
	if err := Encode(&buf, format, segs); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}

// Encode writes segments to w in the given format.
func Encode(w io.Writer, format Format, segs []caption.Segment) error {
	switch format {
	case FormatSRT:
		return writeSRT(w, FromSegments(segs))
	case FormatVTT:
		return writeVTT(w, FromSegments(segs))
	case FormatASS:
		c := composition.New(composition.Input{Segments: segs})
		_, err := NewASSScript(c, 0, c.LastFrame()).WriteTo(w)
		return err
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
