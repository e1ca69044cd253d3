package snapshot

import (
	"fmt"
	"html"
	"strings"

	"github.com/mgpai22/capsync/internal/composition"
	"github.com/mgpai22/capsync/internal/style"
)

// OverlayHTML builds a standalone document drawing set over a transparent
// width x height canvas. Stacked overlays move one slot away from the anchor.
func OverlayHTML(set composition.OverlaySet, width, height int) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><style>\n")
	fmt.Fprintf(&b, "html,body{margin:0;padding:0;width:%dpx;height:%dpx;overflow:hidden;background:transparent}\n", width, height)
	b.WriteString(".chip{display:inline-block;white-space:pre-wrap;max-width:100%;box-sizing:border-box}\n")
	b.WriteString("</style></head><body>\n")

	layout := set.Layout
	containerCSS := layout.ContainerCSS()
	textCSS := layout.TextCSS()
	for _, o := range set.Overlays {
		offset := layout.Container.Offset + o.Slot*layout.SlotHeight()
		fmt.Fprintf(&b, "<div class=\"container\" data-segment=\"%s\" style=\"%s;%s\">",
			html.EscapeString(o.SegmentID),
			html.EscapeString(containerCSS),
			anchorCSS(layout.Container.Anchor, offset),
		)
		fmt.Fprintf(&b, "<span class=\"chip\" style=\"%s\">%s</span></div>\n",
			html.EscapeString(textCSS),
			html.EscapeString(o.Text),
		)
	}

	b.WriteString("</body></html>\n")
	return b.String()
}

func anchorCSS(anchor style.Anchor, offset int) string {
	return fmt.Sprintf("%s:%dpx", anchor, offset)
}
