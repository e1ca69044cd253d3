package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

var (
	vttTimestamp = regexp.MustCompile(
		`(\d{2,3}):(\d{2}):(\d{2})\.(\d{3})\s*-->\s*(\d{2,3}):(\d{2}):(\d{2})\.(\d{3})`,
	)
	vttShortTimestamp = regexp.MustCompile(
		`^(\d{2}):(\d{2})\.(\d{3})\s*-->\s*(\d{2}):(\d{2})\.(\d{3})`,
	)
	// inline cue markup such as <c.yellow>, <v Speaker> or <00:00:01.000>
	vttTag = regexp.MustCompile(`<[^>]*>`)
)

func parseVTT(r io.Reader) (*Subtitle, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)

	var current *Entry
	var textLines []string
	lineNum := 0
	headerParsed := false

	flush := func() {
		if current != nil && len(textLines) > 0 {
			current.Text = strings.Join(textLines, "\n")
			entries = append(entries, *current)
		}
		current = nil
		textLines = nil
	}

	skipBlock := func() {
		for scanner.Scan() {
			lineNum++
			if strings.TrimSpace(scanner.Text()) == "" {
				break
			}
		}
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		lineNum++

		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		trimmed := strings.TrimSpace(line)

		if !headerParsed {
			if !strings.HasPrefix(trimmed, "WEBVTT") {
				return nil, fmt.Errorf("missing WEBVTT header")
			}
			headerParsed = true
			skipBlock()
			continue
		}

		if current == nil && (strings.HasPrefix(trimmed, "NOTE") ||
			strings.HasPrefix(trimmed, "STYLE") ||
			strings.HasPrefix(trimmed, "REGION")) {
			skipBlock()
			continue
		}

		if trimmed == "" {
			flush()
			continue
		}

		var start, end string
		if m := vttTimestamp.FindStringSubmatch(line); len(m) == 9 {
			start, end = strings.Join(m[1:5], ":"), strings.Join(m[5:9], ":")
		} else if m := vttShortTimestamp.FindStringSubmatch(line); len(m) == 7 {
			start, end = "00:"+strings.Join(m[1:4], ":"), "00:"+strings.Join(m[4:7], ":")
		}

		if start != "" {
			flush()
			startTime, err := splitClock(start)
			if err != nil {
				return nil, fmt.Errorf("invalid start timestamp at line %d: %w", lineNum, err)
			}
			endTime, err := splitClock(end)
			if err != nil {
				return nil, fmt.Errorf("invalid end timestamp at line %d: %w", lineNum, err)
			}
			current = &Entry{
				Index:     len(entries) + 1,
				StartTime: startTime,
				EndTime:   endTime,
			}
			continue
		}

		// anything before the timing line is a cue identifier
		if current != nil {
			textLines = append(textLines, vttTag.ReplaceAllString(line, ""))
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading VTT: %w", err)
	}

	return &Subtitle{Entries: entries, Format: FormatVTT}, nil
}

func writeVTT(w io.Writer, sub *Subtitle) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("WEBVTT\n\n")

	for i, entry := range sub.Entries {
		fmt.Fprintf(bw, "%d\n", i+1)
		fmt.Fprintf(bw, "%s --> %s\n",
			formatClock(entry.StartTime, '.'),
			formatClock(entry.EndTime, '.'))
		bw.WriteString(entry.Text)
		bw.WriteString("\n\n")
	}
	return bw.Flush()
}

// "hh:mm:ss:mmm" as joined from the timestamp submatches
func splitClock(s string) (time.Duration, error) {
	p := strings.Split(s, ":")
	if len(p) != 4 {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}
	return clockTime(p[0], p[1], p[2], p[3])
}
