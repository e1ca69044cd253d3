package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// hh:mm:ss,mmm --> hh:mm:ss,mmm; some encoders emit '.' instead of ','
var srtTimestamp = regexp.MustCompile(
	`(\d{1,3}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{1,3}):(\d{2}):(\d{2})[,.](\d{3})`,
)

func parseSRT(r io.Reader) (*Subtitle, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)

	var current *Entry
	var textLines []string
	lineNum := 0

	flush := func() {
		if current != nil && len(textLines) > 0 {
			current.Text = strings.Join(textLines, "\n")
			entries = append(entries, *current)
		}
		current = nil
		textLines = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		lineNum++

		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		line = strings.TrimRight(line, "\r")

		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		if m := srtTimestamp.FindStringSubmatch(line); len(m) == 9 {
			if current == nil || current.EndTime != 0 {
				flush()
				current = &Entry{Index: len(entries) + 1}
			}
			start, err := clockTime(m[1], m[2], m[3], m[4])
			if err != nil {
				return nil, fmt.Errorf("invalid start timestamp at line %d: %w", lineNum, err)
			}
			end, err := clockTime(m[5], m[6], m[7], m[8])
			if err != nil {
				return nil, fmt.Errorf("invalid end timestamp at line %d: %w", lineNum, err)
			}
			current.StartTime = start
			current.EndTime = end
			continue
		}

		if current == nil {
			if index, err := strconv.Atoi(strings.TrimSpace(line)); err == nil {
				current = &Entry{Index: index}
			}
			continue
		}

		if current.EndTime != 0 || current.StartTime != 0 {
			textLines = append(textLines, line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading SRT: %w", err)
	}

	return &Subtitle{Entries: entries, Format: FormatSRT}, nil
}

func writeSRT(w io.Writer, sub *Subtitle) error {
	bw := bufio.NewWriter(w)
	for i, entry := range sub.Entries {
		fmt.Fprintf(bw, "%d\n", i+1)
		fmt.Fprintf(bw, "%s --> %s\n",
			formatClock(entry.StartTime, ','),
			formatClock(entry.EndTime, ','))
		bw.WriteString(entry.Text)
		bw.WriteString("\n\n")
	}
	return bw.Flush()
}

func clockTime(hours, minutes, seconds, millis string) (time.Duration, error) {
	parts := [4]int{}
	for i, s := range []string{hours, minutes, seconds, millis} {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, err
		}
		parts[i] = n
	}
	if parts[1] > 59 || parts[2] > 59 {
		return 0, fmt.Errorf("out of range clock value %s:%s:%s", hours, minutes, seconds)
	}

	return time.Duration(parts[0])*time.Hour +
		time.Duration(parts[1])*time.Minute +
		time.Duration(parts[2])*time.Second +
		time.Duration(parts[3])*time.Millisecond, nil
}

// hh:mm:ss<sep>mmm
func formatClock(d time.Duration, sep byte) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int(d/time.Minute) % 60
	seconds := int(d/time.Second) % 60
	millis := int(d/time.Millisecond) % 1000

	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, seconds, sep, millis)
}
