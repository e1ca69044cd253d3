package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var assOverride = regexp.MustCompile(`\{[^}]*\}`)

// reads Dialogue events from an ASS/SSA script; styling is dropped and
// drawing events (\p1) are skipped
func parseASS(r io.Reader) (*Subtitle, error) {
	scanner := bufio.NewScanner(r)

	inEvents := false
	var columns []string
	startCol, endCol, textCol := -1, -1, -1
	var entries []Entry
	lineNum := 0

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		lineNum++
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			inEvents = strings.EqualFold(trimmed, "[events]")
			continue
		}
		if !inEvents {
			continue
		}

		if strings.HasPrefix(trimmed, "Format:") {
			columns = strings.Split(strings.TrimPrefix(trimmed, "Format:"), ",")
			for i, col := range columns {
				switch strings.ToLower(strings.TrimSpace(col)) {
				case "start":
					startCol = i
				case "end":
					endCol = i
				case "text":
					textCol = i
				}
			}
			if startCol < 0 || endCol < 0 || textCol != len(columns)-1 {
				return nil, fmt.Errorf("unsupported Format line in [Events] at line %d", lineNum)
			}
			continue
		}

		if !strings.HasPrefix(trimmed, "Dialogue:") {
			continue
		}
		if columns == nil {
			return nil, fmt.Errorf("Dialogue before Format line at line %d", lineNum)
		}

		fields := splitASSFields(strings.TrimPrefix(trimmed, "Dialogue:"), len(columns))
		if len(fields) != len(columns) {
			return nil, fmt.Errorf("expected %d fields at line %d, got %d", len(columns), lineNum, len(fields))
		}

		raw := fields[textCol]
		if strings.Contains(raw, `\p1`) {
			continue
		}
		start, err := parseASSTime(fields[startCol])
		if err != nil {
			return nil, fmt.Errorf("invalid start at line %d: %w", lineNum, err)
		}
		end, err := parseASSTime(fields[endCol])
		if err != nil {
			return nil, fmt.Errorf("invalid end at line %d: %w", lineNum, err)
		}

		text := assOverride.ReplaceAllString(raw, "")
		text = strings.NewReplacer(`\N`, "\n", `\n`, "\n", `\h`, " ").Replace(text)
		if strings.TrimSpace(text) == "" {
			continue
		}

		entries = append(entries, Entry{
			Index:     len(entries) + 1,
			StartTime: start,
			EndTime:   end,
			Text:      text,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading ASS: %w", err)
	}
	if columns == nil {
		return nil, fmt.Errorf("ASS script has no [Events] Format line")
	}

	return &Subtitle{Entries: entries, Format: FormatASS}, nil
}

// splits on the first n-1 commas; the last field (Text) may contain commas
func splitASSFields(content string, n int) []string {
	fields := strings.SplitN(content, ",", n)
	for i := 0; i < len(fields)-1; i++ {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// h:mm:ss.cc
func parseASSTime(ts string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed time %q", ts)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(math.Round(sec*1000))*time.Millisecond, nil
}
