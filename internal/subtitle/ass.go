package subtitle

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mimelyc/subtrans/internal/apperr"
)

// parseASS splits an ASS/SSA document into the preamble (everything up
// to and including the [Events] "Format:" line) and the parsed
// Dialogue entries. Comment: lines and anything outside [Events] are
// kept verbatim in the preamble rather than modeled, since translation
// never touches them.
func parseASS(text string) (preamble string, format []string, units []DialogueUnit, err error) {
	lines := splitLines(text)

	inEvents := false
	var preambleLines []string
	idx := 0

	for i, raw := range lines {
		trimmed := strings.TrimSpace(raw)
		lower := strings.ToLower(trimmed)

		if lower == "[events]" {
			inEvents = true
			preambleLines = append(preambleLines, raw)
			continue
		}

		if inEvents && strings.HasPrefix(lower, "format:") {
			format = splitASSFields(strings.TrimSpace(trimmed[len("Format:"):]), -1)
			for i := range format {
				format[i] = strings.TrimSpace(format[i])
			}
			preambleLines = append(preambleLines, raw)
			idx = i + 1
			break
		}

		preambleLines = append(preambleLines, raw)
	}

	if !inEvents || len(format) == 0 {
		return "", nil, nil, apperr.NewCodecError("missing [Events] Format line")
	}

	textCol := indexOf(format, "Text")
	if textCol < 0 {
		return "", nil, nil, apperr.NewCodecError("[Events] Format line has no Text column")
	}
	startCol := indexOf(format, "Start")
	endCol := indexOf(format, "End")
	if startCol < 0 || endCol < 0 {
		return "", nil, nil, apperr.NewCodecError("[Events] Format line has no Start/End column")
	}

	entryIndex := 1
	for _, raw := range lines[idx:] {
		trimmed := strings.TrimRight(raw, "\r")
		switch {
		case strings.HasPrefix(trimmed, "Dialogue:"):
			fields := splitASSFields(strings.TrimSpace(trimmed[len("Dialogue:"):]), len(format))
			if len(fields) != len(format) {
				return "", nil, nil, apperr.NewCodecError("Dialogue line has %d fields, want %d", len(fields), len(format))
			}
			start, err := parseASSTime(fields[startCol])
			if err != nil {
				return "", nil, nil, apperr.WrapCodecError(err, "parse ASS start time")
			}
			end, err := parseASSTime(fields[endCol])
			if err != nil {
				return "", nil, nil, apperr.WrapCodecError(err, "parse ASS end time")
			}
			meta := make(map[string]string, len(format))
			for i, col := range format {
				if i == textCol || i == startCol || i == endCol {
					continue
				}
				meta[col] = fields[i]
			}
			units = append(units, DialogueUnit{
				Index:     entryIndex,
				StartTime: start,
				EndTime:   end,
				Text:      fields[textCol],
				StyleMeta: meta,
			})
			entryIndex++
		default:
			preambleLines = append(preambleLines, raw)
		}
	}

	preamble = strings.Join(trimTrailingEmpty(preambleLines), "\n")
	return preamble, format, units, nil
}

// renderASS reconstructs an ASS document: the untouched preamble,
// followed by one Dialogue line per unit in the original column order.
func renderASS(preamble string, format []string, units []DialogueUnit, opts BilingualOptions) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n")

	textCol := indexOf(format, "Text")
	startCol := indexOf(format, "Start")
	endCol := indexOf(format, "End")

	for _, u := range units {
		fields := make([]string, len(format))
		for i, col := range format {
			switch i {
			case textCol:
				fields[i] = ComposeBilingual(u, FormatASS, opts)
			case startCol:
				fields[i] = formatASSTime(u.StartTime)
			case endCol:
				fields[i] = formatASSTime(u.EndTime)
			default:
				fields[i] = u.StyleMeta[col]
			}
		}
		fmt.Fprintf(&b, "Dialogue: %s\n", strings.Join(fields, ","))
	}
	return b.String()
}

func indexOf(ss []string, target string) int {
	for i, s := range ss {
		if strings.EqualFold(strings.TrimSpace(s), target) {
			return i
		}
	}
	return -1
}

// splitASSFields splits a comma-separated ASS field list, capping at n
// fields so the final (Text) column can itself contain commas. n<0
// means split on every comma (used for the Format line itself).
func splitASSFields(s string, n int) []string {
	if n < 0 {
		return strings.Split(s, ",")
	}
	return strings.SplitN(s, ",", n)
}

func trimTrailingEmpty(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[:end]
}

// ASS timecodes are "H:MM:SS.cc" (centisecond precision, unpadded hour).
func parseASSTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid ASS timecode: %q", s)
	}
	secParts := strings.SplitN(parts[2], ".", 2)
	if len(secParts) != 2 {
		return 0, fmt.Errorf("invalid ASS timecode: %q", s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid ASS timecode hour: %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid ASS timecode minute: %q", s)
	}
	sec, err := strconv.Atoi(secParts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid ASS timecode second: %q", s)
	}
	cs, err := strconv.Atoi(secParts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid ASS timecode centisecond: %q", s)
	}

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(cs)*10*time.Millisecond, nil
}

func formatASSTime(d time.Duration) string {
	hours := int(d / time.Hour)
	minutes := int(d/time.Minute) % 60
	seconds := int(d/time.Second) % 60
	centis := int(d/(10*time.Millisecond)) % 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, seconds, centis)
}
