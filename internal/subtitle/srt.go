package subtitle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mimelyc/subtrans/internal/apperr"
)

var srtTimeRe = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2}),(\d{3}) --> (\d{2}):(\d{2}):(\d{2}),(\d{3})`)

// parseSRT parses SRT text into dialogue units. It tolerates blank lines
// inside multi-line entries the way real-world SRT files sometimes have
// them, since the reference renderers do too: a blank line ends an entry
// only when the next non-blank line is a numeric index or the text ends.
func parseSRT(text string) ([]DialogueUnit, error) {
	var units []DialogueUnit
	lines := splitLines(text)

	current := DialogueUnit{}
	state := "index"
	var textLines []string

	flush := func() {
		if len(textLines) > 0 {
			current.Text = strings.Join(textLines, "\n")
			units = append(units, current)
		}
		current = DialogueUnit{}
		textLines = nil
	}

	for i, raw := range lines {
		line := strings.TrimSpace(raw)

		switch state {
		case "index":
			if line == "" {
				continue
			}
			index, err := strconv.Atoi(line)
			if err != nil {
				continue
			}
			current.Index = index
			state = "time"

		case "time":
			if line == "" {
				continue
			}
			start, end, err := parseSRTTime(line)
			if err != nil {
				return nil, apperr.WrapCodecError(err, "parse SRT timecode at entry %d", current.Index)
			}
			current.StartTime = start
			current.EndTime = end
			state = "text"
			textLines = nil

		case "text":
			if line == "" {
				next := ""
				for _, r := range lines[i+1:] {
					if next = strings.TrimSpace(r); next != "" {
						break
					}
				}
				if _, err := strconv.Atoi(next); next != "" && err != nil {
					textLines = append(textLines, "")
					continue
				}
				flush()
				state = "index"
			} else {
				textLines = append(textLines, line)
			}
		}
	}
	if state == "text" {
		flush()
	}

	return units, nil
}

func parseSRTTime(s string) (time.Duration, time.Duration, error) {
	m := srtTimeRe.FindStringSubmatch(s)
	if len(m) != 9 {
		return 0, 0, fmt.Errorf("invalid SRT timecode: %q", s)
	}
	start := srtDuration(m[1], m[2], m[3], m[4])
	end := srtDuration(m[5], m[6], m[7], m[8])
	return start, end, nil
}

func srtDuration(hh, mm, ss, ms string) time.Duration {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	s, _ := strconv.Atoi(ss)
	frac, _ := strconv.Atoi(ms)
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(frac)*time.Millisecond
}

func formatSRTTime(d time.Duration) string {
	hours := int(d / time.Hour)
	minutes := int(d/time.Minute) % 60
	seconds := int(d/time.Second) % 60
	millis := int(d/time.Millisecond) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}

// renderSRT serializes units back to SRT text using ComposeBilingual to
// pick each entry's body.
func renderSRT(units []DialogueUnit, opts BilingualOptions) string {
	var b strings.Builder
	for _, u := range units {
		fmt.Fprintf(&b, "%d\n", u.Index)
		fmt.Fprintf(&b, "%s --> %s\n", formatSRTTime(u.StartTime), formatSRTTime(u.EndTime))
		fmt.Fprintf(&b, "%s\n\n", ComposeBilingual(u, FormatSRT, opts))
	}
	return b.String()
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
