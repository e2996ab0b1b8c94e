package llmapi

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mimelyc/subtrans/internal/apperr"
)

// lineBreakPlaceholder stands in for an embedded newline within a single
// subtitle line, so the numbered-list wire format stays one item per
// line even for multi-line dialogue.
const lineBreakPlaceholder = "⁣"

var numberedLineRe = regexp.MustCompile(`^\s*(\d+)[.)]\s*(.*)$`)

// SystemPromptFor builds the translation instructions for one chunk. It
// names the source/target languages and states the numbered-list output
// contract the response parser expects.
func SystemPromptFor(sourceLanguage, targetLanguage, mediaContext string) string {
	var b strings.Builder
	b.WriteString("You are a professional subtitle translator. ")
	fmt.Fprintf(&b, "Translate each numbered line from %s to %s.\n", sourceLanguage, targetLanguage)
	if mediaContext != "" {
		b.WriteString("\nContext about the source material:\n")
		b.WriteString(mediaContext)
		b.WriteString("\n")
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Output a numbered list of translations, one per input line, in the same order.\n")
	b.WriteString("- Output only the numbered translations. No explanations, no extra commentary.\n")
	b.WriteString("- The number of output lines must exactly match the number of input lines.\n")
	b.WriteString("- Keep the same tone and register as the source dialogue.\n")
	return b.String()
}

// BuildNumberedPrompt renders texts as a 1-based numbered list, escaping
// embedded newlines so each item stays on one line.
func BuildNumberedPrompt(texts []string) string {
	var b strings.Builder
	for i, t := range texts {
		escaped := strings.ReplaceAll(t, "\n", lineBreakPlaceholder)
		fmt.Fprintf(&b, "%d. %s\n", i+1, escaped)
	}
	return b.String()
}

// ParseNumberedResponse extracts the translated lines from a numbered-list
// response, sorted by their stated index, and restores embedded newlines.
// It returns apperr.ConsistencyError if no numbered lines are found at all.
func ParseNumberedResponse(raw string) ([]string, error) {
	type item struct {
		n    int
		text string
	}
	var items []item
	for _, line := range strings.Split(raw, "\n") {
		m := numberedLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		items = append(items, item{n: n, text: strings.ReplaceAll(m[2], lineBreakPlaceholder, "\n")})
	}
	if len(items) == 0 {
		return nil, apperr.NewConsistencyError("llmapi: response contained no numbered translations")
	}
	sort.Slice(items, func(i, j int) bool { return items[i].n < items[j].n })

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.text
	}
	return out, nil
}
