package termmap

import (
	"path/filepath"
	"strings"
)

// Lookup implements pipeline.TermsLookup: it locates a term map for the
// given language pair alongside mediaPath (or in an ancestor directory)
// and matches it against candidate texts.
type Lookup struct{}

// NewLookup builds a Lookup.
func NewLookup() *Lookup { return &Lookup{} }

// ContextFor returns matched-term context text for texts, or "" if no
// term map covers mediaPath's directory. A term map is an enrichment,
// never a hard requirement.
func (l *Lookup) ContextFor(mediaPath, sourceLanguage, targetLanguage string, texts []string) string {
	dir := filepath.Dir(mediaPath)
	path := FindInAncestors(dir, sourceLanguage, targetLanguage)
	if path == "" {
		return ""
	}

	tm, err := Load(path)
	if err != nil || len(tm) == 0 {
		return ""
	}

	matched := Match(tm, texts).Matched
	if len(matched) == 0 {
		return ""
	}

	return formatTerms(matched)
}

func formatTerms(tm TermMap) string {
	var b strings.Builder
	b.WriteString("Use these established term translations:\n")
	for source, target := range tm {
		b.WriteString(source)
		b.WriteString(" -> ")
		b.WriteString(target)
		b.WriteString("\n")
	}
	return b.String()
}
