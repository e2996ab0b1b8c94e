package termmap

import "unicode"

// Match filters tm to the terms that appear in texts as whole words,
// case-sensitively (correct for proper nouns).
func Match(tm TermMap, texts []string) MatchResult {
	matched := make(TermMap)

	for source, target := range tm {
		for _, text := range texts {
			if containsWord(text, source) {
				matched[source] = target
				break
			}
		}
	}

	return MatchResult{Matched: matched}
}

// ContainsWordFold reports whether needle appears in haystack as a
// whole word, ignoring case.
func ContainsWordFold(haystack, needle string) bool {
	return containsWordFold(haystack, needle, true)
}

func containsWord(haystack, needle string) bool {
	return containsWordFold(haystack, needle, false)
}

func containsWordFold(haystack, needle string, fold bool) bool {
	if needle == "" {
		return false
	}
	h := []rune(haystack)
	n := []rune(needle)
	if fold {
		h = toLowerRunes(h)
		n = toLowerRunes(n)
	}

	for start := 0; start+len(n) <= len(h); start++ {
		if !runesEqual(h[start:start+len(n)], n) {
			continue
		}
		beforeOK := start == 0 || !isWordRune(h[start-1])
		afterIdx := start + len(n)
		afterOK := afterIdx == len(h) || !isWordRune(h[afterIdx])
		if beforeOK && afterOK {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func toLowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
