// Package langalias normalizes the handful of language spellings the
// rest of the system needs to compare for equality: BCP-47 tags,
// ISO-639-2 codes embedded by mkvmerge/ffprobe, and the free-text
// display names Settings and filename markers use.
package langalias

import (
	"strings"

	"golang.org/x/text/language"
)

// aliases maps every spelling this system is known to encounter to a
// canonical ISO-639-1 base code. The table only enumerates spellings
// actually produced by ffprobe/mkvmerge (ISO-639-2 bibliographic and
// terminology codes) and common naming conventions, and errs on the
// side of leaving unknown tokens alone rather than guessing.
var aliases = map[string]string{
	"chinese": "zh",
	"zh":      "zh",
	"zh-cn":   "zh",
	"zh-hans": "zh",
	"zh-hant": "zh",
	"zh-tw":   "zh",
	"chi":     "zh",
	"zho":     "zh",
	"chs":     "zh",
	"cht":     "zh",

	"english": "en",
	"en":      "en",
	"eng":     "en",

	"japanese": "ja",
	"ja":       "ja",
	"jpn":      "ja",

	"korean": "ko",
	"ko":     "ko",
	"kor":    "ko",

	"french": "fr",
	"fr":     "fr",
	"fre":    "fr",
	"fra":    "fr",

	"german": "de",
	"de":     "de",
	"ger":    "de",
	"deu":    "de",

	"spanish": "es",
	"es":      "es",
	"spa":     "es",

	"russian": "ru",
	"ru":      "ru",
	"rus":     "ru",
}

// Normalize returns the canonical ISO-639-1 base code for a free-form
// language spelling, or "" if it cannot be recognized. It first
// consults the fixed alias table, then falls back to golang.org/x/text
// parsing so any BCP-47 tag it doesn't special-case still resolves.
func Normalize(raw string) string {
	token := strings.ToLower(strings.TrimSpace(raw))
	if token == "" {
		return ""
	}
	if code, ok := aliases[token]; ok {
		return code
	}

	tag, err := language.Parse(token)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	return base.String()
}

// filenameTokens lists the filename-marker spellings the Skip Oracle's
// marker check accepts for a given language, beyond the canonical tag
// itself: short codes, ISO-639-2 variants, and a couple of CJK glyphs
// publishers commonly embed in filenames.
var filenameTokens = map[string][]string{
	"zh": {"zh", "zh-hans", "zh-cn", "chs", "sc", "simplified", "chinese", "简", "简体"},
	"en": {"en", "eng", "english"},
	"ja": {"ja", "jpn", "japanese", "jp"},
	"ko": {"ko", "kor", "korean", "kr"},
	"fr": {"fr", "fra", "fre", "french"},
	"de": {"de", "deu", "ger", "german"},
	"es": {"es", "spa", "spanish"},
	"ru": {"ru", "rus", "russian"},
	"pt": {"pt", "por", "portuguese"},
	"it": {"it", "ita", "italian"},
}

// FilenameTokens returns every filename spelling recognized for raw
// (a display name, BCP-47 tag, or ISO-639-2 code), normalized through
// the same alias table Normalize uses, plus the raw token itself.
func FilenameTokens(raw string) []string {
	token := strings.ToLower(strings.TrimSpace(raw))
	if token == "" {
		return nil
	}
	seen := map[string]bool{token: true}
	tokens := []string{token}

	base := Normalize(raw)
	if base != "" {
		if extra, ok := filenameTokens[base]; ok {
			for _, t := range extra {
				if !seen[t] {
					seen[t] = true
					tokens = append(tokens, t)
				}
			}
		}
	}
	return tokens
}

// Equal reports whether two language spellings denote the same
// language after normalization. Two unrecognized, non-empty spellings
// are compared as case-insensitive strings rather than declared equal,
// so unknown-but-identical tags (e.g. a custom marker) still match.
func Equal(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na != "" && nb != "" {
		return na == nb
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
