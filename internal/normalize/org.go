package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	acronymTailRe = regexp.MustCompile(`\s+[-–—|]\s*[A-Z]{2,6}\s*$`)
	nonAlnumRe    = regexp.MustCompile(`[^a-z0-9]+`)
	punctDropper  = strings.NewReplacer("&", " and ", "'", "", "’", "", ".", "")
)

// Abbreviation dots and apostrophes join their letters ("O.D." is "od").
var wordJoiner = strings.NewReplacer("'", "", "’", "", ".", "")

// Fold strips diacritics ("Núñez" becomes "Nunez").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Compact lower-cases, folds and drops everything but letters and digits.
// It is the comparison form for URL slugs.
func Compact(s string) string {
	return nonAlnumRe.ReplaceAllString(strings.ToLower(Fold(s)), "")
}

// Organization returns the canonical comparison form of an organization name.
func Organization(raw string) string { return Default().Organization(raw) }

// SignificantTokens returns the non-stopword tokens of a normalized organization name.
func SignificantTokens(raw string) []string { return Default().SignificantTokens(raw) }

// IsGeneric reports whether an organization name is made only of stopwords.
func IsGeneric(raw string) bool { return Default().IsGeneric(raw) }

// Organization lower-cases, removes bracketed annotations, dash-introduced
// acronyms, punctuation and trailing legal or credential suffixes.
func (v *Vocab) Organization(raw string) string {
	s := Fold(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	s = bracketRe.ReplaceAllString(s, " ")
	s = acronymTailRe.ReplaceAllString(s, "")
	s = punctDropper.Replace(strings.ToLower(s))
	s = nonAlnumRe.ReplaceAllString(s, " ")
	return strings.Join(v.stripTrailingSuffixes(strings.Fields(s)), " ")
}

func (v *Vocab) stripTrailingSuffixes(tokens []string) []string {
	for len(tokens) > 1 {
		n := len(tokens)
		if n > 2 && v.legal[tokens[n-2]+" "+tokens[n-1]] {
			tokens = tokens[:n-2]
			continue
		}
		if v.legal[tokens[n-1]] || v.profSuffix[tokens[n-1]] {
			tokens = tokens[:n-1]
			continue
		}
		break
	}
	return tokens
}

// SignificantTokens returns tokens of the normalized name that are not stopwords.
func (v *Vocab) SignificantTokens(raw string) []string {
	var out []string
	for _, tok := range strings.Fields(v.Organization(raw)) {
		if len(tok) >= 2 && !v.stopwords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// MatchTokens returns the significant tokens long enough to count toward a
// token-overlap match.
func (v *Vocab) MatchTokens(raw string) []string {
	var out []string
	for _, tok := range v.SignificantTokens(raw) {
		if len(tok) > 3 {
			out = append(out, tok)
		}
	}
	return out
}

// IsGeneric reports whether no significant token survives normalization.
func (v *Vocab) IsGeneric(raw string) bool { return len(v.SignificantTokens(raw)) == 0 }

// ContainsPhrase reports whether the normalized phrase occurs in the
// normalized text on token boundaries.
func ContainsPhrase(text, phrase string) bool {
	if phrase == "" || text == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// TokenSet splits normalized text into a set of tokens.
func TokenSet(normalized string) map[string]bool {
	fields := strings.Fields(normalized)
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// Words folds, lower-cases and reduces text to space-separated alphanumeric
// words, for word-bounded person-name checks.
func Words(s string) string {
	s = wordJoiner.Replace(strings.ToLower(Fold(s)))
	return strings.Join(strings.Fields(nonAlnumRe.ReplaceAllString(s, " ")), " ")
}
