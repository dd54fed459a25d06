package evidence

import (
	"regexp"
	"strings"
)

// SnippetStrategy pulls employer names out of a search result. Strategies
// are pure and tried in order until one yields something.
type SnippetStrategy struct {
	Name    string
	Extract func(title, snippet string) []string
}

var (
	experienceRe = regexp.MustCompile(`(?i)\bExperience:\s*([^·|;\n]+)`)
	currentRe    = regexp.MustCompile(`(?i)\bCurrent(?:ly)?\s*:\s*(?:[^·|;\n]*?\bat\s+)?([^·|;\n]+)`)
	previousRe   = regexp.MustCompile(`(?i)\bPrevious\s*:\s*(?:[^·|;\n]*?\bat\s+)?([^·|;\n]+)`)
	titleAtRe    = regexp.MustCompile(`\b(?:at|with)\s+([A-Z][\w&'.-]*(?:\s+(?:[A-Z&][\w&'.-]*|of|and|the)){0,6})`)
	linkedInTail = regexp.MustCompile(`(?i)\s*[|\-–]\s*LinkedIn\s*$`)
)

// DefaultSnippetStrategies is the order profile snippets are parsed in.
var DefaultSnippetStrategies = []SnippetStrategy{
	{Name: "current_label", Extract: labelled(currentRe)},
	{Name: "experience_label", Extract: labelled(experienceRe)},
	{Name: "previous_label", Extract: labelled(previousRe)},
	{Name: "title_at_company", Extract: titleAt},
	{Name: "title_segments", Extract: titleSegments},
}

// ExtractEmployers runs strategies in order and returns the first non-empty
// result with the name of the strategy that produced it.
func ExtractEmployers(strategies []SnippetStrategy, title, snippet string) ([]string, string) {
	for _, s := range strategies {
		if orgs := dedupe(s.Extract(title, snippet)); len(orgs) > 0 {
			return orgs, s.Name
		}
	}
	return nil, ""
}

func labelled(re *regexp.Regexp) func(string, string) []string {
	return func(_, snippet string) []string {
		var out []string
		for _, m := range re.FindAllStringSubmatch(snippet, -1) {
			for _, part := range strings.Split(m[1], ", ") {
				out = append(out, cleanOrg(part))
			}
		}
		return out
	}
}

// titleAt handles "Optometrist at Acme Eye Care" in the title or the first
// sentence of the snippet.
func titleAt(title, snippet string) []string {
	var out []string
	for _, text := range []string{stripLinkedIn(title), firstSentence(snippet)} {
		for _, m := range titleAtRe.FindAllStringSubmatch(text, -1) {
			out = append(out, cleanOrg(m[1]))
		}
	}
	return out
}

// titleSegments handles "Jane Doe - Optometrist - Acme Eye Care | LinkedIn".
func titleSegments(title, _ string) []string {
	parts := strings.Split(stripLinkedIn(title), " - ")
	if len(parts) < 3 {
		return nil
	}
	var out []string
	for _, p := range parts[2:] {
		out = append(out, cleanOrg(p))
	}
	return out
}

func stripLinkedIn(title string) string {
	return strings.TrimSpace(linkedInTail.ReplaceAllString(title, ""))
}

func firstSentence(s string) string {
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i]
	}
	return s
}

func cleanOrg(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "…")
	return strings.TrimSpace(strings.TrimRight(s, ".,;: "))
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		k := strings.ToLower(s)
		if len(s) < 3 || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
