package normalize

import (
	"regexp"
	"sort"
	"strings"
)

// PersonName is a parsed person name and its match variants.
type PersonName struct {
	// Full is the cleaned full name and always the first variant.
	Full  string
	First string
	Last  string
	// FormerLast is a family name introduced by "formerly", "née" and similar.
	FormerLast string
	Variants   []string
}

// Empty reports whether nothing usable survived cleaning.
func (p PersonName) Empty() bool { return len(p.Variants) == 0 }

// FamilyForms returns every family-name form accepted for this person:
// the full family name, each hyphen segment, and any former name.
func (p PersonName) FamilyForms() []string {
	if p.Last == "" {
		return nil
	}
	forms := []string{p.Last}
	if strings.Contains(p.Last, "-") {
		for _, seg := range strings.Split(p.Last, "-") {
			if len(seg) > 1 {
				forms = append(forms, seg)
			}
		}
	}
	if p.FormerLast != "" {
		forms = append(forms, p.FormerLast)
	}
	return forms
}

var (
	quotedRe  = regexp.MustCompile(`"[^"]*"|“[^”]*”`)
	bracketRe = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
)

func (v *Vocab) formerNameRe() *regexp.Regexp {
	v.formerOnce.Do(func() {
		markers := append([]string(nil), v.FormerNameMarkers...)
		sort.Slice(markers, func(i, j int) bool { return len(markers[i]) > len(markers[j]) })
		quoted := make([]string, len(markers))
		for i, m := range markers {
			quoted[i] = regexp.QuoteMeta(m)
		}
		v.formerRe = regexp.MustCompile(`(?i)\(\s*(?:` + strings.Join(quoted, "|") + `)\s*:?\s+([^)]+)\)`)
	})
	return v.formerRe
}

// ParsePerson cleans a raw CRM name and derives its search variants.
func ParsePerson(raw string) PersonName { return Default().ParsePerson(raw) }

// PersonVariants returns the ordered search variants for a raw name.
func PersonVariants(raw string) []string { return Default().ParsePerson(raw).Variants }

// ParsePerson cleans a raw name: it pulls out a former family name, drops
// parentheticals, leading honorifics and trailing credentials, then builds
// variants for the former name, each hyphen segment and first+last.
func (v *Vocab) ParsePerson(raw string) PersonName {
	s := strings.TrimSpace(raw)
	if s == "" {
		return PersonName{}
	}

	var former string
	if m := v.formerNameRe().FindStringSubmatch(s); m != nil {
		if fields := strings.Fields(strings.Trim(m[1], " ,.;")); len(fields) > 0 {
			former = strings.Trim(fields[len(fields)-1], ",.;")
		}
	}

	s = bracketRe.ReplaceAllString(s, " ")
	s = quotedRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, ",", " ")
	tokens := strings.Fields(s)

	for len(tokens) > 1 && v.honorifics[credentialKey(tokens[0])] {
		tokens = tokens[1:]
	}
	// Stacked credentials ("OD, FAAO, MBA") come off one at a time; a
	// two-token name is never shortened since "Do" and "Ma" are surnames too.
	for len(tokens) > 2 && v.isCredentialToken(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}
	for i := range tokens {
		tokens[i] = strings.Trim(tokens[i], ";:")
	}

	full := strings.Join(strings.Fields(strings.Join(tokens, " ")), " ")
	if len(tokens) == 0 || len([]rune(full)) <= 2 {
		return PersonName{}
	}

	p := PersonName{
		Full:       full,
		First:      tokens[0],
		Last:       tokens[len(tokens)-1],
		FormerLast: former,
	}

	seen := map[string]bool{}
	add := func(variant string) {
		variant = strings.TrimSpace(variant)
		key := strings.ToLower(variant)
		if variant == "" || seen[key] {
			return
		}
		seen[key] = true
		p.Variants = append(p.Variants, variant)
	}

	add(full)
	if former != "" && !strings.EqualFold(former, p.Last) {
		add(p.First + " " + former)
	}
	if strings.Contains(p.Last, "-") {
		given := strings.Join(tokens[:len(tokens)-1], " ")
		for _, seg := range strings.Split(p.Last, "-") {
			if len(seg) > 1 {
				add(given + " " + seg)
			}
		}
	}
	if len(tokens) > 2 {
		add(p.First + " " + p.Last)
	}

	return p
}

func (v *Vocab) isCredentialToken(tok string) bool {
	for _, part := range strings.Split(tok, "/") {
		if part == "" || !v.credentials[credentialKey(part)] {
			return false
		}
	}
	return true
}
