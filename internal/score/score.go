// Package score decides whether an organization mention refers to a tracked
// client and how confident that decision is.
package score

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/placement-monitor/internal/location"
	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/normalize"
	"github.com/sells-group/placement-monitor/internal/relate"
)

// ClientContext is what the scorer knows about the client a candidate was
// submitted to.
type ClientContext struct {
	Name     string
	Location model.Location
}

// Outcome is the verdict for one mention.
type Outcome struct {
	Match      bool
	Confidence model.Confidence
	Reason     string
	// Matched is the organization phrase that satisfied the rule: the client
	// name, a related name, or the shared tokens.
	Matched string
	Mention model.OrganizationMention
}

// Scorer applies the matching rules.
type Scorer struct {
	vocab *normalize.Vocab
	index *relate.Index
	min   model.Confidence
}

// New creates a Scorer. Outcomes below min are not alertable.
func New(vocab *normalize.Vocab, index *relate.Index, min model.Confidence) *Scorer {
	if vocab == nil {
		vocab = normalize.Default()
	}
	if index == nil {
		index = relate.NewIndex(vocab, nil)
	}
	if min == "" {
		min = model.ConfidenceMedium
	}
	return &Scorer{vocab: vocab, index: index, min: min}
}

// MinConfidence returns the alerting floor.
func (s *Scorer) MinConfidence() model.Confidence { return s.min }

// Alertable reports whether an outcome clears the alerting floor.
func (s *Scorer) Alertable(o Outcome) bool {
	return o.Match && o.Confidence.AtLeast(s.min)
}

// Score evaluates a single mention against the client.
func (s *Scorer) Score(m model.OrganizationMention, client ClientContext) Outcome {
	out := Outcome{Mention: m}

	if strings.TrimSpace(m.Organization) == "" {
		out.Reason = "no organization text"
		return out
	}
	if !m.Kind.PersonValidated() && s.deniedHost(m.URL) {
		out.Reason = "directory host excluded"
		return out
	}

	clientNorm := s.vocab.Organization(client.Name)
	if clientNorm == "" || s.vocab.IsGeneric(client.Name) {
		out.Reason = "client name is generic"
		return out
	}

	text := s.vocab.Organization(m.Organization)
	if text == "" {
		out.Reason = "mention normalizes to nothing"
		return out
	}

	if matched, reason, ok := s.fullName(text, m.Organization, client.Name, clientNorm); ok {
		out.Match, out.Confidence, out.Reason, out.Matched = true, model.ConfidenceHigh, reason, matched
		return s.blend(out, client)
	}

	// Page bodies are long enough that scattered tokens match by accident.
	if m.Kind == model.KindPage {
		out.Reason = "no full-name match in page text"
		return out
	}

	tokens := s.vocab.MatchTokens(client.Name)
	if len(tokens) < 2 {
		out.Reason = "no full-name match"
		return out
	}
	present := normalize.TokenSet(text)
	for _, tok := range tokens {
		if !present[tok] {
			out.Reason = "no full-name match; token " + tok + " missing"
			return out
		}
	}
	out.Match = true
	out.Confidence = model.ConfidenceMedium
	out.Matched = strings.Join(tokens, " ")
	out.Reason = "all significant tokens present (" + strings.Join(tokens, ", ") + ")"
	return s.blend(out, client)
}

// fullName returns the phrase that made the mention a full-name match.
func (s *Scorer) fullName(text, raw, clientName, clientNorm string) (string, string, bool) {
	if normalize.ContainsPhrase(text, clientNorm) {
		return clientName, "full client name \"" + clientName + "\" present", true
	}
	for _, alias := range s.index.Aliases(clientName) {
		if s.vocab.IsGeneric(alias) {
			continue
		}
		if normalize.ContainsPhrase(text, s.vocab.Organization(alias)) {
			return alias, "related name \"" + alias + "\" present", true
		}
	}
	if r := s.index.Related(raw, clientName); r.Match {
		return Excerpt(raw, "", maxMatchedLen), r.Reason, true
	}
	return "", "", false
}

// blend folds location corroboration into a matched outcome. Only medium
// outcomes move; high outcomes are annotated.
func (s *Scorer) blend(out Outcome, client ClientContext) Outcome {
	if out.Mention.Location.IsZero() || client.Location.IsZero() {
		return out
	}
	loc := location.Match(out.Mention.Location, client.Location)
	conflict := !loc.Match && loc.Reason != "state unknown"

	switch {
	case loc.Match && loc.Confidence == model.ConfidenceHigh:
		if out.Confidence == model.ConfidenceMedium {
			out.Confidence = model.ConfidenceHigh
		}
		out.Reason += "; " + loc.Reason
	case loc.Match:
		out.Reason += "; " + loc.Reason
	case conflict && out.Confidence == model.ConfidenceMedium:
		out.Confidence = model.ConfidenceLow
		out.Reason += "; location conflict: " + loc.Reason
	case conflict:
		out.Reason += "; location differs: " + loc.Reason
	}
	return out
}

func (s *Scorer) deniedHost(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return s.vocab.IsDirectoryHost(u.Hostname())
}

// Best scores every mention and returns the strongest match. Ties keep the
// earliest mention. A zero Outcome means nothing matched.
func (s *Scorer) Best(mentions []model.OrganizationMention, client ClientContext) Outcome {
	var best Outcome
	for _, m := range mentions {
		o := s.Score(m, client)
		if !o.Match {
			continue
		}
		if !best.Match || o.Confidence.Rank() > best.Confidence.Rank() {
			best = o
		}
	}
	return best
}

const maxMatchedLen = 120

// Excerpt returns up to width bytes of text centred on the first
// case-insensitive occurrence of phrase, or the start of text when phrase is
// absent. Cuts fall on rune boundaries and whitespace is collapsed.
func Excerpt(text, phrase string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	if width <= 0 || len(text) <= width {
		return text
	}
	start := 0
	if phrase != "" {
		if i := indexFold(text, phrase); i >= 0 {
			start = max(i-(width-len(phrase))/2, 0)
		}
	}
	end := min(start+width, len(text))
	start = max(end-width, 0)
	for start > 0 && !utf8.RuneStart(text[start]) {
		start++
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}
	out := strings.TrimSpace(text[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(text) {
		out += "…"
	}
	return out
}

// indexFold is strings.Index ignoring case. The returned offset is into text.
func indexFold(text, phrase string) int {
	n := len(phrase)
	for i := 0; i+n <= len(text); i++ {
		if strings.EqualFold(text[i:i+n], phrase) {
			return i
		}
	}
	return -1
}
