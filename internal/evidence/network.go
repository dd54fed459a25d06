package evidence

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/sells-group/placement-monitor/internal/location"
	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/normalize"
	"github.com/sells-group/placement-monitor/pkg/netrows"
	"github.com/sells-group/placement-monitor/pkg/serpapi"
)

// Ranking weights for professional-network profile candidates.
const (
	weightSlug       = 40
	weightTitleName  = 20
	weightKeyword    = 15
	weightUSGeo      = 10
	weightForeign    = -25
	scoreOnRecord    = 100
	defaultMinScore  = 50
	networkDomain    = "linkedin.com"
	networkPathToken = "in"
)

// ProfileCandidate is a ranked professional-network search hit.
type ProfileCandidate struct {
	URL     string
	Title   string
	Snippet string
	Score   int
	Reasons []string
}

// Network finds the candidate's professional-network profile through web
// search and reads employment from it.
type Network struct {
	search     serpapi.Client
	profiles   netrows.Client
	vocab      *normalize.Vocab
	minScore   int
	strategies []SnippetStrategy
}

// NetworkOption configures a Network adapter.
type NetworkOption func(*Network)

// WithProfiles enables employment-history lookups for validated profiles.
func WithProfiles(c netrows.Client) NetworkOption {
	return func(n *Network) { n.profiles = c }
}

// WithMinScore sets the ranking floor.
func WithMinScore(score int) NetworkOption {
	return func(n *Network) { n.minScore = score }
}

// WithStrategies replaces the snippet parsing order.
func WithStrategies(s []SnippetStrategy) NetworkOption {
	return func(n *Network) { n.strategies = s }
}

// NewNetwork creates the adapter. search may be nil.
func NewNetwork(search serpapi.Client, vocab *normalize.Vocab, opts ...NetworkOption) *Network {
	if vocab == nil {
		vocab = normalize.Default()
	}
	n := &Network{search: search, vocab: vocab, minScore: defaultMinScore, strategies: DefaultSnippetStrategies}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *Network) Source() model.Source  { return model.SourceNetwork }
func (n *Network) Configured() bool      { return n.search != nil }
func (n *Network) CandidateScoped() bool { return true }

// Find locates the best profile and extracts its employers.
func (n *Network) Find(ctx context.Context, q Query) Result {
	if !n.Configured() {
		return notConfigured(model.SourceNetwork)
	}

	candidates := n.onRecord(q)
	if len(candidates) == 0 {
		var err error
		candidates, err = n.searchProfiles(ctx, q.Person)
		if err != nil {
			return failure(model.SourceNetwork, err)
		}
	}

	best, ok := bestCandidate(candidates)
	if !ok || best.Score < n.minScore {
		r := Result{Source: model.SourceNetwork, Status: StatusNotFound, Note: "no profile above ranking floor"}
		if ok {
			r.Note = fmt.Sprintf("best profile scored %d, floor %d", best.Score, n.minScore)
		}
		return r
	}

	mentions, note := n.employment(ctx, best)
	r := found(model.SourceNetwork, mentions)
	r.ProfileURL = best.URL
	r.Note = note
	return r
}

// onRecord returns stored profile URLs that pass the slug veto.
func (n *Network) onRecord(q Query) []ProfileCandidate {
	var out []ProfileCandidate
	for _, u := range q.Candidate.ProfileURLs {
		if isProfileURL(u) && SlugMatches(u, q.Person) {
			out = append(out, ProfileCandidate{URL: u, Score: scoreOnRecord, Reasons: []string{"profile on record"}})
		}
	}
	return out
}

// searchProfiles runs one site-restricted query per variant. It only returns
// an error when the search upstream is exhausted or disabled.
func (n *Network) searchProfiles(ctx context.Context, person normalize.PersonName) ([]ProfileCandidate, error) {
	log := logger(model.SourceNetwork)
	seen := make(map[string]bool)
	var out []ProfileCandidate

	for _, variant := range person.Variants {
		query := "site:" + networkDomain + "/" + networkPathToken + " " + quoted(variant)
		resp, err := n.search.Search(ctx, query)
		if err != nil {
			if halts(err) {
				return nil, err
			}
			log.Warn("profile search failed", zap.String("query", query), zap.Error(err))
			continue
		}
		for _, r := range resp.OrganicResults {
			key := canonicalURL(r.Link)
			if seen[key] || !isProfileURL(r.Link) {
				continue
			}
			seen[key] = true
			if c, ok := n.Rank(r, person); ok {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// Rank scores a search hit as the person's profile. It returns false when
// the URL slug vetoes the hit.
func (n *Network) Rank(r serpapi.Result, person normalize.PersonName) (ProfileCandidate, bool) {
	if !SlugMatches(r.Link, person) {
		return ProfileCandidate{}, false
	}
	c := ProfileCandidate{URL: r.Link, Title: r.Title, Snippet: r.Snippet, Score: weightSlug, Reasons: []string{"slug"}}

	if namesPerson(r.Title, person) {
		c.Score += weightTitleName
		c.Reasons = append(c.Reasons, "title names person")
	}

	text := strings.ToLower(r.Title + " " + r.Snippet)
	for _, kw := range n.vocab.ProfessionalKeywords {
		if strings.Contains(text, kw) {
			c.Score += weightKeyword
			c.Reasons = append(c.Reasons, "keyword "+kw)
			break
		}
	}

	switch {
	case n.foreign(r.Link, text):
		c.Score += weightForeign
		c.Reasons = append(c.Reasons, "foreign locale")
	case location.Extract(r.Snippet).State != "" || strings.Contains(text, "united states"):
		c.Score += weightUSGeo
		c.Reasons = append(c.Reasons, "US location")
	}
	return c, true
}

func (n *Network) foreign(link, lowerText string) bool {
	host := hostOf(link)
	if sub, _, ok := strings.Cut(host, "."); ok && strings.HasSuffix(host, "."+networkDomain) {
		for _, s := range n.vocab.ForeignNetworkSubdomains {
			if sub == s {
				return true
			}
		}
	}
	words := normalize.Words(lowerText)
	for _, ind := range n.vocab.ForeignLocaleIndicators {
		if normalize.ContainsPhrase(words, normalize.Words(ind)) {
			return true
		}
	}
	return false
}

func bestCandidate(cs []ProfileCandidate) (ProfileCandidate, bool) {
	if len(cs) == 0 {
		return ProfileCandidate{}, false
	}
	best := cs[0]
	for _, c := range cs[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, true
}

// employment reads positions from the profile API, falling back to snippet
// parsing when the API is absent, fails, or returns an empty history.
func (n *Network) employment(ctx context.Context, c ProfileCandidate) ([]model.OrganizationMention, string) {
	log := logger(model.SourceNetwork).With(zap.String("profile", c.URL))
	var note string

	if n.profiles != nil {
		prof, err := n.profiles.Profile(ctx, c.URL)
		switch {
		case err == nil:
			return positionMentions(prof, c), "employment from profile API"
		case errors.Is(err, netrows.ErrEmptyHistory):
			log.Warn("profile API returned no employment history, using snippet")
			note = "profile API returned empty history; "
		case halts(err):
			log.Warn("profile API unavailable", zap.Error(err))
			note = "profile API disabled; "
		default:
			log.Warn("profile lookup failed", zap.Error(err))
			note = "profile lookup failed; "
		}
	}

	orgs, strategy := ExtractEmployers(n.strategies, c.Title, c.Snippet)
	if len(orgs) == 0 {
		return nil, note + "no employer in snippet"
	}
	loc := location.Extract(c.Snippet)
	mentions := make([]model.OrganizationMention, 0, len(orgs))
	for _, org := range orgs {
		mentions = append(mentions, model.OrganizationMention{
			Organization: org,
			Location:     loc,
			Source:       model.SourceNetwork,
			Kind:         model.KindProfile,
			URL:          c.URL,
			Title:        c.Title,
			RawScore:     c.Score,
		})
	}
	return mentions, note + "snippet strategy " + strategy
}

func positionMentions(p *netrows.Profile, c ProfileCandidate) []model.OrganizationMention {
	out := make([]model.OrganizationMention, 0, len(p.Positions))
	for _, pos := range p.Positions {
		if strings.TrimSpace(pos.Company) == "" {
			continue
		}
		loc := positionLocation(pos.Location)
		if loc.IsZero() {
			loc = positionLocation(p.Location)
		}
		out = append(out, model.OrganizationMention{
			Organization: pos.Company,
			Location:     loc,
			Source:       model.SourceNetwork,
			Kind:         model.KindProfile,
			URL:          c.URL,
			Title:        pos.Title,
			Start:        pos.Start,
			End:          pos.End,
			Current:      pos.Current,
			RawScore:     c.Score,
		})
	}
	return out
}

// positionLocation reads "Rockford, Illinois, United States" style strings.
func positionLocation(s string) model.Location {
	parts := strings.Split(s, ",")
	if len(parts) >= 2 {
		if code := location.StateCode(parts[1]); code != "" {
			return model.Location{City: strings.TrimSpace(parts[0]), State: code}
		}
	}
	return location.Extract(s)
}

func isProfileURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !hostWithin(strings.ToLower(u.Hostname()), networkDomain) {
		return false
	}
	return profileSlug(raw) != ""
}

// profileSlug returns the profile path segment with trailing id tokens
// ("jane-doe-4a1b2c" becomes "jane-doe").
func profileSlug(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	var slug string
	for i, s := range segs {
		if s == networkPathToken && i+1 < len(segs) {
			slug = segs[i+1]
			break
		}
	}
	if unescaped, err := url.PathUnescape(slug); err == nil {
		slug = unescaped
	}
	toks := strings.Split(strings.ToLower(slug), "-")
	for len(toks) > 1 && hasDigit(toks[len(toks)-1]) {
		toks = toks[:len(toks)-1]
	}
	return strings.Trim(strings.Join(toks, "-"), "-")
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

// SlugMatches reports whether a profile URL's slug carries the person's given
// name and one accepted family-name form as whole slug tokens. A slug without
// separators must start with one and end with the other.
func SlugMatches(profileURL string, person normalize.PersonName) bool {
	var toks []string
	for _, t := range strings.Split(profileSlug(profileURL), "-") {
		if c := normalize.Compact(t); c != "" {
			toks = append(toks, c)
		}
	}
	first := normalize.Compact(person.First)
	if len(toks) == 0 || first == "" {
		return false
	}

	if len(toks) == 1 {
		slug := toks[0]
		for _, f := range person.FamilyForms() {
			fc := normalize.Compact(f)
			if fc == "" || len(slug) < len(first)+len(fc) {
				continue
			}
			if (strings.HasPrefix(slug, first) && strings.HasSuffix(slug, fc)) ||
				(strings.HasPrefix(slug, fc) && strings.HasSuffix(slug, first)) {
				return true
			}
		}
		return false
	}

	if !tokenRun(toks, first) {
		return false
	}
	for _, f := range person.FamilyForms() {
		if fc := normalize.Compact(f); fc != "" && tokenRun(toks, fc) {
			return true
		}
	}
	return false
}

// tokenRun reports whether consecutive tokens join to exactly want.
func tokenRun(toks []string, want string) bool {
	for i := range toks {
		joined := ""
		for _, t := range toks[i:] {
			joined += t
			if joined == want {
				return true
			}
			if len(joined) >= len(want) {
				break
			}
		}
	}
	return false
}
