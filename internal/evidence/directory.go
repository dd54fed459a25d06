package evidence

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/placement-monitor/internal/location"
	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/normalize"
	"github.com/sells-group/placement-monitor/pkg/serpapi"
)

var (
	officeLabelRe = regexp.MustCompile(`(?i)\bOffice:\s*([^.|·;\n]+)`)
	practicesAtRe = regexp.MustCompile(`(?i)\bpractices at\s+([^.,|·;\n]+)`)
)

// Directory searches a provider directory for the candidate's listing and
// reads practice names from it.
type Directory struct {
	search       serpapi.Client
	vocab        *normalize.Vocab
	domain       string
	pathSegments []string
	practiceRe   *regexp.Regexp
}

// NewDirectory creates the adapter. search may be nil.
func NewDirectory(search serpapi.Client, vocab *normalize.Vocab, domain string, pathSegments []string) *Directory {
	if vocab == nil {
		vocab = normalize.Default()
	}
	return &Directory{
		search:       search,
		vocab:        vocab,
		domain:       strings.ToLower(strings.TrimSpace(domain)),
		pathSegments: pathSegments,
		practiceRe:   PracticeNameRe(vocab.PracticeSuffixes),
	}
}

// PracticeNameRe matches up to four capitalized words ending in a practice
// suffix: "Rockford Family Eye Care". It returns nil for an empty list.
func PracticeNameRe(suffixes []string) *regexp.Regexp {
	if len(suffixes) == 0 {
		return nil
	}
	quoted := make([]string, len(suffixes))
	for i, s := range suffixes {
		quoted[i] = regexp.QuoteMeta(s)
	}
	return regexp.MustCompile(`((?:[A-Z][\w&'.-]*\s+){0,4}(?i:` + strings.Join(quoted, "|") + `))\b`)
}

func (d *Directory) Source() model.Source  { return model.SourceDirectory }
func (d *Directory) Configured() bool      { return d.search != nil && d.domain != "" }
func (d *Directory) CandidateScoped() bool { return true }

// Find searches the directory once per name variant.
func (d *Directory) Find(ctx context.Context, q Query) Result {
	if !d.Configured() {
		return notConfigured(model.SourceDirectory)
	}
	log := logger(model.SourceDirectory)

	seenURL := make(map[string]bool)
	seenOrg := make(map[string]bool)
	var mentions []model.OrganizationMention

	for _, variant := range q.Person.Variants {
		query := "site:" + d.domain + " " + quoted(variant)
		resp, err := d.search.Search(ctx, query)
		if err != nil {
			if halts(err) {
				return failure(model.SourceDirectory, err)
			}
			log.Warn("directory search failed", zap.String("query", query), zap.Error(err))
			continue
		}
		for _, r := range resp.OrganicResults {
			key := canonicalURL(r.Link)
			if seenURL[key] || !d.isListing(r.Link) {
				continue
			}
			seenURL[key] = true
			if !namesPerson(r.Title+" "+r.Snippet, q.Person) {
				continue
			}
			loc := location.Extract(r.Snippet)
			for _, practice := range d.PracticeHints(r.Title + " · " + r.Snippet) {
				norm := d.vocab.Organization(practice)
				if norm == "" || seenOrg[norm] || d.vocab.IsGeneric(practice) {
					continue
				}
				seenOrg[norm] = true
				mentions = append(mentions, model.OrganizationMention{
					Organization: practice,
					Location:     loc,
					Source:       model.SourceDirectory,
					Kind:         model.KindProfile,
					URL:          r.Link,
					Title:        r.Title,
				})
			}
		}
	}
	return found(model.SourceDirectory, mentions)
}

// isListing reports whether link is a profile page on the directory.
func (d *Directory) isListing(link string) bool {
	u, err := url.Parse(link)
	if err != nil || !hostWithin(strings.ToLower(u.Hostname()), d.domain) {
		return false
	}
	if len(d.pathSegments) == 0 {
		return true
	}
	path := strings.ToLower(u.Path)
	for _, seg := range d.pathSegments {
		if strings.Contains(path, strings.ToLower(seg)) {
			return true
		}
	}
	return false
}

// PracticeHints extracts practice names from listing text: labelled office
// lines first, then "practices at", then suffix-terminated names.
func (d *Directory) PracticeHints(text string) []string {
	var out []string
	for _, re := range []*regexp.Regexp{officeLabelRe, practicesAtRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			out = append(out, cleanOrg(m[1]))
		}
	}
	if d.practiceRe != nil {
		for _, m := range d.practiceRe.FindAllStringSubmatch(text, -1) {
			out = append(out, cleanOrg(m[1]))
		}
	}
	return dedupe(out)
}
