package evidence

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/sells-group/placement-monitor/internal/location"
	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/normalize"
	"github.com/sells-group/placement-monitor/pkg/cms"
	"github.com/sells-group/placement-monitor/pkg/nppes"
	"github.com/sells-group/placement-monitor/pkg/serpapi"
)

const defaultMinSimilarity = 0.85

// Registry reads practice locations from the national provider registry and
// the clinician affiliation dataset, and probes the web for the registry
// number.
type Registry struct {
	npi           nppes.Client
	affiliations  cms.Client
	search        serpapi.Client
	vocab         *normalize.Vocab
	minSimilarity float64
}

// RegistryOption configures a Registry adapter.
type RegistryOption func(*Registry)

// WithAffiliations adds clinician affiliation lookups.
func WithAffiliations(c cms.Client) RegistryOption {
	return func(r *Registry) { r.affiliations = c }
}

// WithNumberSearch enables web probes for the registry number.
func WithNumberSearch(c serpapi.Client) RegistryOption {
	return func(r *Registry) { r.search = c }
}

// NewRegistry creates the adapter. npi may be nil.
func NewRegistry(npi nppes.Client, vocab *normalize.Vocab, opts ...RegistryOption) *Registry {
	if vocab == nil {
		vocab = normalize.Default()
	}
	r := &Registry{npi: npi, vocab: vocab, minSimilarity: defaultMinSimilarity}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) Source() model.Source  { return model.SourceRegistry }
func (r *Registry) Configured() bool      { return r.npi != nil }
func (r *Registry) CandidateScoped() bool { return true }

// Find resolves the candidate's registry record and collects every practice
// location tied to it.
func (r *Registry) Find(ctx context.Context, q Query) Result {
	if !r.Configured() {
		return notConfigured(model.SourceRegistry)
	}
	log := logger(model.SourceRegistry)

	rec, unique, note, err := r.resolve(ctx, q)
	if err != nil {
		if halts(err) {
			return failure(model.SourceRegistry, err)
		}
		log.Warn("registry lookup failed", zap.String("candidate", q.Candidate.ID), zap.Error(err))
		return Result{Source: model.SourceRegistry, Status: StatusNotFound, Note: "registry lookup failed", Err: err}
	}
	if rec == nil {
		return Result{Source: model.SourceRegistry, Status: StatusNotFound, Note: note}
	}

	mentions := recordMentions(rec)

	if r.affiliations != nil {
		affs, err := r.affiliations.Affiliations(ctx, rec.Number)
		if err != nil {
			log.Warn("affiliation lookup failed", zap.String("npi", rec.Number), zap.Error(err))
		}
		for _, a := range affs {
			mentions = append(mentions, model.OrganizationMention{
				Organization: a.FacilityName,
				Location:     model.Location{City: a.City, State: location.StateCode(a.State)},
				Address:      a.Address(),
				Source:       model.SourceRegistry,
				Kind:         model.KindRegistry,
			})
		}
	}

	probes, probeNote := r.probeNumber(ctx, rec.Number, q.Person)
	mentions = append(mentions, probes...)
	if probeNote != "" {
		note = strings.TrimPrefix(note+"; "+probeNote, "; ")
	}

	res := found(model.SourceRegistry, r.dedupe(mentions))
	res.Note = note
	if unique && strings.TrimSpace(q.Candidate.NPI) == "" {
		res.DiscoveredNPI = rec.Number
	}
	return res
}

// resolve finds the record by NPI when known, otherwise by name. unique is
// true only when exactly one record matches the full name exactly.
func (r *Registry) resolve(ctx context.Context, q Query) (*nppes.Record, bool, string, error) {
	if npi := strings.TrimSpace(q.Candidate.NPI); npi != "" {
		rec, err := r.npi.Lookup(ctx, npi)
		if err != nil {
			return nil, false, "", err
		}
		if rec == nil {
			return nil, false, "NPI " + npi + " not in registry", nil
		}
		return rec, false, "", nil
	}

	p := q.Person
	if p.First == "" || p.Last == "" {
		return nil, false, "name too short to search the registry", nil
	}

	var records []nppes.Record
	for _, last := range p.FamilyForms() {
		recs, err := r.npi.SearchIndividuals(ctx, wildcard(p.First), last)
		if err != nil {
			return nil, false, "", err
		}
		records = append(records, recs...)
		if len(records) > 0 {
			break
		}
	}
	rec, unique, note := r.pick(records, p)
	return rec, unique, note, nil
}

// wildcard appends the registry's trailing wildcard, which needs at least two
// leading characters.
func wildcard(first string) string {
	if utf8.RuneCountInString(first) < 2 {
		return first
	}
	return first + "*"
}

// pick prefers exact name matches, then the closest name by edit distance.
func (r *Registry) pick(records []nppes.Record, p normalize.PersonName) (*nppes.Record, bool, string) {
	if len(records) == 0 {
		return nil, false, "no registry record for " + p.Full
	}

	var exact []int
	for i, rec := range records {
		if sameWord(rec.Basic.FirstName, p.First) && familyMatch(rec.Basic.LastName, p) {
			exact = append(exact, i)
		}
	}
	switch {
	case len(exact) == 1:
		return &records[exact[0]], true, "unique exact registry match"
	case len(exact) > 1:
		return &records[exact[0]], false, fmt.Sprintf("ambiguous: %d registry records match %s exactly", len(exact), p.Full)
	}

	want := normalize.Words(p.First + " " + p.Last)
	bestIdx, bestSim := -1, 0.0
	for i, rec := range records {
		if sim := similarity(want, normalize.Words(rec.FullName())); sim > bestSim {
			bestIdx, bestSim = i, sim
		}
	}
	if bestIdx < 0 || bestSim < r.minSimilarity {
		return nil, false, fmt.Sprintf("no registry record close to %s", p.Full)
	}
	return &records[bestIdx], false, fmt.Sprintf("closest registry match %s (similarity %.2f)", records[bestIdx].FullName(), bestSim)
}

func similarity(a, b string) float64 {
	maxLen := math.Max(float64(len(a)), float64(len(b)))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/maxLen
}

func sameWord(a, b string) bool {
	return a != "" && normalize.Words(a) == normalize.Words(b)
}

func familyMatch(last string, p normalize.PersonName) bool {
	for _, f := range p.FamilyForms() {
		if sameWord(last, f) {
			return true
		}
	}
	return false
}

func recordMentions(rec *nppes.Record) []model.OrganizationMention {
	org := rec.Basic.OrganizationName
	if org == "" {
		for _, o := range rec.OtherNames {
			if o.OrganizationName != "" {
				org = o.OrganizationName
				break
			}
		}
	}
	var out []model.OrganizationMention
	for _, a := range rec.PracticeAddresses() {
		out = append(out, model.OrganizationMention{
			Organization: org,
			Location:     model.Location{City: a.City, State: location.StateCode(a.State)},
			Address:      a.OneLine(),
			Source:       model.SourceRegistry,
			Kind:         model.KindRegistry,
		})
	}
	return out
}

// probeNumber searches aggregator sites and the open web for the registry
// number. Only results that quote the number count.
func (r *Registry) probeNumber(ctx context.Context, npi string, p normalize.PersonName) ([]model.OrganizationMention, string) {
	if r.search == nil || npi == "" {
		return nil, ""
	}
	log := logger(model.SourceRegistry)

	queries := []string{quoted(npi) + " " + p.Last}
	if len(r.vocab.RegistryAggregators) > 0 {
		sites := make([]string, len(r.vocab.RegistryAggregators))
		for i, d := range r.vocab.RegistryAggregators {
			sites[i] = "site:" + d
		}
		queries = append([]string{quoted(npi) + " (" + strings.Join(sites, " OR ") + ")"}, queries...)
	}

	var out []model.OrganizationMention
	for _, query := range queries {
		resp, err := r.search.Search(ctx, query)
		if err != nil {
			if halts(err) {
				return out, "number search disabled"
			}
			log.Warn("registry number search failed", zap.String("query", query), zap.Error(err))
			continue
		}
		for _, res := range resp.OrganicResults {
			if !strings.Contains(res.Title+" "+res.Snippet, npi) {
				continue
			}
			out = append(out, model.OrganizationMention{
				Organization: res.Title + " " + res.Snippet,
				Location:     location.Extract(res.Snippet),
				Source:       model.SourceRegistry,
				Kind:         model.KindRegistry,
				URL:          res.Link,
				Title:        res.Title,
			})
		}
	}
	return out, ""
}

// dedupe keeps one mention per normalized organization. Mentions without an
// organization are keyed by address and dropped when an organization-bearing
// mention shares the address.
func (r *Registry) dedupe(in []model.OrganizationMention) []model.OrganizationMention {
	named := make(map[string]bool)
	for _, m := range in {
		if m.Organization != "" && m.Address != "" {
			named[normalize.Words(m.Address)] = true
		}
	}

	seen := make(map[string]bool)
	var out []model.OrganizationMention
	for _, m := range in {
		var key string
		if m.Organization != "" {
			key = "org:" + r.vocab.Organization(m.Organization)
		} else {
			addr := normalize.Words(m.Address)
			if addr == "" || named[addr] {
				continue
			}
			key = "addr:" + addr
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}
