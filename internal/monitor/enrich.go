package monitor

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/placement-monitor/internal/evidence"
	"github.com/sells-group/placement-monitor/internal/location"
	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/normalize"
	"github.com/sells-group/placement-monitor/internal/scrape"
	"github.com/sells-group/placement-monitor/pkg/serpapi"
)

const (
	maxHarvested  = 5
	maxBrandWords = 6
)

type pairKey struct {
	candidateID string
	client      string
}

type cacheKey struct {
	candidateID string
	source      model.Source
}

// clientInfo is what enrichment learned about a client.
type clientInfo struct {
	Website  string
	Location model.Location
	Names    []string
}

// runState is rebuilt at the start of every run.
type runState struct {
	enrichment map[string]clientInfo
	evidence   map[cacheKey]evidence.Result
	alerted    map[pairKey]bool
}

func newRunState() *runState {
	return &runState{
		enrichment: make(map[string]clientInfo),
		evidence:   make(map[cacheKey]evidence.Result),
		alerted:    make(map[pairKey]bool),
	}
}

// enrichment returns the client's site facts, fetching them at most once per
// normalized client name per run.
func (m *Monitor) enrichment(ctx context.Context, state *runState, sub model.Submission) clientInfo {
	key := m.vocab.Organization(sub.ClientName)
	if info, ok := state.enrichment[key]; ok {
		return info
	}
	info := m.enrichClient(ctx, sub)
	state.enrichment[key] = info
	return info
}

func (m *Monitor) enrichClient(ctx context.Context, sub model.Submission) clientInfo {
	var info clientInfo
	if !m.enrich || m.fetcher == nil || m.vocab.IsGeneric(sub.ClientName) {
		return info
	}
	log := m.log.With(zap.String("client", sub.ClientName))

	site := strings.TrimSpace(sub.ClientWebsite)
	if site == "" {
		site = m.resolveSite(ctx, sub.ClientName)
	}
	if site == "" {
		log.Debug("monitor: no client website")
		return info
	}
	if !strings.Contains(site, "://") {
		site = "https://" + site
	}
	info.Website = site

	fetchCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	page, err := m.fetcher.Fetch(fetchCtx, site)
	if err != nil {
		log.Warn("monitor: fetch client website", zap.String("url", site), zap.Error(err))
		return info
	}

	info.Location = location.Extract(page.Text)
	info.Names = m.harvest(page, sub.ClientName)

	for _, name := range info.Names {
		e, added, err := m.index.Add(sub.ClientName, name, model.OriginAuto)
		if err != nil {
			log.Debug("monitor: harvested name rejected", zap.String("name", name), zap.Error(err))
			continue
		}
		if !added {
			continue
		}
		if err := m.store.AddRelationship(ctx, e); err != nil {
			log.Error("monitor: persist discovered relationship", zap.String("alias", name), zap.Error(err))
			continue
		}
		log.Info("monitor: discovered related name", zap.String("alias", name))
	}
	return info
}

// resolveSite searches for the client and takes the first result that looks
// like the client's own site.
func (m *Monitor) resolveSite(ctx context.Context, clientName string) string {
	if m.search == nil {
		return ""
	}
	searchCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.search.Search(searchCtx, `"`+strings.ReplaceAll(clientName, `"`, "")+`"`, serpapi.WithNum(5))
	if err != nil {
		m.log.Warn("monitor: client website search", zap.String("client", clientName), zap.Error(err))
		return ""
	}

	norm := m.vocab.Organization(clientName)
	compact := normalize.Compact(norm)
	for _, r := range resp.OrganicResults {
		u, err := url.Parse(r.Link)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		if m.vocab.IsDirectoryHost(host) || m.vocab.IsSearchEngineHost(host) || m.vocab.IsShortenerHost(host) {
			continue
		}
		if strings.Contains(normalize.Compact(host), compact) ||
			normalize.ContainsPhrase(m.vocab.Organization(r.Title), norm) {
			return u.Scheme + "://" + u.Host
		}
	}
	return ""
}

var titleSepRe = regexp.MustCompile(`\s+[-–—|·:]\s+|\s*\|\s*`)

// harvest picks brand and practice names off a client page: title segments,
// the site name, headings and suffix-terminated practice names. A segment is
// kept when it shares a significant token with the client or ends in a
// practice suffix; the declared site name is always kept.
func (m *Monitor) harvest(page *scrape.Page, clientName string) []string {
	clientNorm := m.vocab.Organization(clientName)
	clientTokens := normalize.TokenSet(strings.Join(m.vocab.SignificantTokens(clientName), " "))

	seen := map[string]bool{clientNorm: true}
	var out []string
	keep := func(raw string, always bool) {
		if len(out) >= maxHarvested {
			return
		}
		name := strings.Trim(strings.Join(strings.Fields(raw), " "), " ,.;:-|")
		if name == "" || len(strings.Fields(name)) > maxBrandWords || m.vocab.IsGeneric(name) {
			return
		}
		norm := m.vocab.Organization(name)
		if norm == "" || seen[norm] || normalize.ContainsPhrase(norm, clientNorm) {
			return
		}
		if !always && !m.sharesToken(name, clientTokens) && !m.practiceName(name) {
			return
		}
		seen[norm] = true
		out = append(out, name)
	}

	keep(page.SiteName, true)
	for _, seg := range titleSepRe.Split(page.Title, -1) {
		keep(seg, false)
	}
	for _, h := range page.Headings {
		keep(h, false)
	}
	if m.practiceRe != nil {
		for _, text := range append([]string{page.Title}, page.Headings...) {
			for _, match := range m.practiceRe.FindAllStringSubmatch(text, -1) {
				keep(match[1], true)
			}
		}
	}
	return out
}

func (m *Monitor) sharesToken(name string, clientTokens map[string]bool) bool {
	for _, tok := range m.vocab.SignificantTokens(name) {
		if clientTokens[tok] {
			return true
		}
	}
	return false
}

func (m *Monitor) practiceName(name string) bool {
	words := normalize.Words(name)
	for _, suffix := range m.vocab.PracticeSuffixes {
		s := normalize.Words(suffix)
		if s != "" && (words == s || strings.HasSuffix(words, " "+s)) {
			return true
		}
	}
	return false
}
