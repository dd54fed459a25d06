package evidence

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/placement-monitor/internal/location"
	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/normalize"
	"github.com/sells-group/placement-monitor/internal/scrape"
	"github.com/sells-group/placement-monitor/pkg/serpapi"
)

const pageFetchConcurrency = 2

// WebSearch searches the open web for the candidate alongside the client
// name and optionally reads the top result pages.
type WebSearch struct {
	search     serpapi.Client
	fetcher    scrape.Fetcher
	vocab      *normalize.Vocab
	maxResults int
	fetchPages int
}

// WebSearchOption configures a WebSearch adapter.
type WebSearchOption func(*WebSearch)

// WithPageFetch enables fetching up to n result pages through f.
func WithPageFetch(f scrape.Fetcher, n int) WebSearchOption {
	return func(w *WebSearch) {
		w.fetcher = f
		w.fetchPages = n
	}
}

// WithMaxResults sets the number of results requested per query.
func WithMaxResults(n int) WebSearchOption {
	return func(w *WebSearch) {
		if n > 0 {
			w.maxResults = n
		}
	}
}

// NewWebSearch creates the adapter. search may be nil.
func NewWebSearch(search serpapi.Client, vocab *normalize.Vocab, opts ...WebSearchOption) *WebSearch {
	if vocab == nil {
		vocab = normalize.Default()
	}
	w := &WebSearch{search: search, vocab: vocab, maxResults: 10}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *WebSearch) Source() model.Source  { return model.SourceWebSearch }
func (w *WebSearch) Configured() bool      { return w.search != nil }
func (w *WebSearch) CandidateScoped() bool { return false }

// Find runs one query per name variant and returns snippet and page mentions.
func (w *WebSearch) Find(ctx context.Context, q Query) Result {
	if !w.Configured() {
		return notConfigured(model.SourceWebSearch)
	}
	log := logger(model.SourceWebSearch)

	var results []serpapi.Result
	seen := make(map[string]bool)
	for _, variant := range q.Person.Variants {
		query := quoted(variant) + " " + quoted(q.ClientName)
		resp, err := w.search.Search(ctx, query, serpapi.WithNum(w.maxResults))
		if err != nil {
			if halts(err) {
				return failure(model.SourceWebSearch, err)
			}
			log.Warn("web search failed", zap.String("query", query), zap.Error(err))
			continue
		}
		for _, r := range resp.OrganicResults {
			key := canonicalURL(r.Link)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			host := hostOf(r.Link)
			if w.vocab.IsSearchEngineHost(host) || w.vocab.IsShortenerHost(host) {
				continue
			}
			results = append(results, r)
		}
	}

	mentions := make([]model.OrganizationMention, 0, len(results))
	for _, r := range results {
		// The query quotes the client, so a hit proves nothing about the
		// person unless it names them too.
		if !namesFamily(r.Title+" "+r.Snippet, q.Person) {
			continue
		}
		mentions = append(mentions, model.OrganizationMention{
			Organization: r.Title + " " + r.Snippet,
			Location:     location.Extract(r.Snippet),
			Source:       model.SourceWebSearch,
			Kind:         model.KindSearchResult,
			URL:          r.Link,
			Title:        r.Title,
		})
	}
	mentions = append(mentions, w.fetchPagesFor(ctx, results, q.Person)...)

	return found(model.SourceWebSearch, mentions)
}

// fetchPagesFor reads the top non-directory result pages concurrently and
// keeps the ones that name the person.
func (w *WebSearch) fetchPagesFor(ctx context.Context, results []serpapi.Result, person normalize.PersonName) []model.OrganizationMention {
	if w.fetcher == nil || w.fetchPages <= 0 {
		return nil
	}

	var targets []string
	for _, r := range results {
		if len(targets) == w.fetchPages {
			break
		}
		if w.vocab.IsDirectoryHost(hostOf(r.Link)) {
			continue
		}
		targets = append(targets, r.Link)
	}

	log := logger(model.SourceWebSearch)
	// Each goroutine writes only its own slot.
	pages := make([]*model.OrganizationMention, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageFetchConcurrency)
	for i, target := range targets {
		g.Go(func() error {
			page, err := w.fetcher.Fetch(gctx, target)
			if err != nil {
				log.Debug("page fetch failed", zap.String("url", target), zap.Error(err))
				return nil
			}
			if !namesFamily(page.Text, person) {
				return nil
			}
			pages[i] = &model.OrganizationMention{
				Organization: page.Text,
				Location:     location.Extract(page.Text),
				Source:       model.SourceWebSearch,
				Kind:         model.KindPage,
				URL:          target,
				Title:        page.Title,
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []model.OrganizationMention
	for _, m := range pages {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}
