package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placement-monitor/internal/evidence"
	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/scrape"
	"github.com/sells-group/placement-monitor/pkg/serpapi"
)

type fakeSearch struct {
	results []serpapi.Result
	err     error
	queries []string
}

func (f *fakeSearch) Search(_ context.Context, query string, _ ...serpapi.SearchOption) (*serpapi.SearchResponse, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return &serpapi.SearchResponse{OrganicResults: f.results}, nil
}

func acmePage() *scrape.Page {
	return &scrape.Page{
		Title:    "Home | Acme Eye Care",
		SiteName: "Bright Eyes Optometry",
		Headings: []string{"Welcome to Acme Eye Care", "Our Doctors"},
		Text:     "Acme Eye Care. Visit us at 100 Main St, Rockford, IL 61101.",
	}
}

func TestEnrichment_HarvestsRelatedNames(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		model.Submission{ID: "s1", CandidateID: "c1", ClientName: "Acme Eye Care", ClientWebsite: "acme.example"},
		model.Submission{ID: "s2", CandidateID: "c2", ClientName: "ACME Eye Care", ClientWebsite: "acme.example"},
	)
	fetcher := &fakeFetcher{page: acmePage()}
	web := &fakeAdapter{src: model.SourceWebSearch, configured: true,
		find: func(_ context.Context, q evidence.Query) evidence.Result {
			if q.Candidate.ID != "c1" {
				return evidence.Result{Source: model.SourceWebSearch, Status: evidence.StatusNotFound}
			}
			return mentions(model.SourceWebSearch, model.KindSearchResult, "Dr. Jane Doe, Bright Eyes Optometry")
		},
	}
	m := newTestMonitor(t, st, Deps{WebSearch: web, Fetcher: fetcher}, Config{Enrich: true})

	sum, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.example"}, fetcher.urls, "one fetch per normalized client per run")
	assert.Equal(t, 1, sum.AlertsCreated)

	edges, err := st.ListRelationships(context.Background())
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "Bright Eyes Optometry", edges[0].Alias)
	assert.Equal(t, model.OriginAuto, edges[0].Origin)

	a, err := st.FindAlert(context.Background(), "c1", "Acme Eye Care", model.SourceWebSearch)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Contains(t, a.Reason, "Bright Eyes Optometry")
}

func TestEnrichment_RecordsClientLocation(t *testing.T) {
	st := newTestStore(t)
	m := newTestMonitor(t, st, Deps{Fetcher: &fakeFetcher{page: acmePage()}}, Config{Enrich: true})

	info := m.enrichment(context.Background(), newRunState(), model.Submission{ClientName: "Acme Eye Care", ClientWebsite: "https://acme.example"})
	assert.Equal(t, "https://acme.example", info.Website)
	assert.Equal(t, "IL", info.Location.State)
	assert.Equal(t, []string{"Bright Eyes Optometry"}, info.Names)
}

func TestEnrichment_Disabled(t *testing.T) {
	st := newTestStore(t)
	fetcher := &fakeFetcher{page: acmePage()}
	m := newTestMonitor(t, st, Deps{Fetcher: fetcher}, Config{Enrich: false})

	info := m.enrichment(context.Background(), newRunState(), model.Submission{ClientName: "Acme Eye Care", ClientWebsite: "acme.example"})
	assert.Empty(t, info.Website)
	assert.Empty(t, fetcher.urls)
}

func TestEnrichment_GenericClientSkipped(t *testing.T) {
	st := newTestStore(t)
	fetcher := &fakeFetcher{page: acmePage()}
	m := newTestMonitor(t, st, Deps{Fetcher: fetcher}, Config{Enrich: true})

	m.enrichment(context.Background(), newRunState(), model.Submission{ClientName: "Family Eye Care", ClientWebsite: "family.example"})
	assert.Empty(t, fetcher.urls)
}

func TestEnrichment_FetchFailureIsSoft(t *testing.T) {
	st := newTestStore(t)
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	m := newTestMonitor(t, st, Deps{Fetcher: fetcher}, Config{Enrich: true})

	info := m.enrichment(context.Background(), newRunState(), model.Submission{ClientName: "Acme Eye Care", ClientWebsite: "acme.example"})
	assert.Equal(t, "https://acme.example", info.Website)
	assert.Empty(t, info.Names)
	assert.True(t, info.Location.IsZero())
}

func TestResolveSite(t *testing.T) {
	search := &fakeSearch{results: []serpapi.Result{
		{Title: "Acme Eye Care - Rockford, IL - Yelp", Link: "https://www.yelp.com/biz/acme-eye-care-rockford"},
		{Title: "Optometrists near you", Link: "https://www.example.org/list"},
		{Title: "Eye Exams | Acme Eye Care", Link: "https://www.acmeeyecare.com/services/exams"},
	}}
	m := newTestMonitor(t, newTestStore(t), Deps{Search: search}, Config{})

	assert.Equal(t, "https://www.acmeeyecare.com", m.resolveSite(context.Background(), "Acme Eye Care"))
	assert.Equal(t, []string{`"Acme Eye Care"`}, search.queries)
}

func TestResolveSite_NoCandidate(t *testing.T) {
	search := &fakeSearch{results: []serpapi.Result{
		{Title: "Top 10 eye doctors", Link: "https://www.healthgrades.com/optometry"},
	}}
	m := newTestMonitor(t, newTestStore(t), Deps{Search: search}, Config{})
	assert.Empty(t, m.resolveSite(context.Background(), "Acme Eye Care"))

	m = newTestMonitor(t, newTestStore(t), Deps{Search: &fakeSearch{err: errors.New("quota exceeded")}}, Config{})
	assert.Empty(t, m.resolveSite(context.Background(), "Acme Eye Care"))
}

func TestHarvest(t *testing.T) {
	m := newTestMonitor(t, newTestStore(t), Deps{}, Config{})

	tests := []struct {
		name string
		page scrape.Page
		want []string
	}{
		{
			name: "site name kept",
			page: scrape.Page{SiteName: "Bright Eyes Optometry", Title: "Home"},
			want: []string{"Bright Eyes Optometry"},
		},
		{
			name: "title segment sharing a client token",
			page: scrape.Page{Title: "Acme Vision Group - Eye Exams"},
			want: []string{"Acme Vision Group"},
		},
		{
			name: "practice suffix heading",
			page: scrape.Page{Headings: []string{"Rockford Family Eye Care", "Meet the Team"}},
			want: []string{"Rockford Family Eye Care"},
		},
		{
			name: "client name and its superstrings skipped",
			page: scrape.Page{Title: "Acme Eye Care | Welcome to Acme Eye Care"},
			want: nil,
		},
		{
			name: "generic segments skipped",
			page: scrape.Page{SiteName: "Eye Care Center", Title: "Family Eye Care"},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := tt.page
			assert.Equal(t, tt.want, m.harvest(&page, "Acme Eye Care"))
		})
	}
}
