package evidence

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/normalize"
	"github.com/sells-group/placement-monitor/internal/resilience"
	"github.com/sells-group/placement-monitor/internal/scrape"
	"github.com/sells-group/placement-monitor/pkg/serpapi"
)

func janeQuery(client string) Query {
	return Query{
		Candidate:  model.Candidate{ID: "c1", Name: "Dr. Jane Doe, OD"},
		Person:     normalize.ParsePerson("Dr. Jane Doe, OD"),
		ClientName: client,
	}
}

func TestWebSearch_NotConfigured(t *testing.T) {
	w := NewWebSearch(nil, nil)
	r := w.Find(context.Background(), janeQuery("Acme Family Eye Care"))

	assert.Equal(t, StatusNotConfigured, r.Status)
	assert.False(t, w.Configured())
	assert.False(t, w.CandidateScoped())
}

func TestWebSearch_DedupesAndFiltersHosts(t *testing.T) {
	search := &mockSearch{}
	search.On("Search", mock.Anything, `"Jane Doe" "Acme Family Eye Care"`).Return(results(
		serpapi.Result{Title: "Our Doctors", Link: "https://acmeeyecare.com/doctors", Snippet: "Dr. Jane Doe joined Acme Family Eye Care in Rockford, IL."},
		serpapi.Result{Title: "Our Doctors", Link: "https://www.acmeeyecare.com/doctors/", Snippet: "duplicate"},
		serpapi.Result{Title: "Cached", Link: "https://webcache.googleusercontent.com/search?q=jane", Snippet: "Acme Family Eye Care"},
		serpapi.Result{Title: "Short", Link: "https://bit.ly/3xyz", Snippet: "Acme Family Eye Care"},
		serpapi.Result{Title: "Dr. Jane Doe", Link: "https://www.healthgrades.com/physician/dr-jane-doe-x1", Snippet: "Acme Family Eye Care"},
	), nil)

	r := NewWebSearch(search, nil).Find(context.Background(), janeQuery("Acme Family Eye Care"))

	require.Equal(t, StatusFound, r.Status)
	require.Len(t, r.Mentions, 2)
	assert.Equal(t, "https://acmeeyecare.com/doctors", r.Mentions[0].URL)
	assert.Equal(t, model.KindSearchResult, r.Mentions[0].Kind)
	assert.Equal(t, model.Location{City: "Rockford", State: "IL"}, r.Mentions[0].Location)
	assert.Contains(t, r.Mentions[1].URL, "healthgrades.com")
	search.AssertExpectations(t)
}

func TestWebSearch_DropsResultsThatDoNotNameThePerson(t *testing.T) {
	search := &mockSearch{}
	search.On("Search", mock.Anything, mock.Anything).Return(results(
		serpapi.Result{Title: "Acme Family Eye Care | Rockford, IL", Link: "https://acmeeyecare.com/", Snippet: "Acme Family Eye Care offers comprehensive exams."},
		serpapi.Result{Title: "Acme Family Eye Care - Careers", Link: "https://acmeeyecare.com/careers", Snippet: "Join the Acme Family Eye Care team."},
	), nil)

	r := NewWebSearch(search, nil).Find(context.Background(), janeQuery("Acme Family Eye Care"))

	assert.Equal(t, StatusNotFound, r.Status)
	assert.Empty(t, r.Mentions)
}

func TestWebSearch_FetchesPagesThatNameThePerson(t *testing.T) {
	search := &mockSearch{}
	search.On("Search", mock.Anything, mock.Anything).Return(results(
		serpapi.Result{Title: "Team", Link: "https://acmeeyecare.com/team", Snippet: "Meet our team"},
		serpapi.Result{Title: "Listing", Link: "https://www.healthgrades.com/physician/dr-jane-doe-x1", Snippet: "Jane Doe"},
		serpapi.Result{Title: "News", Link: "https://news.example.com/story", Snippet: "Local news"},
	), nil)

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, "https://acmeeyecare.com/team").
		Return(&scrape.Page{Title: "Team", Text: "Dr. Jane Doe recently joined Acme Family Eye Care."}, nil)
	fetcher.On("Fetch", mock.Anything, "https://news.example.com/story").
		Return(&scrape.Page{Title: "News", Text: "A new bakery opened downtown."}, nil)

	r := NewWebSearch(search, nil, WithPageFetch(fetcher, 2)).Find(context.Background(), janeQuery("Acme Family Eye Care"))

	require.Equal(t, StatusFound, r.Status)
	var pages []model.OrganizationMention
	for _, m := range r.Mentions {
		if m.Kind == model.KindPage {
			pages = append(pages, m)
		}
	}
	require.Len(t, pages, 1)
	assert.Equal(t, "https://acmeeyecare.com/team", pages[0].URL)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, "https://www.healthgrades.com/physician/dr-jane-doe-x1")
	fetcher.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestWebSearch_PageFetchErrorsAreIgnored(t *testing.T) {
	search := &mockSearch{}
	search.On("Search", mock.Anything, mock.Anything).Return(results(
		serpapi.Result{Title: "Team", Link: "https://acmeeyecare.com/team", Snippet: "Meet Dr. Jane Doe and our team"},
	), nil)
	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, mock.Anything).Return(nil, &scrape.StatusError{StatusCode: 404})

	r := NewWebSearch(search, nil, WithPageFetch(fetcher, 3)).Find(context.Background(), janeQuery("Acme Family Eye Care"))

	assert.Equal(t, StatusFound, r.Status)
	assert.Len(t, r.Mentions, 1)
}

func TestWebSearch_QuotaLatchesGuardedClient(t *testing.T) {
	search := &mockSearch{}
	search.On("Search", mock.Anything, mock.Anything).
		Return(nil, resilience.NewQuotaError("serpapi", 429, eris.New("Your account has run out of searches.")))

	cb := resilience.NewCircuitBreaker(resilience.QuotaCircuitBreakerConfig())
	w := NewWebSearch(GuardSearch(search, cb), nil)

	first := w.Find(context.Background(), janeQuery("Acme Family Eye Care"))
	assert.Equal(t, StatusQuotaExhausted, first.Status)

	second := w.Find(context.Background(), janeQuery("Bayside Vision"))
	assert.Equal(t, StatusDisabled, second.Status)
	search.AssertNumberOfCalls(t, "Search", 1)
}

func TestWebSearch_TransientErrorYieldsNotFound(t *testing.T) {
	search := &mockSearch{}
	search.On("Search", mock.Anything, mock.Anything).Return(nil, eris.New("serpapi: send request: connection reset"))

	r := NewWebSearch(search, nil).Find(context.Background(), janeQuery("Acme Family Eye Care"))

	assert.Equal(t, StatusNotFound, r.Status)
	assert.Empty(t, r.Mentions)
}

func TestCanonicalURL(t *testing.T) {
	assert.Equal(t, "acme.com/team", canonicalURL("https://www.acme.com/team/"))
	assert.Equal(t, canonicalURL("http://acme.com/team#staff"), canonicalURL("https://acme.com/team"))
	assert.Equal(t, "acme.com/p?id=2", canonicalURL("https://acme.com/p?id=2"))
}
