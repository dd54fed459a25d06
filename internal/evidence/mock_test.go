package evidence

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/placement-monitor/internal/scrape"
	"github.com/sells-group/placement-monitor/pkg/cms"
	"github.com/sells-group/placement-monitor/pkg/netrows"
	"github.com/sells-group/placement-monitor/pkg/nppes"
	"github.com/sells-group/placement-monitor/pkg/serpapi"
)

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) Search(ctx context.Context, query string, _ ...serpapi.SearchOption) (*serpapi.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*serpapi.SearchResponse), args.Error(1)
}

type mockProfiles struct {
	mock.Mock
}

func (m *mockProfiles) Profile(ctx context.Context, profileURL string) (*netrows.Profile, error) {
	args := m.Called(ctx, profileURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*netrows.Profile), args.Error(1)
}

type mockNPPES struct {
	mock.Mock
}

func (m *mockNPPES) Lookup(ctx context.Context, npi string) (*nppes.Record, error) {
	args := m.Called(ctx, npi)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*nppes.Record), args.Error(1)
}

func (m *mockNPPES) SearchIndividuals(ctx context.Context, first, last string) ([]nppes.Record, error) {
	args := m.Called(ctx, first, last)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]nppes.Record), args.Error(1)
}

type mockCMS struct {
	mock.Mock
}

func (m *mockCMS) Affiliations(ctx context.Context, npi string) ([]cms.Affiliation, error) {
	args := m.Called(ctx, npi)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]cms.Affiliation), args.Error(1)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (*scrape.Page, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scrape.Page), args.Error(1)
}

func results(rs ...serpapi.Result) *serpapi.SearchResponse {
	return &serpapi.SearchResponse{OrganicResults: rs}
}
