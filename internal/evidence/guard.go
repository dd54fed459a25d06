package evidence

import (
	"context"

	"github.com/sells-group/placement-monitor/internal/resilience"
	"github.com/sells-group/placement-monitor/pkg/netrows"
	"github.com/sells-group/placement-monitor/pkg/serpapi"
)

// GuardSearch wraps a search client with a breaker. Once the breaker opens
// every call fails with resilience.ErrCircuitOpen and no request is made.
// A nil client stays nil so adapters still report not_configured.
func GuardSearch(c serpapi.Client, cb *resilience.CircuitBreaker) serpapi.Client {
	if c == nil || cb == nil {
		return c
	}
	return &guardedSearch{inner: c, cb: cb}
}

type guardedSearch struct {
	inner serpapi.Client
	cb    *resilience.CircuitBreaker
}

func (g *guardedSearch) Search(ctx context.Context, query string, opts ...serpapi.SearchOption) (*serpapi.SearchResponse, error) {
	return resilience.ExecuteVal(ctx, g.cb, func(ctx context.Context) (*serpapi.SearchResponse, error) {
		return g.inner.Search(ctx, query, opts...)
	})
}

// GuardProfiles wraps a profile client with a breaker.
func GuardProfiles(c netrows.Client, cb *resilience.CircuitBreaker) netrows.Client {
	if c == nil || cb == nil {
		return c
	}
	return &guardedProfiles{inner: c, cb: cb}
}

type guardedProfiles struct {
	inner netrows.Client
	cb    *resilience.CircuitBreaker
}

func (g *guardedProfiles) Profile(ctx context.Context, profileURL string) (*netrows.Profile, error) {
	return resilience.ExecuteVal(ctx, g.cb, func(ctx context.Context) (*netrows.Profile, error) {
		return g.inner.Profile(ctx, profileURL)
	})
}
