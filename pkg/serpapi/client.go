// Package serpapi is a client for a credit-metered web search API that
// returns Google organic results as JSON.
package serpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/placement-monitor/internal/resilience"
)

const (
	defaultBaseURL = "https://serpapi.com"
	serviceName    = "serpapi"
)

// Client performs web searches.
type Client interface {
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// SearchResponse is the subset of the search payload the monitor reads.
type SearchResponse struct {
	OrganicResults []Result `json:"organic_results"`
	Error          string   `json:"error,omitempty"`
}

// Result is one organic search hit.
type Result struct {
	Position      int    `json:"position"`
	Title         string `json:"title"`
	Link          string `json:"link"`
	DisplayedLink string `json:"displayed_link"`
	Snippet       string `json:"snippet"`
}

// SearchOption customizes a single search.
type SearchOption func(url.Values)

// WithNum sets the number of results requested.
func WithNum(n int) SearchOption {
	return func(v url.Values) {
		if n > 0 {
			v.Set("num", strconv.Itoa(n))
		}
	}
}

// WithLocation restricts results to a geographic location string.
func WithLocation(loc string) SearchOption {
	return func(v url.Values) {
		if loc != "" {
			v.Set("location", loc)
		}
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithMinInterval spaces consecutive requests at least d apart.
func WithMinInterval(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	c.retry.OnRetry = resilience.RetryLogger(serviceName, "search")
	return c
}

// noResultsMarker is how the API reports an empty page as an "error".
const noResultsMarker = "hasn't returned any results"

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", c.apiKey)
	params.Set("hl", "en")
	params.Set("gl", "us")
	for _, o := range opts {
		o(params)
	}
	reqURL := c.baseURL + "/search.json?" + params.Encode()

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*SearchResponse, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "serpapi: rate limit wait")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "serpapi: create request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "serpapi: send request")
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "serpapi: read response")
		}

		var result SearchResponse
		jsonErr := json.Unmarshal(body, &result)

		if resp.StatusCode != http.StatusOK {
			msg := string(body)
			if result.Error != "" {
				msg = result.Error
			}
			return nil, resilience.ClassifyHTTP(serviceName, resp.StatusCode, msg,
				eris.Errorf("serpapi: unexpected status %d: %s", resp.StatusCode, msg))
		}
		if jsonErr != nil {
			return nil, eris.Wrap(jsonErr, "serpapi: unmarshal response")
		}
		if result.Error != "" {
			if strings.Contains(result.Error, noResultsMarker) {
				return &SearchResponse{}, nil
			}
			return nil, resilience.ClassifyHTTP(serviceName, resp.StatusCode, result.Error,
				eris.Errorf("serpapi: %s", result.Error))
		}
		return &result, nil
	})
}
