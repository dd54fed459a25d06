// Package netrows is a client for a credit-metered professional-profile API.
package netrows

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/placement-monitor/internal/resilience"
)

const (
	defaultBaseURL = "https://api.netrows.com/v1"
	serviceName    = "netrows"
)

// ErrEmptyHistory is returned when a profile is found but carries no positions.
var ErrEmptyHistory = eris.New("netrows: profile has no employment history")

// Client fetches professional profiles.
type Client interface {
	Profile(ctx context.Context, profileURL string) (*Profile, error)
}

// Profile is a normalized professional profile.
type Profile struct {
	FullName  string     `json:"full_name"`
	Headline  string     `json:"headline"`
	Location  string     `json:"location"`
	Positions []Position `json:"positions"`
}

// Position is one employment entry.
type Position struct {
	Company  string     `json:"company"`
	Title    string     `json:"title"`
	Location string     `json:"location"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	Current  bool       `json:"current"`
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

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a profile API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Profile(ctx context.Context, profileURL string) (*Profile, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "netrows: rate limit wait")
		}
	}

	reqURL := c.baseURL + "/people/profile?url=" + url.QueryEscape(profileURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "netrows: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "netrows: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "netrows: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyHTTP(serviceName, resp.StatusCode, string(body),
			eris.Errorf("netrows: unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "netrows: unmarshal response")
	}
	if msg := firstString(raw, "error", "message"); msg != "" && resilience.IsQuotaMessage(msg) {
		return nil, resilience.NewQuotaError(serviceName, resp.StatusCode, eris.New(msg))
	}

	p := decodeProfile(raw)
	if len(p.Positions) == 0 {
		return p, ErrEmptyHistory
	}
	return p, nil
}
