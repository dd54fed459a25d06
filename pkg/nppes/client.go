// Package nppes is a client for the public NPI registry API.
package nppes

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
	defaultBaseURL = "https://npiregistry.cms.hhs.gov/api"
	apiVersion     = "2.1"
	serviceName    = "nppes"
)

// Client queries the NPI registry.
type Client interface {
	// Lookup returns the record for a ten-digit NPI, or nil when unknown.
	Lookup(ctx context.Context, npi string) (*Record, error)
	// SearchIndividuals finds individual providers by name. A trailing "*"
	// on either name is a wildcard.
	SearchIndividuals(ctx context.Context, firstName, lastName string) ([]Record, error)
}

// Record is one registry entry.
type Record struct {
	Number            string      `json:"number"`
	EnumerationType   string      `json:"enumeration_type"`
	Basic             Basic       `json:"basic"`
	Addresses         []Address   `json:"addresses"`
	PracticeLocations []Address   `json:"practiceLocations"`
	Taxonomies        []Taxonomy  `json:"taxonomies"`
	OtherNames        []OtherName `json:"other_names"`
}

// Basic holds the provider's name fields.
type Basic struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	MiddleName       string `json:"middle_name"`
	Credential       string `json:"credential"`
	OrganizationName string `json:"organization_name"`
	Status           string `json:"status"`
}

// Address is a mailing or practice location.
type Address struct {
	Purpose    string `json:"address_purpose"`
	Address1   string `json:"address_1"`
	Address2   string `json:"address_2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Telephone  string `json:"telephone_number"`
}

// Taxonomy is a provider specialty.
type Taxonomy struct {
	Code    string `json:"code"`
	Desc    string `json:"desc"`
	Primary bool   `json:"primary"`
	State   string `json:"state"`
}

// OtherName is an alternate or former name on the record.
type OtherName struct {
	Type             string `json:"type"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	OrganizationName string `json:"organization_name"`
}

// FullName joins the record's first and last name.
func (r Record) FullName() string {
	return strings.TrimSpace(r.Basic.FirstName + " " + r.Basic.LastName)
}

// PracticeAddresses returns every location-purpose address, primary first.
func (r Record) PracticeAddresses() []Address {
	var out []Address
	for _, a := range r.Addresses {
		if strings.EqualFold(a.Purpose, "LOCATION") {
			out = append(out, a)
		}
	}
	return append(out, r.PracticeLocations...)
}

// OneLine formats an address on a single line.
func (a Address) OneLine() string {
	parts := []string{a.Address1}
	if a.Address2 != "" {
		parts = append(parts, a.Address2)
	}
	parts = append(parts, a.City, strings.TrimSpace(a.State+" "+zip5(a.PostalCode)))
	return strings.Join(parts, ", ")
}

func zip5(z string) string {
	if len(z) > 5 {
		return z[:5]
	}
	return z
}

type searchResponse struct {
	ResultCount int      `json:"result_count"`
	Results     []Record `json:"results"`
	Errors      []struct {
		Description string `json:"description"`
		Field       string `json:"field"`
	} `json:"Errors"`
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

// WithLimit sets the maximum records returned by a name search.
func WithLimit(n int) Option {
	return func(c *httpClient) {
		if n > 0 && n <= 200 {
			c.limit = n
		}
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	limit   int
}

// NewClient creates an NPI registry client. The registry needs no credentials.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limit:   50,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Lookup(ctx context.Context, npi string) (*Record, error) {
	params := url.Values{}
	params.Set("number", strings.TrimSpace(npi))
	resp, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

func (c *httpClient) SearchIndividuals(ctx context.Context, firstName, lastName string) ([]Record, error) {
	params := url.Values{}
	params.Set("enumeration_type", "NPI-1")
	params.Set("first_name", firstName)
	params.Set("last_name", lastName)
	params.Set("limit", strconv.Itoa(c.limit))
	resp, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *httpClient) query(ctx context.Context, params url.Values) (*searchResponse, error) {
	params.Set("version", apiVersion)

	return resilience.DoVal(ctx, resilience.RetryConfig{OnRetry: resilience.RetryLogger(serviceName, "query")},
		func(ctx context.Context) (*searchResponse, error) {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return nil, eris.Wrap(err, "nppes: rate limit wait")
				}
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+params.Encode(), nil)
			if err != nil {
				return nil, eris.Wrap(err, "nppes: create request")
			}

			resp, err := c.http.Do(req)
			if err != nil {
				return nil, eris.Wrap(err, "nppes: send request")
			}
			defer resp.Body.Close() //nolint:errcheck

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, eris.Wrap(err, "nppes: read response")
			}
			if resp.StatusCode != http.StatusOK {
				return nil, resilience.ClassifyHTTP(serviceName, resp.StatusCode, string(body),
					eris.Errorf("nppes: unexpected status %d: %s", resp.StatusCode, string(body)))
			}

			var result searchResponse
			if err := json.Unmarshal(body, &result); err != nil {
				return nil, eris.Wrap(err, "nppes: unmarshal response")
			}
			if len(result.Errors) > 0 {
				return nil, eris.Errorf("nppes: %s", result.Errors[0].Description)
			}
			return &result, nil
		})
}
