// Package cms queries the CMS clinician affiliation dataset, which lists the
// group practices and locations a clinician bills under.
package cms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/placement-monitor/internal/resilience"
)

const (
	defaultBaseURL   = "https://data.cms.gov/provider-data/api/1/datastore/query"
	defaultDatasetID = "mj5m-pzi6"
	serviceName      = "cms"
)

// Client fetches clinician affiliations.
type Client interface {
	Affiliations(ctx context.Context, npi string) ([]Affiliation, error)
}

// Affiliation is one clinician/practice/location row.
type Affiliation struct {
	NPI          string `json:"npi"`
	FirstName    string `json:"provider_first_name"`
	LastName     string `json:"provider_last_name"`
	FacilityName string `json:"facility_name"`
	OrgPACID     string `json:"org_pac_id"`
	Address1     string `json:"adr_ln_1"`
	Address2     string `json:"adr_ln_2"`
	City         string `json:"citytown"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
	Specialty    string `json:"pri_spec"`
}

// Address formats the affiliation's street address on one line.
func (a Affiliation) Address() string {
	parts := []string{a.Address1}
	if a.Address2 != "" {
		parts = append(parts, a.Address2)
	}
	zip := a.ZipCode
	if len(zip) > 5 {
		zip = zip[:5]
	}
	parts = append(parts, a.City, strings.TrimSpace(a.State+" "+zip))
	return strings.Join(parts, ", ")
}

type queryResponse struct {
	Results []Affiliation `json:"results"`
	Count   int           `json:"count"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the datastore query endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithDatasetID overrides the dataset identifier.
func WithDatasetID(id string) Option {
	return func(c *httpClient) {
		if id != "" {
			c.datasetID = id
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	baseURL   string
	datasetID string
	http      *http.Client
}

// NewClient creates an affiliation dataset client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		datasetID: defaultDatasetID,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Affiliations(ctx context.Context, npi string) ([]Affiliation, error) {
	params := url.Values{}
	params.Set("conditions[0][property]", "npi")
	params.Set("conditions[0][value]", strings.TrimSpace(npi))
	params.Set("conditions[0][operator]", "=")
	params.Set("limit", "100")
	reqURL := c.baseURL + "/" + c.datasetID + "/0?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "cms: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "cms: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "cms: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyHTTP(serviceName, resp.StatusCode, string(body),
			eris.Errorf("cms: unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var result queryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "cms: unmarshal response")
	}
	return result.Results, nil
}
