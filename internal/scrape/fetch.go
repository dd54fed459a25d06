package scrape

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// Page is a fetched page reduced to the parts matching needs.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Header     http.Header
	Title      string
	SiteName   string
	Headings   []string
	Text       string
	Truncated  bool
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return "scrape: " + e.URL + ": status " + http.StatusText(e.StatusCode)
}

// HTTPFetcher is a Fetcher built on net/http.
type HTTPFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithMaxBytes caps how much of a body is read; the transfer is abandoned past it.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithTimeout sets the whole-request timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithMaxRedirects limits how many redirects are followed.
func WithMaxRedirects(n int) FetcherOption {
	return func(f *HTTPFetcher) {
		if n >= 0 {
			f.client.CheckRedirect = redirectLimit(n)
		}
	}
}

func redirectLimit(n int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) > n {
			return eris.Errorf("scrape: stopped after %d redirects", n)
		}
		return nil
	}
}

// NewHTTPFetcher creates a fetcher with a 10s timeout, two redirects and a 512KB body cap.
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
			},
			CheckRedirect: redirectLimit(2),
		},
		maxBytes:  512 * 1024,
		userAgent: "Mozilla/5.0 (compatible; PlacementMonitor/1.0)",
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch downloads targetURL and extracts its text. Blocked pages, error
// statuses and non-HTML bodies are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: fetch")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "scrape: read body")
	}
	truncated := int64(len(body)) > f.maxBytes
	if truncated {
		body = body[:f.maxBytes]
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("scrape: %s blocked (%s)", targetURL, kind)
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: targetURL}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, _ := mime.ParseMediaType(ct); mt != "text/html" && mt != "application/xhtml+xml" && mt != "text/plain" {
			return nil, eris.Errorf("scrape: %s unsupported content type %s", targetURL, mt)
		}
	}

	page, err := ParseHTML(body)
	if err != nil {
		return nil, err
	}
	page.URL = targetURL
	page.FinalURL = resp.Request.URL.String()
	page.StatusCode = resp.StatusCode
	page.Header = resp.Header
	page.Truncated = truncated
	return page, nil
}

var spaceRe = regexp.MustCompile(`\s+`)

func clean(s string) string { return strings.TrimSpace(spaceRe.ReplaceAllString(s, " ")) }

// ParseHTML extracts title, site name, headings and body text from HTML.
func ParseHTML(body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "scrape: parse html")
	}

	page := &Page{
		Title:    clean(doc.Find("title").First().Text()),
		SiteName: clean(doc.Find(`meta[property="og:site_name"]`).AttrOr("content", "")),
	}
	if page.SiteName == "" {
		page.SiteName = clean(doc.Find(`meta[name="application-name"]`).AttrOr("content", ""))
	}
	doc.Find("h1, h2").Each(func(_ int, s *goquery.Selection) {
		if h := clean(s.Text()); h != "" && len(h) < 120 {
			page.Headings = append(page.Headings, h)
		}
	})

	doc.Find("script, style, noscript, svg, iframe, nav").Remove()
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	var sb strings.Builder
	for _, n := range root.Nodes {
		collectText(n, &sb)
	}
	page.Text = clean(sb.String())
	return page, nil
}

// collectText appends text nodes in document order, separated by spaces so
// adjacent block elements do not run together.
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
