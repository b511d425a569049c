// Package scrape downloads web pages and reduces them to plain text.
package scrape

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-finder/internal/model"
	"github.com/sells-group/company-finder/internal/ports"
)

// DefaultUserAgent identifies the crawler to remote sites.
const DefaultUserAgent = "Mozilla/5.0 (compatible; CompanyFinder/0.1)"

// maxBodyBytes bounds how much of a page is read.
const maxBodyBytes = 4 << 20

var _ ports.PageFetcher = (*Fetcher)(nil)

// Fetcher retrieves HTML pages over net/http. Only 200 responses with an
// HTML content type are accepted.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		f.client = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// NewFetcher creates a Fetcher. Per-request deadlines come from the caller's
// context; the client timeout is only a backstop.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		userAgent: DefaultUserAgent,
		client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch downloads url and returns its cleaned text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (model.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Page{}, eris.Wrap(err, "scrape: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return model.Page{}, eris.Wrap(err, "scrape: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return model.Page{}, eris.Errorf("scrape: status %d", resp.StatusCode)
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		return model.Page{}, eris.Errorf("scrape: not html (%q)", resp.Header.Get("Content-Type"))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.Page{}, eris.Wrap(err, "scrape: read body")
	}

	title, text, err := Clean(body)
	if err != nil {
		return model.Page{}, err
	}

	return model.Page{
		URL:        url,
		Title:      title,
		Text:       text,
		StatusCode: resp.StatusCode,
	}, nil
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "text/html")
	}
	return mt == "text/html"
}
