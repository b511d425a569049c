package adapters

import (
	"context"

	"github.com/sells-group/company-finder/internal/ports"
	"github.com/sells-group/company-finder/pkg/jina"
	"github.com/sells-group/company-finder/pkg/serpapi"
)

var (
	_ ports.SearchProvider = (*SerpSearch)(nil)
	_ ports.SearchProvider = (*JinaSearch)(nil)
)

// SerpSearch returns organic result links from SerpAPI.
type SerpSearch struct {
	client serpapi.Client
}

// NewSerpSearch wraps a SerpAPI client.
func NewSerpSearch(client serpapi.Client) *SerpSearch {
	return &SerpSearch{client: client}
}

// Name identifies the provider in logs and run metadata.
func (s *SerpSearch) Name() string { return "serpapi" }

// Search returns result URLs in rank order.
func (s *SerpSearch) Search(ctx context.Context, query string) ([]string, error) {
	resp, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return resp.Links(), nil
}

// JinaSearch returns result URLs from Jina search.
type JinaSearch struct {
	client     jina.Client
	maxResults int
}

// NewJinaSearch wraps a Jina client. maxResults <= 0 keeps every result.
func NewJinaSearch(client jina.Client, maxResults int) *JinaSearch {
	return &JinaSearch{client: client, maxResults: maxResults}
}

// Name identifies the provider in logs and run metadata.
func (s *JinaSearch) Name() string { return "jina" }

// Search returns result URLs in rank order.
func (s *JinaSearch) Search(ctx context.Context, query string) ([]string, error) {
	resp, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	urls := resp.URLs()
	if s.maxResults > 0 && len(urls) > s.maxResults {
		urls = urls[:s.maxResults]
	}
	return urls, nil
}
