package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const DefaultFirecrawlURL = "https://api.firecrawl.dev"

// Firecrawl searches and scrapes through the Firecrawl search API.
type Firecrawl struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

func NewFirecrawl(apiKey, baseURL string) *Firecrawl {
	if baseURL == "" {
		baseURL = DefaultFirecrawlURL
	}
	return &Firecrawl{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

type firecrawlRequest struct {
	Query         string                 `json:"query"`
	Limit         int                    `json:"limit"`
	Timeout       int64                  `json:"timeout"`
	ScrapeOptions firecrawlScrapeOptions `json:"scrapeOptions"`
}

type firecrawlScrapeOptions struct {
	Formats []string `json:"formats"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Markdown    string `json:"markdown"`
	} `json:"data"`
}

// Search runs a Firecrawl search with page scraping. The call is bounded by opts.Timeout.
func (f *Firecrawl) Search(ctx context.Context, query string, opts SearchOptions) ([]Document, error) {
	if f.APIKey == "" {
		return nil, fmt.Errorf("firecrawl API key is not set")
	}
	opts = opts.normalize()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	body, err := json.Marshal(firecrawlRequest{
		Query:         query,
		Limit:         opts.Limit,
		Timeout:       opts.Timeout.Milliseconds(),
		ScrapeOptions: firecrawlScrapeOptions{Formats: []string{opts.Format}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.APIKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Firecrawl returned non-200 status code", "status", resp.StatusCode, "query", query)
		return nil, fmt.Errorf("firecrawl API returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed firecrawlResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal firecrawl response: %w", err)
	}
	if !parsed.Success {
		if parsed.Error == "" {
			parsed.Error = "no error message"
		}
		return nil, fmt.Errorf("firecrawl search failed: %s", parsed.Error)
	}

	docs := make([]Document, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		docs = append(docs, Document{URL: d.URL, Title: d.Title, Content: d.Markdown})
		if len(docs) >= opts.Limit {
			break
		}
	}
	return docs, nil
}
