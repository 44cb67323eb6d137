package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBraveURL = "https://api.search.brave.com/res/v1/web/search"

// Brave searches with the Brave Search API and crawls each hit with a PageFetcher.
// Requests are paced to one per second, the free-tier limit of the API.
type Brave struct {
	APIKey   string
	Endpoint string
	Fetcher  *PageFetcher
	client   *http.Client
	limiter  *rate.Limiter
}

func NewBrave(apiKey string) *Brave {
	return &Brave{
		APIKey:   apiKey,
		Endpoint: DefaultBraveURL,
		Fetcher:  NewPageFetcher(),
		client:   &http.Client{},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search queries Brave, then fetches the hits concurrently. A page that cannot be
// fetched yields a Document without content rather than an error.
func (b *Brave) Search(ctx context.Context, query string, opts SearchOptions) ([]Document, error) {
	if strings.TrimSpace(b.APIKey) == "" {
		return nil, fmt.Errorf("brave API key is not set")
	}
	opts = opts.normalize()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for brave rate limit: %w", err)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(opts.Limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("brave API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode brave response: %w", err)
	}

	hits := parsed.Web.Results
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}

	docs := make([]Document, len(hits))
	var wg sync.WaitGroup
	for i, hit := range hits {
		docs[i] = Document{URL: hit.URL, Title: hit.Title}
		if opts.Format != FormatMarkdown || b.Fetcher == nil {
			continue
		}
		wg.Add(1)
		go func(i int, pageURL string) {
			defer wg.Done()
			content, err := b.Fetcher.Fetch(ctx, pageURL)
			if err != nil {
				slog.Warn("Failed to fetch search hit", "url", pageURL, "error", err)
				return
			}
			docs[i].Content = content
		}(i, hit.URL)
	}
	wg.Wait()

	return docs, nil
}
