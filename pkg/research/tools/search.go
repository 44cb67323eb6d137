package tools

import (
	"context"
	"time"
)

// Document is one crawled search hit. URL and Content are empty when the
// provider could not supply them.
type Document struct {
	URL     string `json:"url,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// SearchOptions controls a single search call.
type SearchOptions struct {
	Timeout time.Duration
	Limit   int
	// Format is the content format requested from the crawler, e.g. "markdown".
	Format string
}

const (
	FormatMarkdown = "markdown"

	defaultLimit   = 5
	defaultTimeout = 15 * time.Second
)

func (o SearchOptions) normalize() SearchOptions {
	if o.Limit <= 0 {
		o.Limit = defaultLimit
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Format == "" {
		o.Format = FormatMarkdown
	}
	return o
}

// Searcher searches the web and returns readable page content.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]Document, error)
}

// WithContent drops documents whose content is empty.
func WithContent(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d.Content == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

// URLs returns the non-empty URLs of docs in order.
func URLs(docs []Document) []string {
	urls := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	return urls
}
