package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const DefaultArxivURL = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Arxiv searches paper abstracts. Content is the abstract, not the paper.
type Arxiv struct {
	Endpoint string
	client   *http.Client
}

func NewArxiv() *Arxiv {
	return &Arxiv{Endpoint: DefaultArxivURL, client: &http.Client{}}
}

func (a *Arxiv) Search(ctx context.Context, query string, opts SearchOptions) ([]Document, error) {
	opts = opts.normalize()

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(opts.Limit))
	params.Add("start", "0")
	apiURL := a.Endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("arXiv returned non-200 status code", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("API returned non-200 status code: %d", resp.StatusCode)
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	docs := make([]Document, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		docs = append(docs, entry.document())
	}
	slog.Debug("arXiv search done", "query", query, "results", len(docs))
	return docs, nil
}

func (e ArxivEntry) document() Document {
	title := collapseSpace(e.Title)
	link := strings.TrimSpace(e.ID)
	for _, l := range e.Link {
		if l.Rel == "alternate" {
			link = l.Href
			break
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if e.Published != "" {
		fmt.Fprintf(&b, "Published: %s\n\n", e.Published)
	}
	for _, l := range e.Link {
		if l.Type == "application/pdf" {
			fmt.Fprintf(&b, "PDF: %s\n\n", l.Href)
			break
		}
	}
	b.WriteString(collapseSpace(e.Summary))

	return Document{URL: link, Title: title, Content: b.String()}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
