package aggregator

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"contentmaker/internal/domain"
	"contentmaker/internal/ports"
)

const arxivAPIURL = "https://export.arxiv.org/api/query"

// ArxivSource polls the arXiv Atom API for the newest papers in a category.
type ArxivSource struct {
	name    string
	baseURL string
	query   string
	limit   int
	client  *http.Client
}

var _ ports.Source = (*ArxivSource)(nil)

// NewArxivSource builds a source for a search query like "cat:cs.AI".
func NewArxivSource(name, query string, limit int, client *http.Client) *ArxivSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if limit <= 0 {
		limit = 10
	}
	return &ArxivSource{
		name:    name,
		baseURL: arxivAPIURL,
		query:   query,
		limit:   limit,
		client:  client,
	}
}

// Name identifies the source inside the pipeline.
func (s *ArxivSource) Name() string {
	return s.name
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Authors   []atomAuthor `xml:"author"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

// Poll fetches the latest entries sorted by update date.
func (s *ArxivSource) Poll(ctx context.Context) ([]domain.Item, error) {
	query := url.Values{}
	query.Set("search_query", s.query)
	query.Set("start", "0")
	query.Set("max_results", strconv.Itoa(s.limit))
	query.Set("sortBy", "lastUpdatedDate")
	query.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query arxiv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode atom feed: %w", err)
	}

	items := make([]domain.Item, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		link := strings.TrimSpace(entry.ID)
		title := strings.TrimSpace(entry.Title)
		if link == "" || title == "" {
			continue
		}

		authors := make([]string, 0, len(entry.Authors))
		for _, a := range entry.Authors {
			if name := strings.TrimSpace(a.Name); name != "" {
				authors = append(authors, name)
			}
		}

		var published time.Time
		if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.Published)); err == nil {
			published = parsed
		}

		items = append(items, domain.Item{
			ID:          domain.Identity(link, title),
			Kind:        domain.KindPaper,
			Title:       title,
			Abstract:    strings.TrimSpace(entry.Summary),
			Link:        link,
			Authors:     authors,
			PublishedAt: published,
		})
	}

	return items, nil
}
