package aggregator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"contentmaker/internal/domain"
	"contentmaker/internal/ports"
)

// FeedSource polls any RSS/Atom feed (Google News queries, outlet feeds).
type FeedSource struct {
	name    string
	feedURL string
	limit   int
	parser  *gofeed.Parser
}

var _ ports.Source = (*FeedSource)(nil)

// NewFeedSource builds a source over the given feed URL.
func NewFeedSource(name, feedURL string, limit int, client *http.Client) *FeedSource {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	if client != nil {
		parser.Client = client
	} else {
		parser.Client = &http.Client{Timeout: 20 * time.Second}
	}
	if limit <= 0 {
		limit = 10
	}
	return &FeedSource{name: name, feedURL: feedURL, limit: limit, parser: parser}
}

// Name identifies the source inside the pipeline.
func (s *FeedSource) Name() string {
	return s.name
}

// Poll fetches and parses the feed, mapping entries to news items.
func (s *FeedSource) Poll(ctx context.Context) ([]domain.Item, error) {
	feed, err := s.parser.ParseURLWithContext(s.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", s.feedURL, err)
	}

	count := len(feed.Items)
	if count > s.limit {
		count = s.limit
	}

	items := make([]domain.Item, 0, count)
	for _, entry := range feed.Items[:count] {
		title := strings.TrimSpace(entry.Title)
		link := strings.TrimSpace(entry.Link)
		if title == "" || link == "" {
			continue
		}

		abstract := strings.TrimSpace(entry.Description)
		if abstract == "" {
			abstract = strings.TrimSpace(entry.Content)
		}

		var published time.Time
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}

		var authors []string
		for _, a := range entry.Authors {
			if a != nil && a.Name != "" {
				authors = append(authors, a.Name)
			}
		}

		items = append(items, domain.Item{
			ID:          domain.Identity(link, title),
			Kind:        domain.KindNews,
			Title:       title,
			Abstract:    abstract,
			Link:        link,
			Authors:     authors,
			PublishedAt: published,
		})
	}

	return items, nil
}
