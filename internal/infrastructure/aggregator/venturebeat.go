package aggregator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"contentmaker/internal/domain"
	"contentmaker/internal/ports"
)

const ventureBeatBaseURL = "https://venturebeat.com"

// VentureBeatSource scrapes the VentureBeat AI section page.
type VentureBeatSource struct {
	name    string
	pageURL string
	limit   int
	client  *http.Client
}

var _ ports.Source = (*VentureBeatSource)(nil)

// NewVentureBeatSource wires an HTTP client; pageURL defaults to the AI section.
func NewVentureBeatSource(name, pageURL string, limit int, client *http.Client) *VentureBeatSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if pageURL == "" {
		pageURL = ventureBeatBaseURL + "/ai/"
	}
	if limit <= 0 {
		limit = 5
	}
	return &VentureBeatSource{name: name, pageURL: pageURL, limit: limit, client: client}
}

// Name identifies the source inside the pipeline.
func (s *VentureBeatSource) Name() string {
	return s.name
}

// Poll extracts article blocks from the section page.
func (s *VentureBeatSource) Poll(ctx context.Context) ([]domain.Item, error) {
	doc, err := fetchDocument(ctx, s.client, s.pageURL)
	if err != nil {
		return nil, err
	}

	var items []domain.Item
	doc.Find("article").EachWithBreak(func(i int, block *goquery.Selection) bool {
		if len(items) >= s.limit {
			return false
		}

		title := strings.TrimSpace(block.Find("header").First().Text())
		if title == "" {
			title = strings.TrimSpace(block.Find("h2, h3").First().Text())
		}
		if title == "" {
			return true
		}

		href, _ := block.Find("a[href]").First().Attr("href")
		link := strings.TrimSpace(href)
		if link == "" {
			return true
		}
		if !strings.HasPrefix(link, "http") {
			link = ventureBeatBaseURL + link
		}

		abstract := strings.TrimSpace(block.Find("p").First().Text())

		items = append(items, domain.Item{
			ID:       domain.Identity(link, title),
			Kind:     domain.KindNews,
			Title:    title,
			Abstract: abstract,
			Link:     link,
		})
		return true
	})

	if len(items) == 0 {
		return nil, fmt.Errorf("no article blocks found at %s", s.pageURL)
	}

	return items, nil
}
