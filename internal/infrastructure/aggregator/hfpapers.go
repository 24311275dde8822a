package aggregator

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"contentmaker/internal/domain"
	"contentmaker/internal/ports"
)

const hfBaseURL = "https://huggingface.co"

// HFPapersSource scrapes the Hugging Face trending papers page.
type HFPapersSource struct {
	name    string
	pageURL string
	limit   int
	client  *http.Client
}

var _ ports.Source = (*HFPapersSource)(nil)

// NewHFPapersSource wires an HTTP client; pageURL defaults to the trending list.
func NewHFPapersSource(name, pageURL string, limit int, client *http.Client) *HFPapersSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if pageURL == "" {
		pageURL = hfBaseURL + "/papers/trending"
	}
	if limit <= 0 {
		limit = 10
	}
	return &HFPapersSource{name: name, pageURL: pageURL, limit: limit, client: client}
}

// Name identifies the source inside the pipeline.
func (s *HFPapersSource) Name() string {
	return s.name
}

// Poll extracts trending paper cards from the page.
func (s *HFPapersSource) Poll(ctx context.Context) ([]domain.Item, error) {
	doc, err := fetchDocument(ctx, s.client, s.pageURL)
	if err != nil {
		return nil, err
	}

	var items []domain.Item
	doc.Find("article").EachWithBreak(func(i int, card *goquery.Selection) bool {
		if len(items) >= s.limit {
			return false
		}

		title := strings.TrimSpace(card.Find("h3").First().Text())
		if title == "" {
			return true
		}

		href, _ := card.Find("a[href]").First().Attr("href")
		link := strings.TrimSpace(href)
		if link == "" {
			return true
		}
		if !strings.HasPrefix(link, "http") {
			link = hfBaseURL + link
		}

		abstract := strings.TrimSpace(card.Find("p").First().Text())

		items = append(items, domain.Item{
			ID:          domain.Identity(link, title),
			Kind:        domain.KindPaper,
			Title:       title,
			Abstract:    abstract,
			Link:        link,
			PublishedAt: parsePublishedOn(card),
		})
		return true
	})

	if len(items) == 0 {
		return nil, fmt.Errorf("no paper cards found at %s", s.pageURL)
	}

	return items, nil
}

var publishedExpr = regexp.MustCompile(`Published on ([A-Za-z]{3} \d{1,2}(?:, \d{4})?)`)

// parsePublishedOn looks for the "Published on <date>" text inside a card.
func parsePublishedOn(card *goquery.Selection) time.Time {
	match := publishedExpr.FindStringSubmatch(card.Text())
	if match == nil {
		return time.Time{}
	}

	dateText := match[1]
	if parsed, err := time.Parse("Jan 2, 2006", dateText); err == nil {
		return parsed
	}
	if parsed, err := time.Parse("Jan 2", dateText); err == nil {
		return parsed.AddDate(time.Now().UTC().Year(), 0, 0)
	}
	return time.Time{}
}
